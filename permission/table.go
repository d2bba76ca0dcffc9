package permission

import (
	"errors"
	"sync"
)

const (
	// DashboardPath is the root of every role-gated page.
	DashboardPath = "/dashboard"
	// LoginPath receives unauthenticated visitors.
	LoginPath = "/login"
)

var (
	ErrTableFrozen     = errors.New("role table frozen")
	ErrUnknownRole     = errors.New("unknown role")
	ErrRoleRegistered  = errors.New("role already registered")
	ErrHomeOutsideArea = errors.New("role home is outside its areas")
)

type roleEntry struct {
	areas AreaSet
	home  Area
}

// RoleTable maps each role to the dashboard areas it may open and the area
// it lands on after login. Register everything, then Freeze before sharing.
type RoleTable struct {
	mu     sync.RWMutex
	roles  map[Role]roleEntry
	frozen bool
}

func NewRoleTable() *RoleTable {
	return &RoleTable{roles: make(map[Role]roleEntry)}
}

// Register binds role to home and any extra areas. home is always included.
func (t *RoleTable) Register(role Role, home Area, extra ...Area) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrTableFrozen
	}
	if !role.Valid() {
		return ErrUnknownRole
	}
	if _, exists := t.roles[role]; exists {
		return ErrRoleRegistered
	}
	if home.String() == "" {
		return ErrHomeOutsideArea
	}

	set := NewAreaSet(extra...)
	set.Set(home)
	t.roles[role] = roleEntry{areas: set, home: home}
	return nil
}

func (t *RoleTable) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
}

// Areas returns the area set for role; unknown roles get nothing.
func (t *RoleTable) Areas(role Role) AreaSet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.roles[role].areas
}

// Allows reports whether role may open area.
func (t *RoleTable) Allows(role Role, area Area) bool {
	return t.Areas(role).Has(area)
}

// HomePath is where /dashboard sends role. Roles missing from the table land
// on the default role's home.
func (t *RoleTable) HomePath(role Role) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.roles[role]; ok {
		return e.home.Path()
	}
	if e, ok := t.roles[DefaultRole]; ok {
		return e.home.Path()
	}
	return AreaCustomer.Path()
}

func (t *RoleTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.roles)
}

var (
	defaultTableOnce sync.Once
	defaultTable     *RoleTable
)

// DefaultTable is the frozen routing used by the dealer portal: manufacturer
// staff land on the EVM dashboard, dealership roles on the dealer dashboard
// and customers on their own. Admin may open every area.
func DefaultTable() *RoleTable {
	defaultTableOnce.Do(func() {
		t := NewRoleTable()
		_ = t.Register(RoleAdmin, AreaEVM, AreaDealer, AreaCustomer)
		_ = t.Register(RoleEVMStaff, AreaEVM)
		_ = t.Register(RoleDealerManager, AreaDealer)
		_ = t.Register(RoleDealerStaff, AreaDealer)
		_ = t.Register(RoleCustomer, AreaCustomer)
		t.Freeze()
		defaultTable = t
	})
	return defaultTable
}
