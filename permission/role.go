package permission

import "strings"

// Role is one of the closed set of backend roles a principal can hold.
type Role string

const (
	RoleAdmin         Role = "Admin"
	RoleEVMStaff      Role = "EVM Staff"
	RoleDealerManager Role = "Dealer Manager"
	RoleDealerStaff   Role = "Dealer Staff"
	RoleCustomer      Role = "Customer"
)

// DefaultRole is assigned whenever the backend omits a role or sends one
// outside the closed set.
const DefaultRole = RoleCustomer

var roles = []Role{
	RoleAdmin,
	RoleEVMStaff,
	RoleDealerManager,
	RoleDealerStaff,
	RoleCustomer,
}

// Roles returns every known role in a stable order.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// ParseRole maps a backend role name onto the closed set. Matching ignores
// case and surrounding whitespace; anything unrecognized becomes DefaultRole.
func ParseRole(name string) Role {
	if r, ok := LookupRole(name); ok {
		return r
	}
	return DefaultRole
}

// LookupRole is ParseRole without the fallback.
func LookupRole(name string) (Role, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, r := range roles {
		if strings.EqualFold(string(r), name) {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is a member of the closed set.
func (r Role) Valid() bool {
	for _, known := range roles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// IsDealer reports whether r belongs to a dealership.
func (r Role) IsDealer() bool {
	return r == RoleDealerManager || r == RoleDealerStaff
}

// IsStaff reports whether r belongs to the manufacturer side.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleEVMStaff
}
