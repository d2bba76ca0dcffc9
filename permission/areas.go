package permission

import "strings"

// Area is a dashboard section gated by role. Its value is the bit position
// inside an AreaSet.
type Area int

const (
	AreaEVM Area = iota
	AreaDealer
	AreaCustomer
	areaCount
)

var areaNames = [areaCount]string{
	AreaEVM:      "evm",
	AreaDealer:   "dealer",
	AreaCustomer: "customer",
}

func (a Area) String() string {
	if a < 0 || a >= areaCount {
		return ""
	}
	return areaNames[a]
}

// Path is the dashboard prefix served for the area, e.g. /dashboard/evm.
func (a Area) Path() string {
	name := a.String()
	if name == "" {
		return ""
	}
	return DashboardPath + "/" + name
}

// ParseArea resolves an area by name.
func ParseArea(name string) (Area, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range areaNames {
		if n == name {
			return Area(i), true
		}
	}
	return 0, false
}

// AreaForPath returns the area owning a request path under DashboardPath.
func AreaForPath(path string) (Area, bool) {
	rest, ok := strings.CutPrefix(path, DashboardPath+"/")
	if !ok {
		return 0, false
	}
	seg, _, _ := strings.Cut(rest, "/")
	return ParseArea(seg)
}

// AreaSet is a bitmask of areas.
type AreaSet uint64

// NewAreaSet returns a set holding the given areas.
func NewAreaSet(areas ...Area) AreaSet {
	var s AreaSet
	for _, a := range areas {
		s.Set(a)
	}
	return s
}

func (s AreaSet) Has(a Area) bool {
	if a < 0 || a >= areaCount {
		return false
	}
	return s&(1<<uint(a)) != 0
}

func (s *AreaSet) Set(a Area) {
	if a < 0 || a >= areaCount {
		return
	}
	*s |= 1 << uint(a)
}

func (s *AreaSet) Clear(a Area) {
	if a < 0 || a >= areaCount {
		return
	}
	*s &^= 1 << uint(a)
}

// Areas lists the members in bit order.
func (s AreaSet) Areas() []Area {
	var out []Area
	for a := Area(0); a < areaCount; a++ {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s AreaSet) Raw() uint64 {
	return uint64(s)
}
