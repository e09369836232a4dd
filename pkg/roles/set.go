package roles

import "sort"

// Set is an unordered collection of roles.
type Set map[Role]struct{}

// NewSet builds a set from the given roles.
func NewSet(rs ...Role) Set {
	s := Set{}
	for _, r := range rs {
		s.Add(r)
	}
	return s
}

// Add inserts r into the set.
func (s Set) Add(r Role) { s[r] = struct{}{} }

// Contains reports whether r is in the set.
func (s Set) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// AddAll inserts every role of other into the set.
func (s Set) AddAll(other Set) {
	for r := range other {
		s.Add(r)
	}
}

// Intersect returns the roles present in both sets.
func (s Set) Intersect(other Set) Set {
	out := Set{}
	for r := range s {
		if other.Contains(r) {
			out.Add(r)
		}
	}
	return out
}

// Intersects reports whether the two sets share at least one role.
func (s Set) Intersects(other Set) bool {
	for r := range s {
		if other.Contains(r) {
			return true
		}
	}
	return false
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	out.AddAll(s)
	return out
}

// Equal reports whether both sets hold exactly the same roles.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if !other.Contains(r) {
			return false
		}
	}
	return true
}

// Sorted returns the roles in lexical order, for deterministic output.
func (s Set) Sorted() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
