package permission

import (
	"encoding/json"
	"sort"
)

// Set is a value set of permission names. The zero value is an empty set.
type Set map[string]struct{}

func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Names returns the members sorted ascending.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for n := range s {
		out[n] = struct{}{}
	}
	for n := range other {
		out[n] = struct{}{}
	}
	return out
}

func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for n := range s {
		if other.Has(n) {
			out[n] = struct{}{}
		}
	}
	return out
}

func (s Set) Without(other Set) Set {
	out := make(Set, len(s))
	for n := range s {
		if !other.Has(n) {
			out[n] = struct{}{}
		}
	}
	return out
}

func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for n := range s {
		if !other.Has(n) {
			return false
		}
	}
	return true
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*s = NewSet(names...)
	return nil
}

type GrantSource string

const (
	SourceRole       GrantSource = "role"
	SourceDelegation GrantSource = "delegation"
)

// Grant records where an effective permission came from.
type Grant struct {
	Permission          string      `json:"permission"`
	Source              GrantSource `json:"source"`
	RoleID              int64       `json:"role_id,omitempty"`
	DelegationID        int64       `json:"delegation_id,omitempty"`
	DelegatedFromUserID int64       `json:"delegated_from_user_id,omitempty"`
}

// GrantSet is an effective permission set with provenance. Role-derived and
// delegation-derived sets share this shape so they can be merged directly.
type GrantSet struct {
	grants map[string][]Grant
}

func NewGrantSet() *GrantSet {
	return &GrantSet{grants: make(map[string][]Grant)}
}

func (g *GrantSet) Add(grant Grant) {
	if g.grants == nil {
		g.grants = make(map[string][]Grant)
	}
	for _, existing := range g.grants[grant.Permission] {
		if existing == grant {
			return
		}
	}
	g.grants[grant.Permission] = append(g.grants[grant.Permission], grant)
}

func (g *GrantSet) Merge(other *GrantSet) {
	if other == nil {
		return
	}
	for _, list := range other.grants {
		for _, grant := range list {
			g.Add(grant)
		}
	}
}

func (g *GrantSet) Has(name string) bool {
	if g == nil {
		return false
	}
	return len(g.grants[name]) > 0
}

func (g *GrantSet) Len() int {
	if g == nil {
		return 0
	}
	return len(g.grants)
}

// Names returns the plain permission set without provenance.
func (g *GrantSet) Names() Set {
	s := make(Set)
	if g == nil {
		return s
	}
	for n := range g.grants {
		s[n] = struct{}{}
	}
	return s
}

func (g *GrantSet) Provenance(name string) []Grant {
	if g == nil {
		return nil
	}
	return append([]Grant(nil), g.grants[name]...)
}

// Source picks the grant used to justify name. A grant from preferDelegation
// wins when present, then any role grant, then the lowest delegation id.
func (g *GrantSet) Source(name string, preferDelegation int64) (Grant, bool) {
	list := g.Provenance(name)
	if len(list) == 0 {
		return Grant{}, false
	}
	if preferDelegation != 0 {
		for _, gr := range list {
			if gr.DelegationID == preferDelegation {
				return gr, true
			}
		}
	}
	best := list[0]
	for _, gr := range list[1:] {
		if rank(gr) < rank(best) {
			best = gr
		}
	}
	return best, true
}

func rank(g Grant) int64 {
	if g.Source == SourceRole {
		return -1
	}
	return g.DelegationID
}

// All returns every grant ordered by permission name.
func (g *GrantSet) All() []Grant {
	if g == nil {
		return nil
	}
	var out []Grant
	for _, name := range g.Names().Names() {
		out = append(out, g.grants[name]...)
	}
	return out
}

func (g *GrantSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.All())
}

func (g *GrantSet) UnmarshalJSON(b []byte) error {
	var list []Grant
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	g.grants = make(map[string][]Grant, len(list))
	for _, gr := range list {
		g.Add(gr)
	}
	return nil
}
