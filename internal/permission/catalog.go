package permission

import (
	"fmt"
	"sort"
	"strings"

	"github.com/frahmantamala/ifarm/internal"
)

type definition struct {
	resource ResourceType
	actions  []Action
}

// systemDefinitions is the fixed catalog. IDs are assigned in this order, so
// append only: reordering would renumber persisted permission ids.
var systemDefinitions = []definition{
	{ResourceAnimal, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport}},
	{ResourceFarm, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage}},
	{ResourceBreedingRecord, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}},
	{ResourceEmployee, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}},
	{ResourcePayroll, []Action{ActionView, ActionManage, ActionApprove, ActionExport}},
	{ResourceSale, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionApprove, ActionExport}},
	{ResourceTax, []Action{ActionView, ActionManage, ActionExport}},
	{ResourceVeterinaryRecord, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}},
	{ResourceReport, []Action{ActionView, ActionExport}},
	{ResourceRole, []Action{ActionView, ActionManage}},
	{ResourcePolicy, []Action{ActionView, ActionManage}},
	{ResourceDelegation, []Action{ActionView, ActionCreate, ActionManage}},
	{ResourceAuditLog, []Action{ActionView, ActionExport}},
	{ResourceUser, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage}},
	{ResourceTenant, []Action{ActionView, ActionManage}},
}

// Catalog is a read-only lookup of system permissions keyed by name.
// It is safe for concurrent use once built.
type Catalog struct {
	byName map[string]Permission
	byID   map[int64]Permission
	sorted []Permission
}

var systemCatalog = buildSystemCatalog()

// System returns the process-wide catalog built from the system definitions.
func System() *Catalog {
	return systemCatalog
}

func buildSystemCatalog() *Catalog {
	var perms []Permission
	var id int64
	for _, def := range systemDefinitions {
		for _, action := range def.actions {
			id++
			perms = append(perms, Permission{
				ID:           id,
				Name:         RequiredPermission(action, def.resource),
				Category:     def.resource.Category(),
				Action:       action,
				ResourceType: def.resource,
				Description:  describe(action, def.resource),
			})
		}
	}
	c, err := NewCatalog(perms)
	if err != nil {
		panic(err)
	}
	return c
}

func describe(action Action, resource ResourceType) string {
	noun := strings.ReplaceAll(resource.Plural(), "_", " ")
	switch action {
	case ActionManage:
		return "Full management of " + noun
	case ActionApprove:
		return "Approve " + noun
	default:
		verb := string(action)
		return strings.ToUpper(verb[:1]) + verb[1:] + " " + noun
	}
}

// NewCatalog builds a catalog from explicit records. Duplicate names or ids fail.
func NewCatalog(perms []Permission) (*Catalog, error) {
	c := &Catalog{
		byName: make(map[string]Permission, len(perms)),
		byID:   make(map[int64]Permission, len(perms)),
	}
	for _, p := range perms {
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate permission name %q", p.Name)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate permission id %d", p.ID)
		}
		c.byName[p.Name] = p
		c.byID[p.ID] = p
		c.sorted = append(c.sorted, p)
	}
	sort.Slice(c.sorted, func(i, j int) bool {
		if c.sorted[i].Category != c.sorted[j].Category {
			return c.sorted[i].Category < c.sorted[j].Category
		}
		return c.sorted[i].Name < c.sorted[j].Name
	})
	return c, nil
}

// All returns every permission ordered by category then name.
func (c *Catalog) All() []Permission {
	out := make([]Permission, len(c.sorted))
	copy(out, c.sorted)
	return out
}

func (c *Catalog) Lookup(name string) (Permission, bool) {
	p, ok := c.byName[name]
	return p, ok
}

func (c *Catalog) ByID(id int64) (Permission, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Resolve turns names into a Set. Any absent name fails the whole call with
// UnknownPermission naming the first missing entry in sorted order.
func (c *Catalog) Resolve(names []string) (Set, error) {
	sortedNames := append([]string(nil), names...)
	sort.Strings(sortedNames)

	set := make(Set, len(sortedNames))
	for _, name := range sortedNames {
		if _, ok := c.byName[name]; !ok {
			return nil, unknown(name)
		}
		set[name] = struct{}{}
	}
	return set, nil
}

func (c *Catalog) ByIDs(ids []int64) (Set, error) {
	set := make(Set, len(ids))
	for _, id := range ids {
		p, ok := c.byID[id]
		if !ok {
			return nil, unknown(fmt.Sprintf("#%d", id))
		}
		set[p.Name] = struct{}{}
	}
	return set, nil
}

// IDs maps a set back to sorted permission ids. Names missing from the catalog fail.
func (c *Catalog) IDs(set Set) ([]int64, error) {
	ids := make([]int64, 0, len(set))
	for _, name := range set.Names() {
		p, ok := c.byName[name]
		if !ok {
			return nil, unknown(name)
		}
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *Catalog) Required(action Action, resourceType ResourceType) (Permission, error) {
	name := RequiredPermission(action, resourceType)
	p, ok := c.byName[name]
	if !ok {
		return Permission{}, unknown(name)
	}
	return p, nil
}

func unknown(name string) error {
	return internal.ErrUnknownPermission.
		WithMessage(fmt.Sprintf("unknown permission %q", name)).
		WithDetails(internal.ValidationErrors{Errors: []internal.ValidationError{
			{Field: "permissions", Message: fmt.Sprintf("unknown permission %q", name), Code: string(internal.ErrCodeUnknownPermission)},
		}})
}
