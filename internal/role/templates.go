package role

import (
	"sort"

	"github.com/frahmantamala/ifarm/internal/permission"
)

// Template is a system-defined starter bundle. Templates are cloned into
// tenant roles and never mutated.
type Template struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Permissions permission.Set `json:"permissions"`
}

var templateDefinitions = []struct {
	id, name, description string
	names                 []string
}{
	{"farm_manager", "Farm Manager", "Day-to-day operations across livestock, breeding and health", []string{
		"view_animals", "create_animals", "edit_animals", "export_animals",
		"view_farms", "edit_farms",
		"view_breeding_records", "create_breeding_records", "edit_breeding_records",
		"view_veterinary_records", "create_veterinary_records",
		"view_employees", "view_reports", "export_reports",
		"view_delegations", "create_delegations",
	}},
	{"helper", "Helper", "Read-only access to animals and farms", []string{
		"view_animals", "view_farms",
	}},
	{"veterinarian", "Veterinarian", "Animal health records", []string{
		"view_animals", "edit_animals", "view_breeding_records",
		"view_veterinary_records", "create_veterinary_records", "edit_veterinary_records", "delete_veterinary_records",
	}},
	{"accountant", "Accountant", "Sales, taxes and payroll reporting", []string{
		"view_sales", "create_sales", "edit_sales", "export_sales",
		"view_taxes", "manage_taxes", "export_taxes",
		"view_payroll", "export_payroll",
		"view_reports", "export_reports",
	}},
	{"hr_officer", "HR Officer", "Employees and payroll", []string{
		"view_employees", "create_employees", "edit_employees", "delete_employees",
		"view_payroll", "manage_payroll",
		"view_users",
	}},
}

var systemTemplates = buildTemplates(permission.System())

func buildTemplates(catalog *permission.Catalog) map[string]Template {
	out := make(map[string]Template, len(templateDefinitions)+1)

	all := make([]string, 0)
	for _, p := range catalog.All() {
		all = append(all, p.Name)
	}
	owner, err := catalog.Resolve(all)
	if err != nil {
		panic(err)
	}
	out["farm_owner"] = Template{
		ID:          "farm_owner",
		Name:        "Farm Owner",
		Description: "Every permission in the tenant",
		Permissions: owner,
	}

	for _, def := range templateDefinitions {
		set, err := catalog.Resolve(def.names)
		if err != nil {
			// templates are static; a miss here is a broken build
			panic(err)
		}
		out[def.id] = Template{ID: def.id, Name: def.name, Description: def.description, Permissions: set}
	}
	return out
}

// Templates lists the system templates ordered by id.
func Templates() []Template {
	out := make([]Template, 0, len(systemTemplates))
	for _, t := range systemTemplates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func TemplateByID(id string) (Template, bool) {
	t, ok := systemTemplates[id]
	return t, ok
}
