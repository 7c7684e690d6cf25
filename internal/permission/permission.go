package permission

import (
	"encoding/json"
	"fmt"
)

type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
)

var actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage, ActionApprove, ActionExport}

func ParseAction(s string) (Action, error) {
	for _, a := range actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// ReadOnly reports whether the action never mutates state.
func (a Action) ReadOnly() bool {
	return a == ActionView || a == ActionExport
}

func (a *Action) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

type ResourceType string

const (
	ResourceAnimal           ResourceType = "animal"
	ResourceFarm             ResourceType = "farm"
	ResourceBreedingRecord   ResourceType = "breeding_record"
	ResourceEmployee         ResourceType = "employee"
	ResourcePayroll          ResourceType = "payroll"
	ResourceSale             ResourceType = "sale"
	ResourceTax              ResourceType = "tax"
	ResourceVeterinaryRecord ResourceType = "veterinary_record"
	ResourceReport           ResourceType = "report"
	ResourceRole             ResourceType = "role"
	ResourcePolicy           ResourceType = "policy"
	ResourceDelegation       ResourceType = "delegation"
	ResourceAuditLog         ResourceType = "audit_log"
	ResourceUser             ResourceType = "user"
	ResourceTenant           ResourceType = "tenant"
)

type resourceInfo struct {
	plural   string
	category Category
}

var resources = map[ResourceType]resourceInfo{
	ResourceAnimal:           {"animals", CategoryLivestock},
	ResourceFarm:             {"farms", CategoryFarm},
	ResourceBreedingRecord:   {"breeding_records", CategoryBreeding},
	ResourceEmployee:         {"employees", CategoryHR},
	ResourcePayroll:          {"payroll", CategoryHR},
	ResourceSale:             {"sales", CategoryFinance},
	ResourceTax:              {"taxes", CategoryFinance},
	ResourceVeterinaryRecord: {"veterinary_records", CategoryHealth},
	ResourceReport:           {"reports", CategoryAdministration},
	ResourceRole:             {"roles", CategoryAdministration},
	ResourcePolicy:           {"policies", CategoryAdministration},
	ResourceDelegation:       {"delegations", CategoryAdministration},
	ResourceAuditLog:         {"audit_logs", CategoryAdministration},
	ResourceUser:             {"users", CategoryAdministration},
	ResourceTenant:           {"tenants", CategoryAdministration},
}

func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	if _, ok := resources[rt]; !ok {
		return "", fmt.Errorf("unknown resource type %q", s)
	}
	return rt, nil
}

func (r ResourceType) Plural() string {
	return resources[r].plural
}

func (r ResourceType) Category() Category {
	return resources[r].category
}

func (r *ResourceType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseResourceType(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

type Category string

const (
	CategoryLivestock      Category = "livestock"
	CategoryFarm           Category = "farm"
	CategoryBreeding       Category = "breeding"
	CategoryHR             Category = "hr"
	CategoryFinance        Category = "finance"
	CategoryHealth         Category = "health"
	CategoryAdministration Category = "administration"
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryLivestock, CategoryFarm, CategoryBreeding, CategoryHR, CategoryFinance, CategoryHealth, CategoryAdministration:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Permission is an immutable system record. Tenants never create or edit these.
type Permission struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Category     Category     `json:"category"`
	Action       Action       `json:"action"`
	ResourceType ResourceType `json:"resource_type"`
	Description  string       `json:"description"`
}

// RequiredPermission maps an action on a resource type to its permission name,
// e.g. (view, animal) -> "view_animals".
func RequiredPermission(action Action, resourceType ResourceType) string {
	return string(action) + "_" + resourceType.Plural()
}
