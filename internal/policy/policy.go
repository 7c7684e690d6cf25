package policy

import (
	"fmt"
	"strconv"
	"time"

	policyDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/policy"
)

type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpExists      Operator = "exists"

	OpBetween    Operator = "between"
	OpNotBetween Operator = "not_between"
	OpAfter      Operator = "after"
	OpBefore     Operator = "before"
)

type TimeAttribute string

const (
	AttrTime      TimeAttribute = "environment.time"
	AttrDayOfWeek TimeAttribute = "environment.day_of_week"
	AttrDate      TimeAttribute = "environment.date"
)

// Condition matches a subject, resource or action attribute.
type Condition struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
}

// TimeCondition matches the request time in Timezone, falling back to the
// policy timezone and then the tenant timezone.
type TimeCondition struct {
	Attribute TimeAttribute `json:"attribute"`
	Operator  Operator      `json:"operator"`
	Value     string        `json:"value,omitempty"`
	Values    []string      `json:"values,omitempty"`
	Timezone  string        `json:"timezone,omitempty"`
}

type Policy struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Priority       int             `json:"priority"`
	Effect         Effect          `json:"effect"`
	Conditions     []Condition     `json:"conditions"`
	TimeConditions []TimeCondition `json:"time_conditions"`
	Timezone       string          `json:"timezone,omitempty"`
	IsActive       bool            `json:"is_active"`
	Version        int64           `json:"version"`
	CreatedBy      int64           `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Attributes are the namespaced facts conditions are matched against:
// "subject.*", "resource.*" and "action". Values are strings or string lists.
type Attributes map[string]interface{}

// Values normalizes an attribute to a string list. The bool reports presence.
func (a Attributes) Values(name string) ([]string, bool) {
	raw, ok := a[name]
	if !ok || raw == nil {
		return nil, false
	}
	switch v := raw.(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, scalar(item))
		}
		return out, true
	default:
		return []string{scalar(v)}, true
	}
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func ToDataModel(p *Policy) *policyDatamodel.Policy {
	out := &policyDatamodel.Policy{
		ID:          p.ID,
		TenantID:    p.TenantID,
		Name:        p.Name,
		Description: p.Description,
		Priority:    p.Priority,
		Effect:      string(p.Effect),
		Timezone:    p.Timezone,
		IsActive:    p.IsActive,
		Version:     p.Version,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for _, c := range p.Conditions {
		out.Conditions = append(out.Conditions, policyDatamodel.Condition{
			Attribute: c.Attribute,
			Operator:  string(c.Operator),
			Value:     c.Value,
			Values:    c.Values,
		})
	}
	out.TimeConditions = TimeConditionsToDataModel(p.TimeConditions)
	return out
}

func FromDataModel(p *policyDatamodel.Policy) *Policy {
	out := &Policy{
		ID:          p.ID,
		TenantID:    p.TenantID,
		Name:        p.Name,
		Description: p.Description,
		Priority:    p.Priority,
		Effect:      Effect(p.Effect),
		Timezone:    p.Timezone,
		IsActive:    p.IsActive,
		Version:     p.Version,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for _, c := range p.Conditions {
		out.Conditions = append(out.Conditions, Condition{
			Attribute: c.Attribute,
			Operator:  Operator(c.Operator),
			Value:     c.Value,
			Values:    c.Values,
		})
	}
	out.TimeConditions = TimeConditionsFromDataModel(p.TimeConditions)
	return out
}

func TimeConditionsToDataModel(in []TimeCondition) []policyDatamodel.TimeCondition {
	var out []policyDatamodel.TimeCondition
	for _, c := range in {
		out = append(out, policyDatamodel.TimeCondition{
			Attribute: string(c.Attribute),
			Operator:  string(c.Operator),
			Value:     c.Value,
			Values:    c.Values,
			Timezone:  c.Timezone,
		})
	}
	return out
}

func TimeConditionsFromDataModel(in []policyDatamodel.TimeCondition) []TimeCondition {
	var out []TimeCondition
	for _, c := range in {
		out = append(out, TimeCondition{
			Attribute: TimeAttribute(c.Attribute),
			Operator:  Operator(c.Operator),
			Value:     c.Value,
			Values:    c.Values,
			Timezone:  c.Timezone,
		})
	}
	return out
}
