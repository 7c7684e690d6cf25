package policy

import (
	"fmt"
	"strings"
)

var attributeOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpIn: true, OpNotIn: true,
	OpContains: true, OpNotContains: true, OpExists: true,
}

func validAttributeName(name string) bool {
	if name == "action" {
		return true
	}
	for _, prefix := range []string{"subject.", "resource."} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return true
		}
	}
	return false
}

func checkCondition(c Condition) error {
	if !validAttributeName(c.Attribute) {
		return fmt.Errorf("attribute %q must be action, subject.* or resource.*", c.Attribute)
	}
	if !attributeOperators[c.Operator] {
		return fmt.Errorf("operator %q is not supported for attribute conditions", c.Operator)
	}
	switch c.Operator {
	case OpIn, OpNotIn:
		if len(c.Values) == 0 {
			return fmt.Errorf("operator %s requires values", c.Operator)
		}
	case OpExists:
		if c.Value != "" && c.Value != "true" && c.Value != "false" {
			return fmt.Errorf("operator exists accepts only true or false")
		}
	default:
		if c.Value == "" {
			return fmt.Errorf("operator %s requires a value", c.Operator)
		}
	}
	return nil
}

// Matches evaluates one attribute condition. A missing attribute never
// matches, except for exists=false.
func (c Condition) Matches(attrs Attributes) bool {
	values, present := attrs.Values(c.Attribute)

	if c.Operator == OpExists {
		want := c.Value != "false"
		return present == want
	}
	if !present {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return len(values) == 1 && values[0] == c.Value
	case OpNotEquals:
		return !(len(values) == 1 && values[0] == c.Value)
	case OpIn:
		return anyIn(values, c.Values)
	case OpNotIn:
		return !anyIn(values, c.Values)
	case OpContains:
		return contains(values, c.Value)
	case OpNotContains:
		return !contains(values, c.Value)
	}
	return false
}

func anyIn(values, set []string) bool {
	for _, v := range values {
		for _, s := range set {
			if v == s {
				return true
			}
		}
	}
	return false
}

// contains checks list membership for list attributes and substring
// containment for scalar ones.
func contains(values []string, needle string) bool {
	if len(values) == 1 {
		return values[0] == needle || strings.Contains(values[0], needle)
	}
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}
