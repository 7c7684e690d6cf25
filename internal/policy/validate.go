package policy

import (
	"fmt"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/common/validation"
)

// Validate rejects a policy that could not be evaluated deterministically.
// Malformed conditions fail with InvalidPolicyCondition and field details.
func (p *Policy) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", p.Name).Required().MaxLength(100)
	v.Field("effect", string(p.Effect)).OneOf(string(EffectAllow), string(EffectDeny))
	v.Field("priority", p.Priority).MinInt(0, internal.ErrCodeValidationFailed)

	if p.Timezone != "" {
		v.Field("timezone", p.Timezone).Custom(validTimezone("timezone"))
	}

	for i, c := range p.Conditions {
		c := c
		field := fmt.Sprintf("conditions[%d]", i)
		v.Field(field, c).Custom(func(interface{}) *internal.AppError {
			if err := checkCondition(c); err != nil {
				return internal.NewValidationFieldError(field, err.Error(), internal.ErrCodeInvalidPolicyCondition)
			}
			return nil
		})
	}

	AddTimeConditionRules(v, "time_conditions", p.TimeConditions)

	return v.ValidateAs(internal.ErrInvalidPolicyCondition)
}

// AddTimeConditionRules registers checks for a list of time conditions on v.
func AddTimeConditionRules(v *validation.ValidationBuilder, prefix string, conds []TimeCondition) {
	for i, c := range conds {
		c := c
		field := fmt.Sprintf("%s[%d]", prefix, i)
		v.Field(field, c).Custom(func(interface{}) *internal.AppError {
			if err := checkTimeCondition(c); err != nil {
				return internal.NewValidationFieldError(field, err.Error(), internal.ErrCodeInvalidPolicyCondition)
			}
			return nil
		})
	}
}

func validTimezone(field string) func(interface{}) *internal.AppError {
	return func(value interface{}) *internal.AppError {
		tz, _ := value.(string)
		if _, err := time.LoadLocation(tz); err != nil {
			return internal.NewValidationFieldError(field, fmt.Sprintf("unknown timezone %q", tz), internal.ErrCodeInvalidTimezone)
		}
		return nil
	}
}
