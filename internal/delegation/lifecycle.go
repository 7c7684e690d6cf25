package delegation

import (
	"fmt"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/common/validation"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
)

// Validate checks the shape of a new delegation at now. Whether the delegator
// holds a delegated role is checked by the service against the stores.
func (d *Delegation) Validate(now time.Time) *internal.AppError {
	v := validation.NewValidator()
	v.Field("delegate_user_id", d.DelegateUserID).MinInt(1, internal.ErrCodeInvalidDelegation)
	v.Field("type", string(d.Type)).OneOf(string(TypePermission), string(TypeRole), string(TypeFullAccess))
	v.Field("start_date", d.StartDate).Required()
	v.Field("end_date", d.EndDate).Required()
	v.Field("reason", d.Reason).MaxLength(500)

	v.Field("delegate_user_id", d.DelegateUserID).Custom(func(interface{}) *internal.AppError {
		if d.DelegateUserID == d.DelegatorUserID {
			return internal.NewValidationFieldError("delegate_user_id", "cannot delegate to yourself", internal.ErrCodeInvalidDelegation)
		}
		return nil
	})
	v.Field("end_date", d.EndDate).Custom(func(interface{}) *internal.AppError {
		if !d.EndDate.After(d.StartDate) {
			return internal.NewValidationFieldError("end_date", "end_date must be after start_date", internal.ErrCodeInvalidDelegation)
		}
		if !d.EndDate.After(now) {
			return internal.NewValidationFieldError("end_date", "end_date must be in the future", internal.ErrCodeInvalidDelegation)
		}
		return nil
	})

	switch d.Type {
	case TypePermission:
		v.Field("permissions", d.Permissions.Names()).Required()
		v.Field("role_id", d.RoleID).Custom(mustBeEmpty("role_id", d.RoleID == nil))
	case TypeRole:
		v.Field("role_id", d.RoleID).Required()
		v.Field("permissions", d.Permissions).Custom(mustBeEmpty("permissions", d.Permissions.Len() == 0))
	case TypeFullAccess:
		v.Field("role_id", d.RoleID).Custom(mustBeEmpty("role_id", d.RoleID == nil))
		v.Field("permissions", d.Permissions).Custom(mustBeEmpty("permissions", d.Permissions.Len() == 0))
	}

	for i, rt := range d.Restrictions.ResourceTypes {
		rt := rt
		field := fmt.Sprintf("restrictions.resource_types[%d]", i)
		v.Field(field, rt).Custom(func(interface{}) *internal.AppError {
			if _, err := permission.ParseResourceType(rt); err != nil {
				return internal.NewValidationFieldError(field, err.Error(), internal.ErrCodeInvalidDelegation)
			}
			return nil
		})
	}
	policy.AddTimeConditionRules(v, "restrictions.time_conditions", d.Restrictions.TimeConditions)

	return v.ValidateAs(internal.ErrInvalidDelegation)
}

func mustBeEmpty(field string, empty bool) func(interface{}) *internal.AppError {
	return func(interface{}) *internal.AppError {
		if !empty {
			return internal.NewValidationFieldError(field, field+" is not allowed for this delegation type", internal.ErrCodeInvalidDelegation)
		}
		return nil
	}
}

// Revoke moves an active delegation to revoked. A revoked, expired or lapsed
// delegation is terminal and is never reactivated.
func (d *Delegation) Revoke(actorID int64, at time.Time) error {
	if d.Terminal() || d.LapsedAt(at) {
		return internal.ErrDelegationTerminal
	}
	d.Status = StatusRevoked
	d.RevokedAt = &at
	d.RevokedBy = &actorID
	d.Version++
	d.UpdatedAt = at
	return nil
}
