package delegation

import (
	"time"

	delegationDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/delegation"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
)

type Type string

const (
	TypePermission Type = "permission"
	TypeRole       Type = "role"
	TypeFullAccess Type = "full_access"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Restrictions narrow where a delegation applies. Empty lists do not restrict.
type Restrictions struct {
	TimeConditions []policy.TimeCondition `json:"time_conditions,omitempty"`
	ResourceTypes  []string               `json:"resource_types,omitempty"`
	ResourceIDs    []string               `json:"resource_ids,omitempty"`
}

func (r Restrictions) Empty() bool {
	return len(r.TimeConditions) == 0 && len(r.ResourceTypes) == 0 && len(r.ResourceIDs) == 0
}

type Delegation struct {
	ID              int64          `json:"id"`
	TenantID        int64          `json:"tenant_id"`
	DelegatorUserID int64          `json:"delegator_user_id"`
	DelegateUserID  int64          `json:"delegate_user_id"`
	Type            Type           `json:"type"`
	StartDate       time.Time      `json:"start_date"`
	EndDate         time.Time      `json:"end_date"`
	Status          Status         `json:"status"`
	Permissions     permission.Set `json:"permissions,omitempty"`
	RoleID          *int64         `json:"role_id,omitempty"`
	Restrictions    Restrictions   `json:"restrictions"`
	Reason          string         `json:"reason,omitempty"`
	Version         int64          `json:"version"`
	RevokedAt       *time.Time     `json:"revoked_at,omitempty"`
	RevokedBy       *int64         `json:"revoked_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Terminal reports whether the stored status can no longer change.
func (d *Delegation) Terminal() bool {
	return d.Status == StatusRevoked || d.Status == StatusExpired
}

// ActiveAt reports whether the delegation is in force at now. Both window
// bounds are inclusive.
func (d *Delegation) ActiveAt(now time.Time) bool {
	return d.Status == StatusActive && !now.Before(d.StartDate) && !now.After(d.EndDate)
}

// LapsedAt reports a delegation that still reads active but whose window has
// closed. It is treated as expired without being persisted.
func (d *Delegation) LapsedAt(now time.Time) bool {
	return d.Status == StatusActive && now.After(d.EndDate)
}

// EffectiveStatus is the status as seen at now, with lapsed windows reported
// as expired.
func (d *Delegation) EffectiveStatus(now time.Time) Status {
	if d.LapsedAt(now) {
		return StatusExpired
	}
	return d.Status
}

func ToDataModel(d *Delegation, catalog *permission.Catalog) (*delegationDatamodel.Delegation, error) {
	ids, err := catalog.IDs(d.Permissions)
	if err != nil {
		return nil, err
	}
	return &delegationDatamodel.Delegation{
		ID:              d.ID,
		TenantID:        d.TenantID,
		DelegatorUserID: d.DelegatorUserID,
		DelegateUserID:  d.DelegateUserID,
		Type:            string(d.Type),
		StartDate:       d.StartDate,
		EndDate:         d.EndDate,
		Status:          string(d.Status),
		PermissionIDs:   ids,
		RoleID:          d.RoleID,
		Restrictions: delegationDatamodel.Restrictions{
			TimeConditions: policy.TimeConditionsToDataModel(d.Restrictions.TimeConditions),
			ResourceTypes:  d.Restrictions.ResourceTypes,
			ResourceIDs:    d.Restrictions.ResourceIDs,
		},
		Reason:    d.Reason,
		Version:   d.Version,
		RevokedAt: d.RevokedAt,
		RevokedBy: d.RevokedBy,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func FromDataModel(row *delegationDatamodel.Delegation, catalog *permission.Catalog) (*Delegation, error) {
	perms, err := catalog.ByIDs(row.PermissionIDs)
	if err != nil {
		return nil, err
	}
	return &Delegation{
		ID:              row.ID,
		TenantID:        row.TenantID,
		DelegatorUserID: row.DelegatorUserID,
		DelegateUserID:  row.DelegateUserID,
		Type:            Type(row.Type),
		StartDate:       row.StartDate,
		EndDate:         row.EndDate,
		Status:          Status(row.Status),
		Permissions:     perms,
		RoleID:          row.RoleID,
		Restrictions: Restrictions{
			TimeConditions: policy.TimeConditionsFromDataModel(row.Restrictions.TimeConditions),
			ResourceTypes:  row.Restrictions.ResourceTypes,
			ResourceIDs:    row.Restrictions.ResourceIDs,
		},
		Reason:    row.Reason,
		Version:   row.Version,
		RevokedAt: row.RevokedAt,
		RevokedBy: row.RevokedBy,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
