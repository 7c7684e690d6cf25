package delegation

import (
	"time"

	policyDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/policy"
)

type Restrictions struct {
	TimeConditions []policyDatamodel.TimeCondition `json:"time_conditions,omitempty"`
	ResourceTypes  []string                        `json:"resource_types,omitempty"`
	ResourceIDs    []string                        `json:"resource_ids,omitempty"`
}

type Delegation struct {
	ID              int64        `gorm:"primaryKey"`
	TenantID        int64        `gorm:"column:tenant_id;not null;index:idx_delegations_delegate"`
	DelegatorUserID int64        `gorm:"column:delegator_user_id;not null"`
	DelegateUserID  int64        `gorm:"column:delegate_user_id;not null;index:idx_delegations_delegate"`
	Type            string       `gorm:"column:type;not null"`
	StartDate       time.Time    `gorm:"column:start_date;not null"`
	EndDate         time.Time    `gorm:"column:end_date;not null"`
	Status          string       `gorm:"column:status;not null;default:'active'"`
	PermissionIDs   []int64      `gorm:"column:permission_ids;type:text;serializer:json"`
	RoleID          *int64       `gorm:"column:role_id"`
	Restrictions    Restrictions `gorm:"column:restrictions;type:text;serializer:json"`
	Reason          string       `gorm:"column:reason"`
	Version         int64        `gorm:"column:version;not null;default:1"`
	RevokedAt       *time.Time   `gorm:"column:revoked_at"`
	RevokedBy       *int64       `gorm:"column:revoked_by"`
	CreatedAt       time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (Delegation) TableName() string {
	return "delegations"
}
