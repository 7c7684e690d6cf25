package role

import "time"

type Role struct {
	ID            int64     `gorm:"primaryKey"`
	TenantID      int64     `gorm:"column:tenant_id;not null;uniqueIndex:idx_roles_tenant_name"`
	Name          string    `gorm:"column:name;not null;uniqueIndex:idx_roles_tenant_name"`
	Description   string    `gorm:"column:description"`
	PermissionIDs []int64   `gorm:"column:permission_ids;type:text;serializer:json"`
	PolicyIDs     []int64   `gorm:"column:policy_ids;type:text;serializer:json"`
	TemplateID    *string   `gorm:"column:template_id"`
	Version       int64     `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Role) TableName() string {
	return "roles"
}

type UserRole struct {
	TenantID   int64     `gorm:"column:tenant_id;primaryKey"`
	UserID     int64     `gorm:"column:user_id;primaryKey"`
	RoleID     int64     `gorm:"column:role_id;primaryKey;index"`
	AssignedBy int64     `gorm:"column:assigned_by"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
