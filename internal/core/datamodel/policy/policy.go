package policy

import "time"

type Condition struct {
	Attribute string   `json:"attribute"`
	Operator  string   `json:"operator"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
}

type TimeCondition struct {
	Attribute string   `json:"attribute"`
	Operator  string   `json:"operator"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
}

type Policy struct {
	ID             int64           `gorm:"primaryKey"`
	TenantID       int64           `gorm:"column:tenant_id;not null;uniqueIndex:idx_policies_tenant_name"`
	Name           string          `gorm:"column:name;not null;uniqueIndex:idx_policies_tenant_name"`
	Description    string          `gorm:"column:description"`
	Priority       int             `gorm:"column:priority;not null"`
	Effect         string          `gorm:"column:effect;not null"`
	Conditions     []Condition     `gorm:"column:conditions;type:text;serializer:json"`
	TimeConditions []TimeCondition `gorm:"column:time_conditions;type:text;serializer:json"`
	Timezone       string          `gorm:"column:timezone"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true"`
	Version        int64           `gorm:"column:version;not null;default:1"`
	CreatedBy      int64           `gorm:"column:created_by"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Policy) TableName() string {
	return "policies"
}
