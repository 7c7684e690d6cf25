package access

import "time"

type DecideDTO struct {
	// UserID asks on behalf of another user of the caller's tenant.
	UserID             int64                  `json:"user_id,omitempty"`
	Action             string                 `json:"action"`
	ResourceType       string                 `json:"resource_type"`
	ResourceID         string                 `json:"resource_id,omitempty"`
	ResourceTenantID   int64                  `json:"resource_tenant_id,omitempty"`
	ResourceAttributes map[string]interface{} `json:"resource_attributes,omitempty"`
	// Time defaults to the server clock.
	Time     *time.Time `json:"time,omitempty"`
	Timezone string     `json:"timezone,omitempty"`
}
