package access

import (
	"time"

	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
)

// Deny and allow reasons. Policy reasons carry the policy id as a suffix.
const (
	ReasonGranted              = "granted"
	ReasonMissingPermission    = "missing_permission"
	ReasonPolicyDenied         = "policy_denied"
	ReasonPolicyAllowed        = "policy_allowed"
	ReasonMalformedEnvironment = "malformed_environment"
	ReasonUnknownPermission    = "unknown_permission"
	ReasonCrossTenant          = "cross_tenant"
	ReasonSuperAdminRead       = "super_admin_read"
	ReasonStoreUnavailable     = "store_unavailable"
	ReasonExpiredDelegation    = "expired_delegation"
	ReasonUnknownTenant        = "unknown_tenant"
)

type Resource struct {
	Type permission.ResourceType `json:"type"`
	// ID is empty for collection requests.
	ID string `json:"id,omitempty"`
	// TenantID is the owning tenant. Zero means the subject's tenant.
	TenantID   int64                  `json:"tenant_id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type Environment struct {
	Time time.Time `json:"time"`
	// Timezone overrides the tenant timezone for this request.
	Timezone  string `json:"timezone,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

type Request struct {
	Subject     principal.Subject `json:"subject"`
	Action      permission.Action `json:"action"`
	Resource    Resource          `json:"resource"`
	Environment Environment       `json:"environment"`
}

type Decision struct {
	Allowed             bool          `json:"allowed"`
	Reason              string        `json:"reason"`
	Permission          string        `json:"permission,omitempty"`
	PolicyID            int64         `json:"policy_id,omitempty"`
	DelegationID        int64         `json:"delegation_id,omitempty"`
	DelegatedFromUserID int64         `json:"delegated_from_user_id,omitempty"`
	Trace               []policy.Step `json:"trace,omitempty"`
}

func allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// tenantOf is the tenant the resource lives in.
func (r Request) tenantOf() int64 {
	if r.Resource.TenantID != 0 {
		return r.Resource.TenantID
	}
	return r.Subject.TenantID
}
