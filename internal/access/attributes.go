package access

import (
	"github.com/frahmantamala/ifarm/internal/policy"
)

// attributes builds the namespaced facts policy conditions match against.
// Caller supplied attributes never override the built-in ones.
func attributes(req Request, roleNames []string) policy.Attributes {
	attrs := policy.Attributes{}

	for k, v := range req.Subject.Attributes {
		attrs["subject."+k] = v
	}
	for k, v := range req.Resource.Attributes {
		attrs["resource."+k] = v
	}

	attrs["action"] = string(req.Action)
	attrs["subject.user_id"] = req.Subject.UserID
	attrs["subject.tenant_id"] = req.Subject.TenantID
	attrs["subject.super_admin"] = req.Subject.SuperAdmin
	attrs["subject.roles"] = append([]string{}, roleNames...)
	if req.Subject.ViaDelegationID != 0 {
		attrs["subject.via_delegation_id"] = req.Subject.ViaDelegationID
	}

	attrs["resource.type"] = string(req.Resource.Type)
	attrs["resource.tenant_id"] = req.tenantOf()
	if req.Resource.ID != "" {
		attrs["resource.id"] = req.Resource.ID
	}
	return attrs
}
