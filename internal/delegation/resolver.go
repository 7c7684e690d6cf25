package delegation

import (
	"time"

	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
	"github.com/frahmantamala/ifarm/internal/role"
)

// Request is the part of an access request restrictions are checked against.
type Request struct {
	ResourceType string
	ResourceID   string
	// Location is the tenant timezone for restriction time conditions
	// that name none.
	Location *time.Location
}

// Delegators maps a delegator user id to the roles that user holds now.
type Delegators map[int64][]role.Role

type Skip struct {
	DelegationID int64  `json:"delegation_id"`
	Reason       string `json:"reason"`
}

// Resolution is the delegated half of a user's effective permissions.
type Resolution struct {
	Grants *permission.GrantSet
	// Applied lists the delegations that contributed at least one grant.
	Applied []int64
	// Lapsed lists delegations still stored as active whose window closed.
	Lapsed []int64
	// PolicyIDs are the policies attached to roles reached through
	// role and full_access delegations.
	PolicyIDs []int64
	Skipped   []Skip
}

const (
	SkipInactive       = "inactive"
	SkipNotStarted     = "not_started"
	SkipLapsed         = "lapsed"
	SkipResourceType   = "resource_type_restricted"
	SkipResourceID     = "resource_id_restricted"
	SkipTimeRestricted = "time_restricted"
	SkipBadRestriction = "invalid_restriction"
	SkipRoleNotHeld    = "delegator_role_missing"
	SkipNothingLeft    = "no_delegator_permissions"
)

// Resolve expands the delegations directed at a user into grants at now.
// Grants are derived from each delegator's current roles, so changes to the
// delegator take effect on the next call. Delegated grants never feed other
// delegations.
func Resolve(now time.Time, delegations []Delegation, req Request, delegators Delegators) Resolution {
	res := Resolution{Grants: permission.NewGrantSet()}
	seenPolicy := make(map[int64]bool)

	for i := range delegations {
		d := &delegations[i]

		if !d.ActiveAt(now) {
			switch {
			case d.LapsedAt(now):
				res.Lapsed = append(res.Lapsed, d.ID)
				res.skip(d.ID, SkipLapsed)
			case d.Status == StatusActive:
				res.skip(d.ID, SkipNotStarted)
			default:
				res.skip(d.ID, SkipInactive)
			}
			continue
		}

		if reason := d.Restrictions.check(now, req); reason != "" {
			res.skip(d.ID, reason)
			continue
		}

		roles := delegators[d.DelegatorUserID]
		granted, reached := expand(d, roles)
		if granted.Len() == 0 {
			if d.Type == TypeRole {
				res.skip(d.ID, SkipRoleNotHeld)
			} else {
				res.skip(d.ID, SkipNothingLeft)
			}
			continue
		}

		for name := range granted {
			res.Grants.Add(permission.Grant{
				Permission:          name,
				Source:              permission.SourceDelegation,
				DelegationID:        d.ID,
				DelegatedFromUserID: d.DelegatorUserID,
			})
		}
		res.Applied = append(res.Applied, d.ID)

		for _, id := range role.PolicyIDs(reached) {
			if !seenPolicy[id] {
				seenPolicy[id] = true
				res.PolicyIDs = append(res.PolicyIDs, id)
			}
		}
	}
	return res
}

func (r *Resolution) skip(id int64, reason string) {
	r.Skipped = append(r.Skipped, Skip{DelegationID: id, Reason: reason})
}

// expand returns the permissions a live delegation grants and the delegator
// roles it reaches.
func expand(d *Delegation, delegatorRoles []role.Role) (permission.Set, []role.Role) {
	current := role.EffectivePermissions(delegatorRoles).Names()

	switch d.Type {
	case TypePermission:
		return d.Permissions.Intersect(current), nil
	case TypeRole:
		if d.RoleID == nil {
			return permission.NewSet(), nil
		}
		for _, r := range delegatorRoles {
			if r.ID == *d.RoleID {
				return r.Permissions.Union(permission.NewSet()), []role.Role{r}
			}
		}
		return permission.NewSet(), nil
	case TypeFullAccess:
		return current, delegatorRoles
	}
	return permission.NewSet(), nil
}

func (r Restrictions) check(now time.Time, req Request) string {
	if len(r.ResourceTypes) > 0 && !contains(r.ResourceTypes, req.ResourceType) {
		return SkipResourceType
	}
	if len(r.ResourceIDs) > 0 && (req.ResourceID == "" || !contains(r.ResourceIDs, req.ResourceID)) {
		return SkipResourceID
	}
	if len(r.TimeConditions) > 0 {
		ok, err := policy.EvaluateTimeConditions(r.TimeConditions, now, req.Location)
		if err != nil {
			return SkipBadRestriction
		}
		if !ok {
			return SkipTimeRestricted
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
