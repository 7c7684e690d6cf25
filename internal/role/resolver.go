package role

import "github.com/frahmantamala/ifarm/internal/permission"

// EffectivePermissions is the union of the roles' permissions, each grant
// tagged with the role it came from. No roles yields an empty set.
func EffectivePermissions(roles []Role) *permission.GrantSet {
	gs := permission.NewGrantSet()
	for _, r := range roles {
		for name := range r.Permissions {
			gs.Add(permission.Grant{
				Permission: name,
				Source:     permission.SourceRole,
				RoleID:     r.ID,
			})
		}
	}
	return gs
}

// PolicyIDs collects the distinct policy ids attached to roles.
func PolicyIDs(roles []Role) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, r := range roles {
		for _, id := range r.PolicyIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
