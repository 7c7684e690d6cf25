package role_test

import (
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/role"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Role Resolver", func() {
	It("should return an empty set for a user without roles", func() {
		gs := role.EffectivePermissions(nil)
		Expect(gs.Len()).To(Equal(0))
		Expect(gs.Has("view_animals")).To(BeFalse())
	})

	It("should union permissions across roles and keep provenance", func() {
		roles := []role.Role{
			{ID: 1, Permissions: permission.NewSet("view_animals", "edit_animals")},
			{ID: 2, Permissions: permission.NewSet("view_animals", "view_farms")},
		}

		gs := role.EffectivePermissions(roles)
		Expect(gs.Names().Names()).To(Equal([]string{"edit_animals", "view_animals", "view_farms"}))

		prov := gs.Provenance("view_animals")
		Expect(prov).To(HaveLen(2))
		Expect([]int64{prov[0].RoleID, prov[1].RoleID}).To(ConsistOf(int64(1), int64(2)))
	})

	It("should collect distinct policy ids in first-seen order", func() {
		roles := []role.Role{
			{ID: 1, PolicyIDs: []int64{7, 3}},
			{ID: 2, PolicyIDs: []int64{3, 9}},
		}
		Expect(role.PolicyIDs(roles)).To(Equal([]int64{7, 3, 9}))
	})
})

var _ = Describe("Role Templates", func() {
	It("should expose every system template ordered by id", func() {
		var ids []string
		for _, t := range role.Templates() {
			ids = append(ids, t.ID)
		}
		Expect(ids).To(Equal([]string{"accountant", "farm_manager", "farm_owner", "helper", "hr_officer", "veterinarian"}))
	})

	It("should give farm_owner the whole catalog", func() {
		owner, ok := role.TemplateByID("farm_owner")
		Expect(ok).To(BeTrue())
		Expect(owner.Permissions.Len()).To(Equal(len(permission.System().All())))
	})

	It("should keep helper read-only", func() {
		helper, ok := role.TemplateByID("helper")
		Expect(ok).To(BeTrue())
		Expect(helper.Permissions.Names()).To(Equal([]string{"view_animals", "view_farms"}))
	})

	It("should report unknown templates", func() {
		_, ok := role.TemplateByID("shepherd")
		Expect(ok).To(BeFalse())
	})
})
