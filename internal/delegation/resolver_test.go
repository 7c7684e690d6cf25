package delegation_test

import (
	"time"

	"github.com/frahmantamala/ifarm/internal/delegation"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
	"github.com/frahmantamala/ifarm/internal/role"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Delegation Resolver", func() {
	const (
		owner    = int64(1)
		delegate = int64(2)
	)

	var (
		now        time.Time
		kampala    *time.Location
		req        delegation.Request
		delegators delegation.Delegators
		manager    role.Role
	)

	BeforeEach(func() {
		var err error
		kampala, err = time.LoadLocation("Africa/Kampala")
		Expect(err).NotTo(HaveOccurred())
		// Wednesday 09:00 in Kampala.
		now = time.Date(2026, 3, 4, 9, 0, 0, 0, kampala)
		req = delegation.Request{ResourceType: "animal", ResourceID: "17", Location: kampala}

		manager = role.Role{ID: 10, Permissions: permission.NewSet("view_animals", "edit_animals"), PolicyIDs: []int64{3}}
		delegators = delegation.Delegators{owner: {manager}}
	})

	active := func(id int64, t delegation.Type) delegation.Delegation {
		return delegation.Delegation{
			ID:              id,
			TenantID:        1,
			DelegatorUserID: owner,
			DelegateUserID:  delegate,
			Type:            t,
			StartDate:       now.Add(-24 * time.Hour),
			EndDate:         now.Add(24 * time.Hour),
			Status:          delegation.StatusActive,
		}
	}

	It("should grant nothing without delegations", func() {
		res := delegation.Resolve(now, nil, req, delegators)
		Expect(res.Grants.Len()).To(Equal(0))
		Expect(res.Applied).To(BeEmpty())
	})

	It("should ignore a delegation whose end date has passed even if stored as active", func() {
		d := active(5, delegation.TypeFullAccess)
		d.EndDate = now.Add(-time.Minute)

		res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Len()).To(Equal(0))
		Expect(res.Lapsed).To(Equal([]int64{5}))
	})

	It("should treat both window bounds as inclusive", func() {
		d := active(5, delegation.TypeFullAccess)
		d.EndDate = now

		res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Has("edit_animals")).To(BeTrue())

		d.StartDate = now.Add(time.Second)
		d.EndDate = now.Add(time.Hour)
		res = delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Len()).To(Equal(0))
		Expect(res.Skipped[0].Reason).To(Equal(delegation.SkipNotStarted))
	})

	It("should skip revoked delegations", func() {
		d := active(5, delegation.TypeFullAccess)
		d.Status = delegation.StatusRevoked

		res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Len()).To(Equal(0))
		Expect(res.Lapsed).To(BeEmpty())
	})

	It("should tag grants with the delegation and delegator", func() {
		res := delegation.Resolve(now, []delegation.Delegation{active(5, delegation.TypeFullAccess)}, req, delegators)

		grant, ok := res.Grants.Source("edit_animals", 0)
		Expect(ok).To(BeTrue())
		Expect(grant.Source).To(Equal(permission.SourceDelegation))
		Expect(grant.DelegationID).To(Equal(int64(5)))
		Expect(grant.DelegatedFromUserID).To(Equal(owner))
		Expect(res.Applied).To(Equal([]int64{5}))
		Expect(res.PolicyIDs).To(Equal([]int64{3}))
	})

	It("should expand full access to the delegator's current roles", func() {
		d := active(5, delegation.TypeFullAccess)

		res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Has("view_sales")).To(BeFalse())

		accountant := role.Role{ID: 11, Permissions: permission.NewSet("view_sales")}
		delegators[owner] = []role.Role{manager, accountant}

		res = delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Has("view_sales")).To(BeTrue())
	})

	It("should not chain through the delegator's own delegations", func() {
		delegators[owner] = nil
		res := delegation.Resolve(now, []delegation.Delegation{active(5, delegation.TypeFullAccess)}, req, delegators)
		Expect(res.Grants.Len()).To(Equal(0))
		Expect(res.Skipped[0].Reason).To(Equal(delegation.SkipNothingLeft))
	})

	It("should intersect permission delegations with what the delegator holds now", func() {
		d := active(5, delegation.TypePermission)
		d.Permissions = permission.NewSet("edit_animals", "delete_animals")

		res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Names().Names()).To(Equal([]string{"edit_animals"}))
		Expect(res.PolicyIDs).To(BeEmpty())
	})

	It("should drop a role delegation once the delegator loses the role", func() {
		d := active(5, delegation.TypeRole)
		roleID := manager.ID
		d.RoleID = &roleID

		res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Has("view_animals")).To(BeTrue())

		delegators[owner] = nil
		res = delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
		Expect(res.Grants.Len()).To(Equal(0))
		Expect(res.Skipped[0].Reason).To(Equal(delegation.SkipRoleNotHeld))
	})

	Describe("restrictions", func() {
		It("should limit by resource type", func() {
			d := active(5, delegation.TypeFullAccess)
			d.Restrictions.ResourceTypes = []string{"farm"}

			res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
			Expect(res.Grants.Len()).To(Equal(0))
			Expect(res.Skipped[0].Reason).To(Equal(delegation.SkipResourceType))
		})

		It("should limit by resource id and refuse collection requests", func() {
			d := active(5, delegation.TypeFullAccess)
			d.Restrictions.ResourceIDs = []string{"17"}

			res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
			Expect(res.Grants.Has("view_animals")).To(BeTrue())

			req.ResourceID = ""
			res = delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
			Expect(res.Grants.Len()).To(Equal(0))
		})

		It("should apply time conditions in the tenant timezone", func() {
			d := active(5, delegation.TypeFullAccess)
			d.Restrictions.TimeConditions = []policy.TimeCondition{{
				Attribute: policy.AttrTime, Operator: policy.OpBetween, Values: []string{"08:00", "17:00"},
			}}

			res := delegation.Resolve(now, []delegation.Delegation{d}, req, delegators)
			Expect(res.Grants.Has("view_animals")).To(BeTrue())

			evening := time.Date(2026, 3, 4, 20, 0, 0, 0, kampala)
			res = delegation.Resolve(evening, []delegation.Delegation{d}, req, delegators)
			Expect(res.Grants.Len()).To(Equal(0))
			Expect(res.Skipped[0].Reason).To(Equal(delegation.SkipTimeRestricted))
		})
	})
})
