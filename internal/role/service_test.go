package role_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/frahmantamala/ifarm/internal"
	roleDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/role"
	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
	"github.com/frahmantamala/ifarm/internal/role"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// MockRepository implements role.RepositoryAPI for testing
type MockRepository struct {
	roles       map[int64]*roleDatamodel.Role
	assignments map[[3]int64]bool
	nextID      int64
	shouldFail  bool
	failError   error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		roles:       make(map[int64]*roleDatamodel.Role),
		assignments: make(map[[3]int64]bool),
	}
}

func (m *MockRepository) SetShouldFail(shouldFail bool, err error) {
	m.shouldFail = shouldFail
	m.failError = err
}

func (m *MockRepository) List(ctx context.Context, tenantID int64) ([]*roleDatamodel.Role, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	var out []*roleDatamodel.Role
	for _, r := range m.roles {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockRepository) GetByID(ctx context.Context, tenantID, id int64) (*roleDatamodel.Role, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	r, ok := m.roles[id]
	if !ok || r.TenantID != tenantID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MockRepository) GetByName(ctx context.Context, tenantID int64, name string) (*roleDatamodel.Role, error) {
	for _, r := range m.roles {
		if r.TenantID == tenantID && r.Name == name {
			return r, nil
		}
	}
	return nil, nil
}

func (m *MockRepository) Create(ctx context.Context, r *roleDatamodel.Role) error {
	if m.shouldFail {
		return m.failError
	}
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.roles[r.ID] = &cp
	return nil
}

func (m *MockRepository) Update(ctx context.Context, r *roleDatamodel.Role, expectedVersion int64) error {
	stored, ok := m.roles[r.ID]
	if !ok || stored.Version != expectedVersion {
		return internal.ErrVersionConflict
	}
	cp := *r
	m.roles[r.ID] = &cp
	return nil
}

func (m *MockRepository) Delete(ctx context.Context, tenantID, id int64) error {
	delete(m.roles, id)
	for k := range m.assignments {
		if k[0] == tenantID && k[1] == id {
			delete(m.assignments, k)
		}
	}
	return nil
}

func (m *MockRepository) Assign(ctx context.Context, a *roleDatamodel.UserRole) error {
	m.assignments[[3]int64{a.TenantID, a.RoleID, a.UserID}] = true
	return nil
}

func (m *MockRepository) Unassign(ctx context.Context, tenantID, roleID, userID int64) error {
	delete(m.assignments, [3]int64{tenantID, roleID, userID})
	return nil
}

func (m *MockRepository) RolesForUser(ctx context.Context, tenantID, userID int64) ([]*roleDatamodel.Role, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	var out []*roleDatamodel.Role
	for k := range m.assignments {
		if k[0] == tenantID && k[2] == userID {
			if r, ok := m.roles[k[1]]; ok {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (m *MockRepository) UsersForRole(ctx context.Context, tenantID, roleID int64) ([]int64, error) {
	var out []int64
	for k := range m.assignments {
		if k[0] == tenantID && k[1] == roleID {
			out = append(out, k[2])
		}
	}
	return out, nil
}

type stubPolicies struct {
	known map[int64]int64 // policy id -> tenant id
}

func (s stubPolicies) PoliciesByIDs(ctx context.Context, tenantID int64, ids []int64) ([]policy.Policy, error) {
	var out []policy.Policy
	for _, id := range ids {
		if t, ok := s.known[id]; ok && t == tenantID {
			out = append(out, policy.Policy{ID: id, TenantID: t})
		}
	}
	return out, nil
}

type stubUsers map[int64]int64 // user id -> tenant id

func (s stubUsers) InTenant(ctx context.Context, tenantID, userID int64) (bool, error) {
	t, ok := s[userID]
	return ok && t == tenantID, nil
}

var _ = Describe("Role Service", func() {
	var (
		ctx      context.Context
		mockRepo *MockRepository
		service  *role.Service
		received []*events.AccessChangedEvent
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		mockRepo = NewMockRepository()
		bus := events.NewEventBus(logger)
		received = nil
		bus.SubscribeAll(events.ChangeTypes, func(ctx context.Context, e events.Event) error {
			received = append(received, e.(*events.AccessChangedEvent))
			return nil
		})
		policies := stubPolicies{known: map[int64]int64{5: 1, 6: 2}}
		users := stubUsers{42: 1, 77: 2}
		service = role.NewService(mockRepo, permission.System(), policies, users, bus, logger)
	})

	Describe("Create", func() {
		It("should clone a template and add extra permissions", func() {
			r, err := service.Create(ctx, 1, 9, role.CreateRoleDTO{
				Name:        "Yard hand",
				TemplateID:  "helper",
				Permissions: []string{"view_reports"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Version).To(Equal(int64(1)))
			Expect(r.TemplateID).To(Equal("helper"))
			Expect(r.Permissions.Names()).To(Equal([]string{"view_animals", "view_farms", "view_reports"}))

			Expect(received).To(HaveLen(1))
			Expect(received[0].EventType()).To(Equal(events.EventTypeRoleChanged))
			Expect(received[0].Operation).To(Equal(events.OpCreate))
		})

		It("should leave the template untouched when the clone changes", func() {
			r, err := service.Create(ctx, 1, 9, role.CreateRoleDTO{Name: "Yard hand", TemplateID: "helper"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.AddPermissions(ctx, 1, 9, r.ID, role.PermissionsChangeDTO{
				Permissions: []string{"edit_animals"},
				Version:     r.Version,
			})
			Expect(err).NotTo(HaveOccurred())

			helper, _ := role.TemplateByID("helper")
			Expect(helper.Permissions.Has("edit_animals")).To(BeFalse())
		})

		It("should reject unknown permission names", func() {
			_, err := service.Create(ctx, 1, 9, role.CreateRoleDTO{
				Name:        "Broken",
				Permissions: []string{"fly_animals"},
			})
			Expect(errors.Is(err, internal.ErrUnknownPermission)).To(BeTrue())
			Expect(mockRepo.roles).To(BeEmpty())
			Expect(received).To(BeEmpty())
		})

		It("should reject an unknown template", func() {
			_, err := service.Create(ctx, 1, 9, role.CreateRoleDTO{Name: "x", TemplateID: "shepherd"})
			Expect(errors.Is(err, internal.ErrTemplateNotFound)).To(BeTrue())
		})

		It("should reject policies from another tenant", func() {
			_, err := service.Create(ctx, 1, 9, role.CreateRoleDTO{Name: "x", PolicyIDs: []int64{6}})
			Expect(errors.Is(err, internal.ErrPolicyNotFound)).To(BeTrue())
		})

		It("should reject duplicate names within a tenant", func() {
			_, err := service.Create(ctx, 1, 9, role.CreateRoleDTO{Name: "Clerk"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, 1, 9, role.CreateRoleDTO{Name: "Clerk"})
			Expect(errors.Is(err, internal.ErrDuplicateName)).To(BeTrue())

			_, err = service.Create(ctx, 2, 9, role.CreateRoleDTO{Name: "Clerk"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should require a name", func() {
			_, err := service.Create(ctx, 1, 9, role.CreateRoleDTO{})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})

		It("should wrap repository failures", func() {
			mockRepo.SetShouldFail(true, errors.New("db down"))
			_, err := service.List(ctx, 1)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeInternal))
		})
	})

	Describe("Update", func() {
		var existing *role.Role

		BeforeEach(func() {
			var err error
			existing, err = service.Create(ctx, 1, 9, role.CreateRoleDTO{Name: "Clerk", Permissions: []string{"view_sales"}})
			Expect(err).NotTo(HaveOccurred())
			received = nil
		})

		It("should bump the version on each write", func() {
			updated, err := service.Update(ctx, 1, 9, existing.ID, role.UpdateRoleDTO{
				Name:        "Senior clerk",
				Permissions: []string{"view_sales", "edit_sales"},
				PolicyIDs:   []int64{5},
				Version:     1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Version).To(Equal(int64(2)))
			Expect(updated.PolicyIDs).To(Equal([]int64{5}))
			Expect(received).To(HaveLen(1))
			Expect(received[0].Operation).To(Equal(events.OpUpdate))
		})

		It("should reject a stale version without changing the role", func() {
			_, err := service.AddPermissions(ctx, 1, 9, existing.ID, role.PermissionsChangeDTO{
				Permissions: []string{"edit_sales"},
				Version:     1,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.AddPermissions(ctx, 1, 9, existing.ID, role.PermissionsChangeDTO{
				Permissions: []string{"delete_sales"},
				Version:     1,
			})
			Expect(errors.Is(err, internal.ErrVersionConflict)).To(BeTrue())

			got, err := service.Get(ctx, 1, existing.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Permissions.Has("delete_sales")).To(BeFalse())
			Expect(got.Version).To(Equal(int64(2)))
		})

		It("should remove permissions", func() {
			updated, err := service.RemovePermissions(ctx, 1, 9, existing.ID, role.PermissionsChangeDTO{
				Permissions: []string{"view_sales"},
				Version:     1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Permissions.Len()).To(Equal(0))
		})

		It("should attach and detach policies idempotently", func() {
			r, err := service.AttachPolicies(ctx, 1, 9, existing.ID, role.PoliciesChangeDTO{PolicyIDs: []int64{5, 5}, Version: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.PolicyIDs).To(Equal([]int64{5}))

			r, err = service.AttachPolicies(ctx, 1, 9, existing.ID, role.PoliciesChangeDTO{PolicyIDs: []int64{5}, Version: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.PolicyIDs).To(Equal([]int64{5}))

			r, err = service.DetachPolicies(ctx, 1, 9, existing.ID, role.PoliciesChangeDTO{PolicyIDs: []int64{5}, Version: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.PolicyIDs).To(BeEmpty())
		})

		It("should not find a role from another tenant", func() {
			_, err := service.Get(ctx, 2, existing.ID)
			Expect(errors.Is(err, internal.ErrRoleNotFound)).To(BeTrue())
		})
	})

	Describe("Assignments", func() {
		var clerk *role.Role

		BeforeEach(func() {
			var err error
			clerk, err = service.Create(ctx, 1, 9, role.CreateRoleDTO{Name: "Clerk", Permissions: []string{"view_sales"}})
			Expect(err).NotTo(HaveOccurred())
			received = nil
		})

		It("should grant the role's permissions to the assignee", func() {
			Expect(service.Assign(ctx, 1, 9, clerk.ID, 42)).To(Succeed())

			gs, err := service.EffectivePermissions(ctx, 1, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(gs.Has("view_sales")).To(BeTrue())

			has, err := service.UserHasRole(ctx, 1, 42, clerk.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeTrue())

			Expect(received).To(HaveLen(1))
			Expect(received[0].EventType()).To(Equal(events.EventTypeAssignmentChanged))
			Expect(received[0].UserID).To(Equal(int64(42)))
		})

		It("should refuse users outside the tenant", func() {
			err := service.Assign(ctx, 1, 9, clerk.ID, 77)
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})

		It("should revoke on unassign", func() {
			Expect(service.Assign(ctx, 1, 9, clerk.ID, 42)).To(Succeed())
			Expect(service.Unassign(ctx, 1, 9, clerk.ID, 42)).To(Succeed())

			gs, err := service.EffectivePermissions(ctx, 1, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(gs.Len()).To(Equal(0))
		})

		It("should cascade unassignment when the role is deleted", func() {
			Expect(service.Assign(ctx, 1, 9, clerk.ID, 42)).To(Succeed())
			received = nil

			Expect(service.Delete(ctx, 1, 9, clerk.ID)).To(Succeed())

			gs, err := service.EffectivePermissions(ctx, 1, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(gs.Len()).To(Equal(0))

			Expect(received).To(HaveLen(1))
			Expect(received[0].Operation).To(Equal(events.OpDelete))
			Expect(received[0].Data["unassigned_users"]).To(Equal([]int64{42}))
		})
	})
})
