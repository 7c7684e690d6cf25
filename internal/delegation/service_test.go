package delegation_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	delegationDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/delegation"
	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/frahmantamala/ifarm/internal/delegation"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/role"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// MockRepository implements delegation.RepositoryAPI for testing
type MockRepository struct {
	rows       map[int64]*delegationDatamodel.Delegation
	nextID     int64
	shouldFail bool
	failError  error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{rows: make(map[int64]*delegationDatamodel.Delegation)}
}

func (m *MockRepository) SetShouldFail(shouldFail bool, err error) {
	m.shouldFail = shouldFail
	m.failError = err
}

func (m *MockRepository) List(ctx context.Context, tenantID int64, filter delegation.ListFilter) ([]*delegationDatamodel.Delegation, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	var out []*delegationDatamodel.Delegation
	for _, d := range m.rows {
		if d.TenantID != tenantID {
			continue
		}
		if filter.UserID != 0 && d.DelegatorUserID != filter.UserID && d.DelegateUserID != filter.UserID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *MockRepository) GetByID(ctx context.Context, tenantID, id int64) (*delegationDatamodel.Delegation, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	d, ok := m.rows[id]
	if !ok || d.TenantID != tenantID {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *MockRepository) ActiveForDelegate(ctx context.Context, tenantID, userID int64) ([]*delegationDatamodel.Delegation, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	var out []*delegationDatamodel.Delegation
	for _, d := range m.rows {
		if d.TenantID == tenantID && d.DelegateUserID == userID && d.Status == "active" {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRepository) Create(ctx context.Context, d *delegationDatamodel.Delegation) error {
	if m.shouldFail {
		return m.failError
	}
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *MockRepository) Update(ctx context.Context, d *delegationDatamodel.Delegation, expectedVersion int64) error {
	stored, ok := m.rows[d.ID]
	if !ok || stored.Version != expectedVersion {
		return internal.ErrVersionConflict
	}
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *MockRepository) ExpireDue(ctx context.Context, now time.Time) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	for _, d := range m.rows {
		if d.Status == "active" && d.EndDate.Before(now) {
			d.Status = "expired"
			d.Version++
			out[d.TenantID] = append(out[d.TenantID], d.ID)
		}
	}
	return out, nil
}

// stubRoles holds each user's current roles.
type stubRoles map[int64][]role.Role

func (s stubRoles) RolesForUser(ctx context.Context, tenantID, userID int64) ([]role.Role, error) {
	return s[userID], nil
}

func (s stubRoles) UserHasRole(ctx context.Context, tenantID, userID, roleID int64) (bool, error) {
	for _, r := range s[userID] {
		if r.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

type stubUsers map[int64]bool

func (s stubUsers) InTenant(ctx context.Context, tenantID, userID int64) (bool, error) {
	return s[userID], nil
}

var _ = Describe("Delegation Service", func() {
	const (
		owner  = int64(1)
		helper = int64(2)
	)

	var (
		ctx      context.Context
		now      time.Time
		mockRepo *MockRepository
		roles    stubRoles
		service  *delegation.Service
		received []*events.AccessChangedEvent
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC)
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		mockRepo = NewMockRepository()
		roles = stubRoles{
			owner: {{ID: 10, TenantID: 1, Permissions: permission.NewSet("view_animals", "edit_animals")}},
		}
		bus := events.NewEventBus(logger)
		received = nil
		bus.Subscribe(events.EventTypeDelegationChanged, func(ctx context.Context, e events.Event) error {
			received = append(received, e.(*events.AccessChangedEvent))
			return nil
		})
		service = delegation.NewService(mockRepo, permission.System(), roles, stubUsers{owner: true, helper: true}, bus, logger)
		service.SetClock(func() time.Time { return now })
	})

	fullAccess := func() delegation.CreateDelegationDTO {
		return delegation.CreateDelegationDTO{
			DelegateUserID: helper,
			Type:           delegation.TypeFullAccess,
			EndDate:        now.Add(48 * time.Hour),
			Reason:         "annual leave",
		}
	}

	Describe("Create", func() {
		It("should start immediately when no start date is given", func() {
			d, err := service.Create(ctx, 1, owner, fullAccess())
			Expect(err).NotTo(HaveOccurred())
			Expect(d.ID).NotTo(BeZero())
			Expect(d.Status).To(Equal(delegation.StatusActive))
			Expect(d.StartDate).To(Equal(now))
			Expect(d.DelegatorUserID).To(Equal(owner))
			Expect(received).To(HaveLen(1))
			Expect(received[0].Operation).To(Equal(events.OpCreate))
		})

		It("should refuse a role the delegator does not hold", func() {
			dto := fullAccess()
			dto.Type = delegation.TypeRole
			other := int64(99)
			dto.RoleID = &other

			_, err := service.Create(ctx, 1, owner, dto)
			Expect(errors.Is(err, internal.ErrInvalidDelegation)).To(BeTrue())
			Expect(mockRepo.rows).To(BeEmpty())
		})

		It("should refuse permissions the delegator does not hold", func() {
			dto := fullAccess()
			dto.Type = delegation.TypePermission
			dto.Permissions = []string{"view_animals", "view_payroll"}

			_, err := service.Create(ctx, 1, owner, dto)
			Expect(errors.Is(err, internal.ErrInvalidDelegation)).To(BeTrue())
		})

		It("should reject unknown permission names", func() {
			dto := fullAccess()
			dto.Type = delegation.TypePermission
			dto.Permissions = []string{"milk_animals"}

			_, err := service.Create(ctx, 1, owner, dto)
			Expect(errors.Is(err, internal.ErrUnknownPermission)).To(BeTrue())
		})

		It("should refuse a delegate outside the tenant", func() {
			dto := fullAccess()
			dto.DelegateUserID = 55

			_, err := service.Create(ctx, 1, owner, dto)
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("Resolve", func() {
		It("should reflect role changes of the delegator immediately", func() {
			_, err := service.Create(ctx, 1, owner, fullAccess())
			Expect(err).NotTo(HaveOccurred())

			res, err := service.Resolve(ctx, 1, helper, now, delegation.Request{ResourceType: "sale", Location: time.UTC})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Grants.Has("view_sales")).To(BeFalse())

			roles[owner] = append(roles[owner], role.Role{ID: 11, TenantID: 1, Permissions: permission.NewSet("view_sales")})

			res, err = service.Resolve(ctx, 1, helper, now, delegation.Request{ResourceType: "sale", Location: time.UTC})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Grants.Has("view_sales")).To(BeTrue())
		})

		It("should stop granting after revocation", func() {
			d, err := service.Create(ctx, 1, owner, fullAccess())
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Revoke(ctx, 1, owner, d.ID, false)
			Expect(err).NotTo(HaveOccurred())

			res, err := service.Resolve(ctx, 1, helper, now, delegation.Request{ResourceType: "animal", Location: time.UTC})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Grants.Len()).To(Equal(0))
		})

		It("should surface store failures", func() {
			mockRepo.SetShouldFail(true, errors.New("db down"))
			_, err := service.Resolve(ctx, 1, helper, now, delegation.Request{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Revoke", func() {
		var d *delegation.Delegation

		BeforeEach(func() {
			var err error
			d, err = service.Create(ctx, 1, owner, fullAccess())
			Expect(err).NotTo(HaveOccurred())
			received = nil
		})

		It("should only let the delegator revoke without override", func() {
			_, err := service.Revoke(ctx, 1, helper, d.ID, false)
			Expect(errors.Is(err, internal.ErrAccessDenied)).To(BeTrue())

			revoked, err := service.Revoke(ctx, 1, helper, d.ID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(revoked.Status).To(Equal(delegation.StatusRevoked))
			Expect(*revoked.RevokedBy).To(Equal(helper))
			Expect(received).To(HaveLen(1))
			Expect(received[0].Operation).To(Equal(events.OpRevoke))
		})

		It("should refuse to revoke twice", func() {
			_, err := service.Revoke(ctx, 1, owner, d.ID, false)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Revoke(ctx, 1, owner, d.ID, false)
			Expect(errors.Is(err, internal.ErrDelegationTerminal)).To(BeTrue())
		})

		It("should not find delegations of another tenant", func() {
			_, err := service.Revoke(ctx, 2, owner, d.ID, true)
			Expect(errors.Is(err, internal.ErrDelegationNotFound)).To(BeTrue())
		})
	})

	Describe("ExpireDue", func() {
		It("should expire lapsed delegations once and publish per tenant", func() {
			_, err := service.Create(ctx, 1, owner, fullAccess())
			Expect(err).NotTo(HaveOccurred())
			received = nil

			later := now.Add(72 * time.Hour)
			n, err := service.ExpireDue(ctx, later)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(received).To(HaveLen(1))
			Expect(received[0].Operation).To(Equal(events.OpExpire))
			Expect(received[0].TenantID).To(Equal(int64(1)))

			n, err = service.ExpireDue(ctx, later)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
			Expect(received).To(HaveLen(1))
		})

		It("should show lapsed delegations as expired before the sweep runs", func() {
			_, err := service.Create(ctx, 1, owner, fullAccess())
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(72 * time.Hour)
			list, err := service.List(ctx, 1, delegation.ListFilter{UserID: helper})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].Status).To(Equal(delegation.StatusExpired))
		})
	})
})
