package policy_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/frahmantamala/ifarm/internal"
	policyDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/policy"
	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/frahmantamala/ifarm/internal/policy"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// MockRepository implements policy.RepositoryAPI for testing
type MockRepository struct {
	policies   map[int64]*policyDatamodel.Policy
	nextID     int64
	shouldFail bool
	failError  error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{policies: make(map[int64]*policyDatamodel.Policy)}
}

func (m *MockRepository) SetShouldFail(shouldFail bool, err error) {
	m.shouldFail = shouldFail
	m.failError = err
}

func (m *MockRepository) List(ctx context.Context, tenantID int64) ([]*policyDatamodel.Policy, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	var out []*policyDatamodel.Policy
	for _, p := range m.policies {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockRepository) GetByID(ctx context.Context, tenantID, id int64) (*policyDatamodel.Policy, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	p, ok := m.policies[id]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MockRepository) GetByIDs(ctx context.Context, tenantID int64, ids []int64) ([]*policyDatamodel.Policy, error) {
	var out []*policyDatamodel.Policy
	for _, id := range ids {
		if p, _ := m.GetByID(ctx, tenantID, id); p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockRepository) GetByName(ctx context.Context, tenantID int64, name string) (*policyDatamodel.Policy, error) {
	for _, p := range m.policies {
		if p.TenantID == tenantID && p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (m *MockRepository) Create(ctx context.Context, p *policyDatamodel.Policy) error {
	if m.shouldFail {
		return m.failError
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *MockRepository) Update(ctx context.Context, p *policyDatamodel.Policy, expectedVersion int64) error {
	stored, ok := m.policies[p.ID]
	if !ok || stored.Version != expectedVersion {
		return internal.ErrVersionConflict
	}
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *MockRepository) Delete(ctx context.Context, tenantID, id int64) error {
	delete(m.policies, id)
	return nil
}

var _ = Describe("Policy Service", func() {
	var (
		ctx      context.Context
		mockRepo *MockRepository
		bus      *events.EventBus
		service  *policy.Service
		received []*events.AccessChangedEvent
		dto      policy.CreatePolicyDTO
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		mockRepo = NewMockRepository()
		bus = events.NewEventBus(logger)
		received = nil
		bus.Subscribe(events.EventTypePolicyChanged, func(ctx context.Context, e events.Event) error {
			received = append(received, e.(*events.AccessChangedEvent))
			return nil
		})
		service = policy.NewService(mockRepo, bus, logger)

		dto = policy.CreatePolicyDTO{
			Name:     "After hours lockout",
			Priority: 10,
			Effect:   policy.EffectDeny,
			TimeConditions: []policy.TimeCondition{{
				Attribute: policy.AttrTime, Operator: policy.OpNotBetween, Values: []string{"08:00", "18:00"},
			}},
			Timezone: "Africa/Kampala",
		}
	})

	Describe("Create", func() {
		It("should persist an active policy at version 1 and publish a change", func() {
			p, err := service.Create(ctx, 1, 9, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ID).NotTo(BeZero())
			Expect(p.IsActive).To(BeTrue())
			Expect(p.Version).To(Equal(int64(1)))
			Expect(received).To(HaveLen(1))
			Expect(received[0].TenantID).To(Equal(int64(1)))
			Expect(received[0].Operation).To(Equal(events.OpCreate))
		})

		It("should reject malformed conditions before persisting", func() {
			dto.TimeConditions[0].Values = []string{"25:00", "18:00"}
			_, err := service.Create(ctx, 1, 9, dto)
			Expect(errors.Is(err, internal.ErrInvalidPolicyCondition)).To(BeTrue())
			Expect(mockRepo.policies).To(BeEmpty())
			Expect(received).To(BeEmpty())
		})

		It("should reject duplicate names within a tenant", func() {
			_, err := service.Create(ctx, 1, 9, dto)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, 1, 9, dto)
			Expect(errors.Is(err, internal.ErrDuplicateName)).To(BeTrue())

			_, err = service.Create(ctx, 2, 9, dto)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should wrap repository failures", func() {
			mockRepo.SetShouldFail(true, errors.New("database error"))
			_, err := service.Create(ctx, 1, 9, dto)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Update", func() {
		var created *policy.Policy

		BeforeEach(func() {
			var err error
			created, err = service.Create(ctx, 1, 9, dto)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should bump the version", func() {
			upd := policy.UpdatePolicyDTO{CreatePolicyDTO: dto, Version: created.Version}
			upd.Priority = 1
			p, err := service.Update(ctx, 1, 9, created.ID, upd)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Version).To(Equal(int64(2)))
			Expect(p.Priority).To(Equal(1))
		})

		It("should reject a stale version", func() {
			upd := policy.UpdatePolicyDTO{CreatePolicyDTO: dto, Version: created.Version}
			_, err := service.Update(ctx, 1, 9, created.ID, upd)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Update(ctx, 1, 9, created.ID, upd)
			Expect(errors.Is(err, internal.ErrVersionConflict)).To(BeTrue())
		})

		It("should hide other tenants' policies", func() {
			_, err := service.Get(ctx, 2, created.ID)
			Expect(errors.Is(err, internal.ErrPolicyNotFound)).To(BeTrue())
		})

		It("should deactivate", func() {
			p, err := service.SetActive(ctx, 1, 9, created.ID, policy.SetActiveDTO{IsActive: false, Version: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.IsActive).To(BeFalse())
		})
	})

	Describe("PoliciesByIDs", func() {
		It("should skip unknown ids", func() {
			created, _ := service.Create(ctx, 1, 9, dto)
			list, err := service.PoliciesByIDs(ctx, 1, []int64{created.ID, 999})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].TimeConditions).To(HaveLen(1))
		})
	})

	Describe("Delete", func() {
		It("should remove and publish", func() {
			created, _ := service.Create(ctx, 1, 9, dto)
			Expect(service.Delete(ctx, 1, 9, created.ID)).To(Succeed())
			_, err := service.Get(ctx, 1, created.ID)
			Expect(errors.Is(err, internal.ErrPolicyNotFound)).To(BeTrue())
			Expect(received[len(received)-1].Operation).To(Equal(events.OpDelete))
		})
	})
})
