package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	policyDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/policy"
	"github.com/frahmantamala/ifarm/internal/core/events"
)

type RepositoryAPI interface {
	List(ctx context.Context, tenantID int64) ([]*policyDatamodel.Policy, error)
	GetByID(ctx context.Context, tenantID, id int64) (*policyDatamodel.Policy, error)
	GetByIDs(ctx context.Context, tenantID int64, ids []int64) ([]*policyDatamodel.Policy, error)
	GetByName(ctx context.Context, tenantID int64, name string) (*policyDatamodel.Policy, error)
	Create(ctx context.Context, p *policyDatamodel.Policy) error
	// Update writes p when the stored version equals expectedVersion and
	// returns ErrVersionConflict otherwise.
	Update(ctx context.Context, p *policyDatamodel.Policy, expectedVersion int64) error
	Delete(ctx context.Context, tenantID, id int64) error
}

type Service struct {
	repo      RepositoryAPI
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]*Policy, error) {
	rows, err := s.repo.List(ctx, tenantID)
	if err != nil {
		s.logger.Error("failed to list policies", "tenant_id", tenantID, "error", err)
		return nil, internal.NewInternalError("failed to list policies", err)
	}
	out := make([]*Policy, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (*Policy, error) {
	row, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load policy", err)
	}
	if row == nil {
		return nil, internal.ErrPolicyNotFound
	}
	return FromDataModel(row), nil
}

// PoliciesByIDs loads the given policies of a tenant. Unknown ids are skipped.
func (s *Service) PoliciesByIDs(ctx context.Context, tenantID int64, ids []int64) ([]Policy, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.repo.GetByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Policy, 0, len(rows))
	for _, row := range rows {
		out = append(out, *FromDataModel(row))
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, tenantID, actorID int64, dto CreatePolicyDTO) (*Policy, error) {
	p := &Policy{
		TenantID:       tenantID,
		Name:           dto.Name,
		Description:    dto.Description,
		Priority:       dto.Priority,
		Effect:         dto.Effect,
		Conditions:     dto.Conditions,
		TimeConditions: dto.TimeConditions,
		Timezone:       dto.Timezone,
		IsActive:       true,
		Version:        1,
		CreatedBy:      actorID,
	}
	if appErr := p.Validate(); appErr != nil {
		return nil, appErr
	}

	if err := s.ensureNameFree(ctx, tenantID, p.Name, 0); err != nil {
		return nil, err
	}

	row := ToDataModel(p)
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create policy", "tenant_id", tenantID, "error", err)
		return nil, internal.NewInternalError("failed to create policy", err)
	}

	created := FromDataModel(row)
	s.publish(ctx, events.NewPolicyChangedEvent(tenantID, actorID, created.ID, events.OpCreate, map[string]interface{}{
		"name":     created.Name,
		"effect":   string(created.Effect),
		"priority": created.Priority,
	}))

	s.logger.Info("policy created", "tenant_id", tenantID, "policy_id", created.ID, "actor_id", actorID)
	return created, nil
}

func (s *Service) Update(ctx context.Context, tenantID, actorID, id int64, dto UpdatePolicyDTO) (*Policy, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if dto.Version != current.Version {
		return nil, internal.ErrVersionConflict
	}

	next := *current
	next.Name = dto.Name
	next.Description = dto.Description
	next.Priority = dto.Priority
	next.Effect = dto.Effect
	next.Conditions = dto.Conditions
	next.TimeConditions = dto.TimeConditions
	next.Timezone = dto.Timezone
	if dto.IsActive != nil {
		next.IsActive = *dto.IsActive
	}
	if appErr := next.Validate(); appErr != nil {
		return nil, appErr
	}
	if next.Name != current.Name {
		if err := s.ensureNameFree(ctx, tenantID, next.Name, id); err != nil {
			return nil, err
		}
	}

	return s.save(ctx, actorID, &next, current.Version, events.OpUpdate)
}

func (s *Service) SetActive(ctx context.Context, tenantID, actorID, id int64, dto SetActiveDTO) (*Policy, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if dto.Version != current.Version {
		return nil, internal.ErrVersionConflict
	}
	next := *current
	next.IsActive = dto.IsActive
	return s.save(ctx, actorID, &next, current.Version, events.OpActivate)
}

func (s *Service) Delete(ctx context.Context, tenantID, actorID, id int64) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		s.logger.Error("failed to delete policy", "tenant_id", tenantID, "policy_id", id, "error", err)
		return internal.NewInternalError("failed to delete policy", err)
	}
	s.publish(ctx, events.NewPolicyChangedEvent(tenantID, actorID, id, events.OpDelete, nil))
	return nil
}

func (s *Service) save(ctx context.Context, actorID int64, p *Policy, expected int64, op string) (*Policy, error) {
	p.Version = expected + 1
	p.UpdatedAt = time.Now()
	row := ToDataModel(p)
	if err := s.repo.Update(ctx, row, expected); err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		s.logger.Error("failed to update policy", "tenant_id", p.TenantID, "policy_id", p.ID, "error", err)
		return nil, internal.NewInternalError("failed to update policy", err)
	}

	s.publish(ctx, events.NewPolicyChangedEvent(p.TenantID, actorID, p.ID, op, map[string]interface{}{
		"version":   p.Version,
		"is_active": p.IsActive,
	}))
	return p, nil
}

func (s *Service) ensureNameFree(ctx context.Context, tenantID int64, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, tenantID, name)
	if err != nil {
		return internal.NewInternalError("failed to check policy name", err)
	}
	if existing != nil && existing.ID != selfID {
		return internal.ErrDuplicateName.WithMessage("a policy with this name already exists")
	}
	return nil
}

// publish runs change subscribers before the write call returns. The write is
// already committed, so subscriber failures are logged rather than returned.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		s.logger.Error("policy change subscribers failed", "event_id", event.EventID(), "error", err)
	}
}
