package delegation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	delegationDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/delegation"
	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/role"
)

type RepositoryAPI interface {
	List(ctx context.Context, tenantID int64, filter ListFilter) ([]*delegationDatamodel.Delegation, error)
	GetByID(ctx context.Context, tenantID, id int64) (*delegationDatamodel.Delegation, error)
	// ActiveForDelegate returns delegations stored as active for the user,
	// including ones whose window has already closed.
	ActiveForDelegate(ctx context.Context, tenantID, userID int64) ([]*delegationDatamodel.Delegation, error)
	Create(ctx context.Context, d *delegationDatamodel.Delegation) error
	Update(ctx context.Context, d *delegationDatamodel.Delegation, expectedVersion int64) error
	// ExpireDue marks active delegations with end_date before now as expired
	// and returns the affected ids grouped by tenant.
	ExpireDue(ctx context.Context, now time.Time) (map[int64][]int64, error)
}

// RoleLookup reads the delegator's current roles.
type RoleLookup interface {
	RolesForUser(ctx context.Context, tenantID, userID int64) ([]role.Role, error)
	UserHasRole(ctx context.Context, tenantID, userID, roleID int64) (bool, error)
}

type UserLookup interface {
	InTenant(ctx context.Context, tenantID, userID int64) (bool, error)
}

type Service struct {
	repo      RepositoryAPI
	catalog   *permission.Catalog
	roles     RoleLookup
	users     UserLookup
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, catalog *permission.Catalog, roles RoleLookup, users UserLookup, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalog,
		roles:     roles,
		users:     users,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for lifecycle checks.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) List(ctx context.Context, tenantID int64, filter ListFilter) ([]*Delegation, error) {
	rows, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		s.logger.Error("failed to list delegations", "tenant_id", tenantID, "error", err)
		return nil, internal.NewInternalError("failed to list delegations", err)
	}
	out := make([]*Delegation, 0, len(rows))
	now := s.now()
	for _, row := range rows {
		d, err := FromDataModel(row, s.catalog)
		if err != nil {
			return nil, err
		}
		d.Status = d.EffectiveStatus(now)
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (*Delegation, error) {
	row, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load delegation", err)
	}
	if row == nil {
		return nil, internal.ErrDelegationNotFound
	}
	return FromDataModel(row, s.catalog)
}

// ActiveFor returns the delegations stored as active for the delegate.
// Window checks are left to Resolve.
func (s *Service) ActiveFor(ctx context.Context, tenantID, userID int64) ([]Delegation, error) {
	rows, err := s.repo.ActiveForDelegate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Delegation, 0, len(rows))
	for _, row := range rows {
		d, err := FromDataModel(row, s.catalog)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// Resolve loads the user's delegations and each delegator's current roles and
// expands them at now.
func (s *Service) Resolve(ctx context.Context, tenantID, userID int64, now time.Time, req Request) (Resolution, error) {
	list, err := s.ActiveFor(ctx, tenantID, userID)
	if err != nil {
		return Resolution{}, err
	}
	delegators := make(Delegators)
	for _, d := range list {
		if _, ok := delegators[d.DelegatorUserID]; ok || !d.ActiveAt(now) {
			continue
		}
		roles, err := s.roles.RolesForUser(ctx, tenantID, d.DelegatorUserID)
		if err != nil {
			return Resolution{}, err
		}
		delegators[d.DelegatorUserID] = roles
	}
	res := Resolve(now, list, req, delegators)
	if len(res.Lapsed) > 0 {
		s.logger.Debug("lapsed delegations ignored", "tenant_id", tenantID, "user_id", userID, "delegation_ids", res.Lapsed)
	}
	return res, nil
}

// Create records a delegation from actorID to the delegate.
func (s *Service) Create(ctx context.Context, tenantID, actorID int64, dto CreateDelegationDTO) (*Delegation, error) {
	now := s.now()
	perms, err := s.catalog.Resolve(dto.Permissions)
	if err != nil {
		return nil, err
	}

	start := now
	if dto.StartDate != nil {
		start = *dto.StartDate
	}
	d := &Delegation{
		TenantID:        tenantID,
		DelegatorUserID: actorID,
		DelegateUserID:  dto.DelegateUserID,
		Type:            dto.Type,
		StartDate:       start.UTC(),
		EndDate:         dto.EndDate.UTC(),
		Status:          StatusActive,
		Permissions:     perms,
		RoleID:          dto.RoleID,
		Restrictions:    dto.Restrictions,
		Reason:          dto.Reason,
		Version:         1,
	}
	if appErr := d.Validate(now); appErr != nil {
		return nil, appErr
	}

	if s.users != nil {
		ok, err := s.users.InTenant(ctx, tenantID, d.DelegateUserID)
		if err != nil {
			return nil, internal.NewInternalError("failed to load user", err)
		}
		if !ok {
			return nil, internal.ErrUserNotFound
		}
	}
	if err := s.checkDelegatorHolds(ctx, d); err != nil {
		return nil, err
	}

	row, err := ToDataModel(d, s.catalog)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create delegation", "tenant_id", tenantID, "error", err)
		return nil, internal.NewInternalError("failed to create delegation", err)
	}
	d.ID = row.ID
	d.CreatedAt = row.CreatedAt
	d.UpdatedAt = row.UpdatedAt

	s.publish(ctx, events.NewDelegationChangedEvent(tenantID, actorID, d.ID, events.OpCreate, map[string]interface{}{
		"type":              string(d.Type),
		"delegator_user_id": d.DelegatorUserID,
		"delegate_user_id":  d.DelegateUserID,
		"end_date":          d.EndDate,
	}))
	s.logger.Info("delegation created", "tenant_id", tenantID, "delegation_id", d.ID, "type", d.Type)
	return d, nil
}

// checkDelegatorHolds rejects delegating something the delegator does not
// hold right now. Evaluation re-checks against the delegator's live state.
func (s *Service) checkDelegatorHolds(ctx context.Context, d *Delegation) error {
	switch d.Type {
	case TypeRole:
		ok, err := s.roles.UserHasRole(ctx, d.TenantID, d.DelegatorUserID, *d.RoleID)
		if err != nil {
			return internal.NewInternalError("failed to load delegator roles", err)
		}
		if !ok {
			return internal.ErrInvalidDelegation.WithMessage("delegator does not hold the delegated role")
		}
	case TypePermission:
		roles, err := s.roles.RolesForUser(ctx, d.TenantID, d.DelegatorUserID)
		if err != nil {
			return internal.NewInternalError("failed to load delegator roles", err)
		}
		held := role.EffectivePermissions(roles).Names()
		if missing := d.Permissions.Without(held); missing.Len() > 0 {
			return internal.ErrInvalidDelegation.
				WithMessage(fmt.Sprintf("delegator does not hold %s", missing.Names()[0])).
				WithDetails(map[string]interface{}{"permissions": missing.Names()})
		}
	}
	return nil
}

// Revoke ends a delegation early. Only the delegator may revoke unless
// override is set by a caller holding manage_delegations.
func (s *Service) Revoke(ctx context.Context, tenantID, actorID, id int64, override bool) (*Delegation, error) {
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !override && d.DelegatorUserID != actorID {
		return nil, internal.ErrAccessDenied.WithMessage("only the delegator or a delegation manager can revoke")
	}

	expected := d.Version
	if err := d.Revoke(actorID, s.now().UTC()); err != nil {
		return nil, err
	}
	row, err := ToDataModel(d, s.catalog)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, row, expected); err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		s.logger.Error("failed to revoke delegation", "tenant_id", tenantID, "delegation_id", id, "error", err)
		return nil, internal.NewInternalError("failed to revoke delegation", err)
	}

	s.publish(ctx, events.NewDelegationChangedEvent(tenantID, actorID, d.ID, events.OpRevoke, map[string]interface{}{
		"delegator_user_id": d.DelegatorUserID,
		"delegate_user_id":  d.DelegateUserID,
	}))
	s.logger.Info("delegation revoked", "tenant_id", tenantID, "delegation_id", id, "actor_id", actorID)
	return d, nil
}

// ExpireDue persists expiry for lapsed delegations. It is safe to run
// repeatedly and publishes one change event per tenant touched.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	byTenant, err := s.repo.ExpireDue(ctx, now.UTC())
	if err != nil {
		s.logger.Error("failed to expire delegations", "error", err)
		return 0, err
	}
	total := 0
	for tenantID, ids := range byTenant {
		total += len(ids)
		s.publish(ctx, events.NewDelegationChangedEvent(tenantID, 0, 0, events.OpExpire, map[string]interface{}{
			"delegation_ids": ids,
		}))
	}
	if total > 0 {
		s.logger.Info("delegations expired", "count", total, "tenants", len(byTenant))
	}
	return total, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		s.logger.Error("delegation change subscribers failed", "event_id", event.EventID(), "error", err)
	}
}
