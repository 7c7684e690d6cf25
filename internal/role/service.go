package role

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/common/validation"
	roleDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/role"
	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
)

type RepositoryAPI interface {
	List(ctx context.Context, tenantID int64) ([]*roleDatamodel.Role, error)
	GetByID(ctx context.Context, tenantID, id int64) (*roleDatamodel.Role, error)
	GetByName(ctx context.Context, tenantID int64, name string) (*roleDatamodel.Role, error)
	Create(ctx context.Context, r *roleDatamodel.Role) error
	// Update writes r when the stored version equals expectedVersion and
	// returns ErrVersionConflict otherwise.
	Update(ctx context.Context, r *roleDatamodel.Role, expectedVersion int64) error
	// Delete removes the role and every assignment of it.
	Delete(ctx context.Context, tenantID, id int64) error
	Assign(ctx context.Context, assignment *roleDatamodel.UserRole) error
	Unassign(ctx context.Context, tenantID, roleID, userID int64) error
	RolesForUser(ctx context.Context, tenantID, userID int64) ([]*roleDatamodel.Role, error)
	UsersForRole(ctx context.Context, tenantID, roleID int64) ([]int64, error)
}

// PolicyLookup verifies attached policies belong to the tenant.
type PolicyLookup interface {
	PoliciesByIDs(ctx context.Context, tenantID int64, ids []int64) ([]policy.Policy, error)
}

// UserLookup verifies an assignee is a member of the tenant.
type UserLookup interface {
	InTenant(ctx context.Context, tenantID, userID int64) (bool, error)
}

type Service struct {
	repo      RepositoryAPI
	catalog   *permission.Catalog
	policies  PolicyLookup
	users     UserLookup
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, catalog *permission.Catalog, policies PolicyLookup, users UserLookup, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalog,
		policies:  policies,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) Templates() []Template {
	return Templates()
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]*Role, error) {
	rows, err := s.repo.List(ctx, tenantID)
	if err != nil {
		s.logger.Error("failed to list roles", "tenant_id", tenantID, "error", err)
		return nil, internal.NewInternalError("failed to list roles", err)
	}
	return s.fromRows(rows)
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (*Role, error) {
	row, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load role", err)
	}
	if row == nil {
		return nil, internal.ErrRoleNotFound
	}
	return FromDataModel(row, s.catalog)
}

// RolesForUser reads the user's current roles in the tenant.
func (s *Service) RolesForUser(ctx context.Context, tenantID, userID int64) ([]Role, error) {
	rows, err := s.repo.RolesForUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.fromRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, *r)
	}
	return out, nil
}

func (s *Service) EffectivePermissions(ctx context.Context, tenantID, userID int64) (*permission.GrantSet, error) {
	roles, err := s.RolesForUser(ctx, tenantID, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load roles", err)
	}
	return EffectivePermissions(roles), nil
}

func (s *Service) UserHasRole(ctx context.Context, tenantID, userID, roleID int64) (bool, error) {
	roles, err := s.RolesForUser(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) Create(ctx context.Context, tenantID, actorID int64, dto CreateRoleDTO) (*Role, error) {
	v := validation.NewValidator()
	v.Field("name", dto.Name).Required().MaxLength(100)
	v.Field("description", dto.Description).MaxLength(500)
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	perms := permission.NewSet()
	if dto.TemplateID != "" {
		tpl, ok := TemplateByID(dto.TemplateID)
		if !ok {
			return nil, internal.ErrTemplateNotFound
		}
		perms = perms.Union(tpl.Permissions)
	}
	extra, err := s.catalog.Resolve(dto.Permissions)
	if err != nil {
		return nil, err
	}
	perms = perms.Union(extra)

	policyIDs, err := s.checkPolicies(ctx, tenantID, dto.PolicyIDs)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, tenantID, dto.Name, 0); err != nil {
		return nil, err
	}

	r := &Role{
		TenantID:    tenantID,
		Name:        dto.Name,
		Description: dto.Description,
		Permissions: perms,
		PolicyIDs:   policyIDs,
		TemplateID:  dto.TemplateID,
		Version:     1,
	}
	row, err := ToDataModel(r, s.catalog)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create role", "tenant_id", tenantID, "error", err)
		return nil, internal.NewInternalError("failed to create role", err)
	}
	r.ID = row.ID
	r.CreatedAt = row.CreatedAt
	r.UpdatedAt = row.UpdatedAt

	s.publish(ctx, events.NewRoleChangedEvent(tenantID, actorID, r.ID, events.OpCreate, map[string]interface{}{
		"name":        r.Name,
		"template_id": r.TemplateID,
		"permissions": r.Permissions.Names(),
	}))
	s.logger.Info("role created", "tenant_id", tenantID, "role_id", r.ID, "actor_id", actorID)
	return r, nil
}

func (s *Service) Update(ctx context.Context, tenantID, actorID, id int64, dto UpdateRoleDTO) (*Role, error) {
	v := validation.NewValidator()
	v.Field("name", dto.Name).Required().MaxLength(100)
	v.Field("description", dto.Description).MaxLength(500)
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	current, err := s.loadForWrite(ctx, tenantID, id, dto.Version)
	if err != nil {
		return nil, err
	}
	perms, err := s.catalog.Resolve(dto.Permissions)
	if err != nil {
		return nil, err
	}
	policyIDs, err := s.checkPolicies(ctx, tenantID, dto.PolicyIDs)
	if err != nil {
		return nil, err
	}
	if dto.Name != current.Name {
		if err := s.ensureNameFree(ctx, tenantID, dto.Name, id); err != nil {
			return nil, err
		}
	}

	next := *current
	next.Name = dto.Name
	next.Description = dto.Description
	next.Permissions = perms
	next.PolicyIDs = policyIDs
	return s.save(ctx, actorID, &next, current.Version, events.OpUpdate)
}

func (s *Service) AddPermissions(ctx context.Context, tenantID, actorID, id int64, dto PermissionsChangeDTO) (*Role, error) {
	return s.changePermissions(ctx, tenantID, actorID, id, dto, func(cur, delta permission.Set) permission.Set {
		return cur.Union(delta)
	})
}

func (s *Service) RemovePermissions(ctx context.Context, tenantID, actorID, id int64, dto PermissionsChangeDTO) (*Role, error) {
	return s.changePermissions(ctx, tenantID, actorID, id, dto, func(cur, delta permission.Set) permission.Set {
		return cur.Without(delta)
	})
}

func (s *Service) changePermissions(ctx context.Context, tenantID, actorID, id int64, dto PermissionsChangeDTO, apply func(cur, delta permission.Set) permission.Set) (*Role, error) {
	delta, err := s.catalog.Resolve(dto.Permissions)
	if err != nil {
		return nil, err
	}
	current, err := s.loadForWrite(ctx, tenantID, id, dto.Version)
	if err != nil {
		return nil, err
	}
	next := *current
	next.Permissions = apply(current.Permissions, delta)
	return s.save(ctx, actorID, &next, current.Version, events.OpUpdate)
}

func (s *Service) AttachPolicies(ctx context.Context, tenantID, actorID, id int64, dto PoliciesChangeDTO) (*Role, error) {
	current, err := s.loadForWrite(ctx, tenantID, id, dto.Version)
	if err != nil {
		return nil, err
	}
	added, err := s.checkPolicies(ctx, tenantID, dto.PolicyIDs)
	if err != nil {
		return nil, err
	}
	next := *current
	next.PolicyIDs = append([]int64{}, current.PolicyIDs...)
	for _, pid := range added {
		if !current.HasPolicy(pid) {
			next.PolicyIDs = append(next.PolicyIDs, pid)
		}
	}
	return s.save(ctx, actorID, &next, current.Version, events.OpUpdate)
}

func (s *Service) DetachPolicies(ctx context.Context, tenantID, actorID, id int64, dto PoliciesChangeDTO) (*Role, error) {
	current, err := s.loadForWrite(ctx, tenantID, id, dto.Version)
	if err != nil {
		return nil, err
	}
	drop := make(map[int64]bool, len(dto.PolicyIDs))
	for _, pid := range dto.PolicyIDs {
		drop[pid] = true
	}
	next := *current
	next.PolicyIDs = []int64{}
	for _, pid := range current.PolicyIDs {
		if !drop[pid] {
			next.PolicyIDs = append(next.PolicyIDs, pid)
		}
	}
	return s.save(ctx, actorID, &next, current.Version, events.OpUpdate)
}

// Delete removes the role and cascades unassignment from every user.
func (s *Service) Delete(ctx context.Context, tenantID, actorID, id int64) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	users, err := s.repo.UsersForRole(ctx, tenantID, id)
	if err != nil {
		return internal.NewInternalError("failed to load role assignments", err)
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		s.logger.Error("failed to delete role", "tenant_id", tenantID, "role_id", id, "error", err)
		return internal.NewInternalError("failed to delete role", err)
	}
	s.publish(ctx, events.NewRoleChangedEvent(tenantID, actorID, id, events.OpDelete, map[string]interface{}{
		"unassigned_users": users,
	}))
	return nil
}

func (s *Service) Assign(ctx context.Context, tenantID, actorID, roleID, userID int64) error {
	if _, err := s.Get(ctx, tenantID, roleID); err != nil {
		return err
	}
	if s.users != nil {
		ok, err := s.users.InTenant(ctx, tenantID, userID)
		if err != nil {
			return internal.NewInternalError("failed to load user", err)
		}
		if !ok {
			return internal.ErrUserNotFound
		}
	}
	if err := s.repo.Assign(ctx, &roleDatamodel.UserRole{
		TenantID:   tenantID,
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: actorID,
	}); err != nil {
		return internal.NewInternalError("failed to assign role", err)
	}
	s.publish(ctx, events.NewAssignmentChangedEvent(tenantID, actorID, roleID, userID, events.OpAssign))
	return nil
}

func (s *Service) Unassign(ctx context.Context, tenantID, actorID, roleID, userID int64) error {
	if _, err := s.Get(ctx, tenantID, roleID); err != nil {
		return err
	}
	if err := s.repo.Unassign(ctx, tenantID, roleID, userID); err != nil {
		return internal.NewInternalError("failed to unassign role", err)
	}
	s.publish(ctx, events.NewAssignmentChangedEvent(tenantID, actorID, roleID, userID, events.OpUnassign))
	return nil
}

func (s *Service) loadForWrite(ctx context.Context, tenantID, id, version int64) (*Role, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if version != current.Version {
		return nil, internal.ErrVersionConflict
	}
	return current, nil
}

func (s *Service) save(ctx context.Context, actorID int64, r *Role, expected int64, op string) (*Role, error) {
	r.Version = expected + 1
	r.UpdatedAt = time.Now()
	row, err := ToDataModel(r, s.catalog)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, row, expected); err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		s.logger.Error("failed to update role", "tenant_id", r.TenantID, "role_id", r.ID, "error", err)
		return nil, internal.NewInternalError("failed to update role", err)
	}
	s.publish(ctx, events.NewRoleChangedEvent(r.TenantID, actorID, r.ID, op, map[string]interface{}{
		"version":     r.Version,
		"permissions": r.Permissions.Names(),
		"policy_ids":  r.PolicyIDs,
	}))
	return r, nil
}

func (s *Service) checkPolicies(ctx context.Context, tenantID int64, ids []int64) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(out) == 0 || s.policies == nil {
		return out, nil
	}
	found, err := s.policies.PoliciesByIDs(ctx, tenantID, out)
	if err != nil {
		return nil, internal.NewInternalError("failed to load policies", err)
	}
	have := make(map[int64]bool, len(found))
	for _, p := range found {
		have[p.ID] = true
	}
	for _, id := range out {
		if !have[id] {
			return nil, internal.ErrPolicyNotFound.WithMessage(fmt.Sprintf("policy %d not found", id))
		}
	}
	return out, nil
}

func (s *Service) ensureNameFree(ctx context.Context, tenantID int64, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, tenantID, name)
	if err != nil {
		return internal.NewInternalError("failed to check role name", err)
	}
	if existing != nil && existing.ID != selfID {
		return internal.ErrDuplicateName.WithMessage("a role with this name already exists")
	}
	return nil
}

func (s *Service) fromRows(rows []*roleDatamodel.Role) ([]*Role, error) {
	out := make([]*Role, 0, len(rows))
	for _, row := range rows {
		r, err := FromDataModel(row, s.catalog)
		if err != nil {
			s.logger.Error("role references a permission missing from the catalog", "role_id", row.ID, "error", err)
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		s.logger.Error("role change subscribers failed", "event_id", event.EventID(), "error", err)
	}
}
