package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/audit"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/delegation"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/policy"
	"github.com/frahmantamala/ifarm/internal/role"
)

type RoleSource interface {
	RolesForUser(ctx context.Context, tenantID, userID int64) ([]role.Role, error)
}

type DelegationSource interface {
	Get(ctx context.Context, tenantID, id int64) (*delegation.Delegation, error)
	Resolve(ctx context.Context, tenantID, userID int64, now time.Time, req delegation.Request) (delegation.Resolution, error)
}

type PolicySource interface {
	PoliciesByIDs(ctx context.Context, tenantID int64, ids []int64) ([]policy.Policy, error)
}

type TenantSource interface {
	Location(ctx context.Context, tenantID int64) (*time.Location, error)
}

// RoleCache memoizes role-derived state per tenant and user.
type RoleCache interface {
	Fetch(ctx context.Context, tenantID, userID int64, dest interface{}, load func(context.Context) (interface{}, error)) error
}

type Sources struct {
	Roles       RoleSource
	Delegations DelegationSource
	Policies    PolicySource
	Tenants     TenantSource
}

// Engine decides access requests. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	catalog  *permission.Catalog
	sources  Sources
	cache    RoleCache
	recorder audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(catalog *permission.Catalog, sources Sources, recorder audit.Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog:  catalog,
		sources:  sources,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// WithCache puts a role cache in front of the role source.
func (e *Engine) WithCache(c RoleCache) *Engine {
	e.cache = c
	return e
}

func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// roleState is the role-derived half of a subject's access.
type roleState struct {
	Grants    *permission.GrantSet `json:"grants"`
	PolicyIDs []int64              `json:"policy_ids"`
	RoleNames []string             `json:"role_names"`
}

// Decide evaluates req and records exactly one audit entry. It never returns
// an error: every failure on the decision path becomes a deny.
func (e *Engine) Decide(ctx context.Context, req Request) Decision {
	d := e.decide(ctx, req)
	e.record(ctx, req, d)
	return d
}

// Allowed is a collection-level check against the current time.
func (e *Engine) Allowed(ctx context.Context, subject principal.Subject, action permission.Action, rt permission.ResourceType) bool {
	return e.Decide(ctx, Request{
		Subject:     subject,
		Action:      action,
		Resource:    Resource{Type: rt},
		Environment: Environment{Time: e.now()},
	}).Allowed
}

func (e *Engine) decide(ctx context.Context, req Request) Decision {
	sub := req.Subject
	log := e.logger.With("user_id", sub.UserID, "tenant_id", sub.TenantID, "action", req.Action, "resource_type", req.Resource.Type)

	if req.Environment.Time.IsZero() {
		return deny(ReasonMalformedEnvironment)
	}
	now := req.Environment.Time

	required, err := e.catalog.Required(req.Action, req.Resource.Type)
	if err != nil {
		log.Error("access request names no catalog permission", "error", err)
		return deny(ReasonUnknownPermission)
	}

	tenantID := req.tenantOf()
	if tenantID != sub.TenantID {
		if sub.SuperAdmin && req.Action.ReadOnly() {
			d := allow(ReasonSuperAdminRead)
			d.Permission = required.Name
			return d
		}
		d := deny(ReasonCrossTenant)
		d.Permission = required.Name
		return d
	}

	d := e.evaluate(ctx, log, req, required.Name, now)
	d.Permission = required.Name
	return d
}

func (e *Engine) evaluate(ctx context.Context, log *slog.Logger, req Request, required string, now time.Time) Decision {
	sub := req.Subject

	loc, reason := e.location(ctx, log, sub.TenantID, req.Environment.Timezone)
	if reason != "" {
		return deny(reason)
	}

	if sub.ViaDelegationID != 0 {
		if reason := e.checkVia(ctx, log, sub.TenantID, sub.UserID, sub.ViaDelegationID, now); reason != "" {
			return deny(reason)
		}
	}

	roles, err := e.roleState(ctx, sub.TenantID, sub.UserID)
	if err != nil {
		log.Error("role lookup failed", "error", err)
		return deny(ReasonStoreUnavailable)
	}

	res, err := e.sources.Delegations.Resolve(ctx, sub.TenantID, sub.UserID, now, delegation.Request{
		ResourceType: string(req.Resource.Type),
		ResourceID:   req.Resource.ID,
		Location:     loc,
	})
	if err != nil {
		log.Error("delegation lookup failed", "error", err)
		return deny(ReasonStoreUnavailable)
	}

	// Phase 1: permission grant.
	union := permission.NewGrantSet()
	union.Merge(roles.Grants)
	union.Merge(res.Grants)

	var d Decision
	if grant, ok := union.Source(required, sub.ViaDelegationID); ok {
		d = allow(ReasonGranted)
		if grant.Source == permission.SourceDelegation {
			d.DelegationID = grant.DelegationID
			d.DelegatedFromUserID = grant.DelegatedFromUserID
		}
	} else {
		d = deny(ReasonMissingPermission)
	}

	// Phase 2: policy override.
	policies, err := e.sources.Policies.PoliciesByIDs(ctx, sub.TenantID, mergeIDs(roles.PolicyIDs, res.PolicyIDs))
	if err != nil {
		log.Error("policy lookup failed", "error", err)
		return deny(ReasonStoreUnavailable)
	}

	outcome, err := policy.Evaluate(policies, policy.Input{
		TenantID:   sub.TenantID,
		Attributes: attributes(req, roles.RoleNames),
		Now:        now,
		Location:   loc,
	})
	if err != nil {
		log.Error("policy evaluation failed", "error", err)
		return deny(ReasonMalformedEnvironment)
	}
	d.Trace = outcome.Trace

	switch outcome.State {
	case policy.StateMatchedDeny:
		d.Allowed = false
		d.Reason = fmt.Sprintf("%s:%d", ReasonPolicyDenied, outcome.PolicyID)
		d.PolicyID = outcome.PolicyID
	case policy.StateMatchedAllow:
		d.Allowed = true
		d.Reason = fmt.Sprintf("%s:%d", ReasonPolicyAllowed, outcome.PolicyID)
		d.PolicyID = outcome.PolicyID
	}
	return d
}

// location resolves the timezone time conditions fall back to.
func (e *Engine) location(ctx context.Context, log *slog.Logger, tenantID int64, override string) (*time.Location, string) {
	if override != "" {
		loc, err := time.LoadLocation(override)
		if err != nil {
			log.Warn("request timezone invalid", "timezone", override)
			return nil, ReasonMalformedEnvironment
		}
		return loc, ""
	}

	loc, err := e.sources.Tenants.Location(ctx, tenantID)
	switch {
	case err == nil:
		return loc, ""
	case errors.Is(err, internal.ErrInvalidTimezone):
		log.Warn("tenant timezone invalid", "error", err)
		return nil, ReasonMalformedEnvironment
	case errors.Is(err, internal.ErrTenantNotFound):
		return nil, ReasonUnknownTenant
	default:
		log.Error("tenant lookup failed", "error", err)
		return nil, ReasonStoreUnavailable
	}
}

// checkVia rejects a named delegation that is not in force for the subject.
func (e *Engine) checkVia(ctx context.Context, log *slog.Logger, tenantID, userID, id int64, now time.Time) string {
	dl, err := e.sources.Delegations.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, internal.ErrDelegationNotFound) {
			return ReasonExpiredDelegation
		}
		log.Error("delegation lookup failed", "delegation_id", id, "error", err)
		return ReasonStoreUnavailable
	}
	if dl.DelegateUserID != userID || !dl.ActiveAt(now) {
		log.Info("delegation used outside its window", "delegation_id", id, "status", dl.EffectiveStatus(now))
		return ReasonExpiredDelegation
	}
	return ""
}

func (e *Engine) roleState(ctx context.Context, tenantID, userID int64) (roleState, error) {
	load := func(ctx context.Context) (interface{}, error) {
		roles, err := e.sources.Roles.RolesForUser(ctx, tenantID, userID)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(roles))
		for _, r := range roles {
			names = append(names, r.Name)
		}
		sort.Strings(names)
		return roleState{
			Grants:    role.EffectivePermissions(roles),
			PolicyIDs: role.PolicyIDs(roles),
			RoleNames: names,
		}, nil
	}

	if e.cache == nil {
		v, err := load(ctx)
		if err != nil {
			return roleState{}, err
		}
		return v.(roleState), nil
	}

	var st roleState
	if err := e.cache.Fetch(ctx, tenantID, userID, &st, load); err != nil {
		return roleState{}, err
	}
	return st, nil
}

func (e *Engine) record(ctx context.Context, req Request, d Decision) {
	if e.recorder == nil {
		return
	}

	outcome := audit.DecisionDeny
	if d.Allowed {
		outcome = audit.DecisionAllow
	}

	entry := audit.Entry{
		UserID:     req.Subject.UserID,
		Action:     audit.ActionAccessDecision,
		EntityType: string(req.Resource.Type),
		Decision:   audit.String(outcome),
		Reason:     audit.String(d.Reason),
		Details: audit.Details{
			"action": string(req.Action),
		},
	}
	if entry.EntityType == "" {
		entry.EntityType = "unknown"
	}
	if tenantID := req.tenantOf(); tenantID != 0 {
		entry.TenantID = audit.Int64(tenantID)
	}
	if req.Resource.TenantID != 0 && req.Resource.TenantID != req.Subject.TenantID {
		entry.Details["subject_tenant_id"] = req.Subject.TenantID
	}
	if req.Resource.ID != "" {
		entry.EntityID = audit.String(req.Resource.ID)
	}
	if d.Permission != "" {
		entry.Permission = audit.String(d.Permission)
	}
	if d.PolicyID != 0 {
		entry.PolicyID = audit.Int64(d.PolicyID)
	}
	if d.DelegationID != 0 {
		entry.DelegationID = audit.Int64(d.DelegationID)
		entry.DelegatedFromUserID = audit.Int64(d.DelegatedFromUserID)
	} else if req.Subject.ViaDelegationID != 0 {
		entry.DelegationID = audit.Int64(req.Subject.ViaDelegationID)
	}
	if req.Environment.IPAddress != "" {
		entry.IPAddress = audit.String(req.Environment.IPAddress)
	} else if ip, ok := audit.IPFromContext(ctx); ok {
		entry.IPAddress = audit.String(ip)
	}

	e.recorder.Record(ctx, entry)
}

func mergeIDs(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	var out []int64
	for _, list := range [][]int64{a, b} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
