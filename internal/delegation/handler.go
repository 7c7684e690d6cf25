package delegation

import (
	"context"
	"net/http"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, tenantID int64, filter ListFilter) ([]*Delegation, error)
	Get(ctx context.Context, tenantID, id int64) (*Delegation, error)
	Create(ctx context.Context, tenantID, actorID int64, dto CreateDelegationDTO) (*Delegation, error)
	Revoke(ctx context.Context, tenantID, actorID, id int64, override bool) (*Delegation, error)
}

// Authorizer checks a tenant-level permission for the subject. Each check is
// an audited access decision.
type Authorizer interface {
	Allowed(ctx context.Context, subject principal.Subject, action permission.Action, resourceType permission.ResourceType) bool
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Authz   Authorizer
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, authz Authorizer) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Authz:       authz,
	}
}

// ListDelegations returns the caller's own delegations, given or received.
// With scope=tenant and view_delegations it returns every delegation.
func (h *Handler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	filter := ListFilter{UserID: subject.UserID, Status: Status(r.URL.Query().Get("status"))}
	if r.URL.Query().Get("scope") == "tenant" {
		if !h.Authz.Allowed(r.Context(), subject, permission.ActionView, permission.ResourceDelegation) {
			h.HandleServiceError(w, internal.ErrAccessDenied)
			return
		}
		filter.UserID = 0
	}

	list, err := h.Service.List(r.Context(), subject.TenantID, filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, DelegationsResponse{Delegations: list})
}

func (h *Handler) GetDelegation(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	d, err := h.Service.Get(r.Context(), subject.TenantID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	involved := d.DelegatorUserID == subject.UserID || d.DelegateUserID == subject.UserID
	if !involved && !h.Authz.Allowed(r.Context(), subject, permission.ActionView, permission.ResourceDelegation) {
		h.HandleServiceError(w, internal.ErrDelegationNotFound)
		return
	}

	h.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto CreateDelegationDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	d, err := h.Service.Create(r.Context(), subject.TenantID, subject.UserID, dto)
	if err != nil {
		h.Logger.Warn("CreateDelegation: rejected", "tenant_id", subject.TenantID, "user_id", subject.UserID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	d, err := h.Service.Get(r.Context(), subject.TenantID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	override := false
	if d.DelegatorUserID != subject.UserID {
		override = h.Authz.Allowed(r.Context(), subject, permission.ActionManage, permission.ResourceDelegation)
	}

	revoked, err := h.Service.Revoke(r.Context(), subject.TenantID, subject.UserID, id, override)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, revoked)
}
