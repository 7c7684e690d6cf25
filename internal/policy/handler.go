package policy

import (
	"context"
	"net/http"

	"github.com/frahmantamala/ifarm/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, tenantID int64) ([]*Policy, error)
	Get(ctx context.Context, tenantID, id int64) (*Policy, error)
	Create(ctx context.Context, tenantID, actorID int64, dto CreatePolicyDTO) (*Policy, error)
	Update(ctx context.Context, tenantID, actorID, id int64, dto UpdatePolicyDTO) (*Policy, error)
	SetActive(ctx context.Context, tenantID, actorID, id int64, dto SetActiveDTO) (*Policy, error)
	Delete(ctx context.Context, tenantID, actorID, id int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	policies, err := h.Service.List(r.Context(), subject.TenantID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PoliciesResponse{Policies: policies})
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
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

	p, err := h.Service.Get(r.Context(), subject.TenantID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto CreatePolicyDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.Service.Create(r.Context(), subject.TenantID, subject.UserID, dto)
	if err != nil {
		h.Logger.Warn("CreatePolicy: rejected", "tenant_id", subject.TenantID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
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

	var dto UpdatePolicyDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.Service.Update(r.Context(), subject.TenantID, subject.UserID, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) SetPolicyActive(w http.ResponseWriter, r *http.Request) {
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

	var dto SetActiveDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.Service.SetActive(r.Context(), subject.TenantID, subject.UserID, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
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

	if err := h.Service.Delete(r.Context(), subject.TenantID, subject.UserID, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
