package role

import (
	"context"
	"net/http"

	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/transport"
)

type ServiceAPI interface {
	Templates() []Template
	List(ctx context.Context, tenantID int64) ([]*Role, error)
	Get(ctx context.Context, tenantID, id int64) (*Role, error)
	Create(ctx context.Context, tenantID, actorID int64, dto CreateRoleDTO) (*Role, error)
	Update(ctx context.Context, tenantID, actorID, id int64, dto UpdateRoleDTO) (*Role, error)
	AddPermissions(ctx context.Context, tenantID, actorID, id int64, dto PermissionsChangeDTO) (*Role, error)
	RemovePermissions(ctx context.Context, tenantID, actorID, id int64, dto PermissionsChangeDTO) (*Role, error)
	AttachPolicies(ctx context.Context, tenantID, actorID, id int64, dto PoliciesChangeDTO) (*Role, error)
	DetachPolicies(ctx context.Context, tenantID, actorID, id int64, dto PoliciesChangeDTO) (*Role, error)
	Delete(ctx context.Context, tenantID, actorID, id int64) error
	Assign(ctx context.Context, tenantID, actorID, roleID, userID int64) error
	Unassign(ctx context.Context, tenantID, actorID, roleID, userID int64) error
	RolesForUser(ctx context.Context, tenantID, userID int64) ([]Role, error)
	EffectivePermissions(ctx context.Context, tenantID, userID int64) (*permission.GrantSet, error)
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

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, TemplatesResponse{Templates: h.Service.Templates()})
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	roles, err := h.Service.List(r.Context(), subject.TenantID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
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

	role, err := h.Service.Get(r.Context(), subject.TenantID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto CreateRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	role, err := h.Service.Create(r.Context(), subject.TenantID, subject.UserID, dto)
	if err != nil {
		h.Logger.Warn("CreateRole: rejected", "tenant_id", subject.TenantID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var dto UpdateRoleDTO
	h.mutate(w, r, &dto, func(ctx context.Context, tenantID, actorID, id int64) (*Role, error) {
		return h.Service.Update(ctx, tenantID, actorID, id, dto)
	})
}

func (h *Handler) AddPermissions(w http.ResponseWriter, r *http.Request) {
	var dto PermissionsChangeDTO
	h.mutate(w, r, &dto, func(ctx context.Context, tenantID, actorID, id int64) (*Role, error) {
		return h.Service.AddPermissions(ctx, tenantID, actorID, id, dto)
	})
}

func (h *Handler) RemovePermissions(w http.ResponseWriter, r *http.Request) {
	var dto PermissionsChangeDTO
	h.mutate(w, r, &dto, func(ctx context.Context, tenantID, actorID, id int64) (*Role, error) {
		return h.Service.RemovePermissions(ctx, tenantID, actorID, id, dto)
	})
}

func (h *Handler) AttachPolicies(w http.ResponseWriter, r *http.Request) {
	var dto PoliciesChangeDTO
	h.mutate(w, r, &dto, func(ctx context.Context, tenantID, actorID, id int64) (*Role, error) {
		return h.Service.AttachPolicies(ctx, tenantID, actorID, id, dto)
	})
}

func (h *Handler) DetachPolicies(w http.ResponseWriter, r *http.Request) {
	var dto PoliciesChangeDTO
	h.mutate(w, r, &dto, func(ctx context.Context, tenantID, actorID, id int64) (*Role, error) {
		return h.Service.DetachPolicies(ctx, tenantID, actorID, id, dto)
	})
}

// mutate decodes body into dto and runs a versioned write on the {id} role.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, dto interface{}, run func(ctx context.Context, tenantID, actorID, id int64) (*Role, error)) {
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
	if err := h.DecodeJSON(r, dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	role, err := run(r.Context(), subject.TenantID, subject.UserID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
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

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
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

	var dto AssignDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.Assign(r.Context(), subject.TenantID, subject.UserID, id, dto.UserID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UnassignRole(w http.ResponseWriter, r *http.Request) {
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
	userID, err := h.IDParam(r, "userID")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.Unassign(r.Context(), subject.TenantID, subject.UserID, id, userID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UserPermissions reports a user's role-derived permission set.
func (h *Handler) UserPermissions(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	userID, err := h.IDParam(r, "userID")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	grants, err := h.Service.EffectivePermissions(r.Context(), subject.TenantID, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, EffectivePermissionsResponse{
		UserID:      userID,
		Permissions: grants.Names().Names(),
	})
}
