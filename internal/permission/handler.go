package permission

import (
	"net/http"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/transport"
)

type PermissionsResponse struct {
	Permissions []Permission `json:"permissions"`
}

type Handler struct {
	*transport.BaseHandler
	Catalog *Catalog
}

func NewHandler(baseHandler *transport.BaseHandler, catalog *Catalog) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Catalog:     catalog,
	}
}

// ListPermissions handles GET /permissions, optionally filtered by
// ?category= and ?resource_type=.
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	var category Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c, err := ParseCategory(raw)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationFieldError("category", err.Error(), internal.ErrCodeValidationFailed))
			return
		}
		category = c
	}

	var resourceType ResourceType
	if raw := r.URL.Query().Get("resource_type"); raw != "" {
		rt, err := ParseResourceType(raw)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationFieldError("resource_type", err.Error(), internal.ErrCodeValidationFailed))
			return
		}
		resourceType = rt
	}

	out := make([]Permission, 0, len(h.Catalog.All()))
	for _, p := range h.Catalog.All() {
		if category != "" && p.Category != category {
			continue
		}
		if resourceType != "" && p.ResourceType != resourceType {
			continue
		}
		out = append(out, p)
	}

	h.WriteJSON(w, http.StatusOK, PermissionsResponse{Permissions: out})
}
