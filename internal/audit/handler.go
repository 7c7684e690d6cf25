package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/transport"
)

type ServiceAPI interface {
	ListTenant(ctx context.Context, tenantID int64, f Filter) ([]Entry, error)
	ListAll(ctx context.Context, f Filter) ([]Entry, error)
	Summary(ctx context.Context, f Filter) ([]SummaryRow, error)
}

type EntriesResponse struct {
	Entries []Entry `json:"entries"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

type SummaryResponse struct {
	Rows []SummaryRow `json:"rows"`
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

// ListTenantLogs handles GET /audit-logs
func (h *Handler) ListTenantLogs(w http.ResponseWriter, r *http.Request) {
	subject, err := h.Subject(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	f, err := h.filter(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	entries, err := h.Service.ListTenant(r.Context(), subject.TenantID, f)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, EntriesResponse{Entries: entries, Limit: f.Limit, Offset: f.Offset})
}

// ListAllLogs handles GET /admin/audit-logs
func (h *Handler) ListAllLogs(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || id <= 0 {
			h.HandleServiceError(w, internal.NewValidationFieldError("tenant_id", "tenant_id must be a positive integer", internal.ErrCodeValidationFailed))
			return
		}
		f.TenantID = Int64(id)
	}

	entries, err := h.Service.ListAll(r.Context(), f)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, EntriesResponse{Entries: entries, Limit: f.Limit, Offset: f.Offset})
}

// Summary handles GET /admin/audit-summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	rows, err := h.Service.Summary(r.Context(), f)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, SummaryResponse{Rows: rows})
}

func (h *Handler) filter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	limit, offset := h.Paging(r)
	f := Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		Decision:   q.Get("decision"),
		Limit:      limit,
		Offset:     offset,
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Filter{}, internal.NewValidationFieldError("user_id", "user_id must be a positive integer", internal.ErrCodeValidationFailed)
		}
		f.UserID = id
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filter{}, internal.NewValidationFieldError(name, name+" must be an RFC3339 timestamp", internal.ErrCodeValidationFailed)
		}
		*dst = t
	}
	return f, nil
}
