package audit

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/ifarm/internal"
)

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// ListTenant returns a tenant's entries, newest first.
func (s *Service) ListTenant(ctx context.Context, tenantID int64, f Filter) ([]Entry, error) {
	f.TenantID = Int64(tenantID)
	return s.list(ctx, f)
}

// ListAll spans every tenant. Super-admin only.
func (s *Service) ListAll(ctx context.Context, f Filter) ([]Entry, error) {
	return s.list(ctx, f)
}

// Summary counts entries per tenant and decision. Super-admin only.
func (s *Service) Summary(ctx context.Context, f Filter) ([]SummaryRow, error) {
	rows, err := s.store.Summary(ctx, f)
	if err != nil {
		s.logger.Error("failed to summarise audit log", "error", err)
		return nil, internal.NewInternalError("failed to summarise audit log", err)
	}
	return rows, nil
}

func (s *Service) list(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, internal.NewValidationFieldError("from", "from must be before to", internal.ErrCodeValidationFailed)
	}
	entries, err := s.store.List(ctx, f)
	if err != nil {
		s.logger.Error("failed to list audit log", "error", err)
		return nil, internal.NewInternalError("failed to list audit log", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
