package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/frahmantamala/ifarm/internal/core/common/validation"
	tenantDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/tenant"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*tenantDatamodel.Tenant, error)
	GetByName(ctx context.Context, name string) (*tenantDatamodel.Tenant, error)
	List(ctx context.Context) ([]*tenantDatamodel.Tenant, error)
	Create(ctx context.Context, t *tenantDatamodel.Tenant) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Tenant, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load tenant", err)
	}
	if row == nil {
		return nil, internal.ErrTenantNotFound
	}
	return FromDataModel(row), nil
}

// Location returns the tenant's configured timezone. A stored zone that no
// longer loads is an error so callers can fail closed.
func (s *Service) Location(ctx context.Context, tenantID int64) (*time.Location, error) {
	row, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, internal.ErrTenantNotFound
	}
	loc, err := time.LoadLocation(row.Timezone)
	if err != nil {
		return nil, internal.ErrInvalidTimezone.WithMessage(fmt.Sprintf("tenant %d has unknown timezone %q", tenantID, row.Timezone))
	}
	return loc, nil
}

func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list tenants", err)
	}
	out := make([]*Tenant, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, t *Tenant) (*Tenant, error) {
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}
	v := validation.NewValidator()
	v.Field("name", t.Name).Required().MaxLength(100)
	v.Field("timezone", t.Timezone).Custom(func(value interface{}) *internal.AppError {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return internal.NewValidationFieldError("timezone", fmt.Sprintf("unknown timezone %q", t.Timezone), internal.ErrCodeInvalidTimezone)
		}
		return nil
	})
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	existing, err := s.repo.GetByName(ctx, t.Name)
	if err != nil {
		return nil, internal.NewInternalError("failed to check tenant name", err)
	}
	if existing != nil {
		return nil, internal.ErrDuplicateName.WithMessage("a tenant with this name already exists")
	}

	row := ToDataModel(t)
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, internal.NewInternalError("failed to create tenant", err)
	}
	return FromDataModel(row), nil
}
