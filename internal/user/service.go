package user

import (
	"context"
	"strings"

	"github.com/frahmantamala/ifarm/internal"
	userDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/user"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to get user", err)
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}
	return FromDataModel(u), nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, internal.NewInternalError("failed to get user", err)
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}
	return FromDataModel(u), nil
}

// InTenant reports whether userID is an active member of the tenant.
func (s *Service) InTenant(ctx context.Context, tenantID, userID int64) (bool, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u != nil && u.TenantID == tenantID && u.IsActive, nil
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]*User, error) {
	rows, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, internal.NewInternalError("failed to list users", err)
	}
	out := make([]*User, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

// Create stores a user with an already hashed password.
func (s *Service) Create(ctx context.Context, u *User) (*User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	existing, err := s.repo.GetByEmail(ctx, u.Email)
	if err != nil {
		return nil, internal.NewInternalError("failed to check email", err)
	}
	if existing != nil {
		return nil, internal.ErrDuplicateName.WithMessage("a user with this email already exists")
	}
	row := ToDataModel(u)
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, internal.NewInternalError("failed to create user", err)
	}
	return FromDataModel(row), nil
}
