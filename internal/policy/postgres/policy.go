package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/ifarm/internal"
	policyDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/policy"
	"github.com/frahmantamala/ifarm/internal/policy"
	"gorm.io/gorm"
)

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) policy.RepositoryAPI {
	return &PolicyRepository{db: db}
}

func (r *PolicyRepository) List(ctx context.Context, tenantID int64) ([]*policyDatamodel.Policy, error) {
	var rows []*policyDatamodel.Policy
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("priority ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *PolicyRepository) GetByID(ctx context.Context, tenantID, id int64) (*policyDatamodel.Policy, error) {
	var row policyDatamodel.Policy
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *PolicyRepository) GetByIDs(ctx context.Context, tenantID int64, ids []int64) ([]*policyDatamodel.Policy, error) {
	var rows []*policyDatamodel.Policy
	if len(ids) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("priority ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *PolicyRepository) GetByName(ctx context.Context, tenantID int64, name string) (*policyDatamodel.Policy, error) {
	var row policyDatamodel.Policy
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND name = ?", tenantID, name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *PolicyRepository) Create(ctx context.Context, p *policyDatamodel.Policy) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PolicyRepository) Update(ctx context.Context, p *policyDatamodel.Policy, expectedVersion int64) error {
	res := r.db.WithContext(ctx).
		Model(p).
		Where("tenant_id = ? AND version = ?", p.TenantID, expectedVersion).
		Select("name", "description", "priority", "effect", "conditions", "time_conditions",
			"timezone", "is_active", "version", "updated_at").
		Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrVersionConflict
	}
	return nil
}

func (r *PolicyRepository) Delete(ctx context.Context, tenantID, id int64) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&policyDatamodel.Policy{}).Error
}
