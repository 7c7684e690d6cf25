package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	delegationDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/delegation"
	"github.com/frahmantamala/ifarm/internal/delegation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DelegationRepository struct {
	db *gorm.DB
}

func NewDelegationRepository(db *gorm.DB) delegation.RepositoryAPI {
	return &DelegationRepository{db: db}
}

func (r *DelegationRepository) List(ctx context.Context, tenantID int64, filter delegation.ListFilter) ([]*delegationDatamodel.Delegation, error) {
	var rows []*delegationDatamodel.Delegation
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.UserID != 0 {
		q = q.Where("delegator_user_id = ? OR delegate_user_id = ?", filter.UserID, filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	err := q.Order("id DESC").Find(&rows).Error
	return rows, err
}

func (r *DelegationRepository) GetByID(ctx context.Context, tenantID, id int64) (*delegationDatamodel.Delegation, error) {
	var row delegationDatamodel.Delegation
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *DelegationRepository) ActiveForDelegate(ctx context.Context, tenantID, userID int64) ([]*delegationDatamodel.Delegation, error) {
	var rows []*delegationDatamodel.Delegation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegate_user_id = ? AND status = ?", tenantID, userID, string(delegation.StatusActive)).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *DelegationRepository) Create(ctx context.Context, row *delegationDatamodel.Delegation) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *DelegationRepository) Update(ctx context.Context, row *delegationDatamodel.Delegation, expectedVersion int64) error {
	res := r.db.WithContext(ctx).
		Model(row).
		Where("tenant_id = ? AND version = ?", row.TenantID, expectedVersion).
		Select("status", "revoked_at", "revoked_by", "version", "updated_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrVersionConflict
	}
	return nil
}

// ExpireDue expires in a single UPDATE and reports the rows it actually
// changed, so a delegation revoked concurrently is never counted.
func (r *DelegationRepository) ExpireDue(ctx context.Context, now time.Time) (map[int64][]int64, error) {
	var expired []delegationDatamodel.Delegation
	err := r.db.WithContext(ctx).
		Model(&expired).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "tenant_id"}}}).
		Where("status = ? AND end_date < ?", string(delegation.StatusActive), now).
		Updates(map[string]interface{}{
			"status":     string(delegation.StatusExpired),
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, err
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	out := make(map[int64][]int64)
	for _, d := range expired {
		out[d.TenantID] = append(out[d.TenantID], d.ID)
	}
	return out, nil
}
