package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/ifarm/internal"
	roleDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/role"
	"github.com/frahmantamala/ifarm/internal/role"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) List(ctx context.Context, tenantID int64) ([]*roleDatamodel.Role, error) {
	var rows []*roleDatamodel.Role
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name ASC").Find(&rows).Error
	return rows, err
}

func (r *RoleRepository) GetByID(ctx context.Context, tenantID, id int64) (*roleDatamodel.Role, error) {
	var row roleDatamodel.Role
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) GetByName(ctx context.Context, tenantID int64, name string) (*roleDatamodel.Role, error) {
	var row roleDatamodel.Role
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND name = ?", tenantID, name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) Create(ctx context.Context, row *roleDatamodel.Role) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *RoleRepository) Update(ctx context.Context, row *roleDatamodel.Role, expectedVersion int64) error {
	res := r.db.WithContext(ctx).
		Model(row).
		Where("tenant_id = ? AND version = ?", row.TenantID, expectedVersion).
		Select("name", "description", "permission_ids", "policy_ids", "version", "updated_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrVersionConflict
	}
	return nil
}

func (r *RoleRepository) Delete(ctx context.Context, tenantID, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND role_id = ?", tenantID, id).
			Delete(&roleDatamodel.UserRole{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ? AND id = ?", tenantID, id).
			Delete(&roleDatamodel.Role{}).Error
	})
}

func (r *RoleRepository) Assign(ctx context.Context, assignment *roleDatamodel.UserRole) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(assignment).Error
}

func (r *RoleRepository) Unassign(ctx context.Context, tenantID, roleID, userID int64) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND role_id = ? AND user_id = ?", tenantID, roleID, userID).
		Delete(&roleDatamodel.UserRole{}).Error
}

func (r *RoleRepository) RolesForUser(ctx context.Context, tenantID, userID int64) ([]*roleDatamodel.Role, error) {
	var rows []*roleDatamodel.Role
	err := r.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id AND user_roles.tenant_id = roles.tenant_id").
		Where("roles.tenant_id = ? AND user_roles.user_id = ?", tenantID, userID).
		Order("roles.id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *RoleRepository) UsersForRole(ctx context.Context, tenantID, roleID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&roleDatamodel.UserRole{}).
		Where("tenant_id = ? AND role_id = ?", tenantID, roleID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
