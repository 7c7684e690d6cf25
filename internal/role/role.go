package role

import (
	"time"

	roleDatamodel "github.com/frahmantamala/ifarm/internal/core/datamodel/role"
	"github.com/frahmantamala/ifarm/internal/permission"
)

type Role struct {
	ID          int64          `json:"id"`
	TenantID    int64          `json:"tenant_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Permissions permission.Set `json:"permissions"`
	PolicyIDs   []int64        `json:"policy_ids"`
	// TemplateID records which template the role was cloned from. Provenance only.
	TemplateID string    `json:"template_id,omitempty"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (r *Role) HasPolicy(id int64) bool {
	for _, p := range r.PolicyIDs {
		if p == id {
			return true
		}
	}
	return false
}

func ToDataModel(r *Role, catalog *permission.Catalog) (*roleDatamodel.Role, error) {
	ids, err := catalog.IDs(r.Permissions)
	if err != nil {
		return nil, err
	}
	row := &roleDatamodel.Role{
		ID:            r.ID,
		TenantID:      r.TenantID,
		Name:          r.Name,
		Description:   r.Description,
		PermissionIDs: ids,
		PolicyIDs:     append([]int64{}, r.PolicyIDs...),
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.TemplateID != "" {
		tpl := r.TemplateID
		row.TemplateID = &tpl
	}
	return row, nil
}

func FromDataModel(row *roleDatamodel.Role, catalog *permission.Catalog) (*Role, error) {
	perms, err := catalog.ByIDs(row.PermissionIDs)
	if err != nil {
		return nil, err
	}
	r := &Role{
		ID:          row.ID,
		TenantID:    row.TenantID,
		Name:        row.Name,
		Description: row.Description,
		Permissions: perms,
		PolicyIDs:   append([]int64{}, row.PolicyIDs...),
		Version:     row.Version,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.TemplateID != nil {
		r.TemplateID = *row.TemplateID
	}
	return r, nil
}
