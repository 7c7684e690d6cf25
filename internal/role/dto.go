package role

type CreateRoleDTO struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TemplateID  string   `json:"template_id"`
	Permissions []string `json:"permissions"`
	PolicyIDs   []int64  `json:"policy_ids"`
}

type UpdateRoleDTO struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	PolicyIDs   []int64  `json:"policy_ids"`
	Version     int64    `json:"version"`
}

type PermissionsChangeDTO struct {
	Permissions []string `json:"permissions"`
	Version     int64    `json:"version"`
}

type PoliciesChangeDTO struct {
	PolicyIDs []int64 `json:"policy_ids"`
	Version   int64   `json:"version"`
}

type AssignDTO struct {
	UserID int64 `json:"user_id"`
}

type RolesResponse struct {
	Roles []*Role `json:"roles"`
}

type TemplatesResponse struct {
	Templates []Template `json:"templates"`
}

type EffectivePermissionsResponse struct {
	UserID      int64    `json:"user_id"`
	Permissions []string `json:"permissions"`
}
