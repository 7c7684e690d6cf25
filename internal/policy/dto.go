package policy

type CreatePolicyDTO struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Priority       int             `json:"priority"`
	Effect         Effect          `json:"effect"`
	Conditions     []Condition     `json:"conditions"`
	TimeConditions []TimeCondition `json:"time_conditions"`
	Timezone       string          `json:"timezone"`
}

type UpdatePolicyDTO struct {
	CreatePolicyDTO
	IsActive *bool `json:"is_active"`
	Version  int64 `json:"version"`
}

type SetActiveDTO struct {
	IsActive bool  `json:"is_active"`
	Version  int64 `json:"version"`
}

type PoliciesResponse struct {
	Policies []*Policy `json:"policies"`
}
