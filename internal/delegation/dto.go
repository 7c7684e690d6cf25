package delegation

import "time"

type CreateDelegationDTO struct {
	DelegateUserID int64        `json:"delegate_user_id"`
	Type           Type         `json:"type"`
	StartDate      *time.Time   `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	Permissions    []string     `json:"permissions"`
	RoleID         *int64       `json:"role_id"`
	Restrictions   Restrictions `json:"restrictions"`
	Reason         string       `json:"reason"`
}

// ListFilter narrows a tenant listing. UserID matches either side of a
// delegation.
type ListFilter struct {
	UserID int64
	Status Status
}

type DelegationsResponse struct {
	Delegations []*Delegation `json:"delegations"`
}
