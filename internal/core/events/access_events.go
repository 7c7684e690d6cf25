package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleChanged       = "role.changed"
	EventTypePolicyChanged     = "policy.changed"
	EventTypeDelegationChanged = "delegation.changed"
	EventTypeAssignmentChanged = "assignment.changed"
)

// ChangeTypes lists every event that mutates access state within a tenant.
var ChangeTypes = []string{
	EventTypeRoleChanged,
	EventTypePolicyChanged,
	EventTypeDelegationChanged,
	EventTypeAssignmentChanged,
}

const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpActivate = "activate"
	OpRevoke   = "revoke"
	OpExpire   = "expire"
	OpAssign   = "assign"
	OpUnassign = "unassign"
)

// AccessChangedEvent is published synchronously after every committed write to
// roles, policies, delegations or role assignments.
type AccessChangedEvent struct {
	BaseEvent
	TenantID   int64  `json:"tenant_id"`
	ActorID    int64  `json:"actor_id"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	Operation  string `json:"operation"`
	// UserID is the affected user for assignment changes.
	UserID int64 `json:"user_id,omitempty"`
}

func newAccessChangedEvent(eventType, entityType string, tenantID, actorID, entityID int64, op string, data map[string]interface{}) *AccessChangedEvent {
	payload := map[string]interface{}{
		"tenant_id":   tenantID,
		"actor_id":    actorID,
		"entity_type": entityType,
		"entity_id":   entityID,
		"operation":   op,
	}
	for k, v := range data {
		payload[k] = v
	}
	return &AccessChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      payload,
		},
		TenantID:   tenantID,
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
	}
}

func NewRoleChangedEvent(tenantID, actorID, roleID int64, op string, data map[string]interface{}) *AccessChangedEvent {
	return newAccessChangedEvent(EventTypeRoleChanged, "role", tenantID, actorID, roleID, op, data)
}

func NewPolicyChangedEvent(tenantID, actorID, policyID int64, op string, data map[string]interface{}) *AccessChangedEvent {
	return newAccessChangedEvent(EventTypePolicyChanged, "policy", tenantID, actorID, policyID, op, data)
}

func NewDelegationChangedEvent(tenantID, actorID, delegationID int64, op string, data map[string]interface{}) *AccessChangedEvent {
	return newAccessChangedEvent(EventTypeDelegationChanged, "delegation", tenantID, actorID, delegationID, op, data)
}

func NewAssignmentChangedEvent(tenantID, actorID, roleID, userID int64, op string) *AccessChangedEvent {
	e := newAccessChangedEvent(EventTypeAssignmentChanged, "role_assignment", tenantID, actorID, roleID, op, map[string]interface{}{"user_id": userID})
	e.UserID = userID
	return e
}
