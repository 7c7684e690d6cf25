package audit

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	ActionAccessDecision = "access.decide"

	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Entry is one immutable audit record. Optional columns are nil when the
// event has no such context.
type Entry struct {
	ID                  string    `db:"id" json:"id"`
	UserID              int64     `db:"user_id" json:"user_id"`
	TenantID            *int64    `db:"tenant_id" json:"tenant_id,omitempty"`
	Action              string    `db:"action" json:"action"`
	EntityType          string    `db:"entity_type" json:"entity_type"`
	EntityID            *string   `db:"entity_id" json:"entity_id,omitempty"`
	DelegationID        *int64    `db:"delegation_id" json:"delegation_id,omitempty"`
	DelegatedFromUserID *int64    `db:"delegated_from_user_id" json:"delegated_from_user_id,omitempty"`
	IPAddress           *string   `db:"ip_address" json:"ip_address,omitempty"`
	Decision            *string   `db:"decision" json:"decision,omitempty"`
	Reason              *string   `db:"reason" json:"reason,omitempty"`
	Permission          *string   `db:"permission" json:"permission,omitempty"`
	PolicyID            *int64    `db:"policy_id" json:"policy_id,omitempty"`
	Details             Details   `db:"details" json:"details,omitempty"`
	LoggedAt            time.Time `db:"logged_at" json:"logged_at"`
}

func (e *Entry) Validate() error {
	if e.Action == "" {
		return errors.New("audit entry requires an action")
	}
	if e.EntityType == "" {
		return errors.New("audit entry requires an entity type")
	}
	return nil
}

// Details is free-form context stored as a JSON document.
type Details map[string]interface{}

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Details) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("audit details: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}
	return json.Unmarshal(raw, d)
}

// Filter selects entries. A nil TenantID spans every tenant and is only
// used by super-admin queries.
type Filter struct {
	TenantID   *int64
	UserID     int64
	Action     string
	EntityType string
	Decision   string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// SummaryRow counts entries per tenant and decision.
type SummaryRow struct {
	TenantID *int64 `db:"tenant_id" json:"tenant_id"`
	Decision string `db:"decision" json:"decision"`
	Total    int64  `db:"total" json:"total"`
}

func Int64(v int64) *int64 {
	return &v
}

func String(v string) *string {
	return &v
}
