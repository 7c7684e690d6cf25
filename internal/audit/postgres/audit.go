package postgres

import (
	"context"
	"strings"

	"github.com/frahmantamala/ifarm/internal/audit"
	"github.com/jmoiron/sqlx"
)

// Store is the insert-only audit repository. It has no update or delete path.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) audit.Store {
	return &Store{db: db}
}

const insertEntry = `
INSERT INTO audit_logs (
	id, user_id, tenant_id, action, entity_type, entity_id, delegation_id,
	delegated_from_user_id, ip_address, decision, reason, permission, policy_id,
	details, logged_at
) VALUES (
	:id, :user_id, :tenant_id, :action, :entity_type, :entity_id, :delegation_id,
	:delegated_from_user_id, :ip_address, :decision, :reason, :permission, :policy_id,
	:details, :logged_at
)`

const selectEntries = `
SELECT id, user_id, tenant_id, action, entity_type, entity_id, delegation_id,
	delegated_from_user_id, ip_address, decision, reason, permission, policy_id,
	details, logged_at
FROM audit_logs`

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	_, err := s.db.NamedExecContext(ctx, insertEntry, e)
	return err
}

func (s *Store) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	where, args := conditions(f)
	query := selectEntries + where + " ORDER BY logged_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var out []audit.Entry
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Summary(ctx context.Context, f audit.Filter) ([]audit.SummaryRow, error) {
	where, args := conditions(f)
	query := `SELECT tenant_id, COALESCE(decision, '') AS decision, COUNT(*) AS total FROM audit_logs` +
		where + ` GROUP BY tenant_id, COALESCE(decision, '') ORDER BY tenant_id, decision`

	var out []audit.SummaryRow
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func conditions(f audit.Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		clauses = append(clauses, clause)
		args = append(args, arg)
	}

	if f.TenantID != nil {
		add("tenant_id = ?", *f.TenantID)
	}
	if f.UserID != 0 {
		add("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.EntityType != "" {
		add("entity_type = ?", f.EntityType)
	}
	if f.Decision != "" {
		add("decision = ?", f.Decision)
	}
	if !f.From.IsZero() {
		add("logged_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("logged_at < ?", f.To.UTC())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
