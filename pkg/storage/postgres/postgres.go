package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

// columns maps searchable fields to audit_logs columns
var columns = map[string]string{
	audit.FieldAction:       "action",
	audit.FieldEntity:       "entity",
	audit.FieldActorDisplay: "actor_display",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id            BIGSERIAL PRIMARY KEY,
		action        TEXT NOT NULL,
		entity        TEXT NOT NULL,
		actor_display TEXT NOT NULL,
		details       JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs (action)`,
	`CREATE OR REPLACE FUNCTION audit_logs_append_only() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'audit_logs is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_logs_append_only ON audit_logs`,
	`CREATE TRIGGER audit_logs_append_only BEFORE UPDATE OR DELETE ON audit_logs
		FOR EACH ROW EXECUTE FUNCTION audit_logs_append_only()`,
}

// Store is the PostgreSQL audit log. Appends go to the primary, reads to a replica.
type Store struct {
	conns  *ConnectionManager
	logger *observability.Logger
}

// NewStore creates a Store over conns
func NewStore(conns *ConnectionManager, logger *observability.Logger) *Store {
	return &Store{conns: conns, logger: logger}
}

// EnsureSchema creates the audit_logs table, its indexes and the trigger
// rejecting updates and deletes
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.conns.Primary().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply audit schema: %w", err)
		}
	}
	s.logger.Debug("Audit schema ready")
	return nil
}

// Append inserts the entry; the database assigns id and created_at.
// details is sent as text since lib/pq encodes []byte as bytea.
func (s *Store) Append(ctx context.Context, entry audit.AuditEntry) (audit.AuditEntry, error) {
	details := entry.Details
	if details == nil {
		details = audit.Details{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return audit.AuditEntry{}, fmt.Errorf("failed to encode details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (action, entity, actor_display, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	var id int64
	err = s.conns.Primary().QueryRowContext(ctx, query,
		entry.Action,
		entry.Entity,
		entry.ActorDisplay,
		string(raw),
	).Scan(&id, &entry.CreatedAt)
	if err != nil {
		return audit.AuditEntry{}, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	entry.ID = strconv.FormatInt(id, 10)
	entry.Details = details
	return entry, nil
}

// Find returns matching entries newest first
func (s *Store) Find(ctx context.Context, filter audit.Filter, window audit.Window) ([]audit.AuditEntry, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, action, entity, actor_display, details, created_at
		FROM audit_logs
	` + where + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, window.Limit, window.Skip)

	rows, err := s.conns.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	entries := []audit.AuditEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit logs: %w", err)
	}
	return entries, nil
}

// Count returns the number of matching entries
func (s *Store) Count(ctx context.Context, filter audit.Filter) (int64, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := s.conns.Replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return total, nil
}

// HealthCheck pings the underlying connections
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// Close closes the underlying connections
func (s *Store) Close() error {
	return s.conns.Close()
}

// buildWhere renders filter as a WHERE clause with $n placeholders. Patterns
// are matched with ~*, the case-insensitive POSIX regex operator.
func buildWhere(filter audit.Filter) (string, []interface{}, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.From)
		argCount++
	}

	if filter.To != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.To)
		argCount++
	}

	for _, m := range []*audit.Match{filter.Action, filter.Search} {
		if m == nil {
			continue
		}
		clauses := make([]string, 0, len(m.Fields))
		for _, field := range m.Fields {
			col, ok := columns[field]
			if !ok {
				return "", nil, fmt.Errorf("%w: %q", audit.ErrUnknownField, field)
			}
			clauses = append(clauses, fmt.Sprintf("%s ~* $%d", col, argCount))
		}
		where += " AND (" + strings.Join(clauses, " OR ") + ")"
		args = append(args, m.Pattern)
		argCount++
	}

	return where, args, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (audit.AuditEntry, error) {
	var (
		entry audit.AuditEntry
		id    int64
		raw   []byte
	)
	if err := row.Scan(&id, &entry.Action, &entry.Entity, &entry.ActorDisplay, &raw, &entry.CreatedAt); err != nil {
		return audit.AuditEntry{}, fmt.Errorf("failed to scan audit entry: %w", err)
	}
	entry.ID = strconv.FormatInt(id, 10)
	entry.Details = audit.Details{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &entry.Details); err != nil {
			return audit.AuditEntry{}, fmt.Errorf("failed to decode details: %w", err)
		}
	}
	return entry, nil
}

var _ audit.Store = (*Store)(nil)
