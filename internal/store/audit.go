package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditEntry records one mutation of the event collection. The trail is
// append-only; entries survive deletion of the event they reference.
type AuditEntry struct {
	ID        int64             `json:"id"`
	EventID   int64             `json:"event_id,omitempty"`
	Action    string            `json:"action"` // "add_event", "delete_event", "add_annotation", "import"
	Actor     string            `json:"actor"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// setupAuditTable creates the audit table if it doesn't exist
func (s *Store) setupAuditTable() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id INTEGER,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			details TEXT,
			created_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_entries(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute audit migration: %w", err)
		}
	}

	return nil
}

// RecordAudit appends an entry to the audit trail. Audit writes are
// best-effort from the caller's point of view but still return the error
// so the service can log it.
func (s *Store) RecordAudit(ctx context.Context, entry AuditEntry) error {
	detailsJSON := "{}"
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		detailsJSON = string(b)
	}

	var eventID sql.NullInt64
	if entry.EventID != 0 {
		eventID = sql.NullInt64{Int64: entry.EventID, Valid: true}
	}

	query := `INSERT INTO audit_entries (event_id, action, actor, details, created_at)
		VALUES (?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		eventID, entry.Action, entry.Actor, detailsJSON, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// ListAudit returns audit entries newest first, up to limit (0 = all).
func (s *Store) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	query := `SELECT id, event_id, action, actor, details, created_at
		FROM audit_entries ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var eventID sql.NullInt64
		var detailsJSON sql.NullString
		var createdAt int64

		if err := rows.Scan(&e.ID, &eventID, &e.Action, &e.Actor, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if eventID.Valid {
			e.EventID = eventID.Int64
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			details := map[string]string{}
			if err := json.Unmarshal([]byte(detailsJSON.String), &details); err == nil {
				e.Details = details
			}
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return entries, nil
}
