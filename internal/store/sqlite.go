package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainsmoker-project/chainsmoker/internal/tactic"
)

// OperationalTimeLayout is the timestamp format analysts enter on the
// operational clock, e.g. "04/01/2025, 0830".
const OperationalTimeLayout = "01/02/2006, 1504"

// Store represents the SQLite storage implementation
type Store struct {
	db *sql.DB
}

// Event represents a stored attack-chain event. ID is assigned by the
// store on insert, is monotonic, and is never reused after deletion.
type Event struct {
	ID         int64     `json:"id"`
	Timestamp  string    `json:"timestamp"`
	PlotTime   time.Time `json:"plot_time,omitempty"`
	Plottable  bool      `json:"plottable"`
	Tactic     string    `json:"tactic"`
	SourceHost string    `json:"source_host"`
	DestHost   string    `json:"dest_host"`
	Details    string    `json:"details,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Operator   string    `json:"operator,omitempty"`
	ChainID    string    `json:"chain_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Annotation is a free-text note attached to one event. Annotations are
// append-only; they are removed only by the cascade when their event is
// deleted.
type Annotation struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	Author      string    `json:"author,omitempty"`
	TacticLabel string    `json:"tactic_label,omitempty"`
	DateLabel   string    `json:"date_label,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventFields carries the user-supplied fields for a new event.
type EventFields struct {
	Timestamp  string `json:"timestamp"`
	Tactic     string `json:"tactic"`
	SourceHost string `json:"source_host"`
	DestHost   string `json:"dest_host"`
	Details    string `json:"details"`
	Notes      string `json:"notes"`
	Operator   string `json:"operator"`
	ChainID    string `json:"chain_id"`
}

// AnnotationFields carries the user-supplied fields for a new annotation.
type AnnotationFields struct {
	Author      string `json:"author"`
	TacticLabel string `json:"tactic_label"`
	DateLabel   string `json:"date_label"`
	Body        string `json:"body"`
}

// ParseOperationalTime parses an event timestamp. The operational
// MM/DD/YYYY, HHMM format is tried first, then RFC 3339 for records
// arriving from the case-management feed.
func ParseOperationalTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(OperationalTimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		// The operational clock is timezone-naive.
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q (want MM/DD/YYYY, HHMM)", s)
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (*Store, error) {
	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+sqliteParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate performs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		// Events table. id is AUTOINCREMENT so deleted ids are never reused.
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			raw_timestamp TEXT NOT NULL,
			plot_time INTEGER,
			tactic TEXT NOT NULL,
			source_host TEXT NOT NULL,
			dest_host TEXT NOT NULL,
			details TEXT,
			notes TEXT,
			operator TEXT,
			chain_id TEXT,
			created_at INTEGER NOT NULL
		)`,

		// Annotations table
		`CREATE TABLE IF NOT EXISTS annotations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id INTEGER NOT NULL,
			author TEXT,
			tactic_label TEXT,
			date_label TEXT,
			body TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_events_plot_time ON events(plot_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_chain_id ON events(chain_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tactic ON events(tactic)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_event_id ON annotations(event_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	if err := s.setupAuditTable(); err != nil {
		return fmt.Errorf("failed to set up audit table: %w", err)
	}

	return nil
}

// validateEvent checks the user-supplied fields. requireTime controls
// whether an unparseable timestamp is rejected (interactive add) or
// tolerated with a null plot time (spreadsheet import keeps the row).
func validateEvent(f EventFields, requireTime bool) (time.Time, bool, *ValidationError) {
	fields := map[string]string{}

	plotTime, err := ParseOperationalTime(f.Timestamp)
	plottable := err == nil
	if err != nil && requireTime {
		fields["timestamp"] = err.Error()
	}
	if !tactic.Valid(f.Tactic) {
		fields["tactic"] = fmt.Sprintf("%q is not a MITRE tactic", f.Tactic)
	}
	if strings.TrimSpace(f.SourceHost) == "" {
		fields["source_host"] = "required"
	}
	if strings.TrimSpace(f.DestHost) == "" {
		fields["dest_host"] = "required"
	}
	if strings.TrimSpace(f.ChainID) == "" {
		fields["chain_id"] = "required"
	}

	if len(fields) > 0 {
		return time.Time{}, false, &ValidationError{Fields: fields}
	}
	return plotTime, plottable, nil
}

// AddEvent validates and inserts a new event, returning the stored record
// with its assigned id. A malformed timestamp, unknown tactic, or missing
// host/chain field fails with *ValidationError naming the field(s).
func (s *Store) AddEvent(ctx context.Context, f EventFields) (*Event, error) {
	return s.insertEvent(ctx, f, true)
}

// ImportEvent inserts a record from a bulk source. Unlike AddEvent it
// keeps rows whose timestamp cannot be parsed: the event is stored with a
// null plot time and excluded from time-ordered plotting.
func (s *Store) ImportEvent(ctx context.Context, f EventFields) (*Event, error) {
	return s.insertEvent(ctx, f, false)
}

func (s *Store) insertEvent(ctx context.Context, f EventFields, requireTime bool) (*Event, error) {
	plotTime, plottable, verr := validateEvent(f, requireTime)
	if verr != nil {
		return nil, verr
	}

	now := time.Now()
	var plotUnix sql.NullInt64
	if plottable {
		plotUnix = sql.NullInt64{Int64: plotTime.Unix(), Valid: true}
	}

	query := `INSERT INTO events (
		raw_timestamp, plot_time, tactic, source_host, dest_host,
		details, notes, operator, chain_id, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		f.Timestamp, plotUnix, f.Tactic, f.SourceHost, f.DestHost,
		f.Details, f.Notes, f.Operator, f.ChainID, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted event id: %w", err)
	}

	return &Event{
		ID:         id,
		Timestamp:  f.Timestamp,
		PlotTime:   plotTime,
		Plottable:  plottable,
		Tactic:     f.Tactic,
		SourceHost: f.SourceHost,
		DestHost:   f.DestHost,
		Details:    f.Details,
		Notes:      f.Notes,
		Operator:   f.Operator,
		ChainID:    f.ChainID,
		CreatedAt:  now,
	}, nil
}

// GetEvent returns a single event by id.
func (s *Store) GetEvent(ctx context.Context, id int64) (*Event, error) {
	query := `SELECT id, raw_timestamp, plot_time, tactic, source_host, dest_host,
		details, notes, operator, chain_id, created_at
		FROM events WHERE id = ?`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event %d: %w", id, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &NotFoundError{Kind: "event", ID: id}
	}
	return &events[0], nil
}

// ListEvents returns every event ordered by plot time ascending with id
// as the tie-break, so rebuilds of the timeline are reproducible. Events
// without a plot time sort first and are skipped by the builder.
func (s *Store) ListEvents(ctx context.Context) ([]Event, error) {
	query := `SELECT id, raw_timestamp, plot_time, tactic, source_host, dest_host,
		details, notes, operator, chain_id, created_at
		FROM events ORDER BY plot_time ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DeleteEvent removes an event and all of its annotations in a single
// transaction. Partial deletion is never observable: either the event and
// every annotation are gone, or nothing changed.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) error {
		_ = tx.Rollback()
		return e
	}

	// Annotations first: FK cascade depends on a pragma, so delete
	// explicitly to hold under either driver.
	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE event_id = ?`, id); err != nil {
		return rollback(fmt.Errorf("delete annotations for event %d: %w", id, err))
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return rollback(fmt.Errorf("delete event %d: %w", id, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return rollback(fmt.Errorf("rows affected for event %d: %w", id, err))
	}
	if affected == 0 {
		return rollback(&NotFoundError{Kind: "event", ID: id})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AddAnnotation appends a note to an event and returns the event's full
// annotation list ordered by creation time. Fails with *ValidationError
// if the body is empty and *NotFoundError if the event does not exist.
func (s *Store) AddAnnotation(ctx context.Context, eventID int64, f AnnotationFields) ([]Annotation, error) {
	if strings.TrimSpace(f.Body) == "" {
		return nil, &ValidationError{Fields: map[string]string{"body": "required"}}
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM events WHERE id = ?`, eventID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check event %d: %w", eventID, err)
	}
	if exists == 0 {
		return nil, &NotFoundError{Kind: "event", ID: eventID}
	}

	query := `INSERT INTO annotations (event_id, author, tactic_label, date_label, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		eventID, f.Author, f.TacticLabel, f.DateLabel, f.Body, time.Now().Unix(),
	); err != nil {
		return nil, fmt.Errorf("failed to insert annotation: %w", err)
	}

	return s.ListAnnotations(ctx, eventID)
}

// ListAnnotations returns an event's annotations ordered by creation time
// ascending (id breaks same-second ties). An unknown or annotation-free
// event yields an empty list, not an error.
func (s *Store) ListAnnotations(ctx context.Context, eventID int64) ([]Annotation, error) {
	query := `SELECT id, event_id, author, tactic_label, date_label, body, created_at
		FROM annotations WHERE event_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations for event %d: %w", eventID, err)
	}
	defer rows.Close()

	annotations := []Annotation{}
	for rows.Next() {
		var a Annotation
		var author, tacticLabel, dateLabel sql.NullString
		var createdAt int64

		if err := rows.Scan(&a.ID, &a.EventID, &author, &tacticLabel, &dateLabel, &a.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		a.Author = author.String
		a.TacticLabel = tacticLabel.String
		a.DateLabel = dateLabel.String
		a.CreatedAt = time.Unix(createdAt, 0)
		annotations = append(annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating annotation rows: %w", err)
	}

	return annotations, nil
}

// CountEvents returns the total number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// scanEvents scans database rows into Event structs
func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var event Event
		var plotTime sql.NullInt64
		var details, notes, operator, chainID sql.NullString
		var createdAt int64

		err := rows.Scan(&event.ID, &event.Timestamp, &plotTime, &event.Tactic,
			&event.SourceHost, &event.DestHost, &details, &notes,
			&operator, &chainID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if plotTime.Valid {
			event.PlotTime = time.Unix(plotTime.Int64, 0)
			event.Plottable = true
		}
		event.Details = details.String
		event.Notes = notes.String
		event.Operator = operator.String
		event.ChainID = chainID.String
		event.CreatedAt = time.Unix(createdAt, 0)

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}
