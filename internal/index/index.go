// Package index maintains an optional SQLite projection of the event log
// for querying.
//
// Uses SQLite with WAL mode for concurrent read access. The projection is
// derived state: it is never consulted for sequencing or consumption, and
// rebuilding it from the log is always safe.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/windlass-io/windlass/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Index is the SQLite-backed event projection.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database at the given path.
// Applies required pragmas and migrations automatically; idempotent.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to index: %w", err)
	}

	// SQLite supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	if x.db == nil {
		return nil
	}
	return x.db.Close()
}

// Reset drops all projected rows, ahead of a full rebuild.
func (x *Index) Reset(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	return nil
}

// Insert projects one event. Duplicate sequences are silently ignored so
// re-projecting an already-indexed log region is idempotent.
func (x *Index) Insert(ctx context.Context, ev record.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("index event %s: %w", ev.EventID, err)
	}
	_, err = x.db.ExecContext(ctx, `
		INSERT INTO events
		(sequence, event_id, event_type, payload, timestamp, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sequence) DO NOTHING
	`,
		ev.Sequence,
		ev.EventID,
		ev.EventType,
		string(payload),
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Status,
	)
	if err != nil {
		return fmt.Errorf("index event %s: %w", ev.EventID, err)
	}
	return nil
}

// QueryOptions narrows a Query.
type QueryOptions struct {
	EventType string // exact match, empty matches all
	SinceSeq  int64  // minimum sequence, inclusive
	Limit     int    // 0 means no limit
}

// Query returns indexed events in sequence order.
func (x *Index) Query(ctx context.Context, opts QueryOptions) ([]record.Event, error) {
	q := `
		SELECT sequence, event_id, event_type, payload, timestamp, status
		FROM events
		WHERE sequence >= ?
	`
	args := []any{opts.SinceSeq}
	if opts.EventType != "" {
		q += ` AND event_type = ?`
		args = append(args, opts.EventType)
	}
	q += ` ORDER BY sequence ASC`
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var events []record.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index rows: %w", err)
	}
	return events, nil
}

// Count returns the number of indexed events.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count indexed events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (record.Event, error) {
	var (
		ev      record.Event
		payload string
		ts      string
	)
	if err := rows.Scan(&ev.Sequence, &ev.EventID, &ev.EventType, &payload, &ts, &ev.Status); err != nil {
		return record.Event{}, fmt.Errorf("scan indexed event: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
		return record.Event{}, fmt.Errorf("parse indexed payload: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return record.Event{}, fmt.Errorf("parse indexed timestamp: %w", err)
	}
	ev.Timestamp = parsed
	return ev, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and stamps the schema
// version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
