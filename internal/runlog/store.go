// Package runlog records coding-agent attempts in a sqlite ledger next to
// the session logs. The ledger is observability only: the plan branch
// remains the sole owner of orchestration state, and a deleted ledger loses
// nothing but history.
package runlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_id TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	model TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	timeout_kind TEXT NOT NULL DEFAULT 'none',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	log_path TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_ticket ON attempts(ticket_id, started_at);
`

// Attempt is one recorded agent run attempt.
type Attempt struct {
	TicketID    string
	Attempt     int
	Model       string
	ExitCode    int
	TimeoutKind string
	Duration    time.Duration
	LogPath     string
	StartedAt   time.Time
}

// Store is the sqlite-backed attempt ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create runlog dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open runlog db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init runlog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one attempt row.
func (s *Store) Record(a Attempt) error {
	_, err := s.db.Exec(
		`INSERT INTO attempts (ticket_id, attempt, model, exit_code, timeout_kind, duration_ms, log_path, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TicketID, a.Attempt, a.Model, a.ExitCode, a.TimeoutKind,
		a.Duration.Milliseconds(), a.LogPath, a.StartedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Recent returns the latest n attempts, newest first.
func (s *Store) Recent(n int) ([]Attempt, error) {
	rows, err := s.db.Query(
		`SELECT ticket_id, attempt, model, exit_code, timeout_kind, duration_ms, log_path, started_at
		 FROM attempts ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var durationMs int64
		var startedAt string
		if err := rows.Scan(&a.TicketID, &a.Attempt, &a.Model, &a.ExitCode, &a.TimeoutKind, &durationMs, &a.LogPath, &startedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Duration = time.Duration(durationMs) * time.Millisecond
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			a.StartedAt = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
