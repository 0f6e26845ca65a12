// Package history records export runs in a local SQLite database so
// `tabx history` can answer what was exported, when, and where it went.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses. A run starts as submitted and ends in exactly one of the
// terminal statuses.
const (
	RunSubmitted = "submitted"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunTimedOut  = "timed_out"
)

// Run is one recorded export run.
type Run struct {
	ID          string
	Table       string
	Format      string
	ColumnCount int
	RowLimit    int
	JobID       string
	Status      string
	Error       string
	FilePath    string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Store is the interface the CLI records runs through. Nop is used when
// history is disabled.
type Store interface {
	RecordSubmitted(table, format string, columnCount, rowLimit int, jobID string) (string, error)
	MarkCompleted(runID, filePath string) error
	MarkFailed(runID, status, errMsg string) error
	GetAllRuns() ([]Run, error)
	GetRunByID(runID string) (*Run, error)
	Close() error
}

// SQLite is the file-backed Store implementation.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS export_runs (
	id            TEXT PRIMARY KEY,
	table_name    TEXT NOT NULL,
	format        TEXT NOT NULL,
	column_count  INTEGER NOT NULL,
	row_limit     INTEGER NOT NULL,
	job_id        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	file_path     TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_export_runs_started ON export_runs(started_at DESC);
`

// Open opens (creating if needed) the history database at path.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// A single writer keeps SQLite happy without WAL tuning.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// RecordSubmitted inserts a new run and returns its ID.
func (s *SQLite) RecordSubmitted(table, format string, columnCount, rowLimit int, jobID string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO export_runs (id, table_name, format, column_count, row_limit, job_id, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, table, format, columnCount, rowLimit, jobID, RunSubmitted, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return runID, nil
}

// MarkCompleted finalizes a run as completed with its downloaded file path.
func (s *SQLite) MarkCompleted(runID, filePath string) error {
	return s.finish(runID, RunCompleted, "", filePath)
}

// MarkFailed finalizes a run with a failure status (failed or timed_out)
// and the error message shown to the user.
func (s *SQLite) MarkFailed(runID, status, errMsg string) error {
	if status != RunFailed && status != RunTimedOut {
		status = RunFailed
	}
	return s.finish(runID, status, errMsg, "")
}

func (s *SQLite) finish(runID, status, errMsg, filePath string) error {
	res, err := s.db.Exec(
		`UPDATE export_runs SET status = ?, error = ?, file_path = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, filePath, time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no run with id %s", runID)
	}
	return nil
}

// GetAllRuns returns all runs, newest first.
func (s *SQLite) GetAllRuns() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, table_name, format, column_count, row_limit, job_id, status, error, file_path, started_at, finished_at
		 FROM export_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRunByID returns one run, or an error when it does not exist.
func (s *SQLite) GetRunByID(runID string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, table_name, format, column_count, row_limit, job_id, status, error, file_path, started_at, finished_at
		 FROM export_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no run with id %s", runID)
	}
	return r, err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := s.Scan(&r.ID, &r.Table, &r.Format, &r.ColumnCount, &r.RowLimit,
		&r.JobID, &r.Status, &r.Error, &r.FilePath, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Nop discards all writes and lists nothing; used when history is disabled.
type Nop struct{}

var _ Store = Nop{}

func (Nop) RecordSubmitted(string, string, int, int, string) (string, error) { return "", nil }
func (Nop) MarkCompleted(string, string) error                              { return nil }
func (Nop) MarkFailed(string, string, string) error                         { return nil }
func (Nop) GetAllRuns() ([]Run, error)                                      { return nil, nil }
func (Nop) GetRunByID(string) (*Run, error) {
	return nil, fmt.Errorf("history is disabled")
}
func (Nop) Close() error { return nil }
