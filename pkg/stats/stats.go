// Package stats keeps an aggregate index of terminal pipeline outcomes in a
// local SQLite database. The per-occurrence JSON records remain the audit
// source of truth; this index only powers quick reporting.
package stats

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id TEXT PRIMARY KEY,
	operation TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	status TEXT NOT NULL,
	resolved_by TEXT NOT NULL DEFAULT '',
	error_type TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL,
	cost REAL NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
CREATE INDEX IF NOT EXISTS idx_outcomes_created_at ON outcomes(created_at);
`

// Outcome is one terminal pipeline result: either recovered by a tier or
// escalated to a human. First-try successes are not recorded.
type Outcome struct {
	ID         string    `db:"id"`
	Operation  string    `db:"operation"`
	ExitCode   int       `db:"exit_code"`
	Status     string    `db:"status"`
	ResolvedBy string    `db:"resolved_by"`
	ErrorType  string    `db:"error_type"`
	Attempts   int       `db:"attempts"`
	Cost       float64   `db:"cost"`
	DurationMS int64     `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

// Summary aggregates the recorded outcomes.
type Summary struct {
	Total       int
	Recovered   int
	Escalated   int
	ByTier      map[string]int
	ByErrorType map[string]int
	TotalCost   float64
}

// Store wraps the SQLite outcome index.
type Store struct {
	db *sqlx.DB
}

// DefaultDBPath returns the default index location, honouring
// RESCUE_BASE_PATH.
func DefaultDBPath() (string, error) {
	if basePath := os.Getenv("RESCUE_BASE_PATH"); basePath != "" {
		return filepath.Join(basePath, "stats.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".rescue", "stats.db"), nil
}

// Open opens or creates the index database and applies the schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stats database")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply stats schema")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one terminal outcome.
func (s *Store) Record(ctx context.Context, outcome Outcome) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO outcomes (id, operation, exit_code, status, resolved_by, error_type, attempts, cost, duration_ms, created_at)
		VALUES (:id, :operation, :exit_code, :status, :resolved_by, :error_type, :attempts, :cost, :duration_ms, :created_at)`,
		outcome)
	return errors.Wrap(err, "failed to record outcome")
}

// Recent returns the most recent outcomes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	var outcomes []Outcome
	err := s.db.SelectContext(ctx, &outcomes,
		`SELECT * FROM outcomes ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query recent outcomes")
	}
	return outcomes, nil
}

// Summarize aggregates all recorded outcomes.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	summary := Summary{
		ByTier:      map[string]int{},
		ByErrorType: map[string]int{},
	}

	var outcomes []Outcome
	if err := s.db.SelectContext(ctx, &outcomes, `SELECT * FROM outcomes`); err != nil {
		return summary, errors.Wrap(err, "failed to query outcomes")
	}

	for _, o := range outcomes {
		summary.Total++
		summary.TotalCost += o.Cost
		switch o.Status {
		case "recovered":
			summary.Recovered++
			if o.ResolvedBy != "" {
				summary.ByTier[o.ResolvedBy]++
			}
		case "escalated":
			summary.Escalated++
		}
		if o.ErrorType != "" {
			summary.ByErrorType[o.ErrorType]++
		}
	}
	return summary, nil
}
