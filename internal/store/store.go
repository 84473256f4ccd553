// Package store provides the SQLite job table behind the upload/result API.
//
// Jobs are transient: an upload creates a pending row, a worker completes or
// fails it, clients poll it by id, and rows older than the retention window
// are purged. Nothing here is a historical archive of extractions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/ownerscan/internal/extract"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.ownerscan/jobs.db"

// DefaultRetention is how long finished and pending jobs are kept.
const DefaultRetention = 24 * time.Hour

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is one uploaded document and, once processed, its owners.
type Job struct {
	ID        string
	Filename  string
	Provider  string
	Status    JobStatus
	Records   []extract.Record
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobStats counts jobs per status.
type JobStats struct {
	Pending       int64
	Done          int64
	Failed        int64
	SchemaVersion string
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the job storage interface.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	CompleteJob(ctx context.Context, id string, records []extract.Record) error
	FailJob(ctx context.Context, id string, reason string) error
	GetJob(ctx context.Context, id string) (*Job, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (*JobStats, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	} else {
		cfg.DBPath = expandPath(cfg.DBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
