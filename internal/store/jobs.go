package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/ownerscan/internal/extract"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// CreateJob inserts a pending job. An empty ID is filled with a new UUID.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) error {
	if strings.TrimSpace(job.Provider) == "" {
		return fmt.Errorf("creating job: provider is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := s.now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, filename, provider, status, owners, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '[]', '', ?, ?)`,
		job.ID, job.Filename, job.Provider, JobPending,
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}

	job.Status = JobPending
	job.Records = []extract.Record{}
	job.Error = ""
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// CompleteJob stores the owners of a job and marks it done.
func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, records []extract.Record) error {
	if records == nil {
		records = []extract.Record{}
	}
	owners, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding owners: %w", err)
	}
	return s.finish(ctx, id, JobDone, string(owners), "")
}

// FailJob marks a job failed with a user-facing reason.
func (s *SQLiteStore) FailJob(ctx context.Context, id string, reason string) error {
	return s.finish(ctx, id, JobFailed, "[]", reason)
}

func (s *SQLiteStore) finish(ctx context.Context, id string, status JobStatus, owners, reason string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, owners = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, owners, reason, s.now().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// GetJob loads a job by id.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var (
		job                  Job
		status, owners       string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, provider, status, owners, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.Filename, &job.Provider, &status, &owners, &job.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting job %s: %w", id, err)
	}

	job.Status = JobStatus(status)
	if err := json.Unmarshal([]byte(owners), &job.Records); err != nil {
		return nil, fmt.Errorf("decoding owners of job %s: %w", id, err)
	}
	if job.Records == nil {
		job.Records = []extract.Record{}
	}
	if job.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at of job %s: %w", id, err)
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at of job %s: %w", id, err)
	}
	return &job, nil
}

// PurgeOlderThan deletes jobs created before cutoff and reports how many.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purging jobs: %w", err)
	}
	return result.RowsAffected()
}

// Stats counts jobs per status and reports the schema version.
func (s *SQLiteStore) Stats(ctx context.Context) (*JobStats, error) {
	// Read before opening rows: in-memory stores hold a single connection.
	version, err := s.getMetaValue("schema_version")
	if err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	stats := &JobStats{SchemaVersion: version}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning job counts: %w", err)
		}
		switch JobStatus(status) {
		case JobPending:
			stats.Pending = n
		case JobDone:
			stats.Done = n
		case JobFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}
