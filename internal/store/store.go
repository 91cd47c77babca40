// Package store persists scan jobs in SQLite. Status transitions are guarded
// in SQL so a job that reached a terminal state can never be mutated again,
// regardless of which goroutine asks.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/scan"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// Store is a SQLite-backed scan job store.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore wraps db, applying the embedded schema. db should typically be the
// SQLite DB at <storage root>/openeye.db.
func NewStore(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// CreateJob inserts job as a new pending record. CreatedAt/UpdatedAt are set
// here; the caller provides everything else.
func (s *Store) CreateJob(ctx context.Context, job *scan.Job) error {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	job.Status = scan.StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scan_jobs (id, owner, target_url, scope, tool, config, status, results, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, '{}', ?, ?)`,
		job.ID, job.Owner, job.TargetURL, job.Scope, string(job.Tool), string(cfg),
		string(scan.StatusPending), now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, owner, target_url, scope, tool, config, status, results,
    progress_phase, progress_percent, created_at, updated_at, completed_at`

func scanJobRow(row interface{ Scan(...any) error }) (*scan.Job, error) {
	var (
		j           scan.Job
		tool        string
		cfg         string
		status      string
		results     string
		created     int64
		updated     int64
		completedAt sql.NullInt64
	)
	if err := row.Scan(&j.ID, &j.Owner, &j.TargetURL, &j.Scope, &tool, &cfg, &status, &results,
		&j.ProgressPhase, &j.ProgressPercent, &created, &updated, &completedAt); err != nil {
		return nil, err
	}
	j.Tool = scan.Tool(tool)
	j.Status = scan.Status(status)
	if err := json.Unmarshal([]byte(cfg), &j.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &j.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	j.CreatedAt = time.Unix(created, 0).UTC()
	j.UpdatedAt = time.Unix(updated, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		j.CompletedAt = &t
	}
	return &j, nil
}

// GetJob returns a job by id. scan.ErrNotFound when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*scan.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scan_jobs WHERE id = ? LIMIT 1`, id)
	j, err := scanJobRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, scan.ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

// ListJobsByOwner returns owner's jobs, newest first.
func (s *Store) ListJobsByOwner(ctx context.Context, owner string) ([]*scan.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM scan_jobs WHERE owner = ? ORDER BY created_at DESC, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*scan.Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkRunning transitions pending -> running. Any other starting state yields
// scan.ErrInvalidTransition.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_jobs SET status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(scan.StatusRunning), time.Now().Unix(), id, string(scan.StatusPending))
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// SetLiveProgress records the last engine-reported phase sample on a running
// job. Writes against non-running jobs are silently skipped: a cancellation
// may have landed between poll and write, and the terminal state wins.
func (s *Store) SetLiveProgress(ctx context.Context, id, phase string, percent int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scan_jobs SET progress_phase = ?, progress_percent = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		phase, percent, time.Now().Unix(), id, string(scan.StatusRunning))
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// Complete transitions a live job to completed with its results.
func (s *Store) Complete(ctx context.Context, id string, results scan.Results) error {
	return s.finish(ctx, id, scan.StatusCompleted, results)
}

// Fail transitions a live job to failed, recording cause as the results error
// description.
func (s *Store) Fail(ctx context.Context, id string, cause string) error {
	return s.finish(ctx, id, scan.StatusFailed, scan.Results{Error: cause})
}

// MarkCancelled transitions a live job to cancelled. Results stay empty.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	return s.finish(ctx, id, scan.StatusCancelled, scan.Results{})
}

// finish performs a guarded terminal transition. Only pending and running
// jobs can be finished; terminal states are immutable.
func (s *Store) finish(ctx context.Context, id string, status scan.Status, results scan.Results) error {
	blob, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_jobs SET status = ?, results = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		string(status), string(blob), now, now, id,
		string(scan.StatusPending), string(scan.StatusRunning))
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition distinguishes "no such job" from "job in a state that
// refuses this transition" when an UPDATE matched no rows.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM scan_jobs WHERE id = ? LIMIT 1`, id).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return scan.ErrNotFound
		}
		return err
	}
	return scan.ErrInvalidTransition
}
