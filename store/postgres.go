package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS video_jobs (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	job_id        TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT 'waiting',
	progress      INT NOT NULL DEFAULT 0,
	spec          JSONB NOT NULL,
	result        JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	attempts      INT NOT NULL DEFAULT 0,
	max_attempts  INT NOT NULL DEFAULT 3,
	priority      INT NOT NULL DEFAULT 2,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS video_jobs_job_id_idx ON video_jobs (job_id);
CREATE INDEX IF NOT EXISTS video_jobs_claim_idx ON video_jobs (state, priority, created_at);
`

const jobColumns = `id, job_id, user_id, state, progress, spec, result, error_message,
	attempts, max_attempts, priority, created_at, updated_at, started_at, completed_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a pool, verifies it and ensures the schema exists.
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate video_jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) Enqueue(ctx context.Context, job *Job) error {
	specJSON, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("marshal job spec: %w", err)
	}

	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	job.State = StateWaiting
	job.Priority = PriorityForQuality(job.Spec.Quality)

	query := `
		INSERT INTO video_jobs (job_id, user_id, state, spec, max_attempts, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err = s.db.QueryRow(ctx, query,
		job.JobID,
		job.UserID,
		job.State,
		specJSON,
		job.MaxAttempts,
		job.Priority,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateJob
		}
		return err
	}

	return nil
}

// ClaimNext is a single statement so that two concurrent claimers can never
// get the same row: the inner SELECT locks the candidate with SKIP LOCKED and
// the UPDATE flips it to active in the same transaction.
func (s *PostgresStore) ClaimNext(ctx context.Context) (*Job, error) {
	query := `
		UPDATE video_jobs SET
			state = 'active',
			attempts = attempts + 1,
			started_at = NOW(),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM video_jobs
			WHERE state = 'waiting' AND attempts < max_attempts
			ORDER BY priority, created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, jobID string, percent int) error {
	// Conditional on the job still being active so a late report can never
	// overwrite a terminal state. Zero rows affected is fine.
	query := `
		UPDATE video_jobs SET progress = $2, updated_at = NOW()
		WHERE job_id = $1 AND state = 'active'
	`
	_, err := s.db.Exec(ctx, query, jobID, percent)
	return err
}

func (s *PostgresStore) Complete(ctx context.Context, jobID string, result JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}

	query := `
		UPDATE video_jobs SET
			state = 'completed',
			progress = 100,
			result = $2,
			error_message = '',
			completed_at = NOW(),
			updated_at = NOW()
		WHERE job_id = $1
	`
	tag, err := s.db.Exec(ctx, query, jobID, resultJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, jobID string, message string) error {
	// Retry-by-re-queue: back to waiting while attempts remain, failed for
	// good once they are exhausted. One conditional statement keeps the
	// attempts check and the transition atomic.
	query := `
		UPDATE video_jobs SET
			state = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'waiting' END,
			error_message = $2,
			completed_at = CASE WHEN attempts >= max_attempts THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE job_id = $1 AND state = 'active'
	`
	tag, err := s.db.Exec(ctx, query, jobID, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) Cancel(ctx context.Context, jobID string) error {
	query := `
		UPDATE video_jobs SET
			state = 'failed',
			error_message = 'cancelled by user',
			completed_at = NOW(),
			updated_at = NOW()
		WHERE job_id = $1 AND state IN ('waiting', 'active')
	`
	tag, err := s.db.Exec(ctx, query, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrNotCancellable
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM video_jobs WHERE job_id = $1`

	job, err := scanJob(s.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM video_jobs
		WHERE (state = 'completed' AND completed_at < NOW() - make_interval(secs => $1))
		   OR (state = 'failed' AND completed_at < NOW() - make_interval(secs => $2))
	`
	tag, err := s.db.Exec(ctx, query, CompletedRetention.Seconds(), FailedRetention.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job        Job
		specJSON   []byte
		resultJSON []byte
	)

	err := row.Scan(
		&job.ID,
		&job.JobID,
		&job.UserID,
		&job.State,
		&job.Progress,
		&specJSON,
		&resultJSON,
		&job.ErrorMessage,
		&job.Attempts,
		&job.MaxAttempts,
		&job.Priority,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(specJSON, &job.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal job spec: %w", err)
	}
	if resultJSON != nil {
		job.Result = &JobResult{}
		if err := json.Unmarshal(resultJSON, job.Result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
	}

	return &job, nil
}
