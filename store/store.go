package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateJob   = errors.New("job already exists")
	ErrJobNotFound    = errors.New("job not found")
	ErrNotCancellable = errors.New("job is not cancellable")
)

const (
	// Retention windows applied by Cleanup.
	CompletedRetention = 24 * time.Hour
	FailedRetention    = 7 * 24 * time.Hour
)

// Store is the durable job queue. All state transitions go through it; the
// claim is the only way a job becomes active, and it is atomic per document,
// so two concurrent claimers can never receive the same job.
type Store interface {
	// Enqueue inserts a new waiting job. Returns ErrDuplicateJob when the
	// job_id was already submitted.
	Enqueue(ctx context.Context, job *Job) error

	// ClaimNext atomically transitions the oldest eligible waiting job to
	// active, stamping started_at and incrementing attempts. Eligible means
	// state=waiting and attempts < max_attempts, ordered by priority then
	// creation time. Returns (nil, nil) when nothing is claimable.
	ClaimNext(ctx context.Context) (*Job, error)

	// UpdateProgress records percent-complete for an active job. Best effort:
	// a late report racing a terminal transition is dropped, not an error.
	UpdateProgress(ctx context.Context, jobID string, percent int) error

	// Complete marks an active job completed with its result.
	Complete(ctx context.Context, jobID string, result JobResult) error

	// Fail records a failed attempt. If attempts are exhausted the job
	// becomes failed permanently; otherwise it returns to waiting and stays
	// eligible for a future claim.
	Fail(ctx context.Context, jobID string, message string) error

	// Cancel force-fails a waiting or active job. Terminal jobs return
	// ErrNotCancellable.
	Cancel(ctx context.Context, jobID string) error

	// Get returns the job by its caller-supplied job_id.
	Get(ctx context.Context, jobID string) (*Job, error)

	// Cleanup deletes completed jobs older than CompletedRetention and failed
	// jobs older than FailedRetention. Returns the number deleted.
	Cleanup(ctx context.Context) (int64, error)
}
