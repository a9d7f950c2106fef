package store

import (
	"context"
	"sync"

	"github.com/WatchBeam/clock"
	"github.com/google/uuid"
)

// MemoryStore implements Store on a mutex-guarded map. It backs the queue
// tests and local runs without Postgres; the transition rules are the same as
// the SQL implementation, with the mutex standing in for row locking.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	clock clock.Clock
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clock.C)
}

func NewMemoryStoreWithClock(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		clock: c,
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return ErrDuplicateJob
	}

	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	now := s.clock.Now()
	job.ID = uuid.New().String()
	job.State = StateWaiting
	job.Progress = 0
	job.Attempts = 0
	job.Priority = PriorityForQuality(job.Spec.Quality)
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := *job
	s.jobs[job.JobID] = &stored
	return nil
}

func (s *MemoryStore) ClaimNext(ctx context.Context) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Job
	for _, job := range s.jobs {
		if job.State != StateWaiting || job.Attempts >= job.MaxAttempts {
			continue
		}
		if best == nil ||
			job.Priority < best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}

	now := s.clock.Now()
	best.State = StateActive
	best.Attempts++
	best.StartedAt = &now
	best.UpdatedAt = now

	claimed := *best
	return &claimed, nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, jobID string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.State != StateActive {
		return nil
	}
	job.Progress = percent
	job.UpdatedAt = s.clock.Now()
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, jobID string, result JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	now := s.clock.Now()
	res := result
	job.State = StateCompleted
	job.Progress = 100
	job.Result = &res
	job.ErrorMessage = ""
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, jobID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.State != StateActive {
		return ErrJobNotFound
	}

	now := s.clock.Now()
	job.ErrorMessage = message
	job.UpdatedAt = now
	if job.Attempts >= job.MaxAttempts {
		job.State = StateFailed
		job.CompletedAt = &now
	} else {
		job.State = StateWaiting
	}
	return nil
}

func (s *MemoryStore) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.State != StateWaiting && job.State != StateActive {
		return ErrNotCancellable
	}

	now := s.clock.Now()
	job.State = StateFailed
	job.ErrorMessage = "cancelled by user"
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) Cleanup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var deleted int64
	for id, job := range s.jobs {
		if job.CompletedAt == nil {
			continue
		}
		age := now.Sub(*job.CompletedAt)
		if (job.State == StateCompleted && age > CompletedRetention) ||
			(job.State == StateFailed && age > FailedRetention) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}
