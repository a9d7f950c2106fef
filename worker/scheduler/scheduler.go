package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"videoOverlay/cache"
	"videoOverlay/store"
)

const (
	DefaultConcurrency  = 2
	DefaultPollInterval = 2 * time.Second
)

// Processor runs one claimed job end to end. The pipeline satisfies this.
type Processor interface {
	Process(ctx context.Context, job *store.Job, report func(percent int)) (*store.JobResult, error)
}

// StatusSink receives best-effort status snapshots for the polling surface.
type StatusSink interface {
	Set(ctx context.Context, jobID string, snap cache.Snapshot) error
}

// Scheduler is a bounded-concurrency claim loop: it polls the store for the
// next eligible job, dispatches it, and refills its slots as jobs finish.
// The store's atomic claim is the only admission path, so running several
// scheduler processes is safe.
type Scheduler struct {
	store     store.Store
	processor Processor
	status    StatusSink // optional

	concurrency  int
	pollInterval time.Duration
	logger       *zap.Logger

	wake chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
}

func New(st store.Store, processor Processor, status StatusSink, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Scheduler{
		store:        st,
		processor:    processor,
		status:       status,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		logger:       logger,
		wake:         make(chan struct{}, 1),
		inflight:     make(map[string]struct{}),
	}
}

// Wake nudges the loop to poll immediately instead of waiting out the poll
// interval. Called on submission events and whenever a slot frees up.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run claims and dispatches jobs until ctx is cancelled, then waits for
// in-flight jobs to finish. Cancellation stops new claims only; running
// pipelines are allowed to complete.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started",
		zap.Int("concurrency", s.concurrency),
		zap.Duration("poll_interval", s.pollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler draining", zap.Int("inflight", s.inflightCount()))
			s.wg.Wait()
			s.logger.Info("Scheduler stopped")
			return
		default:
		}

		if s.inflightCount() >= s.concurrency {
			s.wait(ctx)
			continue
		}

		job, err := s.store.ClaimNext(ctx)
		if err != nil {
			s.logger.Error("Failed to claim job", zap.Error(err))
			s.wait(ctx)
			continue
		}
		if job == nil {
			s.wait(ctx)
			continue
		}

		s.dispatch(ctx, job)
	}
}

func (s *Scheduler) wait(ctx context.Context) {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-timer.C:
	}
}

func (s *Scheduler) inflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Scheduler) dispatch(ctx context.Context, job *store.Job) {
	s.mu.Lock()
	s.inflight[job.JobID] = struct{}{}
	s.mu.Unlock()

	// Job execution survives loop shutdown; only claiming stops.
	jobCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, job.JobID)
			s.mu.Unlock()
			s.Wake()
		}()

		log := s.logger.With(
			zap.String("job_id", job.JobID),
			zap.Int("attempt", job.Attempts),
		)
		log.Info("Processing job")

		report := func(percent int) {
			if err := s.store.UpdateProgress(jobCtx, job.JobID, percent); err != nil {
				log.Warn("Failed to update progress", zap.Error(err))
			}
			s.publish(jobCtx, job.JobID, cache.Snapshot{
				State:    store.StateActive,
				Progress: percent,
			})
		}

		result, err := s.processor.Process(jobCtx, job, report)
		if err != nil {
			log.Error("Job failed", zap.Error(err))
			if failErr := s.store.Fail(jobCtx, job.JobID, err.Error()); failErr != nil {
				log.Error("Failed to record job failure", zap.Error(failErr))
			}
			s.publishCurrent(jobCtx, job.JobID)
			return
		}

		if err := s.store.Complete(jobCtx, job.JobID, *result); err != nil {
			log.Error("Failed to record job completion", zap.Error(err))
			return
		}
		s.publish(jobCtx, job.JobID, cache.Snapshot{
			State:    store.StateCompleted,
			Progress: 100,
			Result:   result,
		})
		log.Info("Job completed", zap.String("output_key", result.OutputKey))
	}()
}

func (s *Scheduler) publish(ctx context.Context, jobID string, snap cache.Snapshot) {
	if s.status == nil {
		return
	}
	if err := s.status.Set(ctx, jobID, snap); err != nil {
		s.logger.Warn("Failed to publish status snapshot",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

// publishCurrent snapshots whatever state the store settled on after a
// failure (waiting during a retry window, failed once attempts run out).
func (s *Scheduler) publishCurrent(ctx context.Context, jobID string) {
	if s.status == nil {
		return
	}
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return
	}
	s.publish(ctx, jobID, cache.Snapshot{
		State:    job.State,
		Progress: job.Progress,
		Error:    job.ErrorMessage,
		Result:   job.Result,
	})
}
