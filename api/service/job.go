package service

import (
	"context"

	"go.uber.org/zap"

	"videoOverlay/api/dto"
	"videoOverlay/api/kafka"
	"videoOverlay/cache"
	"videoOverlay/store"
)

// StatusCache is the snapshot surface the service reads before falling back
// to the job store. A nil cache disables the fast path.
type StatusCache interface {
	Get(ctx context.Context, jobID string) (*cache.Snapshot, error)
	Set(ctx context.Context, jobID string, snap cache.Snapshot) error
}

type JobService struct {
	store    store.Store
	cache    StatusCache
	producer kafka.Producer
	topic    string
	logger   *zap.Logger
}

func NewJobService(st store.Store, statusCache StatusCache, producer kafka.Producer, topic string, logger *zap.Logger) *JobService {
	return &JobService{
		store:    st,
		cache:    statusCache,
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Submit enqueues a job and announces it. The enqueue is the transaction;
// the cache prime and the kafka event are best-effort, since the worker
// polls the store regardless.
func (s *JobService) Submit(ctx context.Context, traceID string, req *dto.SubmitJobRequest) (*dto.SubmitJobResponse, error) {
	job := &store.Job{
		JobID:  req.JobID,
		UserID: req.UserID,
		Spec: store.JobSpec{
			InputKey:  req.InputVideoKey,
			OutputKey: req.OutputVideoKey,
			Text:      toTextSettings(req.TextSettings),
			Quality:   store.Quality(req.Quality),
		},
	}

	if err := s.store.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, job.JobID, cache.Snapshot{State: store.StateWaiting}); err != nil {
			s.logger.Warn("Failed to prime status cache",
				zap.String("job_id", job.JobID),
				zap.Error(err),
			)
		}
	}

	if s.producer != nil {
		event := &kafka.JobEvent{JobID: job.JobID, TraceID: traceID}
		if err := s.producer.SendJobEvent(ctx, s.topic, event); err != nil {
			s.logger.Warn("Failed to publish job event, worker will pick it up by polling",
				zap.String("job_id", job.JobID),
				zap.Error(err),
			)
		}
	}

	return &dto.SubmitJobResponse{ID: job.ID, JobID: job.JobID}, nil
}

// Status resolves a job's current state, preferring the redis snapshot and
// falling back to the store.
func (s *JobService) Status(ctx context.Context, jobID string) (*dto.StatusResponse, error) {
	if s.cache != nil {
		if snap, err := s.cache.Get(ctx, jobID); err == nil {
			return &dto.StatusResponse{
				JobID:    jobID,
				State:    string(snap.State),
				Progress: snap.Progress,
				Error:    snap.Error,
				Result:   toResultResponse(snap.Result),
			}, nil
		}
	}

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, job.JobID, cache.Snapshot{
			State:    job.State,
			Progress: job.Progress,
			Error:    job.ErrorMessage,
			Result:   job.Result,
		})
	}

	return &dto.StatusResponse{
		ID:       job.ID,
		JobID:    job.JobID,
		State:    string(job.State),
		Progress: job.Progress,
		Error:    job.ErrorMessage,
		Result:   toResultResponse(job.Result),
	}, nil
}

// Cancel aborts a waiting or active job. Terminal jobs are not cancellable.
func (s *JobService) Cancel(ctx context.Context, jobID string) error {
	if err := s.store.Cancel(ctx, jobID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, jobID, cache.Snapshot{
			State: store.StateFailed,
			Error: "cancelled by user",
		}); err != nil {
			s.logger.Warn("Failed to update status cache after cancel",
				zap.String("job_id", jobID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func toTextSettings(ts *dto.TextSettings) *store.TextSettings {
	if ts == nil {
		return nil
	}
	return &store.TextSettings{
		Text:          ts.Text,
		Position:      ts.Position,
		Alignment:     ts.Alignment,
		FontSize:      ts.FontSize,
		FontFamily:    ts.FontFamily,
		Color:         ts.Color,
		OffsetPercent: ts.OffsetPercent,
		Bold:          ts.Bold,
		Italic:        ts.Italic,
		Underline:     ts.Underline,
		Shadow:        ts.Shadow,
	}
}

func toResultResponse(result *store.JobResult) *dto.JobResult {
	if result == nil {
		return nil
	}
	return &dto.JobResult{
		OutputVideoKey: result.OutputKey,
		DownloadURL:    result.DownloadURL,
		Duration:       result.Duration,
		FileSize:       result.FileSize,
	}
}
