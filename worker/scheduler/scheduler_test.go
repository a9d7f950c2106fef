package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"videoOverlay/store"
)

type processorFunc func(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error)

func (f processorFunc) Process(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error) {
	return f(ctx, job, report)
}

func fastConfig() Config {
	return Config{Concurrency: 2, PollInterval: 5 * time.Millisecond}
}

func enqueue(t *testing.T, s store.Store, jobID string) {
	t.Helper()
	err := s.Enqueue(context.Background(), &store.Job{
		JobID: jobID,
		Spec: store.JobSpec{
			InputKey:  "uploads/" + jobID + ".mp4",
			OutputKey: "renders/" + jobID + ".mp4",
		},
	})
	require.NoError(t, err)
}

func waitForState(t *testing.T, s store.Store, jobID string, want store.JobState) *store.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Get(context.Background(), jobID)
		require.NoError(t, err)
		if job.State == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := s.Get(context.Background(), jobID)
	t.Fatalf("Job %s never reached %s, stuck at %s", jobID, want, job.State)
	return nil
}

func TestSchedulerProcessesJobs(t *testing.T) {
	st := store.NewMemoryStore()
	proc := processorFunc(func(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error) {
		return &store.JobResult{OutputKey: job.Spec.OutputKey}, nil
	})

	sched := New(st, proc, nil, fastConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		enqueue(t, st, id)
	}
	sched.Wake()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		job := waitForState(t, st, id, store.StateCompleted)
		assert.Equal(t, 1, job.Attempts)
		require.NotNil(t, job.Result)
	}

	cancel()
	<-done
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	st := store.NewMemoryStore()

	var (
		current atomic.Int32
		peak    atomic.Int32
	)
	release := make(chan struct{})
	proc := processorFunc(func(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return &store.JobResult{OutputKey: job.Spec.OutputKey}, nil
	})

	sched := New(st, proc, nil, fastConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	for _, id := range []string{"a", "b", "c", "d"} {
		enqueue(t, st, id)
	}

	// Give the loop time to (incorrectly) exceed the bound if it could.
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	close(release)
	for _, id := range []string{"a", "b", "c", "d"} {
		waitForState(t, st, id, store.StateCompleted)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))

	cancel()
	<-done
}

func TestSchedulerRetriesUntilSuccess(t *testing.T) {
	st := store.NewMemoryStore()

	// Fails on attempts 1 and 2, succeeds on attempt 3 (the last one).
	var calls atomic.Int32
	proc := processorFunc(func(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("encoder failed: exit status 1")
		}
		return &store.JobResult{OutputKey: job.Spec.OutputKey}, nil
	})

	sched := New(st, proc, nil, fastConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	enqueue(t, st, "flaky")

	job := waitForState(t, st, "flaky", store.StateCompleted)
	assert.Equal(t, store.DefaultMaxAttempts, job.Attempts)
	assert.Equal(t, int32(3), calls.Load())

	cancel()
	<-done
}

func TestSchedulerExhaustsAttempts(t *testing.T) {
	st := store.NewMemoryStore()

	var calls atomic.Int32
	proc := processorFunc(func(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error) {
		calls.Add(1)
		return nil, errors.New("download input: object not found")
	})

	sched := New(st, proc, nil, fastConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	enqueue(t, st, "doomed")

	job := waitForState(t, st, "doomed", store.StateFailed)
	assert.Equal(t, store.DefaultMaxAttempts, job.Attempts)
	assert.Contains(t, job.ErrorMessage, "object not found")
	assert.Equal(t, int32(store.DefaultMaxAttempts), calls.Load())

	cancel()
	<-done
}

func TestSchedulerReportsProgress(t *testing.T) {
	st := store.NewMemoryStore()

	reached := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	proc := processorFunc(func(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error) {
		report(42)
		once.Do(func() { close(reached) })
		<-release
		return &store.JobResult{OutputKey: job.Spec.OutputKey}, nil
	})

	sched := New(st, proc, nil, fastConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	enqueue(t, st, "slow")

	<-reached
	job, err := st.Get(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, store.StateActive, job.State)
	assert.Equal(t, 42, job.Progress)

	close(release)
	waitForState(t, st, "slow", store.StateCompleted)

	cancel()
	<-done
}

func TestSchedulerDrainsInflightOnShutdown(t *testing.T) {
	st := store.NewMemoryStore()

	started := make(chan struct{})
	release := make(chan struct{})
	proc := processorFunc(func(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error) {
		close(started)
		<-release
		// The job context must survive loop cancellation.
		assert.NoError(t, ctx.Err())
		return &store.JobResult{OutputKey: job.Spec.OutputKey}, nil
	})

	sched := New(st, proc, nil, fastConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	enqueue(t, st, "inflight")
	<-started

	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a job was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done

	job, err := st.Get(context.Background(), "inflight")
	require.NoError(t, err)
	assert.Equal(t, store.StateCompleted, job.State)
}

func TestWakeNeverBlocks(t *testing.T) {
	sched := New(store.NewMemoryStore(), processorFunc(func(ctx context.Context, job *store.Job, report func(int)) (*store.JobResult, error) {
		return nil, nil
	}), nil, fastConfig(), zaptest.NewLogger(t))

	for i := 0; i < 100; i++ {
		sched.Wake()
	}
}
