package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	job Job
	err error
}

func collect() (CompletionFunc, <-chan outcome) {
	ch := make(chan outcome, 16)
	return func(job Job, err error) { ch <- outcome{job: job, err: err} }, ch
}

func waitOutcome(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
		return outcome{}
	}
}

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
			assert.Equal(t, DefaultQueueSize, cap(queue.jobs))
		})
	}
}

func TestQueue_CompletesJob(t *testing.T) {
	q := NewQueue(2)
	var seen atomic.Value
	q.Register(JobTypePrintData, func(ctx context.Context, job *Job) error {
		p, err := PrintDataJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		seen.Store(p.OrderID)
		return nil
	})
	q.Start()
	defer q.Stop()

	done, ch := collect()
	job, err := q.Enqueue(JobTypePrintData, PrintDataJobPayload{OrderID: "order-1"}.ToMap(), done)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)

	o := waitOutcome(t, ch)
	assert.NoError(t, o.err)
	assert.Equal(t, job.ID, o.job.ID)
	assert.Equal(t, JobStatusCompleted, o.job.Status)
	assert.Equal(t, "order-1", seen.Load())
	assert.Equal(t, int64(1), q.GetJobStats()[JobStatusCompleted])
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	q := NewQueue(1)
	q.SetRetryDelay(time.Millisecond)
	var attempts atomic.Int32
	q.Register(JobTypePrintData, func(ctx context.Context, job *Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	q.Start()
	defer q.Stop()

	done, ch := collect()
	_, err := q.Enqueue(JobTypePrintData, nil, done)
	require.NoError(t, err)

	o := waitOutcome(t, ch)
	assert.NoError(t, o.err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 2, o.job.RetryCount)
}

func TestQueue_PermanentFailureReportsOnce(t *testing.T) {
	q := NewQueue(1)
	q.SetRetryDelay(time.Millisecond)
	var attempts atomic.Int32
	q.Register(JobTypePrintData, func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return errors.New("bucket missing")
	})
	q.Start()
	defer q.Stop()

	done, ch := collect()
	_, err := q.Enqueue(JobTypePrintData, nil, done)
	require.NoError(t, err)

	o := waitOutcome(t, ch)
	assert.EqualError(t, o.err, "bucket missing")
	assert.Equal(t, JobStatusFailed, o.job.Status)
	assert.Equal(t, int32(DefaultMaxRetries), attempts.Load())

	select {
	case extra := <-ch:
		t.Fatalf("unexpected second completion: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueue_PermanentErrorSkipsRetries(t *testing.T) {
	q := NewQueue(1)
	q.SetRetryDelay(time.Millisecond)
	errMissing := errors.New("order missing")
	var attempts atomic.Int32
	q.Register(JobTypePrintData, func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return Permanent(errMissing)
	})
	q.Start()
	defer q.Stop()

	done, ch := collect()
	_, err := q.Enqueue(JobTypePrintData, nil, done)
	require.NoError(t, err)

	o := waitOutcome(t, ch)
	assert.ErrorIs(t, o.err, errMissing)
	assert.True(t, IsPermanent(o.err))
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, JobStatusFailed, o.job.Status)
	assert.Zero(t, q.GetJobStats()[JobStatusRetrying])
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("transient")))

	base := errors.New("bad payload")
	err := Permanent(base)
	assert.EqualError(t, err, "bad payload")
	assert.ErrorIs(t, err, base)
	assert.True(t, IsPermanent(fmt.Errorf("job 1: %w", err)))
}

func TestQueue_UnknownTypeFailsWithoutRetry(t *testing.T) {
	q := NewQueue(1)
	q.Start()
	defer q.Stop()

	done, ch := collect()
	_, err := q.Enqueue(JobType("nope"), nil, done)
	require.NoError(t, err)

	o := waitOutcome(t, ch)
	assert.ErrorIs(t, o.err, ErrUnknownJobType)
	assert.Equal(t, 1, o.job.RetryCount)
}

func TestQueue_PanicIsReportedAsFailure(t *testing.T) {
	q := NewQueue(1)
	q.SetRetryDelay(time.Millisecond)
	q.Register(JobTypePrintData, func(ctx context.Context, job *Job) error {
		panic("boom")
	})
	q.Start()
	defer q.Stop()

	done, ch := collect()
	_, err := q.Enqueue(JobTypePrintData, nil, done)
	require.NoError(t, err)

	o := waitOutcome(t, ch)
	require.Error(t, o.err)
	assert.Contains(t, o.err.Error(), "boom")
}

func TestQueue_StopFailsQueuedJobs(t *testing.T) {
	q := NewQueue(1)
	q.Register(JobTypePrintData, func(ctx context.Context, job *Job) error { return nil })

	var mu sync.Mutex
	var errs []error
	done := func(job Job, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(JobTypePrintData, nil, done)
		require.NoError(t, err)
	}

	// Never started, so every queued job is drained on stop.
	q.Stop()
	mu.Lock()
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrQueueStopped)
	}
	mu.Unlock()

	_, err := q.Enqueue(JobTypePrintData, nil, nil)
	assert.ErrorIs(t, err, ErrQueueStopped)
	q.Stop()
}
