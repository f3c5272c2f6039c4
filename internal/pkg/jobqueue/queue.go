package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	// Job settings
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
	DefaultJobTimeout = 2 * time.Minute
	DefaultQueueSize  = 256
)

var (
	ErrQueueFull      = errors.New("job queue is full")
	ErrQueueStopped   = errors.New("job queue is stopped")
	ErrUnknownJobType = errors.New("unknown job type")
)

// PermanentError marks a handler error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue fails the job without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}

// Handler runs one attempt of a job.
type Handler func(ctx context.Context, job *Job) error

// CompletionFunc receives the final outcome of a job exactly once. err is nil
// when the job completed.
type CompletionFunc func(job Job, err error)

type queuedJob struct {
	job        *Job
	onComplete CompletionFunc
}

// Queue runs background jobs on an in-process worker pool. Jobs are not
// durable; callers record their outcome through the completion callback.
type Queue struct {
	workers    int
	retryDelay time.Duration
	jobTimeout time.Duration
	handlers   map[JobType]Handler
	jobs       chan queuedJob

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
	stats   map[JobStatus]int64
}

// NewQueue creates a new job queue
func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}

	return &Queue{
		workers:    workers,
		retryDelay: DefaultRetryDelay,
		jobTimeout: DefaultJobTimeout,
		handlers:   make(map[JobType]Handler),
		jobs:       make(chan queuedJob, DefaultQueueSize),
		stopCh:     make(chan struct{}),
		stats:      make(map[JobStatus]int64),
	}
}

// SetRetryDelay sets the base delay; attempt n waits n times the base.
func (q *Queue) SetRetryDelay(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryDelay = d
}

// Register binds a handler to a job type. Call before Start.
func (q *Queue) Register(jobType JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running || q.stopped {
		return
	}

	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop stops the workers. Jobs still queued or waiting for a retry finish
// with ErrQueueStopped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.running = false
	q.mu.Unlock()

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.wg.Wait()

	for {
		select {
		case qj := <-q.jobs:
			q.finish(qj, ErrQueueStopped)
		default:
			log.Info("[JobQueue] All workers stopped")
			return
		}
	}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(jobType JobType, payload map[string]interface{}, onComplete CompletionFunc) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return nil, ErrQueueStopped
	}

	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}

	select {
	case q.jobs <- queuedJob{job: job, onComplete: onComplete}:
	default:
		return nil, ErrQueueFull
	}
	q.stats[JobStatusPending]++

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	snapshot := *job
	return &snapshot, nil
}

// GetJobStats returns counters of job outcomes
func (q *Queue) GetJobStats() map[JobStatus]int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[JobStatus]int64, len(q.stats))
	for k, v := range q.stats {
		out[k] = v
	}
	return out
}

// GetQueueSize returns the number of jobs waiting for a worker
func (q *Queue) GetQueueSize() int {
	return len(q.jobs)
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Debugf("[JobQueue] Worker %d started", id)

	for {
		select {
		case <-q.stopCh:
			log.Debugf("[JobQueue] Worker %d stopping", id)
			return
		case qj := <-q.jobs:
			log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, qj.job.ID, qj.job.Type)
			q.processJob(qj)
		}
	}
}

// processJob processes a single job
func (q *Queue) processJob(qj queuedJob) {
	job := qj.job
	job.MarkAsProcessing()

	q.mu.Lock()
	handler, ok := q.handlers[job.Type]
	timeout := q.jobTimeout
	delay := q.retryDelay
	q.mu.Unlock()

	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	} else {
		err = q.runHandler(handler, job, timeout)
	}

	if err == nil {
		log.Infof("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted()
		q.finish(qj, nil)
		return
	}

	log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
	job.MarkAsFailed(err.Error())

	if !ok || IsPermanent(err) || !job.IsRetryable() {
		log.Errorf("[JobQueue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
		q.finish(qj, err)
		return
	}

	log.Infof("[JobQueue] Retrying job %s (Attempt %d/%d)", job.ID, job.RetryCount, job.MaxRetries)
	job.MarkAsRetrying()
	q.incStat(JobStatusRetrying)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay * time.Duration(job.RetryCount))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-q.stopCh:
			q.finish(qj, ErrQueueStopped)
			return
		}
		select {
		case q.jobs <- qj:
		case <-q.stopCh:
			q.finish(qj, ErrQueueStopped)
		}
	}()
}

func (q *Queue) runHandler(handler Handler, job *Job, timeout time.Duration) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) finish(qj queuedJob, err error) {
	if err != nil {
		if qj.job.Status != JobStatusFailed {
			qj.job.Status = JobStatusFailed
			qj.job.ErrorMsg = err.Error()
			qj.job.UpdatedAt = time.Now()
		}
		q.incStat(JobStatusFailed)
	} else {
		q.incStat(JobStatusCompleted)
	}

	if qj.onComplete != nil {
		qj.onComplete(*qj.job, err)
	}
}

func (q *Queue) incStat(status JobStatus) {
	q.mu.Lock()
	q.stats[status]++
	q.mu.Unlock()
}
