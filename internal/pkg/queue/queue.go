package queue

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/pkg/errors"
)

// DB is the store backend contract for queue operations
type DB interface {
	InsertJob(ctx context.Context, job *persistence.Job) error
	PopOldestJob(ctx context.Context) (*persistence.Job, error)
	CountJobs(ctx context.Context) (int64, error)
	ExistsJobBySubmitter(ctx context.Context, submitterID int64) (bool, error)
	ExistsJobByMessage(ctx context.Context, messageID int64) (bool, error)
}

// ErrAlreadyQueued indicates a job for the same message is pending
var ErrAlreadyQueued = errors.New("already queued")

// Queue is the durable FIFO of transcription jobs with a wake signal
// for the single consumer. Order is the insertion order of the store ids.
type Queue struct {
	db      DB
	wake    *notifier
	pending atomic.Int64
}

// New creates the queue over a store backend. Jobs left in the store
// from a previous run are picked up: the pending gauge is resynced and
// the consumer is pre-signaled.
func New(ctx context.Context, db DB) (*Queue, error) {
	if db == nil {
		return nil, errors.New("no db")
	}
	res := &Queue{db: db, wake: newNotifier()}
	size, err := db.CountJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't init queue: %w", err)
	}
	res.pending.Store(size)
	if size > 0 {
		res.wake.Signal()
		goapp.Log.Info().Int64("pending", size).Msg("found jobs from previous run")
	}
	return res, nil
}

// Enqueue appends a job and wakes the consumer. The store assigns job.ID.
// Once Enqueue returns the job survives a process restart.
func (q *Queue) Enqueue(ctx context.Context, job *persistence.Job) error {
	if err := q.db.InsertJob(ctx, job); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return fmt.Errorf("message %d: %w", job.MessageID, ErrAlreadyQueued)
		}
		return err
	}
	q.pending.Add(1)
	q.wake.Signal()
	return nil
}

// DequeueOldest blocks until a job is available or ctx is done.
// The returned job is already removed from the store, there is no ack step.
func (q *Queue) DequeueOldest(ctx context.Context) (*persistence.Job, error) {
	for {
		job, err := q.db.PopOldestJob(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			q.pending.Add(-1)
			return job, nil
		}
		if err := q.wake.Wait(ctx); err != nil {
			return nil, err
		}
	}
}

// Pending returns the advisory in-memory queue size used for position reporting.
// It may drift from the store after a crash, it resyncs on restart.
func (q *Queue) Pending() int64 {
	res := q.pending.Load()
	if res < 0 {
		return 0
	}
	return res
}

// Size returns the real queue size from the store
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.db.CountJobs(ctx)
}

// ExistsBySubmitter checks if the submitter has a queued job
func (q *Queue) ExistsBySubmitter(ctx context.Context, submitterID int64) (bool, error) {
	return q.db.ExistsJobBySubmitter(ctx, submitterID)
}

// ExistsByMessage checks if the message is already queued
func (q *Queue) ExistsByMessage(ctx context.Context, messageID int64) (bool, error) {
	return q.db.ExistsJobByMessage(ctx, messageID)
}
