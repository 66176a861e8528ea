package derive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// laneSize bounds the pending requests of a single user.
const laneSize = 16

// RecomputeFunc runs one recompute for a user.
type RecomputeFunc func(ctx context.Context, userID int64) (Outcome, error)

// Queue serializes recomputes per user. Every user gets a FIFO lane drained
// by its own goroutine, so runs for one user never overlap, while a global
// semaphore bounds how many users are processed at once.
//
// A request for a user that already has one waiting in its lane is coalesced
// into the waiting one: that run will read the newest events anyway.
type Queue struct {
	run       RecomputeFunc
	onDone    func(Outcome, error)
	semaphore *semaphore.Weighted
	logger    *slog.Logger

	mu      sync.Mutex
	lanes   map[int64]chan struct{}
	pending map[int64]bool
	active  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithOnDone sets a callback invoked after every run, successful or not.
func WithOnDone(fn func(Outcome, error)) QueueOption {
	return func(q *Queue) {
		q.onDone = fn
	}
}

// NewQueue creates a Queue that runs at most maxConcurrent recomputes at once.
func NewQueue(run RecomputeFunc, maxConcurrent int64, opts ...QueueOption) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	q := &Queue{
		run:       run,
		semaphore: semaphore.NewWeighted(maxConcurrent),
		logger:    slog.Default(),
		lanes:     make(map[int64]chan struct{}),
		pending:   make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight runs, closes all lanes and waits for the lane
// goroutines to exit.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for id, lane := range q.lanes {
		close(lane)
		delete(q.lanes, id)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue schedules a recompute for userID. It returns false when the request
// was coalesced into one already waiting.
func (q *Queue) Enqueue(userID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil || q.ctx.Err() != nil {
		return false, fmt.Errorf("queue not running")
	}
	if q.pending[userID] {
		return false, nil
	}

	lane, exists := q.lanes[userID]
	if !exists {
		lane = make(chan struct{}, laneSize)
		q.lanes[userID] = lane
		q.wg.Add(1)
		go q.processLane(userID, lane)
	}

	select {
	case lane <- struct{}{}:
		q.pending[userID] = true
		q.active.Add(1)
		return true, nil
	default:
		return false, fmt.Errorf("queue full for user %d", userID)
	}
}

func (q *Queue) processLane(userID int64, lane chan struct{}) {
	defer q.wg.Done()
	for {
		select {
		case _, ok := <-lane:
			if !ok {
				return
			}
			// Requests arriving from here on start a new run.
			q.mu.Lock()
			delete(q.pending, userID)
			q.mu.Unlock()

			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				q.active.Add(-1)
				return
			}
			out, err := q.run(q.ctx, userID)
			q.semaphore.Release(1)

			if err != nil {
				q.logger.Error("recompute failed", "user_id", userID, "error", err)
			}
			if q.onDone != nil {
				q.onDone(out, err)
			}
			q.active.Add(-1)
		case <-q.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no runs are queued or executing, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
