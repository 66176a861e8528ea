package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/graaaaa/nickutc/internal/derive"
)

// NotifierStatus is a snapshot of the notifier's health.
type NotifierStatus struct {
	Disabled       bool
	DisabledReason string
	DisabledAt     time.Time
	// DisabledSenders lists senders switched off by a fatal error.
	DisabledSenders []string
	LastError       string
}

// DefaultMaxQueueSize caps pending changes. The oldest are dropped first.
const DefaultMaxQueueSize = 100

const defaultBatchDelay = 3 * time.Second

// Retry delays when no sender accepted a batch and none sent Retry-After.
const (
	initialBackoff = time.Second
	maxBackoff     = 5 * time.Minute
)

// Labeler resolves a user id to a display name.
type Labeler func(userID int64) string

// Notifier collects timezone changes for batchDelay, merges changes for the
// same user, and delivers the batch to every sender that is still enabled.
// All delivery happens on the Run goroutine.
type Notifier struct {
	senders    []Sender
	afterFunc  AfterFunc
	batchDelay time.Duration
	labeler    Labeler
	now        func() time.Time
	logger     *slog.Logger
	queueLimit int

	incoming chan derive.Change
	flushNow chan struct{}
	stopping chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu         sync.Mutex
	queue      []Item
	batchTimer TimerHandle
	status     NotifierStatus
	disabled   map[string]bool
	failing    bool

	// Run goroutine only.
	failedBatches int
	holdUntil     time.Time
}

type NotifierOption func(*Notifier)

// WithAfterFunc replaces time.AfterFunc, mainly for tests.
func WithAfterFunc(af AfterFunc) NotifierOption {
	return func(n *Notifier) { n.afterFunc = af }
}

func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithMaxQueueSize(size int) NotifierOption {
	return func(n *Notifier) {
		if size > 0 {
			n.queueLimit = size
		}
	}
}

// WithLabeler names users in messages. Without it only ids are shown.
func WithLabeler(l Labeler) NotifierOption {
	return func(n *Notifier) { n.labeler = l }
}

func WithNow(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

// NewNotifier builds a notifier; nothing is sent until Run is started. A
// notifier without senders starts disabled and ignores Enqueue.
func NewNotifier(senders []Sender, batchDelaySec int, opts ...NotifierOption) *Notifier {
	delay := defaultBatchDelay
	if batchDelaySec > 0 {
		delay = time.Duration(batchDelaySec) * time.Second
	}

	n := &Notifier{
		senders:    senders,
		afterFunc:  stdAfterFunc,
		batchDelay: delay,
		now:        time.Now,
		logger:     slog.Default(),
		queueLimit: DefaultMaxQueueSize,
		incoming:   make(chan derive.Change, 64),
		flushNow:   make(chan struct{}, 1),
		stopping:   make(chan struct{}),
		stopped:    make(chan struct{}),
		disabled:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(n)
	}
	if len(n.senders) == 0 {
		n.status.Disabled = true
		n.status.DisabledReason = "no senders configured"
	}
	return n
}

// Run processes changes until Stop or ctx ends. Whatever is queued at that
// point gets one last delivery attempt.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.stopped)

	for {
		select {
		case c := <-n.incoming:
			n.handleChange(c)

		case <-n.flushNow:
			n.flush(ctx)

		case <-n.stopping:
			n.flush(ctx)
			return

		case <-ctx.Done():
			n.flush(context.Background())
			return
		}
	}
}

// Enqueue hands a change to the Run goroutine. It never blocks; when the
// hand-off buffer is full the change is logged and dropped.
func (n *Notifier) Enqueue(c derive.Change) {
	n.mu.Lock()
	disabled := n.status.Disabled
	n.mu.Unlock()
	if disabled {
		return
	}

	select {
	case n.incoming <- c:
	default:
		n.logger.Warn("notification queue full, change dropped",
			"user_id", c.UserID,
		)
	}
}

func (n *Notifier) handleChange(c derive.Change) {
	label := ""
	if n.labeler != nil {
		label = n.labeler(c.UserID)
	}
	item := Item{
		UserID:   c.UserID,
		Label:    label,
		Previous: c.Previous,
		Current:  c.Current,
		Date:     c.Date,
		At:       n.now(),
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.queue = coalesce(append(n.queue, item))

	if len(n.queue) > n.queueLimit {
		dropped := len(n.queue) - n.queueLimit
		n.queue = n.queue[dropped:]
		n.logger.Warn("notification queue overflow, oldest changes dropped", "dropped", dropped)
	}

	if n.batchTimer == nil && len(n.queue) > 0 {
		n.batchTimer = n.afterFunc(n.batchDelay, n.requestFlush)
	}
}

// coalesce keeps one item per user. A later change extends an earlier one
// (A→B then B→C becomes A→C); a change that returns to where it started
// is dropped.
func coalesce(items []Item) []Item {
	if len(items) <= 1 {
		return items
	}

	seen := make(map[int64]int, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if idx, ok := seen[it.UserID]; ok {
			first := out[idx]
			it.Previous = first.Previous
			if it.Label == "" {
				it.Label = first.Label
			}
			out[idx] = it
			continue
		}
		seen[it.UserID] = len(out)
		out = append(out, it)
	}

	kept := out[:0]
	for _, it := range out {
		if it.Previous != it.Current {
			kept = append(kept, it)
		}
	}
	return kept
}

// requestFlush runs on the timer goroutine.
func (n *Notifier) requestFlush() {
	select {
	case n.flushNow <- struct{}{}:
	default:
	}
}

func (n *Notifier) flush(ctx context.Context) {
	n.mu.Lock()
	if len(n.queue) == 0 {
		n.batchTimer = nil
		n.mu.Unlock()
		return
	}

	// Still holding off after a failed batch: rearm for the rest of it.
	if now := n.now(); now.Before(n.holdUntil) {
		remaining := n.holdUntil.Sub(now)
		n.logger.Debug("in backoff period, keeping changes in queue",
			"queue_size", len(n.queue),
			"remaining", remaining,
		)
		if n.batchTimer != nil {
			n.batchTimer.Stop()
		}
		n.batchTimer = n.afterFunc(remaining, n.requestFlush)
		n.mu.Unlock()
		return
	}

	items := n.queue
	n.queue = make([]Item, 0, 16)
	n.batchTimer = nil
	n.mu.Unlock()

	var (
		delivered, attempted int
		wait                 time.Duration
	)
	for _, s := range n.senders {
		if n.isSenderDisabled(s.Name()) {
			continue
		}
		attempted++

		result, retryAfter := s.Send(ctx, items)
		switch result {
		case SendOK:
			delivered++
		case SendRetryable:
			wait = max(wait, retryAfter)
			n.setLastError(s.Name() + ": delivery failed")
		case SendFatal:
			n.disableSender(s.Name())
		}
	}

	if attempted == 0 || delivered > 0 {
		n.failedBatches = 0
		n.holdUntil = time.Time{}
		n.mu.Lock()
		n.failing = false
		n.mu.Unlock()
		return
	}
	if n.Status().Disabled {
		return
	}

	// Nobody got the batch: put it back in front of anything newer and wait.
	n.failedBatches++
	if wait == 0 {
		wait = backoffDelay(n.failedBatches)
	}
	n.holdUntil = n.now().Add(wait)
	n.logger.Warn("notification delivery failed, backing off",
		"attempt", n.failedBatches,
		"backoff_until", n.holdUntil,
	)

	n.mu.Lock()
	n.failing = true
	n.queue = coalesce(append(items, n.queue...))
	if n.batchTimer == nil {
		n.batchTimer = n.afterFunc(wait, n.requestFlush)
	}
	n.mu.Unlock()
}

// backoffDelay doubles from initialBackoff per attempt up to maxBackoff.
func backoffDelay(attempt int) time.Duration {
	d := initialBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func (n *Notifier) isSenderDisabled(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disabled[name]
}

func (n *Notifier) setLastError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status.LastError = msg
}

// disableSender stops using a sender after a fatal error. When none is
// left the whole notifier is disabled.
func (n *Notifier) disableSender(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.disabled[name] {
		return
	}
	n.disabled[name] = true
	n.status.DisabledSenders = append(n.status.DisabledSenders, name)
	n.status.LastError = name + ": fatal error"
	n.logger.Error("notification sender disabled after fatal error", "sender", name)

	if len(n.disabled) == len(n.senders) {
		n.status.Disabled = true
		n.status.DisabledReason = "fatal error (invalid webhook, token or chat)"
		n.status.DisabledAt = n.now()
		n.queue = n.queue[:0]
	}
}

// Stop asks Run to deliver what is queued and return, then waits for it or
// for ctx. Repeated calls are fine.
func (n *Notifier) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		close(n.stopping)
	})

	select {
	case <-n.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a copy of the current status.
func (n *Notifier) Status() NotifierStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	st := n.status
	st.DisabledSenders = append([]string(nil), n.status.DisabledSenders...)
	return st
}

// Health summarizes Status for the health endpoint. It is "degraded" while
// batches are backing off or after any sender was switched off.
func (n *Notifier) Health() (state string, pending int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case n.status.Disabled:
		return "disabled", len(n.queue)
	case n.failing || len(n.status.DisabledSenders) > 0:
		return "degraded", len(n.queue)
	}
	return "ok", len(n.queue)
}

// QueueLength returns the number of changes waiting for the next batch.
func (n *Notifier) QueueLength() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
