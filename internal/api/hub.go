package api

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/graaaaa/nickutc/internal/derive"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

const (
	defaultSubscriberBufferSize = 16
	defaultBroadcastBufferSize  = 64
)

// SSE event names.
const (
	EventPresence = "presence"
	EventAnalysis = "analysis"
)

// Message is one server-sent event.
type Message struct {
	// ID is the replay cursor; only presence messages carry one.
	ID     string
	Event  string
	UserID int64
	Data   json.RawMessage
}

type presencePayload struct {
	UserID    int64           `json:"user_id"`
	Timestamp string          `json:"timestamp_utc"`
	Status    presence.Status `json:"status"`
	RawKind   string          `json:"raw_status_type"`
	Source    string          `json:"source"`
}

type analysisPayload struct {
	UserID          int64    `json:"user_id"`
	RunID           string   `json:"run_id"`
	SleepPeriods    int      `json:"sleep_periods"`
	DailyEstimates  int      `json:"daily_estimates"`
	CurrentTZOffset *float64 `json:"current_tz_offset"`
	TimezoneDisplay string   `json:"timezone_display"`
	PreviousOffset  *float64 `json:"previous_tz_offset,omitempty"`
	Changed         bool     `json:"changed"`
}

// NewPresenceMessage builds the message for a stored event.
func NewPresenceMessage(e presence.Event) *Message {
	data, _ := json.Marshal(presencePayload{
		UserID:    e.UserID,
		Timestamp: presence.FormatTimestamp(e.Timestamp),
		Status:    e.Status,
		RawKind:   e.RawKind,
		Source:    e.Source,
	})
	return &Message{
		ID:     store.EncodeCursor(e.Timestamp, e.ID),
		Event:  EventPresence,
		UserID: e.UserID,
		Data:   data,
	}
}

// NewAnalysisMessage builds the message for a finished recompute. change
// is nil when the current offset did not move.
func NewAnalysisMessage(o derive.Outcome, change *derive.Change) *Message {
	p := analysisPayload{
		UserID:         o.UserID,
		RunID:          o.RunID,
		SleepPeriods:   len(o.Result.Periods),
		DailyEstimates: len(o.Result.Daily),
	}
	if off, ok := o.CurrentOffset(); ok {
		p.CurrentTZOffset = &off
	}
	p.TimezoneDisplay = presence.FormatOffset(p.CurrentTZOffset)
	if change != nil {
		prev := change.Previous
		p.PreviousOffset = &prev
		p.Changed = true
	}
	data, _ := json.Marshal(p)
	return &Message{
		Event:  EventAnalysis,
		UserID: o.UserID,
		Data:   data,
	}
}

// Subscriber is one open stream. Both channels are closed together when
// the subscriber leaves or the hub stops.
type Subscriber struct {
	messages chan *Message
	done     chan struct{}
}

func (s *Subscriber) Messages() <-chan *Message { return s.messages }
func (s *Subscriber) Done() <-chan struct{}     { return s.done }

func (s *Subscriber) close() {
	close(s.done)
	close(s.messages)
}

// Hub fans presence and analysis messages out to stream subscribers. The
// subscriber set belongs to the Run goroutine; everything else talks to it
// over channels. A slow subscriber loses messages instead of stalling the
// ingest path.
type Hub struct {
	join     chan *Subscriber
	leave    chan *Subscriber
	outbox   chan *Message
	quit     chan struct{}
	finished chan struct{}
	quitOnce sync.Once

	subscriberBuffer int
	logger           *slog.Logger
}

type HubOption func(*Hub)

// WithHubSubscriberBufferSize sets how many messages a subscriber may lag
// behind before messages to it are dropped.
func WithHubSubscriberBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.subscriberBuffer = size
		}
	}
}

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub returns a hub that does nothing until Run is started.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		join:             make(chan *Subscriber),
		leave:            make(chan *Subscriber),
		outbox:           make(chan *Message, defaultBroadcastBufferSize),
		quit:             make(chan struct{}),
		finished:         make(chan struct{}),
		subscriberBuffer: defaultSubscriberBufferSize,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run owns the subscriber set until Stop.
func (h *Hub) Run() {
	subs := make(map[*Subscriber]struct{})
	defer close(h.finished)

	for {
		select {
		case sub := <-h.join:
			subs[sub] = struct{}{}
			h.logger.Debug("stream opened", "subscribers", len(subs))

		case sub := <-h.leave:
			if _, ok := subs[sub]; !ok {
				continue
			}
			delete(subs, sub)
			sub.close()
			h.logger.Debug("stream closed", "subscribers", len(subs))

		case m := <-h.outbox:
			h.deliver(subs, m)

		case <-h.quit:
			for sub := range subs {
				sub.close()
			}
			return
		}
	}
}

func (h *Hub) deliver(subs map[*Subscriber]struct{}, m *Message) {
	for sub := range subs {
		select {
		case sub.messages <- m:
		default:
			h.logger.Warn("stream subscriber lagging, message dropped",
				"event", m.Event,
				"user_id", m.UserID,
			)
		}
	}
}

// Stop ends Run and closes every subscriber. Safe to call repeatedly.
func (h *Hub) Stop() {
	h.quitOnce.Do(func() { close(h.quit) })
	<-h.finished
}

// Subscribe registers a new stream. Pair it with Unsubscribe. After Stop
// it returns an already closed subscriber.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		messages: make(chan *Message, h.subscriberBuffer),
		done:     make(chan struct{}),
	}
	select {
	case h.join <- sub:
	case <-h.finished:
		sub.close()
	}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	select {
	case h.leave <- sub:
	case <-h.finished:
	}
}

// Publish queues m for delivery without blocking. Messages published while
// the outbox is full are dropped.
func (h *Hub) Publish(m *Message) {
	if m == nil {
		return
	}
	select {
	case h.outbox <- m:
	case <-h.finished:
	default:
		h.logger.Warn("stream outbox full, message dropped",
			"event", m.Event,
			"user_id", m.UserID,
		)
	}
}
