// Package derive turns the stored event log into derived results: it runs
// the sleep pipeline for a user, writes the results back, serializes runs per
// user and tracks timezone changes across runs.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/sleep"
)

// EventLoader loads the complete event history of a user.
type EventLoader interface {
	AllEvents(ctx context.Context, userID int64) ([]presence.Event, error)
}

// ResultSink persists the results of a run.
type ResultSink interface {
	ReplaceSleepPeriods(ctx context.Context, userID int64, periods []presence.SleepPeriod) error
	ReplaceDailyTimezones(ctx context.Context, userID int64, days []presence.DailyTimezone) error
	UpdateCurrentOffset(ctx context.Context, userID int64, offset float64) error
}

// Outcome describes one completed run.
type Outcome struct {
	RunID    string
	UserID   int64
	Result   sleep.Result
	Empty    bool // no events; nothing was written
	Duration time.Duration
}

// CurrentOffset returns the offset written to the user, if any.
func (o Outcome) CurrentOffset() (float64, bool) {
	return o.Result.CurrentOffset()
}

// Analyzer recomputes sleep periods and timezone estimates for one user at a
// time. It does not serialize calls itself; use a Queue for that.
type Analyzer struct {
	events EventLoader
	sink   ResultSink
	params func() sleep.Params
	logger *slog.Logger
	clock  func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerLogger sets the logger.
func WithAnalyzerLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// WithParams sets the source of pipeline parameters. It is read at the start
// of every run so configuration changes apply to the next run.
func WithParams(fn func() sleep.Params) AnalyzerOption {
	return func(a *Analyzer) {
		a.params = fn
	}
}

// NewAnalyzer creates an Analyzer reading from events and writing to sink.
func NewAnalyzer(events EventLoader, sink ResultSink, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		events: events,
		sink:   sink,
		params: sleep.DefaultParams,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recompute runs the pipeline over the full history of userID and replaces
// the stored results. A user without events is left untouched.
func (a *Analyzer) Recompute(ctx context.Context, userID int64) (Outcome, error) {
	start := a.clock()
	out := Outcome{RunID: uuid.NewString(), UserID: userID}

	events, err := a.events.AllEvents(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("load events for user %d: %w", userID, err)
	}
	if len(events) == 0 {
		out.Empty = true
		a.logger.Debug("recompute skipped, no events", "user_id", userID, "run_id", out.RunID)
		return out, nil
	}

	out.Result = sleep.Analyze(events, a.params())

	if err := a.sink.ReplaceSleepPeriods(ctx, userID, out.Result.Periods); err != nil {
		return out, err
	}
	if err := a.sink.ReplaceDailyTimezones(ctx, userID, out.Result.Daily); err != nil {
		return out, err
	}
	if offset, ok := out.Result.CurrentOffset(); ok {
		if err := a.sink.UpdateCurrentOffset(ctx, userID, offset); err != nil {
			return out, err
		}
	}

	out.Duration = a.clock().Sub(start)
	a.logger.Info("recompute finished",
		"user_id", userID,
		"run_id", out.RunID,
		"events", len(events),
		"periods", len(out.Result.Periods),
		"days", len(out.Result.Daily),
		"duration", out.Duration,
	)
	return out, nil
}
