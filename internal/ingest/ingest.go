package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

// EventStore defines store operations needed by Ingester.
type EventStore interface {
	AppendEvent(ctx context.Context, e *presence.Event) (bool, error)
	InsertRejectedReport(ctx context.Context, raw, errorMsg string) (bool, error)
}

// AppendFunc is called after every stored event. inserted is false when the
// event overwrote the newest row of a run instead of adding one.
type AppendFunc func(e presence.Event, inserted bool)

// Ingester coordinates report ingestion from a source to the store.
type Ingester struct {
	store    EventStore
	resolver Resolver
	onAppend AppendFunc
	logger   *slog.Logger
	clock    Clock
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger for the Ingester.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) { i.logger = logger }
}

// WithClock sets the clock for the Ingester (for testing).
func WithClock(clock Clock) Option {
	return func(i *Ingester) { i.clock = clock }
}

// WithOnAppend sets the hook run after each stored event.
func WithOnAppend(fn AppendFunc) Option {
	return func(i *Ingester) { i.onAppend = fn }
}

// New creates a new Ingester.
func New(st EventStore, resolver Resolver, opts ...Option) *Ingester {
	i := &Ingester{
		store:    st,
		resolver: resolver,
		logger:   slog.Default(),
		clock:    DefaultClock,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest resolves, converts and stores one report.
func (i *Ingester) Ingest(ctx context.Context, r Report) (presence.Event, error) {
	userID, err := i.resolver.Resolve(ctx, r)
	if err != nil {
		return presence.Event{}, err
	}

	e, err := ToEvent(r, userID, i.clock)
	if err != nil {
		return presence.Event{}, err
	}

	inserted, err := i.store.AppendEvent(ctx, &e)
	if err != nil {
		return presence.Event{}, fmt.Errorf("append: %w", err)
	}

	i.logger.Debug("event stored",
		"user_id", e.UserID,
		"source", e.Source,
		"status", e.Status,
		"ts", e.Timestamp,
		"inserted", inserted,
	)
	if i.onAppend != nil {
		i.onAppend(e, inserted)
	}
	return e, nil
}

// Run consumes src until ctx is cancelled or src closes both channels.
// Returns ctx.Err() on context cancellation, nil on clean source shutdown.
func (i *Ingester) Run(ctx context.Context, src Source) error {
	reports, errs, err := src.Start(ctx)
	if err != nil {
		return err
	}
	if reports == nil || errs == nil {
		return errors.New("source returned nil channel")
	}

	i.logger.Info("ingestion started")
	defer i.logger.Info("ingestion stopped")

	// Nil each channel when closed; exit when both are nil.
	reportsCh := reports
	errsCh := errs

	for reportsCh != nil || errsCh != nil {
		select {
		case r, ok := <-reportsCh:
			if !ok {
				reportsCh = nil
				continue
			}
			i.handleReport(ctx, r)
		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			i.handleError(ctx, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (i *Ingester) handleReport(ctx context.Context, r Report) {
	_, err := i.Ingest(ctx, r)
	switch {
	case err == nil:
	case errors.Is(err, ErrIgnoredStatus):
		i.logger.Debug("status ignored", "platform", r.Platform, "status", r.Status)
	case errors.Is(err, ErrUnknownUser), errors.Is(err, store.ErrUserNotFound):
		i.logger.Warn("report for untracked user", "platform", r.Platform, "error", err)
	default:
		i.handleError(ctx, err)
	}
}

// handleError records parse failures and logs everything else.
func (i *Ingester) handleError(ctx context.Context, err error) {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		i.logger.Warn("source error", "error", err)
		return
	}

	errMsg := ""
	if parseErr.Err != nil {
		errMsg = parseErr.Err.Error()
	}

	inserted, err := i.store.InsertRejectedReport(ctx, parseErr.Line, errMsg)
	if err != nil {
		i.logger.Error("failed to record rejected report", "error", err)
		return
	}
	if inserted {
		i.logger.Debug("rejected report recorded", "reason", errMsg)
	}
}
