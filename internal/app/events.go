package app

import (
	"context"

	"github.com/graaaaa/nickutc/internal/ingest"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

// EventsUsecase defines the event log use cases.
type EventsUsecase interface {
	Query(ctx context.Context, filter store.EventFilter) (store.EventPage, error)
	Submit(ctx context.Context, userID int64, r ingest.Report) (presence.Event, error)
}

// EventStore defines store operations needed by EventsService.
type EventStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) (store.EventPage, error)
}

// ReportIngester stores one presence report.
type ReportIngester interface {
	Ingest(ctx context.Context, r ingest.Report) (presence.Event, error)
}

// EventsService implements EventsUsecase.
type EventsService struct {
	Store    EventStore
	Ingester ReportIngester
}

// Query queries events with the given filter.
func (s *EventsService) Query(ctx context.Context, filter store.EventFilter) (store.EventPage, error) {
	return s.Store.QueryEvents(ctx, filter)
}

// Submit ingests a report pushed for userID. The path user wins over any
// platform ids in the body.
func (s *EventsService) Submit(ctx context.Context, userID int64, r ingest.Report) (presence.Event, error) {
	r.UserID = userID
	return s.Ingester.Ingest(ctx, r)
}
