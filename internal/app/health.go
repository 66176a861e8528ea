// Package app holds the use cases behind the HTTP API. Handlers depend on
// the small interfaces declared here, and the services implement them on
// top of the store, the ingester and the recompute queue.
package app

import "context"

type HealthUsecase interface {
	Handle(ctx context.Context) (HealthResult, error)
}

// HealthResult is the body of GET /api/v1/health.
type HealthResult struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Database      string `json:"database,omitempty"`
	Notifications string `json:"notifications,omitempty"`
	PendingNotify int    `json:"pending_notifications,omitempty"`
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NotifierHealth reports the notification pipeline state.
type NotifierHealth interface {
	Health() (state string, pending int)
}

// HealthService answers health checks. DB and Notifier are optional.
type HealthService struct {
	Version  string
	DB       Pinger
	Notifier NotifierHealth
}

// Handle never fails. A dead database turns the status "degraded"; a
// failing notifier is reported but leaves the status alone, since reports
// are still stored and analyzed.
func (s HealthService) Handle(ctx context.Context) (HealthResult, error) {
	res := HealthResult{Status: "ok", Version: s.Version}
	if s.DB != nil {
		res.Database = "ok"
		if err := s.DB.Ping(ctx); err != nil {
			res.Status = "degraded"
			res.Database = "unavailable"
		}
	}
	if s.Notifier != nil {
		res.Notifications, res.PendingNotify = s.Notifier.Health()
	}
	return res, nil
}
