package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/robfig/cron/v3"
)

// MinPollInterval is the shortest accepted polling interval.
const MinPollInterval = 10 * time.Second

// ProbeTarget is one tracked identity whose status is fetched over HTTP.
type ProbeTarget struct {
	Label      string
	TelegramID *int64
	DiscordID  *int64
	Platform   string
	URL        string
}

// probeResponse is the JSON body a probe URL returns.
type probeResponse struct {
	Status   string `json:"status"`
	Platform string `json:"platform,omitempty"`
}

// Poller periodically fetches the status of every target and emits a report
// per successful probe. It is the fallback for platforms whose push updates
// can be missed.
type Poller struct {
	targets  []ProbeTarget
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithHTTPClient sets the HTTP client used for probes.
func WithHTTPClient(c *http.Client) PollerOption {
	return func(p *Poller) { p.client = c }
}

// WithPollerLogger sets the logger. A nil logger is ignored.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetry sets the number of probe attempts and the initial delay.
func WithRetry(attempts uint, delay time.Duration) PollerOption {
	return func(p *Poller) {
		p.attempts = attempts
		p.delay = delay
	}
}

// NewPoller creates a Poller. Intervals below MinPollInterval are raised.
func NewPoller(targets []ProbeTarget, interval time.Duration, opts ...PollerOption) *Poller {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	p := &Poller{
		targets:  targets,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   slog.Default(),
		attempts: 3,
		delay:    time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start implements Source. Probes run on a cron schedule of the configured
// interval and once immediately.
func (p *Poller) Start(ctx context.Context) (<-chan Report, <-chan error, error) {
	reportCh := make(chan Report, DefaultEventBufferSize)
	errCh := make(chan error, DefaultErrorBufferSize)

	job := p.pollJob(ctx, reportCh, errCh)
	c := cron.New(cron.WithLogger(cronLogger{p.logger}))
	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, nil, fmt.Errorf("schedule poller %q: %w", spec, err)
	}

	p.logger.Info("status poller started", "targets", len(p.targets), "interval", p.interval)

	go func() {
		defer close(reportCh)
		defer close(errCh)

		job.Run()
		c.Start()

		<-ctx.Done()
		// Wait for a running poll to finish before closing its channels.
		<-c.Stop().Done()
	}()

	return reportCh, errCh, nil
}

// pollJob wraps one round of probes. Retries can outlast the interval, so a
// tick that finds the previous round still running is skipped; reports for
// a target then stay in probe order.
func (p *Poller) pollJob(ctx context.Context, reports chan<- Report, errs chan<- error) cron.Job {
	return cron.NewChain(cron.SkipIfStillRunning(cronLogger{p.logger})).
		Then(cron.FuncJob(func() { p.pollAll(ctx, reports, errs) }))
}

// cronLogger routes cron's messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

func (p *Poller) pollAll(ctx context.Context, reports chan<- Report, errs chan<- error) {
	for _, target := range p.targets {
		if ctx.Err() != nil {
			return
		}
		r, err := p.Probe(ctx, target)
		if err != nil {
			select {
			case errs <- fmt.Errorf("probe %s: %w", target.Label, err):
			default:
			}
			continue
		}
		select {
		case reports <- r:
		case <-ctx.Done():
			return
		}
	}
}

// Probe fetches the current status of one target. Network errors, 429 and
// 5xx responses are retried with jittered backoff; other 4xx responses fail
// at once.
func (p *Poller) Probe(ctx context.Context, target ProbeTarget) (Report, error) {
	var body probeResponse

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := p.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d", resp.StatusCode))
			}

			if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode probe response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Debug("retrying probe",
				"target", target.Label,
				"attempt", n+1,
				"error", err,
			)
		}),
	)
	if err != nil {
		return Report{}, err
	}

	platform := body.Platform
	if platform == "" {
		platform = target.Platform
	}
	return Report{
		TelegramID: target.TelegramID,
		DiscordID:  target.DiscordID,
		Platform:   platform,
		Status:     body.Status,
	}, nil
}
