package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/graaaaa/nickutc/internal/config"
)

// SendResult classifies a delivery attempt for the notifier.
type SendResult int

const (
	SendOK SendResult = iota
	// SendRetryable: the sender's own retries ran out on a transient
	// failure (429, 5xx, network). The notifier backs off and requeues.
	SendRetryable
	// SendFatal: the channel rejected us (bad webhook, revoked token).
	// The notifier stops using this sender.
	SendFatal
)

func (r SendResult) String() string {
	switch r {
	case SendOK:
		return "ok"
	case SendRetryable:
		return "retryable"
	case SendFatal:
		return "fatal"
	}
	return "unknown"
}

// Sender delivers a batch of changes to one channel.
type Sender interface {
	// Name identifies the channel in logs and status.
	Name() string
	// Send delivers items. The duration is a server-requested wait
	// (Retry-After), zero when none was given.
	Send(ctx context.Context, items []Item) (SendResult, time.Duration)
}

const (
	defaultSendAttempts = 3
	defaultSendDelay    = 500 * time.Millisecond
	defaultSendTimeout  = 10 * time.Second
)

// DiscordSender posts embeds to a Discord webhook.
type DiscordSender struct {
	webhook  config.Secret
	client   *http.Client
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

type SenderOption func(*DiscordSender)

func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *DiscordSender) { s.client = client }
}

func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *DiscordSender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSenderRetry sets attempts per webhook call and the first retry delay.
func WithSenderRetry(attempts uint, delay time.Duration) SenderOption {
	return func(s *DiscordSender) {
		s.attempts = attempts
		s.delay = delay
	}
}

// NewDiscordSender keeps the webhook as a Secret; the URL embeds its token
// and must never reach a log line.
func NewDiscordSender(webhook config.Secret, opts ...SenderOption) *DiscordSender {
	s := &DiscordSender{
		webhook:  webhook,
		client:   &http.Client{Timeout: defaultSendTimeout},
		logger:   slog.Default(),
		attempts: defaultSendAttempts,
		delay:    defaultSendDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DiscordSender) Name() string { return "discord" }

// Send posts the batch as one or more payloads in order and stops at the
// first one that fails.
func (s *DiscordSender) Send(ctx context.Context, items []Item) (SendResult, time.Duration) {
	if s.webhook.IsEmpty() {
		s.logger.Warn("discord webhook not configured")
		return SendFatal, 0
	}
	for _, payload := range BuildDiscordPayloads(items) {
		if res, wait := s.post(ctx, payload); res != SendOK {
			return res, wait
		}
	}
	return SendOK, 0
}

// webhookError carries how a failed webhook call should be treated.
type webhookError struct {
	status     int
	fatal      bool
	retryAfter time.Duration
}

func (e *webhookError) Error() string { return "discord webhook: HTTP " + strconv.Itoa(e.status) }

// checkWebhookResponse maps a response to nil or a webhookError. A 429 is
// not retried in place: the notifier waits out Retry-After instead, since
// hammering would only extend the limit. Other 4xx mean the webhook is gone
// or malformed.
func checkWebhookResponse(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return retry.Unrecoverable(&webhookError{
			status:     code,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		})
	case code >= 400 && code < 500:
		return retry.Unrecoverable(&webhookError{status: code, fatal: true})
	}
	return &webhookError{status: code}
}

func (s *DiscordSender) post(ctx context.Context, payload DiscordPayload) (SendResult, time.Duration) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode discord payload", "error", err)
		return SendFatal, 0
	}

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook.Value(), bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(&webhookError{fatal: true})
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			return checkWebhookResponse(resp)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying discord webhook", "attempt", n+1, "error", err)
		}),
	)
	if err == nil {
		s.logger.Debug("discord notification sent", "embeds", len(payload.Embeds))
		return SendOK, 0
	}

	var we *webhookError
	if errors.As(err, &we) && we.fatal {
		s.logger.Error("discord webhook rejected the request", "error", err, "webhook", s.webhook)
		return SendFatal, 0
	}
	var wait time.Duration
	if we != nil {
		wait = we.retryAfter
	}
	s.logger.Warn("discord delivery failed", "error", err, "retry_after", wait)
	return SendRetryable, wait
}

// parseRetryAfter reads whole or fractional seconds. HTTP dates are not
// used by Discord or Telegram and yield zero.
func parseRetryAfter(header string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(header), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
