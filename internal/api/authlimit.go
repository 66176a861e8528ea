package api

import (
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

const authFailureEntries = 4096

// AuthFailureLimiter counts wrong Basic Auth passwords per client IP and
// locks a client out once it reaches MaxFailures inside Window. Records are
// kept in a bounded cache so a scan from many addresses cannot grow memory
// without limit.
type AuthFailureLimiter struct {
	mu      sync.Mutex
	records *otter.Cache[string, authRecord]
	cfg     AuthFailureLimiterConfig
	now     func() time.Time
}

type authRecord struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// AuthFailureLimiterConfig configures AuthFailureLimiter.
type AuthFailureLimiterConfig struct {
	MaxFailures   int
	Window        time.Duration
	LockoutPeriod time.Duration
}

// DefaultAuthFailureLimiterConfig allows 5 failures per 5 minutes and then
// locks the client out for 15 minutes.
func DefaultAuthFailureLimiterConfig() AuthFailureLimiterConfig {
	return AuthFailureLimiterConfig{
		MaxFailures:   5,
		Window:        5 * time.Minute,
		LockoutPeriod: 15 * time.Minute,
	}
}

func NewAuthFailureLimiter(cfg AuthFailureLimiterConfig) *AuthFailureLimiter {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	ttl := max(cfg.Window, cfg.LockoutPeriod, time.Second)
	return &AuthFailureLimiter{
		records: otter.Must(&otter.Options[string, authRecord]{
			MaximumSize:      authFailureEntries,
			ExpiryCalculator: otter.ExpiryWriting[string, authRecord](ttl),
		}),
		cfg: cfg,
		now: time.Now,
	}
}

// IsLocked reports whether ip is inside a lockout.
func (l *AuthFailureLimiter) IsLocked(ip string) bool {
	return l.LockoutSecondsRemaining(ip) > 0
}

// RecordFailure counts one wrong password and returns how many attempts
// remain, or -1 when this failure started a lockout.
func (l *AuthFailureLimiter) RecordFailure(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records.GetIfPresent(ip)
	expired := !rec.lockedUntil.IsZero() && !now.Before(rec.lockedUntil)
	if !ok || expired || now.Sub(rec.windowStart) > l.cfg.Window {
		rec = authRecord{windowStart: now}
	}
	rec.failures++

	remaining := l.cfg.MaxFailures - rec.failures
	if remaining <= 0 {
		rec.lockedUntil = now.Add(l.cfg.LockoutPeriod)
		remaining = -1
	}
	l.records.Set(ip, rec)
	return remaining
}

// RecordSuccess forgets earlier failures for ip.
func (l *AuthFailureLimiter) RecordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records.Invalidate(ip)
}

// LockoutSecondsRemaining rounds the remaining lockout up to whole seconds,
// ready for a Retry-After header. It is 0 when ip is not locked.
func (l *AuthFailureLimiter) LockoutSecondsRemaining(ip string) int {
	l.mu.Lock()
	rec, ok := l.records.GetIfPresent(ip)
	l.mu.Unlock()
	if !ok || rec.lockedUntil.IsZero() {
		return 0
	}
	left := rec.lockedUntil.Sub(l.now())
	if left <= 0 {
		return 0
	}
	return retryAfterSeconds(left)
}
