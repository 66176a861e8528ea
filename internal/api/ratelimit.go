package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides IP-based rate limiting with two token buckets per
// client: a per-second bucket for bursts and a per-minute bucket for
// sustained load. A request must fit in both.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitorLimiter
	perSecond int
	perMinute int
	cleanup   time.Duration
	now       func() time.Time
	stopOnce  sync.Once
	done      chan struct{}
}

type visitorLimiter struct {
	second   *rate.Limiter
	minute   *rate.Limiter
	lastSeen time.Time
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// PerSecond is the requests allowed per second; zero disables the bucket.
	PerSecond int
	// PerMinute is the requests allowed per minute; zero disables the bucket.
	PerMinute int
	// CleanupInterval is how often idle visitors are dropped.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns the default limits: 30 req/s and 300 req/min.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		PerSecond:       30,
		PerMinute:       300,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewRateLimiter creates a new IP-based rate limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		visitors:  make(map[string]*visitorLimiter),
		perSecond: cfg.PerSecond,
		perMinute: cfg.PerMinute,
		cleanup:   cfg.CleanupInterval,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func newBucket(n int, per time.Duration) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(n)/per.Seconds()), n)
}

func (rl *RateLimiter) visitor(ip string, now time.Time) *visitorLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitorLimiter{
			second: newBucket(rl.perSecond, time.Second),
			minute: newBucket(rl.perMinute, time.Minute),
		}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v
}

// Allow checks if a request from the given IP should be allowed.
// When it is not, retryAfter is how long the client should wait.
func (rl *RateLimiter) Allow(ip string) (ok bool, retryAfter time.Duration) {
	now := rl.now()
	v := rl.visitor(ip, now)

	sec := v.second.ReserveN(now, 1)
	mn := v.minute.ReserveN(now, 1)
	wait := max(sec.DelayFrom(now), mn.DelayFrom(now))
	if wait == 0 {
		return true, 0
	}

	// Neither bucket is charged for a rejected request.
	sec.CancelAt(now)
	mn.CancelAt(now)
	return false, wait
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.removeStale()
		case <-rl.done:
			return
		}
	}
}

// removeStale drops visitors idle for two cleanup intervals.
func (rl *RateLimiter) removeStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := rl.now().Add(-rl.cleanup * 2)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(threshold) {
			delete(rl.visitors, ip)
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
	})
}

// Middleware limits /api/ requests per client IP. Dashboard assets are
// never limited.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		ok, wait := rl.Allow(extractIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// extractIP returns the client address without its port. The server is
// reached directly on the LAN, so RemoteAddr is trusted and forwarding
// headers are ignored.
func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
