package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64

	// basicAuthRealm is sent in WWW-Authenticate challenges.
	basicAuthRealm = `Basic realm="nickutc"`
)

// CORSConfig lists the cross-origin callers allowed to read the API.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// corsMiddleware answers preflights and echoes allowlisted origins.
// Requests from other origins pass through without CORS headers, so the
// browser blocks them.
func corsMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && slices.Contains(cfg.AllowedOrigins, origin)

			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Last-Event-ID")
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// changesState reports whether the method can mutate server state.
func changesState(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// csrfMiddleware refuses writes unless Origin (or Referer when Origin is
// absent) names a loopback host or one of allowedHosts. A write carrying
// neither header is refused as well.
func csrfMiddleware(allowedHosts []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !changesState(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			source, header := r.Header.Get("Origin"), "origin"
			if source == "" {
				source, header = r.Header.Get("Referer"), "referer"
			}
			if source == "" {
				writeError(w, http.StatusForbidden, "missing origin or referer", nil)
				return
			}

			u, err := url.Parse(source)
			if err != nil || !isAllowedHost(u.Host, allowedHosts) {
				writeError(w, http.StatusForbidden, "invalid "+header, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hostOnly strips an optional port and IPv6 brackets.
func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.Trim(hostport, "[]")
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isAllowedHost matches host against the loopback names and allowedHosts,
// ignoring ports on both sides.
func isAllowedHost(host string, allowedHosts []string) bool {
	host = hostOnly(host)
	if host == "" {
		return false
	}
	if isLoopbackHost(host) {
		return true
	}
	return slices.ContainsFunc(allowedHosts, func(allowed string) bool {
		return strings.EqualFold(hostOnly(allowed), host)
	})
}

// contentSecurityPolicy fits the embedded dashboard: one script, one
// stylesheet, and EventSource back to the same origin.
var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self'",
	"style-src 'self'",
	"img-src 'self' data:",
	"connect-src 'self'",
	"base-uri 'none'",
	"frame-ancestors 'none'",
	"form-action 'self'",
}, "; ")

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", contentSecurityPolicy},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// constantTimeEqualString hashes both sides first so the comparison does
// not leak the length of the expected value.
func constantTimeEqualString(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}

func writeLockedOut(w http.ResponseWriter, afl *AuthFailureLimiter, ip string) {
	w.Header().Set("Retry-After", strconv.Itoa(afl.LockoutSecondsRemaining(ip)))
	writeError(w, http.StatusTooManyRequests, "too many failed logins", nil)
}

// basicAuthMiddleware checks HTTP Basic credentials. With afl set, wrong
// passwords are counted per client IP and a locked out IP gets 429 even
// when it finally sends the right password. A request with no credentials
// at all is the browser's first probe and is not counted.
func basicAuthMiddleware(username, password string, afl *AuthFailureLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r)
			if afl != nil && afl.IsLocked(ip) {
				writeLockedOut(w, afl, ip)
				return
			}

			u, p, sent := r.BasicAuth()
			if sent && constantTimeEqualString(u, username) && constantTimeEqualString(p, password) {
				if afl != nil {
					afl.RecordSuccess(ip)
				}
				next.ServeHTTP(w, r)
				return
			}

			if sent && afl != nil && afl.RecordFailure(ip) < 0 {
				writeLockedOut(w, afl, ip)
				return
			}
			w.Header().Set("WWW-Authenticate", basicAuthRealm)
			writeError(w, http.StatusUnauthorized, "", nil)
		})
	}
}

// requestIDMiddleware tags the request and response with X-Request-ID,
// keeping a client-supplied id when it is short enough to log.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
