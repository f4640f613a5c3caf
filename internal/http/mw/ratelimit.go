package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig configures the global sliding-window limiter (spec §4.9:
// "Global sliding-window cap per remote address").
type RateLimitConfig struct {
	RequestsPerMinute int
	Window            time.Duration
}

// DefaultRateLimitConfig returns the spec's default of 100 req/min.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 100, Window: time.Minute}
}

// RateLimitGlobal returns middleware enforcing a sliding-window cap per
// remote address, grounded on the teacher's own RateLimitGlobal
// (httprate.Limit keyed on a constant function), generalized from a fixed
// per-minute global bucket to a configurable window keyed by remote
// address per spec §4.9. httprate's own response writer sets
// X-RateLimit-Limit/Remaining/Reset and Retry-After and answers 429 on
// exceedance, so this middleware needs no header bookkeeping of its own.
// The unprefixed RateLimit-* header names are not set.
func RateLimitGlobal(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 100
	}
	return httprate.Limit(
		cfg.RequestsPerMinute,
		cfg.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return remoteAddrKey(r), nil
		}),
	)
}

func remoteAddrKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// MaxBytes returns middleware enforcing the spec §4.9 payload cap "before
// parsing" by wrapping the body in http.MaxBytesReader.
func MaxBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
