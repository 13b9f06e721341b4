package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/markguard/internal/metrics"
	"github.com/watzon/markguard/internal/requestctx"
)

// Rule allows Max requests per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

type Limiter struct {
	store Store
	rule  Rule
}

func New(store Store, rule Rule) *Limiter {
	return &Limiter{store: store, rule: rule}
}

// Allow reports whether another request for key fits in the current window
// and how many requests remain. Store errors are logged and the request is
// let through.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int) {
	hits, err := l.store.Increment(ctx, key, l.rule.Window)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Rate limit store unavailable, allowing request")
		return true, l.rule.Max
	}

	remaining := l.rule.Max - int(hits)
	if remaining < 0 {
		return false, 0
	}
	return true, remaining
}

// Middleware rejects requests over the limit with 429 and a JSON body.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := requestctx.ClientIP(r.Context())
		if key == "" {
			key = ClientIP(r, false)
		}

		allowed, remaining := l.Allow(r.Context(), key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.rule.Max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			metrics.RecordRateLimitRejection()
			w.Header().Set("Retry-After", strconv.Itoa(int(l.rule.Window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests. Please try again later.","code":"RATE_LIMITED"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the connection address for r. With trustProxy set,
// X-Real-IP and then the first X-Forwarded-For entry take precedence.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
