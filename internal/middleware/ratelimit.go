package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// limiter is a fixed-window counter per client key.
type limiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	windows   map[string]window
	lastSweep time.Time
}

type window struct {
	count int
	until time.Time
}

// allow records one request for key and reports how long to wait when the
// window is exhausted.
func (l *limiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	if ts.Sub(l.lastSweep) > l.per {
		for k, w := range l.windows {
			if ts.After(w.until) {
				delete(l.windows, k)
			}
		}
		l.lastSweep = ts
	}

	w, ok := l.windows[key]
	if !ok || ts.After(w.until) {
		w = window{until: ts.Add(l.per)}
	}
	if w.count >= l.limit {
		return false, w.until.Sub(ts)
	}
	w.count++
	l.windows[key] = w
	return true, 0
}

// RateLimit allows limit requests per window for each client. Authenticated
// callers are keyed by account, everyone else by IP.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	return rateLimit(limit, per, time.Now)
}

func rateLimit(limit int, per time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	l := &limiter{limit: limit, per: per, now: now, windows: make(map[string]window), lastSweep: now()}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.allow(rateLimitKey(r))
			if !ok {
				retry := int(math.Floor(wait.Seconds())) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"kind":"rate_limit","code":"RATE_LIMITED","message":"too many requests","retryable":true}}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if caller := CallerFromContext(r.Context()); caller != "" {
		return "caller:" + caller
	}
	return "ip:" + ClientIP(r)
}
