package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Counter counts hits for a key within fixed windows.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit returns middleware that allows limit requests per client IP per
// window. Health checks are not counted.
func RateLimit(counter Counter, limit int, window time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			count, err := counter.Increment(r.Context(), ip, window)
			if err != nil {
				slog.Error("rate limit check failed", "error", err, "client_ip", ip)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(limit)-count, 0), 10))

			if count > int64(limit) {
				slog.Debug("rate limited", "client_ip", ip, "count", count, "limit", limit)
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeDetail(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
