package httpx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/redisx"
)

type ctxKey int

const userIDKey ctxKey = 0

// UserID returns the authenticated user id the gateway attached to the
// request, or "" outside the Auth middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Auth trusts the X-User-ID header set by the upstream gateway; identity
// resolution itself happens there, not here.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-ID")
		if id == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing user identity", nil, nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

// Counter is the slice of the cache the rate limiter needs. ok=false means
// the cache is unavailable.
type Counter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, bool)
}

// RateLimit caps requests per caller per route on a fixed one-minute window
// counted in the shared cache. When the cache is down the limiter waves
// traffic through; losing redis must not take checkout with it.
func RateLimit(counter Counter, perMinute int, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := UserID(r.Context())
			if caller == "" {
				caller = r.RemoteAddr
			}
			key := fmt.Sprintf(redisx.KeyRateLimit, r.URL.Path, caller)
			n, ok := counter.Increment(r.Context(), key, redisx.TTLRateLimit)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if n > int64(perMinute) {
				log.Warn().Str("caller", caller).Str("path", r.URL.Path).Int64("count", n).Msg("rate limited")
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down", nil, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
