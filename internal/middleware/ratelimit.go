package middleware

import (
	"log"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/pennywise/backend/internal/ratelimit"
	"github.com/pennywise/backend/internal/services"
)

// KeyFunc derives the rate limit key for a request. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// ClientIPKey keys by client address under prefix. Run after
// chi's RealIP middleware so proxies are accounted for.
func ClientIPKey(prefix string) KeyFunc {
	return func(r *http.Request) string {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		return prefix + ":" + host
	}
}

// AccountKey keys by authenticated account under prefix. It must run
// after the auth middleware.
func AccountKey(prefix string) KeyFunc {
	return func(r *http.Request) string {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			return ""
		}
		return prefix + ":" + account.ID
	}
}

// RateLimit answers 429 with Retry-After once key exceeds its window
// budget. Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.Allow(r.Context(), k)
			if err != nil {
				log.Printf("[RATELIMIT] Limiter unavailable, allowing %s: %v", k, err)
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				services.SendErrorResponse(w, "Too many requests", http.StatusTooManyRequests, nil)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
