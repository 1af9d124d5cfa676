package ratelimit

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
)

// Middleware rejects requests over the client's limit with 429. Clients are
// keyed by remote IP, so it belongs after middleware.RealIP. A nil limiter
// returns next unchanged.
func Middleware(l *Limiter, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			d := l.Allow(key)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", d.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", math.Floor(d.Remaining)))
			if !d.Allowed {
				if logger != nil {
					logger.Printf("rate limit exceeded: client=%s path=%s", key, r.URL.Path)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded, please try again later"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller by IP address.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
