package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"moatgate.org/internal/audit"
	"moatgate.org/internal/auth"
	"moatgate.org/internal/ratelimit"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.code).
			Dur("duration", time.Since(start)).
			Str("remote", clientIP(r)).
			Msg("request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

func maxBodyBytes(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// burstBrake is a cheap per-IP token bucket in front of the sliding-window
// limiter. It only smooths spikes; the window limiter remains the budget of
// record.
func (a *API) burstBrake(perSecond int) func(http.Handler) http.Handler {
	type bucket struct {
		lim *rate.Limiter
		ts  time.Time
	}
	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
	)
	const ttl = 5 * time.Minute

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			now := time.Now()

			mu.Lock()
			b, ok := buckets[ip]
			if !ok {
				b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), perSecond*2)}
				buckets[ip] = b
				if len(buckets)%256 == 0 {
					for k, old := range buckets {
						if now.Sub(old.ts) > ttl {
							delete(buckets, k)
						}
					}
				}
			}
			b.ts = now
			allowed := b.lim.Allow()
			mu.Unlock()

			if !allowed {
				a.metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, kindRateLimit, "request rate too high")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit applies the general sliding-window budget, keyed per subject for
// authenticated callers and per source address otherwise.
func (a *API) rateLimit(next http.Handler) http.Handler {
	return a.windowLimit(next, a.limiter.Allow)
}

// rateLimitAuth applies the stricter auth-endpoint budget. Auth requests are
// anonymous by nature, so the key is always the source address.
func (a *API) rateLimitAuth(next http.Handler) http.Handler {
	return a.windowLimit(next, a.limiter.AllowAuth)
}

func (a *API) windowLimit(next http.Handler, allow func(ctx context.Context, key string) (ratelimit.Decision, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := ""
		if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
			subject = principal.Subject
		}
		key := ratelimit.Key(subject, r.RemoteAddr)

		decision, err := allow(r.Context(), key)
		if err != nil {
			// Fail open: a rate-store outage must not take the gateway down.
			a.log.Warn().Err(err).Str("key", key).Msg("rate store unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !decision.Allowed {
			a.metrics.RateLimited.Inc()
			a.audit.Record(audit.Event{
				Type:   audit.EventRateLimited,
				Actor:  subject,
				Origin: clientIP(r),
				Action: r.Method + " " + r.URL.Path,
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, kindRateLimit, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
