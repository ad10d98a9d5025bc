// Package ratelimit implements a sliding-window request limiter on top of a
// pluggable event store, so single instances count in memory and fleets can
// share counts through Postgres.
package ratelimit

import (
	"context"
	"net"
	"strings"
	"time"

	"moatgate.org/internal/store"
)

// Limiter enforces a per-key request budget inside a sliding window. Auth
// endpoints get a separate, stricter budget because failed logins are the
// cheapest thing to hammer.
type Limiter struct {
	store     store.RateStore
	window    time.Duration
	limit     int
	authLimit int
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func NewLimiter(s store.RateStore, window time.Duration, limit, authLimit int) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if limit <= 0 {
		limit = 60
	}
	if authLimit <= 0 || authLimit > limit {
		authLimit = limit
	}
	return &Limiter{store: s, window: window, limit: limit, authLimit: authLimit}
}

// Window reports the sliding window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records one request for key and admits it while the key stays within
// the general budget.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.check(ctx, key, l.limit)
}

// AllowAuth is Allow under the stricter auth-endpoint budget. Events share
// one counter per key across both budgets, so an auth storm also burns the
// general budget.
func (l *Limiter) AllowAuth(ctx context.Context, key string) (Decision, error) {
	return l.check(ctx, key, l.authLimit)
}

func (l *Limiter) check(ctx context.Context, key string, limit int) (Decision, error) {
	count, err := l.store.Record(ctx, key, l.window)
	if err != nil {
		return Decision{}, err
	}
	if count > limit {
		return Decision{Allowed: false, RetryAfter: l.window}, nil
	}
	return Decision{Allowed: true, Remaining: limit - count}, nil
}

// Key derives the accounting key for a request: authenticated callers are
// limited per subject, anonymous ones per source address.
func Key(subject, remoteAddr string) string {
	if subject = strings.TrimSpace(subject); subject != "" {
		return "user:" + subject
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		host = remoteAddr
	}
	return "ip:" + host
}
