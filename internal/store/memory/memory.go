// Package memory provides process-local implementations of the store
// contracts. State is lost on restart, which is acceptable for revocation
// (tokens expire on their own) and for rate accounting (windows are short).
package memory

import (
	"context"
	"sync"
	"time"

	"moatgate.org/internal/store"
)

// RevocationStore keeps revoked token IDs in a map keyed by jti.
type RevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

var _ store.RevocationStore = (*RevocationStore)(nil)

func NewRevocationStore() *RevocationStore {
	return &RevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *RevocationStore) WithClock(now func() time.Time) *RevocationStore {
	s.now = now
	return s
}

func (s *RevocationStore) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = s.now().Add(ttl)
	s.pruneLocked()
	return nil
}

func (s *RevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	expiry, ok := s.entries[jti]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if s.now().After(expiry) {
		s.mu.Lock()
		delete(s.entries, jti)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (s *RevocationStore) pruneLocked() {
	now := s.now()
	for jti, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, jti)
		}
	}
}

// RateStore keeps per-key event timestamps and prunes anything older than
// the window on every write, so memory stays bounded by the request rate.
type RateStore struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

var _ store.RateStore = (*RateStore)(nil)

func NewRateStore() *RateStore {
	return &RateStore{
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *RateStore) WithClock(now func() time.Time) *RateStore {
	s.now = now
	return s
}

func (s *RateStore) Record(_ context.Context, key string, window time.Duration) (int, error) {
	now := s.now()
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[key][:0]
	for _, ts := range s.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	s.events[key] = kept
	return len(kept), nil
}
