// Package store defines the persistence contracts for gateway state that
// must survive or be shared across instances: token revocation and rate
// accounting. Single-node deployments use the memory backend; fleets point
// both interfaces at the pg backend so a token revoked on one instance is
// rejected everywhere.
package store

import (
	"context"
	"time"
)

// RevocationStore tracks token IDs that must no longer be accepted. Entries
// only need to outlive the token itself, so every write carries a TTL.
type RevocationStore interface {
	// Revoke marks the token ID as revoked for at least ttl.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether the token ID is currently revoked. Expired
	// entries count as not revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RateStore counts request events per key inside a sliding window. Record
// registers one event and returns how many events the key has accumulated
// within the window, including the one just recorded.
type RateStore interface {
	Record(ctx context.Context, key string, window time.Duration) (int, error)
}
