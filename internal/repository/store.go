package repository

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when the key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// Store is the transient key-value capability the OTP lifecycle runs on.
// Implementations must provide atomic single-key operations and server-side
// TTL expiry. No cross-key transactions are assumed.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	// Incr atomically increments an integer counter, creating it at 1
	// (without TTL) when absent.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets a TTL on an existing key. Missing keys are a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime, or a non-positive duration when
	// the key is absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
}
