package kv

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the store could not serve the operation.
// Callers treat it like any other store error: fail open and keep going.
var ErrUnavailable = errors.New("kv: store unavailable")

// Store is the narrow key/value surface the rate limiter runs on. All values
// are strings; TTLs are applied at write time and a zero TTL means the key
// never expires.
type Store interface {
	// Get returns the value for key. A missing or expired key is reported
	// via the boolean, not as an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key. A positive ttl bounds the key's lifetime.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the integer counter at key and returns the
	// new count. The ttl applies only when this increment created the key,
	// so the counter's window is anchored at the first hit.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Exists reports whether key holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// Del removes the given keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
}
