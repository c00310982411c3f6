package cache

import (
	"context"
	"time"
)

// Store is the key-value contract the coordinator and quota tracker run
// on. Production uses Redis; tests substitute an in-memory store.
type Store interface {
	// Get returns the raw value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key with the given TTL (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes only when the key is absent, reporting whether this
	// caller performed the write. The lock primitive.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes the given keys.
	Del(ctx context.Context, keys ...string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining lifetime of key (negative when absent or
	// persistent).
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys lists keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// IncrBy adjusts an integer counter, creating it at zero when absent.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Expire applies a TTL to an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Publish sends a message on a named channel.
	Publish(ctx context.Context, channel, message string) error
}
