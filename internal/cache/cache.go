package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// LockPrefix namespaces the ephemeral lock entries that guard refreshes.
const LockPrefix = "lock:"

// Loader produces a fresh value for a cache key on a miss. The returned
// value is JSON-marshaled before it is cached.
type Loader func(ctx context.Context) (interface{}, error)

// Options tunes one GetOrLoad call. Zero values fall back to the
// coordinator defaults.
type Options struct {
	// LockTTL bounds one loader's exclusive window; a crashed holder can
	// stall other callers for at most this long.
	LockTTL time.Duration
	// Retry is the poll cadence while another caller refreshes the key.
	Retry time.Duration
}

// Coordinator implements cache-aside reads with per-key single-flight
// refresh on top of a Store. Reads are lock-free; only the refresh path
// takes the per-key lock.
type Coordinator struct {
	store    Store
	defaults Options
	log      *logrus.Entry
}

func New(store Store, defaults Options, log *logrus.Entry) *Coordinator {
	if defaults.LockTTL <= 0 {
		defaults.LockTTL = 10 * time.Second
	}
	if defaults.Retry <= 0 {
		defaults.Retry = 150 * time.Millisecond
	}
	return &Coordinator{store: store, defaults: defaults, log: log}
}

// GetOrLoad returns the JSON value cached under key, refreshing it
// through loader when absent or unparsable. At most one caller runs the
// loader per key while the lock entry lives; the rest poll for its result
// and fall through to a duplicate load once the lock window has passed,
// so a crashed holder cannot starve readers. A store outage degrades to
// calling the loader directly with no caching at all.
func (c *Coordinator) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader, opts Options) ([]byte, error) {
	if raw, ok := c.cachedJSON(ctx, key); ok {
		return raw, nil
	}

	lockTTL := c.defaults.LockTTL
	if opts.LockTTL > 0 {
		lockTTL = opts.LockTTL
	}
	retry := c.defaults.Retry
	if opts.Retry > 0 {
		retry = opts.Retry
	}

	lockKey := LockPrefix + key
	acquired, err := c.store.SetNX(ctx, lockKey, "1", lockTTL)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache store unavailable, loading directly")
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(value)
	}

	if acquired {
		defer func() {
			// Release with a fresh context so a canceled request cannot
			// leave the lock pinned until its TTL.
			if err := c.store.Del(context.Background(), lockKey); err != nil {
				c.log.WithError(err).WithField("key", key).Warn("release cache lock failed")
			}
		}()
		return c.loadAndStore(ctx, key, ttl, loader)
	}

	// Another caller holds the lock: poll for its result until the lock
	// window has certainly passed.
	deadline := time.Now().Add(lockTTL)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
		if raw, ok := c.cachedJSON(ctx, key); ok {
			return raw, nil
		}
	}

	// The holder never delivered; accept a duplicate fetch over starving.
	c.log.WithField("key", key).Warn("lock wait expired, loading directly")
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, string(raw), ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write-back failed")
	}
	return raw, nil
}

// loadAndStore runs the loader as the lock holder. A loader failure falls
// back to whatever previous value survives under the key; stale beats
// empty.
func (c *Coordinator) loadAndStore(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error) {
	value, err := loader(ctx)
	if err != nil {
		if stale, ok := c.cachedJSON(ctx, key); ok {
			c.log.WithError(err).WithField("key", key).Warn("loader failed, serving stale value")
			return stale, nil
		}
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, string(raw), ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write-back failed")
	}
	return raw, nil
}

// cachedJSON is the lock-free fast path: present and parseable, or miss.
func (c *Coordinator) cachedJSON(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	if !json.Valid([]byte(val)) {
		return nil, false
	}
	return []byte(val), true
}

// SetJSON writes value under key without coordination, for non-contended
// keys.
func (c *Coordinator) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.store.Set(ctx, key, string(raw), ttl)
}

// GetJSON reads key into out, reporting whether it was present.
func (c *Coordinator) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	val, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// FlushPattern deletes every key matching the glob, returning how many
// went.
func (c *Coordinator) FlushPattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("delete %d keys: %w", len(keys), err)
	}
	return len(keys), nil
}

// Increment bumps a counter, applying ttl on first write when given.
func (c *Coordinator) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.store.IncrBy(ctx, key, 1)
	if err != nil {
		return 0, err
	}
	if ttl > 0 && n == 1 {
		if err := c.store.Expire(ctx, key, ttl); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("set counter ttl failed")
		}
	}
	return n, nil
}

// Decrement lowers a counter.
func (c *Coordinator) Decrement(ctx context.Context, key string) (int64, error) {
	return c.store.IncrBy(ctx, key, -1)
}

// HealthCheck round-trips a probe key through the store.
func (c *Coordinator) HealthCheck(ctx context.Context) error {
	key := fmt.Sprintf("health:probe:%d", time.Now().UnixNano())
	if err := c.store.Set(ctx, key, "ok", 5*time.Second); err != nil {
		return fmt.Errorf("health write: %w", err)
	}
	val, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("health read: %w", err)
	}
	if !ok || val != "ok" {
		return fmt.Errorf("health probe mismatch: %q", val)
	}
	if err := c.store.Del(ctx, key); err != nil {
		return fmt.Errorf("health delete: %w", err)
	}
	return nil
}
