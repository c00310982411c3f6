package testutil

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"
)

// ErrStoreDown is what every MemStore operation returns while FailAll is
// set, simulating an unreachable cache store.
var ErrStoreDown = errors.New("store unavailable")

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemStore is an in-memory, TTL-aware substitute for the Redis store,
// used by unit tests for the cache coordinator, quota tracker and
// scheduler. Safe for concurrent use.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]memEntry

	// FailAll makes every operation fail until cleared.
	FailAll bool
	// Published records Publish calls as "channel|message".
	Published []string
}

func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]memEntry)}
}

// live returns the entry if present and unexpired, pruning lazily.
func (s *MemStore) live(key string) (memEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (s *MemStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return "", false, ErrStoreDown
	}
	e, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrStoreDown
	}
	s.entries[key] = memEntry{value: value, expiresAt: expiry(ttl)}
	return nil
}

func (s *MemStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return false, ErrStoreDown
	}
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = memEntry{value: value, expiresAt: expiry(ttl)}
	return true, nil
}

func (s *MemStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrStoreDown
	}
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return false, ErrStoreDown
	}
	_, ok := s.live(key)
	return ok, nil
}

func (s *MemStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return 0, ErrStoreDown
	}
	e, ok := s.live(key)
	if !ok || e.expiresAt.IsZero() {
		return -1, nil
	}
	return time.Until(e.expiresAt), nil
}

func (s *MemStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return nil, ErrStoreDown
	}
	var keys []string
	for key := range s.entries {
		if _, ok := s.live(key); !ok {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return 0, ErrStoreDown
	}
	var current int64
	if e, ok := s.live(key); ok {
		n, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		current = n
	}
	current += delta
	e := s.entries[key]
	e.value = strconv.FormatInt(current, 10)
	s.entries[key] = e
	return current, nil
}

func (s *MemStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrStoreDown
	}
	e, ok := s.live(key)
	if !ok {
		return nil
	}
	e.expiresAt = expiry(ttl)
	s.entries[key] = e
	return nil
}

func (s *MemStore) Publish(ctx context.Context, channel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrStoreDown
	}
	s.Published = append(s.Published, channel+"|"+message)
	return nil
}

// Snapshot returns a copy of the live keyspace, for assertions.
func (s *MemStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.entries))
	for key := range s.entries {
		if e, ok := s.live(key); ok {
			out[key] = e.value
		}
	}
	return out
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
