package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/internal/cache"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

const keyPrefix = "quota:"

// Tracker maintains a per-provider view of remaining API allowance,
// rebuilt from response headers on every upstream call. Each provider
// reports allowance in its own dialect; unknown providers yield a
// snapshot with no numeric fields, which never triggers a bypass.
type Tracker struct {
	store cache.Store
	ttl   time.Duration
	log   *logrus.Entry
}

func NewTracker(store cache.Store, ttl time.Duration, log *logrus.Entry) *Tracker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Tracker{store: store, ttl: ttl, log: log}
}

// Record parses provider-specific allowance headers and persists the
// resulting snapshot. Persistence failures are logged and swallowed;
// quota tracking is advisory and must never fail a fetch.
func (t *Tracker) Record(ctx context.Context, provider string, header http.Header) models.QuotaSnapshot {
	snap := parseHeaders(provider, header)

	raw, err := json.Marshal(snap)
	if err != nil {
		t.log.WithError(err).WithField("provider", provider).Warn("marshal quota snapshot failed")
		return snap
	}
	if err := t.store.Set(ctx, keyPrefix+provider, string(raw), t.ttl); err != nil {
		t.log.WithError(err).WithField("provider", provider).Warn("persist quota snapshot failed")
	}
	return snap
}

// Get returns the last recorded snapshot for provider, or nil when none
// has been recorded within the snapshot TTL.
func (t *Tracker) Get(ctx context.Context, provider string) (*models.QuotaSnapshot, error) {
	raw, ok, err := t.store.Get(ctx, keyPrefix+provider)
	if err != nil {
		return nil, fmt.Errorf("read quota for %s: %w", provider, err)
	}
	if !ok {
		return nil, nil
	}
	var snap models.QuotaSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode quota for %s: %w", provider, err)
	}
	return &snap, nil
}

// ShouldBypass reports whether provider is known to be out of allowance.
// Only a live snapshot with zero remaining triggers a bypass; an absent
// or expired snapshot, an unreadable store, or a provider that reports
// no numbers all mean "try the call".
func (t *Tracker) ShouldBypass(ctx context.Context, provider string) bool {
	snap, err := t.Get(ctx, provider)
	if err != nil {
		t.log.WithError(err).WithField("provider", provider).Debug("quota lookup failed, not bypassing")
		return false
	}
	return snap.Exhausted()
}

func parseHeaders(provider string, header http.Header) models.QuotaSnapshot {
	snap := models.QuotaSnapshot{Provider: provider, At: time.Now().UTC()}

	switch provider {
	case models.ProviderTheOddsAPI:
		snap.Remaining = headerInt(header, "x-requests-remaining")
		snap.Used = headerInt(header, "x-requests-used")
		snap.LimitTier = "account-tier"
		snap.Raw = captureRaw(header, "x-requests-remaining", "x-requests-used", "x-requests-last")
	case models.ProviderAPISports:
		snap.Remaining = headerInt(header, "x-ratelimit-requests-remaining")
		snap.Limit = headerInt(header, "x-ratelimit-requests-limit")
		if snap.Remaining != nil && snap.Limit != nil {
			used := *snap.Limit - *snap.Remaining
			snap.Used = &used
		}
		snap.Window = "day"
		snap.Raw = captureRaw(header,
			"x-ratelimit-requests-remaining", "x-ratelimit-requests-limit",
			"x-ratelimit-remaining", "x-ratelimit-limit")
	}
	return snap
}

// headerInt reads a numeric header, tolerating float-formatted values
// some vendors send.
func headerInt(header http.Header, name string) *int {
	v := strings.TrimSpace(header.Get(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	return &n
}

func captureRaw(header http.Header, names ...string) map[string]string {
	raw := make(map[string]string)
	for _, name := range names {
		if v := header.Get(name); v != "" {
			raw[name] = v
		}
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}
