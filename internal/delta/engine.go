package delta

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/internal/cache"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

const keyPrefix = "delta:"

// Engine suppresses redundant sink writes by fingerprinting each
// snapshot's priced content and comparing it against the last persisted
// version. Vendor timestamps and quality annotations stay out of the
// fingerprint, so a refresh without market movement is a no-op for the
// database.
type Engine struct {
	store cache.Store
	ttl   time.Duration
	log   *logrus.Entry
}

func NewEngine(store cache.Store, ttl time.Duration, log *logrus.Entry) *Engine {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Engine{store: store, ttl: ttl, log: log}
}

// Filter returns the snapshots whose content moved since the last Mark.
// Store failures fail open: an unreachable cache store must never block
// persistence.
func (e *Engine) Filter(ctx context.Context, snaps []models.MarketSnapshot) []models.MarketSnapshot {
	changed := make([]models.MarketSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		fp, err := fingerprint(snap)
		if err != nil {
			changed = append(changed, snap)
			continue
		}

		prev, ok, err := e.store.Get(ctx, keyPrefix+snap.EventID)
		if err != nil {
			e.log.WithError(err).Debug("delta lookup failed, passing snapshot through")
			changed = append(changed, snap)
			continue
		}
		if !ok || prev != fp {
			changed = append(changed, snap)
		}
	}
	return changed
}

// Mark records fingerprints for snapshots that reached the sink. Call it
// only after a successful upsert, so a failed write is retried next
// cycle.
func (e *Engine) Mark(ctx context.Context, snaps []models.MarketSnapshot) {
	for _, snap := range snaps {
		fp, err := fingerprint(snap)
		if err != nil {
			continue
		}
		if err := e.store.Set(ctx, keyPrefix+snap.EventID, fp, e.ttl); err != nil {
			e.log.WithError(err).WithField("event_id", snap.EventID).Debug("delta mark failed")
			return
		}
	}
}

// fingerprint hashes the snapshot with volatile fields zeroed. The value
// parameter plus copied slices keep the caller's snapshot untouched.
func fingerprint(snap models.MarketSnapshot) (string, error) {
	snap.LastUpdated = time.Time{}
	snap.Quality = nil

	books := make([]models.Bookmaker, len(snap.Bookmakers))
	copy(books, snap.Bookmakers)
	for i := range books {
		books[i].LastUpdate = time.Time{}
		markets := make([]models.BookMarket, len(books[i].Markets))
		copy(markets, books[i].Markets)
		for j := range markets {
			markets[j].LastUpdate = time.Time{}
		}
		books[i].Markets = markets
	}
	snap.Bookmakers = books

	b, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	h.Write(b)
	return strconv.FormatUint(h.Sum64(), 16), nil
}
