package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/internal/cache"
	"github.com/UglyGameFace/oddbot-sub001/internal/config"
	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// Odds is the read facade: every consumer-facing read goes through the
// cache coordinator, with the provider chain as the loader of last
// resort. Callers never learn whether data came from cache or upstream.
type Odds struct {
	cache  *cache.Coordinator
	source contracts.OddsSource
	cfg    config.Cache
	log    *logrus.Entry
}

func NewOdds(coordinator *cache.Coordinator, source contracts.OddsSource, cfg config.Cache, log *logrus.Entry) *Odds {
	return &Odds{cache: coordinator, source: source, cfg: cfg, log: log}
}

// GetSportOdds returns the current snapshots for one sport. Concurrent
// callers on a cold key collapse into a single chain fetch.
func (s *Odds) GetSportOdds(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error) {
	opts = opts.Normalized()

	raw, err := s.cache.GetOrLoad(ctx, opts.CacheKey(sportKey), s.cfg.OddsTTL(), func(ctx context.Context) (interface{}, error) {
		snaps, err := s.source.FetchOdds(ctx, sportKey, opts)
		if err != nil {
			return nil, err
		}
		return snaps, nil
	}, cache.Options{LockTTL: s.cfg.LockTTL(), Retry: s.cfg.Retry()})
	if err != nil {
		return nil, err
	}

	var snaps []models.MarketSnapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		return nil, fmt.Errorf("decode cached odds for %s: %w", sportKey, err)
	}
	if snaps == nil {
		snaps = []models.MarketSnapshot{}
	}
	return snaps, nil
}

// GetAvailableSports returns the sports catalogue under its own
// long-lived cache key.
func (s *Odds) GetAvailableSports(ctx context.Context) ([]models.Sport, error) {
	raw, err := s.cache.GetOrLoad(ctx, models.SportsCacheKey, s.cfg.SportsTTL(), func(ctx context.Context) (interface{}, error) {
		sports, err := s.source.FetchSports(ctx)
		if err != nil {
			return nil, err
		}
		return sports, nil
	}, cache.Options{LockTTL: s.cfg.LockTTL(), Retry: s.cfg.Retry()})
	if err != nil {
		return nil, err
	}

	var sports []models.Sport
	if err := json.Unmarshal(raw, &sports); err != nil {
		return nil, fmt.Errorf("decode cached sports: %w", err)
	}
	if sports == nil {
		sports = []models.Sport{}
	}
	return sports, nil
}

// GetProviderStatus reports chain member health. Reads quota snapshots
// only; never performs network calls and never caches.
func (s *Odds) GetProviderStatus(ctx context.Context) []models.ProviderStatus {
	return s.source.ProviderStatus(ctx)
}
