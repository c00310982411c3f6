package chain

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/internal/quality"
	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// Chain walks providers in ascending priority order and serves the first
// usable answer. Every provider failure mode, from auth rejection to
// timeout, means "try the next one"; only parent context cancellation
// stops the walk early. A fully exhausted chain is an empty result, not
// an error.
type Chain struct {
	adapters []contracts.ProviderAdapter
	timeout  time.Duration
	log      *logrus.Entry
}

var _ contracts.OddsSource = (*Chain)(nil)

// New orders adapters by priority, breaking ties by name so the walk
// order is deterministic regardless of registration order.
func New(adapters []contracts.ProviderAdapter, timeout time.Duration, log *logrus.Entry) *Chain {
	sorted := make([]contracts.ProviderAdapter, len(adapters))
	copy(sorted, adapters)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority() != sorted[j].Priority() {
			return sorted[i].Priority() < sorted[j].Priority()
		}
		return sorted[i].Name() < sorted[j].Name()
	})
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Chain{adapters: sorted, timeout: timeout, log: log}
}

// FetchOdds returns the first provider's normalized snapshots: validated,
// deduplicated by event, sorted by commence time and quality-scored. A
// provider that errors or returns nothing usable is skipped.
func (c *Chain) FetchOdds(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error) {
	for _, adapter := range c.adapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		adapterCtx, cancel := context.WithTimeout(ctx, c.timeout)
		records, err := adapter.Fetch(adapterCtx, sportKey, opts)
		cancel()
		if err != nil {
			c.logFailure(adapter.Name(), sportKey, err)
			continue
		}

		snaps := quality.Normalize(records)
		if len(snaps) == 0 {
			c.log.WithFields(logrus.Fields{
				"provider":  adapter.Name(),
				"sport_key": sportKey,
			}).Debug("provider returned no usable records, trying next")
			continue
		}

		c.log.WithFields(logrus.Fields{
			"provider":  adapter.Name(),
			"sport_key": sportKey,
			"events":    len(snaps),
		}).Info("provider served odds")
		return snaps, nil
	}

	c.log.WithField("sport_key", sportKey).Warn("all providers exhausted, serving empty result")
	return []models.MarketSnapshot{}, nil
}

// FetchSports returns the first provider's non-empty sports catalogue.
func (c *Chain) FetchSports(ctx context.Context) ([]models.Sport, error) {
	for _, adapter := range c.adapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		adapterCtx, cancel := context.WithTimeout(ctx, c.timeout)
		sports, err := adapter.FetchSports(adapterCtx)
		cancel()
		if err != nil {
			c.logFailure(adapter.Name(), "", err)
			continue
		}
		if len(sports) == 0 {
			continue
		}

		c.log.WithFields(logrus.Fields{
			"provider": adapter.Name(),
			"sports":   len(sports),
		}).Debug("provider served sports catalogue")
		return sports, nil
	}

	c.log.Warn("all providers exhausted listing sports, serving empty result")
	return []models.Sport{}, nil
}

// ProviderStatus reports every chain member's health in walk order.
func (c *Chain) ProviderStatus(ctx context.Context) []models.ProviderStatus {
	statuses := make([]models.ProviderStatus, 0, len(c.adapters))
	for _, adapter := range c.adapters {
		statuses = append(statuses, adapter.Status(ctx))
	}
	return statuses
}

func (c *Chain) logFailure(provider, sportKey string, err error) {
	entry := c.log.WithError(err).WithField("provider", provider)
	if sportKey != "" {
		entry = entry.WithField("sport_key", sportKey)
	}

	switch contracts.ErrKind(err) {
	case contracts.ErrKindAuth:
		entry.Error("provider rejected credentials, check configuration")
	case contracts.ErrKindRateLimit:
		entry.Info("provider out of quota, trying next")
	case contracts.ErrKindTimeout:
		entry.Warn("provider timed out, trying next")
	case contracts.ErrKindUnavailable:
		entry.Warn("provider unavailable, trying next")
	default:
		entry.Warn("provider returned unusable response, trying next")
	}
}
