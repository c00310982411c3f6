package fallback

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

var sportTitles = map[string]string{
	"basketball_nba":       "NBA",
	"americanfootball_nfl": "NFL",
	"baseball_mlb":         "MLB",
	"icehockey_nhl":        "NHL",
}

type Config struct {
	Priority int
	// Placeholder switches the empty terminal response to a single
	// synthetic snapshot, for deployments that want an explicit sentinel
	// instead of an empty payload.
	Placeholder bool
}

// Client is the terminal chain member. It performs no I/O and never
// fails, so a fully exhausted chain still terminates cleanly instead of
// surfacing the last provider's error.
type Client struct {
	priority    int
	placeholder bool
	log         *logrus.Entry
}

var _ contracts.ProviderAdapter = (*Client)(nil)

func New(cfg Config, log *logrus.Entry) *Client {
	if cfg.Priority <= 0 {
		cfg.Priority = 100
	}
	return &Client{priority: cfg.Priority, placeholder: cfg.Placeholder, log: log}
}

func (c *Client) Name() string  { return models.ProviderFallback }
func (c *Client) Priority() int { return c.priority }

func (c *Client) Fetch(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error) {
	if !c.placeholder {
		return []models.MarketSnapshot{}, nil
	}

	c.log.WithField("sport_key", sportKey).Info("serving placeholder snapshot")
	now := time.Now().UTC()
	commence := now.Add(24 * time.Hour)
	return []models.MarketSnapshot{
		{
			EventID:      models.SynthesizeEventID(models.ProviderFallback, sportKey, "TBD", "TBD", commence),
			SportKey:     sportKey,
			SportTitle:   sportTitles[sportKey],
			CommenceTime: commence,
			HomeTeam:     "TBD",
			AwayTeam:     "TBD",
			EventStatus:  models.StatusUpcoming,
			Source:       models.ProviderFallback,
			LastUpdated:  now,
		},
	}, nil
}

func (c *Client) FetchSports(ctx context.Context) ([]models.Sport, error) {
	sports := make([]models.Sport, 0, len(sportTitles))
	for key, title := range sportTitles {
		sports = append(sports, models.Sport{Key: key, Title: title, Active: true})
	}
	sort.Slice(sports, func(i, j int) bool { return sports[i].Key < sports[j].Key })
	return sports, nil
}

func (c *Client) Status(ctx context.Context) models.ProviderStatus {
	return models.ProviderStatus{
		Name:     models.ProviderFallback,
		Status:   models.ProviderActive,
		Priority: c.priority,
	}
}
