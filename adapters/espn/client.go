package espn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/internal/quality"
	"github.com/UglyGameFace/oddbot-sub001/internal/quota"
	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

const (
	defaultBaseURL = "https://site.api.espn.com/apis/site/v2/sports"
	requestTimeout = 8 * time.Second

	// ESPN blocks default Go user agents.
	userAgent = "Mozilla/5.0 (compatible; oddbot/1.0)"
)

// sportPaths maps engine sport keys onto ESPN's scoreboard paths.
var sportPaths = map[string]string{
	"basketball_nba":       "basketball/nba",
	"americanfootball_nfl": "football/nfl",
	"baseball_mlb":         "baseball/mlb",
	"icehockey_nhl":        "hockey/nhl",
}

var sportTitles = map[string]string{
	"basketball_nba":       "NBA",
	"americanfootball_nfl": "NFL",
	"baseball_mlb":         "MLB",
	"icehockey_nhl":        "NHL",
}

type Config struct {
	BaseURL  string
	Priority int
}

// Client fetches game schedules from ESPN's public scoreboard API. It
// needs no key, publishes no allowance headers and carries no odds, so
// it sits at the bottom of the real-provider chain producing
// schedule-only snapshots.
type Client struct {
	baseURL    string
	priority   int
	httpClient *http.Client
	quota      *quota.Tracker
	log        *logrus.Entry
}

var _ contracts.ProviderAdapter = (*Client)(nil)

func New(cfg Config, tracker *quota.Tracker, log *logrus.Entry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Priority <= 0 {
		cfg.Priority = 3
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		priority:   cfg.Priority,
		httpClient: &http.Client{},
		quota:      tracker,
		log:        log,
	}
}

func (c *Client) Name() string  { return models.ProviderESPN }
func (c *Client) Priority() int { return c.priority }

func (c *Client) Fetch(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error) {
	path, ok := sportPaths[sportKey]
	if !ok {
		c.log.WithField("sport_key", sportKey).Warn("sport not mapped for espn")
		return []models.MarketSnapshot{}, nil
	}

	opts = opts.Normalized()

	fullURL := fmt.Sprintf("%s/%s/scoreboard?dates=%s", c.baseURL, path, time.Now().UTC().Format("20060102"))

	body, err := c.doRequest(ctx, fullURL)
	if err != nil {
		return nil, err
	}

	var board scoreboard
	if err := json.Unmarshal(body, &board); err != nil {
		return nil, contracts.NewBadResponseError(models.ProviderESPN, fmt.Sprintf("parse scoreboard: %v", err))
	}

	return c.transform(board.Events, sportKey, opts), nil
}

// FetchSports lists the scoreboards this adapter can read. Static: ESPN
// has no catalog endpoint worth a network call.
func (c *Client) FetchSports(ctx context.Context) ([]models.Sport, error) {
	sports := make([]models.Sport, 0, len(sportPaths))
	for key := range sportPaths {
		sports = append(sports, models.Sport{Key: key, Title: sportTitles[key], Active: true})
	}
	sort.Slice(sports, func(i, j int) bool { return sports[i].Key < sports[j].Key })
	return sports, nil
}

// Status is always active: there is no key to misconfigure and no quota
// to exhaust.
func (c *Client) Status(ctx context.Context) models.ProviderStatus {
	return models.ProviderStatus{
		Name:     models.ProviderESPN,
		Status:   models.ProviderActive,
		Priority: c.priority,
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, contracts.WrapTransport(models.ProviderESPN, err)
	}
	defer resp.Body.Close()

	// ESPN sends no allowance headers; recording still refreshes the
	// observed-at timestamp for the status endpoint.
	c.quota.Record(ctx, models.ProviderESPN, resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, contracts.Classify(models.ProviderESPN, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) transform(events []espnEvent, sportKey string, opts models.FetchOptions) []models.MarketSnapshot {
	now := time.Now().UTC()
	horizon := now.Add(time.Duration(opts.HoursAhead) * time.Hour)

	snaps := make([]models.MarketSnapshot, 0, len(events))
	for _, event := range events {
		commence := parseEventDate(event.Date)
		if commence.IsZero() {
			c.log.WithField("event_id", event.ID).Warn("unparsable event date, dropping")
			continue
		}
		if commence.After(horizon) {
			continue
		}
		if !opts.IncludeLive && commence.Before(now) {
			continue
		}

		home, away := event.teams()
		eventID := fmt.Sprintf("%s:%s", models.ProviderESPN, event.ID)
		if event.ID == "" {
			eventID = models.SynthesizeEventID(models.ProviderESPN, sportKey, home, away, commence)
		}

		snap := models.MarketSnapshot{
			EventID:      eventID,
			SportKey:     sportKey,
			SportTitle:   sportTitles[sportKey],
			CommenceTime: commence,
			HomeTeam:     home,
			AwayTeam:     away,
			EventStatus:  models.StatusFor(commence, now),
			Source:       models.ProviderESPN,
			LastUpdated:  now,
		}
		if err := quality.Validate(snap); err != nil {
			c.log.WithError(err).WithField("event_id", eventID).Debug("dropping invalid event")
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// parseEventDate handles ESPN's minute-precision zulu timestamps with a
// full RFC3339 fallback.
func parseEventDate(value string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04Z", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ESPN scoreboard response, reduced to the fields the engine reads.

type scoreboard struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	ID           string        `json:"id"`
	Date         string        `json:"date"`
	Name         string        `json:"name"`
	Competitions []competition `json:"competitions"`
}

type competition struct {
	Competitors []competitor `json:"competitors"`
}

type competitor struct {
	HomeAway string `json:"homeAway"`
	Team     struct {
		DisplayName string `json:"displayName"`
	} `json:"team"`
}

func (e espnEvent) teams() (home, away string) {
	if len(e.Competitions) == 0 {
		return "", ""
	}
	for _, c := range e.Competitions[0].Competitors {
		switch c.HomeAway {
		case "home":
			home = c.Team.DisplayName
		case "away":
			away = c.Team.DisplayName
		}
	}
	return home, away
}
