package apisports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
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
	requestTimeout = 10 * time.Second
	userAgent      = "oddbot/1.0 (Odds Aggregation Engine)"
)

// sportRoute describes one API-Sports deployment. Each sport lives on
// its own host with its own league numbering.
type sportRoute struct {
	Host   string
	Title  string
	League int
	// CrossYear leagues span two calendar years and use "2025-2026"
	// style season labels.
	CrossYear bool
}

// sportRoutes gates which sports this adapter serves. American football
// is deliberately absent: its API-Sports deployment uses an incompatible
// games schema.
var sportRoutes = map[string]sportRoute{
	"basketball_nba": {Host: "v1.basketball.api-sports.io", Title: "NBA", League: 12, CrossYear: true},
	"baseball_mlb":   {Host: "v1.baseball.api-sports.io", Title: "MLB", League: 1},
	"icehockey_nhl":  {Host: "v1.hockey.api-sports.io", Title: "NHL", League: 57, CrossYear: true},
}

type Config struct {
	APIKey string
	// BaseURL overrides the per-sport hosts, for tests.
	BaseURL  string
	Priority int
}

// Client fetches game schedules from API-Sports. The free tier carries
// no bookmaker odds, so its snapshots are schedule-only: valid events
// with empty bookmaker lists that score below odds-bearing records.
type Client struct {
	apiKey     string
	baseURL    string
	priority   int
	httpClient *http.Client
	quota      *quota.Tracker
	log        *logrus.Entry
}

var _ contracts.ProviderAdapter = (*Client)(nil)

func New(cfg Config, tracker *quota.Tracker, log *logrus.Entry) *Client {
	if cfg.Priority <= 0 {
		cfg.Priority = 2
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		priority:   cfg.Priority,
		httpClient: &http.Client{},
		quota:      tracker,
		log:        log,
	}
}

func (c *Client) Name() string  { return models.ProviderAPISports }
func (c *Client) Priority() int { return c.priority }

func (c *Client) Fetch(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error) {
	route, ok := sportRoutes[sportKey]
	if !ok {
		c.log.WithField("sport_key", sportKey).Warn("sport not mapped for api-sports")
		return []models.MarketSnapshot{}, nil
	}

	opts = opts.Normalized()

	if c.quota.ShouldBypass(ctx, models.ProviderAPISports) {
		return nil, contracts.NewRateLimitError(models.ProviderAPISports, "daily quota exhausted, bypassing call")
	}

	params := url.Values{}
	params.Set("league", fmt.Sprintf("%d", route.League))
	params.Set("season", seasonFor(time.Now(), route.CrossYear))

	body, err := c.doRequest(ctx, fmt.Sprintf("%s/games?%s", c.endpoint(route), params.Encode()))
	if err != nil {
		return nil, err
	}

	var env gamesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, contracts.NewBadResponseError(models.ProviderAPISports, fmt.Sprintf("parse games response: %v", err))
	}
	if err := env.vendorError(); err != nil {
		return nil, err
	}

	return c.transform(env.Response, sportKey, route, opts), nil
}

// FetchSports lists the sports this adapter can route. Static: each
// sport is a separate API-Sports deployment, there is no cross-host
// catalog to query.
func (c *Client) FetchSports(ctx context.Context) ([]models.Sport, error) {
	sports := make([]models.Sport, 0, len(sportRoutes))
	for key, route := range sportRoutes {
		sports = append(sports, models.Sport{Key: key, Title: route.Title, Active: true})
	}
	sort.Slice(sports, func(i, j int) bool { return sports[i].Key < sports[j].Key })
	return sports, nil
}

func (c *Client) Status(ctx context.Context) models.ProviderStatus {
	st := models.ProviderStatus{
		Name:     models.ProviderAPISports,
		Status:   models.ProviderActive,
		Priority: c.priority,
	}
	if c.apiKey == "" {
		st.Status = models.ProviderError
		return st
	}
	snap, err := c.quota.Get(ctx, models.ProviderAPISports)
	if err != nil || snap == nil {
		return st
	}
	st.Remaining = snap.Remaining
	if snap.Exhausted() {
		st.Status = models.ProviderError
	}
	return st
}

func (c *Client) endpoint(route sportRoute) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://" + route.Host
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-apisports-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, contracts.WrapTransport(models.ProviderAPISports, err)
	}
	defer resp.Body.Close()

	c.quota.Record(ctx, models.ProviderAPISports, resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, contracts.Classify(models.ProviderAPISports, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) transform(games []apiGame, sportKey string, route sportRoute, opts models.FetchOptions) []models.MarketSnapshot {
	now := time.Now().UTC()
	horizon := now.Add(time.Duration(opts.HoursAhead) * time.Hour)

	snaps := make([]models.MarketSnapshot, 0, len(games))
	for _, game := range games {
		commence := game.commenceTime()
		if commence.IsZero() {
			c.log.WithField("game_id", game.ID).Warn("unparsable game date, dropping")
			continue
		}
		if commence.After(horizon) {
			continue
		}
		if !opts.IncludeLive && commence.Before(now) {
			continue
		}

		eventID := fmt.Sprintf("%s:%d", models.ProviderAPISports, game.ID)
		if game.ID == 0 {
			eventID = models.SynthesizeEventID(models.ProviderAPISports, sportKey, game.Teams.Home.Name, game.Teams.Away.Name, commence)
		}

		snap := models.MarketSnapshot{
			EventID:      eventID,
			SportKey:     sportKey,
			SportTitle:   route.Title,
			CommenceTime: commence,
			HomeTeam:     game.Teams.Home.Name,
			AwayTeam:     game.Teams.Away.Name,
			EventStatus:  models.StatusFor(commence, now),
			Source:       models.ProviderAPISports,
			LastUpdated:  now,
		}
		if err := quality.Validate(snap); err != nil {
			c.log.WithError(err).WithField("game_id", game.ID).Debug("dropping invalid game")
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// seasonFor builds the season label API-Sports expects. Cross-year
// leagues flip to the new label in August, ahead of preseason.
func seasonFor(now time.Time, crossYear bool) string {
	year := now.Year()
	if !crossYear {
		return fmt.Sprintf("%d", year)
	}
	if now.Month() >= time.August {
		return fmt.Sprintf("%d-%d", year, year+1)
	}
	return fmt.Sprintf("%d-%d", year-1, year)
}

// API-Sports wraps every payload in an envelope and reports failures as
// a 200 with a populated errors object.

type gamesEnvelope struct {
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Response []apiGame       `json:"response"`
}

// vendorError surfaces in-band failures. The errors field is an empty
// array on success and an object keyed by failure type otherwise.
func (e gamesEnvelope) vendorError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(e.Errors, &fields); err != nil || len(fields) == 0 {
		return nil
	}
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(parts)
	message := strings.Join(parts, "; ")
	if _, ok := fields["token"]; ok {
		return &contracts.FetchError{Provider: models.ProviderAPISports, Kind: contracts.ErrKindAuth, Message: message}
	}
	return contracts.NewBadResponseError(models.ProviderAPISports, message)
}

type apiGame struct {
	ID        int      `json:"id"`
	Date      string   `json:"date"`
	Timestamp int64    `json:"timestamp"`
	Status    struct {
		Short string `json:"short"`
	} `json:"status"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
}

func (g apiGame) commenceTime() time.Time {
	if t, err := time.Parse(time.RFC3339, g.Date); err == nil {
		return t.UTC()
	}
	if g.Timestamp > 0 {
		return time.Unix(g.Timestamp, 0).UTC()
	}
	return time.Time{}
}
