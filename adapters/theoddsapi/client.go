package theoddsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/UglyGameFace/oddbot-sub001/internal/quality"
	"github.com/UglyGameFace/oddbot-sub001/internal/quota"
	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

const (
	defaultBaseURL = "https://api.the-odds-api.com"
	apiVersion     = "v4"
	userAgent      = "oddbot/1.0 (Odds Aggregation Engine)"

	scheduleTimeout = 10 * time.Second
	propsTimeout    = 12 * time.Second
	sportsTimeout   = 8 * time.Second

	maxRetries = 3
	retryDelay = 2 * time.Second
)

// sportKeys gates which sports this adapter serves. The engine's sport
// keys follow The Odds API's naming, so the mapping is the identity; the
// gate still matters so unknown sports short-circuit to an empty result
// instead of burning a paid request.
var sportKeys = map[string]string{
	"basketball_nba":         "basketball_nba",
	"basketball_ncaab":       "basketball_ncaab",
	"americanfootball_nfl":   "americanfootball_nfl",
	"americanfootball_ncaaf": "americanfootball_ncaaf",
	"baseball_mlb":           "baseball_mlb",
	"icehockey_nhl":          "icehockey_nhl",
	"soccer_epl":             "soccer_epl",
	"mma_mixed_martial_arts": "mma_mixed_martial_arts",
}

// Config carries the adapter's wiring from the application config.
type Config struct {
	APIKey            string
	BaseURL           string
	Priority          int
	RequestsPerMinute int
}

// Client fetches odds from The Odds API, the primary paid provider. All
// calls are rate limited client-side and every response updates the
// shared quota tracker from the vendor's allowance headers.
type Client struct {
	apiKey     string
	baseURL    string
	priority   int
	httpClient *http.Client
	limiter    *rate.Limiter
	quota      *quota.Tracker
	log        *logrus.Entry
}

var _ contracts.ProviderAdapter = (*Client)(nil)

func New(cfg Config, tracker *quota.Tracker, log *logrus.Entry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Priority <= 0 {
		cfg.Priority = 1
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		priority: cfg.Priority,
		// Per-operation deadlines come from the request context, not a
		// client-wide timeout.
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		quota:      tracker,
		log:        log,
	}
}

func (c *Client) Name() string  { return models.ProviderTheOddsAPI }
func (c *Client) Priority() int { return c.priority }

// Fetch retrieves odds for one sport. Featured markets come from the
// bulk odds endpoint in a single call; props markets cost one extra call
// per event and are merged into the same snapshots.
func (c *Client) Fetch(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error) {
	upstream, ok := sportKeys[sportKey]
	if !ok {
		c.log.WithField("sport_key", sportKey).Warn("sport not mapped for the odds api")
		return []models.MarketSnapshot{}, nil
	}

	opts = opts.Normalized()

	if c.quota.ShouldBypass(ctx, models.ProviderTheOddsAPI) {
		return nil, contracts.NewRateLimitError(models.ProviderTheOddsAPI, "quota exhausted, bypassing call")
	}

	featured, props := splitMarkets(opts.Markets)

	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("regions", strings.Join(opts.Regions, ","))
	params.Set("markets", strings.Join(featured, ","))
	params.Set("oddsFormat", opts.OddsFormat)
	params.Set("dateFormat", "iso")

	fullURL := fmt.Sprintf("%s/%s/sports/%s/odds?%s", c.baseURL, apiVersion, upstream, params.Encode())

	body, err := c.doRequestWithRetry(ctx, fullURL, scheduleTimeout)
	if err != nil {
		return nil, err
	}

	var events []oddsResponse
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, contracts.NewBadResponseError(models.ProviderTheOddsAPI, fmt.Sprintf("parse odds response: %v", err))
	}

	snaps := c.transform(events, sportKey, opts)
	if len(props) > 0 && len(snaps) > 0 {
		c.mergeProps(ctx, upstream, props, opts, snaps)
	}
	return snaps, nil
}

// mergeProps fetches event-level props odds and folds their bookmakers
// into the already transformed snapshots. Each event costs one request,
// so the quota gate is rechecked every iteration and any per-event
// failure is logged and skipped rather than failing the whole fetch.
func (c *Client) mergeProps(ctx context.Context, upstream string, props []string, opts models.FetchOptions, snaps []models.MarketSnapshot) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("regions", strings.Join(opts.Regions, ","))
	params.Set("markets", strings.Join(props, ","))
	params.Set("oddsFormat", opts.OddsFormat)
	params.Set("dateFormat", "iso")

	for i := range snaps {
		// Synthesized IDs are local; the vendor cannot resolve them.
		if strings.HasPrefix(snaps[i].EventID, models.ProviderTheOddsAPI+":") {
			continue
		}
		if c.quota.ShouldBypass(ctx, models.ProviderTheOddsAPI) {
			c.log.Warn("quota exhausted mid props fetch, keeping featured markets only")
			return
		}

		fullURL := fmt.Sprintf("%s/%s/sports/%s/events/%s/odds?%s",
			c.baseURL, apiVersion, upstream, snaps[i].EventID, params.Encode())

		body, err := c.doRequestWithRetry(ctx, fullURL, propsTimeout)
		if err != nil {
			c.log.WithError(err).WithField("event_id", snaps[i].EventID).Warn("props fetch failed for event")
			continue
		}

		var event oddsResponse
		if err := json.Unmarshal(body, &event); err != nil {
			c.log.WithError(err).WithField("event_id", snaps[i].EventID).Warn("parse props response failed")
			continue
		}

		snaps[i].Bookmakers = mergeBookmakers(snaps[i].Bookmakers, convertBookmakers(event.Bookmakers, time.Now().UTC()))
	}
}

// FetchSports lists the sports the vendor currently offers.
func (c *Client) FetchSports(ctx context.Context) ([]models.Sport, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("all", "false")

	fullURL := fmt.Sprintf("%s/%s/sports?%s", c.baseURL, apiVersion, params.Encode())

	body, err := c.doRequestWithRetry(ctx, fullURL, sportsTimeout)
	if err != nil {
		return nil, err
	}

	var apiSports []sportResponse
	if err := json.Unmarshal(body, &apiSports); err != nil {
		return nil, contracts.NewBadResponseError(models.ProviderTheOddsAPI, fmt.Sprintf("parse sports response: %v", err))
	}

	sports := make([]models.Sport, 0, len(apiSports))
	for _, s := range apiSports {
		sports = append(sports, models.Sport{Key: s.Key, Title: s.Title, Active: s.Active})
	}
	return sports, nil
}

// Status reports configuration and allowance health without spending a
// request.
func (c *Client) Status(ctx context.Context) models.ProviderStatus {
	st := models.ProviderStatus{
		Name:     models.ProviderTheOddsAPI,
		Status:   models.ProviderActive,
		Priority: c.priority,
	}
	if c.apiKey == "" {
		st.Status = models.ProviderError
		return st
	}
	snap, err := c.quota.Get(ctx, models.ProviderTheOddsAPI)
	if err != nil || snap == nil {
		return st
	}
	st.Remaining = snap.Remaining
	if snap.Exhausted() {
		st.Status = models.ProviderError
	}
	return st
}

// doRequestWithRetry retries transient failures with exponential
// backoff. Client errors other than 429 are final; retrying them only
// burns quota.
func (c *Client) doRequestWithRetry(ctx context.Context, fullURL string, timeout time.Duration) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := c.doRequest(ctx, fullURL, timeout)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var fetchErr *contracts.FetchError
		if errors.As(err, &fetchErr) {
			if fetchErr.StatusCode >= 400 && fetchErr.StatusCode < 500 && fetchErr.StatusCode != http.StatusTooManyRequests {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, fullURL string, timeout time.Duration) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, contracts.WrapTransport(models.ProviderTheOddsAPI, err)
	}
	defer resp.Body.Close()

	// Every response carries allowance headers, including errors.
	c.quota.Record(ctx, models.ProviderTheOddsAPI, resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, contracts.Classify(models.ProviderTheOddsAPI, resp.StatusCode, string(body))
	}
	return body, nil
}

// transform converts vendor events into snapshots, applying the time
// window and dropping records that fail validation. A bad record never
// fails the batch.
func (c *Client) transform(events []oddsResponse, sportKey string, opts models.FetchOptions) []models.MarketSnapshot {
	now := time.Now().UTC()
	horizon := now.Add(time.Duration(opts.HoursAhead) * time.Hour)

	snaps := make([]models.MarketSnapshot, 0, len(events))
	for _, event := range events {
		commence, err := time.Parse(time.RFC3339, event.CommenceTime)
		if err != nil {
			c.log.WithField("event_id", event.ID).Warn("unparsable commence time, dropping event")
			continue
		}
		if commence.After(horizon) {
			continue
		}
		if !opts.IncludeLive && commence.Before(now) {
			continue
		}

		eventID := event.ID
		if eventID == "" {
			eventID = models.SynthesizeEventID(models.ProviderTheOddsAPI, sportKey, event.HomeTeam, event.AwayTeam, commence)
		}

		snap := models.MarketSnapshot{
			EventID:      eventID,
			SportKey:     sportKey,
			SportTitle:   event.SportTitle,
			CommenceTime: commence,
			HomeTeam:     event.HomeTeam,
			AwayTeam:     event.AwayTeam,
			EventStatus:  models.StatusFor(commence, now),
			Bookmakers:   convertBookmakers(event.Bookmakers, now),
			Source:       models.ProviderTheOddsAPI,
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

func convertBookmakers(raw []bookmaker, receivedAt time.Time) []models.Bookmaker {
	out := make([]models.Bookmaker, 0, len(raw))
	for _, b := range raw {
		bm := models.Bookmaker{
			Key:        b.Key,
			Title:      b.Title,
			LastUpdate: parseTime(b.LastUpdate, receivedAt),
		}
		for _, m := range b.Markets {
			mk := models.BookMarket{
				Key:        m.Key,
				LastUpdate: parseTime(m.LastUpdate, receivedAt),
			}
			for _, o := range m.Outcomes {
				oc := models.Outcome{Name: o.Name, Price: o.Price}
				if o.Point != nil {
					point := *o.Point
					oc.Point = &point
				}
				mk.Outcomes = append(mk.Outcomes, oc)
			}
			bm.Markets = append(bm.Markets, mk)
		}
		out = append(out, bm)
	}
	return out
}

// mergeBookmakers folds src into dst, appending markets onto bookmakers
// that already exist and adding the rest.
func mergeBookmakers(dst, src []models.Bookmaker) []models.Bookmaker {
	byKey := make(map[string]int, len(dst))
	for i, b := range dst {
		byKey[b.Key] = i
	}
	for _, b := range src {
		if i, ok := byKey[b.Key]; ok {
			dst[i].Markets = append(dst[i].Markets, b.Markets...)
			continue
		}
		dst = append(dst, b)
		byKey[b.Key] = len(dst) - 1
	}
	return dst
}

func parseTime(value string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fallback
	}
	return t
}

// API response structures matching The Odds API JSON format.

type oddsResponse struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime string      `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []bookmaker `json:"bookmakers"`
}

type bookmaker struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	LastUpdate string   `json:"last_update"`
	Markets    []market `json:"markets"`
}

type market struct {
	Key        string    `json:"key"`
	LastUpdate string    `json:"last_update"`
	Outcomes   []outcome `json:"outcomes"`
}

type outcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

type sportResponse struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}
