package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider names used in quota keys, snapshot sources and status output.
const (
	ProviderTheOddsAPI = "theoddsapi"
	ProviderAPISports  = "apisports"
	ProviderESPN       = "espn"
	ProviderFallback   = "fallback"
)

// Event status values derived from commence time.
const (
	StatusUpcoming = "upcoming"
	StatusLive     = "live"
)

// Provider health values reported by Status.
const (
	ProviderActive = "active"
	ProviderError  = "error"
)

// SportsCacheKey holds the cached sports catalogue.
const SportsCacheKey = "games:available_sports"

// MarketSnapshot is one event's odds as fetched from a single provider,
// normalized into the canonical shape shared by the cache, the store and
// the HTTP surface. Snapshots missing an event ID, sport key, commence
// time or either team name are invalid and are discarded before they
// reach either sink.
type MarketSnapshot struct {
	EventID      string      `json:"event_id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title,omitempty"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	EventStatus  string      `json:"event_status,omitempty"`
	Bookmakers   []Bookmaker `json:"bookmakers,omitempty"`
	Source       string      `json:"source"`
	Quality      *Quality    `json:"quality,omitempty"`
	LastUpdated  time.Time   `json:"last_updated"`
}

// Bookmaker groups one book's markets for an event.
type Bookmaker struct {
	Key        string       `json:"key"`
	Title      string       `json:"title"`
	LastUpdate time.Time    `json:"last_update"`
	Markets    []BookMarket `json:"markets"`
}

// BookMarket is one market (h2h, spreads, totals, props) at one book.
type BookMarket struct {
	Key        string    `json:"key"`
	LastUpdate time.Time `json:"last_update,omitempty"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Outcome is a single priced selection. Price carries whatever format the
// fetch requested (decimal or American); Point is set for spreads/totals.
type Outcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// Quality is the data-quality score attached to each snapshot, exposed to
// consumers for filtering and ranking.
type Quality struct {
	Score   int      `json:"score"`
	Factors []string `json:"factors,omitempty"`
}

// Sport is one entry of the available-sports catalogue.
type Sport struct {
	Key    string `json:"sport_key"`
	Title  string `json:"sport_title"`
	Active bool   `json:"active"`
}

// ProviderStatus is the observability view of one adapter, computed from
// the latest quota snapshot without a network call.
type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Priority  int    `json:"priority"`
	Remaining *int   `json:"remaining,omitempty"`
}

// FetchOptions narrows an odds fetch. Zero values fall back to the
// defaults applied by Normalized.
type FetchOptions struct {
	Regions     []string `json:"regions,omitempty"`
	Markets     []string `json:"markets,omitempty"`
	OddsFormat  string   `json:"odds_format,omitempty"`
	IncludeLive bool     `json:"include_live,omitempty"`
	HoursAhead  int      `json:"hours_ahead,omitempty"`
}

// Normalized fills unset fields with the default fetch shape.
func (o FetchOptions) Normalized() FetchOptions {
	if len(o.Regions) == 0 {
		o.Regions = []string{"us"}
	}
	if len(o.Markets) == 0 {
		o.Markets = []string{"h2h", "spreads", "totals"}
	}
	if o.OddsFormat == "" {
		o.OddsFormat = "american"
	}
	if o.HoursAhead <= 0 {
		o.HoursAhead = 72
	}
	return o
}

// CacheKey renders the canonical cache key for one sport's odds read:
// odds:<sportKey>:<regions>:<markets>:<format>:<includeLive>:<hoursAhead>
func (o FetchOptions) CacheKey(sportKey string) string {
	n := o.Normalized()
	return fmt.Sprintf("odds:%s:%s:%s:%s:%t:%d",
		sportKey,
		strings.Join(n.Regions, ","),
		strings.Join(n.Markets, ","),
		n.OddsFormat,
		n.IncludeLive,
		n.HoursAhead,
	)
}

// StatusFor derives the event status from its commence time.
func StatusFor(commence, now time.Time) string {
	if now.After(commence) {
		return StatusLive
	}
	return StatusUpcoming
}

// SynthesizeEventID builds a stable, provider-namespaced identifier for
// events whose provider assigns none. The same game yields the same ID on
// every fetch cycle, so repeated upserts converge on one row.
func SynthesizeEventID(provider, sportKey, homeTeam, awayTeam string, commence time.Time) string {
	seed := fmt.Sprintf("%s|%s|%s|%s|%d", provider, sportKey, homeTeam, awayTeam, commence.UTC().Unix())
	return provider + ":" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
