package quality

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// Score weights. A record earns the base for carrying both team names and
// a plausible start time, a bonus for any bookmaker coverage and a second
// bonus once three independent books agree the event exists.
const (
	baseScore      = 50
	bonusAnyBook   = 30
	bonusManyBooks = 20
	manyBookCount  = 3
	maxScore       = 100
)

// Rating buckets exposed to consumers.
const (
	RatingExcellent = "excellent"
	RatingGood      = "good"
	RatingFair      = "fair"
	RatingPoor      = "poor"
)

// Sane commence window: events further in the past than a day or further
// out than a year are junk data, not markets.
const (
	maxPastWindow   = 24 * time.Hour
	maxFutureWindow = 365 * 24 * time.Hour
)

var (
	errMissingEventID  = errors.New("missing event_id")
	errMissingSportKey = errors.New("missing sport_key")
	errMissingCommence = errors.New("missing commence_time")
	errMissingTeam     = errors.New("missing team name")
)

// Validate reports why a snapshot must be discarded, or nil when it may
// enter the cache and store.
func Validate(snap models.MarketSnapshot) error {
	if snap.EventID == "" {
		return errMissingEventID
	}
	if snap.SportKey == "" {
		return errMissingSportKey
	}
	if snap.CommenceTime.IsZero() {
		return errMissingCommence
	}
	if snap.HomeTeam == "" || snap.AwayTeam == "" {
		return errMissingTeam
	}
	now := time.Now()
	if snap.CommenceTime.Before(now.Add(-maxPastWindow)) {
		return fmt.Errorf("commence_time %s too far in the past", snap.CommenceTime.Format(time.RFC3339))
	}
	if snap.CommenceTime.After(now.Add(maxFutureWindow)) {
		return fmt.Errorf("commence_time %s too far in the future", snap.CommenceTime.Format(time.RFC3339))
	}
	return nil
}

// Score grades one snapshot 0-100 and names the contributing factors.
func Score(snap models.MarketSnapshot) (int, []string) {
	score := 0
	var factors []string

	if snap.HomeTeam != "" && snap.AwayTeam != "" && plausibleTime(snap.CommenceTime) {
		score += baseScore
		factors = append(factors, "teams_and_time")
	}
	if n := len(snap.Bookmakers); n >= 1 {
		score += bonusAnyBook
		factors = append(factors, "has_odds")
		if n >= manyBookCount {
			score += bonusManyBooks
			factors = append(factors, "book_consensus")
		}
	}
	if score > maxScore {
		score = maxScore
	}
	return score, factors
}

// Rating maps a score to its consumer-facing bucket.
func Rating(score int) string {
	switch {
	case score >= 80:
		return RatingExcellent
	case score >= 60:
		return RatingGood
	case score >= 40:
		return RatingFair
	default:
		return RatingPoor
	}
}

// Report summarizes one batch of snapshots.
type Report struct {
	Score         int    `json:"score"`
	Rating        string `json:"rating"`
	ValidCount    int    `json:"valid_count"`
	WithOddsCount int    `json:"with_odds_count"`
}

// Assess grades a batch: the batch score is the mean of per-record scores
// over the valid records.
func Assess(records []models.MarketSnapshot) Report {
	valid, withOdds, total := 0, 0, 0
	for _, r := range records {
		if Validate(r) != nil {
			continue
		}
		valid++
		s, _ := Score(r)
		total += s
		if len(r.Bookmakers) > 0 {
			withOdds++
		}
	}
	score := 0
	if valid > 0 {
		score = total / valid
	}
	return Report{Score: score, Rating: Rating(score), ValidCount: valid, WithOddsCount: withOdds}
}

// Normalize drops invalid records, deduplicates by event ID keeping the
// first occurrence, sorts ascending by commence time and attaches the
// per-record quality score.
func Normalize(records []models.MarketSnapshot) []models.MarketSnapshot {
	seen := make(map[string]bool, len(records))
	out := make([]models.MarketSnapshot, 0, len(records))

	for _, r := range records {
		if Validate(r) != nil {
			continue
		}
		if seen[r.EventID] {
			continue
		}
		seen[r.EventID] = true

		score, factors := Score(r)
		r.Quality = &models.Quality{Score: score, Factors: factors}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CommenceTime.Before(out[j].CommenceTime)
	})
	return out
}

func plausibleTime(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	now := time.Now()
	return t.After(now.Add(-maxPastWindow)) && t.Before(now.Add(maxFutureWindow))
}
