package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// NewSnapshot builds a valid market snapshot commencing hoursFromNow
// relative to now (negative values produce in-play or past events).
func NewSnapshot(eventID, source string, hoursFromNow float64) models.MarketSnapshot {
	now := time.Now().UTC()
	commence := now.Add(time.Duration(hoursFromNow * float64(time.Hour)))
	return models.MarketSnapshot{
		EventID:      eventID,
		SportKey:     "basketball_nba",
		SportTitle:   "NBA",
		CommenceTime: commence,
		HomeTeam:     "Los Angeles Lakers",
		AwayTeam:     "Boston Celtics",
		EventStatus:  models.StatusFor(commence, now),
		Source:       source,
		LastUpdated:  now,
	}
}

// WithBooks attaches n synthetic bookmakers, each carrying one h2h market
// with two priced outcomes.
func WithBooks(snap models.MarketSnapshot, n int) models.MarketSnapshot {
	now := time.Now().UTC()
	books := make([]models.Bookmaker, 0, n)
	for i := 0; i < n; i++ {
		books = append(books, models.Bookmaker{
			Key:        fmt.Sprintf("book%d", i+1),
			Title:      fmt.Sprintf("Book %d", i+1),
			LastUpdate: now,
			Markets: []models.BookMarket{
				{
					Key: "h2h",
					Outcomes: []models.Outcome{
						{Name: snap.HomeTeam, Price: -110},
						{Name: snap.AwayTeam, Price: -110},
					},
				},
			},
		})
	}
	snap.Bookmakers = books
	return snap
}

// IntPtr creates a pointer to an int.
func IntPtr(v int) *int { return &v }

// Float64Ptr creates a pointer to a float64.
func Float64Ptr(v float64) *float64 { return &v }

// QuietLog returns a component entry that discards output, keeping test
// runs readable.
func QuietLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("component", "test")
}

// StubAdapter is a configurable ProviderAdapter for chain, service and
// scheduler tests. Unset funcs return empty results.
type StubAdapter struct {
	AdapterName     string
	AdapterPriority int
	FetchFunc       func(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error)
	FetchSportsFunc func(ctx context.Context) ([]models.Sport, error)
	StatusFunc      func(ctx context.Context) models.ProviderStatus

	mu         sync.Mutex
	fetchCalls int
}

func (a *StubAdapter) Name() string  { return a.AdapterName }
func (a *StubAdapter) Priority() int { return a.AdapterPriority }

func (a *StubAdapter) Fetch(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error) {
	a.mu.Lock()
	a.fetchCalls++
	a.mu.Unlock()
	if a.FetchFunc != nil {
		return a.FetchFunc(ctx, sportKey, opts)
	}
	return []models.MarketSnapshot{}, nil
}

func (a *StubAdapter) FetchSports(ctx context.Context) ([]models.Sport, error) {
	if a.FetchSportsFunc != nil {
		return a.FetchSportsFunc(ctx)
	}
	return []models.Sport{}, nil
}

func (a *StubAdapter) Status(ctx context.Context) models.ProviderStatus {
	if a.StatusFunc != nil {
		return a.StatusFunc(ctx)
	}
	return models.ProviderStatus{Name: a.AdapterName, Status: models.ProviderActive, Priority: a.AdapterPriority}
}

// FetchCalls reports how many times Fetch ran.
func (a *StubAdapter) FetchCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetchCalls
}

// RecordingSink captures upserted snapshot batches for scheduler tests.
type RecordingSink struct {
	mu      sync.Mutex
	Err     error
	batches [][]models.MarketSnapshot
}

func (s *RecordingSink) UpsertSnapshots(ctx context.Context, snaps []models.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	batch := make([]models.MarketSnapshot, len(snaps))
	copy(batch, snaps)
	s.batches = append(s.batches, batch)
	return nil
}

// Batches returns a copy of everything upserted so far.
func (s *RecordingSink) Batches() [][]models.MarketSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]models.MarketSnapshot, len(s.batches))
	copy(out, s.batches)
	return out
}

// Total counts all upserted snapshots across batches.
func (s *RecordingSink) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}
