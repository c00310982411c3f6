package delta_test

import (
	"context"
	"testing"
	"time"

	"github.com/UglyGameFace/oddbot-sub001/internal/delta"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
	"github.com/UglyGameFace/oddbot-sub001/pkg/testutil"
)

func newEngine(store *testutil.MemStore) *delta.Engine {
	return delta.NewEngine(store, time.Hour, testutil.QuietLog())
}

func TestFilterPassesUnseenSnapshots(t *testing.T) {
	engine := newEngine(testutil.NewMemStore())
	snaps := []models.MarketSnapshot{
		testutil.WithBooks(testutil.NewSnapshot("evt1", "theoddsapi", 24), 2),
		testutil.WithBooks(testutil.NewSnapshot("evt2", "theoddsapi", 30), 1),
	}

	changed := engine.Filter(context.Background(), snaps)
	if len(changed) != 2 {
		t.Fatalf("passed %d snapshots, want all 2", len(changed))
	}
}

func TestFilterSuppressesUnchangedContent(t *testing.T) {
	engine := newEngine(testutil.NewMemStore())
	ctx := context.Background()

	snap := testutil.WithBooks(testutil.NewSnapshot("evt1", "theoddsapi", 24), 2)
	engine.Mark(ctx, []models.MarketSnapshot{snap})

	// A later refresh of the same market carries fresh vendor timestamps
	// and quality annotations but identical prices.
	refreshed := snap
	refreshed.LastUpdated = snap.LastUpdated.Add(10 * time.Minute)
	refreshed.Quality = &models.Quality{Score: 95}
	books := make([]models.Bookmaker, len(snap.Bookmakers))
	copy(books, snap.Bookmakers)
	for i := range books {
		books[i].LastUpdate = books[i].LastUpdate.Add(10 * time.Minute)
	}
	refreshed.Bookmakers = books

	if changed := engine.Filter(ctx, []models.MarketSnapshot{refreshed}); len(changed) != 0 {
		t.Fatalf("unmoved snapshot passed the filter, got %d", len(changed))
	}
}

func TestFilterDetectsPriceMovement(t *testing.T) {
	engine := newEngine(testutil.NewMemStore())
	ctx := context.Background()

	snap := testutil.WithBooks(testutil.NewSnapshot("evt1", "theoddsapi", 24), 1)
	engine.Mark(ctx, []models.MarketSnapshot{snap})

	moved := snap
	books := make([]models.Bookmaker, len(snap.Bookmakers))
	copy(books, snap.Bookmakers)
	markets := make([]models.BookMarket, len(books[0].Markets))
	copy(markets, books[0].Markets)
	outcomes := make([]models.Outcome, len(markets[0].Outcomes))
	copy(outcomes, markets[0].Outcomes)
	outcomes[0].Price = -125
	markets[0].Outcomes = outcomes
	books[0].Markets = markets
	moved.Bookmakers = books

	changed := engine.Filter(ctx, []models.MarketSnapshot{moved})
	if len(changed) != 1 {
		t.Fatalf("price movement suppressed, want 1 pass, got %d", len(changed))
	}
}

func TestFilterDetectsStatusFlip(t *testing.T) {
	engine := newEngine(testutil.NewMemStore())
	ctx := context.Background()

	snap := testutil.NewSnapshot("evt1", "espn", 1)
	engine.Mark(ctx, []models.MarketSnapshot{snap})

	live := snap
	live.EventStatus = models.StatusLive
	if changed := engine.Filter(ctx, []models.MarketSnapshot{live}); len(changed) != 1 {
		t.Fatalf("status flip suppressed, want 1 pass, got %d", len(changed))
	}
}

func TestFilterFailsOpenOnStoreErrors(t *testing.T) {
	store := testutil.NewMemStore()
	engine := newEngine(store)
	ctx := context.Background()

	snap := testutil.NewSnapshot("evt1", "theoddsapi", 24)
	engine.Mark(ctx, []models.MarketSnapshot{snap})

	store.FailAll = true
	if changed := engine.Filter(ctx, []models.MarketSnapshot{snap}); len(changed) != 1 {
		t.Fatalf("store outage should pass snapshots through, got %d", len(changed))
	}
}
