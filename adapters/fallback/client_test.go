package fallback_test

import (
	"context"
	"testing"

	"github.com/UglyGameFace/oddbot-sub001/adapters/fallback"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
	"github.com/UglyGameFace/oddbot-sub001/pkg/testutil"
)

func TestFetchEmptyByDefault(t *testing.T) {
	client := fallback.New(fallback.Config{}, testutil.QuietLog())

	snaps, err := client.Fetch(context.Background(), "basketball_nba", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v, terminal adapter must not fail", err)
	}
	if snaps == nil {
		t.Fatal("Fetch() returned nil, want empty slice")
	}
	if len(snaps) != 0 {
		t.Errorf("got %d snapshots, want 0 with placeholder off", len(snaps))
	}
}

func TestFetchPlaceholder(t *testing.T) {
	client := fallback.New(fallback.Config{Placeholder: true}, testutil.QuietLog())

	snaps, err := client.Fetch(context.Background(), "basketball_nba", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1 placeholder", len(snaps))
	}
	snap := snaps[0]
	if snap.Source != models.ProviderFallback {
		t.Errorf("Source = %q", snap.Source)
	}
	if snap.EventID == "" {
		t.Error("placeholder missing synthesized event id")
	}
	if snap.HomeTeam != "TBD" || snap.AwayTeam != "TBD" {
		t.Errorf("teams = %q vs %q, want TBD placeholders", snap.HomeTeam, snap.AwayTeam)
	}
}

func TestStatusAndPriorityDefaults(t *testing.T) {
	client := fallback.New(fallback.Config{}, testutil.QuietLog())

	if got := client.Priority(); got != 100 {
		t.Errorf("Priority() = %d, want 100", got)
	}
	st := client.Status(context.Background())
	if st.Status != models.ProviderActive {
		t.Errorf("Status = %q, want active", st.Status)
	}
	if st.Remaining != nil {
		t.Errorf("Remaining = %v, want nil", st.Remaining)
	}
}
