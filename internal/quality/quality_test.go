package quality

import (
	"testing"
	"time"

	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
	"github.com/UglyGameFace/oddbot-sub001/pkg/testutil"
)

func TestValidate(t *testing.T) {
	valid := testutil.NewSnapshot("evt1", "theoddsapi", 4)

	tests := []struct {
		name    string
		mutate  func(s *models.MarketSnapshot)
		wantErr bool
	}{
		{"valid", func(s *models.MarketSnapshot) {}, false},
		{"missing event_id", func(s *models.MarketSnapshot) { s.EventID = "" }, true},
		{"missing sport_key", func(s *models.MarketSnapshot) { s.SportKey = "" }, true},
		{"missing commence_time", func(s *models.MarketSnapshot) { s.CommenceTime = time.Time{} }, true},
		{"missing home_team", func(s *models.MarketSnapshot) { s.HomeTeam = "" }, true},
		{"missing away_team", func(s *models.MarketSnapshot) { s.AwayTeam = "" }, true},
		{"too far past", func(s *models.MarketSnapshot) { s.CommenceTime = time.Now().Add(-25 * time.Hour) }, true},
		{"too far future", func(s *models.MarketSnapshot) { s.CommenceTime = time.Now().Add(370 * 24 * time.Hour) }, true},
		{"recent in-play", func(s *models.MarketSnapshot) { s.CommenceTime = time.Now().Add(-2 * time.Hour) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := valid
			tt.mutate(&snap)
			err := Validate(snap)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		snap      models.MarketSnapshot
		wantScore int
	}{
		{"teams and time only", testutil.NewSnapshot("e1", "espn", 4), 50},
		{"one bookmaker", testutil.WithBooks(testutil.NewSnapshot("e2", "theoddsapi", 4), 1), 80},
		{"two bookmakers", testutil.WithBooks(testutil.NewSnapshot("e3", "theoddsapi", 4), 2), 80},
		{"three bookmakers", testutil.WithBooks(testutil.NewSnapshot("e4", "theoddsapi", 4), 3), 100},
		{"five bookmakers capped", testutil.WithBooks(testutil.NewSnapshot("e5", "theoddsapi", 4), 5), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Score(tt.snap)
			if got != tt.wantScore {
				t.Errorf("Score() = %d, want %d", got, tt.wantScore)
			}
		})
	}
}

func TestScoreFactors(t *testing.T) {
	snap := testutil.WithBooks(testutil.NewSnapshot("e1", "theoddsapi", 4), 3)
	_, factors := Score(snap)

	want := map[string]bool{"teams_and_time": true, "has_odds": true, "book_consensus": true}
	if len(factors) != len(want) {
		t.Fatalf("expected %d factors, got %v", len(want), factors)
	}
	for _, f := range factors {
		if !want[f] {
			t.Errorf("unexpected factor %q", f)
		}
	}
}

func TestRating(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, RatingExcellent},
		{80, RatingExcellent},
		{79, RatingGood},
		{60, RatingGood},
		{59, RatingFair},
		{40, RatingFair},
		{39, RatingPoor},
		{0, RatingPoor},
	}

	for _, tt := range tests {
		if got := Rating(tt.score); got != tt.want {
			t.Errorf("Rating(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestAssess(t *testing.T) {
	invalid := testutil.NewSnapshot("bad", "theoddsapi", 4)
	invalid.AwayTeam = ""

	records := []models.MarketSnapshot{
		testutil.WithBooks(testutil.NewSnapshot("e1", "theoddsapi", 2), 3), // 100
		testutil.NewSnapshot("e2", "espn", 5),                             // 50
		invalid,
	}

	report := Assess(records)

	if report.ValidCount != 2 {
		t.Errorf("ValidCount = %d, want 2", report.ValidCount)
	}
	if report.WithOddsCount != 1 {
		t.Errorf("WithOddsCount = %d, want 1", report.WithOddsCount)
	}
	if report.Score != 75 {
		t.Errorf("Score = %d, want 75", report.Score)
	}
	if report.Rating != RatingGood {
		t.Errorf("Rating = %s, want %s", report.Rating, RatingGood)
	}
}

func TestNormalizeDropsInvalid(t *testing.T) {
	invalid := testutil.NewSnapshot("bad", "theoddsapi", 4)
	invalid.HomeTeam = ""

	out := Normalize([]models.MarketSnapshot{
		testutil.NewSnapshot("e1", "theoddsapi", 4),
		invalid,
	})

	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	if out[0].EventID != "e1" {
		t.Errorf("unexpected survivor %s", out[0].EventID)
	}
}

func TestNormalizeDedupeFirstWins(t *testing.T) {
	first := testutil.NewSnapshot("e1", "theoddsapi", 4)
	second := testutil.NewSnapshot("e1", "espn", 4)

	out := Normalize([]models.MarketSnapshot{first, second})

	if len(out) != 1 {
		t.Fatalf("expected 1 record after dedupe, got %d", len(out))
	}
	if out[0].Source != "theoddsapi" {
		t.Errorf("first occurrence should win, got source %s", out[0].Source)
	}
}

func TestNormalizeSortsByCommenceTime(t *testing.T) {
	out := Normalize([]models.MarketSnapshot{
		testutil.NewSnapshot("late", "theoddsapi", 10),
		testutil.NewSnapshot("early", "theoddsapi", 1),
		testutil.NewSnapshot("mid", "theoddsapi", 5),
	})

	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
	wantOrder := []string{"early", "mid", "late"}
	for i, want := range wantOrder {
		if out[i].EventID != want {
			t.Errorf("position %d = %s, want %s", i, out[i].EventID, want)
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i].CommenceTime.Before(out[i-1].CommenceTime) {
			t.Errorf("output not sorted ascending at index %d", i)
		}
	}
}

func TestNormalizeAttachesQuality(t *testing.T) {
	out := Normalize([]models.MarketSnapshot{
		testutil.WithBooks(testutil.NewSnapshot("e1", "theoddsapi", 4), 3),
	})

	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	if out[0].Quality == nil {
		t.Fatal("quality not attached")
	}
	if out[0].Quality.Score != 100 {
		t.Errorf("Quality.Score = %d, want 100", out[0].Quality.Score)
	}
}
