package theoddsapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UglyGameFace/oddbot-sub001/adapters/theoddsapi"
	"github.com/UglyGameFace/oddbot-sub001/internal/quota"
	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
	"github.com/UglyGameFace/oddbot-sub001/pkg/testutil"
)

func newClient(baseURL, apiKey string) (*theoddsapi.Client, *quota.Tracker) {
	tracker := quota.NewTracker(testutil.NewMemStore(), time.Hour, testutil.QuietLog())
	client := theoddsapi.New(theoddsapi.Config{
		APIKey:            apiKey,
		BaseURL:           baseURL,
		Priority:          1,
		RequestsPerMinute: 6000,
	}, tracker, testutil.QuietLog())
	return client, tracker
}

func eventJSON(id string, commence time.Time, books int) map[string]interface{} {
	bookmakers := make([]map[string]interface{}, 0, books)
	for i := 0; i < books; i++ {
		bookmakers = append(bookmakers, map[string]interface{}{
			"key":         fmt.Sprintf("book%d", i+1),
			"title":       fmt.Sprintf("Book %d", i+1),
			"last_update": commence.Add(-time.Hour).Format(time.RFC3339),
			"markets": []map[string]interface{}{
				{
					"key":         "h2h",
					"last_update": commence.Add(-time.Hour).Format(time.RFC3339),
					"outcomes": []map[string]interface{}{
						{"name": "Los Angeles Lakers", "price": -150},
						{"name": "Boston Celtics", "price": 130},
					},
				},
			},
		})
	}
	return map[string]interface{}{
		"id":            id,
		"sport_key":     "basketball_nba",
		"sport_title":   "NBA",
		"commence_time": commence.Format(time.RFC3339),
		"home_team":     "Los Angeles Lakers",
		"away_team":     "Boston Celtics",
		"bookmakers":    bookmakers,
	}
}

func serveJSON(t *testing.T, w http.ResponseWriter, payload interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode payload: %v", err)
	}
}

func TestFetchTransformsEvents(t *testing.T) {
	commence := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	var gotQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/sports/basketball_nba/odds" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Header().Set("x-requests-remaining", "480")
		w.Header().Set("x-requests-used", "20")
		serveJSON(t, w, []interface{}{
			eventJSON("evt1", commence, 2),
			map[string]interface{}{
				"id":            "evt2",
				"sport_key":     "basketball_nba",
				"commence_time": "not-a-time",
				"home_team":     "A",
				"away_team":     "B",
			},
		})
	}))
	defer srv.Close()

	client, tracker := newClient(srv.URL, "test-key")
	snaps, err := client.Fetch(context.Background(), "basketball_nba", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotQuery.Get("regions") != "us" {
		t.Errorf("regions = %q, want default us", gotQuery.Get("regions"))
	}
	if gotQuery.Get("markets") != "h2h,spreads,totals" {
		t.Errorf("markets = %q, want defaults", gotQuery.Get("markets"))
	}
	if gotQuery.Get("oddsFormat") != "american" {
		t.Errorf("oddsFormat = %q, want american", gotQuery.Get("oddsFormat"))
	}

	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1 (bad commence time dropped)", len(snaps))
	}
	snap := snaps[0]
	if snap.EventID != "evt1" {
		t.Errorf("EventID = %q, want upstream id", snap.EventID)
	}
	if snap.Source != models.ProviderTheOddsAPI {
		t.Errorf("Source = %q", snap.Source)
	}
	if snap.EventStatus != models.StatusUpcoming {
		t.Errorf("EventStatus = %q, want %q", snap.EventStatus, models.StatusUpcoming)
	}
	if !snap.CommenceTime.Equal(commence) {
		t.Errorf("CommenceTime = %v, want %v", snap.CommenceTime, commence)
	}
	if len(snap.Bookmakers) != 2 {
		t.Fatalf("got %d bookmakers, want 2", len(snap.Bookmakers))
	}
	if got := snap.Bookmakers[0].Markets[0].Outcomes[0].Price; got != -150 {
		t.Errorf("first outcome price = %v, want -150", got)
	}

	// The allowance headers must land in the tracker.
	qs, err := tracker.Get(context.Background(), models.ProviderTheOddsAPI)
	if err != nil || qs == nil {
		t.Fatalf("quota not recorded: %v %v", qs, err)
	}
	if qs.Remaining == nil || *qs.Remaining != 480 {
		t.Errorf("recorded Remaining = %v, want 480", qs.Remaining)
	}
}

func TestFetchTimeWindow(t *testing.T) {
	now := time.Now().UTC()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, []interface{}{
			eventJSON("soon", now.Add(2*time.Hour), 1),
			eventJSON("far", now.Add(100*time.Hour), 1),
			eventJSON("live", now.Add(-30*time.Minute), 1),
		})
	}))
	defer srv.Close()

	tests := []struct {
		name string
		opts models.FetchOptions
		want []string
	}{
		{
			name: "default window excludes live and beyond horizon",
			opts: models.FetchOptions{HoursAhead: 72},
			want: []string{"soon"},
		},
		{
			name: "include live keeps in-play events",
			opts: models.FetchOptions{HoursAhead: 72, IncludeLive: true},
			want: []string{"soon", "live"},
		},
		{
			name: "wider horizon admits far event",
			opts: models.FetchOptions{HoursAhead: 120},
			want: []string{"soon", "far"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newClient(srv.URL, "test-key")
			snaps, err := client.Fetch(context.Background(), "basketball_nba", tt.opts)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			got := make(map[string]bool, len(snaps))
			for _, s := range snaps {
				got[s.EventID] = true
			}
			if len(snaps) != len(tt.want) {
				t.Fatalf("got %d snapshots %v, want %v", len(snaps), got, tt.want)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("missing event %q in %v", id, got)
				}
			}
		})
	}
}

func TestFetchUnmappedSport(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	client, _ := newClient(srv.URL, "test-key")
	snaps, err := client.Fetch(context.Background(), "cricket_ipl", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want nil for unmapped sport", err)
	}
	if snaps == nil || len(snaps) != 0 {
		t.Errorf("got %v, want empty non-nil slice", snaps)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("unmapped sport reached the network %d times", hits)
	}
}

func TestFetchBypassesWhenQuotaExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	client, tracker := newClient(srv.URL, "test-key")
	h := http.Header{}
	h.Set("x-requests-remaining", "0")
	h.Set("x-requests-used", "500")
	tracker.Record(context.Background(), models.ProviderTheOddsAPI, h)

	_, err := client.Fetch(context.Background(), "basketball_nba", models.FetchOptions{})
	if !contracts.IsKind(err, contracts.ErrKindRateLimit) {
		t.Fatalf("Fetch() error = %v, want rate_limit kind", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("bypassed fetch reached the network %d times", hits)
	}
}

func TestFetchAuthErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"invalid api key"}`)
	}))
	defer srv.Close()

	client, _ := newClient(srv.URL, "bad-key")
	_, err := client.Fetch(context.Background(), "basketball_nba", models.FetchOptions{})
	if !contracts.IsKind(err, contracts.ErrKindAuth) {
		t.Fatalf("Fetch() error = %v, want auth kind", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("auth failure hit the server %d times, want 1 (no retry)", got)
	}
}

func TestFetchRetriesRateLimitResponse(t *testing.T) {
	commence := time.Now().Add(3 * time.Hour).UTC()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		serveJSON(t, w, []interface{}{eventJSON("evt1", commence, 1)})
	}))
	defer srv.Close()

	client, _ := newClient(srv.URL, "test-key")
	snaps, err := client.Fetch(context.Background(), "basketball_nba", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want recovery on second attempt", err)
	}
	if len(snaps) != 1 {
		t.Errorf("got %d snapshots, want 1", len(snaps))
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("server hit %d times, want 2", got)
	}
}

func TestFetchMergesPropsMarkets(t *testing.T) {
	commence := time.Now().Add(4 * time.Hour).UTC()

	mux := http.NewServeMux()
	mux.HandleFunc("/v4/sports/basketball_nba/odds", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("markets"); got != "h2h" {
			t.Errorf("bulk call markets = %q, want h2h fallback", got)
		}
		serveJSON(t, w, []interface{}{eventJSON("evt1", commence, 1)})
	})
	mux.HandleFunc("/v4/sports/basketball_nba/events/evt1/odds", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("markets"); got != "player_points" {
			t.Errorf("props call markets = %q, want player_points", got)
		}
		event := eventJSON("evt1", commence, 1)
		event["bookmakers"] = []map[string]interface{}{
			{
				"key":         "book1",
				"title":       "Book 1",
				"last_update": commence.Format(time.RFC3339),
				"markets": []map[string]interface{}{
					{
						"key": "player_points",
						"outcomes": []map[string]interface{}{
							{"name": "LeBron James", "price": -115, "point": 27.5},
						},
					},
				},
			},
			{
				"key":         "book9",
				"title":       "Book 9",
				"last_update": commence.Format(time.RFC3339),
				"markets": []map[string]interface{}{
					{
						"key": "player_points",
						"outcomes": []map[string]interface{}{
							{"name": "LeBron James", "price": -110, "point": 27.0},
						},
					},
				},
			},
		}
		serveJSON(t, w, event)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _ := newClient(srv.URL, "test-key")
	snaps, err := client.Fetch(context.Background(), "basketball_nba", models.FetchOptions{
		Markets: []string{"player_points"},
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}

	books := snaps[0].Bookmakers
	if len(books) != 2 {
		t.Fatalf("got %d bookmakers after merge, want 2", len(books))
	}
	// book1 existed from the bulk call and gains the props market.
	if books[0].Key != "book1" || len(books[0].Markets) != 2 {
		t.Errorf("book1 has %d markets, want h2h plus props", len(books[0].Markets))
	}
	if books[1].Key != "book9" || len(books[1].Markets) != 1 {
		t.Errorf("book9 = %q with %d markets, want props only", books[1].Key, len(books[1].Markets))
	}
	point := books[0].Markets[1].Outcomes[0].Point
	if point == nil || *point != 27.5 {
		t.Errorf("props point = %v, want 27.5", point)
	}
}

func TestFetchSports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/sports" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		serveJSON(t, w, []map[string]interface{}{
			{"key": "basketball_nba", "title": "NBA", "active": true},
			{"key": "americanfootball_nfl", "title": "NFL", "active": false},
		})
	}))
	defer srv.Close()

	client, _ := newClient(srv.URL, "test-key")
	sports, err := client.FetchSports(context.Background())
	if err != nil {
		t.Fatalf("FetchSports() error = %v", err)
	}
	if len(sports) != 2 {
		t.Fatalf("got %d sports, want 2", len(sports))
	}
	if sports[0].Key != "basketball_nba" || !sports[0].Active {
		t.Errorf("sports[0] = %+v", sports[0])
	}
	if sports[1].Key != "americanfootball_nfl" || sports[1].Active {
		t.Errorf("sports[1] = %+v", sports[1])
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("missing api key", func(t *testing.T) {
		client, _ := newClient("http://unused", "")
		st := client.Status(ctx)
		if st.Status != models.ProviderError {
			t.Errorf("Status = %q, want error without key", st.Status)
		}
	})

	t.Run("healthy with allowance", func(t *testing.T) {
		client, tracker := newClient("http://unused", "test-key")
		h := http.Header{}
		h.Set("x-requests-remaining", "350")
		tracker.Record(ctx, models.ProviderTheOddsAPI, h)

		st := client.Status(ctx)
		if st.Status != models.ProviderActive {
			t.Errorf("Status = %q, want active", st.Status)
		}
		if st.Remaining == nil || *st.Remaining != 350 {
			t.Errorf("Remaining = %v, want 350", st.Remaining)
		}
		if st.Priority != 1 {
			t.Errorf("Priority = %d, want 1", st.Priority)
		}
	})

	t.Run("exhausted allowance", func(t *testing.T) {
		client, tracker := newClient("http://unused", "test-key")
		h := http.Header{}
		h.Set("x-requests-remaining", "0")
		tracker.Record(ctx, models.ProviderTheOddsAPI, h)

		st := client.Status(ctx)
		if st.Status != models.ProviderError {
			t.Errorf("Status = %q, want error when exhausted", st.Status)
		}
	})
}
