package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// Store persists market snapshots in Postgres. The cache serves reads;
// this is the durable record the ingestion worker writes through to.
type Store struct {
	db  *sql.DB
	log *logrus.Entry
}

var _ contracts.SnapshotSink = (*Store)(nil)

func New(db *sql.DB, log *logrus.Entry) *Store {
	return &Store{db: db, log: log}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS market_snapshots (
	event_id      TEXT PRIMARY KEY,
	sport_key     TEXT NOT NULL,
	sport_title   TEXT NOT NULL DEFAULT '',
	commence_time TIMESTAMPTZ NOT NULL,
	home_team     TEXT NOT NULL,
	away_team     TEXT NOT NULL,
	event_status  TEXT NOT NULL,
	bookmakers    JSONB NOT NULL DEFAULT '[]',
	source        TEXT NOT NULL,
	quality       JSONB,
	last_updated  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_market_snapshots_sport_commence
	ON market_snapshots (sport_key, commence_time);
`

// EnsureSchema creates the snapshot table and its index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertSnapshots writes a batch in one round trip, updating rows whose
// event already exists. Bookmakers and quality ride along as jsonb.
func (s *Store) UpsertSnapshots(ctx context.Context, snaps []models.MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	query := `
		INSERT INTO market_snapshots (
			event_id, sport_key, sport_title, commence_time, home_team, away_team,
			event_status, bookmakers, source, quality, last_updated
		)
		SELECT UNNEST($1::text[]), UNNEST($2::text[]), UNNEST($3::text[]),
		       UNNEST($4::timestamptz[]), UNNEST($5::text[]), UNNEST($6::text[]),
		       UNNEST($7::text[]), UNNEST($8::jsonb[]), UNNEST($9::text[]),
		       UNNEST($10::jsonb[]), UNNEST($11::timestamptz[])
		ON CONFLICT (event_id)
		DO UPDATE SET
			sport_title = EXCLUDED.sport_title,
			commence_time = EXCLUDED.commence_time,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			event_status = EXCLUDED.event_status,
			bookmakers = EXCLUDED.bookmakers,
			source = EXCLUDED.source,
			quality = EXCLUDED.quality,
			last_updated = EXCLUDED.last_updated
	`

	eventIDs := make([]string, len(snaps))
	sportKeys := make([]string, len(snaps))
	sportTitles := make([]string, len(snaps))
	commenceTimes := make([]time.Time, len(snaps))
	homeTeams := make([]string, len(snaps))
	awayTeams := make([]string, len(snaps))
	statuses := make([]string, len(snaps))
	bookmakers := make([]string, len(snaps))
	sources := make([]string, len(snaps))
	qualities := make([]string, len(snaps))
	lastUpdateds := make([]time.Time, len(snaps))

	for i, snap := range snaps {
		booksJSON, err := json.Marshal(snap.Bookmakers)
		if err != nil {
			return fmt.Errorf("marshal bookmakers for %s: %w", snap.EventID, err)
		}
		qualityJSON, err := json.Marshal(snap.Quality)
		if err != nil {
			return fmt.Errorf("marshal quality for %s: %w", snap.EventID, err)
		}

		eventIDs[i] = snap.EventID
		sportKeys[i] = snap.SportKey
		sportTitles[i] = snap.SportTitle
		commenceTimes[i] = snap.CommenceTime
		homeTeams[i] = snap.HomeTeam
		awayTeams[i] = snap.AwayTeam
		statuses[i] = snap.EventStatus
		bookmakers[i] = string(booksJSON)
		sources[i] = snap.Source
		qualities[i] = string(qualityJSON)
		lastUpdateds[i] = snap.LastUpdated
	}

	_, err := s.db.ExecContext(ctx, query,
		pq.Array(eventIDs), pq.Array(sportKeys), pq.Array(sportTitles),
		pq.Array(commenceTimes), pq.Array(homeTeams), pq.Array(awayTeams),
		pq.Array(statuses), pq.Array(bookmakers), pq.Array(sources),
		pq.Array(qualities), pq.Array(lastUpdateds),
	)
	if err != nil {
		return fmt.Errorf("upsert %d snapshots: %w", len(snaps), err)
	}

	s.log.WithFields(logrus.Fields{
		"snapshots": len(snaps),
		"sport_key": snaps[0].SportKey,
	}).Debug("persisted snapshot batch")
	return nil
}

// ListBySport returns the stored snapshots for one sport commencing in
// [from, to), ordered ascending.
func (s *Store) ListBySport(ctx context.Context, sportKey string, from, to time.Time) ([]models.MarketSnapshot, error) {
	query := `
		SELECT event_id, sport_key, sport_title, commence_time, home_team, away_team,
		       event_status, bookmakers, source, quality, last_updated
		FROM market_snapshots
		WHERE sport_key = $1 AND commence_time >= $2 AND commence_time < $3
		ORDER BY commence_time ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sportKey, from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", sportKey, err)
	}
	defer rows.Close()

	snaps := make([]models.MarketSnapshot, 0)
	for rows.Next() {
		var snap models.MarketSnapshot
		var booksRaw, qualityRaw []byte
		if err := rows.Scan(
			&snap.EventID, &snap.SportKey, &snap.SportTitle, &snap.CommenceTime,
			&snap.HomeTeam, &snap.AwayTeam, &snap.EventStatus, &booksRaw,
			&snap.Source, &qualityRaw, &snap.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if err := json.Unmarshal(booksRaw, &snap.Bookmakers); err != nil {
			return nil, fmt.Errorf("decode bookmakers for %s: %w", snap.EventID, err)
		}
		if len(qualityRaw) > 0 {
			if err := json.Unmarshal(qualityRaw, &snap.Quality); err != nil {
				return nil, fmt.Errorf("decode quality for %s: %w", snap.EventID, err)
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Ping verifies database connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
