package contracts

import (
	"context"

	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// ProviderAdapter is the single interface every upstream odds source
// implements. The chain depends on nothing beyond this closed method set,
// so new providers plug in without touching the fallback logic.
type ProviderAdapter interface {
	// Name identifies the provider in logs, quota keys and snapshot
	// sources.
	Name() string

	// Priority orders adapters within the chain; lower is tried first.
	Priority() int

	// Fetch retrieves odds for one sport key. A sport the provider has no
	// mapping for yields an empty slice, not an error.
	Fetch(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error)

	// FetchSports retrieves the provider's sports catalogue.
	FetchSports(ctx context.Context) ([]models.Sport, error)

	// Status reports provider health from the latest quota snapshot,
	// without touching the network.
	Status(ctx context.Context) models.ProviderStatus
}

// OddsSource is the read contract the provider chain satisfies for the
// service layer and the ingestion worker.
type OddsSource interface {
	FetchOdds(ctx context.Context, sportKey string, opts models.FetchOptions) ([]models.MarketSnapshot, error)
	FetchSports(ctx context.Context) ([]models.Sport, error)
	ProviderStatus(ctx context.Context) []models.ProviderStatus
}

// SnapshotSink receives normalized snapshots from the ingestion worker.
type SnapshotSink interface {
	UpsertSnapshots(ctx context.Context, snaps []models.MarketSnapshot) error
}
