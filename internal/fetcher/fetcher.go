package fetcher

import (
	"context"

	"solana-token-feed/internal/domain"
)

// Fetcher polls one upstream provider.
type Fetcher interface {
	// Name returns the canonical source name of the provider.
	Name() string
	// Fetch returns the provider's current observations.
	Fetch(ctx context.Context) ([]domain.Observation, error)
}

// Sink receives one source's observations. ingest.Collector and
// ingest.Client implement it.
type Sink interface {
	Ingest(ctx context.Context, source string, observations []domain.Observation) (int, error)
}

// AddressSource lists tracked addresses ranked by a metric.
// storage.SnapshotStore implements it.
type AddressSource interface {
	Range(ctx context.Context, metric domain.SortMetric, offset, limit int) ([]string, error)
}
