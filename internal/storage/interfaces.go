package storage

import (
	"context"

	"solana-token-feed/internal/domain"
)

// SnapshotStore provides access to canonical token snapshots and their
// per-metric ordered indexes.
type SnapshotStore interface {
	// Get retrieves the snapshot for address. Returns ErrNotFound if none is stored.
	Get(ctx context.Context, address string) (*domain.TokenSnapshot, error)

	// GetMany retrieves snapshots for addresses in the given order.
	// Addresses with no stored snapshot are skipped.
	GetMany(ctx context.Context, addresses []string) ([]*domain.TokenSnapshot, error)

	// Put replaces the stored snapshot and updates every index. An index holds
	// the address only while the snapshot has a value for its metric.
	// Returns ErrInvalidInput if the snapshot has no address.
	Put(ctx context.Context, s *domain.TokenSnapshot) error

	// Range returns up to limit addresses ordered by metric descending,
	// starting at offset. Returns ErrUnknownMetric for a metric with no index.
	Range(ctx context.Context, metric domain.SortMetric, offset, limit int) ([]string, error)

	// Count returns the number of tracked addresses.
	Count(ctx context.Context) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
