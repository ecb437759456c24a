package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// token_snapshots is a ReplacingMergeTree keyed by address and versioned by
// updated_at; every read uses FINAL so only the latest row is visible.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const selectSnapshot = `
	SELECT
		token_address, token_name, token_ticker,
		price, market_cap, volume, liquidity, transaction_count,
		price_change_1h, price_change_24h, price_change_7d,
		extras, sources_used, last_source, fetched_at, updated_at
	FROM token_snapshots FINAL
`

var sortColumns = map[domain.SortMetric]string{
	domain.SortVolume:         "volume",
	domain.SortLiquidity:      "liquidity",
	domain.SortMarketCap:      "market_cap",
	domain.SortPriceChange24h: "price_change_24h",
}

// Get retrieves a snapshot by address. Returns ErrNotFound if not exists.
func (s *SnapshotStore) Get(ctx context.Context, address string) (*domain.TokenSnapshot, error) {
	row := s.conn.QueryRow(ctx, selectSnapshot+` WHERE token_address = ? LIMIT 1`, address)

	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// GetMany retrieves snapshots in the order of addresses, skipping missing ones.
func (s *SnapshotStore) GetMany(ctx context.Context, addresses []string) ([]*domain.TokenSnapshot, error) {
	if len(addresses) == 0 {
		return []*domain.TokenSnapshot{}, nil
	}

	rows, err := s.conn.Query(ctx, selectSnapshot+` WHERE has(?, token_address)`, addresses)
	if err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	defer rows.Close()

	byAddress := make(map[string]*domain.TokenSnapshot, len(addresses))
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		byAddress[snap.Address] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	out := make([]*domain.TokenSnapshot, 0, len(byAddress))
	for _, addr := range addresses {
		if snap, ok := byAddress[addr]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Put inserts a new row version for the snapshot.
func (s *SnapshotStore) Put(ctx context.Context, snap *domain.TokenSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_snapshots (
			token_address, token_name, token_ticker,
			price, market_cap, volume, liquidity, transaction_count,
			price_change_1h, price_change_24h, price_change_7d,
			extras, sources_used, last_source, fetched_at, updated_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	extras := snap.Extras
	if extras == nil {
		extras = map[string]string{}
	}
	sources := snap.SourcesUsed
	if sources == nil {
		sources = []string{}
	}

	err = batch.Append(
		snap.Address, snap.Name, snap.Ticker,
		snap.Price, snap.MarketCap, snap.Volume, snap.Liquidity, snap.TransactionCount,
		snap.PriceChange1h, snap.PriceChange24h, snap.PriceChange7d,
		extras, sources, snap.LastSource, snap.FetchedAt, uint64(snap.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Range returns addresses ordered by metric descending, ties by address descending.
func (s *SnapshotStore) Range(ctx context.Context, metric domain.SortMetric, offset, limit int) ([]string, error) {
	offset, limit, err := storage.ValidateRange(metric, offset, limit)
	if err != nil {
		return nil, err
	}
	col, ok := sortColumns[metric]
	if !ok {
		return nil, fmt.Errorf("range %q: %w", metric, storage.ErrUnknownMetric)
	}

	query := fmt.Sprintf(`
		SELECT token_address FROM token_snapshots FINAL
		WHERE %[1]s IS NOT NULL
		ORDER BY %[1]s DESC, token_address DESC
		LIMIT ? OFFSET ?
	`, col)

	rows, err := s.conn.Query(ctx, query, uint64(limit), uint64(offset))
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", metric, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate range: %w", err)
	}
	return out, nil
}

// Count returns the number of distinct addresses.
func (s *SnapshotStore) Count(ctx context.Context) (int64, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM token_snapshots FINAL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return int64(n), nil
}

// Ping checks the connection.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

type chRow interface {
	Scan(dest ...any) error
}

func scanSnapshot(row chRow) (*domain.TokenSnapshot, error) {
	var snap domain.TokenSnapshot
	var updatedAt uint64

	err := row.Scan(
		&snap.Address, &snap.Name, &snap.Ticker,
		&snap.Price, &snap.MarketCap, &snap.Volume, &snap.Liquidity, &snap.TransactionCount,
		&snap.PriceChange1h, &snap.PriceChange24h, &snap.PriceChange7d,
		&snap.Extras, &snap.SourcesUsed, &snap.LastSource, &snap.FetchedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.UpdatedAt = int64(updatedAt)
	if len(snap.Extras) == 0 {
		snap.Extras = nil
	}
	if len(snap.SourcesUsed) == 0 {
		snap.SourcesUsed = nil
	}
	return &snap, nil
}
