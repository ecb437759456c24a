package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Snapshots are upserted into token_snapshots; each sortable metric is a
// nullable column with a descending index.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `
	token_address, token_name, token_ticker,
	price, market_cap, volume, liquidity, transaction_count,
	price_change_1h, price_change_24h, price_change_7d,
	extras, sources_used, last_source, fetched_at, updated_at
`

// sortColumns maps each sortable metric to its column. Only these names are
// ever interpolated into SQL.
var sortColumns = map[domain.SortMetric]string{
	domain.SortVolume:         "volume",
	domain.SortLiquidity:      "liquidity",
	domain.SortMarketCap:      "market_cap",
	domain.SortPriceChange24h: "price_change_24h",
}

// Get retrieves a snapshot by address. Returns ErrNotFound if not exists.
func (s *SnapshotStore) Get(ctx context.Context, address string) (*domain.TokenSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM token_snapshots WHERE token_address = $1`

	row := s.pool.QueryRow(ctx, query, address)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
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

	query := `SELECT ` + snapshotColumns + ` FROM token_snapshots WHERE token_address = ANY($1)`

	rows, err := s.pool.Query(ctx, query, addresses)
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

// Put upserts the snapshot, replacing every column.
func (s *SnapshotStore) Put(ctx context.Context, snap *domain.TokenSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	query := `
		INSERT INTO token_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (token_address) DO UPDATE SET
			token_name = EXCLUDED.token_name,
			token_ticker = EXCLUDED.token_ticker,
			price = EXCLUDED.price,
			market_cap = EXCLUDED.market_cap,
			volume = EXCLUDED.volume,
			liquidity = EXCLUDED.liquidity,
			transaction_count = EXCLUDED.transaction_count,
			price_change_1h = EXCLUDED.price_change_1h,
			price_change_24h = EXCLUDED.price_change_24h,
			price_change_7d = EXCLUDED.price_change_7d,
			extras = EXCLUDED.extras,
			sources_used = EXCLUDED.sources_used,
			last_source = EXCLUDED.last_source,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = EXCLUDED.updated_at
	`

	extras := snap.Extras
	if extras == nil {
		extras = map[string]string{}
	}
	sources := snap.SourcesUsed
	if sources == nil {
		sources = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		snap.Address,
		snap.Name,
		snap.Ticker,
		snap.Price,
		snap.MarketCap,
		snap.Volume,
		snap.Liquidity,
		snap.TransactionCount,
		snap.PriceChange1h,
		snap.PriceChange24h,
		snap.PriceChange7d,
		extras,
		sources,
		snap.LastSource,
		snap.FetchedAt,
		snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
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
		SELECT token_address FROM token_snapshots
		WHERE %[1]s IS NOT NULL
		ORDER BY %[1]s DESC, token_address DESC
		OFFSET $1 LIMIT $2
	`, col)

	rows, err := s.pool.Query(ctx, query, offset, limit)
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

// Count returns the number of rows in token_snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM token_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// scanSnapshot scans a single row into TokenSnapshot.
func scanSnapshot(row pgx.Row) (*domain.TokenSnapshot, error) {
	var snap domain.TokenSnapshot

	err := row.Scan(
		&snap.Address,
		&snap.Name,
		&snap.Ticker,
		&snap.Price,
		&snap.MarketCap,
		&snap.Volume,
		&snap.Liquidity,
		&snap.TransactionCount,
		&snap.PriceChange1h,
		&snap.PriceChange24h,
		&snap.PriceChange7d,
		&snap.Extras,
		&snap.SourcesUsed,
		&snap.LastSource,
		&snap.FetchedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(snap.Extras) == 0 {
		snap.Extras = nil
	}
	if len(snap.SourcesUsed) == 0 {
		snap.SourcesUsed = nil
	}
	return &snap, nil
}
