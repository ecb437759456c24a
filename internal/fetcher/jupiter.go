package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/logging"
)

// Jupiter defaults.
const (
	DefaultJupiterURL         = "https://lite-api.jup.ag/price/v3"
	DefaultJupiterChunkSize   = 50
	DefaultJupiterConcurrency = 5
	DefaultJupiterTopN        = 100
)

type jupiterPrice struct {
	USDPrice       *float64 `json:"usdPrice"`
	PriceChange24h *float64 `json:"priceChange24h"`
}

// JupiterOptions configures Jupiter.
type JupiterOptions struct {
	Client *HTTPClient

	// Addresses supplies the tokens to price. Required.
	Addresses AddressSource

	URL         string
	ChunkSize   int
	Concurrency int
	// TopN is how many addresses, ranked by volume, are priced per run.
	TopN int

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// Jupiter prices already-tracked tokens through the Jupiter price API.
type Jupiter struct {
	client      *HTTPClient
	addresses   AddressSource
	url         string
	chunkSize   int
	concurrency int
	topN        int
	clock       clock.Clock
	logger      logrus.FieldLogger
}

var _ Fetcher = (*Jupiter)(nil)

// NewJupiter creates a Jupiter fetcher.
func NewJupiter(opts JupiterOptions) (*Jupiter, error) {
	if opts.Addresses == nil {
		return nil, fmt.Errorf("jupiter: address source is required")
	}
	j := &Jupiter{
		client:      opts.Client,
		addresses:   opts.Addresses,
		url:         opts.URL,
		chunkSize:   opts.ChunkSize,
		concurrency: opts.Concurrency,
		topN:        opts.TopN,
		clock:       opts.Clock,
		logger:      logging.Component(opts.Logger, "fetcher.jupiter"),
	}
	if j.client == nil {
		j.client = NewHTTPClient()
	}
	if j.url == "" {
		j.url = DefaultJupiterURL
	}
	if j.chunkSize <= 0 {
		j.chunkSize = DefaultJupiterChunkSize
	}
	if j.concurrency <= 0 {
		j.concurrency = DefaultJupiterConcurrency
	}
	if j.topN <= 0 {
		j.topN = DefaultJupiterTopN
	}
	if j.clock == nil {
		j.clock = clock.WallClock
	}
	return j, nil
}

func (j *Jupiter) Name() string { return domain.SourceJupiter }

// Fetch prices the top tracked tokens by volume. Failed chunks are logged
// and skipped; the result holds one observation per address.
func (j *Jupiter) Fetch(ctx context.Context) ([]domain.Observation, error) {
	addrs, err := j.addresses.Range(ctx, domain.SortVolume, 0, j.topN)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	if len(addrs) == 0 {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		latest = make(map[string]domain.Observation, len(addrs))
		order  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for _, chunk := range chunks(addrs, j.chunkSize) {
		g.Go(func() error {
			obs, err := j.fetchChunk(gctx, chunk)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				j.logger.WithError(err).WithField("chunk_size", len(chunk)).Warn("jupiter chunk failed")
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, o := range obs {
				prev, seen := latest[o.Address]
				if !seen {
					order = append(order, o.Address)
				}
				if !seen || o.FetchedAt > prev.FetchedAt {
					latest[o.Address] = o
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Observation, 0, len(order))
	for _, addr := range order {
		out = append(out, latest[addr])
	}
	return out, nil
}

func (j *Jupiter) fetchChunk(ctx context.Context, chunk []string) ([]domain.Observation, error) {
	var resp map[string]*jupiterPrice
	if err := j.client.GetJSON(ctx, j.url+"?ids="+strings.Join(chunk, ","), &resp); err != nil {
		return nil, err
	}

	now := j.clock.Now().UnixMilli()
	out := make([]domain.Observation, 0, len(resp))
	for addr, p := range resp {
		addr = domain.NormalizeAddress(addr)
		if addr == "" || p == nil {
			continue
		}
		out = append(out, domain.Observation{
			Address:   addr,
			Source:    domain.SourceJupiter,
			FetchedAt: now,
			Metrics: domain.Metrics{
				Price:          p.USDPrice,
				PriceChange24h: p.PriceChange24h,
			},
		})
	}
	return out, nil
}

// chunks splits s into consecutive slices of at most n elements.
func chunks(s []string, n int) [][]string {
	var out [][]string
	for len(s) > n {
		out = append(out, s[:n:n])
		s = s[n:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
