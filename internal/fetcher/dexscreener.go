package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/juju/clock"
	"github.com/shopspring/decimal"

	"solana-token-feed/internal/domain"
)

// DexScreener defaults.
const (
	DefaultDexScreenerURL   = "https://api.dexscreener.com/latest/dex/search"
	DefaultDexScreenerQuery = "SOL/USDC"
	solanaChainID           = "solana"
)

// Extras keys set by DexScreener.
const (
	ExtraProtocol    = "protocol"
	ExtraPairAddress = "pair_address"
)

type dexSearchResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD decimal.NullDecimal `json:"priceUsd"`
	Volume   struct {
		H24 decimal.NullDecimal `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD decimal.NullDecimal `json:"usd"`
	} `json:"liquidity"`
	MarketCap decimal.NullDecimal `json:"marketCap"`
	FDV       decimal.NullDecimal `json:"fdv"`
	Txns      struct {
		H24 struct {
			Buys  int64 `json:"buys"`
			Sells int64 `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	PriceChange struct {
		H1  decimal.NullDecimal `json:"h1"`
		H24 decimal.NullDecimal `json:"h24"`
	} `json:"priceChange"`
}

// DexScreenerOptions configures DexScreener.
type DexScreenerOptions struct {
	Client *HTTPClient
	URL    string
	Query  string
	Clock  clock.Clock
}

// DexScreener searches DexScreener pairs and reports their base tokens.
type DexScreener struct {
	client *HTTPClient
	url    string
	query  string
	clock  clock.Clock
}

var _ Fetcher = (*DexScreener)(nil)

// NewDexScreener creates a DexScreener fetcher.
func NewDexScreener(opts DexScreenerOptions) *DexScreener {
	d := &DexScreener{
		client: opts.Client,
		url:    opts.URL,
		query:  opts.Query,
		clock:  opts.Clock,
	}
	if d.client == nil {
		d.client = NewHTTPClient()
	}
	if d.url == "" {
		d.url = DefaultDexScreenerURL
	}
	if d.query == "" {
		d.query = DefaultDexScreenerQuery
	}
	if d.clock == nil {
		d.clock = clock.WallClock
	}
	return d
}

func (d *DexScreener) Name() string { return domain.SourceDexScreener }

// Fetch returns one observation per Solana base token. When a token trades
// in several pairs, the pair with the deepest liquidity is kept.
func (d *DexScreener) Fetch(ctx context.Context) ([]domain.Observation, error) {
	var resp dexSearchResponse
	u := d.url + "?q=" + url.QueryEscape(d.query)
	if err := d.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("search pairs: %w", err)
	}

	now := d.clock.Now().UnixMilli()
	byAddress := make(map[string]int)
	var out []domain.Observation
	for _, p := range resp.Pairs {
		if p.ChainID != "" && !strings.EqualFold(p.ChainID, solanaChainID) {
			continue
		}
		obs, ok := normalizeDexPair(p, now)
		if !ok {
			continue
		}
		if i, seen := byAddress[obs.Address]; seen {
			if liquidityOf(obs) > liquidityOf(out[i]) {
				out[i] = obs
			}
			continue
		}
		byAddress[obs.Address] = len(out)
		out = append(out, obs)
	}
	return out, nil
}

func normalizeDexPair(p dexPair, fetchedAt int64) (domain.Observation, bool) {
	address := domain.NormalizeAddress(p.BaseToken.Address)
	if address == "" {
		return domain.Observation{}, false
	}

	obs := domain.Observation{
		Address:   address,
		Source:    domain.SourceDexScreener,
		Name:      p.BaseToken.Name,
		Ticker:    p.BaseToken.Symbol,
		FetchedAt: fetchedAt,
		Metrics: domain.Metrics{
			Price:          toFloat(p.PriceUSD),
			Volume:         toFloat(p.Volume.H24),
			Liquidity:      toFloat(p.Liquidity.USD),
			MarketCap:      toFloat(p.MarketCap),
			PriceChange1h:  toFloat(p.PriceChange.H1),
			PriceChange24h: toFloat(p.PriceChange.H24),
		},
	}
	if obs.MarketCap == nil {
		obs.MarketCap = toFloat(p.FDV)
	}
	if n := p.Txns.H24.Buys + p.Txns.H24.Sells; n > 0 {
		obs.TransactionCount = domain.Float(float64(n))
	}

	extras := map[string]string{}
	if p.DexID != "" {
		extras[ExtraProtocol] = p.DexID
	}
	if p.PairAddress != "" {
		extras[ExtraPairAddress] = p.PairAddress
	}
	if len(extras) > 0 {
		obs.Extras = extras
	}
	return obs, true
}

func toFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f, _ := d.Decimal.Float64()
	return &f
}

func liquidityOf(o domain.Observation) float64 {
	if o.Liquidity == nil {
		return 0
	}
	return *o.Liquidity
}
