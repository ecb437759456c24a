package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/domain"
)

const dexFixture = `{"pairs": [
	{
		"chainId": "solana", "dexId": "raydium", "pairAddress": "PAIR1",
		"baseToken": {"address": "TOKA", "name": "Token A", "symbol": "TA"},
		"priceUsd": "0.00012345",
		"volume": {"h24": 1500.5},
		"liquidity": {"usd": 900},
		"fdv": 50000,
		"txns": {"h24": {"buys": 10, "sells": 5}},
		"priceChange": {"h1": -1.5, "h24": 12}
	},
	{
		"chainId": "solana", "dexId": "orca", "pairAddress": "PAIR2",
		"baseToken": {"address": "TOKA", "name": "Token A", "symbol": "TA"},
		"priceUsd": "0.00012",
		"liquidity": {"usd": 5000},
		"marketCap": 42000
	},
	{
		"chainId": "ethereum", "dexId": "uniswap",
		"baseToken": {"address": "0xabc", "name": "Eth Token", "symbol": "ET"},
		"priceUsd": "1.0"
	},
	{
		"chainId": "solana",
		"baseToken": {"address": ""},
		"priceUsd": "3"
	}
]}`

func TestDexScreener_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SOL/USDC", r.URL.Query().Get("q"))
		w.Write([]byte(dexFixture))
	}))
	defer server.Close()

	now := time.UnixMilli(1_700_000_000_000)
	d := NewDexScreener(DexScreenerOptions{
		Client: fastClient(),
		URL:    server.URL,
		Clock:  testclock.NewClock(now),
	})
	assert.Equal(t, domain.SourceDexScreener, d.Name())

	obs, err := d.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 1, "ethereum pair and empty address are dropped, duplicate pair collapsed")

	o := obs[0]
	assert.Equal(t, "TOKA", o.Address)
	assert.Equal(t, "Token A", o.Name)
	assert.Equal(t, "TA", o.Ticker)
	assert.Equal(t, domain.SourceDexScreener, o.Source)
	assert.Equal(t, now.UnixMilli(), o.FetchedAt)

	// The deeper orca pair wins.
	assert.Equal(t, 5000.0, *o.Liquidity)
	assert.Equal(t, 42000.0, *o.MarketCap)
	assert.Equal(t, "orca", o.Extras[ExtraProtocol])
	assert.Equal(t, "PAIR2", o.Extras[ExtraPairAddress])
	assert.Nil(t, o.Volume)
}

func TestNormalizeDexPair(t *testing.T) {
	var resp dexSearchResponse
	require.NoError(t, json.Unmarshal([]byte(dexFixture), &resp))

	o, ok := normalizeDexPair(resp.Pairs[0], 1)
	require.True(t, ok)
	assert.InDelta(t, 0.00012345, *o.Price, 1e-12)
	assert.Equal(t, 1500.5, *o.Volume)
	assert.Equal(t, 50000.0, *o.MarketCap, "fdv stands in for market cap")
	assert.Equal(t, 15.0, *o.TransactionCount)
	assert.Equal(t, -1.5, *o.PriceChange1h)
	assert.Equal(t, 12.0, *o.PriceChange24h)
	assert.Nil(t, o.PriceChange7d)

	_, ok = normalizeDexPair(resp.Pairs[3], 1)
	assert.False(t, ok)
}

func TestDexScreener_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	d := NewDexScreener(DexScreenerOptions{Client: fastClient(), URL: server.URL})
	_, err := d.Fetch(context.Background())
	assert.Error(t, err)
}
