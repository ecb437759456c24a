package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/storage/memory"
)

type downStore struct {
	*memory.SnapshotStore
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

type recordingIngestor struct {
	mu     sync.Mutex
	source string
	tokens []domain.Observation
	err    error
}

func (r *recordingIngestor) Ingest(_ context.Context, source string, obs []domain.Observation) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = source
	r.tokens = append(r.tokens, obs...)
	return len(obs), r.err
}

func seedStore(t *testing.T) *memory.SnapshotStore {
	t.Helper()
	store := memory.NewSnapshotStore()
	for i, addr := range []string{"A", "B", "C"} {
		require.NoError(t, store.Put(context.Background(), &domain.TokenSnapshot{
			Address: addr,
			Metrics: domain.Metrics{
				Volume:    domain.Float(float64(100 * (i + 1))),
				Liquidity: domain.Float(float64(10 * (3 - i))),
			},
		}))
	}
	return store
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s.Handler()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDiscover(t *testing.T, rec *httptest.ResponseRecorder) (addrs []string, next int) {
	t.Helper()
	var resp DiscoverResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, tok := range resp.Tokens {
		addrs = append(addrs, tok.Address)
	}
	return addrs, resp.NextCursor
}

func TestDiscover(t *testing.T) {
	h := newTestServer(t, Options{Store: seedStore(t)})

	tests := []struct {
		name      string
		query     string
		wantAddrs []string
		wantNext  int
	}{
		{"default sort is volume", "", []string{"C", "B", "A"}, 20},
		{"liquidity", "?sort=liquidity", []string{"A", "B", "C"}, 20},
		{"paged", "?sort=volume&cursor=1&limit=1", []string{"B"}, 2},
		{"past the end", "?cursor=10", nil, 30},
		{"limit capped", "?limit=1000", []string{"C", "B", "A"}, MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/discover"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

			addrs, next := decodeDiscover(t, rec)
			assert.Equal(t, tt.wantAddrs, addrs)
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func TestDiscover_EmptyTokensIsArray(t *testing.T) {
	h := newTestServer(t, Options{Store: memory.NewSnapshotStore()})

	rec := do(h, http.MethodGet, "/discover", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tokens": [], "nextCursor": 20}`, rec.Body.String())
}

func TestDiscover_BadParams(t *testing.T) {
	h := newTestServer(t, Options{Store: seedStore(t)})

	for _, q := range []string{"?sort=price", "?cursor=-1", "?cursor=x", "?limit=0", "?limit=abc"} {
		t.Run(q, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/discover"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1_000, 0))
	h := newTestServer(t, Options{Store: seedStore(t), Clock: clk})
	clk.Advance(90 * time.Second)

	rec := do(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 90.0, resp.Uptime)
	assert.Equal(t, int64(3), resp.TokenCount)
}

func TestHealth_EmptyStoreReportsZero(t *testing.T) {
	h := newTestServer(t, Options{Store: memory.NewSnapshotStore(), Clock: testclock.NewClock(time.Unix(1_000, 0))})

	rec := do(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "uptime": 0, "token_count": 0}`, rec.Body.String())
}

func TestHealth_StoreDown(t *testing.T) {
	h := newTestServer(t, Options{Store: downStore{memory.NewSnapshotStore()}})

	rec := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status": "store_down"}`, rec.Body.String())
}

func TestIngest(t *testing.T) {
	ing := &recordingIngestor{}
	h := newTestServer(t, Options{Store: memory.NewSnapshotStore(), Ingestor: ing})

	rec := do(h, http.MethodPost, "/ingest", `{"source": "jup", "tokens": [{"token_address": "A", "price": 1.5}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())

	assert.Equal(t, "jup", ing.source)
	require.Len(t, ing.tokens, 1)
	assert.Equal(t, 1.5, *ing.tokens[0].Price)
}

func TestIngest_BadPayload(t *testing.T) {
	h := newTestServer(t, Options{Store: memory.NewSnapshotStore(), Ingestor: &recordingIngestor{}})

	for name, body := range map[string]string{
		"not json":       `{`,
		"missing source": `{"tokens": []}`,
		"missing tokens": `{"source": "dexscreener"}`,
		"tokens object":  `{"source": "dexscreener", "tokens": {}}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/ingest", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestIngest_Stopped(t *testing.T) {
	h := newTestServer(t, Options{
		Store:    memory.NewSnapshotStore(),
		Ingestor: &recordingIngestor{err: errors.New("stopped")},
	})

	rec := do(h, http.MethodPost, "/ingest", `{"source": "dexscreener", "tokens": []}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOptionalRoutes(t *testing.T) {
	h := newTestServer(t, Options{Store: memory.NewSnapshotStore()})

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/ingest", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/ws", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodOptions, "/discover", "").Code)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
