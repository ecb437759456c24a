package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.DeltasPublished.Inc()
	m.ProcessingErrors.WithLabelValues("put").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeltasPublished))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProcessingErrors.WithLabelValues("put")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.StoreErrors.WithLabelValues("memory", "put"))
	RecordStoreOp("memory", "put", 0.01, errors.New("boom"))
	RecordStoreOp("memory", "put", 0.01, nil)
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.StoreErrors.WithLabelValues("memory", "put")))

	RecordFlush(0.2, false, 1700000000)
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(DefaultMetrics.LastSuccessfulFlush))

	UpdateBufferSize("aggregator", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(DefaultMetrics.IntakeBufferSize.WithLabelValues("aggregator")))
}

func TestHandler(t *testing.T) {
	RecordPublished()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "solana_token_feed_aggregator_deltas_published_total")
}
