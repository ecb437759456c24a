// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Intake metrics
	WindowsFlushed   *prometheus.CounterVec
	WindowBatchSize  *prometheus.HistogramVec
	IntakeBufferSize *prometheus.GaugeVec

	// Aggregator metrics
	AddressesProcessed prometheus.Counter
	DeltasPublished    prometheus.Counter
	DeltasSuppressed   prometheus.Counter
	ProcessingErrors   *prometheus.CounterVec
	MalformedMessages  *prometheus.CounterVec
	FlushDuration      prometheus.Histogram

	// Store metrics
	StoreLatency *prometheus.HistogramVec
	StoreErrors  *prometheus.CounterVec

	// Fetcher metrics
	FetchRuns     *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	FetchedTokens *prometheus.CounterVec

	// Stream metrics
	WSClients      prometheus.Gauge
	WSMessagesSent prometheus.Counter

	// Health metrics
	LastSuccessfulFlush prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_token_feed"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		WindowsFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "windows_flushed_total",
			Help:      "Total number of non-empty windows flushed",
		}, []string{"window"}),
		WindowBatchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "window_batch_size",
			Help:      "Number of addresses per flushed window",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"window"}),
		IntakeBufferSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "buffer_size",
			Help:      "Current number of buffered addresses",
		}, []string{"window"}),

		AddressesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "addresses_processed_total",
			Help:      "Total number of per-address read-merge-write cycles",
		}),
		DeltasPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "deltas_published_total",
			Help:      "Total number of change messages published",
		}),
		DeltasSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "deltas_suppressed_total",
			Help:      "Total number of merges with no material change",
		}),
		ProcessingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "processing_errors_total",
			Help:      "Total number of per-address failures by stage",
		}, []string{"stage"}),
		MalformedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "malformed_messages_total",
			Help:      "Total number of dropped intake messages or entries",
		}, []string{"reason"}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "flush_duration_seconds",
			Help:      "Time to process one window",
			Buckets:   prometheus.DefBuckets,
		}),

		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_errors_total",
			Help:      "Total number of failed store operations",
		}, []string{"backend", "operation"}),

		FetchRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "runs_total",
			Help:      "Total number of fetch runs by source and status",
		}, []string{"source", "status"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "run_duration_seconds",
			Help:      "Fetch run duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		FetchedTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "tokens_total",
			Help:      "Total number of observations fetched by source",
		}, []string{"source"}),

		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),
		WSMessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_sent_total",
			Help:      "Total number of messages written to WebSocket clients",
		}),

		LastSuccessfulFlush: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_flush_timestamp",
			Help:      "Unix timestamp of the last window flushed without errors",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordWindowFlushed records a flushed window and its size.
func RecordWindowFlushed(window string, size int) {
	DefaultMetrics.WindowsFlushed.WithLabelValues(window).Inc()
	DefaultMetrics.WindowBatchSize.WithLabelValues(window).Observe(float64(size))
}

// UpdateBufferSize sets the buffered address gauge for window.
func UpdateBufferSize(window string, size int) {
	DefaultMetrics.IntakeBufferSize.WithLabelValues(window).Set(float64(size))
}

// RecordProcessed increments the processed addresses counter.
func RecordProcessed() {
	DefaultMetrics.AddressesProcessed.Inc()
}

// RecordPublished increments the published deltas counter.
func RecordPublished() {
	DefaultMetrics.DeltasPublished.Inc()
}

// RecordSuppressed increments the suppressed deltas counter.
func RecordSuppressed() {
	DefaultMetrics.DeltasSuppressed.Inc()
}

// RecordProcessingError records a per-address failure at stage.
func RecordProcessingError(stage string) {
	DefaultMetrics.ProcessingErrors.WithLabelValues(stage).Inc()
}

// RecordMalformed records a dropped message or entry.
func RecordMalformed(reason string) {
	DefaultMetrics.MalformedMessages.WithLabelValues(reason).Inc()
}

// RecordFlush records a window's processing time and, if clean, its completion time.
func RecordFlush(seconds float64, failed bool, finishedUnix int64) {
	DefaultMetrics.FlushDuration.Observe(seconds)
	if !failed {
		DefaultMetrics.LastSuccessfulFlush.Set(float64(finishedUnix))
	}
}

// RecordStoreOp records store operation metrics.
func RecordStoreOp(backend, operation string, seconds float64, err error) {
	DefaultMetrics.StoreLatency.WithLabelValues(backend, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.StoreErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordFetchRun records a fetch run.
func RecordFetchRun(source, status string, seconds float64, tokens int) {
	DefaultMetrics.FetchRuns.WithLabelValues(source, status).Inc()
	DefaultMetrics.FetchDuration.WithLabelValues(source).Observe(seconds)
	DefaultMetrics.FetchedTokens.WithLabelValues(source).Add(float64(tokens))
}

// UpdateWSClients sets the connected client gauge.
func UpdateWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordWSMessage increments the sent WebSocket messages counter.
func RecordWSMessage() {
	DefaultMetrics.WSMessagesSent.Inc()
}
