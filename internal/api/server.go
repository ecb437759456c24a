// Package api serves the HTTP surface: token discovery, health, ingest,
// the WebSocket change feed and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/ingest"
	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/storage"
)

// Paging defaults for /discover.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

const maxIngestBody = 8 << 20

// Ingestor buffers one source's observations. ingest.Collector implements it.
type Ingestor interface {
	Ingest(ctx context.Context, source string, observations []domain.Observation) (int, error)
}

// Options configures a Server.
type Options struct {
	// Store backs /discover and /health. Required.
	Store storage.SnapshotStore

	// Ingestor backs POST /ingest. If nil, the route is not registered.
	Ingestor Ingestor

	// WebSocket serves /ws. If nil, the route is not registered.
	WebSocket http.Handler

	// Metrics serves /metrics (default observability.Handler()).
	Metrics http.Handler

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// Server holds the HTTP handlers.
type Server struct {
	store    storage.SnapshotStore
	ingestor Ingestor
	ws       http.Handler
	metrics  http.Handler
	clock    clock.Clock
	started  time.Time
	logger   logrus.FieldLogger
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("api: store is required")
	}
	s := &Server{
		store:    opts.Store,
		ingestor: opts.Ingestor,
		ws:       opts.WebSocket,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		logger:   logging.Component(opts.Logger, "api"),
	}
	if s.metrics == nil {
		s.metrics = observability.Handler()
	}
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	s.started = s.clock.Now()
	return s, nil
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /discover", s.handleDiscover)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.ingestor != nil {
		mux.HandleFunc("POST /ingest", s.handleIngest)
	}
	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
	mux.Handle("GET /metrics", s.metrics)
	return withCORS(mux)
}

// DiscoverResponse is the JSON response for /discover.
type DiscoverResponse struct {
	Tokens     []*domain.TokenSnapshot `json:"tokens"`
	NextCursor int                     `json:"nextCursor"`
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status     string  `json:"status"`
	Uptime     float64 `json:"uptime"`
	TokenCount int64   `json:"token_count"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	metric := domain.SortVolume
	if v := q.Get("sort"); v != "" {
		m, ok := domain.ParseSortMetric(v)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid sort parameter"})
			return
		}
		metric = m
	}

	cursor, ok := intParam(q.Get("cursor"), 0)
	if !ok || cursor < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid cursor parameter"})
		return
	}
	limit, ok := intParam(q.Get("limit"), DefaultLimit)
	if !ok || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid limit parameter"})
		return
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	ctx := r.Context()
	addrs, err := s.store.Range(ctx, metric, cursor, limit)
	if err != nil {
		s.serverError(w, "range", err)
		return
	}
	tokens, err := s.store.GetMany(ctx, addrs)
	if err != nil {
		s.serverError(w, "get_many", err)
		return
	}
	if tokens == nil {
		tokens = []*domain.TokenSnapshot{}
	}

	writeJSON(w, http.StatusOK, DiscoverResponse{
		Tokens:     tokens,
		NextCursor: cursor + limit,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "store_down"})
		return
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "store_down"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Uptime:     s.clock.Now().Sub(s.started).Seconds(),
		TokenCount: count,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err := dec.Decode(&req); err != nil {
		observability.RecordMalformed("payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload. Expected { source, tokens[] }"})
		return
	}
	if err := req.Validate(); err != nil {
		observability.RecordMalformed("payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload. Expected { source, tokens[] }"})
		return
	}

	// Acknowledgement does not wait for the merged batch to be processed.
	if _, err := s.ingestor.Ingest(r.Context(), req.Source, req.Tokens); err != nil {
		s.serverError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.WithError(err).WithField("operation", op).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "server_error"})
}

func intParam(v string, def int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve runs an http.Server for h on addr until ctx is done, then shuts it
// down within timeout.
func Serve(ctx context.Context, addr string, h http.Handler, timeout time.Duration, logger logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
