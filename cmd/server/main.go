// Package main runs the API, ingest collector, aggregator, WebSocket feed
// and optional fetchers in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"solana-token-feed/internal/aggregator"
	"solana-token-feed/internal/api"
	"solana-token-feed/internal/app"
	"solana-token-feed/internal/config"
	"solana-token-feed/internal/fetcher"
	"solana-token-feed/internal/ingest"
	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/pubsub"
	"solana-token-feed/internal/storage"
	"solana-token-feed/internal/stream"
)

// Server holds all components of the unified service.
type Server struct {
	cfg    *config.Config
	logger *logrus.Logger

	store      storage.SnapshotStore
	hub        *stream.Hub
	broker     *pubsub.Broker
	bus        *pubsub.RedisBus
	aggregator *aggregator.Aggregator
	collector  *ingest.Collector
	fetchers   []*fetcher.Periodic
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	storeBackend := flag.String("store", "", "Snapshot store backend: memory, redis, postgres, clickhouse")
	busBackend := flag.String("bus", "", "Change bus backend: memory, redis")
	fetch := flag.Bool("fetch", false, "Run the DexScreener and Jupiter fetchers in-process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *storeBackend != "" {
		cfg.Store.Backend = *storeBackend
	}
	if *busBackend != "" {
		cfg.Bus.Backend = *busBackend
	}
	if *fetch {
		cfg.Fetchers.DexScreener.Enabled = true
		cfg.Fetchers.Jupiter.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, done := app.SignalContext(logger, cfg.HTTP.ShutdownTimeout)
	defer done()

	store, cleanup, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open store")
	}
	defer cleanup()

	s := &Server{cfg: cfg, logger: logger, store: store}
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("server error")
	}
	logger.Info("shutdown complete")
}

// Run builds the pipeline, serves HTTP until ctx is done and then shuts the
// components down in order.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var redisClient *goredis.Client
	if s.cfg.Bus.Backend == config.BusRedis {
		client, err := app.OpenRedis(ctx, s.cfg.Bus.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		redisClient = client
	}

	if err := s.build(redisClient); err != nil {
		return err
	}
	defer s.shutdown()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	goRun := func(name string, f func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	switch {
	case s.bus != nil:
		goRun("change subscription", func(ctx context.Context) error {
			return s.bus.SubscribeChanges(ctx, s.hub.HandlePayload)
		})
		if s.aggregator != nil {
			goRun("raw subscription", func(ctx context.Context) error {
				return s.bus.SubscribeRaw(ctx, s.aggregator.HandleMessage)
			})
		}
	default:
		changes, cancel := s.broker.Subscribe(256)
		goRun("change fan-out", func(ctx context.Context) error {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case c, ok := <-changes:
					if !ok {
						return nil
					}
					_ = s.hub.Publish(ctx, c)
				}
			}
		})
	}

	for _, p := range s.fetchers {
		goRun("fetcher", p.Run)
	}

	apiServer, err := api.New(api.Options{
		Store:     s.store,
		Ingestor:  s.collector,
		WebSocket: s.hub,
		Logger:    s.logger,
	})
	if err != nil {
		return err
	}
	goRun("http", func(ctx context.Context) error {
		return api.Serve(ctx, s.cfg.HTTP.Addr, apiServer.Handler(), s.cfg.HTTP.ShutdownTimeout, s.logger)
	})

	s.logger.WithFields(logrus.Fields{
		"addr":       s.cfg.HTTP.Addr,
		"store":      s.cfg.Store.Backend,
		"bus":        s.cfg.Bus.Backend,
		"aggregator": s.aggregator != nil,
		"fetchers":   len(s.fetchers),
	}).Info("server started")

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}
	cancel()
	wg.Wait()
	return runErr
}

// build creates the components. With the memory bus the aggregator is always
// embedded and fed directly by the collector.
func (s *Server) build(redisClient *goredis.Client) error {
	cfg := s.cfg
	s.hub = stream.NewHub(nil, s.logger)

	var (
		publisher pubsub.ChangePublisher
		sink      ingest.CandidateSink
	)
	if redisClient != nil {
		s.bus = pubsub.NewRedisBus(redisClient, pubsub.RedisBusOptions{
			RawChannel:    cfg.Bus.RawChannel,
			ChangeChannel: cfg.Bus.ChangeChannel,
			Logger:        s.logger,
		})
		publisher = s.bus
		sink = s.bus
	} else {
		s.broker = pubsub.NewBroker()
		publisher = s.broker
	}

	if cfg.Aggregator.Embedded || s.bus == nil {
		thresholds, err := cfg.Thresholds()
		if err != nil {
			return err
		}
		priorities, err := cfg.Priorities()
		if err != nil {
			return err
		}
		agg, err := aggregator.New(aggregator.Options{
			Store:       s.store,
			Publisher:   publisher,
			Window:      cfg.Aggregator.Window,
			Mode:        aggregator.Mode(cfg.Aggregator.Mode),
			Concurrency: cfg.Aggregator.Concurrency,
			Thresholds:  &thresholds,
			Priorities:  &priorities,
			Logger:      s.logger,
		})
		if err != nil {
			return fmt.Errorf("create aggregator: %w", err)
		}
		if err := agg.Start(); err != nil {
			return err
		}
		s.aggregator = agg
		if s.bus == nil {
			sink = agg
		}
	}

	priorities, err := cfg.Priorities()
	if err != nil {
		return err
	}
	collector, err := ingest.NewCollector(ingest.Options{
		Sink:                 sink,
		Window:               cfg.Ingest.Window,
		Priorities:           &priorities,
		RequireSolanaAddress: cfg.Ingest.RequireSolanaAddress,
		Logger:               s.logger,
	})
	if err != nil {
		return fmt.Errorf("create collector: %w", err)
	}
	if err := collector.Start(); err != nil {
		return err
	}
	s.collector = collector

	fetchers, err := buildFetchers(cfg, s.store, collector, s.logger)
	if err != nil {
		return err
	}
	s.fetchers = fetchers
	return nil
}

// shutdown flushes the collector into the aggregator, then the aggregator
// into the store, and finally disconnects WebSocket clients.
func (s *Server) shutdown() {
	start := time.Now()
	if s.collector != nil {
		s.collector.Stop()
	}
	if s.aggregator != nil {
		s.aggregator.Stop()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.broker != nil {
		s.broker.Close()
	}
	s.logger.WithField("duration", time.Since(start).String()).Info("components stopped")
}

func buildFetchers(cfg *config.Config, addrs fetcher.AddressSource, sink fetcher.Sink, logger logrus.FieldLogger) ([]*fetcher.Periodic, error) {
	httpClient := app.HTTPClient(cfg.Fetchers.HTTP)
	var out []*fetcher.Periodic

	if fc := cfg.Fetchers.DexScreener; fc.Enabled {
		d := fetcher.NewDexScreener(fetcher.DexScreenerOptions{
			Client: httpClient,
			URL:    fc.URL,
			Query:  fc.Query,
		})
		p, err := fetcher.NewPeriodic(d, sink, fetcher.PeriodicOptions{Interval: fc.Interval, Logger: logger})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	if fc := cfg.Fetchers.Jupiter; fc.Enabled {
		j, err := fetcher.NewJupiter(fetcher.JupiterOptions{
			Client:      httpClient,
			Addresses:   addrs,
			URL:         fc.URL,
			ChunkSize:   fc.ChunkSize,
			Concurrency: fc.Concurrency,
			TopN:        fc.TopN,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		p, err := fetcher.NewPeriodic(j, sink, fetcher.PeriodicOptions{Interval: fc.Interval, Logger: logger})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, nil
}
