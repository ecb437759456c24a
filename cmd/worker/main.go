// Package main runs the upstream fetchers and posts their observations to a
// remote ingest endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"solana-token-feed/internal/api"
	"solana-token-feed/internal/app"
	"solana-token-feed/internal/config"
	"solana-token-feed/internal/fetcher"
	"solana-token-feed/internal/ingest"
	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file")
	ingestURL := flag.String("ingest-url", "", "Base URL of the ingest server (overrides config)")
	dex := flag.Bool("dexscreener", true, "Run the DexScreener fetcher")
	jup := flag.Bool("jupiter", false, "Run the Jupiter fetcher (needs a shared store to list tokens)")
	metricsAddr := flag.String("metrics-addr", ":9092", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *ingestURL != "" {
		cfg.Ingest.URL = *ingestURL
	}
	cfg.Fetchers.DexScreener.Enabled = *dex
	cfg.Fetchers.Jupiter.Enabled = *jup
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

	if err := run(ctx, cfg, *metricsAddr, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("worker error")
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, metricsAddr string, logger *logrus.Logger) error {
	httpClient := app.HTTPClient(cfg.Fetchers.HTTP)
	sink := ingest.NewClient(cfg.Ingest.URL, httpClient)

	var runners []*fetcher.Periodic

	if fc := cfg.Fetchers.DexScreener; fc.Enabled {
		d := fetcher.NewDexScreener(fetcher.DexScreenerOptions{
			Client: httpClient,
			URL:    fc.URL,
			Query:  fc.Query,
		})
		p, err := fetcher.NewPeriodic(d, sink, fetcher.PeriodicOptions{Interval: fc.Interval, Logger: logger})
		if err != nil {
			return err
		}
		runners = append(runners, p)
	}

	if fc := cfg.Fetchers.Jupiter; fc.Enabled {
		if cfg.Store.Backend == config.StoreMemory {
			return errors.New("jupiter fetcher needs a shared store backend")
		}
		store, cleanup, err := app.OpenStore(ctx, cfg.Store, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		j, err := fetcher.NewJupiter(fetcher.JupiterOptions{
			Client:      httpClient,
			Addresses:   store,
			URL:         fc.URL,
			ChunkSize:   fc.ChunkSize,
			Concurrency: fc.Concurrency,
			TopN:        fc.TopN,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		p, err := fetcher.NewPeriodic(j, sink, fetcher.PeriodicOptions{Interval: fc.Interval, Logger: logger})
		if err != nil {
			return err
		}
		runners = append(runners, p)
	}

	if len(runners) == 0 {
		return errors.New("no fetchers enabled")
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		go func() {
			if err := api.Serve(ctx, metricsAddr, mux, cfg.HTTP.ShutdownTimeout, logger); err != nil {
				logger.WithError(err).Error("metrics server error")
			}
		}()
	}

	logger.WithFields(logrus.Fields{
		"ingest_url": cfg.Ingest.URL,
		"fetchers":   len(runners),
	}).Info("worker started")

	var wg sync.WaitGroup
	for _, p := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}
