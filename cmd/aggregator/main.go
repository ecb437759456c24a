// Package main consumes intake batches from the Redis raw channel, reconciles
// them against the snapshot store and publishes changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"solana-token-feed/internal/aggregator"
	"solana-token-feed/internal/api"
	"solana-token-feed/internal/app"
	"solana-token-feed/internal/config"
	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/pubsub"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file")
	storeBackend := flag.String("store", "", "Snapshot store backend: memory, redis, postgres, clickhouse")
	mode := flag.String("mode", "", "Batching mode: per_window or per_arrival")
	metricsAddr := flag.String("metrics-addr", ":9091", "Health and metrics HTTP address (empty to disable)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *storeBackend != "" {
		cfg.Store.Backend = *storeBackend
	}
	if *mode != "" {
		cfg.Aggregator.Mode = *mode
	}
	cfg.Bus.Backend = config.BusRedis
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
		logger.WithError(err).Fatal("aggregator error")
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, metricsAddr string, logger *logrus.Logger) error {
	store, cleanup, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := app.OpenRedis(ctx, cfg.Bus.RedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	bus := pubsub.NewRedisBus(client, pubsub.RedisBusOptions{
		RawChannel:    cfg.Bus.RawChannel,
		ChangeChannel: cfg.Bus.ChangeChannel,
		Logger:        logger,
	})

	thresholds, err := cfg.Thresholds()
	if err != nil {
		return err
	}
	priorities, err := cfg.Priorities()
	if err != nil {
		return err
	}
	agg, err := aggregator.New(aggregator.Options{
		Store:       store,
		Publisher:   bus,
		Window:      cfg.Aggregator.Window,
		Mode:        aggregator.Mode(cfg.Aggregator.Mode),
		Concurrency: cfg.Aggregator.Concurrency,
		Thresholds:  &thresholds,
		Priorities:  &priorities,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create aggregator: %w", err)
	}
	if err := agg.Start(); err != nil {
		return err
	}
	defer agg.Stop()

	if metricsAddr != "" {
		srv, err := api.New(api.Options{Store: store, Logger: logger})
		if err != nil {
			return err
		}
		go func() {
			if err := api.Serve(ctx, metricsAddr, srv.Handler(), cfg.HTTP.ShutdownTimeout, logger); err != nil {
				logger.WithError(err).Error("metrics server error")
			}
		}()
	}

	logger.WithFields(logrus.Fields{
		"channel": cfg.Bus.RawChannel,
		"store":   cfg.Store.Backend,
		"mode":    cfg.Aggregator.Mode,
	}).Info("aggregator consuming")
	return bus.SubscribeRaw(ctx, agg.HandleMessage)
}
