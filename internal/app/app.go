// Package app wires configured backends for the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"solana-token-feed/internal/config"
	"solana-token-feed/internal/fetcher"
	"solana-token-feed/internal/storage"
	chstore "solana-token-feed/internal/storage/clickhouse"
	"solana-token-feed/internal/storage/memory"
	"solana-token-feed/internal/storage/migrations"
	pgstore "solana-token-feed/internal/storage/postgres"
	redisstore "solana-token-feed/internal/storage/redis"
)

// OpenStore connects the configured snapshot store, running migrations for
// the SQL backends when enabled. The returned store records latency metrics.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger logrus.FieldLogger) (storage.SnapshotStore, func(), error) {
	var (
		store   storage.SnapshotStore
		cleanup = func() {}
	)

	switch cfg.Backend {
	case config.StoreMemory:
		store = memory.NewSnapshotStore()

	case config.StoreRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		store = redisstore.NewSnapshotStore(client)
		cleanup = func() { client.Close() }

	case config.StorePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if cfg.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		store = pgstore.NewSnapshotStore(pool)
		cleanup = pool.Close

	case config.StoreClickHouse:
		var (
			conn *chstore.Conn
			err  error
		)
		if cfg.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
			if err == nil {
				logger.Info("clickhouse migrations applied")
			}
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		store = chstore.NewSnapshotStore(conn)
		cleanup = func() { conn.Close() }

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	logger.WithField("backend", cfg.Backend).Info("snapshot store ready")
	return storage.NewInstrumented(store, cfg.Backend), cleanup, nil
}

// OpenRedis connects the Redis client used by the bus.
func OpenRedis(ctx context.Context, url string) (*goredis.Client, error) {
	client, err := redisstore.NewClient(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to redis bus: %w", err)
	}
	return client, nil
}

// HTTPClient builds the upstream fetch client from configuration.
func HTTPClient(cfg config.FetchHTTPConfig) *fetcher.HTTPClient {
	opts := []fetcher.ClientOption{
		fetcher.WithMaxRetries(cfg.MaxRetries),
		fetcher.WithRateLimit(cfg.RateLimit, cfg.Burst),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, fetcher.WithTimeout(cfg.Timeout))
	}
	if cfg.RetryDelay > 0 {
		opts = append(opts, fetcher.WithRetryDelay(cfg.RetryDelay))
	}
	return fetcher.NewHTTPClient(opts...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. A second
// signal, or a graceful shutdown exceeding timeout, exits the process. Call
// the returned func once shutdown completes.
func SignalContext(logger logrus.FieldLogger, timeout time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("initiating graceful shutdown")
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(timeout):
			logger.WithField("timeout", timeout.String()).Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	}
}
