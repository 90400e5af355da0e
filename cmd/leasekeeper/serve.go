package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	leasekeeper "go-leasekeeper"
	"go-leasekeeper/api"
	"go-leasekeeper/boltstore"
	"go-leasekeeper/config"
	"go-leasekeeper/database"
	"go-leasekeeper/etcdstore"
	"go-leasekeeper/metrics"
	"go-leasekeeper/mongostore"
	"go-leasekeeper/redisstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the lease API server",
		Long: `Serve hosts the lease API on --addr backed by one of the stores:
memory, postgres, pgx, sqlite3, redis, bolt, mongo or etcd.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	cmd.Flags().StringVar(&cfg.StoreKind, "store", cfg.StoreKind, "Store backend")
	cmd.Flags().StringVar(&cfg.StoreDSN, "dsn", cfg.StoreDSN, "Store connection string, URL or file path")
	cmd.Flags().StringVar(&cfg.TableName, "table", cfg.TableName, "SQL table or MongoDB collection name")
	cmd.Flags().StringVar(&cfg.KeyPrefix, "prefix", cfg.KeyPrefix, "Redis and etcd key prefix")
	cmd.Flags().DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "How often expired leases are compacted (0 disables)")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	cmd.Flags().BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "Expose Prometheus metrics on /metrics")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	// Cancel context on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logger = newLogger(cfg.LogLevel)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	var (
		opts    = []leasekeeper.Option{leasekeeper.WithLogger(logger)}
		apiOpts = []api.Option{api.WithLogger(logger), api.WithWatchBuffer(cfg.WatchBuffer)}
	)
	if cfg.Metrics {
		var reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, leasekeeper.WithMetrics(metrics.New(reg)))
		apiOpts = append(apiOpts, api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	var (
		manager = leasekeeper.NewManager(store, opts...)
		sweeper = leasekeeper.NewSweeper(store, cfg.SweepInterval, opts...)
		server  = api.NewServer(manager, apiOpts...)
		srv     = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		}
		wg sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx) // exits when ctx is cancelled
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("leasekeeper up", "addr", cfg.HTTPAddr, "store", cfg.StoreKind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}

	wg.Wait()
	logger.Info("leasekeeper stopped")
	return nil
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg config.Config) (leasekeeper.Store, func() error, error) {
	var noop = func() error { return nil }

	switch cfg.StoreKind {
	case "memory":
		return leasekeeper.NewMemoryStore(), noop, nil

	case "postgres", "pgx", "sqlite3":
		if cfg.StoreDSN == "" {
			return nil, nil, fmt.Errorf("store %s requires --dsn", cfg.StoreKind)
		}
		db, dialect, err := database.Open(ctx, cfg.StoreKind, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := leasekeeper.NewSQLStore(ctx, db, dialect, cfg.TableName)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case "redis":
		var opts *redis.Options
		if strings.Contains(cfg.StoreDSN, "://") {
			parsed, err := redis.ParseURL(cfg.StoreDSN)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
			}
			opts = parsed
		} else {
			opts = &redis.Options{Addr: valueOr(cfg.StoreDSN, "localhost:6379")}
		}
		var client = redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return redisstore.New(client, cfg.KeyPrefix), client.Close, nil

	case "bolt":
		store, err := boltstore.Open(valueOr(cfg.StoreDSN, "leasekeeper.db"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case "mongo":
		store, client, err := mongostore.Connect(ctx, valueOr(cfg.StoreDSN, "mongodb://localhost:27017"), "leasekeeper", cfg.TableName)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return client.Disconnect(context.Background()) }, nil

	case "etcd":
		client, err := etcdstore.Dial(valueOr(cfg.StoreDSN, "localhost:2379"))
		if err != nil {
			return nil, nil, err
		}
		return etcdstore.New(client, "/"+cfg.KeyPrefix+"/resources"), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.StoreKind)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
