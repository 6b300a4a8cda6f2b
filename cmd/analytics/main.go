// Command analytics runs the standalone classification analytics service.
//
// It consumes classification events from Kafka, aggregates the label
// distribution, cache hit ratio and latency percentiles in memory, snapshots
// them to PostgreSQL, and serves GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka.enabled")
		os.Exit(1)
	}
	slog.Info("starting analytics service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.ClassificationEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ClassificationEvents, "analytics-service", analytics.HandleEvent(agg))

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	snapshots := aggregator.NewStore(pg)
	if last, err := snapshots.LatestSnapshot(ctx); err != nil {
		slog.Warn("reading last snapshot failed", "error", err)
	} else if last != nil {
		slog.Info("last snapshot", "total_classifications", last.TotalClassifications, "labels", len(last.Labels))
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = middleware.Metrics(m)(mux)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("analytics consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		snapshots.StartPeriodicSave(gctx, agg, cfg.Analytics.SnapshotInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("analytics service error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
