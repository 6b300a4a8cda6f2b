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
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/classify"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/records"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/training"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/resilience"
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
	slog.Info("starting classifier service",
		"port", cfg.Server.Port,
		"records_driver", cfg.Records.Driver,
		"model_path", cfg.Model.Path,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	source, err := records.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open record store", "driver", cfg.Records.Driver, "error", err)
		os.Exit(1)
	}
	defer source.Close()

	store := modelstore.New(cfg.Model.Path)

	var (
		redisClient *pkgredis.Client
		cache       *classify.Cache
		locker      training.Locker
	)
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result caching and the shared training lock are disabled", "error", err)
	} else {
		defer redisClient.Close()
		breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
		cache = classify.NewCache(redisClient, cfg.Redis.CacheTTL, breaker)
		locker = redisClient
		slog.Info("classification cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	agg := analytics.NewAggregator()
	var recorder classify.Recorder = agg
	var (
		publisher training.Publisher
		collector *analytics.Collector
		consumers []*kafka.Consumer
	)
	if cfg.Kafka.Enabled {
		modelProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ModelTrained)
		defer modelProducer.Close()
		publisher = modelProducer

		eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ClassificationEvents)
		defer eventsProducer.Close()
		collector = analytics.NewCollector(eventsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		recorder = collector

		// Every replica must see every model announcement, so the reload
		// consumer group is unique per process.
		replica := uuid.NewString()[:8]
		if host, err := os.Hostname(); err == nil {
			replica = host + "-" + replica
		}
		consumers = append(consumers,
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ModelTrained, "reload-"+replica,
				training.ReloadHandler(store, m, func(ctx context.Context, snap *modelstore.Snapshot) {
					if cache == nil {
						return
					}
					if err := cache.Invalidate(ctx); err != nil {
						slog.Warn("cache invalidation after reload failed", "version", snap.Version, "error", err)
					}
				})),
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ClassificationEvents, "analytics", analytics.HandleEvent(agg)),
		)
		slog.Info("kafka enabled",
			"brokers", cfg.Kafka.Brokers,
			"model_topic", cfg.Kafka.Topics.ModelTrained,
			"events_topic", cfg.Kafka.Topics.ClassificationEvents,
		)
	}

	orch := training.NewOrchestrator(source, store, m, training.Options{
		Smoothing: cfg.Model.Smoothing,
		Timeout:   cfg.Model.TrainingTimeout,
		Locker:    locker,
		Publisher: publisher,
	})

	snap, err := orch.EnsureModel(ctx, cfg.Model.AllowAutoTrainOnMissingModel)
	if err != nil {
		slog.Error("no usable model, refusing to start; run the trainer first or enable model.allowAutoTrainOnMissingModel",
			"path", cfg.Model.Path,
			"error", err,
		)
		os.Exit(1)
	}
	slog.Info("model published",
		"version", snap.Version,
		"trained_at", snap.TrainedAt,
		"labels", len(snap.Model.Labels()),
		"documents", snap.Model.TotalDocuments(),
	)

	service := classify.NewService(store, cache, recorder, m)
	h := classify.NewHandler(service, store, orch, cfg.Model.MaxAge())
	analyticsH := analytics.NewHandler(agg)

	var snapshots *aggregator.Store
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
	} else {
		defer pg.Close()
		snapshots = aggregator.NewStore(pg)
	}

	limiter := ratelimit.New(cfg.Server.RetrainPerMinute, time.Minute)

	checker := health.NewChecker()
	checker.Register("model", func(ctx context.Context) health.ComponentHealth {
		snap, err := store.Get()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "version " + snap.Version}
	})
	checker.RegisterOptional("records", func(ctx context.Context) health.ComponentHealth {
		if err := source.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: cfg.Records.Driver}
	})
	checker.RegisterOptional("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	h.Register(mux, middleware.RateLimit(limiter))
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = middleware.Metrics(m)(mux)
	chain = middleware.Timeout(cfg.Server.WriteTimeout, classify.RetrainRoute)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		training.NewScheduler(orch, store, m, cfg.Model.MaxAge(), cfg.Model.RetrainInterval).Start(gctx)
		return nil
	})
	g.Go(func() error {
		limiter.StartCleanup(gctx, time.Minute)
		return nil
	})
	if collector != nil {
		g.Go(func() error {
			collector.Start(gctx)
			return nil
		})
	}
	for _, c := range consumers {
		g.Go(func() error {
			if err := c.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("kafka consumer stopped", "error", err)
			}
			return nil
		})
	}
	if snapshots != nil {
		g.Go(func() error {
			snapshots.StartPeriodicSave(gctx, agg, cfg.Analytics.SnapshotInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("classifier service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("classifier service error", "error", err)
		os.Exit(1)
	}
	slog.Info("classifier service stopped")
}
