package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/vendor-negotiation/cmd/mainconfig"
	"github.com/wolfman30/vendor-negotiation/internal/api/router"
	"github.com/wolfman30/vendor-negotiation/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vendor-negotiation/internal/config"
	"github.com/wolfman30/vendor-negotiation/internal/deadletter"
	"github.com/wolfman30/vendor-negotiation/internal/http/handlers"
	"github.com/wolfman30/vendor-negotiation/internal/negotiation"
	"github.com/wolfman30/vendor-negotiation/internal/observability/metrics"
	"github.com/wolfman30/vendor-negotiation/internal/retry"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(".env"); err != nil {
		logging.Default().Warn("failed to read .env", "error", err)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting vendor-negotiation API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	metricsHandler, resilienceMetrics := setupMetrics()

	model, closeModel, err := bootstrap.BuildModel(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build model", "error", err)
		os.Exit(1)
	}
	defer closeModel()

	store := deadletter.NewStore(
		deadletter.WithLogger(logger.Component("deadletter")),
		deadletter.WithMetrics(resilienceMetrics),
	)
	guard, err := negotiation.NewGuard(negotiation.GuardConfig{
		Invoker: retry.NewInvoker(
			retry.WithLogger(logger.Component("retry")),
			retry.WithMetrics(resilienceMetrics),
		),
		Policy:      cfg.RetryPolicy(),
		DeadLetters: store,
		Logger:      logger.Component("negotiation"),
		Metrics:     resilienceMetrics,
	})
	if err != nil {
		logger.Error("invalid retry configuration", "error", err)
		os.Exit(1)
	}
	replayer := deadletter.NewReplayer(store)
	guard.RegisterReplays(replayer, model)

	backends := bootstrap.DeadLetterBackends{AWS: &awsCfg}
	if cfg.DeadLetterBackend == "redis" {
		backends.Redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if backends.Redis != nil {
			defer func() { _ = backends.Redis.Close() }()
		}
	}
	if cfg.DeadLetterBackend == "postgres" {
		pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		if pool != nil {
			defer pool.Close()
		}
		backends.Postgres = pool
	}
	worker, err := bootstrap.BuildSnapshotWorker(cfg, store, backends, logger)
	if err != nil {
		logger.Error("failed to configure dead letter export", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	if worker != nil {
		if n, err := worker.Restore(ctx); err != nil {
			logger.Warn("failed to restore dead letters; snapshot saves paused until a load succeeds", "error", err)
		} else if n > 0 {
			logger.Info("restored dead letters from snapshot", "count", n)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	r := router.New(&router.Config{
		Logger:         logger,
		Negotiation:    handlers.NewNegotiationHandler(guard, model, logger),
		DeadLetters:    handlers.NewDeadLetterHandler(store, replayer, logger),
		OpsJWTSecret:   cfg.OpsJWTSecret,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	wg.Wait()
	logger.Info("server stopped")
}

func setupMetrics() (http.Handler, *metrics.ResilienceMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewResilienceMetrics(reg)
}
