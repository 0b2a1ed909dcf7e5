package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hiregauge/hiregauge/infrastructure/httpapi"
	"github.com/hiregauge/hiregauge/infrastructure/middleware"
	"github.com/hiregauge/hiregauge/internal/application"
	"github.com/hiregauge/hiregauge/internal/config"
	"github.com/hiregauge/hiregauge/internal/logging"
	"github.com/hiregauge/hiregauge/internal/ports"
)

// gaugeInterval is how often the background updater refreshes system
// gauges.
const gaugeInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evaluation HTTP service",
	Long: `Start the HTTP service: signal ingestion, evaluation reads, weight
profile lookups, health, and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Root context cancels on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewPrometheusMetrics(middleware.WithRegistry(registry))

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := newEngine(ctx, cfg, store,
		application.WithLogger(logger),
		application.WithMetrics(metrics),
		application.WithObserver(middleware.NewOTelEvaluationObserver()),
	)
	if err != nil {
		return err
	}

	api, err := httpapi.NewServer(engine,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(metrics),
		httpapi.WithGatherer(registry),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go updateSystemGauges(ctx, store, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("market", cfg.Market.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// updateSystemGauges periodically publishes runtime and store gauges.
func updateSystemGauges(ctx context.Context, store ports.SignalStore, metrics ports.MetricsCollector, logger *zap.Logger) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordGauge("goroutines", float64(runtime.NumGoroutine()), nil)

			candidates, err := store.Candidates(ctx)
			if err != nil {
				logger.Warn("listing candidates for gauges", zap.Error(err))
				continue
			}
			metrics.RecordGauge("candidates_known", float64(len(candidates)), nil)
		}
	}
}
