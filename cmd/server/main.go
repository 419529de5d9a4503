// Package main is the entry point for the subwatch service.
// It serves the currency, billing and renewal APIs and runs the scheduled
// rate warmup, cache prune and notification jobs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/aristath/subwatch/internal/clients/exchangerate"
	"github.com/aristath/subwatch/internal/clients/frankfurter"
	"github.com/aristath/subwatch/internal/config"
	"github.com/aristath/subwatch/internal/database"
	"github.com/aristath/subwatch/internal/metrics"
	"github.com/aristath/subwatch/internal/modules/billing"
	"github.com/aristath/subwatch/internal/modules/currency"
	"github.com/aristath/subwatch/internal/modules/notifications"
	"github.com/aristath/subwatch/internal/scheduler"
	"github.com/aristath/subwatch/internal/server"
	"github.com/aristath/subwatch/internal/store"
	"github.com/aristath/subwatch/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting subwatch")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	db, err := database.New(database.Config{Path: cfg.DatabasePath(), Name: "subwatch"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(context.Background(), store.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	repo := store.NewRepository(db.Conn(), log)

	converter, source := wireCurrency(cfg, m, log)
	engine := billing.NewEngine(converter, m, log)
	runner := notifications.NewRunner(repo, repo, notifications.NewLogDispatcher(log), engine, notifications.RunnerConfig{
		Currency:    cfg.DefaultCurrency,
		Concurrency: cfg.NotifyWorkers,
	}, m, log)

	sched := scheduler.New(log)
	warmup := currency.NewRateWarmupJob(converter, cfg.Rates.WarmBases, cfg.Rates.WarmCurrencies, log)
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedules.RateWarmup, warmup},
		{cfg.Schedules.CachePrune, currency.NewCachePruneJob(converter.Cache(), cfg.Rates.StaleRetention, log)},
		{cfg.Schedules.MonthlySummary, notifications.NewMonthlySummaryJob(runner, log)},
		{cfg.Schedules.RenewalAlerts, notifications.NewRenewalAlertJob(runner, log)},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			log.Fatal().Err(err).Str("job", j.job.Name()).Msg("Failed to register job")
		}
	}

	// Warm the cache once so the first requests do not wait on providers
	go func() {
		if err := sched.RunNow(warmup); err != nil {
			log.Warn().Err(err).Msg("Initial rate warmup failed")
		}
	}()
	sched.Start()

	srv := server.New(server.Config{
		Log:             log,
		Converter:       converter,
		Engine:          engine,
		Providers:       source.Providers(),
		Gatherer:        registry,
		DB:              db,
		Scheduler:       sched,
		DefaultCurrency: cfg.DefaultCurrency,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
}

// wireCurrency builds the provider chain (primary first), the cache and the converter
func wireCurrency(cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) (*currency.Converter, *currency.RateSource) {
	httpClient := &http.Client{Timeout: cfg.Rates.ProviderTimeout}

	providers := []currency.Provider{
		currency.WithCircuitBreaker(exchangerate.NewClient(cfg.Rates.PrimaryURL, httpClient, log), log),
		currency.WithCircuitBreaker(frankfurter.NewClient(cfg.Rates.FallbackURL, httpClient, log), log),
	}
	source := currency.NewRateSource(providers, cfg.Rates.ProviderTimeout, m, log)
	cache := currency.NewRateCache(cfg.Rates.CacheTTL)
	return currency.NewConverter(source, cache, m, log), source
}
