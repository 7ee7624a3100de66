package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bank-reconciliation-backend/internal/cache"
	"bank-reconciliation-backend/internal/config"
	handler "bank-reconciliation-backend/internal/handlers"
	"bank-reconciliation-backend/internal/locker"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/routes"
	"bank-reconciliation-backend/internal/scheduler"
	"bank-reconciliation-backend/internal/services/analytics"
	"bank-reconciliation-backend/internal/services/period"
	"bank-reconciliation-backend/internal/services/reconciliation"
	"bank-reconciliation-backend/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Config{Level: "info"})
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)
	log.Info().Msg("Starting bank reconciliation service")

	db, err := config.InitDB(cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if err := config.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// bg lives until shutdown; scheduled jobs and background imports use it.
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	ruleCache := cache.NewTTLCache[[]models.ReconciliationRule](cfg.CacheTTL)
	summaryCache := cache.NewTTLCache[*analytics.Summary](cfg.CacheTTL)
	store := repository.NewStore(db, repository.RetryPolicy{
		Attempts: cfg.Retry.Attempts,
		Backoff:  cfg.Retry.Backoff,
	}, ruleCache, log)
	agg := analytics.NewAggregator(store, summaryCache, log)

	opts := reconciliation.Options{
		Locker:    locker.New(),
		Summaries: agg,
		Workers:   cfg.AutoMatch.Workers,
		BatchSize: cfg.AutoMatch.BatchSize,
	}
	if cfg.Archive.Bucket != "" {
		archive, err := storage.NewS3Archive(bg, cfg.Archive, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize statement archive")
		}
		opts.Archive = archive
	}

	recon := reconciliation.NewReconciliationService(store, opts, log)
	periods := period.NewManager(store, agg, log)

	if n, err := recon.SeedDefaultRules(bg); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed default rules")
	} else if n > 0 {
		log.Info().Int("rules", n).Msg("Seeded default matching rules")
	}

	sched := scheduler.New(log)
	if err := registerJobs(bg, sched, recon, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.New(bg, recon, periods, agg, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           routes.NewRouter(h, cfg.CORSOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	sched.Stop()

	ctx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	imports := make(chan struct{})
	go func() {
		h.Wait()
		close(imports)
	}()
	select {
	case <-imports:
	case <-ctx.Done():
		log.Warn().Msg("Background imports still running, cancelling")
		cancel()
		<-imports
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("Server stopped")
}

func registerJobs(ctx context.Context, sched *scheduler.Scheduler, recon *reconciliation.ReconciliationService, cfg *config.Config, log zerolog.Logger) error {
	if cfg.AutoMatch.Schedule == "" {
		log.Info().Msg("Auto-match schedule empty, job disabled")
		return nil
	}
	return sched.AddJob(cfg.AutoMatch.Schedule, scheduler.NewAutoMatchJob(ctx, recon, cfg.AutoMatch.BatchSize, log))
}
