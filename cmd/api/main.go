package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"inkflow/internal/adapter/repo"
	"inkflow/internal/batch"
	"inkflow/internal/devicesync"
	"inkflow/internal/http/handlers"
	httpapi "inkflow/internal/http/httpapi"
	"inkflow/internal/infra"
	"inkflow/internal/infra/geoip"
	"inkflow/internal/providers/image"
	"inkflow/internal/scheduler"
	"inkflow/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	fileStore, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	generator, err := image.NewOpenAIGenerator(image.OpenAIOptions{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure image provider")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, timezone defaults disabled")
	}
	if closer, ok := resolver.(*geoip.Resolver); ok && closer != nil {
		defer closer.Close()
	}

	jobRepo := repo.NewScheduledJobRepository(dbpool)
	sessionRepo := repo.NewSessionRepository(dbpool)
	batchRepo := repo.NewBatchRepository(dbpool)
	deviceRepo := repo.NewDeviceRepository(dbpool)

	notifier := devicesync.NewTRMNLNotifier(deviceRepo, &http.Client{Timeout: 30 * time.Second})
	clock := clockwork.NewRealClock()

	jobs := scheduler.New(jobRepo, sessionRepo, generator, fileStore, notifier, clock, logger)
	batches := batch.New(batchRepo, generator, fileStore, notifier, clock, logger)

	// With RUN_BACKGROUND=false the API only serves HTTP and a separate
	// worker process owns the scheduler and batch loops. Running both
	// here and in cmd/worker would execute every job twice.
	if cfg.RunBackground {
		if err := jobs.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start job scheduler")
		}
		defer jobs.Stop()
		if err := batches.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start batch processor")
		}
		defer batches.Stop()
	} else {
		logger.Info().Msg("background loops disabled, expecting a worker process")
	}

	app := handlers.NewApp(jobs, batches, resolver, logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
