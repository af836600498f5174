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
	"inkflow/internal/infra"
	"inkflow/internal/providers/image"
	"inkflow/internal/scheduler"
	"inkflow/internal/storage"
)

// The worker runs the scheduler and batch processor without the HTTP
// surface, for deployments that split serving from background work.
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
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer dbpool.Close()

	fileStore, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	generator, err := image.NewOpenAIGenerator(image.OpenAIOptions{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure image provider")
	}

	jobRepo := repo.NewScheduledJobRepository(dbpool)
	sessionRepo := repo.NewSessionRepository(dbpool)
	batchRepo := repo.NewBatchRepository(dbpool)
	deviceRepo := repo.NewDeviceRepository(dbpool)

	notifier := devicesync.NewTRMNLNotifier(deviceRepo, &http.Client{Timeout: 30 * time.Second})
	clock := clockwork.NewRealClock()

	jobs := scheduler.New(jobRepo, sessionRepo, generator, fileStore, notifier, clock, logger)
	batches := batch.New(batchRepo, generator, fileStore, notifier, clock, logger)

	if err := jobs.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start job scheduler")
	}
	if err := batches.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start batch processor")
	}

	logger.Info().Msg("worker: started")
	<-ctx.Done()

	jobs.Stop()
	batches.Stop()
	logger.Info().Msg("worker: stopped")
}
