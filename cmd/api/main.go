package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"viba/internal/adapter/repo"
	"viba/internal/artifact"
	"viba/internal/genai"
	"viba/internal/generate"
	"viba/internal/history"
	"viba/internal/http/handlers"
	"viba/internal/http/httpapi"
	"viba/internal/infra"
	"viba/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	backend := newBackend(ctx, cfg, logger)
	store := artifact.NewStore(backend, cfg.StoragePublicURL, cfg.SignedURLLifetime, logger)
	recorder := history.NewRecorder(repo.NewGenerationRepository(dbpool), store, logger)

	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generation client")
	}

	orchestrator := generate.NewOrchestrator(client, cfg.Models, logger)
	jobQueue := queue.New(generate.NewProcessor(orchestrator, logger), logger)

	queueCtx, stopQueue := context.WithCancel(ctx)
	jobQueue.Start(queueCtx)

	app := handlers.NewApp(cfg, logger, jobQueue, recorder)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	stopQueue()
	jobQueue.Stop()
	logger.Info().Msg("server stopped")
}

// newBackend selects the artifact backend from configuration. A nil backend
// leaves the store unconfigured; generations then return inline payloads only.
func newBackend(ctx context.Context, cfg *infra.Config, logger infra.Logger) artifact.ObjectBackend {
	if !cfg.ObjectStorageConfigured() {
		logger.Warn().Msg("object storage not configured, artifacts stay inline")
		return nil
	}

	switch cfg.StorageProvider {
	case "filesystem", "local":
		backend, err := artifact.NewFileBackend(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize filesystem storage")
		}
		return backend
	default:
		backend, err := artifact.NewS3Backend(ctx, artifact.S3Options{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Bucket:          cfg.R2Bucket,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize object storage")
		}
		return backend
	}
}
