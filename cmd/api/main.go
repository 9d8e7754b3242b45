package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"studio/internal/analytics"
	"studio/internal/blobstore"
	"studio/internal/http/handlers"
	"studio/internal/http/httpapi"
	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/providers/genai"
	"studio/internal/uploads"
	"studio/internal/view"
)

func main() {
	_ = godotenv.Load(".env", ".env.local")

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Timeout: cfg.GenerateTimeout,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure gemini client")
	}

	var counter analytics.Counter
	if cfg.RedisURL != "" {
		redisCounter, err := analytics.NewRedisCounter(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to configure redis counter")
		}
		defer redisCounter.Close()
		counter = redisCounter
	} else {
		logger.Warn().Msg("api: REDIS_URL not set, using in-memory analytics counter")
		counter = analytics.NewMemoryCounter()
	}

	executor := imagegen.NewExecutor(imagegen.ExecutorOptions{
		Client:        client,
		Store:         store,
		Timeout:       cfg.GenerateTimeout,
		MaxReferences: cfg.MaxReferences,
		MaxRefBytes:   cfg.MaxUploadBytes,
		Logger:        &logger,
	})
	orchestrator := imagegen.NewOrchestrator(imagegen.OrchestratorOptions{
		Executor:  executor,
		MaxImages: cfg.MaxImagesPerRun,
		OnComplete: func(imagegen.StoredImage) {
			if _, err := counter.Incr(context.Background(), "images_completed"); err != nil {
				logger.Warn().Err(err).Msg("api: completion counter increment failed")
			}
		},
		Logger: &logger,
	})

	app := &handlers.App{
		Logger:       logger,
		Orchestrator: orchestrator,
		Uploads:      uploads.NewCoordinator(uploads.CoordinatorOptions{Store: store, MaxBytes: cfg.MaxUploadBytes, Logger: &logger}),
		Resolver:     view.NewResolver(view.ResolverOptions{Store: store, Logger: &logger}),
		Store:        store,
		Counter:      counter,
	}

	router := httpapi.NewRouter(app, logger, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("backend", cfg.StorageBackend).
			Str("model", cfg.GeminiModel).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Let in-flight generations report before exiting so their results land
	// in storage.
	orchestrator.Wait()
	logger.Info().Msg("server stopped")
}

func buildStore(ctx context.Context, cfg *infra.Config) (blobstore.Store, error) {
	switch cfg.StorageBackend {
	case "s3":
		return blobstore.NewS3Store(ctx, blobstore.S3Options{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			Endpoint:        cfg.S3Endpoint,
		})
	default:
		path := cfg.StoragePath
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		return blobstore.NewFileStore(path)
	}
}
