// Package app builds and runs the courier service: it wires the cache
// store, sinks, and pipeline coordinator, and owns graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/api"
	"github.com/rashadk/media-courier/internal/clock/system"
	"github.com/rashadk/media-courier/internal/config"
	"github.com/rashadk/media-courier/internal/deliver"
	gcsuploader "github.com/rashadk/media-courier/internal/deliver/gcs"
	"github.com/rashadk/media-courier/internal/deliver/telegram"
	"github.com/rashadk/media-courier/internal/deliver/telegraph"
	"github.com/rashadk/media-courier/internal/fetch/ytdlp"
	"github.com/rashadk/media-courier/internal/id/uuid"
	"github.com/rashadk/media-courier/internal/logging"
	memorynotify "github.com/rashadk/media-courier/internal/notify/memory"
	pubsubnotify "github.com/rashadk/media-courier/internal/notify/pubsub"
	"github.com/rashadk/media-courier/internal/pipeline"
	"github.com/rashadk/media-courier/internal/policy/ratelimit"
	memorystore "github.com/rashadk/media-courier/internal/store/memory"
	pgstore "github.com/rashadk/media-courier/internal/store/postgres"
	sqlitestore "github.com/rashadk/media-courier/internal/store/sqlite"
	"github.com/rashadk/media-courier/internal/sweeper"
	"github.com/rashadk/media-courier/internal/transform/ffmpeg"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	coordinator  *pipeline.Coordinator
	sweep        *sweeper.Sweeper
	cache        pipeline.CacheStore
	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic
	gcsClient    *storage.Client
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("concurrency", cfg.Pipeline.Concurrency),
		zap.String("store_provider", cfg.Store.Provider),
	)

	cache, err := setupCacheStore(ctx, app)
	if err != nil {
		return nil, err
	}
	app.cache = cache

	sender, err := telegram.New(cfg.Telegram.Token, logger.Named("telegram"))
	if err != nil {
		return nil, fmt.Errorf("chat sender init failed: %w", err)
	}

	links := telegraph.New(telegraph.Config{
		BaseURL: cfg.Telegraph.BaseURL,
		Timeout: time.Duration(cfg.Telegraph.TimeoutSeconds) * time.Second,
	})

	cloud, err := setupCloudUploader(ctx, app)
	if err != nil {
		return nil, err
	}

	notifier, err := setupNotifier(ctx, app)
	if err != nil {
		return nil, err
	}

	fetcher := ytdlp.New(ytdlp.Config{
		Binary:      cfg.Fetch.Binary,
		MaxFileSize: cfg.Fetch.MaxFileSize,
		Retries:     cfg.Fetch.Retries,
		RetryDelay:  time.Duration(cfg.Fetch.RetryDelaySec) * time.Second,
	}, logger.Named("fetch"))

	transformer := ffmpeg.New(ffmpeg.Config{
		Binary:     cfg.Transform.Binary,
		Timeout:    cfg.TransformTimeout(),
		TargetSize: cfg.Transform.TargetSize,
	}, logger.Named("transform"))

	deliverer := deliver.New(deliver.Config{
		SizeThreshold:   cfg.Delivery.SizeThreshold,
		ChunkSize:       cfg.Delivery.ChunkSize,
		MaxArtifactSize: cfg.Delivery.MaxArtifactSize,
		SendRetries:     cfg.Delivery.SendRetries,
		SendBackoff:     time.Duration(cfg.Delivery.SendBackoffSec) * time.Second,
	}, sender, links, cloud, logger.Named("deliver"))

	hosts := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DefaultRPS,
		DefaultBurst: cfg.RateLimit.DefaultBurst,
	})

	clock := system.New()
	app.coordinator = pipeline.NewCoordinator(
		cache,
		pipeline.NewLimiter(cfg.Pipeline.Concurrency),
		fetcher,
		transformer,
		deliverer,
		sender,
		notifier,
		hosts,
		pipeline.NewModeration(),
		clock,
		uuid.NewGenerator(),
		pipeline.CoordinatorConfig{WorkDir: cfg.Pipeline.WorkDir},
		logger.Named("pipeline"),
	)

	app.sweep = sweeper.New(sweeper.Config{
		Dir:      cfg.Pipeline.WorkDir,
		Budget:   cfg.Sweep.Budget,
		MaxAge:   cfg.Retention(),
		Schedule: cfg.Sweep.Schedule,
	}, cache, app.coordinator.Tasks().Owns, clock, logger.Named("sweeper"))

	return app, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.sweep.Start(ctx); err != nil {
		return fmt.Errorf("sweeper start failed: %w", err)
	}

	apiServer := api.NewServer(ctx, a.coordinator, a.cfg.Pipeline.WorkDir, a.logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(_ context.Context) error {
	a.sweep.Stop()
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache store close failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func setupCacheStore(ctx context.Context, app *App) (pipeline.CacheStore, error) {
	switch app.cfg.Store.Provider {
	case "postgres":
		app.logger.Info("using postgres cache store", zap.String("table", app.cfg.Store.Table))
		cache, err := pgstore.New(ctx, pgstore.Config{
			DSN:   app.cfg.Store.DSN,
			Table: app.cfg.Store.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres cache store init failed: %w", err)
		}
		return cache, nil
	case "sqlite":
		app.logger.Info("using sqlite cache store", zap.String("data_dir", app.cfg.Store.DataDir))
		cache, err := sqlitestore.New(app.cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache store init failed: %w", err)
		}
		return cache, nil
	case "memory":
		app.logger.Info("using in-memory cache store")
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown cache store provider: %s", app.cfg.Store.Provider)
	}
}

func setupCloudUploader(ctx context.Context, app *App) (pipeline.CloudUploader, error) {
	if app.cfg.Storage.GCSBucket == "" {
		app.logger.Warn("no GCS bucket configured, cloud delivery disabled")
		return nil, nil
	}
	var err error
	app.gcsClient, err = storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	uploader, err := gcsuploader.New(app.gcsClient, gcsuploader.Config{
		Bucket: app.cfg.Storage.GCSBucket,
		Prefix: app.cfg.Storage.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs uploader init failed: %w", err)
	}
	app.logger.Info("cloud uploader initialized", zap.String("bucket", app.cfg.Storage.GCSBucket))
	return uploader, nil
}

func setupNotifier(ctx context.Context, app *App) (pipeline.Notifier, error) {
	if app.cfg.PubSub.ProjectID == "" || app.cfg.PubSub.TopicName == "" {
		app.logger.Warn("no Pub/Sub topic configured, operator notifications stay in-process")
		return memorynotify.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubTopic = app.pubsubClient.Topic(app.cfg.PubSub.TopicName)
	app.logger.Info("operator notifier initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return pubsubnotify.New(app.pubsubTopic), nil
}
