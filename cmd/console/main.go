package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/catalog-console/api/internal/di"
	"github.com/catalog-console/api/internal/handlers"
	"github.com/catalog-console/api/internal/platform/config"
	pfirestore "github.com/catalog-console/api/internal/platform/firestore"
	"github.com/catalog-console/api/internal/platform/jobs"
	"github.com/catalog-console/api/internal/platform/observability"
	platformstorage "github.com/catalog-console/api/internal/platform/storage"
	"github.com/catalog-console/api/internal/repositories"
	firestoreRepo "github.com/catalog-console/api/internal/repositories/firestore"
	"github.com/catalog-console/api/internal/services"
)

const (
	envBuildVersion   = "CONSOLE_BUILD_VERSION"
	envBuildCommitSHA = "CONSOLE_BUILD_COMMIT_SHA"
	envPubSubEmulator = "PUBSUB_EMULATOR_HOST"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "catalog console: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	baseLogger, err := observability.NewLogger(cfg.Observability.Environment)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("console")

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		return fmt.Errorf("initialise firestore client: %w", err)
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		return fmt.Errorf("initialise repositories: %w", err)
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("initialise storage client: %w", err)
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()
	objectWriter, err := platformstorage.NewGCSObjectWriter(storageClient)
	if err != nil {
		return fmt.Errorf("initialise object writer: %w", err)
	}
	uploader, err := platformstorage.NewImageUploader(objectWriter, cfg.Storage.AssetsBucket,
		platformstorage.WithMaxImageBytes(cfg.Storage.MaxImageBytes),
		platformstorage.WithUploadTimeout(cfg.Storage.UploadTimeout),
		platformstorage.WithPublicBaseURL(cfg.Storage.PublicBaseURL),
		platformstorage.WithObjectPrefix(cfg.Storage.ObjectPrefix),
	)
	if err != nil {
		return fmt.Errorf("initialise image uploader: %w", err)
	}

	events, topic, closePubSub, err := newProductEventPublisher(ctx, cfg.PubSub)
	if err != nil {
		return fmt.Errorf("initialise pubsub: %w", err)
	}
	defer closePubSub()
	if events == nil {
		logger.Info("product events disabled; no topic configured")
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Deps{
		Uploader:     uploader,
		Events:       events,
		HealthChecks: dependencyChecks(registry, storageClient.Bucket(cfg.Storage.AssetsBucket), topic),
		Build:        buildInfoFromEnv(cfg, startedAt),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	sweeper, err := jobs.NewSweeper("editor-sessions", cfg.Editor.SweepInterval, container.Services.Editor.SweepExpired,
		jobs.WithSweeperLogger(logger.Named("sweeper")),
	)
	if err != nil {
		return fmt.Errorf("initialise session sweeper: %w", err)
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfoFromEnv(cfg, startedAt))}
	if container.Services.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(container.Services.System))
	}
	editorHandlers := handlers.NewProductEditorHandlers(container.Services.Editor,
		handlers.WithMaxMultipartBytes(cfg.Storage.MaxMultipartBytes),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Observability.TraceProjectID),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithAdminRoutes(editorHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("catalog console listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-shutdown:
	}
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// newProductEventPublisher returns a nil publisher when no topic is configured.
func newProductEventPublisher(ctx context.Context, cfg config.PubSubConfig) (services.ProductEventPublisher, *pubsub.Topic, func(), error) {
	noop := func() {}
	if strings.TrimSpace(cfg.ProductEventsTopic) == "" {
		return nil, nil, noop, nil
	}
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		if err := os.Setenv(envPubSubEmulator, host); err != nil {
			return nil, nil, noop, err
		}
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, noop, err
	}
	topic := client.Topic(cfg.ProductEventsTopic)
	publisher, err := jobs.NewPubSubProductEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, noop, err
	}
	return publisher, topic, func() {
		topic.Stop()
		_ = client.Close()
	}, nil
}

func dependencyChecks(registry *firestoreRepo.Registry, bucket *cloudstorage.BucketHandle, topic *pubsub.Topic) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   registry.Ping,
		},
		{
			Name:    "storage",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				_, err := bucket.Attrs(ctx)
				return err
			},
		},
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	return checks
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv(envBuildVersion))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv(envBuildCommitSHA))
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Observability.Environment,
		StartedAt:   started,
	}
}
