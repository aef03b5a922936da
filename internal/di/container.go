package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/catalog-console/api/internal/platform/config"
	"github.com/catalog-console/api/internal/repositories"
	"github.com/catalog-console/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Editor    services.ProductEditorService
	Submitter services.ProductSubmissionPipeline
	System    services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Deps carries collaborators that live outside the repository registry.
type Deps struct {
	Uploader services.AssetUploader
	// Events is optional; nil disables product event publishing.
	Events services.ProductEventPublisher
	// HealthChecks feed /readyz. Without checks no system service is built.
	HealthChecks []repositories.DependencyCheck
	Build        services.BuildInfo
	Logger       *zap.Logger
	Clock        func() time.Time
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Uploader == nil {
		return nil, errors.New("asset uploader is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Deps) (Services, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var svc Services

	submitter, err := services.NewProductSubmitter(services.ProductSubmissionDeps{
		Uploader:             deps.Uploader,
		Products:             reg.Products(),
		Events:               deps.Events,
		Logger:               logger.Named("submission"),
		Clock:                clock,
		MaxConcurrentUploads: cfg.Editor.MaxConcurrentUploads,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product submitter: %w", err)
	}
	svc.Submitter = submitter

	editor, err := services.NewProductEditorService(services.ProductEditorServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Submitter:  submitter,
		Clock:      clock,
		SessionTTL: cfg.Editor.SessionTTL,
		Logger:     logger.Named("editor"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product editor service: %w", err)
	}
	svc.Editor = editor

	if len(deps.HealthChecks) > 0 {
		healthRepo, err := repositories.NewDependencyHealthRepository(deps.HealthChecks)
		if err != nil {
			return Services{}, fmt.Errorf("build health repository: %w", err)
		}
		build := deps.Build
		if build.Environment == "" {
			build.Environment = cfg.Observability.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
