package di

import (
	"context"
	"testing"
	"time"

	domain "github.com/catalog-console/api/internal/domain"
	"github.com/catalog-console/api/internal/platform/config"
	"github.com/catalog-console/api/internal/repositories"
	"github.com/catalog-console/api/internal/services"
)

type memoryRegistry struct {
	closed bool
}

func (r *memoryRegistry) Close(context.Context) error { r.closed = true; return nil }

func (r *memoryRegistry) Products() repositories.ProductRepository { return memoryProducts{} }

func (r *memoryRegistry) Categories() repositories.CategoryRepository { return memoryCategories{} }

type memoryProducts struct{}

func (memoryProducts) Create(_ context.Context, payload domain.ProductPayload) (domain.ProductRecord, error) {
	return domain.ProductRecord{ID: "prod-1", ProductPayload: payload}, nil
}

func (memoryProducts) Update(_ context.Context, id string, payload domain.ProductPayload) (domain.ProductRecord, error) {
	return domain.ProductRecord{ID: id, ProductPayload: payload}, nil
}

func (memoryProducts) FindByID(context.Context, string) (domain.ProductRecord, error) {
	return domain.ProductRecord{}, services.ErrEditorProductNotFound
}

type memoryCategories struct{}

func (memoryCategories) FindByID(_ context.Context, id string) (domain.Category, error) {
	return domain.Category{ID: id}, nil
}

type memoryUploader struct{}

func (memoryUploader) UploadImage(_ context.Context, image domain.PendingImage) (string, error) {
	return "https://cdn.example.com/" + image.FileName, nil
}

func TestNewContainerBuildsEditorServices(t *testing.T) {
	reg := &memoryRegistry{}
	cfg := config.Config{Editor: config.EditorConfig{SessionTTL: time.Hour, MaxConcurrentUploads: 4}}

	container, err := NewContainer(context.Background(), cfg, reg, Deps{
		Uploader: memoryUploader{},
		HealthChecks: []repositories.DependencyCheck{
			{Name: "firestore", Check: func(context.Context) error { return nil }},
		},
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if container.Services.Editor == nil || container.Services.Submitter == nil || container.Services.System == nil {
		t.Fatalf("expected all services to be wired: %+v", container.Services)
	}

	snapshot, err := container.Services.Editor.OpenSession(context.Background(), services.OpenSessionCommand{CategoryID: "tees"})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if snapshot.CategoryID != "tees" {
		t.Fatalf("expected category tees, got %q", snapshot.CategoryID)
	}

	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !reg.closed {
		t.Fatalf("expected registry to be closed")
	}
}

func TestNewContainerSkipsSystemServiceWithoutChecks(t *testing.T) {
	container, err := NewContainer(context.Background(), config.Config{}, &memoryRegistry{}, Deps{Uploader: memoryUploader{}})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if container.Services.System != nil {
		t.Fatalf("expected no system service without health checks")
	}
}

func TestNewContainerRequiresCollaborators(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil, Deps{Uploader: memoryUploader{}}); err == nil {
		t.Fatalf("expected error without registry")
	}
	if _, err := NewContainer(context.Background(), config.Config{}, &memoryRegistry{}, Deps{}); err == nil {
		t.Fatalf("expected error without uploader")
	}
}
