package repositories

import (
	"context"

	domain "github.com/catalog-console/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Categories() CategoryRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository is the catalog persistence collaborator the submission pipeline hands payloads to.
type ProductRepository interface {
	Create(ctx context.Context, payload domain.ProductPayload) (domain.ProductRecord, error)
	// Update replaces the stored product. Returns a RepositoryError with IsNotFound when the id is unknown.
	Update(ctx context.Context, productID string, payload domain.ProductPayload) (domain.ProductRecord, error)
	FindByID(ctx context.Context, productID string) (domain.ProductRecord, error)
}

// CategoryRepository is the read-only category data source consumed when a category is selected.
type CategoryRepository interface {
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
}
