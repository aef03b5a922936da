package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/catalog-console/api/internal/platform/firestore"
	"github.com/catalog-console/api/internal/repositories"
)

// Registry exposes the Firestore repositories sharing one provider.
type Registry struct {
	provider   *pfirestore.Provider
	products   *ProductRepository
	categories *CategoryRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository against the provider.
func NewRegistry(provider *pfirestore.Provider, productOpts ...ProductRepositoryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	products, err := NewProductRepository(provider, productOpts...)
	if err != nil {
		return nil, err
	}
	categories, err := NewCategoryRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, products: products, categories: categories}, nil
}

// Products returns the product repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Categories returns the category repository.
func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }

// Ping probes the categories collection, the first read every editor session makes.
func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx, categoriesCollection)
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
