package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/catalog-console/api/internal/domain"
	pfirestore "github.com/catalog-console/api/internal/platform/firestore"
)

const categoriesCollection = "categories"

// CategoryRepository reads category documents. Attribute and filter definitions are returned
// in whatever shape the document stores them; services normalise them.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[map[string]any]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository: firestore provider is required")
	}
	return &CategoryRepository{
		base: pfirestore.NewBaseRepository(provider, categoriesCollection, pfirestore.MapDecoder()),
	}, nil
}

// FindByID fetches a single category.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		return domain.Category{}, err
	}
	return decodeCategory(doc.ID, doc.Data), nil
}

func decodeCategory(id string, data map[string]any) domain.Category {
	category := domain.Category{ID: id}
	if name, ok := data["name"].(string); ok {
		category.Name = strings.TrimSpace(name)
	}
	category.Attributes = data["attributes"]
	category.Filters = data["filters"]
	return category
}
