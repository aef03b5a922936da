package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/catalog-console/api/internal/domain"
	pfirestore "github.com/catalog-console/api/internal/platform/firestore"
)

const productsCollection = "products"

// ProductRepository persists submitted products as single documents.
type ProductRepository struct {
	base  *pfirestore.BaseRepository[productDocument]
	clock func() time.Time
	newID func() string
}

// ProductRepositoryOption customises the repository.
type ProductRepositoryOption func(*ProductRepository)

// WithProductClock overrides the timestamp source.
func WithProductClock(clock func() time.Time) ProductRepositoryOption {
	return func(r *ProductRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithProductIDGenerator overrides how new product ids are minted.
func WithProductIDGenerator(fn func() string) ProductRepositoryOption {
	return func(r *ProductRepository) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider, opts ...ProductRepositoryOption) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	repo := &ProductRepository{
		base:  pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
		clock: time.Now,
		newID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Create stores a new product under a freshly minted id.
func (r *ProductRepository) Create(ctx context.Context, payload domain.ProductPayload) (domain.ProductRecord, error) {
	id := r.newID()
	now := r.clock().UTC()
	doc := encodeProductDocument(payload, now, now)
	if _, err := r.base.Create(ctx, id, doc); err != nil {
		return domain.ProductRecord{}, err
	}
	return decodeProductDocument(id, doc), nil
}

// Update replaces the stored product while keeping its creation time.
func (r *ProductRepository) Update(ctx context.Context, productID string, payload domain.ProductPayload) (domain.ProductRecord, error) {
	productID = strings.TrimSpace(productID)
	saved, err := r.base.Replace(ctx, productID, func(current pfirestore.Document[productDocument]) (productDocument, error) {
		return encodeProductDocument(payload, current.Data.CreatedAt, r.clock().UTC()), nil
	})
	if err != nil {
		return domain.ProductRecord{}, err
	}
	return decodeProductDocument(productID, saved), nil
}

// FindByID loads a product for editing.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.ProductRecord, error) {
	productID = strings.TrimSpace(productID)
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.ProductRecord{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data), nil
}

type productDocument struct {
	Name           string            `firestore:"name"`
	Description    string            `firestore:"description"`
	CategoryID     string            `firestore:"categoryId"`
	Price          float64           `firestore:"price"`
	CompareAtPrice *float64          `firestore:"compareAtPrice"`
	MainImages     imagesDocument    `firestore:"mainImages"`
	Variants       []variantDocument `firestore:"variants"`
	VariantCount   int               `firestore:"variantCount"`
	CreatedAt      time.Time         `firestore:"createdAt"`
	UpdatedAt      time.Time         `firestore:"updatedAt"`
}

type imagesDocument struct {
	URLs         []string `firestore:"urls"`
	PrimaryIndex int      `firestore:"primaryIndex"`
}

type variantDocument struct {
	Color  string         `firestore:"color"`
	Images imagesDocument `firestore:"images"`
	Sizes  []sizeDocument `firestore:"sizes"`
}

type sizeDocument struct {
	SizeLabel     string         `firestore:"sizeLabel"`
	SKU           string         `firestore:"sku"`
	Stock         int            `firestore:"stock"`
	PriceModifier float64        `firestore:"priceModifier"`
	Attributes    map[string]any `firestore:"attributes"`
}

func encodeProductDocument(payload domain.ProductPayload, createdAt, updatedAt time.Time) productDocument {
	doc := productDocument{
		Name:           payload.Name,
		Description:    payload.Description,
		CategoryID:     payload.CategoryID,
		Price:          payload.Price,
		CompareAtPrice: payload.CompareAtPrice,
		MainImages:     encodeImages(payload.MainImages),
		Variants:       make([]variantDocument, 0, len(payload.Variants)),
		VariantCount:   len(payload.Variants),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
	for _, variant := range payload.Variants {
		sizes := make([]sizeDocument, 0, len(variant.Sizes))
		for _, size := range variant.Sizes {
			attrs := size.Attributes
			if attrs == nil {
				attrs = map[string]any{}
			}
			sizes = append(sizes, sizeDocument{
				SizeLabel:     size.SizeLabel,
				SKU:           size.SKU,
				Stock:         size.Stock,
				PriceModifier: size.PriceModifier,
				Attributes:    attrs,
			})
		}
		doc.Variants = append(doc.Variants, variantDocument{
			Color:  variant.Color,
			Images: encodeImages(variant.Images),
			Sizes:  sizes,
		})
	}
	return doc
}

func encodeImages(images domain.ResolvedImages) imagesDocument {
	urls := images.URLs
	if urls == nil {
		urls = []string{}
	}
	return imagesDocument{URLs: urls, PrimaryIndex: images.PrimaryIndex}
}

func decodeProductDocument(id string, doc productDocument) domain.ProductRecord {
	record := domain.ProductRecord{
		ID: id,
		ProductPayload: domain.ProductPayload{
			Name:           doc.Name,
			Description:    doc.Description,
			CategoryID:     doc.CategoryID,
			Price:          doc.Price,
			CompareAtPrice: doc.CompareAtPrice,
			MainImages:     decodeImages(doc.MainImages),
			Variants:       make([]domain.VariantPayload, 0, len(doc.Variants)),
		},
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	for _, variant := range doc.Variants {
		sizes := make([]domain.SizePayload, 0, len(variant.Sizes))
		for _, size := range variant.Sizes {
			attrs := size.Attributes
			if attrs == nil {
				attrs = map[string]any{}
			}
			sizes = append(sizes, domain.SizePayload{
				SizeLabel:     size.SizeLabel,
				SKU:           size.SKU,
				Stock:         size.Stock,
				PriceModifier: size.PriceModifier,
				Attributes:    attrs,
			})
		}
		record.Variants = append(record.Variants, domain.VariantPayload{
			Color:  variant.Color,
			Images: decodeImages(variant.Images),
			Sizes:  sizes,
		})
	}
	return record
}

func decodeImages(doc imagesDocument) domain.ResolvedImages {
	urls := append([]string{}, doc.URLs...)
	return domain.ResolvedImages{URLs: urls, PrimaryIndex: doc.PrimaryIndex}
}
