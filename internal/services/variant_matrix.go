package services

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	domain "github.com/catalog-console/api/internal/domain"
)

const maxSizeStock = math.MaxInt32

// ColorVariantPatch lists the color variant fields an operator may change. Nil fields are left untouched.
type ColorVariantPatch struct {
	Color *string
}

// SizeFieldsPatch lists the scalar size fields an operator may change. Stock and PriceModifier carry
// raw form input and are coerced to numbers; nil means the field was not supplied.
type SizeFieldsPatch struct {
	SKU           *string
	Stock         any
	PriceModifier any
}

// VariantMatrixStore owns the variant matrix of one editor session and applies every mutation to it.
// Operations never fail: unknown ids are ignored and raw input is clamped.
//
// The store does no locking; callers serialise access per session.
type VariantMatrixStore struct {
	matrix *domain.VariantMatrix
	newID  func() string
}

// NewVariantMatrixStore wraps the matrix. A nil matrix starts an empty one and a nil id generator
// falls back to ULIDs.
func NewVariantMatrixStore(matrix *domain.VariantMatrix, newID func() string) *VariantMatrixStore {
	if matrix == nil {
		matrix = &domain.VariantMatrix{}
	}
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &VariantMatrixStore{matrix: matrix, newID: newID}
}

// Snapshot returns a deep copy of the current matrix.
func (s *VariantMatrixStore) Snapshot() domain.VariantMatrix {
	return s.matrix.Clone()
}

// SizeOptions returns the session-wide size labels in insertion order.
func (s *VariantMatrixStore) SizeOptions() []string {
	return append([]string(nil), s.matrix.SizeOptions...)
}

// SetProductDetails replaces the product scalar fields.
func (s *VariantMatrixStore) SetProductDetails(details domain.ProductDetails) {
	if details.CompareAtPrice != nil {
		compare := *details.CompareAtPrice
		details.CompareAtPrice = &compare
	}
	s.matrix.Product = details
}

// MainImages exposes the product-level image set for image operations.
func (s *VariantMatrixStore) MainImages() *domain.ImageSet {
	return &s.matrix.MainImages
}

// VariantImages exposes a color variant's image set, or nil when the variant does not exist.
func (s *VariantMatrixStore) VariantImages(variantID string) *domain.ImageSet {
	variant := s.variant(variantID)
	if variant == nil {
		return nil
	}
	return &variant.Images
}

// AddColorVariant appends an empty color variant and returns its id.
func (s *VariantMatrixStore) AddColorVariant() string {
	id := s.newID()
	s.matrix.Variants = append(s.matrix.Variants, domain.ColorVariant{
		ID:    id,
		Sizes: []domain.SizeVariant{},
	})
	return id
}

// RemoveColorVariant deletes the variant together with its sizes.
func (s *VariantMatrixStore) RemoveColorVariant(variantID string) {
	index := s.matrix.FindVariant(variantID)
	if index < 0 {
		return
	}
	s.matrix.Variants = slices.Delete(s.matrix.Variants, index, index+1)
}

// UpdateColorVariant merges the permitted fields into the variant.
func (s *VariantMatrixStore) UpdateColorVariant(variantID string, patch ColorVariantPatch) {
	variant := s.variant(variantID)
	if variant == nil {
		return
	}
	if patch.Color != nil {
		variant.Color = *patch.Color
	}
}

// ToggleSize removes the size carrying label from the variant, or creates it when absent. A label
// not yet offered globally is added to the size options.
func (s *VariantMatrixStore) ToggleSize(variantID, label string) {
	label = strings.TrimSpace(label)
	variant := s.variant(variantID)
	if variant == nil || label == "" {
		return
	}
	s.AddGlobalSizeOption(label)

	if index := variant.FindSizeLabel(label); index >= 0 {
		variant.Sizes = slices.Delete(variant.Sizes, index, index+1)
		return
	}
	variant.Sizes = append(variant.Sizes, domain.SizeVariant{
		ID:         s.newID(),
		SizeLabel:  label,
		Attributes: map[string]domain.AttributeValue{},
	})
}

// AddGlobalSizeOption records a trimmed label unless it is blank or already present.
func (s *VariantMatrixStore) AddGlobalSizeOption(label string) {
	label = strings.TrimSpace(label)
	if label == "" || slices.Contains(s.matrix.SizeOptions, label) {
		return
	}
	s.matrix.SizeOptions = append(s.matrix.SizeOptions, label)
}

// UpdateSizeField merges scalar fields into the size. Unparseable numbers become 0 and stock is
// truncated to a non-negative integer.
func (s *VariantMatrixStore) UpdateSizeField(variantID, sizeID string, patch SizeFieldsPatch) {
	size := s.size(variantID, sizeID)
	if size == nil {
		return
	}
	if patch.SKU != nil {
		size.SKU = strings.TrimSpace(*patch.SKU)
	}
	if patch.Stock != nil {
		size.Stock = coerceStock(patch.Stock)
	}
	if patch.PriceModifier != nil {
		size.PriceModifier = coerceNumber(patch.PriceModifier)
	}
}

// SetSizeAttribute records one attribute value on a size without consulting any schema.
func (s *VariantMatrixStore) SetSizeAttribute(variantID, sizeID, name string, value domain.AttributeValue) {
	size := s.size(variantID, sizeID)
	if size == nil {
		return
	}
	if size.Attributes == nil {
		size.Attributes = make(map[string]domain.AttributeValue)
	}
	size.Attributes[name] = value
}

// BroadcastAttribute sets the same attribute value on every size of every color variant.
func (s *VariantMatrixStore) BroadcastAttribute(name string, value domain.AttributeValue) {
	for vi := range s.matrix.Variants {
		sizes := s.matrix.Variants[vi].Sizes
		for si := range sizes {
			if sizes[si].Attributes == nil {
				sizes[si].Attributes = make(map[string]domain.AttributeValue)
			}
			sizes[si].Attributes[name] = value
		}
	}
}

func (s *VariantMatrixStore) variant(variantID string) *domain.ColorVariant {
	index := s.matrix.FindVariant(variantID)
	if index < 0 {
		return nil
	}
	return &s.matrix.Variants[index]
}

func (s *VariantMatrixStore) size(variantID, sizeID string) *domain.SizeVariant {
	variant := s.variant(variantID)
	if variant == nil {
		return nil
	}
	index := variant.FindSize(sizeID)
	if index < 0 {
		return nil
	}
	return &variant.Sizes[index]
}

// MatrixFromRecord rebuilds an editable matrix from a persisted product. Every image slot is
// materialized and the size options are seeded from the stored size labels in first-seen order.
func MatrixFromRecord(record domain.ProductRecord, newID func() string) domain.VariantMatrix {
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	matrix := domain.VariantMatrix{
		Product: domain.ProductDetails{
			Name:        record.Name,
			Description: record.Description,
			CategoryID:  record.CategoryID,
			Price:       record.Price,
		},
		MainImages: imageSetFromResolved(record.MainImages),
		Variants:   make([]domain.ColorVariant, 0, len(record.Variants)),
	}
	if record.CompareAtPrice != nil {
		compare := *record.CompareAtPrice
		matrix.Product.CompareAtPrice = &compare
	}

	for _, stored := range record.Variants {
		variant := domain.ColorVariant{
			ID:     newID(),
			Color:  stored.Color,
			Images: imageSetFromResolved(stored.Images),
			Sizes:  make([]domain.SizeVariant, 0, len(stored.Sizes)),
		}
		for _, storedSize := range stored.Sizes {
			attributes := make(map[string]domain.AttributeValue, len(storedSize.Attributes))
			for name, raw := range storedSize.Attributes {
				attributes[name] = domain.AttributeValueFromRaw(raw)
			}
			variant.Sizes = append(variant.Sizes, domain.SizeVariant{
				ID:            newID(),
				SizeLabel:     storedSize.SizeLabel,
				SKU:           storedSize.SKU,
				PriceModifier: storedSize.PriceModifier,
				Stock:         storedSize.Stock,
				Attributes:    attributes,
			})
			label := strings.TrimSpace(storedSize.SizeLabel)
			if label != "" && !slices.Contains(matrix.SizeOptions, label) {
				matrix.SizeOptions = append(matrix.SizeOptions, label)
			}
		}
		matrix.Variants = append(matrix.Variants, variant)
	}
	return matrix
}

func imageSetFromResolved(resolved domain.ResolvedImages) domain.ImageSet {
	set := domain.ImageSet{}
	for _, url := range resolved.URLs {
		set.Images = append(set.Images, domain.UploadedSlot(url))
	}
	set.SetPrimary(resolved.PrimaryIndex)
	return set
}

// coerceNumber parses raw form input into a finite number, defaulting to 0.
func coerceNumber(raw any) float64 {
	var number float64
	switch value := raw.(type) {
	case float64:
		number = value
	case float32:
		number = float64(value)
	case int:
		number = float64(value)
	case int32:
		number = float64(value)
	case int64:
		number = float64(value)
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0
		}
		number = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0
		}
		number = parsed
	default:
		return 0
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0
	}
	return number
}

func coerceStock(raw any) int {
	return clampStock(coerceNumber(raw))
}

func clampStock(number float64) int {
	number = math.Trunc(number)
	switch {
	case math.IsNaN(number) || number < 0:
		return 0
	case number > maxSizeStock:
		return maxSizeStock
	default:
		return int(number)
	}
}
