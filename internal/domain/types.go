package domain

import (
	"time"
)

// SizeVariant is one size option within a color variant.
type SizeVariant struct {
	ID            string
	SizeLabel     string
	SKU           string
	PriceModifier float64
	Stock         int
	Attributes    map[string]AttributeValue
}

// Clone returns a deep copy of the size variant.
func (s SizeVariant) Clone() SizeVariant {
	out := s
	if s.Attributes != nil {
		out.Attributes = make(map[string]AttributeValue, len(s.Attributes))
		for name, value := range s.Attributes {
			out.Attributes[name] = value
		}
	}
	return out
}

// ColorVariant is one color option of a product owning its images and sizes.
type ColorVariant struct {
	ID     string
	Color  string
	Images ImageSet
	Sizes  []SizeVariant
}

// Clone returns a deep copy of the color variant.
func (c ColorVariant) Clone() ColorVariant {
	out := ColorVariant{
		ID:     c.ID,
		Color:  c.Color,
		Images: c.Images.Clone(),
	}
	if c.Sizes != nil {
		out.Sizes = make([]SizeVariant, len(c.Sizes))
		for i, size := range c.Sizes {
			out.Sizes[i] = size.Clone()
		}
	}
	return out
}

// FindSize returns the index of the size with the given id or -1.
func (c ColorVariant) FindSize(sizeID string) int {
	for i, size := range c.Sizes {
		if size.ID == sizeID {
			return i
		}
	}
	return -1
}

// FindSizeLabel returns the index of the size with the given label or -1.
func (c ColorVariant) FindSizeLabel(label string) int {
	for i, size := range c.Sizes {
		if size.SizeLabel == label {
			return i
		}
	}
	return -1
}

// ProductDetails holds the product scalar fields edited alongside the variant matrix.
type ProductDetails struct {
	Name           string
	Description    string
	CategoryID     string
	Price          float64
	CompareAtPrice *float64
}

// VariantMatrix is the aggregate edited during one product editor session.
type VariantMatrix struct {
	Product     ProductDetails
	MainImages  ImageSet
	Variants    []ColorVariant
	SizeOptions []string
}

// Clone returns a deep copy of the matrix.
func (m VariantMatrix) Clone() VariantMatrix {
	out := VariantMatrix{
		Product:     m.Product,
		MainImages:  m.MainImages.Clone(),
		SizeOptions: append([]string(nil), m.SizeOptions...),
	}
	if m.Product.CompareAtPrice != nil {
		compare := *m.Product.CompareAtPrice
		out.Product.CompareAtPrice = &compare
	}
	if m.Variants != nil {
		out.Variants = make([]ColorVariant, len(m.Variants))
		for i, variant := range m.Variants {
			out.Variants[i] = variant.Clone()
		}
	}
	return out
}

// FindVariant returns the index of the color variant with the given id or -1.
func (m VariantMatrix) FindVariant(variantID string) int {
	for i, variant := range m.Variants {
		if variant.ID == variantID {
			return i
		}
	}
	return -1
}

// Category is the read model supplied by the category data source. Attributes and Filters
// keep whatever loosely-typed shape the source stored.
type Category struct {
	ID         string
	Name       string
	Attributes any
	Filters    any
}

// ResolvedImages is an image set after every slot has been materialized.
type ResolvedImages struct {
	URLs         []string
	PrimaryIndex int
}

// SizePayload is the persisted shape of a size variant.
type SizePayload struct {
	SizeLabel     string
	SKU           string
	Stock         int
	PriceModifier float64
	Attributes    map[string]any
}

// VariantPayload is the persisted shape of a color variant.
type VariantPayload struct {
	Color  string
	Images ResolvedImages
	Sizes  []SizePayload
}

// ProductPayload is handed to the catalog persistence collaborator on create or update.
type ProductPayload struct {
	Name           string
	Description    string
	CategoryID     string
	Price          float64
	CompareAtPrice *float64
	MainImages     ResolvedImages
	Variants       []VariantPayload
}

// ProductRecord is a persisted product as returned by the catalog collaborator.
type ProductRecord struct {
	ID string
	ProductPayload
	CreatedAt time.Time
	UpdatedAt time.Time
}
