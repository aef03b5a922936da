package services

import (
	"fmt"
	"strings"

	domain "github.com/catalog-console/api/internal/domain"
)

// FindingScope names what a validation finding points at.
type FindingScope string

const (
	FindingScopeProduct   FindingScope = "product"
	FindingScopeVariant   FindingScope = "variant"
	FindingScopeAttribute FindingScope = "attribute"
)

const (
	FindingCodeNameRequired        = "name_required"
	FindingCodePriceInvalid        = "price_invalid"
	FindingCodeComparePriceInvalid = "compare_price_invalid"
	FindingCodeColorRequired       = "color_required"
	FindingCodeAttributeRequired   = "attribute_required"
	FindingCodeAttributeInvalid    = "attribute_invalid"
)

// ValidationFinding is one unmet constraint. Attribute findings carry the variant, size and
// attribute name so the operator can be pointed at the exact cell.
type ValidationFinding struct {
	Scope     FindingScope
	Field     string
	VariantID string
	SizeID    string
	Attribute string
	Code      string
	Message   string
}

// ValidateVariantMatrix collects every finding for the matrix against the active schema.
// Values for attributes outside the schema are ignored.
func ValidateVariantMatrix(matrix domain.VariantMatrix, schema []domain.AttributeSchema) []ValidationFinding {
	findings := make([]ValidationFinding, 0)

	product := matrix.Product
	if strings.TrimSpace(product.Name) == "" {
		findings = append(findings, ValidationFinding{
			Scope:   FindingScopeProduct,
			Field:   "name",
			Code:    FindingCodeNameRequired,
			Message: "product name is required",
		})
	}
	if !(product.Price > 0) {
		findings = append(findings, ValidationFinding{
			Scope:   FindingScopeProduct,
			Field:   "price",
			Code:    FindingCodePriceInvalid,
			Message: "price must be greater than zero",
		})
	}
	if product.CompareAtPrice != nil && !(*product.CompareAtPrice > product.Price) {
		findings = append(findings, ValidationFinding{
			Scope:   FindingScopeProduct,
			Field:   "compareAtPrice",
			Code:    FindingCodeComparePriceInvalid,
			Message: fmt.Sprintf("compare-at price %v must exceed the selling price %v", *product.CompareAtPrice, product.Price),
		})
	}

	for vi, variant := range matrix.Variants {
		if strings.TrimSpace(variant.Color) == "" {
			findings = append(findings, ValidationFinding{
				Scope:     FindingScopeVariant,
				Field:     "color",
				VariantID: variant.ID,
				Code:      FindingCodeColorRequired,
				Message:   fmt.Sprintf("color variant %d needs a color name", vi+1),
			})
		}
		for _, size := range variant.Sizes {
			findings = append(findings, validateSizeAttributes(variant, size, schema)...)
		}
	}

	return findings
}

func validateSizeAttributes(variant domain.ColorVariant, size domain.SizeVariant, schema []domain.AttributeSchema) []ValidationFinding {
	var findings []ValidationFinding
	for _, attr := range schema {
		// Unnamed schemas cannot be addressed by any edit, so they never constrain a size.
		if attr.Name == "" {
			continue
		}
		value, ok := size.Attributes[attr.Name]
		if !ok || value.IsEmpty() {
			if attr.Required {
				findings = append(findings, ValidationFinding{
					Scope:     FindingScopeAttribute,
					VariantID: variant.ID,
					SizeID:    size.ID,
					Attribute: attr.Name,
					Code:      FindingCodeAttributeRequired,
					Message:   fmt.Sprintf("%s / %s: %s is required", describeColor(variant), size.SizeLabel, attr.Name),
				})
			}
			continue
		}
		if err := value.Conforms(attr); err != nil {
			findings = append(findings, ValidationFinding{
				Scope:     FindingScopeAttribute,
				VariantID: variant.ID,
				SizeID:    size.ID,
				Attribute: attr.Name,
				Code:      FindingCodeAttributeInvalid,
				Message:   fmt.Sprintf("%s / %s: %s is invalid: %v", describeColor(variant), size.SizeLabel, attr.Name, err),
			})
		}
	}
	return findings
}

func describeColor(variant domain.ColorVariant) string {
	if color := strings.TrimSpace(variant.Color); color != "" {
		return color
	}
	return "unnamed color"
}
