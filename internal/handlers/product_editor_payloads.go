package handlers

import (
	"time"

	domain "github.com/catalog-console/api/internal/domain"
	"github.com/catalog-console/api/internal/services"
)

type openSessionRequest struct {
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id"`
}

type productDetailsRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	CompareAtPrice *float64 `json:"compare_at_price"`
}

type selectCategoryRequest struct {
	CategoryID string `json:"category_id"`
}

type sizeLabelRequest struct {
	Label string `json:"label"`
}

type colorVariantRequest struct {
	Color *string `json:"color"`
}

type sizeFieldsRequest struct {
	SKU           *string `json:"sku"`
	Stock         any     `json:"stock"`
	PriceModifier any     `json:"price_modifier"`
}

type attributeValueRequest struct {
	Value any `json:"value"`
}

type broadcastAttributeRequest struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type sessionResponse struct {
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	ID          string           `json:"id"`
	ProductID   string           `json:"product_id,omitempty"`
	CategoryID  string           `json:"category_id,omitempty"`
	Schema      []schemaPayload  `json:"schema"`
	Filters     []schemaPayload  `json:"filters"`
	Product     productPayload   `json:"product"`
	MainImages  imageSetPayload  `json:"main_images"`
	Variants    []variantPayload `json:"variants"`
	SizeOptions []string         `json:"size_options"`
	Pending     int              `json:"pending_images"`
	UpdatedAt   string           `json:"updated_at"`
}

type schemaPayload struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Options  []string `json:"options"`
	Required bool     `json:"required"`
}

type productPayload struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	CategoryID     string   `json:"category_id,omitempty"`
	Price          float64  `json:"price"`
	CompareAtPrice *float64 `json:"compare_at_price,omitempty"`
}

type imageSetPayload struct {
	Images       []imageSlotPayload `json:"images"`
	PrimaryIndex int                `json:"primary_index"`
}

type imageSlotPayload struct {
	URL         string `json:"url,omitempty"`
	Pending     bool   `json:"pending"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

type variantPayload struct {
	ID     string          `json:"id"`
	Color  string          `json:"color"`
	Images imageSetPayload `json:"images"`
	Sizes  []sizePayload   `json:"sizes"`
}

type sizePayload struct {
	ID            string         `json:"id"`
	SizeLabel     string         `json:"size_label"`
	SKU           string         `json:"sku"`
	Stock         int            `json:"stock"`
	PriceModifier float64        `json:"price_modifier"`
	FinalPrice    float64        `json:"final_price"`
	Attributes    map[string]any `json:"attributes"`
}

type validationResponse struct {
	Valid    bool             `json:"valid"`
	Findings []findingPayload `json:"findings"`
}

type findingPayload struct {
	Scope     string `json:"scope"`
	Field     string `json:"field,omitempty"`
	VariantID string `json:"variant_id,omitempty"`
	SizeID    string `json:"size_id,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type uploadFailurePayload struct {
	Set      string `json:"set"`
	Color    string `json:"color,omitempty"`
	Position int    `json:"position"`
	Message  string `json:"message"`
}

type productRecordResponse struct {
	Product productRecordPayload `json:"product"`
}

type productRecordPayload struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description"`
	CategoryID     string                   `json:"category_id,omitempty"`
	Price          float64                  `json:"price"`
	CompareAtPrice *float64                 `json:"compare_at_price,omitempty"`
	MainImages     resolvedImagesPayload    `json:"main_images"`
	Variants       []resolvedVariantPayload `json:"variants"`
	CreatedAt      string                   `json:"created_at"`
	UpdatedAt      string                   `json:"updated_at"`
}

type resolvedImagesPayload struct {
	URLs         []string `json:"urls"`
	PrimaryIndex int      `json:"primary_index"`
}

type resolvedVariantPayload struct {
	Color  string                `json:"color"`
	Images resolvedImagesPayload `json:"images"`
	Sizes  []resolvedSizePayload `json:"sizes"`
}

type resolvedSizePayload struct {
	SizeLabel     string         `json:"size_label"`
	SKU           string         `json:"sku"`
	Stock         int            `json:"stock"`
	PriceModifier float64        `json:"price_modifier"`
	Attributes    map[string]any `json:"attributes"`
}

func buildSessionPayload(snapshot services.EditorSnapshot) sessionPayload {
	matrix := snapshot.Matrix
	payload := sessionPayload{
		ID:         snapshot.SessionID,
		ProductID:  snapshot.ProductID,
		CategoryID: snapshot.CategoryID,
		Schema:     buildSchemaPayloads(snapshot.Schema),
		Filters:    buildSchemaPayloads(snapshot.Filters),
		Product: productPayload{
			Name:           matrix.Product.Name,
			Description:    matrix.Product.Description,
			CategoryID:     matrix.Product.CategoryID,
			Price:          matrix.Product.Price,
			CompareAtPrice: matrix.Product.CompareAtPrice,
		},
		MainImages:  buildImageSetPayload(matrix.MainImages),
		Variants:    make([]variantPayload, 0, len(matrix.Variants)),
		SizeOptions: append([]string{}, matrix.SizeOptions...),
		Pending:     matrix.MainImages.PendingCount(),
		UpdatedAt:   formatTime(snapshot.UpdatedAt),
	}
	for _, variant := range matrix.Variants {
		sizes := make([]sizePayload, 0, len(variant.Sizes))
		for _, size := range variant.Sizes {
			attrs := make(map[string]any, len(size.Attributes))
			for name, value := range size.Attributes {
				attrs[name] = value.Raw()
			}
			sizes = append(sizes, sizePayload{
				ID:            size.ID,
				SizeLabel:     size.SizeLabel,
				SKU:           size.SKU,
				Stock:         size.Stock,
				PriceModifier: size.PriceModifier,
				FinalPrice:    domain.FinalPrice(matrix.Product.Price, size.PriceModifier),
				Attributes:    attrs,
			})
		}
		payload.Pending += variant.Images.PendingCount()
		payload.Variants = append(payload.Variants, variantPayload{
			ID:     variant.ID,
			Color:  variant.Color,
			Images: buildImageSetPayload(variant.Images),
			Sizes:  sizes,
		})
	}
	return payload
}

func buildSchemaPayloads(schemas []domain.AttributeSchema) []schemaPayload {
	out := make([]schemaPayload, 0, len(schemas))
	for _, schema := range schemas {
		options := schema.Options
		if options == nil {
			options = []string{}
		}
		out = append(out, schemaPayload{
			Name:     schema.Name,
			Kind:     string(schema.Kind),
			Options:  options,
			Required: schema.Required,
		})
	}
	return out
}

func buildImageSetPayload(set domain.ImageSet) imageSetPayload {
	payload := imageSetPayload{
		Images:       make([]imageSlotPayload, 0, len(set.Images)),
		PrimaryIndex: set.PrimaryIndex,
	}
	for _, slot := range set.Images {
		if slot.IsPending() {
			payload.Images = append(payload.Images, imageSlotPayload{
				Pending:     true,
				FileName:    slot.Pending.FileName,
				ContentType: slot.Pending.ContentType,
				Size:        len(slot.Pending.Data),
			})
			continue
		}
		payload.Images = append(payload.Images, imageSlotPayload{URL: slot.URL})
	}
	return payload
}

func buildFindingPayloads(findings []services.ValidationFinding) []findingPayload {
	out := make([]findingPayload, 0, len(findings))
	for _, finding := range findings {
		out = append(out, findingPayload{
			Scope:     string(finding.Scope),
			Field:     finding.Field,
			VariantID: finding.VariantID,
			SizeID:    finding.SizeID,
			Attribute: finding.Attribute,
			Code:      finding.Code,
			Message:   finding.Message,
		})
	}
	return out
}

func buildUploadFailurePayloads(failures []services.UploadFailure) []uploadFailurePayload {
	out := make([]uploadFailurePayload, 0, len(failures))
	for _, failure := range failures {
		out = append(out, uploadFailurePayload{
			Set:      failure.SetKey,
			Color:    failure.Color,
			Position: failure.Position,
			Message:  failure.Message(),
		})
	}
	return out
}

func buildProductRecordPayload(record domain.ProductRecord) productRecordPayload {
	payload := productRecordPayload{
		ID:             record.ID,
		Name:           record.Name,
		Description:    record.Description,
		CategoryID:     record.CategoryID,
		Price:          record.Price,
		CompareAtPrice: record.CompareAtPrice,
		MainImages:     buildResolvedImagesPayload(record.MainImages),
		Variants:       make([]resolvedVariantPayload, 0, len(record.Variants)),
		CreatedAt:      formatTime(record.CreatedAt),
		UpdatedAt:      formatTime(record.UpdatedAt),
	}
	for _, variant := range record.Variants {
		sizes := make([]resolvedSizePayload, 0, len(variant.Sizes))
		for _, size := range variant.Sizes {
			attrs := size.Attributes
			if attrs == nil {
				attrs = map[string]any{}
			}
			sizes = append(sizes, resolvedSizePayload{
				SizeLabel:     size.SizeLabel,
				SKU:           size.SKU,
				Stock:         size.Stock,
				PriceModifier: size.PriceModifier,
				Attributes:    attrs,
			})
		}
		payload.Variants = append(payload.Variants, resolvedVariantPayload{
			Color:  variant.Color,
			Images: buildResolvedImagesPayload(variant.Images),
			Sizes:  sizes,
		})
	}
	return payload
}

func buildResolvedImagesPayload(images domain.ResolvedImages) resolvedImagesPayload {
	return resolvedImagesPayload{
		URLs:         append([]string{}, images.URLs...),
		PrimaryIndex: images.PrimaryIndex,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
