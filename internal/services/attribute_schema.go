package services

import (
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	domain "github.com/catalog-console/api/internal/domain"
)

var attributeKindAliases = map[string]domain.AttributeKind{
	"text":         domain.AttributeKindText,
	"string":       domain.AttributeKindText,
	"textarea":     domain.AttributeKindText,
	"number":       domain.AttributeKindNumber,
	"numeric":      domain.AttributeKindNumber,
	"integer":      domain.AttributeKindNumber,
	"int":          domain.AttributeKindNumber,
	"float":        domain.AttributeKindNumber,
	"decimal":      domain.AttributeKindNumber,
	"select":       domain.AttributeKindSingleSelect,
	"singleselect": domain.AttributeKindSingleSelect,
	"single":       domain.AttributeKindSingleSelect,
	"dropdown":     domain.AttributeKindSingleSelect,
	"enum":         domain.AttributeKindSingleSelect,
	"multiselect":  domain.AttributeKindMultiSelect,
	"multi":        domain.AttributeKindMultiSelect,
	"multiple":     domain.AttributeKindMultiSelect,
	"boolean":      domain.AttributeKindBoolean,
	"bool":         domain.AttributeKindBoolean,
	"toggle":       domain.AttributeKindBoolean,
	"switch":       domain.AttributeKindBoolean,
}

// NormalizeAttributeSchemas converts the loosely-structured attribute configuration stored on a
// category into an ordered schema list. It never fails: unknown shapes yield an empty list and
// missing fields fall back to permissive defaults.
//
// Mapping input is walked in sorted key order so the result is deterministic.
func NormalizeAttributeSchemas(raw any) []domain.AttributeSchema {
	out := make([]domain.AttributeSchema, 0)
	switch value := raw.(type) {
	case []domain.AttributeSchema:
		for _, schema := range value {
			out = append(out, canonicalSchema(schema))
		}
	case []map[string]any:
		for _, record := range value {
			out = append(out, schemaFromRecord(record, ""))
		}
	case []any:
		for _, item := range value {
			switch element := item.(type) {
			case map[string]any:
				out = append(out, schemaFromRecord(element, ""))
			case domain.AttributeSchema:
				out = append(out, canonicalSchema(element))
			default:
				out = append(out, schemaFromRecord(nil, ""))
			}
		}
	case map[string]any:
		for _, key := range sortedKeys(value) {
			record, _ := value[key].(map[string]any)
			out = append(out, schemaFromRecord(record, key))
		}
	case map[string]map[string]any:
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			out = append(out, schemaFromRecord(value[key], key))
		}
	}
	return out
}

// NormalizeFilters applies the attribute normalisation rules to a category's filter structure.
func NormalizeFilters(raw any) []domain.AttributeSchema {
	return NormalizeAttributeSchemas(raw)
}

// ParseAttributeKind resolves a kind label, falling back to text for unknown input.
func ParseAttributeKind(raw string) domain.AttributeKind {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	if kind, ok := attributeKindAliases[key]; ok {
		return kind
	}
	return domain.AttributeKindText
}

func schemaFromRecord(record map[string]any, fallbackName string) domain.AttributeSchema {
	name, _ := record["name"].(string)
	if strings.TrimSpace(name) == "" {
		name, _ = record["key"].(string)
	}
	if strings.TrimSpace(name) == "" {
		name = fallbackName
	}

	kindLabel, ok := record["kind"].(string)
	if !ok {
		kindLabel, _ = record["type"].(string)
	}

	required, _ := record["required"].(bool)

	return canonicalSchema(domain.AttributeSchema{
		Name:     name,
		Kind:     ParseAttributeKind(kindLabel),
		Options:  optionsFromRaw(record["options"]),
		Required: required,
	})
}

func canonicalSchema(schema domain.AttributeSchema) domain.AttributeSchema {
	kind := ParseAttributeKind(string(schema.Kind))
	options := make([]string, 0, len(schema.Options))
	if kind == domain.AttributeKindSingleSelect || kind == domain.AttributeKindMultiSelect {
		for _, option := range schema.Options {
			if !slices.Contains(options, option) {
				options = append(options, option)
			}
		}
	}
	return domain.AttributeSchema{
		Name:     norm.NFC.String(strings.TrimSpace(schema.Name)),
		Kind:     kind,
		Options:  options,
		Required: schema.Required,
	}
}

// optionsFromRaw accepts only proper string sequences; anything else means no options.
func optionsFromRaw(raw any) []string {
	switch value := raw.(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			option, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, option)
		}
		return out
	default:
		return nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
