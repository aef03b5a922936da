package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// AttributeKind identifies the input type of a category-defined attribute.
type AttributeKind string

const (
	// AttributeKindText accepts free-form text.
	AttributeKindText AttributeKind = "text"
	// AttributeKindNumber accepts a single numeric value.
	AttributeKindNumber AttributeKind = "number"
	// AttributeKindSingleSelect accepts one value drawn from the schema options.
	AttributeKindSingleSelect AttributeKind = "select"
	// AttributeKindMultiSelect accepts a set of values drawn from the schema options.
	AttributeKindMultiSelect AttributeKind = "multiselect"
	// AttributeKindBoolean accepts true or false.
	AttributeKindBoolean AttributeKind = "boolean"
)

var (
	// ErrAttributeKindMismatch indicates a value whose shape does not match the schema kind.
	ErrAttributeKindMismatch = errors.New("attribute: value kind mismatch")
	// ErrAttributeOptionNotAllowed indicates a select value outside of the schema options.
	ErrAttributeOptionNotAllowed = errors.New("attribute: option not allowed")
)

// AttributeSchema describes one dynamic attribute a category asks size variants to populate.
type AttributeSchema struct {
	Name     string
	Kind     AttributeKind
	Options  []string
	Required bool
}

// HasOption reports whether the option is part of the schema's option set.
func (s AttributeSchema) HasOption(option string) bool {
	return slices.Contains(s.Options, option)
}

// AttributeValue is a value tagged with the attribute kind it was recorded as.
// The zero value is an empty text value.
type AttributeValue struct {
	kind    AttributeKind
	text    string
	number  float64
	set     bool
	options []string
	boolean bool
}

// TextValue constructs a text attribute value.
func TextValue(value string) AttributeValue {
	return AttributeValue{kind: AttributeKindText, text: value}
}

// NumberValue constructs a numeric attribute value.
func NumberValue(value float64) AttributeValue {
	return AttributeValue{kind: AttributeKindNumber, number: value, set: true}
}

// SelectValue constructs a single-select attribute value.
func SelectValue(option string) AttributeValue {
	return AttributeValue{kind: AttributeKindSingleSelect, text: option}
}

// MultiSelectValue constructs a multi-select attribute value. Duplicates collapse, order is kept.
func MultiSelectValue(options ...string) AttributeValue {
	out := make([]string, 0, len(options))
	for _, option := range options {
		if !slices.Contains(out, option) {
			out = append(out, option)
		}
	}
	return AttributeValue{kind: AttributeKindMultiSelect, options: out}
}

// BoolValue constructs a boolean attribute value.
func BoolValue(value bool) AttributeValue {
	return AttributeValue{kind: AttributeKindBoolean, boolean: value, set: true}
}

// Kind returns the kind the value was recorded as.
func (v AttributeValue) Kind() AttributeKind {
	if v.kind == "" {
		return AttributeKindText
	}
	return v.kind
}

// Text returns the string payload for text and single-select values.
func (v AttributeValue) Text() string { return v.text }

// Number returns the numeric payload and whether one is set.
func (v AttributeValue) Number() (float64, bool) {
	return v.number, v.kind == AttributeKindNumber && v.set
}

// Options returns a copy of the multi-select payload.
func (v AttributeValue) Options() []string {
	out := make([]string, len(v.options))
	copy(out, v.options)
	return out
}

// Bool returns the boolean payload and whether one is set.
func (v AttributeValue) Bool() (bool, bool) {
	return v.boolean, v.kind == AttributeKindBoolean && v.set
}

// IsEmpty reports whether the value counts as missing for required-attribute checks.
func (v AttributeValue) IsEmpty() bool {
	switch v.Kind() {
	case AttributeKindText, AttributeKindSingleSelect:
		return strings.TrimSpace(v.text) == ""
	case AttributeKindMultiSelect:
		return len(v.options) == 0
	case AttributeKindNumber, AttributeKindBoolean:
		return !v.set
	default:
		return true
	}
}

// Conforms checks the value against the schema it is being validated for. Text and
// single-select values share a string shape and are accepted interchangeably.
func (v AttributeValue) Conforms(schema AttributeSchema) error {
	kind := schema.Kind
	if kind == "" {
		kind = AttributeKindText
	}
	switch kind {
	case AttributeKindText:
		if !v.isString() {
			return fmt.Errorf("%w: expected text, got %s", ErrAttributeKindMismatch, v.Kind())
		}
	case AttributeKindSingleSelect:
		if !v.isString() {
			return fmt.Errorf("%w: expected select, got %s", ErrAttributeKindMismatch, v.Kind())
		}
		if len(schema.Options) > 0 && !schema.HasOption(v.text) {
			return fmt.Errorf("%w: %q", ErrAttributeOptionNotAllowed, v.text)
		}
	case AttributeKindMultiSelect:
		if v.Kind() != AttributeKindMultiSelect {
			return fmt.Errorf("%w: expected multiselect, got %s", ErrAttributeKindMismatch, v.Kind())
		}
		if len(schema.Options) > 0 {
			for _, option := range v.options {
				if !schema.HasOption(option) {
					return fmt.Errorf("%w: %q", ErrAttributeOptionNotAllowed, option)
				}
			}
		}
	case AttributeKindNumber, AttributeKindBoolean:
		if v.Kind() != kind {
			return fmt.Errorf("%w: expected %s, got %s", ErrAttributeKindMismatch, kind, v.Kind())
		}
	}
	return nil
}

// Equal reports whether both values carry the same kind and payload.
func (v AttributeValue) Equal(other AttributeValue) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case AttributeKindNumber:
		return v.set == other.set && v.number == other.number
	case AttributeKindBoolean:
		return v.set == other.set && v.boolean == other.boolean
	case AttributeKindMultiSelect:
		return slices.Equal(v.options, other.options)
	default:
		return v.text == other.text
	}
}

// Raw returns a JSON and Firestore friendly representation of the value.
func (v AttributeValue) Raw() any {
	switch v.Kind() {
	case AttributeKindNumber:
		if !v.set {
			return nil
		}
		return v.number
	case AttributeKindBoolean:
		if !v.set {
			return nil
		}
		return v.boolean
	case AttributeKindMultiSelect:
		return v.Options()
	default:
		return v.text
	}
}

// MarshalJSON renders the raw representation.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

func (v AttributeValue) isString() bool {
	kind := v.Kind()
	return kind == AttributeKindText || kind == AttributeKindSingleSelect
}

// AttributeValueFromRaw builds a value from decoded JSON or Firestore data without any schema.
func AttributeValueFromRaw(raw any) AttributeValue {
	switch value := raw.(type) {
	case nil:
		return TextValue("")
	case AttributeValue:
		return value
	case string:
		return TextValue(value)
	case bool:
		return BoolValue(value)
	case []string:
		return MultiSelectValue(value...)
	case []any:
		options := make([]string, 0, len(value))
		for _, item := range value {
			options = append(options, fmt.Sprint(item))
		}
		return MultiSelectValue(options...)
	}
	if number, ok := numberFromRaw(raw); ok {
		return NumberValue(number)
	}
	return TextValue(fmt.Sprint(raw))
}

// CoerceAttributeValue converts raw operator input to the kind declared by the schema when
// the conversion is lossless. Anything else is returned as recorded so validation can flag it.
func CoerceAttributeValue(raw any, kind AttributeKind) AttributeValue {
	value := AttributeValueFromRaw(raw)
	switch kind {
	case AttributeKindSingleSelect:
		if value.Kind() == AttributeKindText {
			return SelectValue(value.text)
		}
	case AttributeKindNumber:
		if value.Kind() == AttributeKindText {
			trimmed := strings.TrimSpace(value.text)
			if trimmed == "" {
				return AttributeValue{kind: AttributeKindNumber}
			}
			if number, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(number) && !math.IsInf(number, 0) {
				return NumberValue(number)
			}
		}
	case AttributeKindBoolean:
		if value.Kind() == AttributeKindText {
			trimmed := strings.TrimSpace(value.text)
			if trimmed == "" {
				return AttributeValue{kind: AttributeKindBoolean}
			}
			if parsed, err := strconv.ParseBool(trimmed); err == nil {
				return BoolValue(parsed)
			}
		}
	case AttributeKindMultiSelect:
		if value.Kind() == AttributeKindText || value.Kind() == AttributeKindSingleSelect {
			if strings.TrimSpace(value.text) == "" {
				return MultiSelectValue()
			}
			return MultiSelectValue(value.text)
		}
	}
	return value
}

func numberFromRaw(raw any) (float64, bool) {
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
			return 0, false
		}
		number = parsed
	default:
		return 0, false
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	return number, true
}
