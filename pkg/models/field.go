package models

import (
	"encoding/json"
	"strings"
)

// CustomFieldPrefix marks a layout key that refers to a custom field definition.
const CustomFieldPrefix = "custom:"

// FieldDefinition is a custom field as returned by the field-management service.
type FieldDefinition struct {
	ID         string `json:"id"`
	FieldName  string `json:"field_name"`
	FieldLabel string `json:"field_label"`
	FieldKey   string `json:"field_key,omitempty"`
	APIName    string `json:"api_name,omitempty"`
	FieldType  string `json:"field_type,omitempty"`
	SortOrder  int    `json:"sort_order,omitempty"`
	Hidden     bool   `json:"is_hidden"`
}

// UnmarshalJSON resolves the hidden flag from is_hidden, hidden or isHidden
// and accepts numeric ids.
func (d *FieldDefinition) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID           any    `json:"id"`
		FieldName    string `json:"field_name"`
		FieldLabel   string `json:"field_label"`
		FieldKey     string `json:"field_key"`
		APIName      string `json:"api_name"`
		FieldType    string `json:"field_type"`
		SortOrder    int    `json:"sort_order"`
		IsHidden     any    `json:"is_hidden"`
		Hidden       any    `json:"hidden"`
		IsHiddenAlt  any    `json:"isHidden"`
		FieldNameAlt string `json:"fieldName"`
		LabelAlt     string `json:"label"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = FieldDefinition{
		ID:         Stringify(aux.ID),
		FieldName:  firstNonEmpty(aux.FieldName, aux.FieldNameAlt),
		FieldLabel: firstNonEmpty(aux.FieldLabel, aux.LabelAlt),
		FieldKey:   aux.FieldKey,
		APIName:    aux.APIName,
		FieldType:  aux.FieldType,
		SortOrder:  aux.SortOrder,
		Hidden:     truthy(aux.IsHidden) || truthy(aux.Hidden) || truthy(aux.IsHiddenAlt),
	}
	return nil
}

// StableKey is the deduplication key of the definition: field_key, then
// api_name, then field_name, then the numeric id.
func (d FieldDefinition) StableKey() string {
	return firstNonEmpty(d.FieldKey, d.APIName, d.FieldName, d.ID)
}

// Label returns the human label, falling back to the stable key.
func (d FieldDefinition) Label() string {
	return firstNonEmpty(d.FieldLabel, d.FieldName, d.StableKey())
}

// Aliases lists every name a raw custom value object may use for this field.
func (d FieldDefinition) Aliases() []string {
	var out []string
	for _, s := range []string{d.FieldKey, d.APIName, d.FieldName, d.FieldLabel} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsCustomKey reports whether a layout key refers to a custom field.
func IsCustomKey(key string) bool {
	return strings.HasPrefix(key, CustomFieldPrefix)
}

// CustomKey builds the layout key for a custom field stable key.
func CustomKey(stable string) string {
	return CustomFieldPrefix + stable
}

// FieldOption is a standard field offered by a record view.
type FieldOption struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		return s == "true" || s == "1" || s == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
