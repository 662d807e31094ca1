package models

import (
	"encoding/json"
	"strings"
)

// EntityReference points at any record in the CRM. Display and Value are
// computed once when the reference is selected and are never recomputed, so
// renaming the source record does not rewrite historical notes.
type EntityReference struct {
	ID      string     `json:"id"`
	Type    EntityType `json:"type"`
	Display string     `json:"display"`
	Value   string     `json:"value"`
}

// NewReference freezes a reference for the record (id, t) titled title.
func NewReference(id string, t EntityType, title string) EntityReference {
	value := FormatRecordID(id, t)
	display := value
	if title = strings.TrimSpace(title); title != "" {
		display = value + " " + title
	}
	return EntityReference{
		ID:      id,
		Type:    t,
		Display: display,
		Value:   value,
	}
}

// Key identifies the referenced record across types.
func (r EntityReference) Key() string {
	return string(r.Type) + ":" + r.ID
}

// ContainsReference reports whether refs already holds a reference to the
// same record as r.
func ContainsReference(refs []EntityReference, r EntityReference) bool {
	for _, existing := range refs {
		if existing.Key() == r.Key() {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts numeric ids and the legacy "label" key some stored
// notes use instead of "display".
func (r *EntityReference) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID      any        `json:"id"`
		Type    EntityType `json:"type"`
		Display string     `json:"display"`
		Label   string     `json:"label"`
		Value   string     `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ID = Stringify(aux.ID)
	r.Type = normalizeRefType(aux.Type)
	r.Display = aux.Display
	if r.Display == "" {
		r.Display = aux.Label
	}
	r.Value = aux.Value
	return nil
}

// normalizeRefType maps labels such as "Job Seeker" or "HiringManager" onto
// registry type tags. Unknown values pass through unchanged.
func normalizeRefType(t EntityType) EntityType {
	if _, ok := LookupEntity(t); ok {
		return t
	}
	if parsed, err := ParseEntityType(string(t)); err == nil {
		return parsed
	}
	compact := strings.ToLower(string(t))
	for _, info := range entityRegistry {
		if compact == strings.ToLower(strings.ReplaceAll(info.Label, " ", "")) {
			return info.Type
		}
	}
	return t
}
