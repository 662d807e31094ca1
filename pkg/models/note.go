package models

import (
	"encoding/json"
	"time"
)

// Note is an append-only annotation attached to a record.
type Note struct {
	ID                   string            `json:"id"`
	Text                 string            `json:"text"`
	Action               string            `json:"action"`
	AboutReferences      []EntityReference `json:"about_references"`
	AdditionalReferences []EntityReference `json:"additional_references,omitempty"`
	CopyNote             string            `json:"copy_note,omitempty"`
	ScheduleNextAction   string            `json:"schedule_next_action,omitempty"`
	EmailNotification    []string          `json:"email_notification,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	CreatedByName        string            `json:"created_by_name,omitempty"`
}

// UnmarshalJSON accepts about references either as a structured array under
// about_references or under about as an array or a JSON-encoded string,
// numeric or string ids, and the timestamp layouts the API emits. An about
// value that cannot be read leaves the note without about references.
func (n *Note) UnmarshalJSON(data []byte) error {
	type plain Note
	var aux struct {
		plain
		ID        any             `json:"id"`
		About     json.RawMessage `json:"about"`
		CreatedAt string          `json:"created_at"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*n = Note(aux.plain)
	n.ID = Stringify(aux.ID)
	n.CreatedAt = ParseTimestamp(aux.CreatedAt)
	if len(n.AboutReferences) == 0 {
		n.AboutReferences = decodeAbout(aux.About)
	}
	return nil
}

// decodeAbout reads an about value sent as a reference array or as a string
// holding one. Anything else yields nil.
func decodeAbout(raw json.RawMessage) []EntityReference {
	if len(raw) == 0 {
		return nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return nil
		}
		raw = json.RawMessage(encoded)
	}
	var refs []EntityReference
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil
	}
	return refs
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats used by the CRM API. Unknown
// formats yield the zero time.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NoteDraft is the authoring state of a note that has not been submitted.
type NoteDraft struct {
	Text                 string            `json:"text" validate:"notblank"`
	Action               string            `json:"action" validate:"notblank"`
	AboutReferences      []EntityReference `json:"about" validate:"min=1"`
	AdditionalReferences []EntityReference `json:"additional_references"`
	CopyNote             bool              `json:"copy_note"`
	ScheduleNextAction   string            `json:"schedule_next_action"`
	EmailNotification    []string          `json:"email_notification"`

	// ReplaceGeneralContactComments overwrites the record's general comments
	// with the note text instead of appending.
	ReplaceGeneralContactComments bool `json:"replace_general_contact_comments"`
}

// NotePayload is the wire body of POST /api/<collection>/<id>/notes.
type NotePayload struct {
	Text                          string            `json:"text"`
	Action                        string            `json:"action"`
	About                         string            `json:"about"`
	AboutReferences               []EntityReference `json:"about_references"`
	AdditionalReferences          []EntityReference `json:"additional_references"`
	ScheduleNextAction            string            `json:"schedule_next_action"`
	EmailNotification             []string          `json:"email_notification"`
	CopyNote                      string            `json:"copy_note"`
	ReplaceGeneralContactComments bool              `json:"replace_general_contact_comments"`
}

// User is an internal CRM user that can be notified about a note.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
