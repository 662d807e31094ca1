package models

import (
	"encoding/json"
	"time"
)

// History actions with dedicated rendering.
const (
	HistoryCreate  = "CREATE"
	HistoryUpdate  = "UPDATE"
	HistoryAddNote = "ADD_NOTE"
)

// HistoryEntry is one raw audit-log record. Details is either a JSON object
// or a JSON string containing an object.
type HistoryEntry struct {
	Action          string          `json:"action"`
	Details         json.RawMessage `json:"details"`
	PerformedAt     time.Time       `json:"performed_at"`
	PerformedByName string          `json:"performed_by_name"`
}

// UnmarshalJSON tolerates the timestamp layouts the API emits.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var aux struct {
		Action          string          `json:"action"`
		Details         json.RawMessage `json:"details"`
		PerformedAt     string          `json:"performed_at"`
		PerformedByName string          `json:"performed_by_name"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*h = HistoryEntry{
		Action:          aux.Action,
		Details:         aux.Details,
		PerformedAt:     ParseTimestamp(aux.PerformedAt),
		PerformedByName: aux.PerformedByName,
	}
	return nil
}
