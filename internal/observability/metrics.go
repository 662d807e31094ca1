package observability

import (
	"fmt"
	"time"
)

// Metrics holds usage figures derived from the event log.
type Metrics struct {
	NotesCreated       int            `json:"notes_created"`
	NotesRejected      int            `json:"notes_rejected"`
	NotesByEntity      map[string]int `json:"notes_by_entity"`
	SourceFailures     map[string]int `json:"source_failures"`
	RecordFetchErrors  int            `json:"record_fetch_errors"`
	LayoutChanges      int            `json:"layout_changes"`
	HeaderSaves        int            `json:"header_saves"`
	HeaderSaveFailures int            `json:"header_save_failures"`
	Workflows          int            `json:"workflows"`
	EventCount         int            `json:"event_count"`
	OldestEvent        *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent        *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		NotesByEntity:  make(map[string]int),
		SourceFailures: make(map[string]int),
	}
	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case EventNoteCreated:
			m.NotesCreated++
			if event.Entity != "" {
				m.NotesByEntity[event.Entity]++
			}
		case EventNoteRejected:
			m.NotesRejected++
		case EventSearchSourceFailed:
			m.SourceFailures[event.Entity]++
		case EventRecordFetchFailed:
			m.RecordFetchErrors++
		case EventLayoutChanged:
			m.LayoutChanges++
		case EventHeaderSaved:
			m.HeaderSaves++
		case EventHeaderSaveFailed:
			m.HeaderSaveFailures++
		case EventWorkflowSubmitted:
			m.Workflows++
		}
	}

	return m, nil
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func ParseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
