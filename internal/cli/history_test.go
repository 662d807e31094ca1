package cli

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/staffdesk/pkg/models"
)

func TestHistoryCmd_NilRecords(t *testing.T) {
	orig := Records
	defer func() { Records = orig }()
	Records = nil

	if err := historyCmd.RunE(historyCmd, []string{"J-42"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHistoryCmd_RendersEntries(t *testing.T) {
	crm := sampleCRM()
	crm.history[crmKey(models.EntityJob, "42")] = []models.HistoryEntry{
		{
			Action:          models.HistoryUpdate,
			Details:         json.RawMessage(`{"before":{"status":"Open","custom_fields":{"clearance":"None"},"updated_at":"x"},"after":{"status":"Filled","custom_fields":{"clearance":"Baseline"},"updated_at":"y"}}`),
			PerformedAt:     time.Date(2024, 6, 2, 8, 15, 0, 0, time.UTC),
			PerformedByName: "Ann",
		},
		{
			Action:      models.HistoryAddNote,
			Details:     json.RawMessage(`"{\"text\":\"Called the client\"}"`),
			PerformedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			Action:          models.HistoryCreate,
			PerformedByName: "Bob",
		},
	}
	useCRM(t, crm)

	out := captureStdout(t, func() {
		if err := historyCmd.RunE(historyCmd, []string{"J-42"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	for _, want := range []string{
		"History of J-42 Senior Go Engineer",
		"[2024-06-02 08:15] UPDATE by Ann",
		"  Status: Open → Filled",
		"  Security Clearance: None → Baseline",
		"[2024-06-01 08:00] ADD_NOTE by Unknown",
		"  Called the client",
		"[unknown date] CREATE by Bob",
		"  Record created by Bob",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "updated_at") {
		t.Errorf("bookkeeping fields must not be shown:\n%s", out)
	}
}

func TestHistoryCmd_Limit(t *testing.T) {
	crm := sampleCRM()
	crm.history[crmKey(models.EntityTask, "3")] = []models.HistoryEntry{
		{Action: models.HistoryCreate, PerformedByName: "Ann"},
		{Action: "ARCHIVE", Details: json.RawMessage(`{"reason": "done"}`)},
	}
	useCRM(t, crm)
	origLimit := historyLimit
	defer func() { historyLimit = origLimit }()
	historyLimit = 1

	out := captureStdout(t, func() {
		if err := historyCmd.RunE(historyCmd, []string{"T-3"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if strings.Contains(out, "ARCHIVE") {
		t.Errorf("limit not applied:\n%s", out)
	}
}

func TestHistoryCmd_Empty(t *testing.T) {
	useCRM(t, sampleCRM())

	out := captureStdout(t, func() {
		if err := historyCmd.RunE(historyCmd, []string{"HM-7"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "No history for HM-7 Jane Doe.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
