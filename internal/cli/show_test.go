package cli

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

func TestShowCmd_NilRecords(t *testing.T) {
	orig := Records
	defer func() { Records = orig }()
	Records = nil

	err := showCmd.RunE(showCmd, []string{"J-42"})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestShowCmd_InvalidRecordID(t *testing.T) {
	useCRM(t, sampleCRM())

	err := showCmd.RunE(showCmd, []string{"XX-1"})
	if err == nil || !strings.Contains(err.Error(), "unknown prefix") {
		t.Fatalf("expected unknown prefix error, got %v", err)
	}
}

func TestShowCmd_RecordNotFound(t *testing.T) {
	useCRM(t, sampleCRM())

	err := showCmd.RunE(showCmd, []string{"J-999"})
	if err == nil || !strings.Contains(err.Error(), "loading J-999") {
		t.Fatalf("expected loading error, got %v", err)
	}
}

func TestShowCmd_Job(t *testing.T) {
	crm := sampleCRM()
	crm.notes[crmKey(models.EntityJob, "42")] = []models.Note{
		{ID: "3", Text: "Second call", Action: "Interview Scheduled", CreatedByName: "Ann",
			CreatedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)},
		{ID: "2", Text: "First call", Action: "Follow-up", CreatedByName: "Ann",
			CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "1", Text: "Opened", Action: "General"},
	}
	useCRM(t, crm)

	out := captureStdout(t, func() {
		if err := showCmd.RunE(showCmd, []string{"J-42"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	for _, want := range []string{
		"J-42 Senior Go Engineer",
		"/dashboard/jobs/view?id=42",
		"Status: Open | Organization: Acme Corp | Location: Remote | Employment Type: Contract",
		"Details",
		"Organization Details",
		"https://acme.example",
		"[2024-05-02 10:00] Interview Scheduled by Ann",
		"Second call",
		"Interviews: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Opened") {
		t.Errorf("only the two most recent notes should be shown:\n%s", out)
	}
	if strings.Contains(out, "warning:") {
		t.Errorf("unexpected warning:\n%s", out)
	}
}

func TestShowCmd_ShowsAccount(t *testing.T) {
	useCRM(t, sampleCRM())
	origAccount := Account
	defer func() { Account = origAccount }()

	out := captureStdout(t, func() {
		if err := showCmd.RunE(showCmd, []string{"T-3"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if strings.Contains(out, "Viewing as") {
		t.Errorf("no account line expected without a token subject:\n%s", out)
	}

	Account = "ann@example.com"
	out = captureStdout(t, func() {
		if err := showCmd.RunE(showCmd, []string{"T-3"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "Viewing as ann@example.com") {
		t.Errorf("account missing:\n%s", out)
	}
}

func TestShowCmd_UsesSavedHeaderAndLayout(t *testing.T) {
	crm := sampleCRM()
	crm.headers[models.EntityJob] = []string{"custom:clearance", "status"}
	layouts, _ := useCRM(t, crm)
	_ = layouts.Set(context.Background(), core.LayoutKey(models.EntityJob, core.PanelDetails), []string{"location"})

	out := captureStdout(t, func() {
		if err := showCmd.RunE(showCmd, []string{"J-42"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	if !strings.Contains(out, "Security Clearance: Baseline | Status: Open") {
		t.Errorf("expected saved header order:\n%s", out)
	}
	if strings.Contains(out, "Openings:") {
		t.Errorf("details panel should only show the saved layout:\n%s", out)
	}
}

func TestShowCmd_HeaderFallsBackToDefaultWithoutService(t *testing.T) {
	useCRM(t, sampleCRM())
	origHeaders := Headers
	defer func() { Headers = origHeaders }()
	Headers = nil

	out := captureStdout(t, func() {
		if err := showCmd.RunE(showCmd, []string{"J-42"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "Status: Open | Organization: Acme Corp") {
		t.Errorf("expected default header:\n%s", out)
	}
}

func TestShowCmd_NoNotes(t *testing.T) {
	useCRM(t, sampleCRM())

	out := captureStdout(t, func() {
		if err := showCmd.RunE(showCmd, []string{"T-3"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "No notes yet") {
		t.Errorf("expected empty notes message:\n%s", out)
	}
	if strings.Contains(out, "Organization Details") {
		t.Errorf("tasks have no organization panel:\n%s", out)
	}
}

func TestShowCmd_JSON(t *testing.T) {
	useCRM(t, sampleCRM())
	origJSON := showJSON
	defer func() { showJSON = origJSON }()
	showJSON = true

	out := captureStdout(t, func() {
		if err := showCmd.RunE(showCmd, []string{"HM-7"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	var got struct {
		ID      string                          `json:"id"`
		Heading string                          `json:"heading"`
		Panels  map[string][]core.RenderedField `json:"panels"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if got.ID != "HM-7" || got.Heading != "HM-7 Jane Doe" {
		t.Errorf("got id %q heading %q", got.ID, got.Heading)
	}
	org := got.Panels[core.PanelOrganizationDetails]
	if len(org) == 0 || org[0].Value != "Acme Corp" {
		t.Errorf("organization panel = %+v, want the linked organization", org)
	}
}

func TestShowCmd_PartialFailureWarns(t *testing.T) {
	crm := sampleCRM()
	useCRM(t, crm)
	Records = core.NewRecordLoader(failingNotes{crm}, nil, nil)

	out := captureStdout(t, func() {
		if err := showCmd.RunE(showCmd, []string{"J-42"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "warning: loading J-42: notes: notes service down") {
		t.Errorf("expected notes warning:\n%s", out)
	}
	if !strings.Contains(out, "J-42 Senior Go Engineer") {
		t.Errorf("record should still be shown:\n%s", out)
	}
}

// failingNotes wraps a fakeCRM whose notes endpoint fails.
type failingNotes struct{ *fakeCRM }

func (f failingNotes) ListNotes(_ context.Context, _ models.EntityType, _ string) ([]models.Note, error) {
	return nil, errors.New("notes service down")
}

func TestOrDash(t *testing.T) {
	if got := orDash("  "); got != "-" {
		t.Errorf("orDash(blank) = %q", got)
	}
	if got := orDash("x"); got != "x" {
		t.Errorf("orDash(x) = %q", got)
	}
}
