package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// --- Fake implementations ---

// fakeCRM serves canned records, notes and history for every core source
// interface the tools use.
type fakeCRM struct {
	mu      sync.Mutex
	records map[models.EntityType][]map[string]any
	notes   map[string][]models.Note
	history map[string][]models.HistoryEntry
	defs    map[models.EntityType][]models.FieldDefinition
	created []models.NotePayload
}

func newFakeCRM() *fakeCRM {
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	return &fakeCRM{
		records: map[models.EntityType][]map[string]any{
			models.EntityJob: {
				{"id": float64(42), "job_title": "Backend Engineer", "status": "Open", "location": "Sydney"},
				{"id": float64(43), "job_title": "Frontend Engineer"},
			},
			models.EntityOrganization: {{"id": float64(9), "name": "Acme Engineering"}},
		},
		notes: map[string][]models.Note{
			"job:42": {
				{ID: "1", Text: "kickoff", Action: "General", CreatedAt: base},
				{ID: "2", Text: "first round", Action: "Interview", CreatedAt: base.Add(time.Hour)},
			},
		},
		history: map[string][]models.HistoryEntry{
			"job:42": {
				{Action: models.HistoryCreate, PerformedByName: "Ann", PerformedAt: base},
				{Action: models.HistoryUpdate, Details: json.RawMessage(`{"before":{"status":"Draft"},"after":{"status":"Open"}}`)},
			},
		},
		defs: map[models.EntityType][]models.FieldDefinition{
			models.EntityJob: {
				{ID: "1", FieldName: "remote_policy", FieldLabel: "Remote Policy"},
				{ID: "2", FieldName: "internal_code", Hidden: true},
			},
		},
	}
}

func (f *fakeCRM) ListRecords(_ context.Context, t models.EntityType) ([]map[string]any, error) {
	return f.records[t], nil
}

func (f *fakeCRM) GetRecord(_ context.Context, t models.EntityType, id string) (map[string]any, error) {
	for _, r := range f.records[t] {
		if models.Stringify(r["id"]) == id {
			return r, nil
		}
	}
	return nil, errors.New("crm api: 404: not found")
}

func (f *fakeCRM) ListNotes(_ context.Context, t models.EntityType, id string) ([]models.Note, error) {
	return f.notes[string(t)+":"+id], nil
}

func (f *fakeCRM) ListHistory(_ context.Context, t models.EntityType, id string) ([]models.HistoryEntry, error) {
	return f.history[string(t)+":"+id], nil
}

func (f *fakeCRM) FieldDefinitions(_ context.Context, t models.EntityType) ([]models.FieldDefinition, error) {
	return f.defs[t], nil
}

func (f *fakeCRM) CreateNote(_ context.Context, _ models.EntityType, _ string, p models.NotePayload) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	return &models.Note{ID: "99", Text: p.Text, Action: p.Action, AboutReferences: p.AboutReferences, CreatedAt: time.Now()}, nil
}

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
}

func (f *fakeMetricsCalculator) Calculate(_ time.Time) (*observability.Metrics, error) {
	return f.metrics, nil
}

// --- Test helpers ---

func newTestServer(crm *fakeCRM, metrics observability.MetricsCalculator) *Server {
	return NewServer(Services{
		Resolver: core.NewReferenceResolver(crm, core.ResolverOptions{}),
		Records:  core.NewRecordLoader(crm, nil, nil),
		Sources:  crm,
		Notes:    crm,
		Metrics:  metrics,
	}, "test")
}

// callTool is a helper that connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	// Connect server (non-blocking).
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decodeOutput reads a tool's structured output into out, falling back to
// the text content.
func decodeOutput(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	text := extractText(result)
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return
	}
	if result.StructuredContent == nil {
		t.Fatalf("no structured output (text was: %s)", text)
	}
	data, _ := json.Marshal(result.StructuredContent)
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshalling output: %v", err)
	}
}

func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Tests ---

func TestSearchReferences(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)

	result := callTool(t, srv, "search_references", map[string]any{"query": "eng", "selected": []string{"J-43"}})

	var out searchReferencesOutput
	decodeOutput(t, result, &out)
	if out.Count != 2 {
		t.Fatalf("expected 2 references, got %+v", out)
	}
	if out.References[0].Value != "J-42" || out.References[1].Value != "O-9" {
		t.Errorf("expected job before organization, got %+v", out.References)
	}
}

func TestSearchReferences_InvalidSelected(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)
	result := callTool(t, srv, "search_references", map[string]any{"query": "eng", "selected": []string{"nope"}})
	if !result.IsError {
		t.Error("expected error for malformed selected id")
	}
}

func TestGetRecord(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)

	result := callTool(t, srv, "get_record", map[string]any{"record_id": "J-42"})

	var out recordOutput
	decodeOutput(t, result, &out)
	if out.Heading != "J-42 Backend Engineer" || out.Status != "Open" {
		t.Errorf("unexpected record %+v", out)
	}
	if out.URL != "/dashboard/jobs/view?id=42" {
		t.Errorf("unexpected url %q", out.URL)
	}
	if len(out.RecentNotes) != 2 || out.RecentNotes[0].Text != "first round" {
		t.Errorf("expected newest note first, got %+v", out.RecentNotes)
	}
	if out.Interviews != 1 {
		t.Errorf("expected 1 interview, got %d", out.Interviews)
	}
	found := false
	for _, f := range out.Fields {
		if f.Key == "location" && f.Value == "Sydney" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected location field, got %+v", out.Fields)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)

	result := callTool(t, srv, "get_record", map[string]any{"record_id": "J-999"})
	if !result.IsError {
		t.Fatal("expected error result for missing record")
	}
	if !strings.Contains(extractText(result), "J-999") {
		t.Errorf("expected record id in message, got %q", extractText(result))
	}
}

func TestListNotes(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)

	var out listNotesOutput
	decodeOutput(t, callTool(t, srv, "list_notes", map[string]any{"record_id": "J-42"}), &out)
	if out.Count != 2 || out.Notes[0].ID != "2" {
		t.Errorf("unexpected notes %+v", out)
	}
}

func TestAddNote(t *testing.T) {
	crm := newFakeCRM()
	srv := newTestServer(crm, nil)

	result := callTool(t, srv, "add_note", map[string]any{
		"record_id":             "J-42",
		"text":                  "Called the client",
		"action":                "Client Update",
		"additional_references": []string{"O-9"},
	})

	var out addNoteOutput
	decodeOutput(t, result, &out)
	if out.Note.ID != "99" {
		t.Errorf("unexpected note %+v", out.Note)
	}
	if len(crm.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(crm.created))
	}
	p := crm.created[0]
	if len(p.AboutReferences) != 1 || p.AboutReferences[0].Display != "J-42 Backend Engineer" {
		t.Errorf("expected note about the record itself, got %+v", p.AboutReferences)
	}
	if len(p.AdditionalReferences) != 1 || p.AdditionalReferences[0].Display != "O-9 Acme Engineering" {
		t.Errorf("unexpected additional references %+v", p.AdditionalReferences)
	}
}

func TestAddNote_AboutAppendsToSelf(t *testing.T) {
	crm := newFakeCRM()
	srv := newTestServer(crm, nil)

	result := callTool(t, srv, "add_note", map[string]any{
		"record_id": "J-42",
		"text":      "Intro call",
		"action":    "General",
		"about":     []string{"O-9", "J-42"},
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", extractText(result))
	}
	if len(crm.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(crm.created))
	}
	got := crm.created[0].AboutReferences
	want := []string{"J-42 Backend Engineer", "O-9 Acme Engineering"}
	if len(got) != len(want) {
		t.Fatalf("expected about references %v, got %+v", want, got)
	}
	for i, w := range want {
		if got[i].Display != w {
			t.Errorf("about[%d] display = %q, want %q", i, got[i].Display, w)
		}
	}
}

func TestAddNote_UnknownActionRejected(t *testing.T) {
	crm := newFakeCRM()
	srv := newTestServer(crm, nil)

	result := callTool(t, srv, "add_note", map[string]any{"record_id": "J-42", "text": "hello", "action": "Anything"})
	if !result.IsError {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(extractText(result), "Action must be one of") {
		t.Errorf("expected the allowed actions named, got %q", extractText(result))
	}
	if len(crm.created) != 0 {
		t.Error("invalid note reached the service")
	}
}

func TestAddNote_ConfiguredActions(t *testing.T) {
	crm := newFakeCRM()
	srv := NewServer(Services{
		Resolver: core.NewReferenceResolver(crm, core.ResolverOptions{}),
		Records:  core.NewRecordLoader(crm, nil, nil),
		Sources:  crm,
		Notes:    crm,
		Config:   &models.GlobalConfig{NoteActions: map[models.EntityType][]string{models.EntityJob: {"Chased"}}},
	}, "test")

	result := callTool(t, srv, "add_note", map[string]any{"record_id": "J-42", "text": "hello", "action": "Chased"})
	if result.IsError {
		t.Fatalf("configured action rejected: %s", extractText(result))
	}
	result = callTool(t, srv, "add_note", map[string]any{"record_id": "J-42", "text": "hello", "action": "General"})
	if !result.IsError {
		t.Error("expected default action rejected when the type is configured")
	}
	if len(crm.created) != 1 {
		t.Errorf("expected one create call, got %d", len(crm.created))
	}
}

func TestAddNote_BlankTextRejected(t *testing.T) {
	crm := newFakeCRM()
	srv := newTestServer(crm, nil)

	result := callTool(t, srv, "add_note", map[string]any{"record_id": "J-42", "text": "   ", "action": "General"})
	if !result.IsError {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(extractText(result), "text") {
		t.Errorf("expected text field named, got %q", extractText(result))
	}
	if len(crm.created) != 0 {
		t.Error("invalid note reached the service")
	}
}

func TestGetHistory(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)

	var out getHistoryOutput
	decodeOutput(t, callTool(t, srv, "get_history", map[string]any{"record_id": "J-42"}), &out)
	if out.Count != 2 {
		t.Fatalf("expected 2 entries, got %+v", out)
	}
	if out.Entries[0].Lines[0] != "Record created by Ann" {
		t.Errorf("unexpected create line %v", out.Entries[0].Lines)
	}
	if out.Entries[1].Lines[0] != "Status: Draft → Open" {
		t.Errorf("expected labelled update line, got %v", out.Entries[1].Lines)
	}
}

func TestListFields(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)

	var out listFieldsOutput
	decodeOutput(t, callTool(t, srv, "list_fields", map[string]any{"entity_type": "job"}), &out)
	var custom []string
	for _, f := range out.Fields {
		if f.Custom {
			custom = append(custom, f.Key)
		}
	}
	if strings.Join(custom, ",") != "custom:remote_policy,custom:internal_code" {
		t.Errorf("unexpected custom fields %v", custom)
	}

	decodeOutput(t, callTool(t, srv, "list_fields", map[string]any{"entity_type": "job", "query": "remote"}), &out)
	if out.Count == 0 || out.Fields[0].Key != "custom:remote_policy" {
		t.Errorf("expected fuzzy match first, got %+v", out.Fields)
	}
}

func TestListFields_UnknownType(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)
	result := callTool(t, srv, "list_fields", map[string]any{"entity_type": "spaceship"})
	if !result.IsError {
		t.Error("expected error for unknown entity type")
	}
}

func TestGetMetrics(t *testing.T) {
	calc := &fakeMetricsCalculator{metrics: &observability.Metrics{
		NotesCreated:   4,
		NotesByEntity:  map[string]int{"job": 4},
		SourceFailures: map[string]int{},
		EventCount:     6,
	}}
	srv := newTestServer(newFakeCRM(), calc)

	var out observability.Metrics
	decodeOutput(t, callTool(t, srv, "get_metrics", map[string]any{"since": "30d"}), &out)
	if out.NotesCreated != 4 || out.NotesByEntity["job"] != 4 {
		t.Errorf("unexpected metrics %+v", out)
	}
}

func TestGetMetrics_Unavailable(t *testing.T) {
	srv := newTestServer(newFakeCRM(), nil)
	result := callTool(t, srv, "get_metrics", map[string]any{})
	if !result.IsError {
		t.Error("expected error without a metrics calculator")
	}
}
