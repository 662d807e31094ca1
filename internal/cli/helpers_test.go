package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// captureStdout runs fn and returns everything it printed to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = origStdout

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading pipe: %v", err)
	}
	return string(out)
}

// fakeCRM is an in-memory CRM API serving records keyed by "type:id".
type fakeCRM struct {
	mu sync.Mutex

	records  map[string]map[string]any
	notes    map[string][]models.Note
	history  map[string][]models.HistoryEntry
	defs     map[models.EntityType][]models.FieldDefinition
	headers  map[models.EntityType][]string
	users    []models.User
	recErr   error
	listErr  error
	noteErr  error
	saveErr  error
	wfErr    error
	created  []models.NotePayload
	saved    map[models.EntityType][]string
	deletes  []string
	transfer []string
	appts    []models.Appointment
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		records: make(map[string]map[string]any),
		notes:   make(map[string][]models.Note),
		history: make(map[string][]models.HistoryEntry),
		defs:    make(map[models.EntityType][]models.FieldDefinition),
		headers: make(map[models.EntityType][]string),
		saved:   make(map[models.EntityType][]string),
	}
}

func crmKey(t models.EntityType, id string) string { return string(t) + ":" + id }

func (f *fakeCRM) add(t models.EntityType, raw map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[crmKey(t, models.Stringify(raw["id"]))] = raw
}

func (f *fakeCRM) GetRecord(_ context.Context, t models.EntityType, id string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recErr != nil {
		return nil, f.recErr
	}
	raw, ok := f.records[crmKey(t, id)]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return raw, nil
}

func (f *fakeCRM) ListRecords(_ context.Context, t models.EntityType) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []map[string]any
	prefix := string(t) + ":"
	for key, raw := range f.records {
		if strings.HasPrefix(key, prefix) {
			out = append(out, raw)
		}
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(records []map[string]any) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && models.Stringify(records[j]["id"]) < models.Stringify(records[j-1]["id"]); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func (f *fakeCRM) ListNotes(_ context.Context, t models.EntityType, id string) ([]models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Note(nil), f.notes[crmKey(t, id)]...), nil
}

func (f *fakeCRM) ListHistory(_ context.Context, t models.EntityType, id string) ([]models.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.HistoryEntry(nil), f.history[crmKey(t, id)]...), nil
}

func (f *fakeCRM) FieldDefinitions(_ context.Context, t models.EntityType) ([]models.FieldDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.FieldDefinition(nil), f.defs[t]...), nil
}

func (f *fakeCRM) CreateNote(_ context.Context, t models.EntityType, id string, payload models.NotePayload) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noteErr != nil {
		return nil, f.noteErr
	}
	f.created = append(f.created, payload)
	note := &models.Note{
		ID:              "n-" + id,
		Text:            payload.Text,
		Action:          payload.Action,
		AboutReferences: payload.AboutReferences,
		CopyNote:        payload.CopyNote,
		CreatedAt:       time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		CreatedByName:   "Ann Recruiter",
	}
	f.notes[crmKey(t, id)] = append([]models.Note{*note}, f.notes[crmKey(t, id)]...)
	return note, nil
}

func (f *fakeCRM) HeaderConfig(_ context.Context, t models.EntityType) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.headers[t]
	return append([]string(nil), fields...), ok, nil
}

func (f *fakeCRM) SaveHeaderConfig(_ context.Context, t models.EntityType, fields []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.headers[t] = append([]string(nil), fields...)
	f.saved[t] = append([]string(nil), fields...)
	return nil
}

func (f *fakeCRM) InternalUsers(_ context.Context) ([]models.User, error) {
	return f.users, nil
}

func (f *fakeCRM) RequestDelete(_ context.Context, t models.EntityType, id, reason string) error {
	if f.wfErr != nil {
		return f.wfErr
	}
	f.deletes = append(f.deletes, models.FormatRecordID(id, t)+": "+reason)
	return nil
}

func (f *fakeCRM) TransferHiringManager(_ context.Context, id, target string) error {
	if f.wfErr != nil {
		return f.wfErr
	}
	f.transfer = append(f.transfer, id+"->"+target)
	return nil
}

func (f *fakeCRM) CreateAppointment(_ context.Context, appt models.Appointment) error {
	if f.wfErr != nil {
		return f.wfErr
	}
	f.appts = append(f.appts, appt)
	return nil
}

// memLayouts is an in-memory layout store.
type memLayouts struct {
	mu     sync.Mutex
	fields map[string][]string
}

func newMemLayouts() *memLayouts {
	return &memLayouts{fields: make(map[string][]string)}
}

func (m *memLayouts) Get(_ context.Context, key string) ([]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.fields[key]
	return append([]string(nil), fields...), ok, nil
}

func (m *memLayouts) Set(_ context.Context, key string, fields []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[key] = append([]string(nil), fields...)
	return nil
}

func (m *memLayouts) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fields, key)
	return nil
}

func (m *memLayouts) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// memEvents is an in-memory event log.
type memEvents struct {
	mu     sync.Mutex
	events []observability.Event
}

func (m *memEvents) Write(e observability.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) Read(filter observability.EventFilter) ([]observability.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []observability.Event
	for _, e := range m.events {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memEvents) Close() error { return nil }

func (m *memEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// sampleCRM returns a CRM holding one job at an organization, a hiring
// manager, a task and two job seekers.
func sampleCRM() *fakeCRM {
	crm := newFakeCRM()
	crm.add(models.EntityJob, map[string]any{
		"id":                float64(42),
		"job_title":         "Senior Go Engineer",
		"status":            "Open",
		"organization_id":   "12",
		"organization_name": "Acme Corp",
		"location":          "Remote",
		"employment_type":   "Contract",
		"custom_fields":     map[string]any{"clearance": "Baseline"},
	})
	crm.add(models.EntityOrganization, map[string]any{
		"id":      float64(12),
		"name":    "Acme Corp",
		"website": "https://acme.example",
	})
	crm.add(models.EntityHiringManager, map[string]any{
		"id":              float64(7),
		"first_name":      "Jane",
		"last_name":       "Doe",
		"email":           "jane@acme.example",
		"organization_id": "12",
	})
	crm.add(models.EntityTask, map[string]any{"id": float64(3), "title": "Call back Jane"})
	crm.add(models.EntityJobSeeker, map[string]any{"id": float64(19), "full_name": "Sam Lee", "email": "sam@example.com"})
	crm.add(models.EntityJobSeeker, map[string]any{"id": float64(20), "full_name": "Kim Park", "email": "kim@example.com"})
	crm.defs[models.EntityJob] = []models.FieldDefinition{
		{ID: "1", FieldName: "clearance", FieldLabel: "Security Clearance"},
		{ID: "2", FieldName: "internal_code", FieldLabel: "Internal Code", Hidden: true},
	}
	crm.users = []models.User{{ID: "u1", Name: "Ann Recruiter", Email: "ann@example.com"}}
	return crm
}

// useCRM wires crm into the package service variables for the duration of
// the test.
func useCRM(t *testing.T, crm *fakeCRM) (*memLayouts, *memEvents) {
	t.Helper()
	origRecords, origSources, origResolver := Records, Sources, Resolver
	origNotes, origHeaders, origLayouts := Notes, Headers, Layouts
	origUsers, origWorkflows, origEvents := Users, Workflows, EventLog
	origConfig := Config
	t.Cleanup(func() {
		Records, Sources, Resolver = origRecords, origSources, origResolver
		Notes, Headers, Layouts = origNotes, origHeaders, origLayouts
		Users, Workflows, EventLog = origUsers, origWorkflows, origEvents
		Config = origConfig
	})

	layouts := newMemLayouts()
	events := &memEvents{}
	Records = core.NewRecordLoader(crm, nil, events)
	Sources = crm
	Resolver = core.NewReferenceResolver(crm, core.ResolverOptions{Events: events})
	Notes = crm
	Headers = crm
	Layouts = layouts
	Users = crm
	Workflows = core.NewWorkflows(crm, nil, events)
	EventLog = events
	Config = &models.GlobalConfig{}
	return layouts, events
}
