// Package mcp provides an MCP (Model Context Protocol) server that exposes
// staffdesk record lookups and note authoring as MCP tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// Services are the staffdesk services the MCP tools call. Sources, Config,
// Metrics, Layouts, Events and Logger may be nil.
type Services struct {
	Resolver core.ReferenceResolver
	Records  *core.RecordLoader
	Sources  core.EntitySource
	Notes    core.NoteService
	Config   *models.GlobalConfig
	Layouts  core.LayoutStore
	Metrics  observability.MetricsCalculator
	Events   observability.EventLog
	Logger   *observability.Logger
}

// Server wraps staffdesk services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	svc    Services
}

// NewServer creates a new MCP server over svc.
func NewServer(svc Services, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if svc.Logger == nil {
		svc.Logger = observability.NopLogger()
	}

	s := &Server{svc: svc}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "staffdesk", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type searchReferencesInput struct {
	Query    string   `json:"query" jsonschema:"required,search text matched against record titles and ids"`
	Selected []string `json:"selected,omitempty" jsonschema:"record ids already selected (e.g. J-42) to leave out of the results"`
}

type referenceOutput struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Display string `json:"display"`
	Value   string `json:"value"`
}

type searchReferencesOutput struct {
	References []referenceOutput `json:"references"`
	Count      int               `json:"count"`
}

type recordInput struct {
	RecordID string `json:"record_id" jsonschema:"required,the formatted record id (e.g. J-42, HM-7, T-3)"`
}

type fieldOutput struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type noteOutput struct {
	ID        string   `json:"id"`
	Action    string   `json:"action"`
	Text      string   `json:"text"`
	About     []string `json:"about,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

type recordOutput struct {
	RecordID    string        `json:"record_id"`
	Heading     string        `json:"heading"`
	Status      string        `json:"status"`
	URL         string        `json:"url"`
	Fields      []fieldOutput `json:"fields"`
	RecentNotes []noteOutput  `json:"recent_notes"`
	Interviews  int           `json:"interviews"`
	Warnings    []string      `json:"warnings,omitempty"`
}

type listNotesOutput struct {
	Notes []noteOutput `json:"notes"`
	Count int          `json:"count"`
}

type addNoteInput struct {
	RecordID   string   `json:"record_id" jsonschema:"required,the record the note is written on (e.g. J-42)"`
	Text       string   `json:"text" jsonschema:"required,the note text"`
	Action     string   `json:"action" jsonschema:"required,the note action (e.g. General, Client Call)"`
	About      []string `json:"about,omitempty" jsonschema:"further record ids the note is about, added to the record itself"`
	Additional []string `json:"additional_references,omitempty" jsonschema:"further record ids to link the note to"`
}

type addNoteOutput struct {
	Note    noteOutput `json:"note"`
	Message string     `json:"message"`
}

type historyEntryOutput struct {
	Action      string   `json:"action"`
	PerformedBy string   `json:"performed_by,omitempty"`
	PerformedAt string   `json:"performed_at,omitempty"`
	Lines       []string `json:"lines"`
}

type getHistoryOutput struct {
	Entries []historyEntryOutput `json:"entries"`
	Count   int                  `json:"count"`
}

type listFieldsInput struct {
	EntityType string `json:"entity_type" jsonschema:"required,the entity type (job, hiring_manager, task, job_seeker, organization, lead, placement)"`
	Query      string `json:"query,omitempty" jsonschema:"optional fuzzy filter over field labels"`
}

type catalogFieldOutput struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Custom bool   `json:"custom"`
	Hidden bool   `json:"hidden,omitempty"`
}

type listFieldsOutput struct {
	Fields []catalogFieldOutput `json:"fields"`
	Count  int                  `json:"count"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_references",
		Description: "Search every record type for references matching a query. Returns deduplicated references in priority order.",
	}, s.handleSearchReferences)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_record",
		Description: "Get a record by formatted id with its detail fields, recent notes and interview count.",
	}, s.handleGetRecord)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_notes",
		Description: "List the notes of a record, newest first.",
	}, s.handleListNotes)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_note",
		Description: "Add a note to a record. Text and action are required; the note is about the record itself unless about is given.",
	}, s.handleAddNote)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_history",
		Description: "Get the change history of a record rendered as human-readable lines.",
	}, s.handleGetHistory)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_fields",
		Description: "List the standard and custom fields available for an entity type.",
	}, s.handleListFields)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get usage metrics from the event log: notes created, rejected submissions, failed sources and workflows.",
	}, s.handleGetMetrics)
}

// --- Tool handlers ---

func (s *Server) handleSearchReferences(ctx context.Context, _ *gomcp.CallToolRequest, input searchReferencesInput) (*gomcp.CallToolResult, searchReferencesOutput, error) {
	selected := make([]models.EntityReference, 0, len(input.Selected))
	for _, id := range input.Selected {
		ref, err := parseReference(id)
		if err != nil {
			return errorResult(err.Error()), searchReferencesOutput{}, nil
		}
		selected = append(selected, ref)
	}

	refs, err := s.svc.Resolver.Search(ctx, input.Query, selected)
	if err != nil {
		return errorResult(fmt.Sprintf("searching references: %s", err)), searchReferencesOutput{}, nil
	}

	out := searchReferencesOutput{References: make([]referenceOutput, len(refs)), Count: len(refs)}
	for i, r := range refs {
		out.References[i] = referenceOutput{ID: r.ID, Type: string(r.Type), Display: r.Display, Value: r.Value}
	}
	return nil, out, nil
}

func (s *Server) handleGetRecord(ctx context.Context, _ *gomcp.CallToolRequest, input recordInput) (*gomcp.CallToolResult, recordOutput, error) {
	t, id, err := models.ParseRecordID(input.RecordID)
	if err != nil {
		return errorResult(err.Error()), recordOutput{}, nil
	}

	page := s.svc.Records.Load(ctx, t, id)
	if page.RecordErr != nil {
		return errorResult(fmt.Sprintf("getting record %s: %s", input.RecordID, page.RecordErr)), recordOutput{}, nil
	}

	layouts := core.NewFieldLayouts(t, s.svc.Layouts, s.svc.Logger, s.svc.Events)
	out := recordOutput{
		RecordID:   page.Record.Base().RecordID(),
		Heading:    page.Heading(),
		Status:     page.Record.Base().Status,
		URL:        models.RecordURL(t, id),
		Fields:     []fieldOutput{},
		Interviews: page.Interviews.Count(),
	}
	for _, f := range page.Fields(detailKeys(ctx, t, layouts)) {
		out.Fields = append(out.Fields, fieldOutput{Key: f.Key, Label: f.Label, Value: f.Value})
	}
	for _, n := range page.RecentNotes() {
		out.RecentNotes = append(out.RecentNotes, noteToOutput(n))
	}
	for _, part := range []struct {
		name string
		err  error
	}{{"notes", page.NotesErr}, {"history", page.HistoryErr}, {"fields", page.FieldDefsErr}} {
		if part.err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s unavailable: %s", part.name, part.err))
		}
	}
	return nil, out, nil
}

func (s *Server) handleListNotes(ctx context.Context, _ *gomcp.CallToolRequest, input recordInput) (*gomcp.CallToolResult, listNotesOutput, error) {
	t, id, err := models.ParseRecordID(input.RecordID)
	if err != nil {
		return errorResult(err.Error()), listNotesOutput{}, nil
	}

	page := s.svc.Records.Load(ctx, t, id)
	if page.NotesErr != nil {
		return errorResult(fmt.Sprintf("listing notes for %s: %s", input.RecordID, page.NotesErr)), listNotesOutput{}, nil
	}

	notes := page.Notes.All()
	out := listNotesOutput{Notes: make([]noteOutput, len(notes)), Count: len(notes)}
	for i, n := range notes {
		out.Notes[i] = noteToOutput(n)
	}
	return nil, out, nil
}

func (s *Server) handleAddNote(ctx context.Context, _ *gomcp.CallToolRequest, input addNoteInput) (*gomcp.CallToolResult, addNoteOutput, error) {
	t, id, err := models.ParseRecordID(input.RecordID)
	if err != nil {
		return errorResult(err.Error()), addNoteOutput{}, nil
	}

	log := s.svc.Logger.With("tool", "add_note", "record", models.FormatRecordID(id, t))
	page := s.svc.Records.Load(ctx, t, id)
	composer := page.NewComposer(s.svc.Notes, nil, core.NoteActions(s.svc.Config, t), log, s.svc.Events)
	composer.Open()

	about, err := core.LookupReferences(ctx, s.svc.Sources, input.About, log)
	if err != nil {
		return errorResult(err.Error()), addNoteOutput{}, nil
	}
	additional, err := core.LookupReferences(ctx, s.svc.Sources, input.Additional, log)
	if err != nil {
		return errorResult(err.Error()), addNoteOutput{}, nil
	}
	_ = composer.Edit(func(d *models.NoteDraft) {
		d.Text = input.Text
		d.Action = input.Action
	})
	for _, ref := range about {
		_ = composer.AddAboutReference(ref)
	}
	for _, ref := range additional {
		_ = composer.AddAdditionalReference(ref)
	}

	note, err := composer.Submit(ctx)
	if err != nil {
		if ve, ok := core.AsValidationError(err); ok {
			return errorResult(ve.Error()), addNoteOutput{}, nil
		}
		return errorResult(fmt.Sprintf("adding note to %s: %s", input.RecordID, err)), addNoteOutput{}, nil
	}

	out := addNoteOutput{
		Note:    noteToOutput(*note),
		Message: fmt.Sprintf("note added to %s", input.RecordID),
	}
	return nil, out, nil
}

func (s *Server) handleGetHistory(ctx context.Context, _ *gomcp.CallToolRequest, input recordInput) (*gomcp.CallToolResult, getHistoryOutput, error) {
	t, id, err := models.ParseRecordID(input.RecordID)
	if err != nil {
		return errorResult(err.Error()), getHistoryOutput{}, nil
	}

	page := s.svc.Records.Load(ctx, t, id)
	if page.HistoryErr != nil {
		return errorResult(fmt.Sprintf("getting history for %s: %s", input.RecordID, page.HistoryErr)), getHistoryOutput{}, nil
	}

	labels := page.HistoryLabels()
	out := getHistoryOutput{Entries: make([]historyEntryOutput, len(page.History)), Count: len(page.History)}
	for i, e := range page.History {
		entry := historyEntryOutput{
			Action:      e.Action,
			PerformedBy: e.PerformedByName,
			Lines:       core.DescribeHistory(e, labels),
		}
		if !e.PerformedAt.IsZero() {
			entry.PerformedAt = e.PerformedAt.Format(time.RFC3339)
		}
		out.Entries[i] = entry
	}
	return nil, out, nil
}

func (s *Server) handleListFields(ctx context.Context, _ *gomcp.CallToolRequest, input listFieldsInput) (*gomcp.CallToolResult, listFieldsOutput, error) {
	t, err := models.ParseEntityType(input.EntityType)
	if err != nil {
		return errorResult(err.Error()), listFieldsOutput{}, nil
	}

	catalog, err := s.svc.Records.Catalog(ctx, t)
	if err != nil {
		return errorResult(fmt.Sprintf("listing fields: %s", err)), listFieldsOutput{}, nil
	}
	entries := catalog.Entries()
	if input.Query != "" {
		entries = catalog.Find(input.Query, nil)
	}
	out := listFieldsOutput{Fields: make([]catalogFieldOutput, len(entries)), Count: len(entries)}
	for i, e := range entries {
		out.Fields[i] = catalogFieldOutput{Key: e.Key, Label: e.Label, Custom: e.Custom, Hidden: e.Hidden}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, observability.Metrics, error) {
	if s.svc.Metrics == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetrics(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	sinceTime, err := observability.ParseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetrics(), nil
	}

	metrics, err := s.svc.Metrics.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetrics(), nil
	}
	return nil, *metrics, nil
}

// --- Helpers ---

// detailKeys picks the panel a record summary shows: details when the type
// has one, else the list columns, else every standard field.
func detailKeys(ctx context.Context, t models.EntityType, layouts *core.FieldLayouts) []string {
	for _, panel := range []string{core.PanelDetails, core.PanelColumns} {
		for _, p := range core.Panels(t) {
			if p == panel {
				return layouts.Visible(ctx, panel)
			}
		}
	}
	var keys []string
	for _, f := range core.StandardFields(t) {
		keys = append(keys, f.Key)
	}
	return keys
}

func parseReference(recordID string) (models.EntityReference, error) {
	t, id, err := models.ParseRecordID(recordID)
	if err != nil {
		return models.EntityReference{}, err
	}
	return models.NewReference(id, t, ""), nil
}

func noteToOutput(n models.Note) noteOutput {
	out := noteOutput{
		ID:        n.ID,
		Action:    n.Action,
		Text:      n.Text,
		CreatedBy: n.CreatedByName,
	}
	for _, r := range n.AboutReferences {
		out.About = append(out.About, r.Display)
	}
	if !n.CreatedAt.IsZero() {
		out.CreatedAt = n.CreatedAt.Format(time.RFC3339)
	}
	return out
}

func emptyMetrics() observability.Metrics {
	return observability.Metrics{
		NotesByEntity:  make(map[string]int),
		SourceFailures: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
