package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
	"golang.org/x/sync/errgroup"
)

// RecentNotesCount is how many notes the summary panel shows.
const RecentNotesCount = 2

// RecordSource fetches everything a record view shows. The CRM API client
// satisfies it.
type RecordSource interface {
	GetRecord(ctx context.Context, t models.EntityType, id string) (map[string]any, error)
	ListNotes(ctx context.Context, t models.EntityType, id string) ([]models.Note, error)
	ListHistory(ctx context.Context, t models.EntityType, id string) ([]models.HistoryEntry, error)
	FieldDefinitions(ctx context.Context, t models.EntityType) ([]models.FieldDefinition, error)
}

// RecordPage is a loaded record view. Each part carries its own error so
// one failed fetch never hides the others.
type RecordPage struct {
	Type models.EntityType
	ID   string

	Record    models.Normalized
	RecordErr error

	Notes    *NotesList
	NotesErr error

	History    []models.HistoryEntry
	HistoryErr error

	FieldDefs    []models.FieldDefinition
	FieldDefsErr error

	Interviews *InterviewCounter
}

// RecordLoader loads record pages.
type RecordLoader struct {
	source RecordSource
	log    *observability.Logger
	events observability.EventLog
}

// NewRecordLoader creates a RecordLoader over source.
func NewRecordLoader(source RecordSource, log *observability.Logger, events observability.EventLog) *RecordLoader {
	if log == nil {
		log = observability.NopLogger()
	}
	return &RecordLoader{source: source, log: log, events: events}
}

// Load fetches the record, its notes, its history and the custom field
// definitions of its type concurrently.
func (l *RecordLoader) Load(ctx context.Context, t models.EntityType, id string) *RecordPage {
	page := &RecordPage{Type: t, ID: id}
	var notes []models.Note

	var g errgroup.Group
	g.Go(func() error {
		raw, err := l.source.GetRecord(ctx, t, id)
		if err != nil {
			page.RecordErr = err
			l.log.Warn("loading record", "type", string(t), "id", id, "error", err)
			observability.Emit(l.events, observability.LevelError, observability.EventRecordFetchFailed, string(t),
				"record fetch failed", map[string]any{"id": id, "error": err.Error()})
			return nil
		}
		page.Record = Normalize(t, raw, l.log)
		return nil
	})
	g.Go(func() error {
		n, err := l.source.ListNotes(ctx, t, id)
		if err != nil {
			page.NotesErr = err
			l.log.Warn("loading notes", "type", string(t), "id", id, "error", err)
			return nil
		}
		notes = n
		return nil
	})
	g.Go(func() error {
		h, err := l.source.ListHistory(ctx, t, id)
		if err != nil {
			page.HistoryErr = err
			l.log.Warn("loading history", "type", string(t), "id", id, "error", err)
			return nil
		}
		page.History = h
		return nil
	})
	g.Go(func() error {
		defs, err := l.source.FieldDefinitions(ctx, t)
		if err != nil {
			page.FieldDefsErr = err
			l.log.Warn("loading field definitions", "type", string(t), "error", err)
			return nil
		}
		page.FieldDefs = defs
		return nil
	})
	// Every fetch records its own error, so Wait has nothing to report.
	_ = g.Wait()

	page.Notes = NewNotesList(notes)
	page.Interviews = NewInterviewCounter(page.Notes)
	return page
}

// Catalog builds the field catalog of t from its custom field definitions
// alone, for listings that have no record at hand.
func (l *RecordLoader) Catalog(ctx context.Context, t models.EntityType) (*Catalog, error) {
	defs, err := l.source.FieldDefinitions(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("loading field definitions for %s: %w", t, err)
	}
	return BuildCatalog(StandardFields(t), defs, nil), nil
}

// Self is the reference every new note on this page defaults to.
func (p *RecordPage) Self() models.EntityReference {
	if p.Record == nil {
		return models.NewReference(p.ID, p.Type, "")
	}
	rec := p.Record.Base()
	return models.NewReference(p.ID, p.Type, models.TitleOf(p.Type, rec.Raw))
}

// Heading is the title line of the page.
func (p *RecordPage) Heading() string {
	if p.Record == nil {
		return models.FormatRecordID(p.ID, p.Type)
	}
	return p.Record.Heading()
}

// Catalog builds the field catalog for this record.
func (p *RecordPage) Catalog() *Catalog {
	var custom map[string]any
	if p.Record != nil {
		custom = p.Record.Base().CustomFields
	}
	return BuildCatalog(StandardFields(p.Type), p.FieldDefs, custom)
}

// Fields renders the given layout keys of this record.
func (p *RecordPage) Fields(keys []string) []RenderedField {
	if p.Record == nil {
		return nil
	}
	return RenderFields(keys, p.Catalog(), p.Record.Base())
}

// RecentNotes returns the notes shown in the summary panel.
func (p *RecordPage) RecentNotes() []models.Note {
	return p.Notes.Recent(RecentNotesCount)
}

// HistoryLabels maps raw field keys to catalog labels for history lines.
func (p *RecordPage) HistoryLabels() map[string]string {
	labels := make(map[string]string)
	for _, e := range p.Catalog().Entries() {
		labels[strings.TrimPrefix(e.Key, models.CustomFieldPrefix)] = e.Label
	}
	return labels
}

// NewComposer creates a note composer for this page offering actions.
// Created notes are prepended to the page's notes and invalidate its
// interview count.
func (p *RecordPage) NewComposer(service NoteService, users []models.User, actions []string, log *observability.Logger, events observability.EventLog) *NoteComposer {
	c := NewNoteComposer(ComposerOptions{
		Self:    p.Self(),
		Service: service,
		Notes:   p.Notes,
		Users:   users,
		Actions: actions,
		Logger:  log,
		Events:  events,
	})
	c.OnCreated(func(models.Note) { p.Interviews.Invalidate() })
	return c
}

// AttachComposer shows notes created by c, a composer opened on an earlier
// load of the same record, on p as well.
func (p *RecordPage) AttachComposer(c *NoteComposer) {
	c.OnCreated(func(n models.Note) {
		p.Notes.Prepend(n)
		p.Interviews.Invalidate()
	})
}

// Err summarizes the failed parts of the page, or nil.
func (p *RecordPage) Err() error {
	var parts []string
	for name, err := range map[string]error{
		"record":  p.RecordErr,
		"notes":   p.NotesErr,
		"history": p.HistoryErr,
		"fields":  p.FieldDefsErr,
	} {
		if err != nil {
			parts = append(parts, name+": "+err.Error())
		}
	}
	if len(parts) == 0 {
		return nil
	}
	sort.Strings(parts)
	return fmt.Errorf("loading %s: %s", models.FormatRecordID(p.ID, p.Type), strings.Join(parts, "; "))
}

// InterviewCounter caches the number of interview notes of a record.
type InterviewCounter struct {
	notes *NotesList

	mu    sync.Mutex
	valid bool
	count int
}

// NewInterviewCounter creates a counter over notes.
func NewInterviewCounter(notes *NotesList) *InterviewCounter {
	return &InterviewCounter{notes: notes}
}

// Count returns the cached count, recomputing it after an invalidation.
func (c *InterviewCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		c.count = CountInterviews(c.notes.All())
		c.valid = true
	}
	return c.count
}

// Invalidate forces the next Count to recompute.
func (c *InterviewCounter) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// CountInterviews counts notes whose action mentions an interview.
func CountInterviews(notes []models.Note) int {
	n := 0
	for _, note := range notes {
		if strings.Contains(strings.ToLower(note.Action), "interview") {
			n++
		}
	}
	return n
}
