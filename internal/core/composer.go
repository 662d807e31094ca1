package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// GenericSubmitError is shown when a note submission fails without
// field-level errors from the server.
const GenericSubmitError = "Failed to add note. Please try again."

var (
	// ErrComposerClosed is returned by operations that need an open composer.
	ErrComposerClosed = errors.New("note composer is not open")
	// ErrSubmitInFlight is returned when Submit is called while a submission is pending.
	ErrSubmitInFlight = errors.New("note submission already in progress")
	// ErrSubmitAbandoned is returned when the composer was closed while the
	// submission was in flight. The server may still have created the note.
	ErrSubmitAbandoned = errors.New("note composer closed before submission completed")
)

// ComposerState is the lifecycle state of a NoteComposer.
type ComposerState int

const (
	ComposerClosed ComposerState = iota
	ComposerOpen
	ComposerValidating
	ComposerSubmitting
)

func (s ComposerState) String() string {
	switch s {
	case ComposerClosed:
		return "closed"
	case ComposerOpen:
		return "open"
	case ComposerValidating:
		return "validating"
	case ComposerSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("ComposerState(%d)", int(s))
	}
}

// NoteService creates notes on a record. The CRM API client satisfies it.
type NoteService interface {
	CreateNote(ctx context.Context, t models.EntityType, id string, payload models.NotePayload) (*models.Note, error)
}

// fieldErrorCarrier is implemented by transport errors that carry the
// server's per-field validation messages.
type fieldErrorCarrier interface {
	ValidationFields() map[string]string
}

// SubmitError is a form-level submission failure.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string { return e.Message + ": " + e.Err.Error() }
func (e *SubmitError) Unwrap() error { return e.Err }

// ComposerOptions configures a NoteComposer.
type ComposerOptions struct {
	// Self is the record being viewed. Every fresh draft is about it.
	Self    models.EntityReference
	Service NoteService
	Notes   *NotesList

	// Users is the internal user directory. When non-nil, email
	// notification recipients must belong to it.
	Users []models.User

	// Actions lists the note actions offered for the record type. When
	// non-empty, the draft action must be one of them.
	Actions []string

	Logger *observability.Logger
	Events observability.EventLog
}

// NoteComposer holds the authoring state of a new note for one record.
// It is safe for concurrent use.
type NoteComposer struct {
	service NoteService
	self    models.EntityReference
	notes   *NotesList
	users   []models.User
	actions []string
	log     *observability.Logger
	events  observability.EventLog

	mu          sync.Mutex
	state       ComposerState
	draft       models.NoteDraft
	fieldErrors map[string]string
	formError   string
	hooks       []func(models.Note)
	epoch       RequestSequence
}

// NewNoteComposer creates a closed composer whose draft is seeded with a
// reference to opts.Self.
func NewNoteComposer(opts ComposerOptions) *NoteComposer {
	c := &NoteComposer{
		service: opts.Service,
		self:    opts.Self,
		notes:   opts.Notes,
		users:   opts.Users,
		actions: opts.Actions,
		log:     opts.Logger,
		events:  opts.Events,
	}
	if c.notes == nil {
		c.notes = NewNotesList(nil)
	}
	if c.log == nil {
		c.log = observability.NopLogger()
	}
	c.draft = c.freshDraft()
	return c
}

// OnCreated registers a hook run after every successful submission.
func (c *NoteComposer) OnCreated(fn func(models.Note)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Notes returns the in-memory notes list the composer prepends to.
func (c *NoteComposer) Notes() *NotesList {
	return c.notes
}

// State returns the current lifecycle state.
func (c *NoteComposer) State() ComposerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Draft returns a copy of the current draft.
func (c *NoteComposer) Draft() models.NoteDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyDraft(c.draft)
}

// FieldErrors returns the per-field errors of the last submit attempt.
func (c *NoteComposer) FieldErrors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fieldErrorsLocked()
}

// FormError returns the form-level error of the last submit attempt.
func (c *NoteComposer) FormError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formError
}

// Open makes the draft editable. Opening an open composer is a no-op.
func (c *NoteComposer) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ComposerClosed {
		c.state = ComposerOpen
	}
}

// Cancel closes the composer, discards the draft and abandons any
// submission in flight.
func (c *NoteComposer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch.Invalidate()
	c.resetLocked()
}

// Edit applies fn to the draft. It fails unless the composer is open.
func (c *NoteComposer) Edit(fn func(d *models.NoteDraft)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ComposerOpen {
		return ErrComposerClosed
	}
	fn(&c.draft)
	return nil
}

// AddAboutReference appends ref to the about references unless it is
// already there.
func (c *NoteComposer) AddAboutReference(ref models.EntityReference) error {
	return c.Edit(func(d *models.NoteDraft) {
		if !models.ContainsReference(d.AboutReferences, ref) {
			d.AboutReferences = append(d.AboutReferences, ref)
		}
	})
}

// RemoveAboutReference drops the about reference with the given key.
func (c *NoteComposer) RemoveAboutReference(key string) error {
	return c.Edit(func(d *models.NoteDraft) {
		d.AboutReferences = removeRef(d.AboutReferences, key)
	})
}

// AddAdditionalReference appends ref to the additional references unless
// it is already there.
func (c *NoteComposer) AddAdditionalReference(ref models.EntityReference) error {
	return c.Edit(func(d *models.NoteDraft) {
		if !models.ContainsReference(d.AdditionalReferences, ref) {
			d.AdditionalReferences = append(d.AdditionalReferences, ref)
		}
	})
}

// RemoveAdditionalReference drops the additional reference with the given key.
func (c *NoteComposer) RemoveAdditionalReference(key string) error {
	return c.Edit(func(d *models.NoteDraft) {
		d.AdditionalReferences = removeRef(d.AdditionalReferences, key)
	})
}

// SelectedReferences returns every reference on the draft, for excluding
// them from typeahead suggestions.
func (c *NoteComposer) SelectedReferences() []models.EntityReference {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.EntityReference, 0, len(c.draft.AboutReferences)+len(c.draft.AdditionalReferences))
	out = append(out, c.draft.AboutReferences...)
	return append(out, c.draft.AdditionalReferences...)
}

// Submit validates the draft and, when valid, creates the note. Validation
// failures return a *ValidationError without any network call. Server field
// errors also come back as a *ValidationError; other failures as a
// *SubmitError. In every failure case the composer stays open with the
// draft intact. On success the note is prepended to the notes list, the
// OnCreated hooks run and the composer closes with a fresh draft.
func (c *NoteComposer) Submit(ctx context.Context) (*models.Note, error) {
	c.mu.Lock()
	switch c.state {
	case ComposerOpen:
	case ComposerSubmitting, ComposerValidating:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	default:
		c.mu.Unlock()
		return nil, ErrComposerClosed
	}

	c.state = ComposerValidating
	c.formError = ""
	if errs := c.validateLocked(); len(errs) > 0 {
		c.fieldErrors = errs
		c.state = ComposerOpen
		c.mu.Unlock()
		observability.Emit(c.events, observability.LevelInfo, observability.EventNoteRejected,
			string(c.self.Type), "note failed validation", map[string]any{"fields": sortedKeys(errs)})
		return nil, &ValidationError{Fields: errs}
	}
	c.fieldErrors = nil

	payload, err := BuildNotePayload(c.draft)
	if err != nil {
		c.state = ComposerOpen
		c.formError = GenericSubmitError
		c.mu.Unlock()
		return nil, &SubmitError{Message: GenericSubmitError, Err: err}
	}
	c.state = ComposerSubmitting
	token := c.epoch.Next()
	c.mu.Unlock()

	note, err := c.service.CreateNote(ctx, c.self.Type, c.self.ID, payload)

	c.mu.Lock()
	if !c.epoch.IsCurrent(token) {
		c.mu.Unlock()
		c.log.Info("discarding note response for closed composer", "record", c.self.Value, "error", err)
		return nil, ErrSubmitAbandoned
	}

	if err != nil {
		c.state = ComposerOpen
		var carrier fieldErrorCarrier
		if errors.As(err, &carrier) && len(carrier.ValidationFields()) > 0 {
			c.fieldErrors = make(map[string]string)
			for k, v := range carrier.ValidationFields() {
				c.fieldErrors[k] = v
			}
			fields := c.fieldErrorsLocked()
			c.mu.Unlock()
			observability.Emit(c.events, observability.LevelWarn, observability.EventNoteRejected,
				string(c.self.Type), "note rejected by server", map[string]any{"fields": sortedKeys(fields)})
			return nil, &ValidationError{Fields: fields}
		}
		c.formError = GenericSubmitError
		c.mu.Unlock()
		c.log.Warn("note submission failed", "record", c.self.Value, "error", err)
		return nil, &SubmitError{Message: GenericSubmitError, Err: err}
	}
	if note == nil {
		c.state = ComposerOpen
		c.formError = GenericSubmitError
		c.mu.Unlock()
		return nil, &SubmitError{Message: GenericSubmitError, Err: errors.New("empty response")}
	}

	c.notes.Prepend(*note)
	hooks := make([]func(models.Note), len(c.hooks))
	copy(hooks, c.hooks)
	c.resetLocked()
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(*note)
	}
	observability.Emit(c.events, observability.LevelInfo, observability.EventNoteCreated,
		string(c.self.Type), "note created", map[string]any{"record": c.self.Value, "action": note.Action})
	return note, nil
}

// fieldErrorsLocked copies the field errors; c.mu must be held.
func (c *NoteComposer) fieldErrorsLocked() map[string]string {
	out := make(map[string]string, len(c.fieldErrors))
	for k, v := range c.fieldErrors {
		out[k] = v
	}
	return out
}

// Validate checks the draft without changing state.
func (c *NoteComposer) Validate() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *NoteComposer) validateLocked() map[string]string {
	errs := ValidateNoteDraft(c.draft)
	if action := strings.TrimSpace(c.draft.Action); action != "" && len(c.actions) > 0 && !slices.Contains(c.actions, action) {
		if errs == nil {
			errs = make(map[string]string)
		}
		errs["action"] = "Action must be one of: " + strings.Join(c.actions, ", ")
	}
	if c.users != nil {
		if unknown := unknownRecipients(c.draft.EmailNotification, c.users); len(unknown) > 0 {
			if errs == nil {
				errs = make(map[string]string)
			}
			errs["email_notification"] = "Not an internal user: " + strings.Join(unknown, ", ")
		}
	}
	return errs
}

func (c *NoteComposer) resetLocked() {
	c.state = ComposerClosed
	c.draft = c.freshDraft()
	c.fieldErrors = nil
	c.formError = ""
}

func (c *NoteComposer) freshDraft() models.NoteDraft {
	return models.NoteDraft{AboutReferences: []models.EntityReference{c.self}}
}

var noteMessages = map[string]string{
	"text":   "Note text is required",
	"action": "Action is required",
	"about":  "At least one reference is required",
}

// ValidateNoteDraft returns the field errors of d keyed by text, action and
// about, or nil when the draft can be submitted.
func ValidateNoteDraft(d models.NoteDraft) map[string]string {
	return validateStruct(d, noteMessages)
}

// BuildNotePayload serializes a draft into the create-note request body.
// About references are sent both as a JSON string and as an array.
func BuildNotePayload(d models.NoteDraft) (models.NotePayload, error) {
	about := d.AboutReferences
	if about == nil {
		about = []models.EntityReference{}
	}
	encoded, err := json.Marshal(about)
	if err != nil {
		return models.NotePayload{}, fmt.Errorf("encoding about references: %w", err)
	}
	additional := d.AdditionalReferences
	if additional == nil {
		additional = []models.EntityReference{}
	}
	recipients := d.EmailNotification
	if recipients == nil {
		recipients = []string{}
	}
	copyNote := "No"
	if d.CopyNote {
		copyNote = "Yes"
	}
	return models.NotePayload{
		Text:                          strings.TrimSpace(d.Text),
		Action:                        d.Action,
		About:                         string(encoded),
		AboutReferences:               about,
		AdditionalReferences:          additional,
		ScheduleNextAction:            d.ScheduleNextAction,
		EmailNotification:             recipients,
		CopyNote:                      copyNote,
		ReplaceGeneralContactComments: d.ReplaceGeneralContactComments,
	}, nil
}

func unknownRecipients(recipients []string, users []models.User) []string {
	var unknown []string
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		found := false
		for _, u := range users {
			if strings.EqualFold(r, u.Email) || r == u.ID || strings.EqualFold(r, u.Name) {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, r)
		}
	}
	return unknown
}

func removeRef(refs []models.EntityReference, key string) []models.EntityReference {
	out := refs[:0:0]
	for _, r := range refs {
		if r.Key() != key {
			out = append(out, r)
		}
	}
	return out
}

func copyDraft(d models.NoteDraft) models.NoteDraft {
	d.AboutReferences = append([]models.EntityReference(nil), d.AboutReferences...)
	d.AdditionalReferences = append([]models.EntityReference(nil), d.AdditionalReferences...)
	d.EmailNotification = append([]string(nil), d.EmailNotification...)
	return d
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NotesList is the in-memory notes of a record, newest first.
type NotesList struct {
	mu    sync.RWMutex
	notes []models.Note
}

// NewNotesList sorts notes newest first and wraps them.
func NewNotesList(notes []models.Note) *NotesList {
	sorted := append([]models.Note(nil), notes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return &NotesList{notes: sorted}
}

// Prepend adds a freshly created note at the top.
func (l *NotesList) Prepend(n models.Note) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = append([]models.Note{n}, l.notes...)
}

// All returns a copy of every note, newest first.
func (l *NotesList) All() []models.Note {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Note(nil), l.notes...)
}

// Recent returns at most n notes, newest first.
func (l *NotesList) Recent(n int) []models.Note {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.notes) {
		n = len(l.notes)
	}
	if n < 0 {
		n = 0
	}
	return append([]models.Note(nil), l.notes[:n]...)
}

// Len returns the number of notes.
func (l *NotesList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.notes)
}
