package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// Panel identifiers shared by the record views.
const (
	PanelHeader              = "header"
	PanelDetails             = "details"
	PanelJobDetails          = "jobDetails"
	PanelOrganizationDetails = "organizationDetails"
	PanelRecentNotes         = "recentNotes"
	PanelColumns             = "columns"
)

// LayoutStore persists panel layouts. storage.LayoutStore satisfies it.
type LayoutStore interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, fields []string) error
	Reset(ctx context.Context, key string) error
	// Keys lists every saved layout key in sorted order.
	Keys(ctx context.Context) ([]string, error)
}

// LayoutKey is the store key of a panel layout. Layouts are scoped per
// entity type and shared by every record of that type.
func LayoutKey(t models.EntityType, panelID string) string {
	return string(t) + ":" + panelID
}

var standardFields = map[models.EntityType][]models.FieldOption{
	models.EntityJob: {
		{Key: "job_title", Label: "Job Title"},
		{Key: "status", Label: "Status"},
		{Key: "organization_name", Label: "Organization"},
		{Key: "hiring_manager_name", Label: "Hiring Manager"},
		{Key: "location", Label: "Location"},
		{Key: "employment_type", Label: "Employment Type"},
		{Key: "openings", Label: "Openings"},
		{Key: "salary_min", Label: "Salary From"},
		{Key: "salary_max", Label: "Salary To"},
		{Key: "owner", Label: "Owner"},
		{Key: "created_at", Label: "Created"},
		{Key: "description", Label: "Description"},
	},
	models.EntityHiringManager: {
		{Key: "full_name", Label: "Name"},
		{Key: "title", Label: "Title"},
		{Key: "status", Label: "Status"},
		{Key: "email", Label: "Email"},
		{Key: "phone", Label: "Phone"},
		{Key: "organization_name", Label: "Organization"},
		{Key: "owner", Label: "Owner"},
		{Key: "created_at", Label: "Created"},
	},
	models.EntityTask: {
		{Key: "title", Label: "Title"},
		{Key: "status", Label: "Status"},
		{Key: "priority", Label: "Priority"},
		{Key: "assigned_to", Label: "Assigned To"},
		{Key: "due_date", Label: "Due Date"},
		{Key: "description", Label: "Description"},
		{Key: "owner", Label: "Owner"},
		{Key: "created_at", Label: "Created"},
	},
	models.EntityJobSeeker: {
		{Key: "full_name", Label: "Name"},
		{Key: "status", Label: "Status"},
		{Key: "email", Label: "Email"},
		{Key: "phone", Label: "Phone"},
		{Key: "current_title", Label: "Current Title"},
		{Key: "location", Label: "Location"},
		{Key: "owner", Label: "Owner"},
		{Key: "created_at", Label: "Created"},
	},
	models.EntityOrganization: {
		{Key: "name", Label: "Name"},
		{Key: "status", Label: "Status"},
		{Key: "website", Label: "Website"},
		{Key: "phone", Label: "Phone"},
		{Key: "address", Label: "Address"},
	},
}

var defaultLayouts = map[models.EntityType]map[string][]string{
	models.EntityJob: {
		PanelHeader:              {"status", "organization_name", "location", "employment_type"},
		PanelDetails:             {"job_title", "status", "employment_type", "openings", "salary_min", "salary_max", "location", "owner"},
		PanelOrganizationDetails: {"name", "website", "phone", "address"},
	},
	models.EntityHiringManager: {
		PanelHeader:              {"title", "organization_name", "email", "phone"},
		PanelDetails:             {"full_name", "title", "status", "email", "phone", "owner"},
		PanelOrganizationDetails: {"name", "website", "phone", "address"},
		PanelRecentNotes:         {"action", "text", "created_by_name"},
	},
	models.EntityTask: {
		PanelHeader:      {"status", "priority", "due_date", "assigned_to"},
		PanelDetails:     {"title", "status", "priority", "assigned_to", "due_date", "description"},
		PanelRecentNotes: {"action", "text", "created_by_name"},
	},
	models.EntityJobSeeker: {
		PanelColumns: {"full_name", "status", "email", "phone", "current_title", "location"},
	},
}

// StandardFields returns the built-in fields of an entity type.
func StandardFields(t models.EntityType) []models.FieldOption {
	return append([]models.FieldOption(nil), standardFields[t]...)
}

// Panels returns the configurable panels of an entity type.
func Panels(t models.EntityType) []string {
	var out []string
	for _, p := range []string{PanelHeader, PanelDetails, PanelJobDetails, PanelOrganizationDetails, PanelRecentNotes, PanelColumns} {
		if _, ok := defaultLayouts[t][p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// DefaultLayout returns the built-in field keys of a panel.
func DefaultLayout(t models.EntityType, panelID string) []string {
	return append([]string(nil), defaultLayouts[t][panelID]...)
}

// FieldLayouts tracks which fields each panel of an entity type shows.
// Changes are persisted to the LayoutStore without surfacing write errors:
// a failed write is logged and the in-memory layout still changes.
type FieldLayouts struct {
	entity models.EntityType
	store  LayoutStore
	log    *observability.Logger
	events observability.EventLog

	mu     sync.Mutex
	panels map[string][]string
}

// NewFieldLayouts creates the layout tracker of an entity type. A nil store
// keeps layouts in memory only.
func NewFieldLayouts(t models.EntityType, store LayoutStore, log *observability.Logger, events observability.EventLog) *FieldLayouts {
	if log == nil {
		log = observability.NopLogger()
	}
	return &FieldLayouts{
		entity: t,
		store:  store,
		log:    log,
		events: events,
		panels: make(map[string][]string),
	}
}

// Visible returns the ordered keys a panel shows: the stored layout when
// there is one, otherwise the default.
func (l *FieldLayouts) Visible(ctx context.Context, panelID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.loadLocked(ctx, panelID)...)
}

func (l *FieldLayouts) loadLocked(ctx context.Context, panelID string) []string {
	if keys, ok := l.panels[panelID]; ok {
		return keys
	}
	keys := DefaultLayout(l.entity, panelID)
	if l.store != nil {
		stored, ok, err := l.store.Get(ctx, LayoutKey(l.entity, panelID))
		switch {
		case err != nil:
			l.log.Warn("reading panel layout", "key", LayoutKey(l.entity, panelID), "error", err)
		case ok:
			keys = dedupeKeys(stored)
		}
	}
	l.panels[panelID] = keys
	return keys
}

// Toggle flips key in the panel: an absent key is appended to the end, a
// present key is removed. It returns the new layout.
func (l *FieldLayouts) Toggle(ctx context.Context, panelID, key string) []string {
	l.mu.Lock()
	current := l.loadLocked(ctx, panelID)
	next := make([]string, 0, len(current)+1)
	removed := false
	for _, k := range current {
		if k == key {
			removed = true
			continue
		}
		next = append(next, k)
	}
	if !removed {
		next = append(next, key)
	}
	l.panels[panelID] = next
	out := append([]string(nil), next...)
	l.mu.Unlock()

	l.persist(ctx, panelID, out)
	observability.Emit(l.events, observability.LevelInfo, observability.EventLayoutChanged, string(l.entity),
		"panel layout changed", map[string]any{"panel": panelID, "key": key, "enabled": !removed})
	return out
}

// Set replaces the panel layout with keys, dropping duplicates.
func (l *FieldLayouts) Set(ctx context.Context, panelID string, keys []string) []string {
	next := dedupeKeys(keys)
	l.mu.Lock()
	l.panels[panelID] = next
	l.mu.Unlock()

	l.persist(ctx, panelID, next)
	observability.Emit(l.events, observability.LevelInfo, observability.EventLayoutChanged, string(l.entity),
		"panel layout replaced", map[string]any{"panel": panelID})
	return append([]string(nil), next...)
}

// Reset drops the stored layout and returns the default.
func (l *FieldLayouts) Reset(ctx context.Context, panelID string) []string {
	l.mu.Lock()
	delete(l.panels, panelID)
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Reset(ctx, LayoutKey(l.entity, panelID)); err != nil {
			l.log.Warn("resetting panel layout", "key", LayoutKey(l.entity, panelID), "error", err)
		}
	}
	observability.Emit(l.events, observability.LevelInfo, observability.EventLayoutChanged, string(l.entity),
		"panel layout reset", map[string]any{"panel": panelID})
	return DefaultLayout(l.entity, panelID)
}

func (l *FieldLayouts) persist(ctx context.Context, panelID string, keys []string) {
	if l.store == nil {
		return
	}
	if err := l.store.Set(ctx, LayoutKey(l.entity, panelID), keys); err != nil {
		l.log.Warn("saving panel layout", "key", LayoutKey(l.entity, panelID), "error", err)
	}
}

// HeaderConfigService loads and saves the remote header field configuration.
// The CRM API client satisfies it.
type HeaderConfigService interface {
	HeaderConfig(ctx context.Context, t models.EntityType) ([]string, bool, error)
	SaveHeaderConfig(ctx context.Context, t models.EntityType, fields []string) error
}

// ErrEditorClosed is returned by HeaderEditor operations outside an edit session.
var ErrEditorClosed = errors.New("header editor is not open")

// Direction moves a header field one slot.
type Direction int

const (
	Up Direction = iota
	Down
)

// ParseDirection accepts "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	default:
		return Up, fmt.Errorf("invalid direction %q, must be up or down", s)
	}
}

// HeaderEditor edits the header strip of an entity type. Changes are made
// on a working copy and only applied once the remote save succeeds.
type HeaderEditor struct {
	entity models.EntityType
	remote HeaderConfigService
	local  LayoutStore
	log    *observability.Logger
	events observability.EventLog

	mu      sync.Mutex
	applied []string
	working []string
	open    bool
}

// NewHeaderEditor creates a HeaderEditor starting from the default header.
// local mirrors successful saves and serves as fallback when the remote
// configuration cannot be read; it may be nil.
func NewHeaderEditor(t models.EntityType, remote HeaderConfigService, local LayoutStore, log *observability.Logger, events observability.EventLog) *HeaderEditor {
	if log == nil {
		log = observability.NopLogger()
	}
	return &HeaderEditor{
		entity:  t,
		remote:  remote,
		local:   local,
		log:     log,
		events:  events,
		applied: DefaultLayout(t, PanelHeader),
	}
}

// Load refreshes the applied header from the remote configuration, falling
// back to the local mirror and then to the default.
func (h *HeaderEditor) Load(ctx context.Context) []string {
	fields, ok, err := h.remote.HeaderConfig(ctx, h.entity)
	if err != nil {
		h.log.Warn("loading header config", "entity", string(h.entity), "error", err)
		ok = false
	}
	if !ok && h.local != nil {
		var lerr error
		fields, ok, lerr = h.local.Get(ctx, LayoutKey(h.entity, PanelHeader))
		if lerr != nil {
			h.log.Warn("reading local header config", "entity", string(h.entity), "error", lerr)
			ok = false
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ok {
		h.applied = dedupeKeys(fields)
	}
	return append([]string(nil), h.applied...)
}

// Fields returns the applied header order.
func (h *HeaderEditor) Fields() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.applied...)
}

// Begin opens an edit session on a copy of the applied header.
func (h *HeaderEditor) Begin() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.working = append([]string(nil), h.applied...)
	h.open = true
}

// IsOpen reports whether an edit session is active.
func (h *HeaderEditor) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// Working returns the order being edited.
func (h *HeaderEditor) Working() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.working...)
}

// Toggle adds key to the end of the working copy or removes it.
func (h *HeaderEditor) Toggle(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return ErrEditorClosed
	}
	for i, k := range h.working {
		if k == key {
			h.working = append(h.working[:i:i], h.working[i+1:]...)
			return nil
		}
	}
	h.working = append(h.working, key)
	return nil
}

// Reorder swaps key with its neighbor in direction d. Moving past either
// end, or moving a key that is not enabled, is a no-op.
func (h *HeaderEditor) Reorder(key string, d Direction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return ErrEditorClosed
	}
	h.working = ReorderKeys(h.working, key, d)
	return nil
}

// Commit saves the working copy remotely. Only a successful save applies
// it and ends the session; on failure the session stays open.
func (h *HeaderEditor) Commit(ctx context.Context) error {
	h.mu.Lock()
	if !h.open {
		h.mu.Unlock()
		return ErrEditorClosed
	}
	fields := append([]string(nil), h.working...)
	h.mu.Unlock()

	if err := h.remote.SaveHeaderConfig(ctx, h.entity, fields); err != nil {
		observability.Emit(h.events, observability.LevelError, observability.EventHeaderSaveFailed, string(h.entity),
			"header save failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("saving header fields: %w", err)
	}

	h.mu.Lock()
	h.applied = fields
	h.working = nil
	h.open = false
	h.mu.Unlock()

	if h.local != nil {
		if err := h.local.Set(ctx, LayoutKey(h.entity, PanelHeader), fields); err != nil {
			h.log.Warn("mirroring header config", "entity", string(h.entity), "error", err)
		}
	}
	observability.Emit(h.events, observability.LevelInfo, observability.EventHeaderSaved, string(h.entity),
		"header saved", map[string]any{"fields": fields})
	return nil
}

// Cancel discards the working copy.
func (h *HeaderEditor) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.working = nil
	h.open = false
}

// ReorderKeys returns a copy of keys with key swapped with its neighbor.
func ReorderKeys(keys []string, key string, d Direction) []string {
	out := append([]string(nil), keys...)
	for i, k := range out {
		if k != key {
			continue
		}
		j := i - 1
		if d == Down {
			j = i + 1
		}
		if j < 0 || j >= len(out) {
			return out
		}
		out[i], out[j] = out[j], out[i]
		return out
	}
	return out
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
