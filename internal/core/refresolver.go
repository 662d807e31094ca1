package core

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Default search tuning.
const (
	DefaultSearchLimit    = 10
	DefaultSearchMinChars = 2
)

// EntitySource lists the raw records of one collection. The CRM API client
// satisfies it with ListRecords.
type EntitySource interface {
	ListRecords(ctx context.Context, t models.EntityType) ([]map[string]any, error)
}

// ReferenceResolver searches every referenceable collection for a query and
// merges the matches into a single suggestion list.
type ReferenceResolver interface {
	Search(ctx context.Context, query string, selected []models.EntityReference) ([]models.EntityReference, error)
}

// ResolverOptions configures a ReferenceResolver.
type ResolverOptions struct {
	Limit    int
	MinChars int
	Types    []models.EntityType
	Logger   *observability.Logger
	Events   observability.EventLog
}

type referenceResolver struct {
	source   EntitySource
	limit    int
	minChars int
	types    []models.EntityType
	log      *observability.Logger
	events   observability.EventLog
}

// NewReferenceResolver creates a ReferenceResolver over source. Zero options
// fall back to a limit of 10, a minimum of 2 characters and every registry type.
func NewReferenceResolver(source EntitySource, opts ResolverOptions) ReferenceResolver {
	r := &referenceResolver{
		source:   source,
		limit:    opts.Limit,
		minChars: opts.MinChars,
		types:    opts.Types,
		log:      opts.Logger,
		events:   opts.Events,
	}
	if r.limit <= 0 {
		r.limit = DefaultSearchLimit
	}
	if r.minChars <= 0 {
		r.minChars = DefaultSearchMinChars
	}
	if len(r.types) == 0 {
		r.types = models.EntityTypes()
	}
	if r.log == nil {
		r.log = observability.NopLogger()
	}
	return r
}

// Search returns at most limit references whose title or id contains query.
// Sources are fetched concurrently; a failing source is logged and
// contributes nothing. Results keep registry priority order and each
// source's own order, and skip every record whose id is already selected.
func (r *referenceResolver) Search(ctx context.Context, query string, selected []models.EntityReference) ([]models.EntityReference, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(q)) < r.minChars {
		return []models.EntityReference{}, nil
	}

	perType := make([][]models.EntityReference, len(r.types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range r.types {
		g.Go(func() error {
			records, err := r.source.ListRecords(gctx, t)
			if err != nil {
				r.log.Warn("reference source failed", "type", string(t), "error", err)
				observability.Emit(r.events, observability.LevelWarn, observability.EventSearchSourceFailed,
					string(t), "reference source failed", map[string]any{"error": err.Error()})
				return nil
			}
			perType[i] = matchRecords(t, records, q)
			return nil
		})
	}
	// Goroutines never return an error, so Wait only reports completion.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	selectedIDs := make(map[string]bool, len(selected))
	for _, ref := range selected {
		selectedIDs[ref.ID] = true
	}

	seen := make(map[string]bool)
	out := make([]models.EntityReference, 0, r.limit)
	for _, refs := range perType {
		for _, ref := range refs {
			if selectedIDs[ref.ID] || seen[ref.Key()] {
				continue
			}
			seen[ref.Key()] = true
			out = append(out, ref)
			if len(out) == r.limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// matchRecords keeps records whose title contains q case-insensitively or
// whose stringified id contains q.
func matchRecords(t models.EntityType, records []map[string]any, q string) []models.EntityReference {
	var out []models.EntityReference
	for _, raw := range records {
		id := models.Stringify(raw["id"])
		if id == "" {
			continue
		}
		title := models.TitleOf(t, raw)
		if strings.Contains(strings.ToLower(title), q) || strings.Contains(strings.ToLower(id), q) {
			out = append(out, models.NewReference(id, t, title))
		}
	}
	return out
}

// RequestSequence hands out monotonically increasing generation tokens. Only
// the most recently issued token is current, so a response carrying an older
// token is stale and must not update state.
type RequestSequence struct {
	n atomic.Uint64
}

// Next issues a new token, invalidating every earlier one.
func (s *RequestSequence) Next() uint64 {
	return s.n.Add(1)
}

// Invalidate makes every issued token stale without issuing a new one.
func (s *RequestSequence) Invalidate() {
	s.n.Add(1)
}

// IsCurrent reports whether token is the latest issued.
func (s *RequestSequence) IsCurrent(token uint64) bool {
	return s.n.Load() == token
}

// SuggestionState is what a typeahead surface renders.
type SuggestionState struct {
	Query       string
	Suggestions []models.EntityReference
	Loading     bool
	Open        bool
}

// Typeahead couples a ReferenceResolver with a suggestion surface. It is
// safe for concurrent use: keystrokes may start overlapping searches, and
// only the latest one is applied.
type Typeahead struct {
	resolver ReferenceResolver
	minChars int
	seq      RequestSequence

	mu    sync.Mutex
	state SuggestionState
}

// NewTypeahead creates a Typeahead. minChars <= 0 uses the default of 2.
func NewTypeahead(resolver ReferenceResolver, minChars int) *Typeahead {
	if minChars <= 0 {
		minChars = DefaultSearchMinChars
	}
	return &Typeahead{resolver: resolver, minChars: minChars}
}

// State returns a snapshot of the suggestion surface.
func (ta *Typeahead) State() SuggestionState {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	s := ta.state
	s.Suggestions = append([]models.EntityReference(nil), ta.state.Suggestions...)
	return s
}

// Begin records a new query and returns its generation token. A query
// shorter than the minimum clears and closes the surface and returns
// ok=false: no search should run.
func (ta *Typeahead) Begin(query string) (token uint64, ok bool) {
	ta.mu.Lock()
	defer ta.mu.Unlock()

	token = ta.seq.Next()
	ta.state.Query = query
	if len([]rune(strings.TrimSpace(query))) < ta.minChars {
		ta.state.Suggestions = nil
		ta.state.Loading = false
		ta.state.Open = false
		return token, false
	}
	ta.state.Loading = true
	return token, true
}

// Apply stores the result of the search started with token. It reports
// false and leaves the state untouched when a newer query has begun.
func (ta *Typeahead) Apply(token uint64, refs []models.EntityReference, err error) bool {
	ta.mu.Lock()
	defer ta.mu.Unlock()

	if !ta.seq.IsCurrent(token) {
		return false
	}
	ta.state.Loading = false
	if err != nil {
		ta.state.Suggestions = nil
		ta.state.Open = false
		return true
	}
	ta.state.Suggestions = refs
	ta.state.Open = len(refs) > 0
	return true
}

// Update runs Begin, the search and Apply in sequence and returns the
// resulting state. Callers that need to keep the UI responsive call Begin
// and Apply themselves around an asynchronous Search.
func (ta *Typeahead) Update(ctx context.Context, query string, selected []models.EntityReference) SuggestionState {
	token, ok := ta.Begin(query)
	if !ok {
		return ta.State()
	}
	refs, err := ta.Search(ctx, query, selected)
	ta.Apply(token, refs, err)
	return ta.State()
}

// Search runs the underlying resolver without touching the state.
func (ta *Typeahead) Search(ctx context.Context, query string, selected []models.EntityReference) ([]models.EntityReference, error) {
	return ta.resolver.Search(ctx, query, selected)
}

// Close hides the surface and discards any in-flight result.
func (ta *Typeahead) Close() {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.seq.Invalidate()
	ta.state = SuggestionState{}
}

// LookupReferences turns record ids such as "O-9" into references whose
// display includes the record title. Each collection is listed at most once.
// A collection that cannot be listed is logged and its references keep the
// bare id as display. Duplicate ids are dropped.
func LookupReferences(ctx context.Context, source EntitySource, ids []string, log *observability.Logger) ([]models.EntityReference, error) {
	if log == nil {
		log = observability.NopLogger()
	}
	listed := make(map[models.EntityType][]map[string]any)
	out := make([]models.EntityReference, 0, len(ids))
	for _, raw := range ids {
		t, id, err := models.ParseRecordID(raw)
		if err != nil {
			return nil, err
		}
		ref := models.NewReference(id, t, "")
		if source != nil {
			records, ok := listed[t]
			if !ok {
				records, err = source.ListRecords(ctx, t)
				if err != nil {
					log.Warn("looking up reference", "id", raw, "error", err)
				}
				listed[t] = records
			}
			for _, rec := range records {
				if models.Stringify(rec["id"]) == id {
					ref = models.NewReference(id, t, models.TitleOf(t, rec))
					break
				}
			}
		}
		if !models.ContainsReference(out, ref) {
			out = append(out, ref)
		}
	}
	return out, nil
}
