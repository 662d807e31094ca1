package core

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// CatalogEntry is one field a panel can show.
type CatalogEntry struct {
	// Key is the layout key: a standard field name or custom:<stable key>.
	Key   string `json:"key"`
	Label string `json:"label"`

	Custom bool `json:"custom"`
	// Hidden entries render when already configured but cannot be added.
	Hidden bool `json:"hidden,omitempty"`

	// aliases are the names a custom value object may use for this field.
	aliases []string
}

// Catalog is the deduplicated set of standard and custom fields of an
// entity type, in display order.
type Catalog struct {
	entries []CatalogEntry
	index   map[string]int
}

// BuildCatalog merges standard fields, custom field definitions and the
// keys found in a record's current custom values into one catalog.
//
// Entries are deduplicated by stable key: a custom definition whose stable
// key matches a standard field is dropped, and an introspected value key
// becomes an entry only when no definition (hidden ones included) claims it.
// Standard fields come first in their given order, then definitions by sort
// order, then introspected keys alphabetically.
func BuildCatalog(standard []models.FieldOption, defs []models.FieldDefinition, customValues map[string]any) *Catalog {
	c := &Catalog{index: make(map[string]int)}
	claimed := make(map[string]bool)

	for _, f := range standard {
		key := strings.TrimSpace(f.Key)
		if key == "" || claimed[key] {
			continue
		}
		claimed[key] = true
		label := f.Label
		if label == "" {
			label = HumanizeKey(key)
		}
		c.add(CatalogEntry{Key: key, Label: label})
	}

	sortedDefs := append([]models.FieldDefinition(nil), defs...)
	sort.SliceStable(sortedDefs, func(i, j int) bool {
		return sortedDefs[i].SortOrder < sortedDefs[j].SortOrder
	})
	for _, d := range sortedDefs {
		stable := strings.TrimSpace(d.StableKey())
		if stable == "" {
			continue
		}
		aliases := d.Aliases()
		alreadyClaimed := claimed[stable]
		for _, a := range aliases {
			claimed[a] = true
		}
		claimed[stable] = true
		if alreadyClaimed {
			continue
		}
		c.add(CatalogEntry{
			Key:     models.CustomKey(stable),
			Label:   d.Label(),
			Custom:  true,
			Hidden:  d.Hidden,
			aliases: aliases,
		})
	}

	var extra []string
	for k := range customValues {
		if k = strings.TrimSpace(k); k != "" && !claimed[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		claimed[k] = true
		c.add(CatalogEntry{
			Key:     models.CustomKey(k),
			Label:   HumanizeKey(k),
			Custom:  true,
			aliases: []string{k},
		})
	}
	return c
}

func (c *Catalog) add(e CatalogEntry) {
	if _, dup := c.index[e.Key]; dup {
		return
	}
	c.index[e.Key] = len(c.entries)
	c.entries = append(c.entries, e)
}

// Entries returns every entry, hidden ones included.
func (c *Catalog) Entries() []CatalogEntry {
	return append([]CatalogEntry(nil), c.entries...)
}

// Addable returns the entries that may be newly added to a layout.
func (c *Catalog) Addable() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if !e.Hidden {
			out = append(out, e)
		}
	}
	return out
}

// Available returns the addable entries not already in selected.
func (c *Catalog) Available(selected []string) []CatalogEntry {
	in := make(map[string]bool, len(selected))
	for _, k := range selected {
		in[k] = true
	}
	var out []CatalogEntry
	for _, e := range c.Addable() {
		if !in[e.Key] {
			out = append(out, e)
		}
	}
	return out
}

// CanAdd reports whether key names an addable entry.
func (c *Catalog) CanAdd(key string) bool {
	e, ok := c.Lookup(key)
	return ok && !e.Hidden
}

// Lookup resolves a layout key, hidden entries included. A custom key whose
// stable key was merged into a standard field resolves to that field.
func (c *Catalog) Lookup(key string) (CatalogEntry, bool) {
	if i, ok := c.index[key]; ok {
		return c.entries[i], true
	}
	if models.IsCustomKey(key) {
		if i, ok := c.index[strings.TrimPrefix(key, models.CustomFieldPrefix)]; ok {
			return c.entries[i], true
		}
	}
	return CatalogEntry{}, false
}

// Find fuzzy-matches query against the labels and keys of the entries
// available to add, best match first. An empty query returns them all.
func (c *Catalog) Find(query string, selected []string) []CatalogEntry {
	avail := c.Available(selected)
	query = strings.TrimSpace(query)
	if query == "" {
		return avail
	}
	words := make([]string, len(avail))
	for i, e := range avail {
		words[i] = e.Label + " " + strings.TrimPrefix(e.Key, models.CustomFieldPrefix)
	}
	ranks := fuzzy.RankFindNormalizedFold(query, words)
	sort.Stable(ranks)
	out := make([]CatalogEntry, len(ranks))
	for i, r := range ranks {
		out[i] = avail[r.OriginalIndex]
	}
	return out
}

// RenderedField is a resolved label and value ready for display.
type RenderedField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// RenderFields resolves keys in order against the catalog and the record.
// Keys the catalog does not know are skipped; missing values render empty.
func RenderFields(keys []string, catalog *Catalog, record models.Record) []RenderedField {
	out := make([]RenderedField, 0, len(keys))
	for _, key := range keys {
		entry, ok := catalog.Lookup(key)
		if !ok {
			continue
		}
		out = append(out, RenderedField{
			Key:   key,
			Label: entry.Label,
			Value: fieldValue(entry, record),
		})
	}
	return out
}

func fieldValue(e CatalogEntry, record models.Record) string {
	if !e.Custom {
		return displayValue(record.Raw[e.Key])
	}
	for _, alias := range e.aliases {
		if v, ok := record.CustomFields[alias]; ok {
			return displayValue(v)
		}
	}
	return ""
}

// displayValue renders a decoded JSON value for a field cell.
func displayValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return models.Stringify(val)
	}
}

// HumanizeKey turns a snake_case or camelCase key into a label.
func HumanizeKey(key string) string {
	key = strings.TrimPrefix(key, models.CustomFieldPrefix)
	var b strings.Builder
	prevLower := false
	for _, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower:
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r)
	}
	words := strings.Fields(b.String())
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + w[size:]
	}
	return strings.Join(words, " ")
}
