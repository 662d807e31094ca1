package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valter-silva-au/staffdesk/pkg/models"
	"github.com/wI2L/jsondiff"
)

// History rendering messages.
const (
	NoChangesMessage    = "No changes detected"
	DetailsErrorMessage = "Error displaying details"
	EmptyValue          = "Empty"
)

// historyDenylist are bookkeeping keys never shown as changes.
var historyDenylist = map[string]bool{
	"updated_at":    true,
	"updated_by":    true,
	"last_modified": true,
}

// customContainers hold custom field values and are diffed per inner key.
var customContainers = map[string]bool{
	"custom_fields": true,
	"customFields":  true,
}

// DescribeHistory renders an audit-log entry as human-readable lines.
// labels maps raw field keys to display names and may be nil. It never
// panics: malformed details render as DetailsErrorMessage.
func DescribeHistory(e models.HistoryEntry, labels map[string]string) (lines []string) {
	defer func() {
		if r := recover(); r != nil {
			lines = []string{DetailsErrorMessage}
		}
	}()

	switch e.Action {
	case models.HistoryCreate:
		who := e.PerformedByName
		if who == "" {
			who = "Unknown"
		}
		return []string{"Record created by " + who}
	case models.HistoryUpdate:
		return describeUpdate(e.Details, labels)
	case models.HistoryAddNote:
		return describeNote(e.Details)
	default:
		return describeOther(e.Action, e.Details)
	}
}

func describeUpdate(raw json.RawMessage, labels map[string]string) []string {
	details, err := unwrapObject(raw)
	if err != nil || details == nil {
		return []string{DetailsErrorMessage}
	}
	before, err := unwrapObject(details["before"])
	if err != nil {
		return []string{DetailsErrorMessage}
	}
	afterRaw, err := unwrapJSON(details["after"])
	if err != nil {
		return []string{DetailsErrorMessage}
	}
	after, err := unwrapObject(afterRaw)
	if err != nil {
		return []string{DetailsErrorMessage}
	}
	keys, err := objectKeys(afterRaw)
	if err != nil {
		return []string{DetailsErrorMessage}
	}

	var lines []string
	for _, key := range keys {
		if historyDenylist[key] {
			continue
		}
		if customContainers[key] {
			lines = append(lines, diffCustomFields(before[key], after[key], labels)...)
			continue
		}
		if sameValue(before[key], after[key]) {
			continue
		}
		lines = append(lines, changeLine(fieldLabel(key, labels), before[key], after[key]))
	}
	if len(lines) == 0 {
		return []string{NoChangesMessage}
	}
	return lines
}

// diffCustomFields emits one line per changed inner key of a custom field
// container. Either side may be a JSON string holding the object.
func diffCustomFields(beforeRaw, afterRaw json.RawMessage, labels map[string]string) []string {
	before, berr := unwrapObject(beforeRaw)
	after, aerr := unwrapObject(afterRaw)
	if berr != nil || aerr != nil {
		if sameValue(beforeRaw, afterRaw) {
			return nil
		}
		return []string{changeLine("Custom Fields", beforeRaw, afterRaw)}
	}
	if before == nil {
		before = map[string]json.RawMessage{}
	}
	if after == nil {
		after = map[string]json.RawMessage{}
	}

	bdoc, err := json.Marshal(before)
	if err != nil {
		return []string{DetailsErrorMessage}
	}
	adoc, err := json.Marshal(after)
	if err != nil {
		return []string{DetailsErrorMessage}
	}
	patch, err := jsondiff.CompareJSON(bdoc, adoc)
	if err != nil {
		return []string{DetailsErrorMessage}
	}

	changed := make(map[string]bool)
	for _, op := range patch {
		if key := topLevelKey(fmt.Sprint(op.Path)); key != "" {
			changed[key] = true
		}
	}
	if len(changed) == 0 {
		return nil
	}

	afterOrder, _ := objectKeys(unwrapOrSelf(afterRaw))
	beforeOrder, _ := objectKeys(unwrapOrSelf(beforeRaw))
	var lines []string
	emitted := make(map[string]bool)
	for _, key := range append(afterOrder, beforeOrder...) {
		if !changed[key] || emitted[key] {
			continue
		}
		emitted[key] = true
		if sameValue(before[key], after[key]) {
			continue
		}
		lines = append(lines, changeLine(fieldLabel(key, labels), before[key], after[key]))
	}
	return lines
}

func describeNote(raw json.RawMessage) []string {
	raw, err := unwrapJSON(raw)
	if err != nil {
		return []string{DetailsErrorMessage}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []string{orDefault(text, "Note added")}
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return []string{DetailsErrorMessage}
	}
	for _, k := range []string{"text", "note", "note_text"} {
		if s := models.Stringify(obj[k]); s != "" {
			return []string{s}
		}
	}
	return []string{"Note added"}
}

func describeOther(action string, raw json.RawMessage) []string {
	raw, err := unwrapJSON(raw)
	if err != nil {
		return []string{DetailsErrorMessage}
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []string{action}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return []string{DetailsErrorMessage}
	}
	return []string{action + ": " + buf.String()}
}

func changeLine(field string, before, after json.RawMessage) string {
	return field + ": " + valueText(before) + " → " + valueText(after)
}

func fieldLabel(key string, labels map[string]string) string {
	if l, ok := labels[key]; ok && l != "" {
		return l
	}
	return key
}

// valueText renders a raw JSON value for a change line. Missing, null and
// empty string values render as EmptyValue.
func valueText(raw json.RawMessage) string {
	if isEmptyJSON(raw) {
		return EmptyValue
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// sameValue compares two raw JSON values structurally. Missing, null and
// empty string are treated as the same empty value.
func sameValue(a, b json.RawMessage) bool {
	if isEmptyJSON(a) || isEmptyJSON(b) {
		return isEmptyJSON(a) && isEmptyJSON(b)
	}
	return canonicalJSON(a) == canonicalJSON(b)
}

func canonicalJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(data)
}

func isEmptyJSON(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`))
}

// unwrapJSON returns the JSON document inside raw when raw is a JSON string
// that itself holds an object or array; otherwise raw unchanged.
func unwrapJSON(raw json.RawMessage) (json.RawMessage, error) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '"' {
		return t, nil
	}
	var s string
	if err := json.Unmarshal(t, &s); err != nil {
		return nil, err
	}
	inner := strings.TrimSpace(s)
	if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
		if !json.Valid([]byte(inner)) {
			return nil, fmt.Errorf("malformed embedded JSON")
		}
		return json.RawMessage(inner), nil
	}
	return t, nil
}

func unwrapOrSelf(raw json.RawMessage) json.RawMessage {
	if u, err := unwrapJSON(raw); err == nil {
		return u
	}
	return raw
}

// unwrapObject decodes raw (possibly string-encoded) into an object. Empty
// and null values yield a nil map; an empty string is also treated as empty.
func unwrapObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	inner, err := unwrapJSON(raw)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(inner, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// topLevelKey extracts the first segment of a JSON pointer.
func topLevelKey(pointer string) string {
	p := strings.TrimPrefix(pointer, "/")
	if p == "" {
		return ""
	}
	seg, _, _ := strings.Cut(p, "/")
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(seg)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
