package models

import (
	"fmt"
	"strings"
)

// EntityType identifies a kind of CRM record that can be referenced.
type EntityType string

const (
	EntityJob           EntityType = "job"
	EntityOrganization  EntityType = "organization"
	EntityJobSeeker     EntityType = "job_seeker"
	EntityLead          EntityType = "lead"
	EntityTask          EntityType = "task"
	EntityPlacement     EntityType = "placement"
	EntityHiringManager EntityType = "hiring_manager"
)

// EntityInfo describes how a record type is addressed, searched and displayed.
type EntityInfo struct {
	Type  EntityType
	Label string

	// Collection is the REST path segment under /api/.
	Collection string
	// SingularKey wraps a single record in GET /api/<collection>/<id>.
	SingularKey string
	// ResponseKeys are the accepted aliases for the list key in GET /api/<collection>.
	ResponseKeys []string

	// RecordPrefix is prepended to numeric ids when formatting record ids.
	RecordPrefix string
	// Route is the web path of the record view; the id is appended.
	Route string

	// NameFields are tried in order to derive a display title. A field
	// written as "first+last" joins both values with a space.
	NameFields []string
	// DefaultTitle is used when none of the NameFields are present.
	DefaultTitle string
}

// entityRegistry lists every referenceable type in search priority order.
var entityRegistry = []EntityInfo{
	{
		Type:         EntityJob,
		Label:        "Job",
		Collection:   "jobs",
		SingularKey:  "job",
		ResponseKeys: []string{"jobs"},
		RecordPrefix: "J",
		Route:        "/dashboard/jobs/view?id=",
		NameFields:   []string{"job_title", "title"},
		DefaultTitle: "Untitled Job",
	},
	{
		Type:         EntityOrganization,
		Label:        "Organization",
		Collection:   "organizations",
		SingularKey:  "organization",
		ResponseKeys: []string{"organizations"},
		RecordPrefix: "O",
		Route:        "/dashboard/organizations/view?id=",
		NameFields:   []string{"name", "organization_name"},
		DefaultTitle: "Unnamed Organization",
	},
	{
		Type:         EntityJobSeeker,
		Label:        "Job Seeker",
		Collection:   "job-seekers",
		SingularKey:  "jobSeeker",
		ResponseKeys: []string{"jobSeekers", "job_seekers", "jobseekers"},
		RecordPrefix: "JS",
		Route:        "/dashboard/job-seekers/view?id=",
		NameFields:   []string{"full_name", "first_name+last_name", "name"},
		DefaultTitle: "Unnamed",
	},
	{
		Type:         EntityLead,
		Label:        "Lead",
		Collection:   "leads",
		SingularKey:  "lead",
		ResponseKeys: []string{"leads"},
		RecordPrefix: "L",
		Route:        "/dashboard/leads/view?id=",
		NameFields:   []string{"full_name", "first_name+last_name", "name"},
		DefaultTitle: "Unnamed Lead",
	},
	{
		Type:         EntityTask,
		Label:        "Task",
		Collection:   "tasks",
		SingularKey:  "task",
		ResponseKeys: []string{"tasks"},
		RecordPrefix: "T",
		Route:        "/dashboard/tasks/view?id=",
		NameFields:   []string{"title", "task_title"},
		DefaultTitle: "Untitled Task",
	},
	{
		Type:         EntityPlacement,
		Label:        "Placement",
		Collection:   "placements",
		SingularKey:  "placement",
		ResponseKeys: []string{"placements"},
		RecordPrefix: "P",
		Route:        "/dashboard/placements/view?id=",
		NameFields:   []string{"job_seeker_name", "job_title", "title"},
		DefaultTitle: "Placement",
	},
	{
		Type:         EntityHiringManager,
		Label:        "Hiring Manager",
		Collection:   "hiring-managers",
		SingularKey:  "hiringManager",
		ResponseKeys: []string{"hiringManagers", "hiring_managers"},
		RecordPrefix: "HM",
		Route:        "/dashboard/hiring-managers/view?id=",
		NameFields:   []string{"full_name", "first_name+last_name", "name"},
		DefaultTitle: "Unnamed",
	},
}

// EntityTypes returns all referenceable types in search priority order.
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityRegistry))
	for i, info := range entityRegistry {
		out[i] = info.Type
	}
	return out
}

// LookupEntity returns the registry entry for t.
func LookupEntity(t EntityType) (EntityInfo, bool) {
	for _, info := range entityRegistry {
		if info.Type == t {
			return info, true
		}
	}
	return EntityInfo{}, false
}

// MustEntity is LookupEntity for types known at compile time.
func MustEntity(t EntityType) EntityInfo {
	info, ok := LookupEntity(t)
	if !ok {
		panic(fmt.Sprintf("unknown entity type %q", t))
	}
	return info
}

// ParseEntityType accepts a type tag, a label, or a collection name
// ("hiring-managers", "Hiring Manager", "hiring_manager", "hm").
func ParseEntityType(s string) (EntityType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, info := range entityRegistry {
		switch norm {
		case string(info.Type),
			strings.ReplaceAll(info.Collection, "-", "_"),
			strings.ToLower(info.RecordPrefix),
			strings.ToLower(strings.ReplaceAll(info.Label, " ", "_")):
			return info.Type, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// FormatRecordID renders a record id the way the CRM displays it, e.g. J-42.
func FormatRecordID(id string, t EntityType) string {
	info, ok := LookupEntity(t)
	if !ok || info.RecordPrefix == "" {
		return id
	}
	return info.RecordPrefix + "-" + id
}

// ParseRecordID splits a formatted record id such as "HM-7" into its type
// and raw id.
func ParseRecordID(s string) (EntityType, string, error) {
	prefix, id, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || id == "" {
		return "", "", fmt.Errorf("invalid record id %q: want <prefix>-<id>", s)
	}
	for _, info := range entityRegistry {
		if strings.EqualFold(prefix, info.RecordPrefix) {
			return info.Type, id, nil
		}
	}
	return "", "", fmt.Errorf("invalid record id %q: unknown prefix %q", s, prefix)
}

// RecordURL returns the web route of a record relative to the CRM host.
func RecordURL(t EntityType, id string) string {
	info, ok := LookupEntity(t)
	if !ok {
		return ""
	}
	return info.Route + id
}

// TitleOf derives a display title from a raw record using the type's
// NameFields. It falls back to the type's DefaultTitle.
func TitleOf(t EntityType, raw map[string]any) string {
	info, ok := LookupEntity(t)
	if !ok {
		return ""
	}
	for _, field := range info.NameFields {
		if v := nameField(raw, field); v != "" {
			return v
		}
	}
	return info.DefaultTitle
}

func nameField(raw map[string]any, field string) string {
	if first, last, ok := strings.Cut(field, "+"); ok {
		joined := strings.TrimSpace(Stringify(raw[first]) + " " + Stringify(raw[last]))
		return joined
	}
	return strings.TrimSpace(Stringify(raw[field]))
}

// Stringify renders a decoded JSON scalar as text. nil becomes "".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
