package core

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// Default values substituted for missing wire fields.
const (
	DefaultName         = "Unnamed"
	DefaultTaskPriority = "Medium"
)

var defaultStatus = map[models.EntityType]string{
	models.EntityJob:           "Open",
	models.EntityHiringManager: "Active",
	models.EntityTask:          "Pending",
	models.EntityJobSeeker:     "Active",
}

// Normalize turns a raw record of any type into its normalized form.
func Normalize(t models.EntityType, raw map[string]any, log *observability.Logger) models.Normalized {
	switch t {
	case models.EntityJob:
		return NormalizeJob(raw, log)
	case models.EntityHiringManager:
		return NormalizeHiringManager(raw, log)
	case models.EntityTask:
		return NormalizeTask(raw, log)
	case models.EntityJobSeeker:
		return NormalizeJobSeeker(raw, log)
	default:
		rec := normalizeRecord(t, raw, log)
		title := models.TitleOf(t, raw)
		return models.GenericRecord{Record: rec, Title: title}
	}
}

// NormalizeJob parses a raw job. A missing title becomes "Untitled Job".
func NormalizeJob(raw map[string]any, log *observability.Logger) models.Job {
	rec := normalizeRecord(models.EntityJob, raw, log)
	job := models.Job{
		Record:           rec,
		Title:            models.TitleOf(models.EntityJob, raw),
		OrganizationID:   str(raw, "organization_id", "organizationId"),
		OrganizationName: firstString(str(raw, "organization_name", "organizationName", "company_name"), nested(raw, "organization", "name")),
		HiringManagerID:  str(raw, "hiring_manager_id", "hiringManagerId"),
		Location:         str(raw, "location", "city"),
		EmploymentType:   str(raw, "employment_type", "job_type"),
		Openings:         intValue(raw["openings"]),
		SalaryMin:        decimalValue(raw, log, "salary_min", "min_salary"),
		SalaryMax:        decimalValue(raw, log, "salary_max", "max_salary"),
		Description:      str(raw, "description", "job_description"),
	}
	job.Raw["job_title"] = job.Title
	job.Raw["organization_name"] = job.OrganizationName
	return job
}

// NormalizeHiringManager parses a raw hiring manager.
func NormalizeHiringManager(raw map[string]any, log *observability.Logger) models.HiringManager {
	rec := normalizeRecord(models.EntityHiringManager, raw, log)
	hm := models.HiringManager{
		Record:           rec,
		FullName:         models.TitleOf(models.EntityHiringManager, raw),
		Title:            str(raw, "title", "job_title"),
		Email:            str(raw, "email", "email_address"),
		Phone:            str(raw, "phone", "phone_number", "mobile_phone"),
		OrganizationID:   str(raw, "organization_id", "organizationId"),
		OrganizationName: firstString(str(raw, "organization_name", "organizationName", "company_name"), nested(raw, "organization", "name")),
	}
	hm.Raw["full_name"] = hm.FullName
	hm.Raw["organization_name"] = hm.OrganizationName
	return hm
}

// NormalizeTask parses a raw task.
func NormalizeTask(raw map[string]any, log *observability.Logger) models.Task {
	rec := normalizeRecord(models.EntityTask, raw, log)
	task := models.Task{
		Record:      rec,
		Title:       models.TitleOf(models.EntityTask, raw),
		Description: str(raw, "description", "details"),
		Priority:    firstString(str(raw, "priority"), DefaultTaskPriority),
		AssignedTo:  str(raw, "assigned_to_name", "assigned_to", "assignee"),
		Completed:   truthy(raw["is_completed"]) || truthy(raw["completed"]) || strings.EqualFold(rec.Status, "Completed"),
	}
	if due := models.ParseTimestamp(str(raw, "due_date", "dueDate")); !due.IsZero() {
		task.DueDate = &due
	}
	if relType := str(raw, "related_entity_type", "related_type"); relType != "" {
		if t, err := models.ParseEntityType(relType); err == nil {
			if id := str(raw, "related_entity_id", "related_id"); id != "" {
				ref := models.NewReference(id, t, str(raw, "related_entity_name", "related_name"))
				task.Related = &ref
			}
		}
	}
	task.Raw["title"] = task.Title
	task.Raw["priority"] = task.Priority
	task.Raw["assigned_to"] = task.AssignedTo
	return task
}

// NormalizeJobSeeker parses a raw job seeker.
func NormalizeJobSeeker(raw map[string]any, log *observability.Logger) models.JobSeeker {
	rec := normalizeRecord(models.EntityJobSeeker, raw, log)
	seeker := models.JobSeeker{
		Record:       rec,
		FullName:     models.TitleOf(models.EntityJobSeeker, raw),
		Email:        str(raw, "email", "email_address"),
		Phone:        str(raw, "phone", "phone_number", "mobile_phone"),
		CurrentTitle: str(raw, "current_title", "title", "job_title"),
		Location:     str(raw, "location", "city"),
	}
	seeker.Raw["full_name"] = seeker.FullName
	return seeker
}

// normalizeRecord fills the fields shared by every record type. Raw is a
// copy of raw with the defaulted status written back.
func normalizeRecord(t models.EntityType, raw map[string]any, log *observability.Logger) models.Record {
	if raw == nil {
		raw = map[string]any{}
	}
	if log == nil {
		log = observability.NopLogger()
	}
	copied := make(map[string]any, len(raw))
	for k, v := range raw {
		copied[k] = v
	}
	rec := models.Record{
		ID:        models.Stringify(raw["id"]),
		Type:      t,
		Status:    firstString(str(raw, "status"), defaultStatus[t]),
		Owner:     str(raw, "owner_name", "owner"),
		CreatedAt: timeValue(raw, "created_at", "createdAt"),
		UpdatedAt: timeValue(raw, "updated_at", "updatedAt"),
		Raw:       copied,
	}
	rec.CustomFields = ParseCustomFields(firstPresent(raw, "custom_fields", "customFields"), log)
	copied["status"] = rec.Status
	if rec.Owner != "" {
		copied["owner"] = rec.Owner
	}
	return rec
}

// ParseCustomFields decodes a custom field container that may be an object
// or a JSON string holding one. Anything else yields an empty map, and a
// string that fails to parse is logged.
func ParseCustomFields(v any, log *observability.Logger) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case string:
		if strings.TrimSpace(val) == "" {
			return map[string]any{}
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(val), &out); err != nil || out == nil {
			if log != nil {
				log.Warn("malformed custom fields", "error", err)
			}
			return map[string]any{}
		}
		return out
	default:
		return map[string]any{}
	}
}

func str(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(models.Stringify(raw[k])); s != "" {
			return s
		}
	}
	return ""
}

func nested(raw map[string]any, outer, inner string) string {
	m, ok := raw[outer].(map[string]any)
	if !ok {
		return ""
	}
	return str(m, inner)
}

func firstPresent(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func timeValue(raw map[string]any, keys ...string) time.Time {
	return models.ParseTimestamp(str(raw, keys...))
}

func intValue(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func decimalValue(raw map[string]any, log *observability.Logger, keys ...string) *decimal.Decimal {
	for _, k := range keys {
		switch val := raw[k].(type) {
		case float64:
			d := decimal.NewFromFloat(val)
			return &d
		case string:
			s := strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(val))
			if s == "" {
				continue
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				if log != nil {
					log.Warn("malformed salary", "field", k, "value", val)
				}
				continue
			}
			return &d
		}
	}
	return nil
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		return s == "true" || s == "1" || s == "yes"
	default:
		return false
	}
}
