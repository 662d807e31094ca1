package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the common part of every normalized CRM record. Raw keeps the
// wire fields so configurable panels can render any standard key.
type Record struct {
	ID           string         `json:"id"`
	Type         EntityType     `json:"type"`
	Status       string         `json:"status"`
	Owner        string         `json:"owner,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CustomFields map[string]any `json:"custom_fields"`
	Raw          map[string]any `json:"-"`
}

// RecordID returns the formatted record id, e.g. J-42.
func (r Record) RecordID() string {
	return FormatRecordID(r.ID, r.Type)
}

// Base returns the common record part.
func (r Record) Base() Record {
	return r
}

// Reference freezes a reference to this record titled title.
func (r Record) Reference(title string) EntityReference {
	return NewReference(r.ID, r.Type, title)
}

// Normalized is implemented by every normalized record type.
type Normalized interface {
	Heading() string
	Base() Record
}

// GenericRecord is a record of a type without a dedicated view.
type GenericRecord struct {
	Record
	Title string `json:"title"`
}

// Heading is the title line of the record.
func (g GenericRecord) Heading() string {
	return g.RecordID() + " " + g.Title
}

// Job is a normalized job order.
type Job struct {
	Record
	Title            string           `json:"title"`
	OrganizationID   string           `json:"organization_id,omitempty"`
	OrganizationName string           `json:"organization_name"`
	HiringManagerID  string           `json:"hiring_manager_id,omitempty"`
	Location         string           `json:"location"`
	EmploymentType   string           `json:"employment_type"`
	Openings         int              `json:"openings"`
	SalaryMin        *decimal.Decimal `json:"salary_min,omitempty"`
	SalaryMax        *decimal.Decimal `json:"salary_max,omitempty"`
	Description      string           `json:"description"`
}

// Heading is the title line of the job view.
func (j Job) Heading() string {
	return j.RecordID() + " " + j.Title
}

// SalaryRange renders the salary band, or "" when none is known.
func (j Job) SalaryRange() string {
	switch {
	case j.SalaryMin != nil && j.SalaryMax != nil:
		return j.SalaryMin.StringFixed(0) + " - " + j.SalaryMax.StringFixed(0)
	case j.SalaryMin != nil:
		return "from " + j.SalaryMin.StringFixed(0)
	case j.SalaryMax != nil:
		return "up to " + j.SalaryMax.StringFixed(0)
	default:
		return ""
	}
}

// HiringManager is a normalized client contact.
type HiringManager struct {
	Record
	FullName         string `json:"full_name"`
	Title            string `json:"title"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	OrganizationID   string `json:"organization_id,omitempty"`
	OrganizationName string `json:"organization_name"`
}

// Heading is the title line of the hiring manager view.
func (h HiringManager) Heading() string {
	return h.RecordID() + " " + h.FullName
}

// Task is a normalized CRM task.
type Task struct {
	Record
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	AssignedTo  string     `json:"assigned_to"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`

	// Related is the record this task is about, when the API provides one.
	Related *EntityReference `json:"related,omitempty"`
}

// Heading is the title line of the task view.
func (t Task) Heading() string {
	return t.RecordID() + " " + t.Title
}

// JobSeeker is a normalized candidate row of the job seekers list.
type JobSeeker struct {
	Record
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	CurrentTitle string `json:"current_title"`
	Location     string `json:"location"`
}

// Heading is the title line of the job seeker row.
func (s JobSeeker) Heading() string {
	return s.RecordID() + " " + s.FullName
}
