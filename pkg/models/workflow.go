package models

import "time"

// Appointment is the body of POST /api/appointments.
type Appointment struct {
	About     EntityReference `json:"about"`
	Subject   string          `json:"subject" validate:"required"`
	StartsAt  time.Time       `json:"starts_at" validate:"required"`
	Duration  time.Duration   `json:"-" validate:"gt=0"`
	Minutes   int             `json:"duration_minutes"`
	Location  string          `json:"location,omitempty"`
	Attendees []string        `json:"attendees,omitempty" validate:"omitempty,dive,email"`
}

// DeleteRequest is the body of POST /api/<collection>/<id>/delete-request.
type DeleteRequest struct {
	Reason string `json:"reason" validate:"notblank"`
}

// TransferRequest moves a hiring manager to another organization.
type TransferRequest struct {
	HiringManagerID       string `json:"-" validate:"required"`
	TargetOrganizationID  string `json:"target_organization_id" validate:"required,nefield=CurrentOrganizationID"`
	CurrentOrganizationID string `json:"-"`
}
