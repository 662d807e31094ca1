package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// WorkflowService performs the modal workflows of the record views. The
// CRM API client satisfies it.
type WorkflowService interface {
	RequestDelete(ctx context.Context, t models.EntityType, id, reason string) error
	TransferHiringManager(ctx context.Context, id, targetOrganizationID string) error
	CreateAppointment(ctx context.Context, appt models.Appointment) error
}

// Workflows validates workflow input before calling the service.
type Workflows struct {
	svc    WorkflowService
	log    *observability.Logger
	events observability.EventLog
}

// NewWorkflows creates Workflows over svc.
func NewWorkflows(svc WorkflowService, log *observability.Logger, events observability.EventLog) *Workflows {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Workflows{svc: svc, log: log, events: events}
}

// RequestDelete files a delete request. A blank reason is rejected without
// calling the service.
func (w *Workflows) RequestDelete(ctx context.Context, t models.EntityType, id, reason string) error {
	req := models.DeleteRequest{Reason: strings.TrimSpace(reason)}
	if errs := validateStruct(req, map[string]string{"reason": "A reason is required"}); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	if err := w.svc.RequestDelete(ctx, t, id, req.Reason); err != nil {
		return fmt.Errorf("requesting delete of %s: %w", models.FormatRecordID(id, t), err)
	}
	w.submitted("delete_request", t, id)
	return nil
}

// Transfer moves a hiring manager to another organization. The target must
// be set and differ from the current organization.
func (w *Workflows) Transfer(ctx context.Context, hm models.HiringManager, targetOrganizationID string) error {
	req := models.TransferRequest{
		HiringManagerID:       hm.ID,
		TargetOrganizationID:  strings.TrimSpace(targetOrganizationID),
		CurrentOrganizationID: hm.OrganizationID,
	}
	errs := validateStruct(req, nil)
	if msg, ok := errs["target_organization_id"]; ok {
		if req.TargetOrganizationID == "" {
			msg = "Select an organization"
		} else {
			msg = "Hiring manager already belongs to this organization"
		}
		errs["target_organization_id"] = msg
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	if err := w.svc.TransferHiringManager(ctx, req.HiringManagerID, req.TargetOrganizationID); err != nil {
		return fmt.Errorf("transferring %s: %w", hm.RecordID(), err)
	}
	w.submitted("transfer", models.EntityHiringManager, hm.ID)
	return nil
}

// AppointmentInput is the form state of the appointment modal.
type AppointmentInput struct {
	About     models.EntityReference
	Subject   string
	Start     time.Time
	Duration  time.Duration
	Location  string
	Attendees []string
}

// ScheduleAppointment creates an appointment about a record. Start is
// required and the duration must be positive.
func (w *Workflows) ScheduleAppointment(ctx context.Context, in AppointmentInput) error {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = "Meeting: " + in.About.Display
	}
	appt := models.Appointment{
		About:     in.About,
		Subject:   subject,
		StartsAt:  in.Start,
		Duration:  in.Duration,
		Minutes:   int(in.Duration / time.Minute),
		Location:  strings.TrimSpace(in.Location),
		Attendees: in.Attendees,
	}
	errs := validateStruct(appt, map[string]string{
		"starts_at": "Start time is required",
		"Duration":  "Duration must be positive",
	})
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	if err := w.svc.CreateAppointment(ctx, appt); err != nil {
		return fmt.Errorf("scheduling appointment: %w", err)
	}
	w.submitted("appointment", in.About.Type, in.About.ID)
	return nil
}

func (w *Workflows) submitted(kind string, t models.EntityType, id string) {
	w.log.Info("workflow submitted", "workflow", kind, "record", models.FormatRecordID(id, t))
	observability.Emit(w.events, observability.LevelInfo, observability.EventWorkflowSubmitted, string(t),
		"workflow submitted", map[string]any{"workflow": kind, "id": id})
}
