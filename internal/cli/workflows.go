package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

var (
	deleteReason string

	transferTo string

	apptAt        string
	apptDuration  time.Duration
	apptSubject   string
	apptLocation  string
	apptAttendees []string
)

// appointmentTimeLayouts are accepted by --at, in local time.
var appointmentTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

var deleteRequestCmd = &cobra.Command{
	Use:   "delete-request <record-id>",
	Short: "Ask an administrator to delete a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Workflows == nil {
			return fmt.Errorf("workflow service not initialized")
		}
		t, id, err := models.ParseRecordID(args[0])
		if err != nil {
			return err
		}
		if err := Workflows.RequestDelete(commandContext(cmd), t, id, deleteReason); err != nil {
			return workflowError(err)
		}
		fmt.Printf("Delete request for %s submitted.\n", models.FormatRecordID(id, t))
		return nil
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <hiring-manager-id>",
	Short: "Move a hiring manager to another organization",
	Long: `Move a hiring manager to another organization.

Examples:
  staffdesk transfer HM-7 --to O-12
  staffdesk transfer HM-7 --to 12`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeRecordIDs(models.EntityHiringManager),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Workflows == nil || Records == nil {
			return fmt.Errorf("workflow service not initialized")
		}
		t, id, err := models.ParseRecordID(args[0])
		if err != nil {
			return err
		}
		if t != models.EntityHiringManager {
			return fmt.Errorf("%s is not a hiring manager", args[0])
		}
		target := strings.TrimSpace(transferTo)
		if ot, oid, err := models.ParseRecordID(target); err == nil {
			if ot != models.EntityOrganization {
				return fmt.Errorf("%s is not an organization", target)
			}
			target = oid
		}

		ctx := commandContext(cmd)
		page := Records.Load(ctx, t, id)
		if page.RecordErr != nil {
			return fmt.Errorf("loading %s: %w", args[0], page.RecordErr)
		}
		hm, ok := page.Record.(models.HiringManager)
		if !ok {
			return fmt.Errorf("%s is not a hiring manager", args[0])
		}
		if err := Workflows.Transfer(ctx, hm, target); err != nil {
			return workflowError(err)
		}
		fmt.Printf("Transferred %s to %s.\n", hm.Heading(), models.FormatRecordID(target, models.EntityOrganization))
		return nil
	},
}

var appointmentCmd = &cobra.Command{
	Use:   "appointment <record-id>",
	Short: "Schedule an appointment about a record",
	Long: `Schedule an appointment about a record.

Examples:
  staffdesk appointment J-42 --at "2024-06-01 10:00" --duration 45m
  staffdesk appointment HM-7 --at 2024-06-01T10:00:00Z --attendee ann@example.com`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeRecordIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Workflows == nil {
			return fmt.Errorf("workflow service not initialized")
		}
		about, err := core.LookupReferences(commandContext(cmd), Sources, args, logger())
		if err != nil {
			return err
		}

		var start time.Time
		if strings.TrimSpace(apptAt) != "" {
			start, err = parseAppointmentTime(apptAt)
			if err != nil {
				return err
			}
		}

		in := core.AppointmentInput{
			About:     about[0],
			Subject:   apptSubject,
			Start:     start,
			Duration:  apptDuration,
			Location:  apptLocation,
			Attendees: trimAll(apptAttendees),
		}
		if err := Workflows.ScheduleAppointment(commandContext(cmd), in); err != nil {
			return workflowError(err)
		}
		fmt.Printf("Appointment about %s scheduled for %s.\n", about[0].Display, start.Format("2006-01-02 15:04"))
		return nil
	},
}

func parseAppointmentTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range appointmentTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --at %q (use e.g. 2024-06-01 10:00)", s)
}

// workflowError prints validation messages field by field.
func workflowError(err error) error {
	if verr, ok := core.AsValidationError(err); ok {
		printFieldErrors(verr.Fields)
		return fmt.Errorf("request not submitted")
	}
	return err
}

func init() {
	deleteRequestCmd.Flags().StringVar(&deleteReason, "reason", "", "Why the record should be deleted")

	transferCmd.Flags().StringVar(&transferTo, "to", "", "Target organization id")
	_ = transferCmd.RegisterFlagCompletionFunc("to", completeRecordIDs(models.EntityOrganization))

	appointmentCmd.Flags().StringVar(&apptAt, "at", "", "Start time, e.g. \"2024-06-01 10:00\"")
	appointmentCmd.Flags().DurationVar(&apptDuration, "duration", 30*time.Minute, "Duration")
	appointmentCmd.Flags().StringVar(&apptSubject, "subject", "", "Subject (default \"Meeting: <record>\")")
	appointmentCmd.Flags().StringVar(&apptLocation, "location", "", "Location")
	appointmentCmd.Flags().StringSliceVar(&apptAttendees, "attendee", nil, "Attendee email addresses")

	rootCmd.AddCommand(deleteRequestCmd, transferCmd, appointmentCmd)
}
