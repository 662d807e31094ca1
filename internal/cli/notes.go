package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

var (
	noteText            string
	noteAction          string
	noteAbout           []string
	noteRefs            []string
	noteEmails          []string
	noteCopy            bool
	noteNextAction      string
	noteReplaceComments bool
	notesLimit          int
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List and add notes on a record",
}

var notesListCmd = &cobra.Command{
	Use:               "list <record-id>",
	Short:             "List the notes of a record, newest first",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeRecordIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Records == nil {
			return fmt.Errorf("record loader not initialized")
		}
		t, id, err := models.ParseRecordID(args[0])
		if err != nil {
			return err
		}
		page := Records.Load(commandContext(cmd), t, id)
		if page.NotesErr != nil {
			return fmt.Errorf("loading notes of %s: %w", args[0], page.NotesErr)
		}

		notes := page.Notes.All()
		if notesLimit > 0 && len(notes) > notesLimit {
			notes = notes[:notesLimit]
		}
		if len(notes) == 0 {
			fmt.Printf("No notes on %s.\n", page.Heading())
			return nil
		}
		fmt.Printf("Notes on %s (%d)\n\n", page.Heading(), page.Notes.Len())
		for _, n := range notes {
			printNote(n)
		}
		return nil
	},
}

var notesAddCmd = &cobra.Command{
	Use:   "add <record-id>",
	Short: "Add a note to a record",
	Long: `Add a note to a record. The note is always about the record itself; use
--about to add more records the note is about and --ref for additional
references. References take record ids such as J-42 or HM-7.

The note is validated before it is sent: text is required, the action must
be one of 'staffdesk notes actions' and every --email recipient must be an
internal user.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeRecordIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Records == nil || Notes == nil {
			return fmt.Errorf("note service not initialized")
		}
		t, id, err := models.ParseRecordID(args[0])
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		log := logger().With("record", models.FormatRecordID(id, t))

		about, err := core.LookupReferences(ctx, Sources, noteAbout, log)
		if err != nil {
			return err
		}
		additional, err := core.LookupReferences(ctx, Sources, noteRefs, log)
		if err != nil {
			return err
		}

		var users []models.User
		if len(noteEmails) > 0 && Users != nil {
			users, err = Users.InternalUsers(ctx)
			if err != nil {
				return fmt.Errorf("loading internal users: %w", err)
			}
		}

		page := Records.Load(ctx, t, id)
		composer := page.NewComposer(Notes, users, noteActions(t), log, EventLog)
		composer.Open()
		if err := composer.Edit(func(d *models.NoteDraft) {
			d.Text = noteText
			d.Action = noteAction
			d.CopyNote = noteCopy
			d.ScheduleNextAction = noteNextAction
			d.EmailNotification = trimAll(noteEmails)
			d.ReplaceGeneralContactComments = noteReplaceComments
		}); err != nil {
			return err
		}
		for _, ref := range about {
			if err := composer.AddAboutReference(ref); err != nil {
				return err
			}
		}
		for _, ref := range additional {
			if err := composer.AddAdditionalReference(ref); err != nil {
				return err
			}
		}

		note, err := composer.Submit(ctx)
		if err != nil {
			if verr, ok := core.AsValidationError(err); ok {
				printFieldErrors(verr.Fields)
				return fmt.Errorf("note not added")
			}
			var serr *core.SubmitError
			if errors.As(err, &serr) {
				return fmt.Errorf("%s: %w", serr.Message, serr.Err)
			}
			return err
		}

		fmt.Printf("Added note %s to %s\n", note.ID, page.Heading())
		printNote(*note)
		return nil
	},
}

var notesActionsCmd = &cobra.Command{
	Use:               "actions <record-id|entity-type>",
	Short:             "List the note actions offered for a record type",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityTypes,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := models.ParseEntityType(args[0])
		if err != nil {
			rt, _, perr := models.ParseRecordID(args[0])
			if perr != nil {
				return err
			}
			t = rt
		}
		for _, action := range noteActions(t) {
			fmt.Println(action)
		}
		return nil
	},
}

func printFieldErrors(fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", k, fields[k])
	}
}

func init() {
	notesListCmd.Flags().IntVar(&notesLimit, "limit", 0, "Show at most this many notes (0 for all)")

	notesAddCmd.Flags().StringVar(&noteText, "text", "", "Note text")
	notesAddCmd.Flags().StringVar(&noteAction, "action", "", "Note action, see 'staffdesk notes actions'")
	notesAddCmd.Flags().StringSliceVar(&noteAbout, "about", nil, "Additional records the note is about")
	notesAddCmd.Flags().StringSliceVar(&noteRefs, "ref", nil, "Additional references")
	notesAddCmd.Flags().StringSliceVar(&noteEmails, "email", nil, "Internal users to notify by email")
	notesAddCmd.Flags().BoolVar(&noteCopy, "copy", false, "Copy the note to the referenced records")
	notesAddCmd.Flags().StringVar(&noteNextAction, "next-action", "", "Schedule a next action")
	notesAddCmd.Flags().BoolVar(&noteReplaceComments, "replace-comments", false, "Replace the general contact comments with the note text")
	_ = notesAddCmd.RegisterFlagCompletionFunc("action", completeNoteActions)
	_ = notesAddCmd.RegisterFlagCompletionFunc("about", completeRecordIDs(models.EntityTypes()...))
	_ = notesAddCmd.RegisterFlagCompletionFunc("ref", completeRecordIDs(models.EntityTypes()...))

	notesCmd.AddCommand(notesListCmd, notesAddCmd, notesActionsCmd)
	rootCmd.AddCommand(notesCmd)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
