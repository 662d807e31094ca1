package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show a record with its configured field panels",
	Long: `Show a record the way its view page does: the heading, the header strip,
every configured field panel, the most recent notes and the interview count.

Record ids use the CRM prefixes, e.g. J-42, HM-7, T-3 or JS-19.
Parts that fail to load are reported as warnings; the rest is still shown.`,
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
		ctx := commandContext(cmd)
		page := Records.Load(ctx, t, id)
		if page.RecordErr != nil {
			return fmt.Errorf("loading %s: %w", args[0], page.RecordErr)
		}

		header := headerFields(ctx, t)
		layouts := core.NewFieldLayouts(t, Layouts, logger(), EventLog)

		if showJSON {
			return printRecordJSON(ctx, page, header, layouts)
		}

		fmt.Println(page.Heading())
		fmt.Println(strings.Repeat("=", len(page.Heading())))
		if url := models.RecordURL(t, id); url != "" {
			fmt.Printf("%s\n", url)
		}
		if Account != "" {
			fmt.Printf("Viewing as %s\n", Account)
		}
		printFieldRow(page.Fields(header))

		for _, panel := range core.Panels(t) {
			if panel == core.PanelHeader || panel == core.PanelRecentNotes || panel == core.PanelColumns {
				continue
			}
			fields := panelFields(ctx, page, panel, layouts.Visible(ctx, panel))
			fmt.Printf("\n%s\n", core.HumanizeKey(panel))
			if len(fields) == 0 {
				fmt.Println("  (no fields selected)")
				continue
			}
			printFieldList(fields)
		}

		fmt.Println("\nRecent Notes")
		recent := page.RecentNotes()
		if len(recent) == 0 {
			fmt.Println("  No notes yet")
		}
		for _, n := range recent {
			printNote(n)
		}
		fmt.Printf("\nInterviews: %d\n", page.Interviews.Count())

		if err := page.Err(); err != nil {
			fmt.Printf("\nwarning: %v\n", err)
		}
		return nil
	},
}

// headerFields loads the header strip order of t, falling back to the
// local mirror and then the default when the remote config is unavailable.
func headerFields(ctx context.Context, t models.EntityType) []string {
	if Headers == nil {
		return core.DefaultLayout(t, core.PanelHeader)
	}
	return core.NewHeaderEditor(t, Headers, Layouts, logger(), EventLog).Load(ctx)
}

// panelFields renders a panel. The organization panel renders the
// organization the record belongs to rather than the record itself.
func panelFields(ctx context.Context, page *core.RecordPage, panel string, keys []string) []core.RenderedField {
	if panel != core.PanelOrganizationDetails {
		return page.Fields(keys)
	}
	orgID := organizationOf(page.Record)
	if orgID == "" {
		return nil
	}
	org := Records.Load(ctx, models.EntityOrganization, orgID)
	return org.Fields(keys)
}

func organizationOf(rec models.Normalized) string {
	switch r := rec.(type) {
	case models.Job:
		return r.OrganizationID
	case models.HiringManager:
		return r.OrganizationID
	default:
		return ""
	}
}

func printRecordJSON(ctx context.Context, page *core.RecordPage, header []string, layouts *core.FieldLayouts) error {
	out := struct {
		ID         string                          `json:"id"`
		Heading    string                          `json:"heading"`
		URL        string                          `json:"url"`
		Header     []core.RenderedField            `json:"header"`
		Panels     map[string][]core.RenderedField `json:"panels"`
		Notes      []models.Note                   `json:"recent_notes"`
		Interviews int                             `json:"interviews"`
		Warning    string                          `json:"warning,omitempty"`
	}{
		ID:         models.FormatRecordID(page.ID, page.Type),
		Heading:    page.Heading(),
		URL:        models.RecordURL(page.Type, page.ID),
		Header:     page.Fields(header),
		Panels:     make(map[string][]core.RenderedField),
		Notes:      page.RecentNotes(),
		Interviews: page.Interviews.Count(),
	}
	for _, panel := range core.Panels(page.Type) {
		if panel == core.PanelHeader || panel == core.PanelRecentNotes {
			continue
		}
		out.Panels[panel] = panelFields(ctx, page, panel, layouts.Visible(ctx, panel))
	}
	if err := page.Err(); err != nil {
		out.Warning = err.Error()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting record as JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printFieldRow(fields []core.RenderedField) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Label+": "+orDash(f.Value))
	}
	if len(parts) > 0 {
		fmt.Println(strings.Join(parts, " | "))
	}
}

func printFieldList(fields []core.RenderedField) {
	for _, f := range fields {
		fmt.Printf("  %-24s %s\n", f.Label+":", orDash(f.Value))
	}
}

func printNote(n models.Note) {
	when := "unknown date"
	if !n.CreatedAt.IsZero() {
		when = n.CreatedAt.Format("2006-01-02 15:04")
	}
	author := n.CreatedByName
	if author == "" {
		author = "Unknown"
	}
	fmt.Printf("  [%s] %s by %s\n", when, n.Action, author)
	for _, line := range strings.Split(n.Text, "\n") {
		fmt.Printf("    %s\n", line)
	}
	if len(n.AboutReferences) > 0 {
		displays := make([]string, 0, len(n.AboutReferences))
		for _, r := range n.AboutReferences {
			displays = append(displays, r.Display)
		}
		fmt.Printf("    About: %s\n", strings.Join(displays, ", "))
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output the record as JSON")
	rootCmd.AddCommand(showCmd)
}
