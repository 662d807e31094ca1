package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

var (
	seekersQuery string
	seekersLimit int
)

var seekersCmd = &cobra.Command{
	Use:   "seekers",
	Short: "List job seekers",
	Long: `List job seekers with the configured columns.

Columns are configured with 'staffdesk fields toggle job_seeker columns <key>'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Sources == nil {
			return fmt.Errorf("CRM client not initialized")
		}
		ctx := commandContext(cmd)
		raws, err := Sources.ListRecords(ctx, models.EntityJobSeeker)
		if err != nil {
			return fmt.Errorf("listing job seekers: %w", err)
		}

		catalog, err := panelCatalog(ctx, models.EntityJobSeeker, core.PanelColumns)
		if err != nil {
			logger().Warn("loading field catalog", "entity", string(models.EntityJobSeeker), "error", err)
			catalog = core.BuildCatalog(core.StandardFields(models.EntityJobSeeker), nil, nil)
		}
		columns := core.NewFieldLayouts(models.EntityJobSeeker, Layouts, logger(), EventLog).Visible(ctx, core.PanelColumns)

		query := strings.ToLower(strings.TrimSpace(seekersQuery))
		rows := make([][]core.RenderedField, 0, len(raws))
		ids := make([]string, 0, len(raws))
		for _, raw := range raws {
			seeker := core.NormalizeJobSeeker(raw, logger())
			if query != "" && !strings.Contains(strings.ToLower(seeker.FullName), query) &&
				!strings.Contains(strings.ToLower(seeker.Email), query) {
				continue
			}
			rows = append(rows, core.RenderFields(columns, catalog, seeker.Base()))
			ids = append(ids, seeker.RecordID())
			if seekersLimit > 0 && len(rows) == seekersLimit {
				break
			}
		}

		if len(rows) == 0 {
			fmt.Println("No job seekers found.")
			return nil
		}

		headers := []string{"ID"}
		for _, key := range columns {
			if e, ok := catalog.Lookup(key); ok {
				headers = append(headers, e.Label)
			}
		}
		table := make([][]string, 0, len(rows)+1)
		table = append(table, headers)
		for i, row := range rows {
			cells := []string{ids[i]}
			for _, f := range row {
				cells = append(cells, orDash(f.Value))
			}
			table = append(table, cells)
		}
		printTable(table)
		return nil
	},
}

// printTable prints rows as left-aligned columns sized to their widest cell.
func printTable(rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(cell))))
			}
		}
		fmt.Println(b.String())
	}
}

func init() {
	seekersCmd.Flags().StringVar(&seekersQuery, "query", "", "Only show job seekers whose name or email contains this text")
	seekersCmd.Flags().IntVar(&seekersLimit, "limit", 0, "Show at most this many job seekers (0 for all)")
	rootCmd.AddCommand(seekersCmd)
}
