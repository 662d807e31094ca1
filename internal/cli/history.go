package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <record-id>",
	Short: "Show the audit history of a record",
	Long: `Show the audit history of a record. Updates are rendered as one
"Field: before → after" line per changed field, using the field labels of
the record type.`,
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
		if page.HistoryErr != nil {
			return fmt.Errorf("loading history of %s: %w", args[0], page.HistoryErr)
		}

		entries := page.History
		if historyLimit > 0 && len(entries) > historyLimit {
			entries = entries[:historyLimit]
		}
		if len(entries) == 0 {
			fmt.Printf("No history for %s.\n", page.Heading())
			return nil
		}

		labels := page.HistoryLabels()
		fmt.Printf("History of %s\n\n", page.Heading())
		for _, e := range entries {
			by := e.PerformedByName
			if by == "" {
				by = "Unknown"
			}
			when := "unknown date"
			if !e.PerformedAt.IsZero() {
				when = e.PerformedAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("[%s] %s by %s\n", when, e.Action, by)
			for _, line := range core.DescribeHistory(e, labels) {
				fmt.Printf("  %s\n", line)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Show at most this many entries (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
