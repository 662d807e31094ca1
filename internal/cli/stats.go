package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/observability"
)

var (
	statsJSON  bool
	statsSince string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display usage statistics",
	Long: `Display statistics derived from the local event log.

Statistics include notes created and rejected, notes by record type,
reference search source failures, field layout changes, header saves and
submitted workflows.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		sinceTime := time.Now().UTC().AddDate(0, 0, -7)
		if statsSince != "" {
			var err error
			sinceTime, err = observability.ParseSince(statsSince)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		if statsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Statistics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		if Account != "" {
			fmt.Printf("  %-24s %s\n", "Signed in as:", Account)
		}
		fmt.Printf("  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Printf("  %-24s %d\n", "Notes created:", metrics.NotesCreated)
		fmt.Printf("  %-24s %d\n", "Notes rejected:", metrics.NotesRejected)
		fmt.Printf("  %-24s %d\n", "Record fetch errors:", metrics.RecordFetchErrors)
		fmt.Printf("  %-24s %d\n", "Layout changes:", metrics.LayoutChanges)
		fmt.Printf("  %-24s %d\n", "Header saves:", metrics.HeaderSaves)
		fmt.Printf("  %-24s %d\n", "Header save failures:", metrics.HeaderSaveFailures)
		fmt.Printf("  %-24s %d\n", "Workflows submitted:", metrics.Workflows)

		printCounts("Notes by record type:", metrics.NotesByEntity)
		printCounts("Search source failures:", metrics.SourceFailures)

		if metrics.OldestEvent != nil {
			fmt.Printf("\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Printf("  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("\n  %s\n", title)
	for _, k := range keys {
		fmt.Printf("    %-20s %d\n", k+":", counts[k])
	}
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output statistics as JSON")
	statsCmd.Flags().StringVar(&statsSince, "since", "7d", "Time window (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(statsCmd)
}
