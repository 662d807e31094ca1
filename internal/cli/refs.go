package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

var (
	refsExclude []string
	refsJSON    bool
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Search records to reference from notes",
}

var refsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search every record type for a reference",
	Long: `Search jobs, organizations, job seekers, leads, tasks, placements and
hiring managers at once. A record matches when its title or id contains the
query. Results are grouped in that order and capped at the configured limit.

Records passed with --exclude (e.g. J-42) are left out of the results.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Resolver == nil {
			return fmt.Errorf("reference resolver not initialized")
		}
		selected := make([]models.EntityReference, 0, len(refsExclude))
		for _, raw := range trimAll(refsExclude) {
			t, id, err := models.ParseRecordID(raw)
			if err != nil {
				return err
			}
			selected = append(selected, models.NewReference(id, t, ""))
		}

		query := strings.Join(args, " ")
		refs, err := Resolver.Search(commandContext(cmd), query, selected)
		if err != nil {
			return fmt.Errorf("searching references: %w", err)
		}

		if refsJSON {
			data, err := json.MarshalIndent(refs, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting references as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(refs) == 0 {
			fmt.Printf("No records match %q.\n", query)
			return nil
		}
		for _, ref := range refs {
			fmt.Printf("%-16s %s\n", models.MustEntity(ref.Type).Label, ref.Display)
		}
		return nil
	},
}

func init() {
	refsSearchCmd.Flags().StringSliceVar(&refsExclude, "exclude", nil, "Record ids to leave out of the results")
	refsSearchCmd.Flags().BoolVar(&refsJSON, "json", false, "Output references as JSON")
	refsCmd.AddCommand(refsSearchCmd)
	rootCmd.AddCommand(refsCmd)
}
