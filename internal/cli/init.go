package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/core"
)

var initBaseURL string

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default staffdesk configuration file",
	Long: `Write a .staffdesk.yaml with the default settings into the given
directory (the current directory by default).

Safe to run on existing setups -- an existing configuration file is
skipped and not overwritten. Keep the API token out of the file and set
STAFFDESK_API_TOKEN in the environment or a .env file instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		basePath := "."
		if len(args) > 0 {
			basePath = args[0]
		}
		absPath, err := filepath.Abs(basePath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		path, created, err := core.InitConfigFile(absPath, initBaseURL)
		if err != nil {
			return fmt.Errorf("initializing configuration: %w", err)
		}
		if !created {
			fmt.Printf("Skipped (already exists): %s\n", path)
			return nil
		}
		fmt.Printf("Created: %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "CRM API base URL")
	rootCmd.AddCommand(initCmd)
}
