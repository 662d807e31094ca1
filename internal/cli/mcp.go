package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	sdmcp "github.com/valter-silva-au/staffdesk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the staffdesk MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the staffdesk MCP server on stdio",
	Long: `Start the staffdesk MCP server on stdio transport.

The server exposes CRM records as MCP tools that AI assistants can call:
search_references, get_record, list_notes, add_note, get_history,
list_fields, get_metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Records == nil || Resolver == nil {
			return fmt.Errorf("CRM services not initialized")
		}

		srv := sdmcp.NewServer(sdmcp.Services{
			Resolver: Resolver,
			Records:  Records,
			Sources:  Sources,
			Notes:    Notes,
			Config:   Config,
			Layouts:  Layouts,
			Metrics:  MetricsCalc,
			Events:   EventLog,
			Logger:   Logger,
		}, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
