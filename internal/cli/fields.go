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

var (
	fieldsPanel   string
	fieldsQuery   string
	fieldsJSON    bool
	headerToggles []string
	headerUp      []string
	headerDown    []string
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Configure which fields each record panel shows",
	Long: `Configure which fields each record panel shows.

Panel layouts apply to every record of the same type. The header strip is
saved to the CRM; the other panels are saved locally.`,
}

var fieldsCatalogCmd = &cobra.Command{
	Use:               "catalog <entity-type>",
	Short:             "List the standard and custom fields of a record type",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityTypes,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseViewType(args[0])
		if err != nil {
			return err
		}
		catalog, err := panelCatalog(commandContext(cmd), t, "")
		if err != nil {
			return err
		}

		entries := catalog.Entries()
		if fieldsQuery != "" {
			entries = catalog.Find(fieldsQuery, nil)
		}
		if fieldsJSON {
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting catalog as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%-32s %-28s %s\n", "KEY", "LABEL", "KIND")
		fmt.Printf("%-32s %-28s %s\n", "---", "-----", "----")
		for _, e := range entries {
			kind := "standard"
			if e.Custom {
				kind = "custom"
			}
			if e.Hidden {
				kind += " (hidden)"
			}
			fmt.Printf("%-32s %-28s %s\n", e.Key, e.Label, kind)
		}
		return nil
	},
}

var fieldsListCmd = &cobra.Command{
	Use:               "list <entity-type>",
	Short:             "Show the fields each panel of a record type shows",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityTypes,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseViewType(args[0])
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		layouts := core.NewFieldLayouts(t, Layouts, logger(), EventLog)

		panels := core.Panels(t)
		if fieldsPanel != "" {
			if err := checkPanel(t, fieldsPanel); err != nil {
				return err
			}
			panels = []string{fieldsPanel}
		}
		for i, panel := range panels {
			keys := layouts.Visible(ctx, panel)
			if panel == core.PanelHeader {
				keys = headerFields(ctx, t)
			}
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("%s\n", panel)
			catalog, err := panelCatalog(ctx, t, panel)
			if err != nil {
				logger().Warn("loading field catalog", "entity", string(t), "error", err)
			}
			for n, key := range keys {
				fmt.Printf("  %d. %-30s %s\n", n+1, key, labelOf(catalog, key))
			}
		}
		return nil
	},
}

var fieldsToggleCmd = &cobra.Command{
	Use:   "toggle <entity-type> <panel> <field-key>",
	Short: "Show or hide a field in a panel",
	Long: `Show or hide a field in a panel. A shown field is added at the end of the
panel. Hidden custom fields cannot be added. Use 'staffdesk fields header'
for the header strip.`,
	Args:              cobra.ExactArgs(3),
	ValidArgsFunction: completeLayoutArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseViewType(args[0])
		if err != nil {
			return err
		}
		panel, key := args[1], args[2]
		if err := checkPanel(t, panel); err != nil {
			return err
		}
		if panel == core.PanelHeader {
			return fmt.Errorf("the header strip is edited with 'staffdesk fields header'")
		}
		ctx := commandContext(cmd)
		layouts := core.NewFieldLayouts(t, Layouts, logger(), EventLog)

		if !containsKey(layouts.Visible(ctx, panel), key) {
			catalog, err := panelCatalog(ctx, t, panel)
			if err != nil {
				return err
			}
			if !catalog.CanAdd(key) {
				return fmt.Errorf("field %q cannot be added to %s", key, panel)
			}
		}

		keys := layouts.Toggle(ctx, panel, key)
		if containsKey(keys, key) {
			fmt.Printf("Showing %s in %s %s\n", key, t, panel)
		} else {
			fmt.Printf("Hiding %s in %s %s\n", key, t, panel)
		}
		fmt.Printf("Fields: %s\n", strings.Join(keys, ", "))
		return nil
	},
}

var fieldsResetCmd = &cobra.Command{
	Use:               "reset <entity-type> <panel>",
	Short:             "Restore the default fields of a panel",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeLayoutArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseViewType(args[0])
		if err != nil {
			return err
		}
		if err := checkPanel(t, args[1]); err != nil {
			return err
		}
		keys := core.NewFieldLayouts(t, Layouts, logger(), EventLog).Reset(commandContext(cmd), args[1])
		fmt.Printf("Reset %s %s to: %s\n", t, args[1], strings.Join(keys, ", "))
		return nil
	},
}

var fieldsSetCmd = &cobra.Command{
	Use:   "set <entity-type> <panel> <field-key>...",
	Short: "Replace the fields of a panel, in order",
	Long: `Replace the fields of a panel with the given keys, in the given order.
Repeated keys are dropped. Hidden custom fields can only be kept when the
panel already shows them.

Example:
  staffdesk fields set job details job_title status custom:clearance`,
	Args:              cobra.MinimumNArgs(3),
	ValidArgsFunction: completeLayoutArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseViewType(args[0])
		if err != nil {
			return err
		}
		panel := args[1]
		if err := checkPanel(t, panel); err != nil {
			return err
		}
		if panel == core.PanelHeader {
			return fmt.Errorf("the header strip is edited with 'staffdesk fields header'")
		}
		ctx := commandContext(cmd)
		layouts := core.NewFieldLayouts(t, Layouts, logger(), EventLog)

		current := layouts.Visible(ctx, panel)
		catalog, err := panelCatalog(ctx, t, panel)
		if err != nil {
			return err
		}
		for _, key := range args[2:] {
			if !containsKey(current, key) && !catalog.CanAdd(key) {
				return fmt.Errorf("field %q cannot be added to %s", key, panel)
			}
		}

		keys := layouts.Set(ctx, panel, args[2:])
		fmt.Printf("Set %s %s to: %s\n", t, panel, strings.Join(keys, ", "))
		return nil
	},
}

var fieldsSavedCmd = &cobra.Command{
	Use:   "saved",
	Short: "List the panels that have a saved layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Layouts == nil {
			return fmt.Errorf("layout store not initialized")
		}
		ctx := commandContext(cmd)
		keys, err := Layouts.Keys(ctx)
		if err != nil {
			return fmt.Errorf("listing saved layouts: %w", err)
		}
		if len(keys) == 0 {
			fmt.Println("No saved layouts; every panel shows its default fields.")
			return nil
		}

		fmt.Printf("%-18s %-22s %s\n", "TYPE", "PANEL", "FIELDS")
		fmt.Printf("%-18s %-22s %s\n", "----", "-----", "------")
		for _, key := range keys {
			entity, panel, _ := strings.Cut(key, ":")
			fields, _, err := Layouts.Get(ctx, key)
			if err != nil {
				logger().Warn("reading saved layout", "key", key, "error", err)
				continue
			}
			fmt.Printf("%-18s %-22s %d\n", entity, panel, len(fields))
		}
		return nil
	},
}

var fieldsHeaderCmd = &cobra.Command{
	Use:   "header <entity-type>",
	Short: "Show or edit the header strip of a record type",
	Long: `Show or edit the header strip of a record type.

Edits are applied in order (--toggle, then --up, then --down) and saved to
the CRM in one request. Nothing changes when the save fails.

Examples:
  staffdesk fields header job
  staffdesk fields header job --toggle owner --up owner
  staffdesk fields header hiring_manager --down email`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityTypes,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Headers == nil {
			return fmt.Errorf("header config service not initialized")
		}
		t, err := parseViewType(args[0])
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		editor := core.NewHeaderEditor(t, Headers, Layouts, logger(), EventLog)
		current := editor.Load(ctx)

		if len(headerToggles)+len(headerUp)+len(headerDown) == 0 {
			printHeader(ctx, t, current)
			return nil
		}

		catalog, err := panelCatalog(ctx, t, core.PanelHeader)
		if err != nil {
			return err
		}
		editor.Begin()
		for _, key := range trimAll(headerToggles) {
			if !containsKey(editor.Working(), key) && !catalog.CanAdd(key) {
				editor.Cancel()
				return fmt.Errorf("field %q cannot be added to the header", key)
			}
			if err := editor.Toggle(key); err != nil {
				return err
			}
		}
		for _, key := range trimAll(headerUp) {
			if err := editor.Reorder(key, core.Up); err != nil {
				return err
			}
		}
		for _, key := range trimAll(headerDown) {
			if err := editor.Reorder(key, core.Down); err != nil {
				return err
			}
		}
		if err := editor.Commit(ctx); err != nil {
			editor.Cancel()
			return err
		}
		fmt.Println("Header saved.")
		printHeader(ctx, t, editor.Fields())
		return nil
	},
}

func printHeader(ctx context.Context, t models.EntityType, keys []string) {
	catalog, err := panelCatalog(ctx, t, core.PanelHeader)
	if err != nil {
		logger().Warn("loading field catalog", "entity", string(t), "error", err)
	}
	fmt.Printf("Header fields of %s:\n", models.MustEntity(t).Label)
	for i, key := range keys {
		fmt.Printf("  %d. %-30s %s\n", i+1, key, labelOf(catalog, key))
	}
}

// panelCatalog returns the catalog a panel draws from. The organization
// panel draws from organization fields.
func panelCatalog(ctx context.Context, t models.EntityType, panel string) (*core.Catalog, error) {
	if panel == core.PanelOrganizationDetails {
		t = models.EntityOrganization
	}
	if Records == nil {
		return core.BuildCatalog(core.StandardFields(t), nil, nil), nil
	}
	return Records.Catalog(ctx, t)
}

func labelOf(catalog *core.Catalog, key string) string {
	if catalog != nil {
		if e, ok := catalog.Lookup(key); ok {
			return e.Label
		}
	}
	return core.HumanizeKey(key)
}

func parseViewType(s string) (models.EntityType, error) {
	t, err := models.ParseEntityType(s)
	if err != nil {
		return "", err
	}
	if len(core.Panels(t)) == 0 {
		return "", fmt.Errorf("%s records have no configurable panels", models.MustEntity(t).Label)
	}
	return t, nil
}

func checkPanel(t models.EntityType, panel string) error {
	panels := core.Panels(t)
	if !containsKey(panels, panel) {
		return fmt.Errorf("unknown panel %q for %s (panels: %s)", panel, t, strings.Join(panels, ", "))
	}
	return nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func init() {
	fieldsCatalogCmd.Flags().StringVar(&fieldsQuery, "query", "", "Fuzzy filter on field labels and keys")
	fieldsCatalogCmd.Flags().BoolVar(&fieldsJSON, "json", false, "Output the catalog as JSON")

	fieldsListCmd.Flags().StringVar(&fieldsPanel, "panel", "", "Only show this panel")
	_ = fieldsListCmd.RegisterFlagCompletionFunc("panel", completePanels)

	fieldsHeaderCmd.Flags().StringSliceVar(&headerToggles, "toggle", nil, "Add or remove a header field")
	fieldsHeaderCmd.Flags().StringSliceVar(&headerUp, "up", nil, "Move a header field one slot up")
	fieldsHeaderCmd.Flags().StringSliceVar(&headerDown, "down", nil, "Move a header field one slot down")

	fieldsCmd.AddCommand(fieldsCatalogCmd, fieldsListCmd, fieldsToggleCmd, fieldsSetCmd, fieldsResetCmd, fieldsHeaderCmd, fieldsSavedCmd)
	rootCmd.AddCommand(fieldsCmd)
}
