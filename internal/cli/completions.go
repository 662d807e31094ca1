package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// viewTypes are the entity types with a dedicated record view.
var viewTypes = []models.EntityType{
	models.EntityJob,
	models.EntityHiringManager,
	models.EntityTask,
	models.EntityJobSeeker,
}

// completeRecordIDs returns a completion function that lists formatted
// record ids of the given types, with the record title as description.
func completeRecordIDs(types ...models.EntityType) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	if len(types) == 0 {
		types = viewTypes
	}
	return func(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if Sources == nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var ids []string
		for _, t := range types {
			records, err := Sources.ListRecords(ctx, t)
			if err != nil {
				continue
			}
			for _, raw := range records {
				id := models.FormatRecordID(models.Stringify(raw["id"]), t)
				if toComplete == "" || strings.HasPrefix(strings.ToUpper(id), strings.ToUpper(toComplete)) {
					ids = append(ids, id+"\t"+models.TitleOf(t, raw))
				}
			}
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeEntityTypes returns the entity types with a record view.
func completeEntityTypes(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, 0, len(viewTypes))
	for _, t := range viewTypes {
		out = append(out, string(t)+"\t"+models.MustEntity(t).Label)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completePanels lists the panels of the entity type given as the first
// argument, or of every view type when there is none.
func completePanels(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	types := viewTypes
	if len(args) > 0 {
		if t, err := models.ParseEntityType(args[0]); err == nil {
			types = []models.EntityType{t}
		}
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range types {
		for _, p := range core.Panels(t) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeNoteActions lists the note actions of the record named by the
// first positional argument.
func completeNoteActions(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	t, _, err := models.ParseRecordID(args[0])
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return noteActions(t), cobra.ShellCompDirectiveNoFileComp
}

// completeLayoutArgs completes "<entity-type> <panel>" positional pairs.
func completeLayoutArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeEntityTypes(cmd, args, toComplete)
	case 1:
		return completePanels(cmd, args, toComplete)
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
