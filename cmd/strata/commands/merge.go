package commands

import (
	"github.com/spf13/cobra"

	"github.com/stratahq/strata/action"
)

// MergeCmd folds a duplicate entity into its canonical one.
var MergeCmd = &cobra.Command{
	Use:   "merge <from-entity-id> <to-entity-id>",
	Short: "Merge a duplicate entity into its canonical one",
	Long: `Move every observation from one entity onto another and leave a
redirect behind. Reads against the merged-away id keep working.

Example:
  strata merge EN9c41... EN3f2a... --owner me --reason "same invoice"`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

var (
	mergeOwnerFlag  string
	mergeReasonFlag string
)

func init() {
	MergeCmd.Flags().StringVar(&mergeOwnerFlag, "owner", "", "Owner of both entities (required)")
	MergeCmd.Flags().StringVar(&mergeReasonFlag, "reason", "", "Why these entities are the same")
	MergeCmd.MarkFlagRequired("owner")
}

func runMerge(cmd *cobra.Command, args []string) error {
	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := dispatcher.MergeEntities(cmd.Context(), action.MergeEntitiesRequest{
		FromID: args[0],
		ToID:   args[1],
		Reason: mergeReasonFlag,
		Owner:  mergeOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}
