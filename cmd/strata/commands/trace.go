package commands

import (
	"github.com/spf13/cobra"

	"github.com/stratahq/strata/action"
)

// TraceCmd traces a field back to its origin.
var TraceCmd = &cobra.Command{
	Use:   "trace <entity-id> <field>",
	Short: "Trace one field back to its observation and source",
	Long: `Answer "where did this value come from": the observation that won the
field's merge policy, and the raw source that produced it.

Example:
  strata trace EN3f2a91bc44d1e02a77f0 status --owner me`,
	Args: cobra.ExactArgs(2),
	RunE: runTrace,
}

var traceOwnerFlag string

func init() {
	TraceCmd.Flags().StringVar(&traceOwnerFlag, "owner", "", "Owner of the entity (required)")
	TraceCmd.MarkFlagRequired("owner")
}

func runTrace(cmd *cobra.Command, args []string) error {
	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	trace, err := dispatcher.FieldProvenance(cmd.Context(), action.FieldProvenanceRequest{
		EntityID: args[0],
		Field:    args[1],
		Owner:    traceOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(trace)
}
