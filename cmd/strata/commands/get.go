package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/action"
	"github.com/stratahq/strata/errors"
)

// GetCmd computes an entity snapshot.
var GetCmd = &cobra.Command{
	Use:   "get <entity-id>",
	Short: "Compute an entity snapshot (current or historical)",
	Long: `Fold an entity's observation ledger into its current state, or into
the state as of a past instant.

Examples:
  strata get EN3f2a91bc44d1e02a77f0 --owner me
  strata get EN3f2a91bc44d1e02a77f0 --owner me --at 2024-06-01T00:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var (
	getOwnerFlag string
	getAtFlag    string
)

func init() {
	GetCmd.Flags().StringVar(&getOwnerFlag, "owner", "", "Owner of the entity (required)")
	GetCmd.Flags().StringVar(&getAtFlag, "at", "", "Historical instant (RFC 3339)")
	GetCmd.MarkFlagRequired("owner")
}

func runGet(cmd *cobra.Command, args []string) error {
	var at *time.Time
	if getAtFlag != "" {
		parsed, err := time.Parse(time.RFC3339, getAtFlag)
		if err != nil {
			return errors.Wrapf(err, "parse --at %q", getAtFlag)
		}
		at = &parsed
	}

	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := dispatcher.GetEntitySnapshot(cmd.Context(), action.GetEntitySnapshotRequest{
		EntityID: args[0],
		At:       at,
		Owner:    getOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(result.Snapshot)
}
