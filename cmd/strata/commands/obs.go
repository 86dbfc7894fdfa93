package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/action"
	"github.com/stratahq/strata/errors"
)

// ObsCmd lists an entity's raw observation ledger.
var ObsCmd = &cobra.Command{
	Use:   "obs <entity-id>",
	Short: "List an entity's raw observation ledger",
	Long: `Print every observation attached to an entity, oldest first. The
ledger is the raw material snapshots are folded from; nothing here is ever
rewritten.

Examples:
  strata obs EN3f2a91bc44d1e02a77f0 --owner me
  strata obs EN3f2a91bc44d1e02a77f0 --owner me --as-of 2024-06-01T00:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runObs,
}

var (
	obsOwnerFlag string
	obsAsOfFlag  string
)

func init() {
	ObsCmd.Flags().StringVar(&obsOwnerFlag, "owner", "", "Owner of the entity (required)")
	ObsCmd.Flags().StringVar(&obsAsOfFlag, "as-of", "", "Only observations at or before this instant (RFC 3339)")
	ObsCmd.MarkFlagRequired("owner")
}

func runObs(cmd *cobra.Command, args []string) error {
	var asOf *time.Time
	if obsAsOfFlag != "" {
		parsed, err := time.Parse(time.RFC3339, obsAsOfFlag)
		if err != nil {
			return errors.Wrapf(err, "parse --as-of %q", obsAsOfFlag)
		}
		asOf = &parsed
	}

	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := dispatcher.ListObservations(cmd.Context(), action.ListObservationsRequest{
		EntityID: args[0],
		AsOf:     asOf,
		Owner:    obsOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}
