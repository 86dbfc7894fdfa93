package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/action"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/vals"
)

// CorrectCmd appends a user correction.
var CorrectCmd = &cobra.Command{
	Use:   "correct <entity-id> <fields-json>",
	Short: "Append a user correction",
	Long: `Append a correction observation. Corrections carry maximum priority, so
they win over every source-derived value without rewriting history.

Example:
  strata correct EN3f2a91bc44d1e02a77f0 '{"status":"done"}' --owner me`,
	Args: cobra.ExactArgs(2),
	RunE: runCorrect,
}

var correctOwnerFlag string

func init() {
	CorrectCmd.Flags().StringVar(&correctOwnerFlag, "owner", "", "Owner of the entity (required)")
	CorrectCmd.MarkFlagRequired("owner")
}

func runCorrect(cmd *cobra.Command, args []string) error {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(args[1]), &raw); err != nil {
		return errors.Wrap(err, "parse fields JSON")
	}
	fields, err := vals.FieldsFromAny(raw)
	if err != nil {
		return errors.Wrap(err, "invalid field values")
	}

	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	obs, err := dispatcher.Correct(cmd.Context(), action.CorrectRequest{
		EntityID: args[0],
		Fields:   fields,
		Owner:    correctOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(obs)
}
