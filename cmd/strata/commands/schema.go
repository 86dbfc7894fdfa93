package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/action"
	"github.com/stratahq/strata/config"
	"github.com/stratahq/strata/enhance"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/schema"
)

// SchemaCmd groups schema inspection, evolution and recommendations.
var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and evolve schemas, manage recommendations",
	Long: `Schemas decide which fields become observations. Evolution is
additive-only: fields are never removed or retyped. Recommendations are the
auto-enhancement queue; eligible ones can be applied by hand or left to the
scheduler.

Examples:
  strata schema show task --owner me
  strata schema register habit fields.json --owner me
  strata schema recs --owner me --status eligible
  strata schema apply RC7d... --owner me`,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <entity-type>",
	Short: "Show the active schema for an entity type",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaShow,
}

var schemaVersionsCmd = &cobra.Command{
	Use:   "versions <entity-type>",
	Short: "List stored schema versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaVersions,
}

var schemaRegisterCmd = &cobra.Command{
	Use:   "register <entity-type> <fields-json-file>",
	Short: "Register a new schema version",
	Args:  cobra.ExactArgs(2),
	RunE:  runSchemaRegister,
}

var schemaUpdateCmd = &cobra.Command{
	Use:   "update <entity-type> <fields-json>",
	Short: "Add field definitions to the active schema version",
	Args:  cobra.ExactArgs(2),
	RunE:  runSchemaUpdate,
}

var schemaRecsCmd = &cobra.Command{
	Use:   "recs",
	Short: "List schema recommendations",
	RunE:  runSchemaRecs,
}

var schemaAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Re-score the fragment ledger now",
	RunE:  runSchemaAnalyze,
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply <recommendation-id>",
	Short: "Promote an eligible recommendation into schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaApply,
}

var (
	schemaOwnerFlag     string
	schemaRecStatusFlag string
)

func init() {
	SchemaCmd.AddCommand(schemaShowCmd)
	SchemaCmd.AddCommand(schemaVersionsCmd)
	SchemaCmd.AddCommand(schemaRegisterCmd)
	SchemaCmd.AddCommand(schemaUpdateCmd)
	SchemaCmd.AddCommand(schemaRecsCmd)
	SchemaCmd.AddCommand(schemaAnalyzeCmd)
	SchemaCmd.AddCommand(schemaApplyCmd)

	SchemaCmd.PersistentFlags().StringVar(&schemaOwnerFlag, "owner", "", "Owner of the schema (required)")
	SchemaCmd.MarkPersistentFlagRequired("owner")

	schemaRecsCmd.Flags().StringVar(&schemaRecStatusFlag, "status", "", "Only recommendations in this status")
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	registry := schema.NewRegistry(database, nil)
	active, err := registry.LoadActive(cmd.Context(), args[0], schemaOwnerFlag)
	if err != nil {
		return err
	}
	if active == nil {
		return errors.Wrapf(errors.ErrResourceNotFound, "no schema for entity type %q", args[0])
	}
	return printJSON(active)
}

func runSchemaVersions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	registry := schema.NewRegistry(database, nil)
	versions, err := registry.ListVersions(cmd.Context(), args[0], schemaOwnerFlag)
	if err != nil {
		return err
	}
	return printJSON(versions)
}

func readFieldDefs(raw []byte) (map[string]schema.FieldDef, error) {
	var defs map[string]schema.FieldDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, errors.Wrap(err, "parse field definitions JSON")
	}
	return defs, nil
}

func runSchemaRegister(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[1])
	if err != nil {
		return errors.Wrapf(err, "read field definitions file %s", args[1])
	}
	defs, err := readFieldDefs(raw)
	if err != nil {
		return err
	}

	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	registered, err := dispatcher.RegisterSchema(cmd.Context(), action.RegisterSchemaRequest{
		EntityType: args[0],
		Fields:     defs,
		Owner:      schemaOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(registered)
}

func runSchemaUpdate(cmd *cobra.Command, args []string) error {
	defs, err := readFieldDefs([]byte(args[1]))
	if err != nil {
		return err
	}

	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	updated, err := dispatcher.UpdateSchema(cmd.Context(), action.UpdateSchemaRequest{
		EntityType: args[0],
		Additions:  defs,
		Owner:      schemaOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(updated)
}

func runSchemaRecs(cmd *cobra.Command, args []string) error {
	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	recommendations, err := dispatcher.GetSchemaRecommendations(cmd.Context(), action.GetSchemaRecommendationsRequest{
		Status: enhance.Status(schemaRecStatusFlag),
		Owner:  schemaOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(recommendations)
}

func runSchemaAnalyze(cmd *cobra.Command, args []string) error {
	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := dispatcher.AnalyzeSchemaCandidates(cmd.Context(), action.AnalyzeSchemaCandidatesRequest{
		Owner: schemaOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(result.Recommendations)
}

func runSchemaApply(cmd *cobra.Command, args []string) error {
	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := dispatcher.ApplySchemaRecommendation(cmd.Context(), action.ApplySchemaRecommendationRequest{
		RecommendationID: args[0],
		Owner:            schemaOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(applied)
}
