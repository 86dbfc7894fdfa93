package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/action"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/graph"
	"github.com/stratahq/strata/vals"
)

// RelCmd groups relationship graph operations.
var RelCmd = &cobra.Command{
	Use:   "rel",
	Short: "Manage the relationship graph",
	Long: `Create typed edges between entities and traverse them.

Types: PART_OF, CORRECTS, REFERS_TO, SETTLES, DUPLICATE_OF, DEPENDS_ON,
SUPERSEDES. Hierarchy and dependency types reject edges that would close a
cycle.

Examples:
  strata rel add DEPENDS_ON EN3f2a... EN9c41... --owner me
  strata rel ls EN3f2a... --owner me --direction outbound --hops 3`,
}

var relAddCmd = &cobra.Command{
	Use:   "add <type> <source-entity-id> <target-entity-id>",
	Short: "Create a typed relationship between two entities",
	Args:  cobra.ExactArgs(3),
	RunE:  runRelAdd,
}

var relLsCmd = &cobra.Command{
	Use:   "ls <entity-id>",
	Short: "List relationships reachable from an entity",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelLs,
}

var (
	relOwnerFlag     string
	relMetadataFlag  string
	relDirectionFlag string
	relTypeFlag      string
	relHopsFlag      int
)

func init() {
	RelCmd.AddCommand(relAddCmd)
	RelCmd.AddCommand(relLsCmd)

	relAddCmd.Flags().StringVar(&relOwnerFlag, "owner", "", "Owner of the relationship (required)")
	relAddCmd.Flags().StringVar(&relMetadataFlag, "metadata", "", "Relationship metadata as JSON")
	relAddCmd.MarkFlagRequired("owner")

	relLsCmd.Flags().StringVar(&relOwnerFlag, "owner", "", "Owner of the entity (required)")
	relLsCmd.Flags().StringVar(&relDirectionFlag, "direction", "both", "Edge direction: inbound, outbound or both")
	relLsCmd.Flags().StringVar(&relTypeFlag, "type", "", "Only edges of this relationship type")
	relLsCmd.Flags().IntVar(&relHopsFlag, "hops", 1, "Traversal depth (1 = direct edges)")
	relLsCmd.MarkFlagRequired("owner")
}

func runRelAdd(cmd *cobra.Command, args []string) error {
	var metadata map[string]vals.Value
	if relMetadataFlag != "" {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(relMetadataFlag), &raw); err != nil {
			return errors.Wrap(err, "parse metadata JSON")
		}
		parsed, err := vals.FieldsFromAny(raw)
		if err != nil {
			return errors.Wrap(err, "invalid metadata values")
		}
		metadata = parsed
	}

	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	rel, err := dispatcher.CreateRelationship(cmd.Context(), action.CreateRelationshipRequest{
		Type:     graph.RelationshipType(args[0]),
		SourceID: args[1],
		TargetID: args[2],
		Metadata: metadata,
		Owner:    relOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(rel)
}

func runRelLs(cmd *cobra.Command, args []string) error {
	dispatcher, database, err := openDispatcher()
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := dispatcher.ListRelationships(cmd.Context(), action.ListRelationshipsRequest{
		EntityID: args[0],
		Filter: graph.Filter{
			Direction: graph.Direction(relDirectionFlag),
			Type:      graph.RelationshipType(relTypeFlag),
			MaxHops:   relHopsFlag,
		},
		Owner: relOwnerFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}
