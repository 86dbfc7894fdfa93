package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/cmd/strata/commands"
	"github.com/stratahq/strata/logger"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "strata - personal truth layer",
	Long: `strata - a personal truth layer over everything you capture.

Raw input is stored immutably, split into entity observations, and folded
into deterministic snapshots. Unknown fields are watched and promoted into
schema once they recur. Every field answers "where did this come from".

Available commands:
  ingest  - Store raw content and its extracted candidates
  get     - Compute an entity snapshot (current or historical)
  obs     - List an entity's raw observation ledger
  trace   - Trace one field back to its observation and source
  correct - Append a user correction
  rel     - Manage the relationship graph
  merge   - Merge a duplicate entity into its canonical one
  schema  - Inspect and evolve schemas, manage recommendations
  enhance - Run the auto-enhancement cycle
  serve   - Run the enhancement scheduler as a daemon
  db      - Database operations

Examples:
  strata ingest note.txt --key note-1 --candidates note.json --owner me
  strata get EN3f2a... --owner me
  strata trace EN3f2a... status --owner me
  strata schema recs --owner me`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs")

	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.GetCmd)
	rootCmd.AddCommand(commands.ObsCmd)
	rootCmd.AddCommand(commands.TraceCmd)
	rootCmd.AddCommand(commands.CorrectCmd)
	rootCmd.AddCommand(commands.RelCmd)
	rootCmd.AddCommand(commands.MergeCmd)
	rootCmd.AddCommand(commands.SchemaCmd)
	rootCmd.AddCommand(commands.EnhanceCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
