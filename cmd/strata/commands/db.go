package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/config"
	"github.com/stratahq/strata/errors"
)

// DbCmd groups database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database operations",
	Long: `Manage the strata database.

Examples:
  strata db migrate         # Apply pending migrations
  strata db stats           # Show ledger statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as part of opening
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Println("Migrations applied")
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	tables := []struct {
		label string
		query string
	}{
		{"Sources", "SELECT COUNT(*) FROM sources"},
		{"Source records", "SELECT COUNT(*) FROM source_records"},
		{"Entities", "SELECT COUNT(*) FROM entities"},
		{"Merged entities", "SELECT COUNT(*) FROM entities WHERE merged_to IS NOT NULL"},
		{"Observations", "SELECT COUNT(*) FROM observations"},
		{"Raw fragments", "SELECT COUNT(*) FROM raw_fragments"},
		{"Recommendations", "SELECT COUNT(*) FROM schema_recommendations"},
		{"Schema versions", "SELECT COUNT(*) FROM schemas"},
		{"Relationships", "SELECT COUNT(*) FROM relationships"},
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)

	for _, t := range tables {
		var count int
		if err := database.QueryRow(t.query).Scan(&count); err != nil {
			return errors.Wrapf(err, "query %s", t.label)
		}
		fmt.Printf("%-16s %d\n", t.label+":", count)
	}
	return nil
}
