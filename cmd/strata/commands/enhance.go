package commands

import (
	"database/sql"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/config"
	"github.com/stratahq/strata/enhance"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/logger"
	"github.com/stratahq/strata/schema"
)

// EnhanceCmd groups auto-enhancement operations.
var EnhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Run the auto-enhancement cycle",
	Long: `Auto-enhancement watches fields the schema does not recognize and
promotes them once they recur with a consistent type across sources.

Examples:
  strata enhance run       # one scan-and-promote cycle, then exit
  strata serve             # run the scheduler continuously`,
}

var enhanceRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one enhancement cycle and print the report",
	RunE:  runEnhanceCycle,
}

func init() {
	EnhanceCmd.AddCommand(enhanceRunCmd)
}

// newScheduler wires an enhancement scheduler over one database handle.
// Shared by the one-shot cycle and the serve daemon.
func newScheduler(database *sql.DB, cfg *config.Config) *enhance.Scheduler {
	log := logger.Logger
	fragments := ledger.NewFragmentStore(database, cfg.Enhance.SampleLimit, log.Named("fragments"))
	recommendations := enhance.NewRecommendationStore(database, log.Named("recommendations"))
	registry := schema.NewRegistry(database, log.Named("schema"))
	engine := enhance.NewEngine(database, fragments, recommendations, registry, enhance.Thresholds{
		Frequency:  cfg.Enhance.FrequencyThreshold,
		Confidence: cfg.Enhance.ConfidenceThreshold,
	}, log.Named("enhance"))

	return enhance.NewScheduler(database, engine,
		time.Duration(cfg.Enhance.TickerIntervalSeconds)*time.Second, nil, log.Named("scheduler"))
}

func runEnhanceCycle(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	report, err := newScheduler(database, cfg).RunCycle(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(report)
}
