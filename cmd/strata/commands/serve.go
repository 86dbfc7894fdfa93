package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/config"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/logger"
)

// ServeCmd runs the enhancement scheduler as a daemon.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enhancement scheduler as a daemon",
	Long: `Run the background enhancement scheduler until interrupted. Each cycle
scans the fragment ledger and promotes eligible fields into schema.

When --config points at a TOML file, threshold and interval changes are
picked up live without a restart.

Examples:
  strata serve
  strata serve --config ~/.config/strata/strata.toml`,
	RunE: runServe,
}

var serveConfigFlag string

func init() {
	ServeCmd.Flags().StringVar(&serveConfigFlag, "config", "", "Config file to watch for live reload")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	log := logger.Logger.Named("serve")

	scheduler := newScheduler(database, cfg)
	scheduler.Start()
	defer func() {
		// the deferred Stop covers the replaced scheduler after reloads
		scheduler.Stop()
	}()

	if serveConfigFlag != "" {
		watcher, err := config.NewWatcher(serveConfigFlag, log.Named("config-watcher"))
		if err != nil {
			return err
		}
		watcher.OnReload(func(next *config.Config) error {
			// enhancement settings only take effect through a fresh scheduler
			log.Infow("Restarting scheduler with reloaded settings",
				"frequency_threshold", next.Enhance.FrequencyThreshold,
				"confidence_threshold", next.Enhance.ConfidenceThreshold,
				"interval_seconds", next.Enhance.TickerIntervalSeconds,
			)
			scheduler.Stop()
			scheduler = newScheduler(database, next)
			scheduler.Start()
			return nil
		})
		watcher.Start()
		defer watcher.Stop()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Infow("strata serving",
		"database", cfg.Database.Path,
		"interval_seconds", cfg.Enhance.TickerIntervalSeconds,
	)
	<-stop
	log.Infow("Shutting down")
	return nil
}
