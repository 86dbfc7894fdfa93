package commands

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stratahq/strata/action"
	"github.com/stratahq/strata/config"
	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/enhance"
	"github.com/stratahq/strata/entity"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/graph"
	"github.com/stratahq/strata/ingest"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/logger"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/snapshot"
)

// openDatabase opens and migrates the database. An empty path means the
// configured one.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		dbPath = cfg.Database.Path
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}

// wire builds the full dispatcher stack over one database handle. The caller
// owns closing the handle.
func wire(database *sql.DB, cfg *config.Config) *action.Dispatcher {
	log := logger.Logger

	sources := ledger.NewSourceStore(database, log.Named("sources"))
	observations := ledger.NewObservationStore(database, log.Named("observations"))
	fragments := ledger.NewFragmentStore(database, cfg.Enhance.SampleLimit, log.Named("fragments"))
	entities := entity.NewStore(database, log.Named("entities"))
	registry := schema.NewRegistry(database, log.Named("schema"))
	recommendations := enhance.NewRecommendationStore(database, log.Named("recommendations"))

	pipeline := ingest.NewPipeline(sources, observations, fragments, entities, registry, log.Named("ingest"))
	reducer := snapshot.NewReducer(entities, observations, sources, registry, log.Named("snapshot"))
	relationships := graph.NewStore(database, entities, log.Named("graph"))
	engine := enhance.NewEngine(database, fragments, recommendations, registry, enhance.Thresholds{
		Frequency:  cfg.Enhance.FrequencyThreshold,
		Confidence: cfg.Enhance.ConfidenceThreshold,
	}, log.Named("enhance"))

	return action.NewDispatcher(pipeline, reducer, entities, observations, relationships, registry, engine, log.Named("action"))
}

// openDispatcher is the common command prologue: config, database, wiring.
func openDispatcher() (*action.Dispatcher, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}
	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return wire(database, cfg), database, nil
}

// printJSON renders a result for the terminal.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "format output")
	}
	fmt.Println(string(out))
	return nil
}
