package enhance

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/errors"
)

// CycleReport summarizes one scheduler pass over the fragment ledger.
type CycleReport struct {
	Scanned  int       `json:"scanned"`
	Promoted int       `json:"promoted"`
	Rejected int       `json:"rejected"`
	Skipped  int       `json:"skipped"`
	RanAt    time.Time `json:"ran_at"`
}

// Scheduler drives the enhancement engine on a fixed interval. Each cycle
// scans every owner with pending fragments, re-scores them, and promotes
// whatever clears the gates. Per-item failures are logged and counted, never
// fatal to the cycle.
type Scheduler struct {
	db       *sql.DB
	engine   *Engine
	interval time.Duration
	clock    Clock
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	lastCycle CycleReport
	cycles    int64
}

// NewScheduler wires a scheduler around the engine. A nil clock means the
// wall clock.
func NewScheduler(conn *sql.DB, engine *Engine, interval time.Duration, clock Clock, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clock == nil {
		clock = NewClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:       conn,
		engine:   engine,
		interval: interval,
		clock:    clock,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the background loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Infow("Enhancement scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Infow("Enhancement scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.clock.After(s.interval):
			report, err := s.RunCycle(s.ctx)
			if err != nil {
				// The handle closing under us means shutdown, not a fault.
				if db.IsDatabaseClosed(err) {
					s.logger.Debugw("Database closed, scheduler exiting")
					return
				}
				s.logger.Warnw("Enhancement cycle error", "error", err)
				continue
			}
			if report.Promoted > 0 || report.Rejected > 0 {
				s.logger.Infow("Enhancement cycle complete",
					"scanned", report.Scanned,
					"promoted", report.Promoted,
					"rejected", report.Rejected,
					"skipped", report.Skipped,
				)
			}
		}
	}
}

// RunCycle performs one full pass: analyze fragments per owner, then apply
// every recommendation that came out eligible. Exposed so the CLI and tests
// can run a cycle on demand.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{RanAt: s.clock.Now().UTC()}

	owners, err := s.fragmentOwners(ctx)
	if err != nil {
		return nil, err
	}

	for _, owner := range owners {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		recommendations, err := s.engine.Analyze(ctx, owner)
		if err != nil {
			s.logger.Warnw("Fragment analysis failed", "owner", owner, "error", err)
			continue
		}
		report.Scanned += len(recommendations)

		for _, rec := range recommendations {
			if rec.Status != StatusEligible {
				report.Skipped++
				continue
			}
			if _, err := s.engine.Apply(ctx, rec.ID, owner); err != nil {
				report.Rejected++
				s.logger.Warnw("Recommendation rejected",
					"recommendation_id", rec.ID,
					"entity_type", rec.EntityType,
					"field_key", rec.FieldKey,
					"error", err,
				)
				continue
			}
			report.Promoted++
		}
	}

	s.mu.Lock()
	s.lastCycle = *report
	s.cycles++
	s.mu.Unlock()

	return report, nil
}

// LastCycle returns the most recent cycle report and the total cycle count.
func (s *Scheduler) LastCycle() (CycleReport, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCycle, s.cycles
}

func (s *Scheduler) fragmentOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT owner FROM raw_fragments ORDER BY owner")
	if err != nil {
		return nil, errors.Wrap(err, "list fragment owners")
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, errors.Wrap(err, "scan fragment owner")
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}
