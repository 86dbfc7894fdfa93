package enhance

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
)

// Engine scores the raw fragment ledger and promotes eligible fields into
// schema through the recommendation state machine.
type Engine struct {
	db              *sql.DB
	fragments       *ledger.FragmentStore
	recommendations *RecommendationStore
	registry        *schema.Registry
	thresholds      Thresholds
	logger          *zap.SugaredLogger
}

// NewEngine wires an enhancement engine.
func NewEngine(conn *sql.DB, fragments *ledger.FragmentStore, recommendations *RecommendationStore, registry *schema.Registry, thresholds Thresholds, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if thresholds.Frequency <= 0 {
		thresholds.Frequency = DefaultThresholds().Frequency
	}
	if thresholds.Confidence <= 0 {
		thresholds.Confidence = DefaultThresholds().Confidence
	}
	return &Engine{
		db:              conn,
		fragments:       fragments,
		recommendations: recommendations,
		registry:        registry,
		thresholds:      thresholds,
		logger:          logger,
	}
}

// Recommendations exposes the backing store for read paths.
func (e *Engine) Recommendations() *RecommendationStore {
	return e.recommendations
}

// Analyze re-scores every fragment for an owner and refreshes its
// recommendation: pending candidates that now clear the gates move to
// eligible, eligible ones that no longer clear them fall back to pending.
// Terminal recommendations are never touched. Returns the refreshed
// recommendations in fragment order.
func (e *Engine) Analyze(ctx context.Context, owner string) ([]Recommendation, error) {
	if owner == "" {
		return nil, errors.Wrap(errors.ErrAuthRequired, "analysis requires an owner")
	}

	fragments, err := e.fragments.List(ctx, "", owner)
	if err != nil {
		return nil, err
	}

	var out []Recommendation
	for _, frag := range fragments {
		score := Evaluate(frag)
		reasoning := score.Reasoning(e.thresholds)

		rec, err := e.recommendations.Upsert(ctx, frag.EntityType, frag.FragmentKey,
			score.InferredType, score.Confidence, reasoning, owner)
		if err != nil {
			return nil, err
		}

		switch {
		case rec.Status == StatusPending && score.Eligible(e.thresholds):
			if err := e.recommendations.Transition(ctx, rec.ID, StatusPending, StatusEligible, "", owner); err != nil && !errors.Is(err, errors.ErrConflict) {
				return nil, err
			}
			rec.Status = StatusEligible
		case rec.Status == StatusEligible && !score.Eligible(e.thresholds):
			if err := e.recommendations.Transition(ctx, rec.ID, StatusEligible, StatusPending, "", owner); err != nil && !errors.Is(err, errors.ErrConflict) {
				return nil, err
			}
			rec.Status = StatusPending
		}

		out = append(out, *rec)
	}
	return out, nil
}

// Apply promotes one eligible recommendation: the field definition is added
// to the active schema and the fragment rows are deleted, in a single
// transaction. Failure marks the recommendation rejected with the error as
// reasoning; the promotion itself is rolled back.
func (e *Engine) Apply(ctx context.Context, recID, owner string) (*schema.Schema, error) {
	if owner == "" {
		return nil, errors.Wrap(errors.ErrAuthRequired, "apply requires an owner")
	}

	rec, err := e.recommendations.Get(ctx, recID, owner)
	if err != nil {
		return nil, err
	}

	if rec.Status == StatusEligible {
		if err := e.recommendations.Transition(ctx, rec.ID, StatusEligible, StatusQueued, "", owner); err != nil {
			return nil, err
		}
		rec.Status = StatusQueued
	}
	if rec.Status != StatusQueued {
		return nil, errors.Wrapf(errors.ErrValidation,
			"recommendation %s is %s, not eligible for promotion", rec.ID, rec.Status)
	}
	if err := e.recommendations.Transition(ctx, rec.ID, StatusQueued, StatusProcessing, "", owner); err != nil {
		return nil, err
	}

	applied, err := e.promote(ctx, rec, owner)
	if err != nil {
		reason := "promotion failed: " + err.Error()
		if rejectErr := e.recommendations.Transition(ctx, rec.ID, StatusProcessing, StatusRejected, reason, owner); rejectErr != nil {
			e.logger.Errorw("Failed to mark recommendation rejected",
				"recommendation_id", rec.ID, "error", rejectErr)
		}
		return nil, err
	}

	e.logger.Infow("Promoted field into schema",
		"entity_type", rec.EntityType,
		"field_key", rec.FieldKey,
		"inferred_type", rec.InferredType,
		"schema_version", applied.Version,
	)
	return applied, nil
}

func (e *Engine) promote(ctx context.Context, rec *Recommendation, owner string) (*schema.Schema, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin promotion tx")
	}
	defer tx.Rollback()

	applied, err := e.registry.UpdateIncrementalTx(ctx, tx, rec.EntityType,
		map[string]schema.FieldDef{rec.FieldKey: {Type: rec.InferredType}}, owner)
	if err != nil {
		return nil, err
	}
	if err := e.fragments.DeleteTx(ctx, tx, rec.EntityType, rec.FieldKey, owner); err != nil {
		return nil, err
	}
	if err := e.recommendations.TransitionTx(ctx, tx, rec.ID, StatusProcessing, StatusAutoApplied, "", owner); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit promotion tx")
	}
	return applied, nil
}
