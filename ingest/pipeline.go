// Package ingest is the write path: raw content in, sources, observations
// and fragments out. Known fields become observations, unknown fields feed
// the fragment ledger, and stored records can be replayed after the schema
// learns new fields.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/stratahq/strata/entity"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/vals"
)

// Candidate is one extracted entity proposal delivered with a store request.
type Candidate struct {
	EntityType string                `json:"entity_type"`
	Fields     map[string]vals.Value `json:"fields"`
}

// Request carries one raw input and its extracted candidates.
type Request struct {
	Content        []byte
	MimeType       string
	IdempotencyKey string
	Candidates     []Candidate
	Owner          string
}

// ItemResult reports what happened to one candidate.
type ItemResult struct {
	EntityID      string `json:"entity_id"`
	EntityType    string `json:"entity_type"`
	EntityCreated bool   `json:"entity_created"`
	ObservationID string `json:"observation_id,omitempty"`
	KnownFields   int    `json:"known_fields"`
	Fragments     int    `json:"fragments"`
}

// Result reports the outcome of one ingest.
type Result struct {
	SourceID      string       `json:"source_id"`
	SourceCreated bool         `json:"source_created"`
	Replayed      bool         `json:"replayed"`
	Items         []ItemResult `json:"items,omitempty"`
}

// Pipeline wires the stores of the write path together.
type Pipeline struct {
	sources      *ledger.SourceStore
	observations *ledger.ObservationStore
	fragments    *ledger.FragmentStore
	entities     *entity.Store
	registry     *schema.Registry
	logger       *zap.SugaredLogger
}

// NewPipeline creates an ingest pipeline.
func NewPipeline(sources *ledger.SourceStore, observations *ledger.ObservationStore, fragments *ledger.FragmentStore, entities *entity.Store, registry *schema.Registry, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{
		sources:      sources,
		observations: observations,
		fragments:    fragments,
		entities:     entities,
		registry:     registry,
		logger:       logger,
	}
}

// Ingest stores the raw content idempotently, captures the candidate records,
// and routes each candidate's fields: schema-known fields become an
// observation at priority 0, unknown fields become fragment sightings.
// Replaying an already-stored idempotency key with identical content returns
// the existing source and writes nothing new.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Owner == "" {
		return nil, errors.Wrap(errors.ErrAuthRequired, "ingest requires an owner")
	}
	if len(req.Candidates) == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "ingest requires at least one candidate")
	}
	for i, cand := range req.Candidates {
		if cand.EntityType == "" {
			return nil, errors.Wrapf(errors.ErrValidation, "candidate %d has no entity type", i)
		}
		if len(cand.Fields) == 0 {
			return nil, errors.Wrapf(errors.ErrValidation, "candidate %d has no fields", i)
		}
	}

	src, created, err := p.sources.CreateIdempotent(ctx, req.Content, req.MimeType, req.IdempotencyKey, req.Owner)
	if err != nil {
		return nil, err
	}
	if !created {
		p.logger.Debugw("Ingest replayed", "source_id", src.ID, "idempotency_key", req.IdempotencyKey)
		return &Result{SourceID: src.ID, Replayed: true}, nil
	}

	records := make([]ledger.SourceRecord, len(req.Candidates))
	for i, cand := range req.Candidates {
		records[i] = ledger.SourceRecord{
			SourceID:   src.ID,
			Seq:        i,
			EntityType: cand.EntityType,
			Fields:     cand.Fields,
		}
	}
	if err := p.sources.SaveRecords(ctx, src.ID, records); err != nil {
		return nil, err
	}

	result := &Result{SourceID: src.ID, SourceCreated: true}
	for _, rec := range records {
		item, err := p.processRecord(ctx, rec, req.Owner)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, *item)
	}

	p.logger.Infow("Ingested source",
		"source_id", src.ID,
		"candidates", len(req.Candidates),
	)
	return result, nil
}

func (p *Pipeline) processRecord(ctx context.Context, rec ledger.SourceRecord, owner string) (*ItemResult, error) {
	sch, err := p.registry.LoadActive(ctx, rec.EntityType, owner)
	if err != nil {
		return nil, err
	}
	known, unknown := schema.Validate(rec.Fields, sch)

	ent, created, err := p.entities.Resolve(ctx, rec.EntityType, rec.Fields, owner)
	if err != nil {
		return nil, err
	}

	item := &ItemResult{
		EntityID:      ent.ID,
		EntityType:    rec.EntityType,
		EntityCreated: created,
		KnownFields:   len(known),
	}

	if len(known) > 0 {
		obs := &ledger.Observation{
			EntityID:      ent.ID,
			SchemaVersion: schemaVersion(sch),
			Fields:        known,
			Priority:      0,
			SourceID:      rec.SourceID,
			Owner:         owner,
		}
		if err := p.observations.Append(ctx, obs); err != nil {
			return nil, err
		}
		item.ObservationID = obs.ID
	}

	// Sighting order is part of the fragment ledger's observable state
	// (sample caps, first/last seen), so iterate deterministically.
	for _, key := range vals.SortedKeys(unknown) {
		value := unknown[key]
		if value.IsNull() {
			continue
		}
		if err := p.fragments.RecordSighting(ctx, rec.EntityType, key, value,
			rec.SourceID, rec.RecordRef(), owner); err != nil {
			return nil, err
		}
		item.Fragments++
	}

	return item, nil
}

// Correct appends a correction observation. Corrections carry the maximum
// priority the system writes, so they win every highest_priority_wins fold,
// and they bypass schema validation: the user is the authority here.
func (p *Pipeline) Correct(ctx context.Context, entityID string, fields map[string]vals.Value, owner string) (*ledger.Observation, error) {
	if owner == "" {
		return nil, errors.Wrap(errors.ErrAuthRequired, "correction requires an owner")
	}
	if len(fields) == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "correction carries no fields")
	}

	ent, err := p.entities.GetActive(ctx, entityID, owner)
	if err != nil {
		return nil, err
	}

	obs := &ledger.Observation{
		EntityID: ent.ID,
		Fields:   fields,
		Priority: ledger.CorrectionPriority,
		Owner:    owner,
	}
	if err := p.observations.Append(ctx, obs); err != nil {
		return nil, err
	}

	p.logger.Infow("Appended correction",
		"entity_id", ent.ID,
		"observation_id", obs.ID,
		"field_count", len(fields),
	)
	return obs, nil
}

// Reinterpret replays a source's captured records through the current
// active schema. Fields the schema has learned since the original ingest
// land in observations; still-unknown fields are re-sighted as fragments.
func (p *Pipeline) Reinterpret(ctx context.Context, sourceID, owner string) (*Result, error) {
	if owner == "" {
		return nil, errors.Wrap(errors.ErrAuthRequired, "reinterpretation requires an owner")
	}

	records, err := p.sources.ListRecords(ctx, sourceID, owner)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(errors.ErrResourceNotFound,
			"source %s has no captured records", sourceID)
	}

	result := &Result{SourceID: sourceID, Replayed: true}
	for _, rec := range records {
		item, err := p.processRecord(ctx, rec, owner)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, *item)
	}

	p.logger.Infow("Reinterpreted source",
		"source_id", sourceID,
		"records", len(records),
	)
	return result, nil
}

func schemaVersion(sch *schema.Schema) int {
	if sch == nil {
		return 0
	}
	return sch.Version
}
