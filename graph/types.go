// Package graph maintains the typed relationship graph between entities:
// directed edges from a closed type enum, cycle prevention for hierarchical
// types, bounded n-hop traversal, and relationship snapshots folded from
// relationship observations with the same algorithm entity snapshots use.
package graph

import (
	"time"

	"github.com/stratahq/strata/snapshot"
	"github.com/stratahq/strata/vals"
)

// RelationshipType is the closed enum of edge types.
type RelationshipType string

const (
	PartOf      RelationshipType = "PART_OF"
	Corrects    RelationshipType = "CORRECTS"
	RefersTo    RelationshipType = "REFERS_TO"
	Settles     RelationshipType = "SETTLES"
	DuplicateOf RelationshipType = "DUPLICATE_OF"
	DependsOn   RelationshipType = "DEPENDS_ON"
	Supersedes  RelationshipType = "SUPERSEDES"
)

// ValidType reports whether t is in the closed enum.
func ValidType(t RelationshipType) bool {
	switch t {
	case PartOf, Corrects, RefersTo, Settles, DuplicateOf, DependsOn, Supersedes:
		return true
	}
	return false
}

// CycleSensitive reports whether edges of this type must never form a
// cycle. Hierarchy and dependency types are cycle-sensitive; annotation
// types (CORRECTS, REFERS_TO, SETTLES, DUPLICATE_OF) are not.
func CycleSensitive(t RelationshipType) bool {
	switch t {
	case PartOf, DependsOn, Supersedes:
		return true
	}
	return false
}

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID             string                `json:"id"`
	Type           RelationshipType      `json:"type"`
	SourceEntityID string                `json:"source_entity_id"`
	TargetEntityID string                `json:"target_entity_id"`
	Metadata       map[string]vals.Value `json:"metadata,omitempty"`
	Owner          string                `json:"owner"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Direction selects which edges of an entity a listing covers.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionBoth     Direction = "both"
)

// Filter narrows a relationship listing.
type Filter struct {
	Direction Direction        // default: both
	Type      RelationshipType // empty: all types
	MaxHops   int              // <= 1: direct edges only
}

// Edge is one relationship found during traversal, annotated with its hop
// distance from the starting entity (1 = direct edge).
type Edge struct {
	Relationship Relationship `json:"relationship"`
	Hop          int          `json:"hop"`
}

// RelationshipSnapshot is the folded state of a relationship's observation
// ledger.
type RelationshipSnapshot struct {
	RelationshipID   string                         `json:"relationship_id"`
	Fields           map[string]vals.Value          `json:"fields"`
	Provenance       map[string]snapshot.Provenance `json:"provenance"`
	ObservationCount int                            `json:"observation_count"`
	ComputedAt       time.Time                      `json:"computed_at"`
}
