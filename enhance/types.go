// Package enhance promotes recurring unrecognized fields into schema. It
// scores raw fragments for frequency, type confidence and source diversity,
// tracks promotion candidates through a recommendation state machine, and
// runs the whole scan on a background ticker.
package enhance

import "time"

// Status is the lifecycle state of a schema recommendation.
type Status string

const (
	StatusPending     Status = "pending"
	StatusEligible    Status = "eligible"
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusAutoApplied Status = "auto_applied"
	StatusRejected    Status = "rejected"
)

// transitions is the allowed state machine. auto_applied and rejected are
// terminal. eligible may fall back to pending when a re-score drops below
// threshold.
var transitions = map[Status][]Status{
	StatusPending:    {StatusEligible, StatusRejected},
	StatusEligible:   {StatusQueued, StatusPending, StatusRejected},
	StatusQueued:     {StatusProcessing, StatusRejected},
	StatusProcessing: {StatusAutoApplied, StatusRejected},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status accepts no further transitions.
func Terminal(s Status) bool {
	return s == StatusAutoApplied || s == StatusRejected
}

// Recommendation is one promotion candidate: a fragment key proposed as a
// schema field, with the inferred type and the score that justified it.
type Recommendation struct {
	ID           string    `json:"id"`
	EntityType   string    `json:"entity_type"`
	FieldKey     string    `json:"field_key"`
	InferredType string    `json:"inferred_type"`
	Confidence   float64   `json:"confidence"`
	Status       Status    `json:"status"`
	Reasoning    string    `json:"reasoning"`
	Owner        string    `json:"owner"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
