package errors

// Kind identifies which class of failure an error belongs to. Kinds are
// stable strings that cross the action surface unchanged; callers match on
// them instead of on message text.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindEntityNotFound      Kind = "ENTITY_NOT_FOUND"
	KindResourceNotFound    Kind = "RESOURCE_NOT_FOUND"
	KindAlreadyMerged       Kind = "ALREADY_MERGED"
	KindCycleDetected       Kind = "CYCLE_DETECTED"
	KindInvalidRelationship Kind = "INVALID_RELATIONSHIP_TYPE"
	KindForeignKey          Kind = "FOREIGN_KEY_VIOLATION"
	KindAuthRequired        Kind = "AUTH_REQUIRED"
	KindForbidden           Kind = "FORBIDDEN"
	KindConflict            Kind = "CONFLICT"
	KindInternal            Kind = "INTERNAL"
)

// Sentinel errors for the strata taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the kind.
var (
	// ErrValidation indicates a malformed or semantically invalid request.
	// Validation failures reject immediately with no side effects.
	ErrValidation = New("validation error")

	// ErrEntityNotFound indicates the referenced entity does not exist
	// (or exists under a different owner, which is indistinguishable).
	ErrEntityNotFound = New("entity not found")

	// ErrResourceNotFound indicates a non-entity resource (source, schema,
	// recommendation, relationship) does not exist.
	ErrResourceNotFound = New("resource not found")

	// ErrAlreadyMerged indicates a merge was attempted on an entity that
	// has already been merged away.
	ErrAlreadyMerged = New("entity already merged")

	// ErrCycleDetected indicates a relationship would close a cycle for a
	// cycle-sensitive relationship type.
	ErrCycleDetected = New("relationship would create a cycle")

	// ErrInvalidRelationship indicates a relationship type outside the
	// closed enum.
	ErrInvalidRelationship = New("invalid relationship type")

	// ErrForeignKey indicates a reference to a row that does not exist.
	ErrForeignKey = New("foreign key violation")

	// ErrAuthRequired indicates the request carried no owner identity.
	ErrAuthRequired = New("authentication required")

	// ErrForbidden indicates the owner may not perform this operation.
	ErrForbidden = New("forbidden")

	// ErrConflict indicates an idempotency key was replayed with a
	// different payload, or a uniqueness constraint was violated.
	ErrConflict = New("conflict")
)

// KindOf maps an error to its taxonomy kind. Unrecognized errors are
// reported as KindInternal so no raw driver or stack detail leaks through
// the action surface.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrValidation):
		return KindValidation
	case Is(err, ErrEntityNotFound):
		return KindEntityNotFound
	case Is(err, ErrResourceNotFound):
		return KindResourceNotFound
	case Is(err, ErrAlreadyMerged):
		return KindAlreadyMerged
	case Is(err, ErrCycleDetected):
		return KindCycleDetected
	case Is(err, ErrInvalidRelationship):
		return KindInvalidRelationship
	case Is(err, ErrForeignKey):
		return KindForeignKey
	case Is(err, ErrAuthRequired):
		return KindAuthRequired
	case Is(err, ErrForbidden):
		return KindForbidden
	case Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsNotFound reports whether err is either flavor of not-found.
func IsNotFound(err error) bool {
	return err != nil && (Is(err, ErrEntityNotFound) || Is(err, ErrResourceNotFound))
}
