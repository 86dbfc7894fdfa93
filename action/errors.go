package action

import (
	"github.com/stratahq/strata/errors"
)

// Error is the client-facing error shape: a stable kind plus a message that
// names fields and ids, never personal field values or stack traces.
type Error struct {
	Kind    errors.Kind `json:"kind"`
	Message string      `json:"message"`
	cause   error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

// Unwrap preserves sentinel matching through errors.Is.
func (e *Error) Unwrap() error { return e.cause }

// classify converts an internal error into the client-facing shape. nil
// passes through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var actionErr *Error
	if errors.As(err, &actionErr) {
		return actionErr
	}
	return &Error{
		Kind:    errors.KindOf(err),
		Message: err.Error(),
		cause:   err,
	}
}
