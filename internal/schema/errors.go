package schema

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a raw value that cannot be coerced to the ride schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
