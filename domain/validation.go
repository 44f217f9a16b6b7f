package domain

import (
	"errors"
	"fmt"
)

// ValidationKind classifies what is wrong with a caller-supplied field.
type ValidationKind string

const (
	KindMissingRequired ValidationKind = "missing_required"
	KindOutOfRange      ValidationKind = "out_of_range"
	KindDuplicate       ValidationKind = "duplicate"
	KindNotFound        ValidationKind = "not_found"
	KindMalformedInput  ValidationKind = "malformed_input"
)

// ValidationError reports a rejected payload with field-level detail.
// Services return it before any persistence mutation happens.
type ValidationError struct {
	Kind  ValidationKind
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s on field %q", e.Kind, e.Field)
}

func NewValidationError(kind ValidationKind, field string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field}
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
