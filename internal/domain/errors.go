package domain

import "errors"

var (
	ErrModelNotFound    = errors.New("model not found")
	ErrSessionNotFound  = errors.New("training session not found")
	ErrTrainingCanceled = errors.New("training canceled")
	ErrModelNotLoaded   = errors.New("model not loaded")
	ErrInvalidSession   = errors.New("invalid training session transition")
)

// ValidationError reports a request that does not match the accepted schema.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return "invalid input: " + e.Field + " " + e.Reason
}
