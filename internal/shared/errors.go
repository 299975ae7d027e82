package shared

import (
	"errors"
	"fmt"
)

// Error kinds shared across modules. Package-level sentinels wrap these so
// the HTTP layer can map any domain failure to a status without knowing the
// individual modules.
var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates an operation would drive a tracked
	// item's quantity negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStateConflict is raised by atomic guards: double cancellation,
	// double session open, mutation of closed records.
	ErrStateConflict = errors.New("state conflict")
)

// ValidationError is a recoverable, field-level input failure. It is
// surfaced to the caller and never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError for a field.
func Validation(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
