package schedule

import (
	"errors"
	"strings"
)

var (
	ErrEventNotFound = errors.New("schedule: event not found")
	ErrReadOnlyField = errors.New("schedule: field is derived and cannot be edited")
	ErrUnknownField  = errors.New("schedule: unknown field")
)

// ValidationError reports client input that was rejected before touching
// the collection. It is meant to be shown to the user as-is.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "schedule: " + e.Reason
	}
	return "schedule: " + e.Reason + ": " + strings.Join(e.Fields, ", ")
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
