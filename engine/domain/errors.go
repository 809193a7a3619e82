package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures. Only these surface to callers as
// hard failures; everything downstream degrades instead.
var (
	ErrEmptyQuery     = errors.New("query cannot be empty")
	ErrQueryTooLong   = errors.New("query exceeds maximum length")
	ErrMalformedInput = errors.New("query contains suspicious content")
	ErrInvalidVIN     = errors.New("invalid VIN format")
	ErrInvalidDTC     = errors.New("invalid DTC code format")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// ErrorKind maps a validation error to its stable wire identifier.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return "EmptyQuery"
	case errors.Is(err, ErrQueryTooLong):
		return "TooLong"
	case errors.Is(err, ErrMalformedInput):
		return "MalformedInput"
	case errors.Is(err, ErrInvalidVIN):
		return "InvalidVIN"
	case errors.Is(err, ErrInvalidDTC):
		return "InvalidDTC"
	default:
		return "ValidationError"
	}
}

// suggestions holds the fixed per-kind hint strings returned to callers.
var suggestions = map[string]string{
	"EmptyQuery":      "Please provide a description of the problem or a DTC code.",
	"TooLong":         "Please keep your query under 500 characters.",
	"MalformedInput":  "Please provide a valid automotive diagnostic query.",
	"InvalidVIN":      "VIN should be 17 characters long and contain only letters (excluding I, O, Q) and numbers.",
	"InvalidDTC":      "DTC code should start with P, B, C, or U followed by 4 digits (e.g., P0420).",
	"ValidationError": "Please check your input and try again.",
}

// Suggestion returns the fixed hint string for a validation error.
func Suggestion(err error) string {
	return suggestions[ErrorKind(err)]
}
