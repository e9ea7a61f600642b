package importer

import (
	"errors"
	"fmt"
)

// Fatal pre-row failures. Each aborts the run before any row is processed;
// row-scoped failures are collected in the report instead.
var (
	ErrFormat               = errors.New("file cannot be parsed as tabular text")
	ErrLimitExceeded        = errors.New("import limit exceeded")
	ErrMissingRequiredField = errors.New("required field is not mapped")
	ErrInvalidScope         = errors.New("invalid event scope")
)

// FormatError reports unusable file content.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid file format: %s", e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// LimitExceededError names which limit was hit first.
type LimitExceededError struct {
	Limit string // "bytes" or "rows"
	Max   int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("file exceeds the maximum of %d %s", e.Max, e.Limit)
}

func (e *LimitExceededError) Is(target error) bool { return target == ErrLimitExceeded }

// MissingRequiredFieldError names the unmapped (or ambiguously mapped)
// required target.
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("required field %q must be mapped to exactly one column", e.Field)
}

func (e *MissingRequiredFieldError) Is(target error) bool { return target == ErrMissingRequiredField }

// ErrConstraint marks a per-row persistence failure (unique violation,
// sold-out ticket type, transient store error). Collected, never fatal.
var ErrConstraint = errors.New("constraint violation")
