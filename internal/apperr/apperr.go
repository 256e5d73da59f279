// internal/apperr/apperr.go
//
// Typed failures shared by every core package.
//
// Context
// -------
// Callers must be able to tell a bad payload from a missing row from a
// forbidden operation without string matching, so each class of failure is
// its own type and is inspected with errors.As:
//
//   - ValidationError     – malformed or missing raw input, per field.
//   - NotFoundError       – unknown university, block, template, or claim.
//   - PermissionError     – hard-block delete/duplicate, unregistered field.
//   - ConfigurationError  – Field Registry inconsistency, fatal at boot.
//   - ErrDegraded         – cache or lookup backend unavailable; wrapped by
//     Degraded and swallowed at the point of use.
//
// Notes
// -----
//   - The HTTP layer maps these to 422, 404, 403, and 500 respectively.
//   - Two spaces after periods.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDegraded marks a dependency failure that callers should log and
// swallow rather than surface.
var ErrDegraded = errors.New("dependency degraded")

// FieldError is one failed input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every rejected field of one payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid builds a single-field ValidationError.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// NotFoundError names the missing entity kind and its lookup key.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// NotFound is shorthand for &NotFoundError{kind, key}.
func NotFound(kind string, key any) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: fmt.Sprint(key)}
}

// PermissionError is raised before any mutation when an operation would
// break a registry integrity rule.  Subjects lists the offending block ids
// or field names.
type PermissionError struct {
	Op       string
	Reason   string
	Subjects []string
}

func (e *PermissionError) Error() string {
	msg := e.Op + ": " + e.Reason
	if len(e.Subjects) > 0 {
		msg += " (" + strings.Join(e.Subjects, ", ") + ")"
	}
	return msg
}

// ConfigurationError collects every registry inconsistency found at
// construction time.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "field registry misconfigured: " + strings.Join(e.Problems, "; ")
}

// Degraded wraps err so that errors.Is(err, ErrDegraded) holds.
func Degraded(dependency string, err error) error {
	return fmt.Errorf("%s: %w: %w", dependency, ErrDegraded, err)
}

// IsNotFound reports whether err carries a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPermission reports whether err carries a *PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
