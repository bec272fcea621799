package artifact

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ErrSchema is matched by every *SchemaError.
var ErrSchema = errors.New("artifact schema violation")

// SchemaError reports a malformed artifact.
type SchemaError struct {
	Path    string // package-relative file path
	Field   string // dotted field path within the artifact, if known
	Message string
	Err     error // underlying decode error, if any
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap returns ErrSchema and the underlying error.
func (e *SchemaError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSchema, e.Err}
	}
	return []error{ErrSchema}
}

// schemaErrorf builds a SchemaError for a problem found outside CUE.
func schemaErrorf(path, field, format string, args ...any) *SchemaError {
	return &SchemaError{Path: path, Field: field, Message: fmt.Sprintf(format, args...)}
}

// formatCUEError converts a CUE validation error into a *SchemaError for
// path. prefix is prepended to the field path, e.g. "[2]" for the third
// object of an array file.
func formatCUEError(err error, path, prefix string) *SchemaError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Path: path, Field: prefix, Message: err.Error(), Err: err}
	}

	first := errs[0]
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more errors)", msg, len(errs)-1)
	}
	return &SchemaError{
		Path:    path,
		Field:   joinField(prefix, fieldPath(first.Path())),
		Message: msg,
	}
}

// fieldPath drops the definition selector CUE puts in front of the field.
func fieldPath(selectors []string) string {
	if len(selectors) > 0 && strings.HasPrefix(selectors[0], "#") {
		selectors = selectors[1:]
	}
	return strings.Join(selectors, ".")
}

func joinField(prefix, field string) string {
	switch {
	case prefix == "":
		return field
	case field == "":
		return prefix
	case strings.HasPrefix(field, "["):
		return prefix + field
	default:
		return prefix + "." + field
	}
}
