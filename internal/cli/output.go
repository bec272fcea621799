package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/loreledger/internal/artifact"
	"github.com/roach88/loreledger/internal/importer"
	"github.com/roach88/loreledger/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Import rejected or ledger verification failed
	ExitCommandError = 2 // Command error (invalid paths, bad flags, database unavailable)
)

// Error codes reported in JSON error responses.
const (
	ErrCodeInternal            = "E000"
	ErrCodeImportDisabled      = "E001"
	ErrCodeSchema              = "E002"
	ErrCodeContentHash         = "E003"
	ErrCodeCollision           = "E004"
	ErrCodeUnresolvedReference = "E005"
	ErrCodeDependency          = "E006"
	ErrCodeContract            = "E007"
	ErrCodeIdempotencyConflict = "E008"
	ErrCodeIntegrity           = "E009"
	ErrCodeHashChain           = "E010"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps a domain error to its response code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, importer.ErrImportDisabled):
		return ErrCodeImportDisabled
	case errors.Is(err, artifact.ErrSchema):
		return ErrCodeSchema
	case errors.Is(err, importer.ErrContentHash):
		return ErrCodeContentHash
	case errors.Is(err, importer.ErrCollision):
		return ErrCodeCollision
	case errors.Is(err, importer.ErrUnresolvedReference):
		return ErrCodeUnresolvedReference
	case errors.Is(err, importer.ErrDependency):
		return ErrCodeDependency
	case errors.Is(err, importer.ErrContract):
		return ErrCodeContract
	case errors.Is(err, store.ErrIdempotencyConflict):
		return ErrCodeIdempotencyConflict
	case errors.Is(err, store.ErrHashChainMismatch):
		return ErrCodeHashChain
	case errors.Is(err, store.ErrIntegrity):
		return ErrCodeIntegrity
	}
	return ErrCodeInternal
}

// errorDetails returns structured context for errors that carry it.
func errorDetails(err error) any {
	var refErr *importer.ReferenceError
	if errors.As(err, &refErr) {
		return refErr.Missing
	}
	var hashErr *importer.ContentHashError
	if errors.As(err, &hashErr) {
		return hashErr
	}
	var collErr *importer.CollisionError
	if errors.As(err, &collErr) {
		return collErr
	}
	var schemaErr *artifact.SchemaError
	if errors.As(err, &schemaErr) {
		return map[string]string{"path": schemaErr.Path, "field": schemaErr.Field}
	}
	var chainErr *store.HashChainMismatchError
	if errors.As(err, &chainErr) {
		return chainErr
	}
	return nil
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %+v\n", details)
	}
	return nil
}

// Fail reports a domain failure and returns it as an ExitError. JSON output
// carries the structured error on stdout; in text mode the caller's error
// printer is left to report it on stderr.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) error {
	if f.Format == "json" {
		if werr := f.Error(ErrorCode(err), fmt.Sprintf("%s: %v", message, err), errorDetails(err)); werr != nil {
			return WrapExitError(ExitCommandError, "write output", werr)
		}
	}
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
