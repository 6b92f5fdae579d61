package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A query was rejected or a scenario failed
	ExitCommandError = 2 // Command error (invalid paths, bad model, database not found, etc.)
)

// Error codes for failures outside the query pipeline. Rejected queries
// report the translator's own codes (UNTRANSLATABLE, NOT_SUPPORTED, ...).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeModel       = "E003" // Model failed to load
	ErrCodeDecode      = "E004" // Malformed query document
	ErrCodeParam       = "E005" // Bad --param value
	ErrCodeDatabase    = "E006" // Database open or execution failed
	ErrCodeWriteFailed = "E007" // File write error

	// ErrCodeInvalidTree is reported when generated SQL would be invalid
	// for the dialect.
	ErrCodeInvalidTree = "INVALID_TREE"
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
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
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
	Code    string `json:"code"`              // "E001", "NOT_SUPPORTED", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
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

// queryError converts a pipeline error to its CLI form. Translation
// errors keep their code and suggestion.
func queryError(err error) *CLIError {
	var te *sqltranslate.TranslationError
	if errors.As(err, &te) {
		e := &CLIError{Code: string(te.Code), Message: te.Message}
		if te.Suggestion != "" {
			e.Details = map[string]string{"expr": te.Expr, "suggestion": te.Suggestion}
		} else if te.Expr != "" {
			e.Details = map[string]string{"expr": te.Expr}
		}
		return e
	}
	var ve *queryir.ValidationError
	if errors.As(err, &ve) {
		return &CLIError{Code: ErrCodeInvalidTree, Message: err.Error(), Details: ve.Problems}
	}
	var le *LoadError
	if errors.As(err, &le) {
		return &CLIError{Code: le.Code, Message: le.Message}
	}
	return &CLIError{Code: ErrCodeGeneric, Message: err.Error()}
}
