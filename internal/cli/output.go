package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess = 0 // Successful execution
	ExitFailure = 1 // Usage or runtime error (lock timeout, not found, bad input, I/O)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code
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
// Returns ExitSuccess for nil and ExitFailure for non-ExitError errors.
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

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E_TIMEOUT", "E_NOT_FOUND", ...
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Error codes carried in JSON responses.
const (
	ErrCodeGeneric    = "E_GENERIC"
	ErrCodeNotFound   = "E_NOT_FOUND"
	ErrCodeTimeout    = "E_TIMEOUT"
	ErrCodeNotHeld    = "E_NOT_HELD"
	ErrCodeValidation = "E_SCHEMA"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// Success outputs a successful result in the configured format. For text
// format, data is printed with fmt.Fprintln; commands with richer text
// output format it themselves and call SuccessJSON only for JSON mode.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return f.SuccessJSON(data)
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// SuccessJSON emits the standard ok envelope.
func (f *OutputFormatter) SuccessJSON(data interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResponse{Status: "ok", Data: data})
}

// Fail emits an error in the configured format and returns an ExitError
// carrying ExitFailure, so commands can `return f.Fail(...)` directly.
func (f *OutputFormatter) Fail(code, message string) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	}
	return NewExitError(ExitFailure, message)
}
