package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Ledger rejection, failed scenario, replay divergence
	ExitCommandError = 2 // Bad flags, unreadable config, unopenable database
)

// Error codes shared by all commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfig       = "E002" // Configuration invalid
	ErrCodeOpenFailed   = "E003" // Log or state could not be opened
	ErrCodeKeyFile      = "E004" // Key file missing or invalid
	ErrCodeInvalidInput = "E005" // Bad flag value
	ErrCodeRefused      = "E006" // Host refused the transaction
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeNoRecord     = "E008" // Read found nothing

	ErrCodeReplayDiverged  = "E201" // Replay did not reproduce the log
	ErrCodeScenarioFailure = "E301" // Scenario expectations failed
)

// ledgerErrorCode maps a ledger code onto the CLI code E1xx.
func ledgerErrorCode(code int64) string {
	return fmt.Sprintf("E1%02d", code)
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set when the error was already written to the output.
	Reported bool
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

// NewExitError creates an ExitError.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err. Errors that are not
// ExitErrors exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// IsReported reports whether err was already written by a formatter.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

func reported(e *ExitError) *ExitError {
	e.Reported = true
	return e
}

// texter is implemented by results with a human-readable rendering.
type texter interface {
	Text() string
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data. In text mode data is rendered with its Text method
// when it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if t, ok := data.(texter); ok {
		_, err := fmt.Fprintln(f.Writer, t.Text())
		return err
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error. Details are shown in text mode only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		if t, ok := details.(texter); ok {
			fmt.Fprintln(f.Writer, t.Text())
		} else {
			fmt.Fprintf(f.Writer, "Details: %v\n", details)
		}
	}
	return nil
}

// Fail writes an error and returns the matching ExitError.
func (f *OutputFormatter) Fail(exit int, code, message string, err error) error {
	msg := message
	if err != nil {
		msg = fmt.Sprintf("%s: %v", message, err)
	}
	if werr := f.Error(code, msg, nil); werr != nil {
		return werr
	}
	return reported(WrapExitError(exit, message, err))
}

// Rejected reports a receipt carrying a ledger error code and returns an
// ExitFailure.
func (f *OutputFormatter) Rejected(receipt receiptView) error {
	code := ledger.Code(receipt.Code)
	msg := receipt.Outcome
	if m, ok := receipt.Result["message"].(ir.String); ok {
		msg = string(m)
	}
	if err := f.Error(ledgerErrorCode(receipt.Code), msg, receipt); err != nil {
		return err
	}
	return reported(NewExitError(ExitFailure, fmt.Sprintf("transaction rejected: %s (%d)", code, receipt.Code)))
}

// VerboseLog writes a diagnostic line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the diagnostics writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
