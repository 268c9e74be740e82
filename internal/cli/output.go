package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/structprune/internal/split"
)

// Exit codes for CLI commands. Codes 2 and above map one-to-one onto
// split.Kind values.
const (
	ExitSuccess              = 0
	ExitFailure              = 1 // unexpected failure
	ExitBadConfiguration     = 2
	ExitMissingAncestor      = 3
	ExitStoreUnavailable     = 4
	ExitInvalidPlanReference = 5
	ExitPartialBatch         = 6
	ExitLineageCycle         = 7
)

var kindExitCodes = map[split.Kind]int{
	split.KindBadConfiguration:     ExitBadConfiguration,
	split.KindMissingAncestor:      ExitMissingAncestor,
	split.KindStoreUnavailable:     ExitStoreUnavailable,
	split.KindInvalidPlanReference: ExitInvalidPlanReference,
	split.KindPartialBatch:         ExitPartialBatch,
	split.KindLineageCycle:         ExitLineageCycle,
}

// ExitCodeFor returns the exit code for err's split.Kind, or ExitFailure.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if code, ok := kindExitCodes[split.KindOf(err)]; ok {
		return code
	}
	return ExitFailure
}

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
	RunID     string
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"` // split.Kind, or UNEXPECTED
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format. Text output
// relies on data implementing fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
			RunID:  f.RunID,
		})
	}

	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format. Text errors go to
// ErrWriter so stdout stays clean for piping.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
			RunID: f.RunID,
		})
	}

	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
