package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario, assertion or replay failure
	ExitCommandError = 2 // Command error (bad flags, missing files, unreadable database)
)

// Error codes carried in JSON error responses.
const (
	ErrCodeNotFound        = "E_NOT_FOUND"
	ErrCodeInvalidScenario = "E_INVALID_SCENARIO"
	ErrCodeScenarioFailed  = "E_SCENARIO_FAILED"
	ErrCodeReplayDiverged  = "E_REPLAY_DIVERGED"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool // already printed by the command
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

// Reported reports whether err was already printed by the command that
// returned it.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// GetExitCode extracts the exit code from an error. Errors that are not
// an ExitError map to ExitFailure; nil maps to ExitSuccess.
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

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a JSON response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// printer writes a command's result either as a JSON envelope or as text.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) *printer {
	return &printer{format: opts.Format, w: w}
}

func (p *printer) json() bool { return p.format == "json" }

// ok prints data. In text mode the text callback renders it.
func (p *printer) ok(data any, text func(w io.Writer)) error {
	if p.json() {
		return p.encode(CLIResponse{Status: "ok", Data: data})
	}
	text(p.w)
	return nil
}

// fail prints data with an error and returns an ExitError carrying
// exitCode. In text mode the text callback runs first, if given.
func (p *printer) fail(exitCode int, code, message string, data any, text func(w io.Writer)) error {
	if p.json() {
		if err := p.encode(CLIResponse{
			Status: "error",
			Data:   data,
			Error:  &CLIError{Code: code, Message: message},
		}); err != nil {
			return err
		}
	} else {
		if text != nil {
			text(p.w)
		}
		fmt.Fprintf(p.w, "✗ %s\n", message)
	}
	return &ExitError{Code: exitCode, Message: message, reported: true}
}

func (p *printer) encode(resp CLIResponse) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
