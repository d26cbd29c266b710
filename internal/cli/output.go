package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/bagoessprasetyo/property-management-sub000/internal/availability"
	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
	"github.com/bagoessprasetyo/property-management-sub000/internal/engine"
	"github.com/bagoessprasetyo/property-management-sub000/internal/fixture"
	"github.com/bagoessprasetyo/property-management-sub000/internal/schedule"
	"github.com/bagoessprasetyo/property-management-sub000/internal/store"
)

// Exit statuses.
const (
	ExitSuccess = 0
	// ExitFailure: the command ran and the operation failed (move rolled
	// back, fixture records rejected, scenarios failed).
	ExitFailure = 1
	// ExitCommandError: the command could not run (flags, config, database,
	// window or range).
	ExitCommandError = 2
)

// ErrorCode classifies a failure in error responses. Move and engine
// failures keep the code their package assigned.
type ErrorCode string

const (
	CodeMoveRejected   ErrorCode = ErrorCode(schedule.ErrCodeMoveRejected)
	CodeMoveInFlight   ErrorCode = ErrorCode(schedule.ErrCodeMoveInFlight)
	CodeUnknownStay    ErrorCode = ErrorCode(schedule.ErrCodeUnknownStay)
	CodeInvalidMove    ErrorCode = ErrorCode(schedule.ErrCodeInvalidMove)
	CodeFetchFailed    ErrorCode = ErrorCode(engine.ErrCodeFetchFailed)
	CodeRefreshFailed  ErrorCode = ErrorCode(engine.ErrCodeRefreshFailed)
	CodeInvalidQuery   ErrorCode = ErrorCode(engine.ErrCodeInvalidQuery)
	CodeConflict       ErrorCode = "CONFLICT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeInvalidFixture ErrorCode = "INVALID_FIXTURE"
	CodeCommand        ErrorCode = "COMMAND_ERROR"
	CodeFailed         ErrorCode = "FAILED"
)

// ExitError carries the exit status of a failed command. A reported error
// has already been written as an error response.
type ExitError struct {
	Code     int
	Message  string
	Err      error
	reported bool
}

func (e *ExitError) Error() string {
	switch {
	case e.Message == "":
		return e.Err.Error()
	case e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit status.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the status carried by err, ExitFailure when it
// carries none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope of every command's output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a response.
type CLIError struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// newCLIError classifies err. The message is the cause without the
// command's own prefix.
func newCLIError(err error) *CLIError {
	e := &CLIError{Code: errorCode(err), Message: err.Error(), Details: map[string]string{}}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err != nil {
		e.Message = exitErr.Err.Error()
	}

	var me *schedule.MoveError
	if errors.As(err, &me) {
		e.Details["stay"] = me.StayID
		if me.MoveID != "" {
			e.Details["move"] = me.MoveID
		}
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		e.Details["op"] = re.Op
		if re.View != "" {
			e.Details["view"] = re.View
		}
	}
	if len(e.Details) == 0 {
		e.Details = nil
	}
	return e
}

func errorCode(err error) ErrorCode {
	var me *schedule.MoveError
	var re *engine.RuntimeError
	switch {
	case errors.As(err, &me):
		return ErrorCode(me.Code)
	case errors.As(err, &re):
		return ErrorCode(re.Code)
	case errors.Is(err, store.ErrConflict):
		return CodeConflict
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, fixture.ErrInvalid):
		return CodeInvalidFixture
	case errors.Is(err, calendar.ErrInvalidWindow), errors.Is(err, availability.ErrInvalidRange):
		return CodeInvalidQuery
	case GetExitCode(err) == ExitCommandError:
		return CodeCommand
	}
	return CodeFailed
}

// OutputFormatter writes command results as text or as a JSON CLIResponse.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool // text errors include their details
}

// texter is implemented by results with their own text rendering.
type texter interface {
	Text() string
}

// Success writes a result.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if t, ok := data.(texter); ok {
		_, err := io.WriteString(f.Writer, t.Text())
		return err
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Fail writes err as an error response and returns it as a reported
// *ExitError, so Report does not write it a second time.
func (f *OutputFormatter) Fail(err error) error {
	if werr := f.writeError(newCLIError(err)); werr != nil {
		return werr
	}
	return &ExitError{Code: GetExitCode(err), Err: err, reported: true}
}

func (f *OutputFormatter) writeError(e *CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: e})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message); err != nil {
		return err
	}
	if !f.Verbose {
		return nil
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(f.Writer, "  %s: %s\n", k, e.Details[k]); err != nil {
			return err
		}
	}
	return nil
}

// Report writes err, returned by root's Execute, as an error response
// unless a command already did, and returns the exit status. JSON goes to
// stdout like every other response; text goes to stderr.
func Report(root *cobra.Command, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.reported {
		return exitErr.Code
	}

	format, _ := root.PersistentFlags().GetString("format")
	verbose, _ := root.PersistentFlags().GetBool("verbose")
	f := &OutputFormatter{Format: format, Writer: root.ErrOrStderr(), Verbose: verbose}
	if format == "json" {
		f.Writer = root.OutOrStdout()
	}
	_ = f.writeError(newCLIError(err))
	return GetExitCode(err)
}
