package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/roach88/fedq/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Success
	ExitFailure      = 1 // Query evaluation or scenario failure
	ExitCommandError = 2 // Bad flags, configuration or query syntax
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional cause
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

// NewExitError creates an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code: ExitSuccess for nil, the
// code of a wrapped ExitError, ExitFailure otherwise.
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

// OutputFormatter writes command results as text or as a JSON
// CLIResponse. Diagnostics go to ErrWriter so JSON on Writer stays
// parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status  string    `json:"status"` // "ok" or "error"
	Data    any       `json:"data,omitempty"`
	Error   *CLIError `json:"error,omitempty"`
	QueryID string    `json:"query_id,omitempty"` // matches query_id in the logs
}

// CLIError is the error member of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"` // config.ErrCode* or ErrCode*
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes a successful result. Text mode prints data with its
// default format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// QueryResult writes the JSON response of query id. Text output of
// queries goes through Table.
func (f *OutputFormatter) QueryResult(id string, data any) error {
	return f.encode(CLIResponse{Status: "ok", Data: data, QueryID: id})
}

// Error writes a failure. Details are printed in text mode only when
// verbose.
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

// Table writes solutions as an aligned table with a ?var header and a
// row count footer. Unbound cells are empty.
func (f *OutputFormatter) Table(vars []string, rows []ir.BindingSet) error {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	header := make([]string, len(vars))
	for i, v := range vars {
		header[i] = "?" + v
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	cells := make([]string, len(vars))
	for _, row := range rows {
		for i, v := range vars {
			cells[i] = ""
			if t, ok := row.Get(v); ok {
				cells[i] = t.String()
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(f.Writer, "(%d rows)\n", len(rows))
	return nil
}

// SPARQL text is full of angle brackets; keep them readable.
func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// VerboseLog writes a diagnostic line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when unset.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
