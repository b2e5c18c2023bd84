package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a scenario failed or the engine errored
	ExitCommandError = 2 // bad arguments, config, journal or manifests
)

// ExitError tags a command error with the code the process exits with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// exitf formats like fmt.Errorf, %w included, and tags the result with code.
func exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// GetExitCode returns the code of the first ExitError in err's chain.
// Untagged errors exit with ExitFailure.
func GetExitCode(err error) int {
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

// CLIError is the error half of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results to Out, either as CLIResponse
// envelopes or as plain text. Diag receives diagnostics and logs; stdout
// carries nothing but results.
type OutputFormatter struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success reports data. Text mode prints it only when non-nil, since most
// commands print their own lines with Textf.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.respond(CLIResponse{Status: "ok", Data: data})
	}
	if data != nil {
		fmt.Fprintln(f.Out, data)
	}
	return nil
}

// Error reports a coded failure. Text mode shows details with --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.respond(CLIResponse{Status: "error", Error: &CLIError{Code: code, Message: message, Details: details}})
	}
	fmt.Fprintf(f.Out, "Error [%s]: %s\n", code, message)
	if details != nil && f.Verbose {
		fmt.Fprintf(f.Out, "Details: %v\n", details)
	}
	return nil
}

// Fail is Error for commands that still return a result alongside it.
// It writes nothing in text mode.
func (f *OutputFormatter) Fail(data any, code, message string) error {
	if !f.JSON() {
		return nil
	}
	return f.respond(CLIResponse{Status: "error", Data: data, Error: &CLIError{Code: code, Message: message}})
}

func (f *OutputFormatter) Textf(format string, args ...any) {
	if !f.JSON() {
		fmt.Fprintf(f.Out, format+"\n", args...)
	}
}

// Debugf writes a progress line to Diag under --verbose, in either format.
func (f *OutputFormatter) Debugf(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diag() io.Writer {
	if f.Diag == nil {
		return f.Out
	}
	return f.Diag
}

func (f *OutputFormatter) respond(resp CLIResponse) error {
	enc := json.NewEncoder(f.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
