package apperrors

import (
	"errors"
	"strings"
)

// Exit codes reported by commands. 64 follows sysexits(3) EX_USAGE.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitConflict     = 2
	ExitProvisioning = 3
	ExitMigration    = 4
	ExitConnectivity = 5
	ExitNotFound     = 6
	ExitInvalidInput = 64
)

// appError implements the apperrors.Error interface.
type appError struct {
	msg           string  // primary error message
	base          error   // base error for errors.Is/As compatibility
	wrappedErrors []error // additional wrapped errors
	exitCode      int     // process exit code
	expandError   bool    // controls error message expansion
	prefix        string  // optional message prefix
	suffix        string  // optional message suffix
}

// Error returns the formatted error message without mutating state.
// The message includes prefix and suffix if set.
func (e *appError) Error() string {
	msg := e.msg
	if e.prefix != "" {
		msg = e.prefix + ": " + msg
	}
	if e.suffix != "" {
		msg = msg + ": " + e.suffix
	}
	return msg
}

// ErrorAll returns the full message including wrapped errors if expandError is true.
// Otherwise, returns the same as Error().
func (e *appError) ErrorAll() string {
	if !e.expandError {
		return e.Error()
	}
	var b strings.Builder
	b.WriteString(e.Error())
	for _, err := range e.wrappedErrors {
		if err == e.base {
			continue
		}
		b.WriteString("; ")
		if ae, ok := err.(Error); ok {
			b.WriteString(ae.ErrorAll())
		} else {
			b.WriteString(err.Error())
		}
	}
	return b.String()
}

// Unwrap returns the base error for compatibility with errors.Is / errors.As.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns all wrapped errors in the order they were added.
func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

// Msg creates a new error with a new message and wraps the original error.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
		exitCode:      e.exitCode,
		expandError:   e.expandError,
	}
}

// New creates a fresh error using the current error as a template.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:         msg,
		base:        e,
		exitCode:    e.exitCode,
		expandError: e.expandError,
	}
}

// MsgErr creates a new error with a message and wraps additional errors.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	all := append([]error{e}, errs...)
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: all,
		exitCode:      e.exitCode,
		expandError:   e.expandError,
	}
}

// Err creates a new error by attaching additional errors to the current error.
// The new error maintains the original message and exit code.
func (e *appError) Err(errs ...error) Error {
	all := append([]error{e}, errs...)
	return &appError{
		msg:           e.msg,
		base:          e,
		wrappedErrors: all,
		exitCode:      e.exitCode,
		expandError:   e.expandError,
	}
}

// Prefix returns a shallow copy with an updated prefix.
func (e *appError) Prefix(p string) Error {
	cp := *e
	cp.prefix = p
	return &cp
}

// Suffix returns a shallow copy with an updated suffix.
func (e *appError) Suffix(s string) Error {
	cp := *e
	cp.suffix = s
	return &cp
}

// SetExpandError returns a shallow copy with an updated expansion flag.
func (e *appError) SetExpandError(flag bool) Error {
	cp := *e
	cp.expandError = flag
	return &cp
}

// SetExitCode returns a shallow copy with an updated exit code.
func (e *appError) SetExitCode(code int) Error {
	cp := *e
	cp.exitCode = code
	return &cp
}

// ExitCode returns the current exit code.
func (e *appError) ExitCode() int {
	return e.exitCode
}

// New creates a root-level appError with the given message.
// Root errors exit with ExitFailure unless SetExitCode says otherwise.
func New(msg string) Error {
	return &appError{
		msg:      msg,
		exitCode: ExitFailure,
	}
}

// Is checks if the error is equal to the target error by checking
// both the base error and all wrapped errors.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ExitCode maps any error to a process exit code. nil is ExitOK, an Error reports its own
// code and anything else is ExitFailure.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ae Error
	if errors.As(err, &ae) && ae.ExitCode() != ExitOK {
		return ae.ExitCode()
	}
	return ExitFailure
}

// Describe returns the expanded message of an Error, or Error() for anything else.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var ae Error
	if errors.As(err, &ae) {
		return ae.SetExpandError(true).ErrorAll()
	}
	return err.Error()
}
