// Package apperrors provides chained application errors that carry a process exit code.
// Errors are built as a tree of sentinels: an error created with New or Msg from a parent
// matches that parent through errors.Is, so callers can test for a broad kind
// (for example a database error) or a narrow one (a missing tenant) with the same value.
package apperrors

// Error defines the interface for application errors. It extends the standard error
// interface with additional methods for error wrapping, message manipulation, and
// exit code management. All methods return Error to support method chaining.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // creates a new error using current as template
	Msg(msg string) Error                  // creates a new error with message and wraps original
	MsgErr(msg string, err ...error) Error // creates error with message and wraps extra errors
	Err(err ...error) Error                // attaches additional errors to current error
	SetExpandError(bool) Error             // controls whether ErrorAll expands wrapped errors
	SetExitCode(int) Error                 // sets the process exit code for the error
	ExitCode() int                         // returns the current exit code
	Prefix(string) Error                   // adds a prefix to the error message
	Suffix(string) Error                   // adds a suffix to the error message
	ErrorAll() string                      // returns full message including wrapped errors
	UnwrapAll() []error                    // returns all wrapped errors
}
