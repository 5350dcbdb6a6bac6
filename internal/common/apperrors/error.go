// Package apperrors provides chainable application errors that carry an HTTP
// status code. Package-level base errors are declared once and specialised with
// New, Msg or Err at the call site, keeping errors.Is working across the chain.
package apperrors

// Error is an application error. All methods return copies so that package
// level errors can be specialised without being mutated.
type Error interface {
	error
	Unwrap() error

	New(msg string) Error                  // child error with a new message
	Msg(msg string) Error                  // child error with a new message that also wraps the receiver
	MsgErr(msg string, err ...error) Error // like Msg, additionally wrapping errs
	Err(err ...error) Error                // same message, wrapping errs
	SetStatusCode(int) Error
	StatusCode() int
	UnwrapAll() []error
}
