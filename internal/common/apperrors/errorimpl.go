package apperrors

import (
	"errors"
)

type appError struct {
	msg        string
	base       error
	wrapped    []error
	statusCode int
}

func (e *appError) Error() string {
	return e.msg
}

func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns the wrapped errors in the order they were attached.
func (e *appError) UnwrapAll() []error {
	return e.wrapped
}

func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statusCode: e.statusCode,
	}
}

func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, e.wrapped...),
		statusCode: e.statusCode,
	}
}

func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, errs...),
		statusCode: e.statusCode,
	}
}

func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:        e.msg,
		base:       e,
		wrapped:    append([]error{e}, errs...),
		statusCode: e.statusCode,
	}
}

func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statusCode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statusCode
}

// Is matches target against the base chain and every wrapped error.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrapped {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// New creates a root error.
func New(msg string) Error {
	return &appError{msg: msg}
}

// As finds the first wrapped error that matches target.
func (e *appError) As(target any) bool {
	for _, err := range e.wrapped {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}
