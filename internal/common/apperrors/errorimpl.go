package apperrors

import (
	"errors"
	"strings"
)

// appError is the one concrete Error. Every derived error keeps a pointer
// to the error it came from, so errors.Is matches any ancestor in the
// chain, and inherits the disposition and expansion flag at the point of
// derivation.
type appError struct {
	msg           string
	base          error
	wrappedErrors []error
	disposition   Disposition
	expandError   bool
}

// New creates a root sentinel with the given message and the default
// Retry disposition.
func New(msg string) Error {
	return &appError{msg: msg}
}

func (e *appError) Error() string {
	return e.msg
}

// ErrorAll appends the attached causes to the message when expansion is
// on. With expansion off it is the same as Error().
func (e *appError) ErrorAll() string {
	if !e.expandError {
		return e.Error()
	}
	var b strings.Builder
	b.WriteString(e.Error())
	for _, err := range e.wrappedErrors {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns the attached causes in the order they were added.
func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

// New derives a fresh error with this one as its base. The message starts
// over; disposition and expansion carry forward.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:         msg,
		base:        e,
		disposition: e.disposition,
		expandError: e.expandError,
	}
}

// Msg derives an error with a new message that wraps the original and
// everything the original had attached.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
		disposition:   e.disposition,
		expandError:   e.expandError,
	}
}

// MsgErr derives an error with a new message, wrapping the original plus
// the given causes.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, errs...),
		disposition:   e.disposition,
		expandError:   e.expandError,
	}
}

// Err derives an error that keeps the message and attaches the given
// causes. The receiver is the base of the derived error, so it is not
// repeated in the attached list.
func (e *appError) Err(errs ...error) Error {
	wrapped := make([]error, 0, len(e.wrappedErrors)+len(errs))
	wrapped = append(wrapped, e.wrappedErrors...)
	wrapped = append(wrapped, errs...)
	return &appError{
		msg:           e.msg,
		base:          e,
		wrappedErrors: wrapped,
		disposition:   e.disposition,
		expandError:   e.expandError,
	}
}

// SetExpandError returns a copy with the expansion flag set. Sentinels
// turn it on when their causes matter in rejection records.
func (e *appError) SetExpandError(flag bool) Error {
	cp := *e
	cp.expandError = flag
	return &cp
}

// SetDisposition returns a copy with the retry classification set.
func (e *appError) SetDisposition(d Disposition) Error {
	cp := *e
	cp.disposition = d
	return &cp
}

func (e *appError) Disposition() Disposition {
	return e.disposition
}

// Is matches the base chain and every attached cause, so a raised error
// matches both its sentinel ancestry and the causes it carries.
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
