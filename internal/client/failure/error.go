package failure

import (
	"errors"
	"fmt"
)

// Error is a failure that already knows its category. Phase is the upload
// phase the failure happened in, when known.
type Error struct {
	Category Category
	Phase    string
	Err      error
}

func New(c Category, err error) *Error {
	return &Error{Category: c, Err: err}
}

func Newf(c Category, format string, args ...any) *Error {
	return &Error{Category: c, Err: fmt.Errorf(format, args...)}
}

// InPhase returns a copy of e tagged with the given phase.
func (e *Error) InPhase(phase string) *Error {
	cp := *e
	cp.Phase = phase
	return &cp
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category) + " error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns err as *Error, classifying it when it is a plain error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Category: Classify(err).Category, Err: err}
}

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}
