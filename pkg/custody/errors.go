package custody

import (
	"code.securecomm.org/golang/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("custody: error")

	// ErrCorrupt flags a stored record that can not be decoded or authenticated.
	ErrCorrupt = errorFlag("custody: corrupt record")

	// ErrInvalidName flags a record name that can not be stored.
	ErrInvalidName = errorFlag("custody: invalid record name")

	noError = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	} else {
		return Error
	}
}

// newError returns a utils.RaisedErr{} that contains file & line of where it was called.
func newError(msg string, args ...any) error {
	return utils.NewError(1, Error, msg, args...)
}

// wrapError returns a utils.RaisedErr{} that contains file & line of where it was called.
func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}

func corruptError(cause error, msg string, args ...any) error {
	if nil == cause {
		return utils.NewError(1, ErrCorrupt, msg, args...)
	}
	return utils.WrapError(cause, 1, ErrCorrupt, msg, args...)
}

func invalidNameError(msg string, args ...any) error {
	return utils.NewError(1, ErrInvalidName, msg, args...)
}
