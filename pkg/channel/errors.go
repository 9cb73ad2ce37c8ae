package channel

import (
	"code.securecomm.org/golang/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("channel: error")

	// ErrState flags a caller contract violation, e.g. encrypting before the handshake completed.
	ErrState = errorFlag("channel: invalid state")

	// ErrRejected flags an inbound packet that was refused. It never carries the reason.
	ErrRejected = errorFlag("channel: packet rejected")

	// ErrHandshake flags a Conn handshake that did not reach Ready.
	ErrHandshake = errorFlag("channel: handshake failed")

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

func newError(flag errorFlag, msg string, args ...any) error {
	return utils.NewError(1, flag, msg, args...)
}

func wrapError(cause error, flag errorFlag, msg string, args ...any) error {
	return utils.WrapError(cause, 1, flag, msg, args...)
}
