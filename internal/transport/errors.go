package transport

import (
	"code.securecomm.org/golang/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("transport: error")

	// ErrFrameSize flags a frame larger than MaxFrameSize.
	ErrFrameSize = errorFlag("transport: frame too large")

	ValidationError    = errorFlag("transport: invalid message")
	SerializationError = errorFlag("transport: serialization failed")

	// ReadLimitError & WriteLimitError are raised by LimitTransport.
	ReadLimitError  = errorFlag("transport: read limit exceeded")
	WriteLimitError = errorFlag("transport: write limit exceeded")

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

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}
