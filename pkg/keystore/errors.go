package keystore

import (
	"code.securecomm.org/golang/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("keystore: error")

	// ErrUnavailable flags platform failures: the key store can not be reached,
	// is locked or failed generating a key. Callers are expected to disable secure features.
	ErrUnavailable = errorFlag("keystore: unavailable")

	// ErrKeyType flags an alias that references a key of another kind.
	ErrKeyType = errorFlag("keystore: alias holds another key type")

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
