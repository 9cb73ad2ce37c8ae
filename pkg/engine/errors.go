package engine

import (
	"code.securecomm.org/golang/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("engine: error")

	// ErrAuthentication flags a ciphertext whose GCM tag does not verify.
	ErrAuthentication = errorFlag("engine: authentication failed")

	// ErrKeyAgreement flags a malformed peer public key or one on an incompatible curve.
	ErrKeyAgreement = errorFlag("engine: key agreement failed")

	// ErrPlatform flags key store & random source failures.
	// The keystore cause, usually keystore.ErrUnavailable, stays reachable with errors.Is.
	ErrPlatform = errorFlag("engine: platform failure")

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
