package boltdb

import (
	"code.securecomm.org/golang/internal/utils"
	"code.securecomm.org/golang/pkg/keystore"
)

func newError(msg string, args ...any) error {
	return utils.NewError(1, keystore.Error, msg, args...)
}

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, keystore.Error, msg, args...)
}

// unavailable flags cause as a platform failure.
func unavailable(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, keystore.ErrUnavailable, msg, args...)
}

func newUnavailable(msg string, args ...any) error {
	return utils.NewError(1, keystore.ErrUnavailable, msg, args...)
}

func keyTypeError(alias string) error {
	return utils.NewError(1, keystore.ErrKeyType, "alias %s holds another key type", alias)
}
