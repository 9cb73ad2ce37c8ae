package engine

import (
	"crypto/cipher"
	"crypto/subtle"

	"golang.org/x/crypto/hkdf"

	"code.securecomm.org/golang/pkg/algos"
	"code.securecomm.org/golang/pkg/keystore"
)

const (
	// SessionKeySize is the byte length of an AES-256 session key.
	SessionKeySize = 32

	// SaltSize is the byte length of the default all zero HKDF salt.
	SaltSize = 32

	// DefaultInfo is the HKDF info binding session keys to this application.
	DefaultInfo = "SecureComm-SessionKey/v1"
)

// SessionKey is an AES-256-GCM key derived from a shared secret.
// It lives in process memory only, its String method never discloses the key.
type SessionKey struct {
	key  []byte
	aead cipher.AEAD
}

// DeriveSessionKey derives a SessionKey from secret using HKDF-SHA256.
// A nil salt is replaced by SaltSize zero bytes and a nil info by DefaultInfo.
// It is a pure function of its inputs.
func DeriveSessionKey(secret []byte, salt []byte, info []byte) (*SessionKey, error) {
	if len(secret) == 0 {
		return nil, newError(Error, "empty shared secret")
	}
	if nil == salt {
		salt = make([]byte, SaltSize)
	}
	if nil == info {
		info = []byte(DefaultInfo)
	}
	hash, err := algos.GetHash(algos.HASH_SHA256)
	if nil != err {
		return nil, wrapError(err, Error, "failed loading HKDF hash")
	}

	key := make([]byte, SessionKeySize)
	_, err = hkdf.New(hash.New, secret, salt, info).Read(key)
	if nil != err {
		return nil, wrapError(err, Error, "failed HKDF expansion")
	}
	aead, err := keystore.NewAESGCM(key)
	if nil != err {
		clear(key)
		return nil, wrapError(err, Error, "failed AES-GCM initialization")
	}

	return &SessionKey{key: key, aead: aead}, nil
}

// Equal reports in constant time whether self and other hold the same key.
func (self *SessionKey) Equal(other *SessionKey) bool {
	if nil == self || nil == other || nil == self.key || nil == other.key {
		return false
	}
	return 1 == subtle.ConstantTimeCompare(self.key, other.key)
}

// Destroy zeroes the key. A destroyed SessionKey can not encrypt nor decrypt.
func (self *SessionKey) Destroy() {
	if nil == self {
		return
	}
	clear(self.key)
	self.key = nil
	self.aead = nil
}

// String hides the key from fmt verbs & logs.
func (self *SessionKey) String() string {
	return "SessionKey(redacted)"
}
