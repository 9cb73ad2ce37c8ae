// Package keystore defines KeyCustody, the boundary with the platform key store that holds
// non exportable EC & AES keys, and provides an in memory implementation of it.
//
// Implementations never hand out private or secret key material: EC keys are used through
// the ECKey interface and AES keys through a cipher.AEAD bound to the stored key.
package keystore

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"io"

	"code.securecomm.org/golang/pkg/algos"
)

const (
	// SecretKeySize is the byte length of the AES-256 keys managed by a KeyCustody.
	SecretKeySize = 32
)

// KeyCustody is implemented by hardware backed key stores (or their emulation).
type KeyCustody interface {
	// ECKey returns the EC key pair stored under alias, generating it on curve when missing.
	// It errors with ErrKeyType if alias holds a secret key or an EC key on another curve.
	ECKey(alias string, curve algos.Curve) (ECKey, error)

	// SecretKey returns an AES-256-GCM AEAD bound to the secret key stored under alias,
	// generating the key when missing.
	SecretKey(alias string) (cipher.AEAD, error)

	// Contains reports whether a key is stored under alias.
	Contains(alias string) (bool, error)

	// DeleteKey destroys the key stored under alias. Deleting a missing alias is not an error.
	DeleteKey(alias string) error
}

// ECKey is a handle on a stored EC private key.
// Public returns an *ecdsa.PublicKey, Sign produces ASN.1 ECDSA signatures of a digest.
type ECKey interface {
	crypto.Signer

	// ECDH performs Diffie-Hellman between the stored private key and remote.
	ECDH(remote *ecdh.PublicKey) ([]byte, error)
}

// softECKey is an ECKey whose private key lives in process memory.
type softECKey struct {
	priv *ecdsa.PrivateKey
}

// NewSoftECKey wraps priv in an ECKey. It is meant for KeyCustody implementations.
func NewSoftECKey(priv *ecdsa.PrivateKey) ECKey {
	return softECKey{priv: priv}
}

func (self softECKey) Public() crypto.PublicKey {
	return &self.priv.PublicKey
}

func (self softECKey) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return self.priv.Sign(rand, digest, opts)
}

func (self softECKey) ECDH(remote *ecdh.PublicKey) ([]byte, error) {
	if nil == remote {
		return nil, newError(Error, "nil remote PublicKey")
	}
	local, err := self.priv.ECDH()
	if nil != err {
		return nil, wrapError(err, "failed converting private key")
	}
	return local.ECDH(remote)
}

// String hides the private key from fmt verbs.
func (self softECKey) String() string {
	return "ECKey(" + self.priv.Curve.Params().Name + ")"
}

// NewAESGCM returns the AES-GCM AEAD for a SecretKeySize key.
func NewAESGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != SecretKeySize {
		return nil, newError(Error, "invalid secret key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, "failed aes.NewCipher")
	}
	aead, err := cipher.NewGCM(block)
	if nil != err {
		return nil, wrapError(err, "failed cipher.NewGCM")
	}
	return aead, nil
}

// CheckCurve errors if curve can not hold ECDSA identity keys.
func CheckCurve(curve algos.Curve) error {
	if nil == curve.Elliptic() {
		return newError(ErrKeyType, "curve %s does not support ECDSA", curve.Name())
	}
	return nil
}
