// Package engine provides the cryptographic primitives of the secure channel:
// identity key pair custody, P-256 ECDH, HKDF-SHA256 session key derivation,
// AES-256-GCM encryption and ECDSA signatures over SHA-256.
package engine

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"

	"code.securecomm.org/golang/internal/observability"
	"code.securecomm.org/golang/pkg/algos"
	"code.securecomm.org/golang/pkg/keystore"
)

const (
	// DefaultIdentityAlias is the KeyCustody alias of the identity key pair.
	DefaultIdentityAlias = "securecomm_ec_keypair"

	// IVSize is the byte length of the random AES-GCM nonce.
	IVSize = 12

	// TagSize is the byte length of the AES-GCM authentication tag.
	TagSize = 16
)

// KeyPair is the identity key pair. Private is a handle on the key held by the KeyCustody;
// PublicBytes is the X.509 SubjectPublicKeyInfo encoding of Public.
type KeyPair struct {
	Private     keystore.ECKey
	Public      *ecdsa.PublicKey
	PublicBytes []byte
}

// Engine performs the cryptographic operations of the secure channel.
// It is safe for concurrent use if its KeyCustody is.
type Engine struct {
	keys  keystore.KeyCustody
	alias string
	curve algos.Curve
	hash  crypto.Hash
	info  []byte
	obs   *observability.Observability
}

// Option configures an Engine.
type Option func(*Engine) error

// WithIdentityAlias sets the KeyCustody alias of the identity key pair.
func WithIdentityAlias(alias string) Option {
	return func(e *Engine) error {
		if "" == alias {
			return newError(Error, "empty identity alias")
		}
		e.alias = alias
		return nil
	}
}

// WithInfo sets the HKDF info used by Engine.DeriveSessionKey.
func WithInfo(info string) Option {
	return func(e *Engine) error {
		e.info = []byte(info)
		return nil
	}
}

// WithCurve sets the identity key curve, it must be registered in algos with an elliptic.Curve.
func WithCurve(name string) Option {
	return func(e *Engine) error {
		curve, err := algos.GetCurve(name)
		if nil != err {
			return wrapError(err, Error, "invalid curve")
		}
		if err = keystore.CheckCurve(curve); nil != err {
			return wrapError(err, Error, "invalid curve")
		}
		e.curve = curve
		return nil
	}
}

// WithHash sets the hash used for signatures. Session keys are always derived with HKDF-SHA256.
func WithHash(name string) Option {
	return func(e *Engine) error {
		hash, err := algos.GetHash(name)
		if nil != err {
			return wrapError(err, Error, "invalid hash")
		}
		e.hash = hash
		return nil
	}
}

// WithObservability sets the Engine Logger & Metrics.
func WithObservability(obs *observability.Observability) Option {
	return func(e *Engine) error {
		e.obs = obs
		return nil
	}
}

// New returns an Engine that keeps its identity key pair in keys.
// The defaults are the P256 curve, SHA256 and DefaultInfo.
func New(keys keystore.KeyCustody, opts ...Option) (*Engine, error) {
	if nil == keys {
		return nil, newError(Error, "nil KeyCustody")
	}
	e := &Engine{keys: keys, alias: DefaultIdentityAlias, info: []byte(DefaultInfo)}
	defaults := []Option{WithCurve(algos.CURVE_P256), WithHash(algos.HASH_SHA256)}
	for _, opt := range append(defaults, opts...) {
		if err := opt(e); nil != err {
			return nil, err
		}
	}

	return e, nil
}

// IdentityKeyPair returns the identity key pair, generating it in the KeyCustody on first call.
// Successive calls return identical PublicBytes.
// It errors with ErrPlatform if the KeyCustody fails.
func (self *Engine) IdentityKeyPair() (KeyPair, error) {
	var kp KeyPair
	priv, err := self.keys.ECKey(self.alias, self.curve)
	if nil != err {
		self.obs.Log().Warn("identity key unavailable", "alias", self.alias, "error", err)
		return kp, wrapError(err, ErrPlatform, "failed loading identity key")
	}
	pub, ok := priv.Public().(*ecdsa.PublicKey)
	if !ok {
		return kp, newError(ErrPlatform, "identity key is not an ECDSA key")
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if nil != err {
		return kp, wrapError(err, ErrPlatform, "failed encoding identity public key")
	}
	kp.Private = priv
	kp.Public = pub
	kp.PublicBytes = der

	return kp, nil
}

// ParsePublicKey decodes an X.509 SubjectPublicKeyInfo peer public key.
// It errors with ErrKeyAgreement if der is malformed or not on the Engine curve.
func (self *Engine) ParsePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if nil != err {
		return nil, wrapError(err, ErrKeyAgreement, "invalid public key encoding")
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, newError(ErrKeyAgreement, "public key is not an EC key")
	}
	if pub.Curve != self.curve.Elliptic() {
		return nil, newError(ErrKeyAgreement, "public key is not on curve %s", self.curve.Name())
	}

	return pub, nil
}

// Agree performs ECDH between local and remote and returns the shared secret.
// It errors with ErrKeyAgreement if remote is invalid or on another curve.
func (self *Engine) Agree(local keystore.ECKey, remote *ecdsa.PublicKey) ([]byte, error) {
	if nil == local {
		return nil, newError(Error, "nil local key")
	}
	if nil == remote || remote.Curve != self.curve.Elliptic() {
		return nil, newError(ErrKeyAgreement, "remote key is not on curve %s", self.curve.Name())
	}
	peer, err := remote.ECDH()
	if nil != err {
		return nil, wrapError(err, ErrKeyAgreement, "invalid remote key")
	}
	secret, err := local.ECDH(peer)
	if nil != err {
		return nil, wrapError(err, ErrKeyAgreement, "failed ECDH")
	}

	return secret, nil
}

// DeriveSessionKey derives the SessionKey of secret with HKDF-SHA256, an all zero salt and the
// Engine info.
func (self *Engine) DeriveSessionKey(secret []byte) (*SessionKey, error) {
	return DeriveSessionKey(secret, nil, self.info)
}

// Encrypt encrypts plaintext with key under a fresh random IV.
// The returned ciphertext carries the GCM tag.
func (self *Engine) Encrypt(plaintext []byte, key *SessionKey) (ciphertext []byte, iv []byte, err error) {
	if nil == key || nil == key.aead {
		return nil, nil, newError(Error, "invalid session key")
	}
	iv = make([]byte, IVSize)
	_, err = rand.Read(iv)
	if nil != err {
		return nil, nil, wrapError(err, ErrPlatform, "failed generating iv")
	}

	return key.aead.Seal(nil, iv, plaintext, nil), iv, nil
}

// Decrypt decrypts ciphertext with key and iv.
// It errors with ErrAuthentication if the GCM tag does not verify or iv has not IVSize bytes.
func (self *Engine) Decrypt(ciphertext []byte, key *SessionKey, iv []byte) ([]byte, error) {
	if nil == key || nil == key.aead {
		return nil, newError(Error, "invalid session key")
	}
	if len(iv) != IVSize {
		return nil, newError(ErrAuthentication, "invalid iv size %d", len(iv))
	}
	plaintext, err := key.aead.Open(nil, iv, ciphertext, nil)
	if nil != err {
		return nil, wrapError(err, ErrAuthentication, "failed opening ciphertext")
	}
	if nil == plaintext {
		plaintext = []byte{}
	}

	return plaintext, nil
}

// Sign returns the ASN.1 ECDSA signature of message by the identity key.
func (self *Engine) Sign(message []byte) ([]byte, error) {
	kp, err := self.IdentityKeyPair()
	if nil != err {
		return nil, err
	}
	return self.SignWith(kp.Private, message)
}

// SignWith returns the ASN.1 ECDSA signature of message by key.
func (self *Engine) SignWith(key keystore.ECKey, message []byte) ([]byte, error) {
	if nil == key {
		return nil, newError(Error, "nil signing key")
	}
	sig, err := key.Sign(rand.Reader, self.digest(message), self.hash)

	return sig, wrapError(err, ErrPlatform, "failed signing message") // nil if err is nil
}

// Verify reports whether signature is a valid signature of message by the identity key.
// It errors only if the identity key can not be loaded.
func (self *Engine) Verify(message []byte, signature []byte) (bool, error) {
	kp, err := self.IdentityKeyPair()
	if nil != err {
		return false, err
	}
	return self.VerifyWith(kp.Public, message, signature), nil
}

// VerifyWith reports whether signature is a valid signature of message by pub.
func (self *Engine) VerifyWith(pub *ecdsa.PublicKey, message []byte, signature []byte) bool {
	if nil == pub {
		return false
	}
	return ecdsa.VerifyASN1(pub, self.digest(message), signature)
}

// Curve returns the identity key curve.
func (self *Engine) Curve() algos.Curve {
	return self.curve
}

func (self *Engine) digest(message []byte) []byte {
	h := self.hash.New()
	h.Write(message)
	return h.Sum(nil)
}
