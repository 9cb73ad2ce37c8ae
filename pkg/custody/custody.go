// Package custody implements the Key Custody Store: small secrets persisted at rest,
// encrypted with AES-256-GCM under per name keys held by a keystore.KeyCustody.
//
// A record is stored as the Base64 (standard alphabet, no line wrap) encoding of
// iv(12 bytes) || ciphertext || tag(16 bytes).
//
// Remove and Clear only delete the persisted records. The per name AES keys stay in
// the KeyCustody, hence removing a record is not a secure delete of its key material;
// use DestroyKey for that.
package custody

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"

	"code.securecomm.org/golang/internal/observability"
	"code.securecomm.org/golang/internal/utils"
	"code.securecomm.org/golang/pkg/keystore"
)

const (
	// KeyAliasPrefix prefixes the KeyCustody alias of a record key.
	KeyAliasPrefix = "secure_key_"

	// IVSize is the byte length of the record IV prefix.
	IVSize = 12

	// TagSize is the byte length of the GCM authentication tag.
	TagSize = 16
)

var recordEncoding = base64.StdEncoding

// Store is the Key Custody Store. It is safe for concurrent use:
// writes to the same name are serialized, distinct names proceed independently.
type Store struct {
	keys  keystore.KeyCustody
	prefs Prefs
	locks utils.KeyedMutex
	obs   *observability.Observability
}

// Option configures a Store.
type Option func(*Store)

// WithObservability sets the Store Logger & Metrics.
func WithObservability(obs *observability.Observability) Option {
	return func(s *Store) {
		s.obs = obs
	}
}

// New returns a Store encrypting records with keys from ks and persisting them in prefs.
// It errors if ks or prefs is nil.
func New(ks keystore.KeyCustody, prefs Prefs, opts ...Option) (*Store, error) {
	if nil == ks {
		return nil, newError("nil KeyCustody")
	}
	if nil == prefs {
		return nil, newError("nil Prefs")
	}
	s := &Store{keys: ks, prefs: prefs}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store encrypts plaintext under the key scoped to name and persists it, overwriting any previous record.
// It errors with ErrInvalidName if name is empty, and if the key can not be obtained
// (keystore.ErrUnavailable) or the record can not be written.
func (self *Store) Store(name string, plaintext []byte) error {
	if "" == name {
		err := invalidNameError("empty record name")
		self.record("store", err)
		return err
	}
	unlock := self.locks.Lock(name)
	defer unlock()

	err := self.store(name, plaintext)
	self.record("store", err)

	return err
}

func (self *Store) store(name string, plaintext []byte) error {
	aead, err := self.keys.SecretKey(KeyAliasPrefix + name)
	if nil != err {
		return wrapError(err, "failed loading record key")
	}

	blob := make([]byte, IVSize, IVSize+len(plaintext)+aead.Overhead())
	_, err = rand.Read(blob)
	if nil != err {
		return wrapError(err, "failed generating iv")
	}
	blob = aead.Seal(blob, blob[:IVSize], plaintext, nil)

	err = self.prefs.Put(name, recordEncoding.EncodeToString(blob))

	return wrapError(err, "failed persisting record") // nil if err is nil
}

// Retrieve returns the plaintext stored under name.
//
// The bool is false when no record exists, or when the record is corrupt or fails
// authentication; no partial plaintext is ever returned. The error is reserved to
// platform failures (key store or namespace unreachable).
func (self *Store) Retrieve(name string) ([]byte, bool, error) {
	plaintext, err := self.retrieve(name)
	switch {
	case nil == err:
		self.record("retrieve", nil)
		return plaintext, nil != plaintext, nil
	case isCorrupt(err):
		self.obs.Log().Debug("custody record rejected", "name", name, "error", err)
		self.obs.Stats().CustodyOp("retrieve", "corrupt")
		return nil, false, nil
	default:
		self.record("retrieve", err)
		return nil, false, err
	}
}

func (self *Store) retrieve(name string) ([]byte, error) {
	encoded, found, err := self.prefs.Get(name)
	if nil != err {
		return nil, wrapError(err, "failed reading record")
	}
	if !found {
		return nil, nil
	}

	blob, err := recordEncoding.DecodeString(encoded)
	if nil != err {
		return nil, corruptError(err, "invalid record encoding")
	}
	if len(blob) < IVSize+TagSize {
		return nil, corruptError(nil, "record shorter than iv and tag")
	}

	aead, err := self.keys.SecretKey(KeyAliasPrefix + name)
	if nil != err {
		return nil, wrapError(err, "failed loading record key")
	}
	plaintext, err := aead.Open(nil, blob[:IVSize], blob[IVSize:], nil)
	if nil != err {
		return nil, corruptError(err, "record failed authentication")
	}
	if nil == plaintext {
		plaintext = []byte{}
	}

	return plaintext, nil
}

// Remove deletes the record stored under name. The record key is kept.
func (self *Store) Remove(name string) error {
	unlock := self.locks.Lock(name)
	defer unlock()

	err := wrapError(self.prefs.Delete(name), "failed removing record")
	self.record("remove", err)

	return err
}

// Clear deletes all the records. The record keys are kept.
func (self *Store) Clear() error {
	err := wrapError(self.prefs.Clear(), "failed clearing records")
	self.record("clear", err)

	return err
}

// DestroyKey deletes the record stored under name and destroys its key in the KeyCustody.
func (self *Store) DestroyKey(name string) error {
	unlock := self.locks.Lock(name)
	defer unlock()

	err := self.prefs.Delete(name)
	if nil == err {
		err = self.keys.DeleteKey(KeyAliasPrefix + name)
	}
	err = wrapError(err, "failed destroying record key")
	self.record("destroy", err)

	return err
}

func (self *Store) record(op string, err error) {
	if nil == err {
		self.obs.Stats().CustodyOp(op, "ok")
		return
	}
	self.obs.Stats().CustodyOp(op, "error")
	self.obs.Log().Warn("custody operation failed", slog.String("op", op), slog.Any("error", err))
}
