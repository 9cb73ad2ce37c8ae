package keystore

import (
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"sync"

	"code.securecomm.org/golang/pkg/algos"
)

// MemKeyStore is a KeyCustody that keeps keys in memory.
// It is the test double of hardware backed key stores; keys do not survive the process.
type MemKeyStore struct {
	mut         sync.RWMutex
	ecKeys      map[string]*ecdsa.PrivateKey
	secrets     map[string][]byte
	unavailable bool
}

// NewMemKeyStore returns an empty MemKeyStore.
func NewMemKeyStore() *MemKeyStore {
	return &MemKeyStore{
		ecKeys:  make(map[string]*ecdsa.PrivateKey),
		secrets: make(map[string][]byte),
	}
}

// SetUnavailable simulates a platform failure, all subsequent calls error with ErrUnavailable.
func (self *MemKeyStore) SetUnavailable(unavailable bool) {
	self.mut.Lock()
	defer self.mut.Unlock()
	self.unavailable = unavailable
}

// ECKey implements KeyCustody.
func (self *MemKeyStore) ECKey(alias string, curve algos.Curve) (ECKey, error) {
	err := CheckCurve(curve)
	if nil != err {
		return nil, err
	}

	self.mut.RLock()
	priv, found := self.ecKeys[alias]
	unavailable := self.unavailable
	_, isSecret := self.secrets[alias]
	self.mut.RUnlock()
	if unavailable {
		return nil, newError(ErrUnavailable, "key store is unavailable")
	}
	if isSecret {
		return nil, newError(ErrKeyType, "alias %s holds a secret key", alias)
	}
	if found {
		if priv.Curve != curve.Elliptic() {
			return nil, newError(ErrKeyType, "alias %s holds a key on another curve", alias)
		}
		return NewSoftECKey(priv), nil
	}

	self.mut.Lock()
	defer self.mut.Unlock()
	priv, found = self.ecKeys[alias]
	if !found {
		priv, err = ecdsa.GenerateKey(curve.Elliptic(), rand.Reader)
		if nil != err {
			return nil, wrapError(err, "failed generating EC key")
		}
		self.ecKeys[alias] = priv
	}

	return NewSoftECKey(priv), nil
}

// SecretKey implements KeyCustody.
func (self *MemKeyStore) SecretKey(alias string) (cipher.AEAD, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if self.unavailable {
		return nil, newError(ErrUnavailable, "key store is unavailable")
	}
	if _, isEC := self.ecKeys[alias]; isEC {
		return nil, newError(ErrKeyType, "alias %s holds an EC key", alias)
	}
	key, found := self.secrets[alias]
	if !found {
		key = make([]byte, SecretKeySize)
		_, err := rand.Read(key)
		if nil != err {
			return nil, wrapError(err, "failed generating secret key")
		}
		self.secrets[alias] = key
	}

	return NewAESGCM(key)
}

// Contains implements KeyCustody.
func (self *MemKeyStore) Contains(alias string) (bool, error) {
	self.mut.RLock()
	defer self.mut.RUnlock()

	if self.unavailable {
		return false, newError(ErrUnavailable, "key store is unavailable")
	}
	_, isEC := self.ecKeys[alias]
	_, isSecret := self.secrets[alias]

	return isEC || isSecret, nil
}

// DeleteKey implements KeyCustody.
func (self *MemKeyStore) DeleteKey(alias string) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	if self.unavailable {
		return newError(ErrUnavailable, "key store is unavailable")
	}
	delete(self.ecKeys, alias)
	if key, found := self.secrets[alias]; found {
		clear(key)
		delete(self.secrets, alias)
	}

	return nil
}

var _ KeyCustody = &MemKeyStore{}
