// Package boltdb provides a keystore.KeyCustody that persists keys in a single file boltdb database.
//
// It emulates a hardware key store on platforms that have none: key material is sealed with
// AES-256-GCM under a master key derived from a passphrase with argon2id, and never leaves the
// package in clear. Record keys are BLAKE2s digests of the aliases.
package boltdb

import (
	"bytes"
	"crypto"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/argon2"
	_ "golang.org/x/crypto/blake2s"

	"code.securecomm.org/golang/pkg/algos"
	"code.securecomm.org/golang/pkg/keystore"
)

const (
	connectTimeout = 5 * time.Second
	hashAlgo       = crypto.BLAKE2s_256
	saltSize       = 16
	checkPlaintext = "securecomm keystore"
)

const (
	kindEC     = uint8(1)
	kindSecret = uint8(2)
)

var (
	keyTbl   = []byte("keyTbl")
	metaTbl  = []byte("meta")
	saltKey  = []byte("salt")
	checkKey = []byte("check")
)

// Config parametrizes New.
type Config struct {
	// Path of the database file, created if missing.
	Path string

	// Passphrase protects the stored keys.
	Passphrase []byte

	// argon2id cost parameters, defaults apply when zero.
	KDFTime     uint32
	KDFMemoryKB uint32
	KDFThreads  uint8
}

// KeyStore is a keystore.KeyCustody persisting sealed keys in a boltdb file.
type KeyStore struct {
	dbpath string
	master cipher.AEAD
}

// keyRecord is the storage representation of a key.
type keyRecord struct {
	Kind  uint8  `cbor:"1,keyasint"`
	Curve string `cbor:"2,keyasint,omitempty"`
	Data  []byte `cbor:"3,keyasint"` // nonce || sealed key material
}

// New opens or creates the KeyStore database at cfg.Path.
// It errors with keystore.ErrUnavailable if the database can not be opened or if
// cfg.Passphrase does not unlock an existing database.
func New(cfg Config) (*KeyStore, error) {
	if len(cfg.Passphrase) == 0 {
		return nil, newError("empty passphrase")
	}
	if 0 == cfg.KDFTime {
		cfg.KDFTime = 2
	}
	if 0 == cfg.KDFMemoryKB {
		cfg.KDFMemoryKB = 64 * 1024
	}
	if 0 == cfg.KDFThreads {
		cfg.KDFThreads = 1
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, unavailable(err, "failed connecting to database")
	}
	defer db.Close()

	var master cipher.AEAD
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucketname := range [][]byte{keyTbl, metaTbl} {
			_, err := tx.CreateBucketIfNotExists(bucketname)
			if nil != err {
				return wrapError(err, "failed %s bucket creation", bucketname)
			}
		}
		meta := tx.Bucket(metaTbl)

		salt := meta.Get(saltKey)
		if nil == salt {
			salt = make([]byte, saltSize)
			if _, err := rand.Read(salt); nil != err {
				return wrapError(err, "failed generating salt")
			}
			if err := meta.Put(saltKey, salt); nil != err {
				return wrapError(err, "failed storing salt")
			}
		}

		mk := argon2.IDKey(cfg.Passphrase, salt, cfg.KDFTime, cfg.KDFMemoryKB, cfg.KDFThreads, keystore.SecretKeySize)
		aead, err := keystore.NewAESGCM(mk)
		clear(mk)
		if nil != err {
			return wrapError(err, "failed master key initialization")
		}

		check := meta.Get(checkKey)
		if nil == check {
			check, err = seal(aead, checkKey, []byte(checkPlaintext))
			if nil != err {
				return err
			}
			if err = meta.Put(checkKey, check); nil != err {
				return wrapError(err, "failed storing passphrase check")
			}
		} else {
			pt, err := open(aead, checkKey, check)
			if nil != err || !bytes.Equal(pt, []byte(checkPlaintext)) {
				return newUnavailable("invalid passphrase")
			}
		}
		master = aead

		return nil
	})
	if nil != err {
		return nil, err
	}

	return &KeyStore{dbpath: cfg.Path, master: master}, nil
}

// ECKey implements keystore.KeyCustody.
func (self *KeyStore) ECKey(alias string, curve algos.Curve) (keystore.ECKey, error) {
	err := keystore.CheckCurve(curve)
	if nil != err {
		return nil, err
	}

	var priv *ecdsa.PrivateKey
	err = self.update(func(tbl *bolt.Bucket) error {
		rkey := hash(alias)
		var rec keyRecord
		found, err := loadRecord(tbl, rkey, &rec)
		if nil != err {
			return err
		}
		if found {
			if kindEC != rec.Kind || curve.Name() != rec.Curve {
				return keyTypeError(alias)
			}
			der, err := open(self.master, rkey, rec.Data)
			if nil != err {
				return unavailable(err, "failed unsealing EC key")
			}
			defer clear(der)
			priv, err = x509.ParseECPrivateKey(der)
			return wrapError(err, "failed parsing EC key")
		}

		priv, err = ecdsa.GenerateKey(curve.Elliptic(), rand.Reader)
		if nil != err {
			return unavailable(err, "failed generating EC key")
		}
		der, err := x509.MarshalECPrivateKey(priv)
		if nil != err {
			return wrapError(err, "failed marshaling EC key")
		}
		defer clear(der)

		return self.saveRecord(tbl, rkey, kindEC, curve.Name(), der)
	})
	if nil != err {
		return nil, err
	}

	return keystore.NewSoftECKey(priv), nil
}

// SecretKey implements keystore.KeyCustody.
func (self *KeyStore) SecretKey(alias string) (cipher.AEAD, error) {
	var aead cipher.AEAD
	err := self.update(func(tbl *bolt.Bucket) error {
		rkey := hash(alias)
		var rec keyRecord
		found, err := loadRecord(tbl, rkey, &rec)
		if nil != err {
			return err
		}

		var key []byte
		if found {
			if kindSecret != rec.Kind {
				return keyTypeError(alias)
			}
			key, err = open(self.master, rkey, rec.Data)
			if nil != err {
				return unavailable(err, "failed unsealing secret key")
			}
		} else {
			key = make([]byte, keystore.SecretKeySize)
			if _, err = rand.Read(key); nil != err {
				return unavailable(err, "failed generating secret key")
			}
			if err = self.saveRecord(tbl, rkey, kindSecret, "", key); nil != err {
				return err
			}
		}
		defer clear(key)

		aead, err = keystore.NewAESGCM(key)
		return err
	})

	return aead, err
}

// Contains implements keystore.KeyCustody.
func (self *KeyStore) Contains(alias string) (bool, error) {
	db, err := self.connect()
	if nil != err {
		return false, err
	}
	defer db.Close()

	var found bool
	err = db.View(func(tx *bolt.Tx) error {
		tbl := tx.Bucket(keyTbl)
		if nil == tbl {
			return newError("missing keyTbl bucket")
		}
		found = nil != tbl.Get(hash(alias))
		return nil
	})

	return found, err
}

// DeleteKey implements keystore.KeyCustody.
func (self *KeyStore) DeleteKey(alias string) error {
	return self.update(func(tbl *bolt.Bucket) error {
		return wrapError(tbl.Delete(hash(alias)), "failed deleting key")
	})
}

// KeyCount returns the number of keys in the KeyStore, or -1 in case of error.
func (self *KeyStore) KeyCount() int {
	db, err := self.connect()
	if nil != err {
		return -1
	}
	defer db.Close()

	count := -1
	_ = db.View(func(tx *bolt.Tx) error {
		tbl := tx.Bucket(keyTbl)
		if nil != tbl {
			count = tbl.Stats().KeyN
		}
		return nil
	})

	return count
}

func (self *KeyStore) connect() (*bolt.DB, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, unavailable(err, "failed connecting to database")
	}
	return db, nil
}

// update runs fn in a write transaction on the keyTbl bucket.
func (self *KeyStore) update(fn func(tbl *bolt.Bucket) error) error {
	db, err := self.connect()
	if nil != err {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		tbl := tx.Bucket(keyTbl)
		if nil == tbl {
			return newError("missing keyTbl bucket")
		}
		return fn(tbl)
	})
}

func (self *KeyStore) saveRecord(tbl *bolt.Bucket, rkey []byte, kind uint8, curve string, material []byte) error {
	sealed, err := seal(self.master, rkey, material)
	if nil != err {
		return err
	}
	rec := keyRecord{Kind: kind, Curve: curve, Data: sealed}
	srzrec, err := cbor.Marshal(rec)
	if nil != err {
		return wrapError(err, "failed cbor.Marshal(keyRecord)")
	}
	return wrapError(tbl.Put(rkey, srzrec), "failed storing key record")
}

func loadRecord(tbl *bolt.Bucket, rkey []byte, dst *keyRecord) (bool, error) {
	srzrec := tbl.Get(rkey)
	if nil == srzrec {
		return false, nil
	}
	err := cbor.Unmarshal(srzrec, dst)
	if nil != err {
		return true, wrapError(err, "failed unmarshaling key record")
	}
	return true, nil
}

// seal encrypts material with aead, the record key is used as additional data.
// The returned bytes are nonce || ciphertext.
func seal(aead cipher.AEAD, rkey []byte, material []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(material)+aead.Overhead())
	if _, err := rand.Read(nonce); nil != err {
		return nil, wrapError(err, "failed generating nonce")
	}
	return aead.Seal(nonce, nonce, material, rkey), nil
}

func open(aead cipher.AEAD, rkey []byte, sealed []byte) ([]byte, error) {
	ns := aead.NonceSize()
	if len(sealed) < ns+aead.Overhead() {
		return nil, newError("sealed data too short")
	}
	return aead.Open(nil, sealed[:ns], sealed[ns:], rkey)
}

// hash returns the BLAKE2s digest of alias, used as record key.
func hash(alias string) []byte {
	h := hashAlgo.New()
	h.Write([]byte(alias))
	return h.Sum(nil)
}

var _ keystore.KeyCustody = &KeyStore{}
