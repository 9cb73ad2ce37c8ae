// Package boltdb provides a custody.Prefs that persists records in a boltdb database file.
package boltdb

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"code.securecomm.org/golang/internal/utils"
	"code.securecomm.org/golang/pkg/custody"
)

const connectTimeout = 5 * time.Second

// DefaultNamespace is the bucket used when New receives an empty namespace.
const DefaultNamespace = "secure_storage"

// Prefs is a custody.Prefs storing each namespace in its own bucket.
// The database is opened for each operation so that it can be shared with other processes.
type Prefs struct {
	dbpath string
	bucket []byte
}

// New returns a Prefs backed by the bucket namespace of the database at path,
// creating both if needed. It errors if the database can not be opened.
func New(path string, namespace string) (*Prefs, error) {
	if "" == namespace {
		namespace = DefaultNamespace
	}
	p := &Prefs{dbpath: path, bucket: []byte(namespace)}

	db, err := p.connect()
	if nil != err {
		return nil, err
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(p.bucket)
		return wrapError(err, "failed %s bucket creation", namespace)
	})
	if nil != err {
		return nil, err
	}

	return p, nil
}

// Get implements custody.Prefs.
func (self *Prefs) Get(name string) (string, bool, error) {
	db, err := self.connect()
	if nil != err {
		return "", false, err
	}
	defer db.Close()

	var value string
	var found bool
	err = db.View(func(tx *bolt.Tx) error {
		tbl := tx.Bucket(self.bucket)
		if nil == tbl {
			return newError("missing %s bucket", self.bucket)
		}
		v := tbl.Get([]byte(name))
		if nil != v {
			found = true
			value = string(v) // copies v which is only valid during tx
		}
		return nil
	})

	return value, found, err
}

// Put implements custody.Prefs.
func (self *Prefs) Put(name string, value string) error {
	return self.update(func(tbl *bolt.Bucket) error {
		return wrapError(tbl.Put([]byte(name), []byte(value)), "failed storing %s", name)
	})
}

// Delete implements custody.Prefs.
func (self *Prefs) Delete(name string) error {
	return self.update(func(tbl *bolt.Bucket) error {
		return wrapError(tbl.Delete([]byte(name)), "failed deleting %s", name)
	})
}

// Clear implements custody.Prefs.
func (self *Prefs) Clear() error {
	db, err := self.connect()
	if nil != err {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if nil != tx.Bucket(self.bucket) {
			err := tx.DeleteBucket(self.bucket)
			if nil != err {
				return wrapError(err, "failed deleting %s bucket", self.bucket)
			}
		}
		_, err := tx.CreateBucket(self.bucket)
		return wrapError(err, "failed %s bucket creation", self.bucket)
	})
}

// Count returns the number of records in the namespace, or -1 in case of error.
func (self *Prefs) Count() int {
	db, err := self.connect()
	if nil != err {
		return -1
	}
	defer db.Close()

	count := -1
	_ = db.View(func(tx *bolt.Tx) error {
		tbl := tx.Bucket(self.bucket)
		if nil != tbl {
			count = tbl.Stats().KeyN
		}
		return nil
	})

	return count
}

func (self *Prefs) connect() (*bolt.DB, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	return db, wrapError(err, "failed connecting to database") // nil if err is nil
}

func (self *Prefs) update(fn func(tbl *bolt.Bucket) error) error {
	db, err := self.connect()
	if nil != err {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		tbl := tx.Bucket(self.bucket)
		if nil == tbl {
			return newError("missing %s bucket", self.bucket)
		}
		return fn(tbl)
	})
}

func newError(msg string, args ...any) error {
	return utils.NewError(1, custody.Error, msg, args...)
}

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, custody.Error, msg, args...)
}

var _ custody.Prefs = &Prefs{}
