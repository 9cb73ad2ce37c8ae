package utils

import (
	"sync"
)

// KeyedMutex serializes operations sharing the same key while letting
// operations on distinct keys proceed concurrently.
// The zero value is ready to use.
type KeyedMutex struct {
	mut   sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mut  sync.Mutex
	refs int
}

// Lock acquires the lock for key and returns the function that releases it.
func (self *KeyedMutex) Lock(key string) (unlock func()) {
	self.mut.Lock()
	if nil == self.locks {
		self.locks = make(map[string]*keyedEntry)
	}
	entry, found := self.locks[key]
	if !found {
		entry = &keyedEntry{}
		self.locks[key] = entry
	}
	entry.refs += 1
	self.mut.Unlock()

	entry.mut.Lock()

	return func() {
		entry.mut.Unlock()
		self.mut.Lock()
		entry.refs -= 1
		if 0 == entry.refs {
			delete(self.locks, key)
		}
		self.mut.Unlock()
	}
}
