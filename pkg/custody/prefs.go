package custody

import (
	"sync"
)

// Prefs is an application private persistent key-value namespace holding the
// Base64 custody records, keyed by logical name.
type Prefs interface {
	// Get returns the value stored under name and a bool indicating if it exists.
	Get(name string) (string, bool, error)

	// Put stores value under name, replacing any previous value.
	Put(name string, value string) error

	// Delete removes name. Deleting a missing name is not an error.
	Delete(name string) error

	// Clear removes all the names of the namespace.
	Clear() error
}

// MemPrefs is a Prefs that keeps values in memory.
type MemPrefs struct {
	mut    sync.RWMutex
	values map[string]string
}

// NewMemPrefs returns an empty MemPrefs.
func NewMemPrefs() *MemPrefs {
	return &MemPrefs{values: make(map[string]string)}
}

// Get implements Prefs.
func (self *MemPrefs) Get(name string) (string, bool, error) {
	self.mut.RLock()
	defer self.mut.RUnlock()
	v, found := self.values[name]
	return v, found, nil
}

// Put implements Prefs.
func (self *MemPrefs) Put(name string, value string) error {
	self.mut.Lock()
	defer self.mut.Unlock()
	self.values[name] = value
	return nil
}

// Delete implements Prefs.
func (self *MemPrefs) Delete(name string) error {
	self.mut.Lock()
	defer self.mut.Unlock()
	delete(self.values, name)
	return nil
}

// Clear implements Prefs.
func (self *MemPrefs) Clear() error {
	self.mut.Lock()
	defer self.mut.Unlock()
	clear(self.values)
	return nil
}

// Len returns the number of stored values.
func (self *MemPrefs) Len() int {
	self.mut.RLock()
	defer self.mut.RUnlock()
	return len(self.values)
}

var _ Prefs = &MemPrefs{}
