// Package prefstest provides conformance tests for custody.Prefs implementations.
package prefstest

import (
	"errors"
	"testing"

	"code.securecomm.org/golang/pkg/custody"
	"code.securecomm.org/golang/pkg/keystore"
)

// Run checks that the custody.Prefs returned by newPrefs behaves as expected.
// newPrefs is called once per sub test and must return an empty namespace.
func Run(t *testing.T, newPrefs func(t *testing.T) custody.Prefs) {
	t.Run("GetMissing", func(t *testing.T) {
		prefs := newPrefs(t)
		v, found, err := prefs.Get("missing")
		if nil != err {
			t.Fatalf("failed Get, got error %v", err)
		}
		if found || "" != v {
			t.Errorf("failed Get, got found %v value %q", found, v)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		prefs := newPrefs(t)
		for _, v := range []string{"first", "second", ""} {
			err := prefs.Put("name", v)
			if nil != err {
				t.Fatalf("failed Put, got error %v", err)
			}
			got, found, err := prefs.Get("name")
			if nil != err {
				t.Fatalf("failed Get, got error %v", err)
			}
			if !found || v != got {
				t.Errorf("failed Get, got found %v value %q, expected %q", found, got, v)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		prefs := newPrefs(t)
		_ = prefs.Put("a", "1")
		_ = prefs.Put("b", "2")
		err := prefs.Delete("a")
		if nil != err {
			t.Fatalf("failed Delete, got error %v", err)
		}
		if _, found, _ := prefs.Get("a"); found {
			t.Error("failed Delete, name still present")
		}
		if _, found, _ := prefs.Get("b"); !found {
			t.Error("Delete removed another name")
		}
		if err = prefs.Delete("missing"); nil != err {
			t.Errorf("failed Delete of missing name, got error %v", err)
		}
	})

	t.Run("StoreEmptyName", func(t *testing.T) {
		prefs := newPrefs(t)
		store, err := custody.New(keystore.NewMemKeyStore(), prefs)
		if nil != err {
			t.Fatalf("failed custody.New, got error %v", err)
		}
		err = store.Store("", []byte("value"))
		if !errors.Is(err, custody.ErrInvalidName) {
			t.Fatalf("Store with empty name expected ErrInvalidName, got %v", err)
		}
		if _, found, _ := prefs.Get(""); found {
			t.Error("record persisted under empty name")
		}
		if _, found, err := store.Retrieve(""); nil != err || found {
			t.Errorf("Retrieve of empty name, got found %v error %v", found, err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		prefs := newPrefs(t)
		for _, name := range []string{"a", "b", "c"} {
			_ = prefs.Put(name, name)
		}
		err := prefs.Clear()
		if nil != err {
			t.Fatalf("failed Clear, got error %v", err)
		}
		for _, name := range []string{"a", "b", "c"} {
			if _, found, _ := prefs.Get(name); found {
				t.Errorf("failed Clear, name %s still present", name)
			}
		}
		if err = prefs.Put("d", "4"); nil != err {
			t.Errorf("failed Put after Clear, got error %v", err)
		}
	})
}
