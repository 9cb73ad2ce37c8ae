package utils

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistrySetGet(t *testing.T) {
	reg := NewRegistry[string, int]()
	for i, name := range []string{"memory", "bolt", "postgres"} {
		err := RegistrySet(reg, name, i)
		if nil != err {
			t.Fatalf("failed RegistrySet(%s), got error %v", name, err)
		}
	}

	v, found := RegistryGet(reg, "bolt")
	if !found || v != 1 {
		t.Errorf("failed RegistryGet control, got %d, %v", v, found)
	}

	_, found = RegistryGet(reg, "sqlite")
	if found {
		t.Error("unexpected sqlite entry")
	}

	names := RegistryNames(reg)
	if !reflect.DeepEqual(names, []string{"bolt", "memory", "postgres"}) {
		t.Errorf("failed RegistryNames control, got %v", names)
	}
}

func TestRegistryConflict(t *testing.T) {
	reg := NewRegistry[string, int]()
	err := RegistrySet(reg, "memory", 1)
	if nil != err {
		t.Fatalf("failed first RegistrySet, got error %v", err)
	}
	err = RegistrySet(reg, "memory", 2)
	if !errors.Is(err, Error) {
		t.Fatalf("expected utils.Error, got %v", err)
	}
	v, _ := RegistryGet(reg, "memory")
	if 1 != v {
		t.Errorf("conflicting RegistrySet modified entry, got %d", v)
	}
}

func TestRegistryEntriesIsCopy(t *testing.T) {
	reg := NewRegistry[string, int]()
	_ = RegistrySet(reg, "a", 1)
	entries := RegistryEntries(reg)
	entries["b"] = 2
	if _, found := RegistryGet(reg, "b"); found {
		t.Error("RegistryEntries did not return a copy")
	}
}
