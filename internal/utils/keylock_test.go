package utils

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km KeyedMutex
	var wg sync.WaitGroup
	var a, b int
	counters := map[string]*int{"a": &a, "b": &b}

	for i := range 200 {
		key := "a"
		if 0 == i%2 {
			key = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()
			*counters[key] += 1
		}()
	}
	wg.Wait()

	if a != 100 || b != 100 {
		t.Errorf("lost updates, got a=%d b=%d", a, b)
	}
	if len(km.locks) != 0 {
		t.Errorf("lock entries leaked, %d remaining", len(km.locks))
	}
}
