package jsexport

import (
	"sync"
	"sync/atomic"
)

// handleStore owns native instances on behalf of engine objects. The handle
// of an instance is what the engine keeps in the object's private slot, so a
// handle is never reused: every attach is a new generation.
type handleStore struct {
	handles sync.Map       // map[uintptr]any
	nextID  atomic.Uintptr // atomic ID generation to avoid locks
	count   atomic.Int64
}

func newHandleStore() *handleStore {
	return &handleStore{}
}

// Store stores an instance and returns its handle. 0 is never returned.
func (hs *handleStore) Store(instance any) uintptr {
	id := hs.nextID.Add(1)
	hs.handles.Store(id, instance)
	hs.count.Add(1)
	return id
}

// Load loads the instance of a handle.
func (hs *handleStore) Load(id uintptr) (any, bool) {
	if id == 0 {
		return nil, false
	}
	return hs.handles.Load(id)
}

// Delete removes a handle and returns the instance it owned. Only one caller
// ever gets ok for a given handle.
func (hs *handleStore) Delete(id uintptr) (any, bool) {
	if id == 0 {
		return nil, false
	}
	instance, ok := hs.handles.LoadAndDelete(id)
	if ok {
		hs.count.Add(-1)
	}
	return instance, ok
}

// Count returns the number of live handles.
func (hs *handleStore) Count() int {
	return int(hs.count.Load())
}
