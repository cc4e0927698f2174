package jsexport

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Finalizer is implemented by native instances that need cleanup. Finalize is
// called exactly once, when the instance is deleted: at object finalization or
// when a newer instance supersedes it.
type Finalizer interface {
	Finalize()
}

// Lifecycle pairs engine objects with their native instances. It is the only
// place that writes private slots.
//
// Slot writes are serialized by one short-held lock and slot reads take its
// read side, so engines may keep the private slot in a plain field. Instances
// are deleted outside the lock so a Finalize implementation may touch other
// objects.
type Lifecycle struct {
	store  *handleStore
	mu     sync.RWMutex
	logger *zap.Logger
}

func newLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{store: newHandleStore(), logger: logger}
}

// Attach attaches instance to a fresh object. It fails with
// ErrInstanceAttached when the object already holds a live instance.
func (l *Lifecycle) Attach(object Object, instance any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, live := l.store.Load(object.Private()); live {
		return ErrInstanceAttached
	}
	id := l.store.Store(instance)
	if !object.SetPrivate(id) {
		l.store.Delete(id)
		return fmt.Errorf("%w: object has no private slot", ErrInvalidArgument)
	}
	return nil
}

// Replace attaches instance, deleting the instance it supersedes. It reports
// whether a previous instance existed.
func (l *Lifecycle) Replace(object Object, instance any) (bool, error) {
	l.mu.Lock()
	old := object.Private()
	id := l.store.Store(instance)
	if !object.SetPrivate(id) {
		l.store.Delete(id)
		l.mu.Unlock()
		return false, fmt.Errorf("%w: object has no private slot", ErrInvalidArgument)
	}
	prev, ok := l.store.Delete(old)
	l.mu.Unlock()

	if ok && !sameInstance(prev, instance) {
		l.destroy(prev)
	}
	return ok, nil
}

// Detach clears the private slot and hands the instance back to the caller,
// who becomes responsible for it.
func (l *Lifecycle) Detach(object Object) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := object.Private()
	if id == 0 {
		return nil, false
	}
	object.SetPrivate(0)
	return l.store.Delete(id)
}

// Release detaches and deletes the instance of object.
func (l *Lifecycle) Release(object Object) bool {
	instance, ok := l.Detach(object)
	if ok {
		l.destroy(instance)
	}
	return ok
}

// CurrentInstance returns the instance attached to object.
func (l *Lifecycle) CurrentInstance(object Object) (any, bool) {
	if object == nil {
		return nil, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Load(object.Private())
}

// handle returns the private slot of object.
func (l *Lifecycle) handle(object Object) uintptr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return object.Private()
}

// Live returns the number of attached instances.
func (l *Lifecycle) Live() int {
	return l.store.Count()
}

func (l *Lifecycle) destroy(instance any) {
	f, ok := instance.(Finalizer)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("native finalizer panicked",
				zap.String("type", fmt.Sprintf("%T", instance)),
				zap.Error(&PanicError{Value: r}))
		}
	}()
	f.Finalize()
}

func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
