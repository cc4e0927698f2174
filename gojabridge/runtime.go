/*
Package gojabridge runs jsexport classes on the goja JavaScript engine.

A Runtime implements jsexport.Engine and jsexport.Context on top of a
*goja.Runtime. Class instances are goja dynamic objects whose property access
is routed to the static values, static functions and property hooks of their
class chain; classes with a call-as-function hook are backed by a proxy over a
native function so scripts can call them.

	rt := gojabridge.New()
	reg := jsexport.NewRegistry(rt)
	desc, err := builder.Build(reg)
	...
	_ = rt.Set("Widget", desc.Class())
	v, err := rt.RunString(`new Widget("w").sayHello()`)

Like goja itself, a Runtime must not be used by more than one goroutine at a
time. goja has no finalization hook for host objects, so instances are
finalized by Release or Close.
*/
package gojabridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/buke/jsexport"
)

var (
	// ErrForeignClass is returned for classes created by another engine.
	ErrForeignClass = errors.New("gojabridge: class belongs to another runtime")
	// ErrClassExists is returned when a class name is registered twice.
	ErrClassExists = errors.New("gojabridge: class already exists")
	// ErrReadOnly is returned when writing a read-only property.
	ErrReadOnly = errors.New("gojabridge: property is read-only")
	// ErrRejected is returned when a setter declines a write.
	ErrRejected = errors.New("gojabridge: write rejected")
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger of the runtime. The jsexport package logger is
// used by default.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRuntime runs classes on an existing goja runtime.
func WithRuntime(vm *goja.Runtime) Option {
	return func(r *Runtime) {
		if vm != nil {
			r.vm = vm
		}
	}
}

// WithStrictSetters makes rejected writes throw a TypeError in sloppy mode
// code too. By default they only throw in strict mode code.
func WithStrictSetters() Option {
	return func(r *Runtime) {
		r.strictSetters = true
	}
}

// Runtime is a jsexport engine backed by goja.
type Runtime struct {
	vm            *goja.Runtime
	logger        *zap.Logger
	strictSetters bool

	mu      sync.Mutex
	classes map[string]*jsClass
	objects map[*goja.Object]*object
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		logger:  jsexport.Logger(),
		classes: make(map[string]*jsClass),
		objects: make(map[*goja.Object]*object),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.vm == nil {
		r.vm = goja.New()
	}
	return r
}

// VM returns the underlying goja runtime.
func (r *Runtime) VM() *goja.Runtime { return r.vm }

// CreateClass implements jsexport.Engine.
func (r *Runtime) CreateClass(def *jsexport.ClassDefinition) (jsexport.ClassRef, error) {
	if def == nil || def.ClassName == "" {
		return nil, fmt.Errorf("%w: class definition without a name", jsexport.ErrInvalidArgument)
	}

	var parent *jsClass
	if def.ParentClass != nil {
		p, ok := def.ParentClass.(*jsClass)
		if !ok || p.rt != r {
			return nil, fmt.Errorf("%w: parent of %s", ErrForeignClass, def.ClassName)
		}
		parent = p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.classes[def.ClassName]; exists {
		return nil, fmt.Errorf("%w: %s", ErrClassExists, def.ClassName)
	}

	c := newClass(r, def, parent)
	r.classes[def.ClassName] = c

	parentName := ""
	if parent != nil {
		parentName = parent.Name()
	}
	r.logger.Debug("goja class created",
		zap.String("class", def.ClassName),
		zap.String("parent", parentName),
		zap.Bool("callable", c.callable()))
	return c, nil
}

// NewObject implements jsexport.Context. Initialize runs for every class of
// the chain, least-derived first. A nil class creates a plain object.
func (r *Runtime) NewObject(ref jsexport.ClassRef) (jsexport.Object, error) {
	if ref == nil {
		return &plain{rt: r, obj: r.vm.NewObject()}, nil
	}
	c, err := r.class(ref)
	if err != nil {
		return nil, err
	}

	o := newObject(r, c)
	r.mu.Lock()
	r.objects[o.value] = o
	r.mu.Unlock()

	chain := c.chain()
	for i := len(chain) - 1; i >= 0; i-- {
		if init := chain[i].def.Initialize; init != nil {
			init(r, o)
		}
	}
	return o, nil
}

// Constructor returns the JavaScript constructor of a class. new runs the
// call-as-constructor hook of the class chain, or creates a plain instance of
// the class when there is none. instanceof runs the has-instance hook when
// the chain has one and walks the prototype chain otherwise.
func (r *Runtime) Constructor(ref jsexport.ClassRef) (*goja.Object, error) {
	c, err := r.class(ref)
	if err != nil {
		return nil, err
	}
	return c.constructor(), nil
}

// Set sets a global variable. Classes become their constructor; jsexport
// objects and values are converted; anything else goes through goja.
func (r *Runtime) Set(name string, value any) error {
	switch v := value.(type) {
	case jsexport.ClassRef:
		ctor, err := r.Constructor(v)
		if err != nil {
			return err
		}
		return r.vm.Set(name, ctor)
	case jsexport.Object:
		return r.vm.Set(name, r.ToGoja(jsexport.ObjectValue(v)))
	case jsexport.Value:
		return r.vm.Set(name, r.ToGoja(v))
	default:
		return r.vm.Set(name, value)
	}
}

// RunString evaluates a script.
func (r *Runtime) RunString(src string) (jsexport.Value, error) {
	v, err := r.vm.RunString(src)
	if err != nil {
		return jsexport.Value{}, err
	}
	return r.FromGoja(v), nil
}

// Release finalizes a class instance: Finalize runs for every class of the
// chain, most-derived first. It reports false for plain objects and objects
// already released.
func (r *Runtime) Release(obj jsexport.Object) bool {
	o, ok := obj.(*object)
	if !ok || o.rt != r {
		return false
	}
	return o.finalize()
}

// Live returns the number of class instances not yet released.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

// Close releases every live class instance.
func (r *Runtime) Close() {
	r.mu.Lock()
	live := make([]*object, 0, len(r.objects))
	for _, o := range r.objects {
		live = append(live, o)
	}
	r.mu.Unlock()

	for _, o := range live {
		o.finalize()
	}
	if len(live) > 0 {
		r.logger.Debug("goja runtime closed", zap.Int("released", len(live)))
	}
}

func (r *Runtime) class(ref jsexport.ClassRef) (*jsClass, error) {
	c, ok := ref.(*jsClass)
	if !ok || c.rt != r {
		return nil, fmt.Errorf("%w: %s", ErrForeignClass, ref.Name())
	}
	return c, nil
}

func (r *Runtime) lookup(obj *goja.Object) *object {
	if obj == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objects[obj]
}

func (r *Runtime) forget(o *object) {
	r.mu.Lock()
	delete(r.objects, o.value)
	r.mu.Unlock()
}

// try runs f, returning a thrown JavaScript exception as an error.
func (r *Runtime) try(f func()) error {
	if ex := r.vm.Try(f); ex != nil {
		return ex
	}
	return nil
}
