package jsexport

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger of the registry and its dispatchers. The package
// logger is used by default.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry maps class names to descriptors for one engine. A class name
// resolves to exactly one class for the lifetime of the registry; descriptors
// are never removed.
type Registry struct {
	engine    Engine
	logger    *zap.Logger
	lifecycle *Lifecycle

	mu      sync.RWMutex
	classes map[string]*ClassDescriptor
	group   singleflight.Group
}

// NewRegistry creates a registry registering classes with engine.
func NewRegistry(engine Engine, opts ...Option) *Registry {
	r := &Registry{
		engine:  engine,
		logger:  Logger(),
		classes: make(map[string]*ClassDescriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lifecycle = newLifecycle(r.logger)
	return r
}

func (r *Registry) Engine() Engine        { return r.engine }
func (r *Registry) Logger() *zap.Logger   { return r.logger }
func (r *Registry) Lifecycle() *Lifecycle { return r.lifecycle }

// Lookup returns the descriptor registered under name, nil if none.
func (r *Registry) Lookup(name string) *ClassDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classes[name]
}

// Names returns the registered class names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// register builds and registers a class at most once per name. Concurrent
// first builds share one build; later builds return the cached descriptor.
func (r *Registry) register(name string, typ reflect.Type, build func() (*ClassDescriptor, error)) (*ClassDescriptor, error) {
	if desc := r.Lookup(name); desc != nil {
		return r.cached(desc, typ)
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		if desc := r.Lookup(name); desc != nil {
			return desc, nil
		}
		desc, err := build()
		if err != nil {
			return nil, err
		}
		desc.registry = r
		d := &dispatcher{desc: desc, lifecycle: r.lifecycle, logger: r.logger}
		desc.definition = d.definition()

		class, err := r.engine.CreateClass(desc.definition)
		if err != nil {
			return nil, fmt.Errorf("create class %q: %w", name, err)
		}
		desc.class = class

		r.mu.Lock()
		r.classes[name] = desc
		r.mu.Unlock()

		r.logger.Debug("class registered",
			zap.String("class", name),
			zap.Stringer("type", typ),
			zap.Int("values", len(desc.valueProperties)),
			zap.Int("functions", len(desc.functionProperties)))
		return desc, nil
	})
	if err != nil {
		r.logger.Warn("class registration failed", zap.String("class", name), zap.Error(err))
		return nil, err
	}
	return r.cached(v.(*ClassDescriptor), typ)
}

func (r *Registry) cached(desc *ClassDescriptor, typ reflect.Type) (*ClassDescriptor, error) {
	if desc.instanceType != typ {
		err := fmt.Errorf("%w: %q is bound to %s, not %s", ErrClassExists, desc.name, desc.instanceType, typ)
		r.logger.Warn("class registration failed", zap.String("class", desc.name), zap.Error(err))
		return nil, err
	}
	return desc, nil
}

// NewObject creates an object of the class described by desc. A non-nil
// instance replaces the one attached by initialize, which is deleted.
func (r *Registry) NewObject(ctx Context, desc *ClassDescriptor, instance any) (Object, error) {
	if desc == nil || desc.registry != r {
		return nil, fmt.Errorf("%w: class is not registered", ErrInvalidArgument)
	}
	if instance != nil && !reflect.TypeOf(instance).AssignableTo(desc.instanceType) {
		return nil, fmt.Errorf("%w: %s got %T, want %s", ErrInstanceType, desc.name, instance, desc.instanceType)
	}

	object, err := ctx.NewObject(desc.class)
	if err != nil {
		return nil, fmt.Errorf("new %s: %w", desc.name, err)
	}
	if instance != nil {
		if _, err := r.lifecycle.Replace(object, instance); err != nil {
			return nil, err
		}
	}
	return object, nil
}

// InstanceOf returns the instance attached to object as an I.
func InstanceOf[I any](r *Registry, object Object) (I, bool) {
	instance, ok := r.lifecycle.CurrentInstance(object)
	if !ok {
		var zero I
		return zero, false
	}
	inst, ok := instance.(I)
	return inst, ok
}
