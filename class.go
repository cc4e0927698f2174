package jsexport

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// =============================================================================
// TYPED CALLBACKS
// =============================================================================

// Callback types of a ClassBuilder. I is the native instance type.
type (
	GetterFunc[I any]         func(ctx Context, instance I) (Value, error)
	SetterFunc[I any]         func(ctx Context, instance I, value Value) (bool, error)
	MethodFunc[I any]         func(ctx Context, instance I, args []Value, this Object) (Value, error)
	InitializeFunc[I any]     func(ctx Context, object Object, instance I) error
	FinalizeFunc[I any]       func(instance I) error
	CallAsFunctionFunc[I any] func(ctx Context, instance I, this Object, args []Value) (Value, error)
	ConstructorFunc[I any]    func(ctx Context, args []Value) (I, error)
	ConvertToTypeFunc[I any]  func(ctx Context, instance I, typ Type) (Value, bool, error)

	// HasInstanceFunc reports whether candidate, the native instance of the
	// right-hand side of instanceof, is an instance of the class.
	HasInstanceFunc func(ctx Context, candidate any) (bool, error)
)

var (
	dynamicPropertiesType = reflect.TypeOf((*DynamicProperties)(nil)).Elem()
	callableType          = reflect.TypeOf((*Callable)(nil)).Elem()
	converterType         = reflect.TypeOf((*Converter)(nil)).Elem()
)

// =============================================================================
// CLASS BUILDER
// =============================================================================

// ClassBuilder accumulates the properties and callbacks of one native type and
// builds its ClassDescriptor. A builder is not safe for concurrent use; Build
// may be called from many goroutines on distinct builders.
type ClassBuilder[I any] struct {
	name       string
	version    uint32
	attributes ClassAttributes
	parent     *ClassDescriptor

	valueProperties    map[string]ValuePropertyCallback
	functionProperties map[string]FunctionPropertyCallback

	factory        func() (any, error)
	noFactory      bool
	initialize     InitializeFunc[I]
	finalize       FinalizeFunc[I]
	callAsFunction CallAsFunctionFunc[I]
	constructor    ConstructorFunc[I]
	constructorSet bool
	hasInstance    HasInstanceFunc
	hasInstanceSet bool
	convertToType  ConvertToTypeFunc[I]
	err            error
}

// NewClassBuilder creates a builder for the class name backed by instances of
// type I.
func NewClassBuilder[I any](name string) *ClassBuilder[I] {
	return &ClassBuilder[I]{
		name:               name,
		valueProperties:    make(map[string]ValuePropertyCallback),
		functionProperties: make(map[string]FunctionPropertyCallback),
	}
}

// Name returns the class name.
func (cb *ClassBuilder[I]) Name() string { return cb.name }

// Err returns the first error recorded by a fluent method.
func (cb *ClassBuilder[I]) Err() error { return cb.err }

func (cb *ClassBuilder[I]) record(err error) {
	if err != nil && cb.err == nil {
		cb.err = err
	}
}

func (cb *ClassBuilder[I]) claim(name string) error {
	_, isValue := cb.valueProperties[name]
	_, isFunction := cb.functionProperties[name]
	if isValue || isFunction {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateProperty, cb.name, name)
	}
	return nil
}

// AddValueProperty adds a value property. A nil setter makes the property
// read-only.
func (cb *ClassBuilder[I]) AddValueProperty(name string, getter GetterFunc[I], setter SetterFunc[I], opts ...PropertyOption) error {
	if err := cb.claim(name); err != nil {
		return err
	}
	if getter == nil {
		return fmt.Errorf("%w: value property %q has no getter", ErrInvalidArgument, name)
	}

	get := func(ctx Context, instance any) (Value, error) {
		inst, err := cast[I](cb.name, instance)
		if err != nil {
			return Value{}, err
		}
		return getter(ctx, inst)
	}
	var set ValueSetter
	if setter != nil {
		set = func(ctx Context, instance any, value Value) (bool, error) {
			inst, err := cast[I](cb.name, instance)
			if err != nil {
				return false, err
			}
			return setter(ctx, inst, value)
		}
	}

	attrs := valueAttributes(setter != nil, applyPropertyOptions(opts))
	prop, err := NewValuePropertyCallback(name, attrs, get, set)
	if err != nil {
		return err
	}
	cb.valueProperties[name] = prop
	return nil
}

// AddFunctionProperty adds a function property.
func (cb *ClassBuilder[I]) AddFunctionProperty(name string, fn MethodFunc[I], opts ...PropertyOption) error {
	if err := cb.claim(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: function property %q has no implementation", ErrInvalidArgument, name)
	}

	invoke := func(ctx Context, instance any, args []Value, this Object) (Value, error) {
		inst, err := cast[I](cb.name, instance)
		if err != nil {
			return Value{}, err
		}
		return fn(ctx, inst, args, this)
	}
	prop, err := NewFunctionPropertyCallback(name, functionAttributes(applyPropertyOptions(opts)), invoke)
	if err != nil {
		return err
	}
	cb.functionProperties[name] = prop
	return nil
}

// Accessor adds a read-write value property, recording any error for Build.
func (cb *ClassBuilder[I]) Accessor(name string, getter GetterFunc[I], setter SetterFunc[I], opts ...PropertyOption) *ClassBuilder[I] {
	cb.record(cb.AddValueProperty(name, getter, setter, opts...))
	return cb
}

// ReadOnlyAccessor adds a read-only value property.
func (cb *ClassBuilder[I]) ReadOnlyAccessor(name string, getter GetterFunc[I], opts ...PropertyOption) *ClassBuilder[I] {
	cb.record(cb.AddValueProperty(name, getter, nil, opts...))
	return cb
}

// Method adds a function property.
func (cb *ClassBuilder[I]) Method(name string, fn MethodFunc[I], opts ...PropertyOption) *ClassBuilder[I] {
	cb.record(cb.AddFunctionProperty(name, fn, opts...))
	return cb
}

// =============================================================================
// CLASS SETTINGS
// =============================================================================

func (cb *ClassBuilder[I]) SetParent(parent *ClassDescriptor) *ClassBuilder[I] {
	cb.parent = parent
	return cb
}

func (cb *ClassBuilder[I]) SetVersion(version uint32) *ClassBuilder[I] {
	cb.version = version
	return cb
}

// SetAutomaticPrototype controls whether the engine creates a prototype object
// for the class. It does by default.
func (cb *ClassBuilder[I]) SetAutomaticPrototype(automatic bool) *ClassBuilder[I] {
	if automatic {
		cb.attributes &^= ClassNoAutomaticPrototype
	} else {
		cb.attributes |= ClassNoAutomaticPrototype
	}
	return cb
}

// SetFactory sets the function creating the instance attached when the engine
// initializes an object. A nil factory attaches nothing.
func (cb *ClassBuilder[I]) SetFactory(factory func() I) *ClassBuilder[I] {
	if factory == nil {
		cb.factory, cb.noFactory = nil, true
		return cb
	}
	cb.factory = func() (any, error) { return factory(), nil }
	cb.noFactory = false
	return cb
}

func (cb *ClassBuilder[I]) SetInitialize(fn InitializeFunc[I]) *ClassBuilder[I] {
	cb.initialize = fn
	return cb
}

// SetFinalize sets a callback run before the instance is deleted. Instances
// implementing Finalizer are finalized regardless.
func (cb *ClassBuilder[I]) SetFinalize(fn FinalizeFunc[I]) *ClassBuilder[I] {
	cb.finalize = fn
	return cb
}

func (cb *ClassBuilder[I]) SetCallAsFunction(fn CallAsFunctionFunc[I]) *ClassBuilder[I] {
	cb.callAsFunction = fn
	return cb
}

// SetConstructor enables `new` on the class. It must be paired with
// SetHasInstance.
func (cb *ClassBuilder[I]) SetConstructor(fn ConstructorFunc[I]) *ClassBuilder[I] {
	cb.constructor = fn
	cb.constructorSet = fn != nil
	return cb
}

// SetHasInstance sets the instanceof check. nil selects the default check,
// which accepts candidates whose instance is an I.
func (cb *ClassBuilder[I]) SetHasInstance(fn HasInstanceFunc) *ClassBuilder[I] {
	if fn == nil {
		fn = defaultHasInstance[I]
	}
	cb.hasInstance = fn
	cb.hasInstanceSet = true
	return cb
}

func (cb *ClassBuilder[I]) SetConvertToType(fn ConvertToTypeFunc[I]) *ClassBuilder[I] {
	cb.convertToType = fn
	return cb
}

// =============================================================================
// BUILD
// =============================================================================

// Build validates the builder and registers the class with reg. Building a
// name that reg already holds for the same instance type returns the existing
// descriptor.
func (cb *ClassBuilder[I]) Build(reg *Registry) (*ClassDescriptor, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidArgument)
	}
	if err := cb.validate(reg); err != nil {
		reg.logger.Warn("class rejected", zap.String("class", cb.name), zap.Error(err))
		return nil, err
	}
	return reg.register(cb.name, instanceType[I](), cb.descriptor)
}

func (cb *ClassBuilder[I]) validate(reg *Registry) error {
	if cb.err != nil {
		return cb.err
	}
	if cb.name == "" {
		return fmt.Errorf("%w: empty class name", ErrInvalidArgument)
	}
	if cb.constructorSet != cb.hasInstanceSet {
		return fmt.Errorf("%w: class %q", ErrConstructorPairing, cb.name)
	}
	if cb.parent != nil {
		if cb.parent.registry != reg || reg.Lookup(cb.parent.name) != cb.parent {
			return fmt.Errorf("%w: %q is not registered", ErrParentNotBuilt, cb.parent.name)
		}
		if t := instanceType[I](); !t.AssignableTo(cb.parent.instanceType) {
			return fmt.Errorf("%w: %s instances are not %s", ErrInstanceType, t, cb.parent.instanceType)
		}
	}
	return nil
}

// descriptor snapshots the builder into an immutable descriptor.
func (cb *ClassBuilder[I]) descriptor() (*ClassDescriptor, error) {
	t := instanceType[I]()
	desc := &ClassDescriptor{
		name:               cb.name,
		version:            cb.version,
		attributes:         cb.attributes,
		parent:             cb.parent,
		instanceType:       t,
		valueProperties:    make(map[string]ValuePropertyCallback, len(cb.valueProperties)),
		functionProperties: make(map[string]FunctionPropertyCallback, len(cb.functionProperties)),
	}
	for name, p := range cb.valueProperties {
		desc.valueProperties[name] = p
	}
	for name, p := range cb.functionProperties {
		desc.functionProperties[name] = p
	}

	name := cb.name
	callbacks := classCallbacks{
		factory: cb.factory,
		dynamic: t.Implements(dynamicPropertiesType),
	}
	if callbacks.factory == nil && !cb.noFactory {
		callbacks.factory = defaultFactory[I]()
	}
	if fn := cb.initialize; fn != nil {
		callbacks.initialize = func(ctx Context, object Object, instance any) error {
			inst, err := cast[I](name, instance)
			if err != nil {
				return err
			}
			return fn(ctx, object, inst)
		}
	}
	if fn := cb.finalize; fn != nil {
		callbacks.finalize = func(instance any) error {
			inst, err := cast[I](name, instance)
			if err != nil {
				return err
			}
			return fn(inst)
		}
	}

	switch {
	case cb.callAsFunction != nil:
		fn := cb.callAsFunction
		callbacks.callAsFunction = func(ctx Context, instance any, this Object, args []Value) (Value, error) {
			inst, err := cast[I](name, instance)
			if err != nil {
				return Value{}, err
			}
			return fn(ctx, inst, this, args)
		}
	case t.Implements(callableType):
		callbacks.callAsFunction = func(ctx Context, instance any, this Object, args []Value) (Value, error) {
			c, ok := instance.(Callable)
			if !ok {
				return Value{}, fmt.Errorf("%w: %T is not callable", ErrInstanceType, instance)
			}
			return c.CallAsFunction(ctx, this, args)
		}
	}

	if fn := cb.constructor; fn != nil {
		callbacks.callAsConstructor = func(ctx Context, args []Value) (any, error) {
			return fn(ctx, args)
		}
	}
	callbacks.hasInstance = cb.hasInstance

	switch {
	case cb.convertToType != nil:
		fn := cb.convertToType
		callbacks.convertToType = func(ctx Context, instance any, typ Type) (Value, bool, error) {
			inst, err := cast[I](name, instance)
			if err != nil {
				return Value{}, false, err
			}
			return fn(ctx, inst, typ)
		}
	case t.Implements(converterType):
		callbacks.convertToType = func(ctx Context, instance any, typ Type) (Value, bool, error) {
			c, ok := instance.(Converter)
			if !ok {
				return Value{}, false, nil
			}
			return c.ConvertToType(ctx, typ)
		}
	}

	desc.callbacks = callbacks
	return desc, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func instanceType[I any]() reflect.Type {
	return reflect.TypeOf((*I)(nil)).Elem()
}

// defaultFactory allocates a zeroed pointee for pointer instance types and a
// zero value for other concrete types. Interface types have no factory.
func defaultFactory[I any]() func() (any, error) {
	t := instanceType[I]()
	switch t.Kind() {
	case reflect.Interface:
		return nil
	case reflect.Pointer:
		elem := t.Elem()
		return func() (any, error) {
			return reflect.New(elem).Interface(), nil
		}
	default:
		return func() (any, error) {
			var zero I
			return zero, nil
		}
	}
}

func defaultHasInstance[I any](_ Context, candidate any) (bool, error) {
	_, ok := candidate.(I)
	return ok, nil
}

// cast recovers the typed instance of class from an attached instance.
func cast[I any](class string, instance any) (I, error) {
	inst, ok := instance.(I)
	if !ok {
		var zero I
		if instance == nil {
			return zero, ErrNoInstance
		}
		return zero, fmt.Errorf("%w: %s got %T, want %s", ErrInstanceType, class, instance, instanceType[I]())
	}
	return inst, nil
}
