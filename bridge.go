package jsexport

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Callback kinds used in errors and logs.
const (
	callbackInitialize        = "initialize"
	callbackFinalize          = "finalize"
	callbackHasProperty       = "hasProperty"
	callbackGetProperty       = "getProperty"
	callbackSetProperty       = "setProperty"
	callbackDeleteProperty    = "deleteProperty"
	callbackGetPropertyNames  = "getPropertyNames"
	callbackCallFunction      = "callFunction"
	callbackCallAsFunction    = "callAsFunction"
	callbackCallAsConstructor = "callAsConstructor"
	callbackHasInstance       = "hasInstance"
	callbackConvertToType     = "convertToType"
)

// dispatcher owns the trampolines of one class. Every trampoline recovers the
// native instance, runs the callback under guard and turns failures into a
// reported exception plus the sentinel return of its slot.
type dispatcher struct {
	desc      *ClassDescriptor
	lifecycle *Lifecycle
	logger    *zap.Logger
}

// guard runs a native callback, converting a panic into a *PanicError.
func guard[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, err = zero, &PanicError{Value: r}
		}
	}()
	return fn()
}

// definition builds the engine record of the class.
func (d *dispatcher) definition() *ClassDefinition {
	desc := d.desc
	def := &ClassDefinition{
		Version:    desc.version,
		Attributes: desc.attributes,
		ClassName:  desc.name,
		Initialize: d.initialize,
		Finalize:   d.finalize,
	}
	if desc.parent != nil {
		def.ParentClass = desc.parent.class
	}

	for _, name := range desc.ValuePropertyNames() {
		def.StaticValues = append(def.StaticValues, StaticValue{
			Name:       name,
			Get:        d.getValue,
			Set:        d.setValue,
			Attributes: desc.valueProperties[name].attributes,
		})
	}
	for _, name := range desc.FunctionPropertyNames() {
		def.StaticFunctions = append(def.StaticFunctions, StaticFunction{
			Name:       name,
			Call:       d.function(name),
			Attributes: desc.functionProperties[name].attributes,
		})
	}

	cb := desc.callbacks
	if cb.dynamic {
		def.HasProperty = d.hasProperty
		def.GetProperty = d.getProperty
		def.SetProperty = d.setProperty
		def.DeleteProperty = d.deleteProperty
		def.GetPropertyNames = d.getPropertyNames
	}
	if cb.callAsFunction != nil {
		def.CallAsFunction = d.callAsFunction
	}
	if cb.callAsConstructor != nil {
		def.CallAsConstructor = d.callAsConstructor
	}
	if cb.hasInstance != nil {
		def.HasInstance = d.hasInstance
	}
	if cb.convertToType != nil {
		def.ConvertToType = d.convertToType
	}
	return def
}

// report logs a native failure and stores it in the exception out-parameter.
func (d *dispatcher) report(exception *Value, callback, property string, object Object, err error) {
	where := d.desc.name
	if property != "" {
		where += "." + property
	} else {
		where += " " + callback
	}

	jsErr := &Error{
		Name:     "Error",
		Message:  fmt.Sprintf("%s: %v", where, err),
		Class:    d.desc.name,
		Callback: callback,
		Property: property,
		Cause:    err,
	}
	var native *Error
	switch {
	case errors.As(err, &native) && native.Class == "":
		jsErr.Name = native.Name
	case errors.Is(err, ErrNoInstance), errors.Is(err, ErrInstanceType):
		jsErr.Name = "TypeError"
	}

	var handle uintptr
	if object != nil {
		handle = d.lifecycle.handle(object)
	}
	d.logger.Error("native callback failed",
		zap.String("class", d.desc.name),
		zap.String("callback", callback),
		zap.String("property", property),
		zap.Uintptr("object", handle),
		zap.Error(err))

	if exception != nil {
		*exception = ErrorValue(jsErr)
	}
}

func (d *dispatcher) instance(object Object) (any, error) {
	instance, ok := d.lifecycle.CurrentInstance(object)
	if !ok {
		return nil, ErrNoInstance
	}
	return instance, nil
}

func (d *dispatcher) invariant(callback, property string) {
	panic(&InvariantError{Class: d.desc.name, Callback: callback, Property: property})
}

// =============================================================================
// LIFECYCLE TRAMPOLINES
// =============================================================================

// initialize runs once per class of the chain, least-derived first. The first
// level attaches a fresh instance built by the most-derived factory, deleting
// any stale instance left in the slot; later levels see that same instance.
func (d *dispatcher) initialize(ctx Context, object Object) {
	instance, ok := d.lifecycle.CurrentInstance(object)
	if d.desc.parent == nil || !ok {
		if factory := d.factory(object); factory != nil {
			created, err := guard(factory)
			if err != nil {
				d.report(nil, callbackInitialize, "", object, err)
				return
			}
			if _, err := d.lifecycle.Replace(object, created); err != nil {
				d.report(nil, callbackInitialize, "", object, err)
				return
			}
			instance, ok = created, true
		}
	}
	if !ok {
		return
	}

	fn := d.desc.callbacks.initialize
	if fn == nil {
		return
	}
	_, err := guard(func() (struct{}, error) {
		return struct{}{}, fn(ctx, object, instance)
	})
	if err != nil {
		d.report(nil, callbackInitialize, "", object, err)
	}
}

// factory returns the factory of the most-derived class of object.
func (d *dispatcher) factory(object Object) func() (any, error) {
	desc := d.desc
	if class := object.Class(); class != nil && class.Name() != desc.name && desc.registry != nil {
		if derived := desc.registry.Lookup(class.Name()); derived != nil && derived.IsA(desc) {
			desc = derived
		}
	}
	return desc.callbacks.factory
}

// finalize runs the native finalize callback. The least-derived class runs
// last and deletes the instance.
func (d *dispatcher) finalize(object Object) {
	cb := d.desc.callbacks
	if cb.finalize != nil {
		if instance, ok := d.lifecycle.CurrentInstance(object); ok {
			_, err := guard(func() (struct{}, error) {
				return struct{}{}, cb.finalize(instance)
			})
			if err != nil {
				d.report(nil, callbackFinalize, "", object, err)
			}
		}
	}
	if d.desc.parent == nil {
		d.lifecycle.Release(object)
	}
}

// =============================================================================
// NAMED PROPERTY TRAMPOLINES
// =============================================================================

func (d *dispatcher) getValue(ctx Context, object Object, name string, exception *Value) Value {
	prop, ok := d.desc.valueProperties[name]
	if !ok {
		d.invariant(callbackGetProperty, name)
	}
	instance, err := d.instance(object)
	if err != nil {
		d.report(exception, callbackGetProperty, name, object, err)
		return Value{}
	}
	v, err := guard(func() (Value, error) { return prop.getter(ctx, instance) })
	if err != nil {
		d.report(exception, callbackGetProperty, name, object, err)
		return Value{}
	}
	if v.IsEmpty() {
		return Undefined()
	}
	return v
}

func (d *dispatcher) setValue(ctx Context, object Object, name string, value Value, exception *Value) bool {
	prop, ok := d.desc.valueProperties[name]
	if !ok {
		d.invariant(callbackSetProperty, name)
	}
	if prop.setter == nil {
		return false
	}
	instance, err := d.instance(object)
	if err != nil {
		d.report(exception, callbackSetProperty, name, object, err)
		return false
	}
	accepted, err := guard(func() (bool, error) { return prop.setter(ctx, instance, value) })
	if err != nil {
		d.report(exception, callbackSetProperty, name, object, err)
		return false
	}
	return accepted
}

// function returns the trampoline of one function property. The name is bound
// here instead of being recovered from the function object at call time.
func (d *dispatcher) function(name string) CallAsFunctionCallback {
	prop, ok := d.desc.functionProperties[name]
	if !ok {
		d.invariant(callbackCallFunction, name)
	}
	return func(ctx Context, function Object, this Object, args []Value, exception *Value) Value {
		instance, err := d.instance(this)
		if err != nil {
			d.report(exception, callbackCallFunction, name, this, err)
			return Value{}
		}
		v, err := guard(func() (Value, error) { return prop.invoke(ctx, instance, args, this) })
		if err != nil {
			d.report(exception, callbackCallFunction, name, this, err)
			return Value{}
		}
		if v.IsEmpty() {
			return Undefined()
		}
		return v
	}
}

// =============================================================================
// DYNAMIC PROPERTY TRAMPOLINES
// =============================================================================

func (d *dispatcher) dynamic(object Object) (DynamicProperties, error) {
	instance, err := d.instance(object)
	if err != nil {
		return nil, err
	}
	dp, ok := instance.(DynamicProperties)
	if !ok {
		return nil, fmt.Errorf("%w: %T has no dynamic properties", ErrInstanceType, instance)
	}
	return dp, nil
}

func (d *dispatcher) hasProperty(ctx Context, object Object, name string) bool {
	dp, err := d.dynamic(object)
	if err != nil {
		return false
	}
	has, err := guard(func() (bool, error) { return dp.HasProperty(ctx, name), nil })
	if err != nil {
		d.report(nil, callbackHasProperty, name, object, err)
		return false
	}
	return has
}

func (d *dispatcher) getProperty(ctx Context, object Object, name string, exception *Value) Value {
	dp, err := d.dynamic(object)
	if err != nil {
		return Value{}
	}
	type result struct {
		v       Value
		handled bool
	}
	res, err := guard(func() (result, error) {
		v, handled, err := dp.GetProperty(ctx, name)
		return result{v, handled}, err
	})
	if err != nil {
		d.report(exception, callbackGetProperty, name, object, err)
		return Value{}
	}
	if !res.handled {
		return Value{}
	}
	if res.v.IsEmpty() {
		return Undefined()
	}
	return res.v
}

func (d *dispatcher) setProperty(ctx Context, object Object, name string, value Value, exception *Value) bool {
	dp, err := d.dynamic(object)
	if err != nil {
		return false
	}
	handled, err := guard(func() (bool, error) { return dp.SetProperty(ctx, name, value) })
	if err != nil {
		d.report(exception, callbackSetProperty, name, object, err)
		return false
	}
	return handled
}

func (d *dispatcher) deleteProperty(ctx Context, object Object, name string, exception *Value) bool {
	dp, err := d.dynamic(object)
	if err != nil {
		return false
	}
	handled, err := guard(func() (bool, error) { return dp.DeleteProperty(ctx, name) })
	if err != nil {
		d.report(exception, callbackDeleteProperty, name, object, err)
		return false
	}
	return handled
}

func (d *dispatcher) getPropertyNames(ctx Context, object Object) []string {
	dp, err := d.dynamic(object)
	if err != nil {
		return nil
	}
	names, err := guard(func() ([]string, error) { return dp.PropertyNames(ctx), nil })
	if err != nil {
		d.report(nil, callbackGetPropertyNames, "", object, err)
		return nil
	}
	return names
}

// =============================================================================
// META TRAMPOLINES
// =============================================================================

func (d *dispatcher) callAsFunction(ctx Context, function Object, this Object, args []Value, exception *Value) Value {
	call := d.desc.callbacks.callAsFunction
	if call == nil {
		d.invariant(callbackCallAsFunction, "")
	}
	instance, err := d.instance(function)
	if err != nil {
		d.report(exception, callbackCallAsFunction, "", function, err)
		return Value{}
	}
	v, err := guard(func() (Value, error) { return call(ctx, instance, this, args) })
	if err != nil {
		d.report(exception, callbackCallAsFunction, "", function, err)
		return Value{}
	}
	if v.IsEmpty() {
		return Undefined()
	}
	return v
}

// callAsConstructor creates a new object of the class, builds its instance from
// args and swaps it in for the placeholder attached by initialize. The
// placeholder is deleted exactly once: by the swap, or right away when the
// constructor fails.
func (d *dispatcher) callAsConstructor(ctx Context, constructor Object, args []Value, exception *Value) Object {
	construct := d.desc.callbacks.callAsConstructor
	if construct == nil {
		d.invariant(callbackCallAsConstructor, "")
	}
	object, err := ctx.NewObject(d.desc.class)
	if err != nil {
		d.report(exception, callbackCallAsConstructor, "", constructor, err)
		return nil
	}
	instance, err := guard(func() (any, error) { return construct(ctx, args) })
	if err != nil {
		d.lifecycle.Release(object)
		d.report(exception, callbackCallAsConstructor, "", constructor, err)
		return nil
	}
	if _, err := d.lifecycle.Replace(object, instance); err != nil {
		d.lifecycle.Release(object)
		d.report(exception, callbackCallAsConstructor, "", constructor, err)
		return nil
	}
	return object
}

// hasInstance answers instanceof. Candidates that are not objects or carry no
// instance are never instances.
func (d *dispatcher) hasInstance(ctx Context, constructor Object, candidate Value, exception *Value) bool {
	check := d.desc.callbacks.hasInstance
	if check == nil {
		d.invariant(callbackHasInstance, "")
	}
	object, ok := candidate.ToObject()
	if !ok {
		return false
	}
	candidateInstance, ok := d.lifecycle.CurrentInstance(object)
	if !ok {
		return false
	}
	is, err := guard(func() (bool, error) { return check(ctx, candidateInstance) })
	if err != nil {
		d.report(exception, callbackHasInstance, "", constructor, err)
		return false
	}
	return is
}

// convertToType returns undefined to defer to the default conversion.
func (d *dispatcher) convertToType(ctx Context, object Object, typ Type, exception *Value) Value {
	convert := d.desc.callbacks.convertToType
	if convert == nil {
		return Undefined()
	}
	instance, ok := d.lifecycle.CurrentInstance(object)
	if !ok {
		return Undefined()
	}
	type result struct {
		v       Value
		handled bool
	}
	res, err := guard(func() (result, error) {
		v, handled, err := convert(ctx, instance, typ)
		return result{v, handled}, err
	})
	if err != nil {
		d.report(exception, callbackConvertToType, "", object, err)
		return Undefined()
	}
	if !res.handled || res.v.IsEmpty() {
		return Undefined()
	}
	return res.v
}
