package gojabridge

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/buke/jsexport"
)

// object is an instance of a class. Its goja value is a dynamic object, or a
// proxy over a native function when the class chain is callable.
type object struct {
	rt        *Runtime
	class     *jsClass
	value     *goja.Object
	private   uintptr
	finalized bool

	// Own properties added by scripts, in insertion order.
	props map[string]goja.Value
	order []string

	// Function objects of static functions, created on first access so that
	// o.f === o.f holds.
	functions map[string]*goja.Object
}

func newObject(r *Runtime, c *jsClass) *object {
	o := &object{
		rt:        r,
		class:     c,
		props:     make(map[string]goja.Value),
		functions: make(map[string]*goja.Object),
	}
	if c.callable() {
		target := r.vm.ToValue(func(goja.FunctionCall) goja.Value { return goja.Undefined() }).(*goja.Object)
		_ = target.SetPrototype(c.proto)
		o.value = r.vm.ToValue(r.vm.NewProxy(target, o.traps())).(*goja.Object)
	} else {
		o.value = r.vm.NewDynamicObject(dynamic{o})
		_ = o.value.SetPrototype(c.proto)
	}
	return o
}

func (o *object) Private() uintptr { return o.private }

func (o *object) SetPrivate(p uintptr) bool {
	o.private = p
	return true
}

func (o *object) Class() jsexport.ClassRef { return o.class }

// Get reads a property, falling back to the prototype chain.
func (o *object) Get(name string) (jsexport.Value, error) {
	v, err := o.get(name)
	if err != nil {
		return jsexport.Value{}, err
	}
	if v == nil {
		err = o.rt.try(func() { v = o.value.Get(name) })
		if err != nil {
			return jsexport.Value{}, err
		}
	}
	return o.rt.FromGoja(v), nil
}

func (o *object) Set(name string, value jsexport.Value) error {
	return o.set(name, o.rt.ToGoja(value))
}

func (o *object) Has(name string) bool {
	return o.has(name)
}

func (o *object) Delete(name string) (bool, error) {
	return o.delete(name)
}

func (o *object) Keys() []string {
	return o.keys()
}

// =============================================================================
// PROPERTY ROUTING
// =============================================================================

// get resolves an own property: static values and functions first, then the
// get-property hooks, then properties added by scripts. It returns nil when
// the object does not have the property.
func (o *object) get(name string) (goja.Value, error) {
	r := o.rt
	for _, k := range o.class.chain() {
		if sv, ok := k.def.StaticValue(name); ok {
			var exception jsexport.Value
			v := sv.Get(r, o, name, &exception)
			if !exception.IsEmpty() {
				return nil, r.exceptionError(exception)
			}
			if !v.IsEmpty() {
				return r.ToGoja(v), nil
			}
		}
		if sf, ok := k.def.StaticFunction(name); ok {
			return o.function(name, sf), nil
		}
	}
	for _, k := range o.class.chain() {
		if k.def.GetProperty == nil {
			continue
		}
		var exception jsexport.Value
		v := k.def.GetProperty(r, o, name, &exception)
		if !exception.IsEmpty() {
			return nil, r.exceptionError(exception)
		}
		if !v.IsEmpty() {
			return r.ToGoja(v), nil
		}
	}
	return o.props[name], nil
}

func (o *object) set(name string, value goja.Value) error {
	r := o.rt
	for _, k := range o.class.chain() {
		sv, ok := k.def.StaticValue(name)
		if !ok {
			continue
		}
		if sv.Attributes.Has(jsexport.PropertyReadOnly) {
			return fmt.Errorf("%w: %s.%s", ErrReadOnly, o.class.Name(), name)
		}
		var exception jsexport.Value
		accepted := sv.Set(r, o, name, r.FromGoja(value), &exception)
		if !exception.IsEmpty() {
			return r.exceptionError(exception)
		}
		if !accepted {
			return fmt.Errorf("%w: %s.%s", ErrRejected, o.class.Name(), name)
		}
		return nil
	}
	for _, k := range o.class.chain() {
		if _, ok := k.def.StaticFunction(name); ok {
			return fmt.Errorf("%w: %s.%s", ErrReadOnly, o.class.Name(), name)
		}
	}
	for _, k := range o.class.chain() {
		if k.def.SetProperty == nil {
			continue
		}
		var exception jsexport.Value
		handled := k.def.SetProperty(r, o, name, r.FromGoja(value), &exception)
		if !exception.IsEmpty() {
			return r.exceptionError(exception)
		}
		if handled {
			return nil
		}
	}
	if _, exists := o.props[name]; !exists {
		o.order = append(o.order, name)
	}
	o.props[name] = value
	return nil
}

func (o *object) has(name string) bool {
	for _, k := range o.class.chain() {
		if _, ok := k.def.StaticValue(name); ok {
			return true
		}
		if _, ok := k.def.StaticFunction(name); ok {
			return true
		}
	}
	for _, k := range o.class.chain() {
		if k.def.HasProperty != nil && k.def.HasProperty(o.rt, o, name) {
			return true
		}
	}
	_, ok := o.props[name]
	return ok
}

func (o *object) delete(name string) (bool, error) {
	r := o.rt
	for _, k := range o.class.chain() {
		if sv, ok := k.def.StaticValue(name); ok {
			return !sv.Attributes.Has(jsexport.PropertyDontDelete), nil
		}
		if sf, ok := k.def.StaticFunction(name); ok {
			return !sf.Attributes.Has(jsexport.PropertyDontDelete), nil
		}
	}
	for _, k := range o.class.chain() {
		if k.def.DeleteProperty == nil {
			continue
		}
		var exception jsexport.Value
		handled := k.def.DeleteProperty(r, o, name, &exception)
		if !exception.IsEmpty() {
			return false, r.exceptionError(exception)
		}
		if handled {
			return true, nil
		}
	}
	if _, ok := o.props[name]; ok {
		delete(o.props, name)
		for i, n := range o.order {
			if n == name {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}
	return true, nil
}

// keys lists enumerable static properties, hook-provided names and script
// properties, without duplicates.
func (o *object) keys() []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
	}
	for _, k := range o.class.chain() {
		for _, sv := range k.def.StaticValues {
			if !sv.Attributes.Has(jsexport.PropertyDontEnum) {
				add(sv.Name)
			}
		}
		for _, sf := range k.def.StaticFunctions {
			if !sf.Attributes.Has(jsexport.PropertyDontEnum) {
				add(sf.Name)
			}
		}
		if k.def.GetPropertyNames != nil {
			for _, name := range k.def.GetPropertyNames(o.rt, o) {
				add(name)
			}
		}
	}
	for _, name := range o.order {
		add(name)
	}
	return keys
}

// function returns the function object of a static function.
func (o *object) function(name string, sf jsexport.StaticFunction) *goja.Object {
	if fn, ok := o.functions[name]; ok {
		return fn
	}
	r := o.rt
	var fn *goja.Object
	fn = r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		var exception jsexport.Value
		v := sf.Call(r, &plain{rt: r, obj: fn}, r.objectOf(call.This), r.fromArgs(call.Arguments), &exception)
		r.throwIf(exception)
		return r.ToGoja(v)
	}).(*goja.Object)
	_ = fn.DefineDataProperty("name", r.vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	o.functions[name] = fn
	return fn
}

// call runs the call-as-function hook of the chain.
func (o *object) call(this goja.Value, args []goja.Value) goja.Value {
	r := o.rt
	call := o.class.callAsFunction()
	if call == nil {
		panic(r.vm.NewTypeError("%s is not a function", o.class.Name()))
	}
	var exception jsexport.Value
	v := call(r, o, r.objectOf(this), r.fromArgs(args), &exception)
	r.throwIf(exception)
	return r.ToGoja(v)
}

// finalize runs the finalize hooks, most-derived first, exactly once.
func (o *object) finalize() bool {
	if o.finalized {
		return false
	}
	o.finalized = true
	for _, k := range o.class.chain() {
		if k.def.Finalize != nil {
			k.def.Finalize(o)
		}
	}
	o.rt.forget(o)
	return true
}

// =============================================================================
// GOJA ADAPTERS
// =============================================================================

// dynamic adapts an object to goja.DynamicObject. Failures are thrown as
// JavaScript exceptions.
type dynamic struct {
	o *object
}

func (d dynamic) Get(key string) goja.Value {
	v, err := d.o.get(key)
	if err != nil {
		panic(d.o.rt.newError(err))
	}
	return v
}

func (d dynamic) Set(key string, val goja.Value) bool {
	return d.o.assign(key, val)
}

func (d dynamic) Has(key string) bool {
	return d.o.has(key)
}

func (d dynamic) Delete(key string) bool {
	ok, err := d.o.delete(key)
	if err != nil {
		panic(d.o.rt.newError(err))
	}
	return ok
}

func (d dynamic) Keys() []string {
	return d.o.keys()
}

// assign is a script assignment. Rejected writes report false, which goja
// turns into a TypeError in strict mode code.
func (o *object) assign(key string, val goja.Value) bool {
	err := o.set(key, val)
	switch {
	case err == nil:
		return true
	case isRejection(err):
		if o.rt.strictSetters {
			panic(o.rt.vm.NewTypeError("Cannot assign to property '%s' of %s: %v", key, o.class.Name(), err))
		}
		return false
	default:
		panic(o.rt.newError(err))
	}
}

// traps routes a proxy over a native function to the object.
func (o *object) traps() *goja.ProxyTrapConfig {
	return &goja.ProxyTrapConfig{
		Get: func(target *goja.Object, property string, receiver goja.Value) goja.Value {
			v, err := o.get(property)
			if err != nil {
				panic(o.rt.newError(err))
			}
			if v == nil {
				return target.Get(property)
			}
			return v
		},
		Set: func(target *goja.Object, property string, value goja.Value, receiver goja.Value) bool {
			return o.assign(property, value)
		},
		Has: func(target *goja.Object, property string) bool {
			return o.has(property) || target.Get(property) != nil
		},
		DeleteProperty: func(target *goja.Object, property string) bool {
			return dynamic{o}.Delete(property)
		},
		OwnKeys: func(target *goja.Object) *goja.Object {
			keys := o.keys()
			items := make([]any, len(keys))
			for i, k := range keys {
				items[i] = k
			}
			return o.rt.vm.NewArray(items...)
		},
		GetOwnPropertyDescriptor: func(target *goja.Object, prop string) goja.PropertyDescriptor {
			if !o.has(prop) {
				return goja.PropertyDescriptor{}
			}
			v, err := o.get(prop)
			if err != nil {
				panic(o.rt.newError(err))
			}
			if v == nil {
				v = goja.Undefined()
			}
			// Configurable stays true: the target has no such property, and a
			// proxy may not report it non-configurable.
			attrs := o.attributes(prop)
			return goja.PropertyDescriptor{
				Value:        v,
				Writable:     flag(!attrs.Has(jsexport.PropertyReadOnly)),
				Configurable: goja.FLAG_TRUE,
				Enumerable:   flag(!attrs.Has(jsexport.PropertyDontEnum)),
			}
		},
		Apply: func(target *goja.Object, this goja.Value, args []goja.Value) goja.Value {
			return o.call(this, args)
		},
	}
}

// attributes returns the attributes of a static property, none for hook and
// script properties.
func (o *object) attributes(name string) jsexport.PropertyAttributes {
	for _, k := range o.class.chain() {
		if sv, ok := k.def.StaticValue(name); ok {
			return sv.Attributes
		}
		if sf, ok := k.def.StaticFunction(name); ok {
			return sf.Attributes
		}
	}
	return jsexport.PropertyNone
}

func flag(b bool) goja.Flag {
	if b {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

// plain is an ordinary engine object, such as a function or an object
// created by a script. It has no private slot.
type plain struct {
	rt  *Runtime
	obj *goja.Object
}

func (p *plain) Private() uintptr         { return 0 }
func (p *plain) SetPrivate(uintptr) bool  { return false }
func (p *plain) Class() jsexport.ClassRef { return nil }

func (p *plain) Get(name string) (v jsexport.Value, err error) {
	err = p.rt.try(func() { v = p.rt.FromGoja(p.obj.Get(name)) })
	return v, err
}

func (p *plain) Set(name string, value jsexport.Value) error {
	return p.obj.Set(name, p.rt.ToGoja(value))
}

func (p *plain) Has(name string) (has bool) {
	_ = p.rt.try(func() { has = p.obj.Get(name) != nil })
	return has
}

func (p *plain) Delete(name string) (bool, error) {
	if err := p.obj.Delete(name); err != nil {
		return false, err
	}
	return true, nil
}

func (p *plain) Keys() []string { return p.obj.Keys() }
