package jsexport

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// fakeEngine is a minimal engine honoring the ABI rules documented in abi.go.
// It records initialize and finalize calls so tests can check ordering.
type fakeEngine struct {
	mu      sync.Mutex
	classes map[string]*fakeClass
	live    map[*fakeObject]struct{}
	created int
}

var (
	errFakeReadOnly = errors.New("fake: property is read-only")
	errFakeRejected = errors.New("fake: write rejected")
	errFakeNotFound = errors.New("fake: no such property")
)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		classes: make(map[string]*fakeClass),
		live:    make(map[*fakeObject]struct{}),
	}
}

type fakeClass struct {
	def    *ClassDefinition
	parent *fakeClass
}

func (c *fakeClass) Name() string { return c.def.ClassName }

// chain returns the class chain, most-derived first.
func (c *fakeClass) chain() []*fakeClass {
	var out []*fakeClass
	for k := c; k != nil; k = k.parent {
		out = append(out, k)
	}
	return out
}

func (e *fakeEngine) CreateClass(def *ClassDefinition) (ClassRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.classes[def.ClassName]; ok {
		return nil, fmt.Errorf("fake: class %q exists", def.ClassName)
	}
	c := &fakeClass{def: def}
	if def.ParentClass != nil {
		parent, ok := def.ParentClass.(*fakeClass)
		if !ok {
			return nil, errors.New("fake: foreign parent class")
		}
		c.parent = parent
	}
	e.classes[def.ClassName] = c
	return c, nil
}

func (e *fakeEngine) context() *fakeContext {
	return &fakeContext{engine: e}
}

// Live returns the number of objects not yet finalized.
func (e *fakeEngine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Collect finalizes every live object.
func (e *fakeEngine) Collect() {
	e.mu.Lock()
	objects := make([]*fakeObject, 0, len(e.live))
	for o := range e.live {
		objects = append(objects, o)
	}
	e.mu.Unlock()
	for _, o := range objects {
		o.finalize()
	}
}

type fakeContext struct {
	engine *fakeEngine
}

func (c *fakeContext) NewObject(class ClassRef) (Object, error) {
	o := &fakeObject{ctx: c, props: make(map[string]Value)}
	if class == nil {
		return o, nil
	}
	fc, ok := class.(*fakeClass)
	if !ok {
		return nil, errors.New("fake: foreign class")
	}
	o.class = fc

	c.engine.mu.Lock()
	c.engine.live[o] = struct{}{}
	c.engine.created++
	c.engine.mu.Unlock()

	chain := fc.chain()
	for i := len(chain) - 1; i >= 0; i-- {
		if init := chain[i].def.Initialize; init != nil {
			init(c, o)
		}
	}
	return o, nil
}

// construct runs `new class(...args)`.
func (c *fakeContext) construct(class ClassRef, args ...Value) (Object, error) {
	fc := class.(*fakeClass)
	constructor := &fakeObject{ctx: c, props: make(map[string]Value)}
	for _, k := range fc.chain() {
		if k.def.CallAsConstructor == nil {
			continue
		}
		var exception Value
		o := k.def.CallAsConstructor(c, constructor, args, &exception)
		if !exception.IsEmpty() {
			return nil, exception.Err()
		}
		return o, nil
	}
	return nil, errors.New("fake: not a constructor")
}

// instanceOf runs `candidate instanceof class`.
func (c *fakeContext) instanceOf(class ClassRef, candidate Value) (bool, error) {
	fc := class.(*fakeClass)
	constructor := &fakeObject{ctx: c, props: make(map[string]Value)}
	for _, k := range fc.chain() {
		if k.def.HasInstance == nil {
			continue
		}
		var exception Value
		is := k.def.HasInstance(c, constructor, candidate, &exception)
		if !exception.IsEmpty() {
			return false, exception.Err()
		}
		return is, nil
	}
	return false, nil
}

type fakeObject struct {
	ctx       *fakeContext
	class     *fakeClass
	private   uintptr
	props     map[string]Value
	finalized bool
}

func (o *fakeObject) Private() uintptr { return o.private }

func (o *fakeObject) SetPrivate(p uintptr) bool {
	if o.class == nil {
		return false
	}
	o.private = p
	return true
}

func (o *fakeObject) Class() ClassRef {
	if o.class == nil {
		return nil
	}
	return o.class
}

func (o *fakeObject) chain() []*fakeClass {
	if o.class == nil {
		return nil
	}
	return o.class.chain()
}

func (o *fakeObject) Get(name string) (Value, error) {
	for _, k := range o.chain() {
		if sv, ok := k.def.StaticValue(name); ok {
			var exception Value
			v := sv.Get(o.ctx, o, name, &exception)
			if !exception.IsEmpty() {
				return Value{}, exception.Err()
			}
			if !v.IsEmpty() {
				return v, nil
			}
		}
		if _, ok := k.def.StaticFunction(name); ok {
			return ObjectValue(&fakeFunction{fakeObject: fakeObject{ctx: o.ctx, props: map[string]Value{}}, name: name}), nil
		}
	}
	for _, k := range o.chain() {
		if k.def.GetProperty == nil {
			continue
		}
		var exception Value
		v := k.def.GetProperty(o.ctx, o, name, &exception)
		if !exception.IsEmpty() {
			return Value{}, exception.Err()
		}
		if !v.IsEmpty() {
			return v, nil
		}
	}
	if v, ok := o.props[name]; ok {
		return v, nil
	}
	return Undefined(), nil
}

func (o *fakeObject) Set(name string, value Value) error {
	for _, k := range o.chain() {
		sv, ok := k.def.StaticValue(name)
		if !ok {
			continue
		}
		if sv.Attributes.Has(PropertyReadOnly) {
			return errFakeReadOnly
		}
		var exception Value
		accepted := sv.Set(o.ctx, o, name, value, &exception)
		if !exception.IsEmpty() {
			return exception.Err()
		}
		if !accepted {
			return errFakeRejected
		}
		return nil
	}
	for _, k := range o.chain() {
		if _, ok := k.def.StaticFunction(name); ok {
			return errFakeReadOnly
		}
	}
	for _, k := range o.chain() {
		if k.def.SetProperty == nil {
			continue
		}
		var exception Value
		handled := k.def.SetProperty(o.ctx, o, name, value, &exception)
		if !exception.IsEmpty() {
			return exception.Err()
		}
		if handled {
			return nil
		}
	}
	o.props[name] = value
	return nil
}

func (o *fakeObject) Has(name string) bool {
	for _, k := range o.chain() {
		if _, ok := k.def.StaticValue(name); ok {
			return true
		}
		if _, ok := k.def.StaticFunction(name); ok {
			return true
		}
	}
	for _, k := range o.chain() {
		if k.def.HasProperty != nil && k.def.HasProperty(o.ctx, o, name) {
			return true
		}
	}
	_, ok := o.props[name]
	return ok
}

func (o *fakeObject) Delete(name string) (bool, error) {
	for _, k := range o.chain() {
		if sv, ok := k.def.StaticValue(name); ok {
			return !sv.Attributes.Has(PropertyDontDelete), nil
		}
		if sf, ok := k.def.StaticFunction(name); ok {
			return !sf.Attributes.Has(PropertyDontDelete), nil
		}
	}
	for _, k := range o.chain() {
		if k.def.DeleteProperty == nil {
			continue
		}
		var exception Value
		handled := k.def.DeleteProperty(o.ctx, o, name, &exception)
		if !exception.IsEmpty() {
			return false, exception.Err()
		}
		if handled {
			return true, nil
		}
	}
	delete(o.props, name)
	return true, nil
}

func (o *fakeObject) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
	}
	for _, k := range o.chain() {
		for _, sv := range k.def.StaticValues {
			if !sv.Attributes.Has(PropertyDontEnum) {
				add(sv.Name)
			}
		}
		for _, sf := range k.def.StaticFunctions {
			if !sf.Attributes.Has(PropertyDontEnum) {
				add(sf.Name)
			}
		}
		if k.def.GetPropertyNames != nil {
			for _, name := range k.def.GetPropertyNames(o.ctx, o) {
				add(name)
			}
		}
	}
	own := make([]string, 0, len(o.props))
	for name := range o.props {
		own = append(own, name)
	}
	sort.Strings(own)
	for _, name := range own {
		add(name)
	}
	return keys
}

// call invokes the function property name with o as this.
func (o *fakeObject) call(name string, args ...Value) (Value, error) {
	return o.callWith(o, name, args...)
}

func (o *fakeObject) callWith(this Object, name string, args ...Value) (Value, error) {
	for _, k := range o.chain() {
		sf, ok := k.def.StaticFunction(name)
		if !ok {
			continue
		}
		fn := &fakeFunction{fakeObject: fakeObject{ctx: o.ctx, props: map[string]Value{}}, name: name}
		var exception Value
		v := sf.Call(o.ctx, fn, this, args, &exception)
		if !exception.IsEmpty() {
			return Value{}, exception.Err()
		}
		return v, nil
	}
	return Value{}, errFakeNotFound
}

// invoke calls o itself as a function.
func (o *fakeObject) invoke(this Object, args ...Value) (Value, error) {
	for _, k := range o.chain() {
		if k.def.CallAsFunction == nil {
			continue
		}
		var exception Value
		v := k.def.CallAsFunction(o.ctx, o, this, args, &exception)
		if !exception.IsEmpty() {
			return Value{}, exception.Err()
		}
		return v, nil
	}
	return Value{}, errors.New("fake: not a function")
}

// convert converts o to typ, undefined meaning the default conversion.
func (o *fakeObject) convert(typ Type) (Value, error) {
	for _, k := range o.chain() {
		if k.def.ConvertToType == nil {
			continue
		}
		var exception Value
		v := k.def.ConvertToType(o.ctx, o, typ, &exception)
		if !exception.IsEmpty() {
			return Value{}, exception.Err()
		}
		if !v.IsUndefined() {
			return v, nil
		}
	}
	return Undefined(), nil
}

func (o *fakeObject) finalize() {
	if o.finalized || o.class == nil {
		return
	}
	o.finalized = true
	for _, k := range o.chain() {
		if k.def.Finalize != nil {
			k.def.Finalize(o)
		}
	}
	o.ctx.engine.mu.Lock()
	delete(o.ctx.engine.live, o)
	o.ctx.engine.mu.Unlock()
}

type fakeFunction struct {
	fakeObject
	name string
}

func mustObject(t interface{ Fatalf(string, ...any) }, v Value) *fakeObject {
	o, ok := v.ToObject()
	if !ok {
		t.Fatalf("expected object, got %#v", v)
	}
	fo, ok := o.(*fakeObject)
	if !ok {
		t.Fatalf("expected fake object, got %T", o)
	}
	return fo
}
