package jsexport

import (
	"reflect"
	"sort"
)

// Type-erased lifecycle callbacks. A nil field leaves the engine default.
type classCallbacks struct {
	factory           func() (any, error)
	initialize        func(ctx Context, object Object, instance any) error
	finalize          func(instance any) error
	callAsFunction    func(ctx Context, instance any, this Object, args []Value) (Value, error)
	callAsConstructor func(ctx Context, args []Value) (any, error)
	hasInstance       func(ctx Context, candidate any) (bool, error)
	convertToType     func(ctx Context, instance any, typ Type) (Value, bool, error)
	dynamic           bool
}

// ClassDescriptor is the immutable definition of an exported class. It is
// shared by every object of the class and lives as long as its Registry.
type ClassDescriptor struct {
	name         string
	version      uint32
	attributes   ClassAttributes
	parent       *ClassDescriptor
	instanceType reflect.Type
	registry     *Registry

	valueProperties    map[string]ValuePropertyCallback
	functionProperties map[string]FunctionPropertyCallback
	callbacks          classCallbacks

	definition *ClassDefinition
	class      ClassRef
}

func (d *ClassDescriptor) Name() string                { return d.name }
func (d *ClassDescriptor) Version() uint32             { return d.version }
func (d *ClassDescriptor) Attributes() ClassAttributes { return d.attributes }

// Parent returns the parent class descriptor, nil for a root class.
func (d *ClassDescriptor) Parent() *ClassDescriptor { return d.parent }

// InstanceType returns the Go type of the native instances.
func (d *ClassDescriptor) InstanceType() reflect.Type { return d.instanceType }

// Class returns the engine handle of the registered class.
func (d *ClassDescriptor) Class() ClassRef { return d.class }

// Definition returns the definition handed to the engine. Callers must not
// modify it.
func (d *ClassDescriptor) Definition() *ClassDefinition { return d.definition }

// ValueProperty returns the value property named name.
func (d *ClassDescriptor) ValueProperty(name string) (ValuePropertyCallback, bool) {
	p, ok := d.valueProperties[name]
	return p, ok
}

// FunctionProperty returns the function property named name.
func (d *ClassDescriptor) FunctionProperty(name string) (FunctionPropertyCallback, bool) {
	p, ok := d.functionProperties[name]
	return p, ok
}

// ValuePropertyNames returns the value property names in sorted order.
func (d *ClassDescriptor) ValuePropertyNames() []string {
	return sortedKeys(d.valueProperties)
}

// FunctionPropertyNames returns the function property names in sorted order.
func (d *ClassDescriptor) FunctionPropertyNames() []string {
	return sortedKeys(d.functionProperties)
}

// IsA reports whether d is other or derives from it.
func (d *ClassDescriptor) IsA(other *ClassDescriptor) bool {
	for c := d; c != nil; c = c.parent {
		if c == other {
			return true
		}
	}
	return false
}

func (d *ClassDescriptor) HasConstructor() bool   { return d.callbacks.callAsConstructor != nil }
func (d *ClassDescriptor) HasInstanceCheck() bool { return d.callbacks.hasInstance != nil }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
