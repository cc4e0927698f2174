package jsexport

import "fmt"

// Type-erased native callbacks stored in descriptors. The generic ClassBuilder
// wraps its typed callbacks into these.
type (
	// ValueGetter reads a value property from instance.
	ValueGetter func(ctx Context, instance any) (Value, error)
	// ValueSetter writes a value property; false rejects the write.
	ValueSetter func(ctx Context, instance any, value Value) (bool, error)
	// FunctionInvoker runs a function property with this bound to the object
	// the function was looked up on.
	FunctionInvoker func(ctx Context, instance any, args []Value, this Object) (Value, error)
)

// ValuePropertyCallback is an immutable named value property.
type ValuePropertyCallback struct {
	name       string
	attributes PropertyAttributes
	getter     ValueGetter
	setter     ValueSetter
}

// NewValuePropertyCallback validates and builds a value property. A property
// without setter is forced ReadOnly; a ReadOnly property must not have a setter.
func NewValuePropertyCallback(name string, attributes PropertyAttributes, getter ValueGetter, setter ValueSetter) (ValuePropertyCallback, error) {
	if name == "" {
		return ValuePropertyCallback{}, fmt.Errorf("%w: empty property name", ErrInvalidArgument)
	}
	if getter == nil {
		return ValuePropertyCallback{}, fmt.Errorf("%w: value property %q has no getter", ErrInvalidArgument, name)
	}
	if setter == nil {
		attributes |= PropertyReadOnly
	} else if attributes.Has(PropertyReadOnly) {
		return ValuePropertyCallback{}, fmt.Errorf("%w: read-only value property %q has a setter", ErrInvalidArgument, name)
	}
	return ValuePropertyCallback{
		name:       name,
		attributes: attributes,
		getter:     getter,
		setter:     setter,
	}, nil
}

func (p ValuePropertyCallback) Name() string                   { return p.name }
func (p ValuePropertyCallback) Attributes() PropertyAttributes { return p.attributes }

// Accessors returns the getter and setter; the setter is nil for read-only
// properties.
func (p ValuePropertyCallback) Accessors() (ValueGetter, ValueSetter) {
	return p.getter, p.setter
}

// Equal compares name and attributes. Accessor identity is ignored.
func (p ValuePropertyCallback) Equal(other ValuePropertyCallback) bool {
	return p.name == other.name && p.attributes == other.attributes
}

// FunctionPropertyCallback is an immutable named function property.
type FunctionPropertyCallback struct {
	name       string
	attributes PropertyAttributes
	invoke     FunctionInvoker
}

// NewFunctionPropertyCallback validates and builds a function property.
// Function properties are always ReadOnly and DontDelete.
func NewFunctionPropertyCallback(name string, attributes PropertyAttributes, invoke FunctionInvoker) (FunctionPropertyCallback, error) {
	if name == "" {
		return FunctionPropertyCallback{}, fmt.Errorf("%w: empty property name", ErrInvalidArgument)
	}
	if invoke == nil {
		return FunctionPropertyCallback{}, fmt.Errorf("%w: function property %q has no implementation", ErrInvalidArgument, name)
	}
	return FunctionPropertyCallback{
		name:       name,
		attributes: attributes | PropertyReadOnly | PropertyDontDelete,
		invoke:     invoke,
	}, nil
}

func (p FunctionPropertyCallback) Name() string                   { return p.name }
func (p FunctionPropertyCallback) Attributes() PropertyAttributes { return p.attributes }
func (p FunctionPropertyCallback) Accessors() FunctionInvoker      { return p.invoke }

// Equal compares name and attributes.
func (p FunctionPropertyCallback) Equal(other FunctionPropertyCallback) bool {
	return p.name == other.name && p.attributes == other.attributes
}

// PropertyOption configures a property added to a ClassBuilder.
type PropertyOption func(*propertyOptions)

type propertyOptions struct {
	enumerable bool
}

// NotEnumerable hides the property from enumeration (DontEnum).
func NotEnumerable() PropertyOption {
	return func(o *propertyOptions) {
		o.enumerable = false
	}
}

// Enumerable sets whether the property shows up in enumeration.
func Enumerable(enumerable bool) PropertyOption {
	return func(o *propertyOptions) {
		o.enumerable = enumerable
	}
}

func applyPropertyOptions(opts []PropertyOption) propertyOptions {
	o := propertyOptions{enumerable: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// valueAttributes computes the attribute set of a value property. Value
// properties live on the class and cannot be deleted from an instance.
func valueAttributes(hasSetter bool, o propertyOptions) PropertyAttributes {
	attrs := PropertyDontDelete
	if !hasSetter {
		attrs |= PropertyReadOnly
	}
	if !o.enumerable {
		attrs |= PropertyDontEnum
	}
	return attrs
}

func functionAttributes(o propertyOptions) PropertyAttributes {
	attrs := PropertyReadOnly | PropertyDontDelete
	if !o.enumerable {
		attrs |= PropertyDontEnum
	}
	return attrs
}
