package jsexport

// =============================================================================
// ENGINE ABI
// =============================================================================

// The types in this file describe the boundary between the bridge and the
// JavaScript engine. The engine implements Engine, Context, Object and ClassRef;
// the bridge fills ClassDefinition with trampolines matching the callback types
// below. Engines must follow these rules:
//
//   - Initialize runs once per object and class, least-derived class first.
//   - Finalize runs once per object and class, most-derived class first. It gets
//     no Context, so it cannot allocate engine objects.
//   - Static values and static functions are consulted before the GetProperty,
//     SetProperty, HasProperty and DeleteProperty hooks.
//   - A non-empty exception written to the out-parameter must be thrown into the
//     calling script; the returned value is then ignored.

// PropertyAttributes is the attribute bitmask of a static value or function.
type PropertyAttributes uint32

const (
	PropertyNone       PropertyAttributes = 0
	PropertyReadOnly   PropertyAttributes = 1 << 1
	PropertyDontEnum   PropertyAttributes = 1 << 2
	PropertyDontDelete PropertyAttributes = 1 << 3
)

// Has reports whether all attributes in a are set.
func (p PropertyAttributes) Has(a PropertyAttributes) bool {
	return p&a == a
}

func (p PropertyAttributes) String() string {
	if p == PropertyNone {
		return "None"
	}
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if p.Has(PropertyReadOnly) {
		add("ReadOnly")
	}
	if p.Has(PropertyDontEnum) {
		add("DontEnum")
	}
	if p.Has(PropertyDontDelete) {
		add("DontDelete")
	}
	return s
}

// ClassAttributes is the attribute bitmask of a class definition.
type ClassAttributes uint32

const (
	ClassNone ClassAttributes = 0
	// ClassNoAutomaticPrototype asks the engine not to create a prototype object
	// for the class.
	ClassNoAutomaticPrototype ClassAttributes = 1 << 1
)

// Type is the target type of a convert-to-type request.
type Type int

const (
	TypeUndefined Type = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}

// Engine registers class definitions.
type Engine interface {
	CreateClass(def *ClassDefinition) (ClassRef, error)
}

// ClassRef is the opaque handle of a registered class.
type ClassRef interface {
	Name() string
}

// Context is an execution context. The bridge passes it through to native
// callbacks and only uses it to create objects.
type Context interface {
	// NewObject creates an object of class, running the initialize chain.
	// A nil class creates a plain object.
	NewObject(class ClassRef) (Object, error)
}

// Object is an engine object handle.
type Object interface {
	// Private returns the private slot of the object, 0 when unset. The
	// bridge reads and writes the slot only under its lifecycle lock, so a
	// plain field is enough.
	Private() uintptr
	// SetPrivate stores p in the private slot. It returns false when the object
	// has no private slot.
	SetPrivate(p uintptr) bool
	// Class returns the most-derived class of the object, nil for plain
	// objects.
	Class() ClassRef

	Get(name string) (Value, error)
	Set(name string, value Value) error
	Has(name string) bool
	Delete(name string) (bool, error)
	Keys() []string
}

// Callback signatures. Each matches one field of ClassDefinition.
type (
	InitializeCallback        func(ctx Context, object Object)
	FinalizeCallback          func(object Object)
	HasPropertyCallback       func(ctx Context, object Object, name string) bool
	GetPropertyCallback       func(ctx Context, object Object, name string, exception *Value) Value
	SetPropertyCallback       func(ctx Context, object Object, name string, value Value, exception *Value) bool
	DeletePropertyCallback    func(ctx Context, object Object, name string, exception *Value) bool
	GetPropertyNamesCallback  func(ctx Context, object Object) []string
	CallAsFunctionCallback    func(ctx Context, function Object, this Object, args []Value, exception *Value) Value
	CallAsConstructorCallback func(ctx Context, constructor Object, args []Value, exception *Value) Object
	HasInstanceCallback       func(ctx Context, constructor Object, candidate Value, exception *Value) bool
	ConvertToTypeCallback     func(ctx Context, object Object, typ Type, exception *Value) Value
)

// StaticValue describes a named value property served by Get and Set.
type StaticValue struct {
	Name       string
	Get        GetPropertyCallback
	Set        SetPropertyCallback
	Attributes PropertyAttributes
}

// StaticFunction describes a named function property.
type StaticFunction struct {
	Name       string
	Call       CallAsFunctionCallback
	Attributes PropertyAttributes
}

// ClassDefinition is the record handed to Engine.CreateClass.
type ClassDefinition struct {
	Version     uint32
	Attributes  ClassAttributes
	ClassName   string
	ParentClass ClassRef

	StaticValues    []StaticValue
	StaticFunctions []StaticFunction

	Initialize        InitializeCallback
	Finalize          FinalizeCallback
	HasProperty       HasPropertyCallback
	GetProperty       GetPropertyCallback
	SetProperty       SetPropertyCallback
	DeleteProperty    DeletePropertyCallback
	GetPropertyNames  GetPropertyNamesCallback
	CallAsFunction    CallAsFunctionCallback
	CallAsConstructor CallAsConstructorCallback
	HasInstance       HasInstanceCallback
	ConvertToType     ConvertToTypeCallback
}

// StaticValue returns the static value named name.
func (def *ClassDefinition) StaticValue(name string) (StaticValue, bool) {
	for _, v := range def.StaticValues {
		if v.Name == name {
			return v, true
		}
	}
	return StaticValue{}, false
}

// StaticFunction returns the static function named name.
func (def *ClassDefinition) StaticFunction(name string) (StaticFunction, bool) {
	for _, f := range def.StaticFunctions {
		if f.Name == name {
			return f, true
		}
	}
	return StaticFunction{}, false
}
