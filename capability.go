package jsexport

// Capability interfaces a native type may implement. ClassBuilder detects them
// on the instance type and wires the matching ClassDefinition slots, so one Go
// type can expose its whole JavaScript behavior without extra registration.

// DynamicProperties serves properties that are not known at registration time.
// Static value and function properties always take precedence.
type DynamicProperties interface {
	HasProperty(ctx Context, name string) bool
	// GetProperty returns handled == false to let the engine continue the
	// lookup on the prototype chain.
	GetProperty(ctx Context, name string) (value Value, handled bool, err error)
	SetProperty(ctx Context, name string, value Value) (handled bool, err error)
	DeleteProperty(ctx Context, name string) (handled bool, err error)
	PropertyNames(ctx Context) []string
}

// Callable makes objects of the class callable as functions. It is used when
// no SetCallAsFunction callback was given.
type Callable interface {
	CallAsFunction(ctx Context, this Object, args []Value) (Value, error)
}

// Converter customizes conversion to primitive types. It is used when no
// SetConvertToType callback was given. handled == false defers to the
// engine's default conversion.
type Converter interface {
	ConvertToType(ctx Context, typ Type) (value Value, handled bool, err error)
}
