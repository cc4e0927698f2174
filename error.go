package jsexport

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a malformed registration (empty name, missing
	// accessor, inconsistent attributes).
	ErrInvalidArgument = errors.New("jsexport: invalid argument")
	// ErrDuplicateProperty reports a property name added twice to one builder.
	ErrDuplicateProperty = errors.New("jsexport: duplicate property")
	// ErrClassExists reports a class name already registered for another type.
	ErrClassExists = errors.New("jsexport: class name already registered")
	// ErrConstructorPairing reports a constructor without has-instance or the
	// other way round.
	ErrConstructorPairing = errors.New("jsexport: constructor and has-instance must be set together")
	// ErrParentNotBuilt reports a parent descriptor that was never registered.
	ErrParentNotBuilt = errors.New("jsexport: parent class is not registered")
	// ErrNoInstance reports an object without an attached instance.
	ErrNoInstance = errors.New("jsexport: object has no native instance")
	// ErrInstanceAttached reports an attach on an object that already holds a
	// live instance.
	ErrInstanceAttached = errors.New("jsexport: object already holds a native instance")
	// ErrInstanceType reports an instance of an unexpected Go type.
	ErrInstanceType = errors.New("jsexport: native instance has unexpected type")
	// ErrUnsupportedType reports a Go type the marshaler cannot convert.
	ErrUnsupportedType = errors.New("jsexport: unsupported type")
)

// Error represents a JavaScript error reported by a trampoline.
type Error struct {
	Name     string // Error name (e.g., "Error", "TypeError")
	Message  string // Error message
	Class    string // Class whose callback failed
	Callback string // Callback kind, e.g. "getProperty"
	Property string // Property name, empty for lifecycle callbacks
	Cause    error  // Underlying native failure
}

// Error implements the error interface.
func (err *Error) Error() string {
	name := err.Name
	if name == "" {
		name = "Error"
	}
	return fmt.Sprintf("%s: %s", name, err.Message)
}

// Unwrap returns the native failure.
func (err *Error) Unwrap() error {
	return err.Cause
}

// InvariantError is the panic value of a trampoline invoked for a name or slot
// the class never registered. It indicates a broken engine integration.
type InvariantError struct {
	Class    string
	Callback string
	Property string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("jsexport: %s invoked on class %q for unregistered property %q", e.Callback, e.Class, e.Property)
}

// PanicError wraps a value recovered from a panicking native callback.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	switch v := e.Value.(type) {
	case error:
		return v.Error()
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return "unknown native exception"
	}
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
