package gojabridge

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/buke/jsexport"
)

// ToGoja converts a bridge value to a goja value. Empty becomes undefined and
// an error value becomes an Error object.
func (r *Runtime) ToGoja(v jsexport.Value) goja.Value {
	switch v.Kind() {
	case jsexport.KindEmpty, jsexport.KindUndefined:
		return goja.Undefined()
	case jsexport.KindNull:
		return goja.Null()
	case jsexport.KindBool:
		return r.vm.ToValue(v.ToBool())
	case jsexport.KindNumber:
		return r.vm.ToValue(v.ToFloat64())
	case jsexport.KindString:
		return r.vm.ToValue(v.ToString())
	case jsexport.KindError:
		return r.newError(v.Err())
	}

	obj, _ := v.ToObject()
	switch o := obj.(type) {
	case *object:
		return o.value
	case *plain:
		return o.obj
	}
	// Objects of another engine are copied.
	copied := r.vm.NewObject()
	for _, key := range obj.Keys() {
		if pv, err := obj.Get(key); err == nil {
			_ = copied.Set(key, r.ToGoja(pv))
		}
	}
	return copied
}

// FromGoja converts a goja value to a bridge value. Class instances keep
// their identity; other objects are wrapped without a private slot.
func (r *Runtime) FromGoja(v goja.Value) jsexport.Value {
	if v == nil || goja.IsUndefined(v) {
		return jsexport.Undefined()
	}
	if goja.IsNull(v) {
		return jsexport.Null()
	}
	if obj, ok := v.(*goja.Object); ok {
		return jsexport.ObjectValue(r.wrap(obj))
	}
	switch x := v.Export().(type) {
	case bool:
		return jsexport.Bool(x)
	case int64:
		return jsexport.Int64(x)
	case float64:
		return jsexport.Float64(x)
	case string:
		return jsexport.String(x)
	default:
		return jsexport.String(v.String())
	}
}

func (r *Runtime) wrap(obj *goja.Object) jsexport.Object {
	if o := r.lookup(obj); o != nil {
		return o
	}
	return &plain{rt: r, obj: obj}
}

// objectOf returns the object behind v, nil for primitives.
func (r *Runtime) objectOf(v goja.Value) jsexport.Object {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return r.wrap(obj)
}

func (r *Runtime) fromArgs(args []goja.Value) []jsexport.Value {
	out := make([]jsexport.Value, len(args))
	for i, arg := range args {
		out[i] = r.FromGoja(arg)
	}
	return out
}

// newError converts a Go error to a throwable value. Errors named TypeError
// become TypeError objects; other errors keep the Go error reachable through
// the exception.
func (r *Runtime) newError(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}
	var thrown *ThrownError
	if errors.As(err, &thrown) {
		return r.ToGoja(thrown.Value)
	}

	name, message := "Error", err.Error()
	var jsErr *jsexport.Error
	if errors.As(err, &jsErr) {
		message = jsErr.Message
		if jsErr.Name != "" {
			name = jsErr.Name
		}
	}
	if name == "TypeError" {
		return r.vm.NewTypeError("%s", message)
	}
	e := r.vm.NewGoError(err)
	_ = e.Set("name", name)
	_ = e.Set("message", message)
	return e
}

// throwIf throws a reported exception into the calling script.
func (r *Runtime) throwIf(exception jsexport.Value) {
	if exception.IsEmpty() {
		return
	}
	panic(r.newError(r.exceptionError(exception)))
}

// ThrownError carries a reported exception that is not an error value.
type ThrownError struct {
	Value jsexport.Value
}

func (e *ThrownError) Error() string {
	return "gojabridge: uncaught " + e.Value.ToString()
}

// exceptionError returns a reported exception as a Go error.
func (r *Runtime) exceptionError(exception jsexport.Value) error {
	if err := exception.Err(); err != nil {
		return err
	}
	return &ThrownError{Value: exception}
}

func isRejection(err error) bool {
	return errors.Is(err, ErrReadOnly) || errors.Is(err, ErrRejected)
}
