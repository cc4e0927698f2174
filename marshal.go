// marshal.go
package jsexport

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Marshaler is the interface implemented by types that can marshal themselves into a Value.
type Marshaler interface {
	MarshalJS(ctx Context) (Value, error)
}

// Unmarshaler is the interface implemented by types that can unmarshal a Value into themselves.
type Unmarshaler interface {
	UnmarshalJS(v Value) error
}

var (
	valueType  = reflect.TypeOf(Value{})
	objectType = reflect.TypeOf((*Object)(nil)).Elem()
)

// Marshal returns the Value encoding of v.
//
// Marshal uses the following type mappings:
//   - nil -> null
//   - bool -> boolean
//   - signed and unsigned integers, floats -> number
//   - string -> string
//   - Value -> itself, Object -> object
//   - slice/array -> array-like object with a length property
//   - map with string keys, struct -> plain object
//   - pointer -> recursively marshal the pointed value (nil becomes null)
//
// Struct fields use the "js" tag, then the "json" tag, then the field name.
// Fields tagged "-" are skipped. Objects are created with ctx.NewObject(nil);
// scalar values need no context.
func Marshal(ctx Context, v any) (Value, error) {
	if v == nil {
		return Null(), nil
	}
	return marshal(ctx, reflect.ValueOf(v))
}

func marshal(ctx Context, rv reflect.Value) (Value, error) {
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Null(), nil
		}
		rv = rv.Elem()
	}

	if rv.Type() == valueType {
		return rv.Interface().(Value), nil
	}
	if rv.CanInterface() {
		switch x := rv.Interface().(type) {
		case Marshaler:
			if rv.Kind() == reflect.Pointer && rv.IsNil() {
				return Null(), nil
			}
			return x.MarshalJS(ctx)
		case Object:
			return ObjectValue(x), nil
		}
	}

	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return marshal(ctx, rv.Elem())

	case reflect.Bool:
		return Bool(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int64(rv.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Float64(float64(rv.Uint())), nil

	case reflect.Float32, reflect.Float64:
		return Float64(rv.Float()), nil

	case reflect.String:
		return String(rv.String()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return Null(), nil
		}
		return marshalList(ctx, rv)

	case reflect.Array:
		return marshalList(ctx, rv)

	case reflect.Map:
		if rv.IsNil() {
			return Null(), nil
		}
		return marshalMap(ctx, rv)

	case reflect.Struct:
		return marshalStruct(ctx, rv)

	default:
		return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedType, rv.Type())
	}
}

func newPlainObject(ctx Context) (Object, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: marshaling objects needs a context", ErrInvalidArgument)
	}
	return ctx.NewObject(nil)
}

// marshalList marshals a slice or array to an array-like object
func marshalList(ctx Context, rv reflect.Value) (Value, error) {
	obj, err := newPlainObject(ctx)
	if err != nil {
		return Value{}, err
	}
	for i := 0; i < rv.Len(); i++ {
		val, err := marshal(ctx, rv.Index(i))
		if err != nil {
			return Value{}, fmt.Errorf("index %d: %w", i, err)
		}
		if err := obj.Set(strconv.Itoa(i), val); err != nil {
			return Value{}, err
		}
	}
	if err := obj.Set("length", Int64(int64(rv.Len()))); err != nil {
		return Value{}, err
	}
	return ObjectValue(obj), nil
}

// marshalMap marshals a map with string keys to a plain object
func marshalMap(ctx Context, rv reflect.Value) (Value, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return Value{}, fmt.Errorf("%w: map key %v", ErrUnsupportedType, rv.Type().Key())
	}
	obj, err := newPlainObject(ctx)
	if err != nil {
		return Value{}, err
	}
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		val, err := marshal(ctx, iter.Value())
		if err != nil {
			return Value{}, fmt.Errorf("key %q: %w", key, err)
		}
		if err := obj.Set(key, val); err != nil {
			return Value{}, err
		}
	}
	return ObjectValue(obj), nil
}

// marshalStruct marshals a struct to a plain object
func marshalStruct(ctx Context, rv reflect.Value) (Value, error) {
	obj, err := newPlainObject(ctx)
	if err != nil {
		return Value{}, err
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, skip := fieldName(field)
		if skip {
			continue
		}
		val, err := marshal(ctx, rv.Field(i))
		if err != nil {
			return Value{}, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if err := obj.Set(name, val); err != nil {
			return Value{}, err
		}
	}
	return ObjectValue(obj), nil
}

// fieldName resolves the property name of a struct field from its "js" or
// "json" tag. The "readonly" option is only honored on "js" tags.
func fieldName(field reflect.StructField) (name string, readOnly bool, skip bool) {
	name = field.Name
	tag, ok := field.Tag.Lookup("js")
	fromJS := ok
	if !ok {
		tag, ok = field.Tag.Lookup("json")
	}
	if !ok {
		return name, false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	if fromJS {
		for _, opt := range parts[1:] {
			if opt == "readonly" {
				readOnly = true
			}
		}
	}
	return name, readOnly, false
}

// Unmarshal stores the Go representation of v in the value pointed to by
// target. It applies the inverse of Marshal's mappings.
//
// When unmarshaling into an interface{}, Unmarshal stores one of:
//   - nil for null/undefined
//   - bool, float64 or string for primitives
//   - Object for objects
func Unmarshal(v Value, target any) error {
	rv := reflect.ValueOf(target)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: unmarshal target must be a non-nil pointer", ErrInvalidArgument)
	}
	return unmarshal(v, rv.Elem())
}

func unmarshal(v Value, rv reflect.Value) error {
	if v.IsError() {
		return v.Err()
	}
	if rv.CanAddr() {
		if u, ok := rv.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalJS(v)
		}
	}

	switch rv.Type() {
	case valueType:
		rv.Set(reflect.ValueOf(v))
		return nil
	case objectType:
		if v.IsNullish() || v.IsEmpty() {
			rv.Set(reflect.Zero(objectType))
			return nil
		}
		o, ok := v.ToObject()
		if !ok {
			return mismatch(v, rv.Type())
		}
		rv.Set(reflect.ValueOf(o))
		return nil
	}

	if rv.Kind() == reflect.Pointer {
		if v.IsNullish() || v.IsEmpty() {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return unmarshal(v, rv.Elem())
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.NumMethod() != 0 {
			return mismatch(v, rv.Type())
		}
		if g := goValue(v); g != nil {
			rv.Set(reflect.ValueOf(g))
		} else {
			rv.Set(reflect.Zero(rv.Type()))
		}

	case reflect.Bool:
		if !v.IsBool() {
			return mismatch(v, rv.Type())
		}
		rv.SetBool(v.ToBool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !v.IsNumber() {
			return mismatch(v, rv.Type())
		}
		n := v.ToFloat64()
		if n != math.Trunc(n) || n >= 1<<63 || n < -1<<63 || rv.OverflowInt(int64(n)) {
			return fmt.Errorf("%w: %v overflows %v", ErrUnsupportedType, n, rv.Type())
		}
		rv.SetInt(int64(n))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if !v.IsNumber() {
			return mismatch(v, rv.Type())
		}
		n := v.ToFloat64()
		if n < 0 || n != math.Trunc(n) || n >= 1<<64 || rv.OverflowUint(uint64(n)) {
			return fmt.Errorf("%w: %v overflows %v", ErrUnsupportedType, n, rv.Type())
		}
		rv.SetUint(uint64(n))

	case reflect.Float32, reflect.Float64:
		if !v.IsNumber() {
			return mismatch(v, rv.Type())
		}
		rv.SetFloat(v.ToFloat64())

	case reflect.String:
		if !v.IsString() {
			return mismatch(v, rv.Type())
		}
		rv.SetString(v.ToString())

	case reflect.Slice:
		if v.IsNullish() {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		return unmarshalSlice(v, rv)

	case reflect.Map:
		if v.IsNullish() {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		return unmarshalMap(v, rv)

	case reflect.Struct:
		return unmarshalStruct(v, rv)

	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedType, rv.Type())
	}
	return nil
}

func mismatch(v Value, t reflect.Type) error {
	return fmt.Errorf("%w: cannot unmarshal %s into Go %v", ErrUnsupportedType, v.Kind(), t)
}

func goValue(v Value) any {
	switch v.Kind() {
	case KindBool:
		return v.ToBool()
	case KindNumber:
		return v.ToFloat64()
	case KindString:
		return v.ToString()
	case KindObject:
		o, _ := v.ToObject()
		return o
	default:
		return nil
	}
}

func unmarshalSlice(v Value, rv reflect.Value) error {
	obj, ok := v.ToObject()
	if !ok {
		return mismatch(v, rv.Type())
	}
	length, err := obj.Get("length")
	if err != nil {
		return err
	}
	n := int(length.ToInt64())
	if n < 0 {
		n = 0
	}
	slice := reflect.MakeSlice(rv.Type(), n, n)
	for i := 0; i < n; i++ {
		elem, err := obj.Get(strconv.Itoa(i))
		if err != nil {
			return err
		}
		if err := unmarshal(elem, slice.Index(i)); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	rv.Set(slice)
	return nil
}

func unmarshalMap(v Value, rv reflect.Value) error {
	if rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("%w: map key %v", ErrUnsupportedType, rv.Type().Key())
	}
	obj, ok := v.ToObject()
	if !ok {
		return mismatch(v, rv.Type())
	}
	m := reflect.MakeMap(rv.Type())
	for _, key := range obj.Keys() {
		val, err := obj.Get(key)
		if err != nil {
			return err
		}
		elem := reflect.New(rv.Type().Elem()).Elem()
		if err := unmarshal(val, elem); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		m.SetMapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()), elem)
	}
	rv.Set(m)
	return nil
}

func unmarshalStruct(v Value, rv reflect.Value) error {
	obj, ok := v.ToObject()
	if !ok {
		return mismatch(v, rv.Type())
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, skip := fieldName(field)
		if skip || !obj.Has(name) {
			continue
		}
		val, err := obj.Get(name)
		if err != nil {
			return err
		}
		if err := unmarshal(val, rv.Field(i)); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}
