package jsexport

import (
	"fmt"
	"reflect"
	"strings"
)

// =============================================================================
// REFLECTION-BASED CLASS BINDING
// =============================================================================

// ReflectOptions configures automatic class binding behavior
type ReflectOptions struct {
	// MethodPrefix filters methods by prefix (empty = all methods)
	MethodPrefix string

	// IgnoredMethods lists method names to skip during binding
	IgnoredMethods []string

	// IgnoredFields lists field names to skip during binding
	IgnoredFields []string
}

// ReflectOption configures ReflectOptions using functional options pattern
type ReflectOption func(*ReflectOptions)

// WithMethodPrefix filters methods by name prefix
func WithMethodPrefix(prefix string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.MethodPrefix = prefix
	}
}

// WithIgnoredMethods specifies method names to skip during binding
func WithIgnoredMethods(methods ...string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.IgnoredMethods = append(opts.IgnoredMethods, methods...)
	}
}

// WithIgnoredFields specifies field names to skip during binding
func WithIgnoredFields(fields ...string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.IgnoredFields = append(opts.IgnoredFields, fields...)
	}
}

var (
	contextType = reflect.TypeOf((*Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// BindClass binds the struct type T and builds the class with reg.
func BindClass[T any](reg *Registry, name string, options ...ReflectOption) (*ClassDescriptor, error) {
	builder, err := BindClassBuilder[T](name, options...)
	if err != nil {
		return nil, err
	}
	return builder.Build(reg)
}

// BindClassBuilder creates a ClassBuilder for the struct type T using
// reflection. An empty name uses the type name. The returned builder can be
// customized further before Build.
//
// Exported fields become value properties named by their "js" or "json" tag;
// `js:",readonly"` drops the setter. Exported methods of *T become function
// properties: JavaScript arguments are unmarshaled into the parameters, a
// leading Context parameter receives the calling context and a trailing error
// result fails the call. The class gets a constructor taking either positional
// field values or a single object of named fields, and the default instanceof
// check.
//
// Example usage:
//
//	builder, err := jsexport.BindClassBuilder[Point]("")
//	if err != nil { return err }
//	desc, err := builder.Method("norm", normFunc).Build(reg)
func BindClassBuilder[T any](name string, options ...ReflectOption) (*ClassBuilder[*T], error) {
	opts := &ReflectOptions{}
	for _, option := range options {
		option(opts)
	}

	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct type", ErrInvalidArgument, typ)
	}
	if name == "" {
		name = typ.Name()
	}
	if name == "" {
		return nil, fmt.Errorf("%w: cannot determine class name from anonymous type", ErrInvalidArgument)
	}

	builder := NewClassBuilder[*T](name)
	builder.SetConstructor(func(ctx Context, args []Value) (*T, error) {
		instance := new(T)
		if err := initializeFromArgs(instance, args); err != nil {
			return nil, fmt.Errorf("constructor initialization failed: %w", err)
		}
		return instance, nil
	})
	builder.SetHasInstance(nil)

	if err := addReflectionProperties(builder, typ, opts); err != nil {
		return nil, fmt.Errorf("failed to add properties: %w", err)
	}
	if err := addReflectionMethods(builder, typ, opts); err != nil {
		return nil, fmt.Errorf("failed to add methods: %w", err)
	}
	return builder, nil
}

// initializeFromArgs picks named mode for a single object argument and
// positional mode otherwise.
func initializeFromArgs(instance any, args []Value) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) == 1 && args[0].IsObject() {
		return unmarshalStruct(args[0], reflect.ValueOf(instance).Elem())
	}
	return initializeFromPositionalArgs(instance, args)
}

// initializeFromPositionalArgs assigns arguments to exported fields in order
func initializeFromPositionalArgs(instance any, args []Value) error {
	val := reflect.ValueOf(instance).Elem()
	typ := val.Type()

	argIndex := 0
	for i := 0; i < typ.NumField() && argIndex < len(args); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if _, _, skip := fieldName(field); skip {
			continue
		}
		if err := unmarshal(args[argIndex], val.Field(i)); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
		argIndex++
	}
	return nil
}

// addReflectionProperties scans struct fields and adds them as value properties
func addReflectionProperties[T any](builder *ClassBuilder[*T], typ reflect.Type, opts *ReflectOptions) error {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() || contains(opts.IgnoredFields, field.Name) {
			continue
		}
		propName, readOnly, skip := fieldName(field)
		if skip {
			continue
		}

		index := field.Index
		getter := func(ctx Context, instance *T) (Value, error) {
			fv := reflect.ValueOf(instance).Elem().FieldByIndex(index)
			return marshal(ctx, fv)
		}
		var setter SetterFunc[*T]
		if !readOnly {
			setter = func(ctx Context, instance *T, value Value) (bool, error) {
				fv := reflect.ValueOf(instance).Elem().FieldByIndex(index)
				tmp := reflect.New(fv.Type())
				if err := unmarshal(value, tmp.Elem()); err != nil {
					return false, fmt.Errorf("field %s: %w", field.Name, err)
				}
				fv.Set(tmp.Elem())
				return true, nil
			}
		}
		if err := builder.AddValueProperty(propName, getter, setter); err != nil {
			return err
		}
	}
	return nil
}

// addReflectionMethods scans the methods of *T and adds them as function
// properties
func addReflectionMethods[T any](builder *ClassBuilder[*T], typ reflect.Type, opts *ReflectOptions) error {
	ptrTyp := reflect.PointerTo(typ)
	for i := 0; i < ptrTyp.NumMethod(); i++ {
		method := ptrTyp.Method(i)
		if opts.MethodPrefix != "" && !strings.HasPrefix(method.Name, opts.MethodPrefix) {
			continue
		}
		if contains(opts.IgnoredMethods, method.Name) || isSpecialMethod(method.Name) {
			continue
		}
		if err := builder.AddFunctionProperty(method.Name, createMethodWrapper[T](method)); err != nil {
			return err
		}
	}
	return nil
}

// createMethodWrapper adapts a reflected method of *T to a MethodFunc
func createMethodWrapper[T any](method reflect.Method) MethodFunc[*T] {
	return func(ctx Context, instance *T, args []Value, this Object) (Value, error) {
		if instance == nil {
			return Value{}, ErrNoInstance
		}
		methodArgs, err := convertArgs(ctx, method.Type, args)
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", method.Name, err)
		}
		results := reflect.ValueOf(instance).Method(method.Index).Call(methodArgs)
		return convertMethodResults(ctx, results)
	}
}

// convertArgs converts JavaScript arguments to method arguments. Missing
// arguments get zero values.
func convertArgs(ctx Context, methodType reflect.Type, args []Value) ([]reflect.Value, error) {
	// In(0) is the receiver
	in := make([]reflect.Value, 0, methodType.NumIn()-1)
	first := 1
	if methodType.NumIn() > 1 && methodType.In(1) == contextType {
		in = append(in, reflect.ValueOf(&ctx).Elem())
		first = 2
	}

	numArgs := methodType.NumIn() - first
	if methodType.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic methods", ErrUnsupportedType)
	}
	if len(args) > numArgs {
		return nil, fmt.Errorf("%w: too many arguments: expected %d, got %d", ErrInvalidArgument, numArgs, len(args))
	}
	for i := 0; i < numArgs; i++ {
		argType := methodType.In(first + i)
		argValue := reflect.New(argType).Elem()
		if i < len(args) {
			if err := unmarshal(args[i], argValue); err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
		}
		in = append(in, argValue)
	}
	return in, nil
}

// convertMethodResults converts method results to a Value. A trailing non-nil
// error fails the call.
func convertMethodResults(ctx Context, results []reflect.Value) (Value, error) {
	if n := len(results); n > 0 && results[n-1].Type() == errorType {
		if err, _ := results[n-1].Interface().(error); err != nil {
			return Value{}, err
		}
		results = results[:n-1]
	}

	switch len(results) {
	case 0:
		return Undefined(), nil
	case 1:
		return marshal(ctx, results[0])
	default:
		values := make([]any, len(results))
		for i, result := range results {
			values[i] = result.Interface()
		}
		return Marshal(ctx, values)
	}
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// isSpecialMethod reports whether a method belongs to a fmt, marshaling or
// capability interface rather than the class surface.
func isSpecialMethod(name string) bool {
	specialMethods := []string{
		"String",
		"Error",
		"GoString",
		"Format",
		"Finalize",
		"MarshalJS",
		"UnmarshalJS",
		"HasProperty",
		"GetProperty",
		"SetProperty",
		"DeleteProperty",
		"PropertyNames",
		"CallAsFunction",
		"ConvertToType",
	}
	return contains(specialMethods, name)
}
