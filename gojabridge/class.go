package gojabridge

import (
	"github.com/dop251/goja"

	"github.com/buke/jsexport"
)

// jsClass is the goja side of a class definition.
type jsClass struct {
	rt     *Runtime
	def    *jsexport.ClassDefinition
	parent *jsClass

	// proto is the prototype of instances. Classes without an automatic
	// prototype share the prototype of their parent.
	proto *goja.Object
	ctor  *goja.Object
}

func newClass(r *Runtime, def *jsexport.ClassDefinition, parent *jsClass) *jsClass {
	c := &jsClass{rt: r, def: def, parent: parent}
	switch {
	case def.Attributes&jsexport.ClassNoAutomaticPrototype == 0:
		c.proto = r.vm.NewObject()
		if parent != nil {
			_ = c.proto.SetPrototype(parent.proto)
		}
		if def.ConvertToType != nil {
			c.installConversion()
		}
	case parent != nil:
		c.proto = parent.proto
	default:
		c.proto = r.vm.NewObject().Prototype()
	}
	return c
}

func (c *jsClass) Name() string { return c.def.ClassName }

// chain returns the class chain, most-derived first.
func (c *jsClass) chain() []*jsClass {
	var out []*jsClass
	for k := c; k != nil; k = k.parent {
		out = append(out, k)
	}
	return out
}

func (c *jsClass) callable() bool {
	return c.callAsFunction() != nil
}

func (c *jsClass) callAsFunction() jsexport.CallAsFunctionCallback {
	for k := c; k != nil; k = k.parent {
		if k.def.CallAsFunction != nil {
			return k.def.CallAsFunction
		}
	}
	return nil
}

func (c *jsClass) callAsConstructor() jsexport.CallAsConstructorCallback {
	for k := c; k != nil; k = k.parent {
		if k.def.CallAsConstructor != nil {
			return k.def.CallAsConstructor
		}
	}
	return nil
}

func (c *jsClass) hasInstance() jsexport.HasInstanceCallback {
	for k := c; k != nil; k = k.parent {
		if k.def.HasInstance != nil {
			return k.def.HasInstance
		}
	}
	return nil
}

// constructor builds the constructor function on first use.
func (c *jsClass) constructor() *goja.Object {
	if c.ctor != nil {
		return c.ctor
	}
	r := c.rt

	var ctor *goja.Object
	ctor = r.vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		construct := c.callAsConstructor()
		if construct == nil {
			o, err := r.NewObject(c)
			if err != nil {
				panic(r.newError(err))
			}
			return o.(*object).value
		}

		var exception jsexport.Value
		o := construct(r, &plain{rt: r, obj: ctor}, r.fromArgs(call.Arguments), &exception)
		r.throwIf(exception)
		if o == nil {
			panic(r.vm.NewTypeError("%s constructor returned no object", c.Name()))
		}
		obj, ok := r.ToGoja(jsexport.ObjectValue(o)).(*goja.Object)
		if !ok {
			panic(r.vm.NewTypeError("%s constructor returned no object", c.Name()))
		}
		return obj
	}).(*goja.Object)

	_ = ctor.DefineDataProperty("name", r.vm.ToValue(c.Name()), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	if c.def.Attributes&jsexport.ClassNoAutomaticPrototype == 0 {
		_ = ctor.Set("prototype", c.proto)
		_ = c.proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}

	if check := c.hasInstance(); check != nil {
		fn := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			var exception jsexport.Value
			is := check(r, &plain{rt: r, obj: ctor}, r.FromGoja(call.Argument(0)), &exception)
			r.throwIf(exception)
			return r.vm.ToValue(is)
		})
		_ = ctor.DefineDataPropertySymbol(goja.SymHasInstance, fn, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	}

	c.ctor = ctor
	return ctor
}

// installConversion routes ToPrimitive of instances to the convert-to-type
// hooks of the chain. An undefined result falls back to valueOf and toString.
func (c *jsClass) installConversion() {
	r := c.rt
	fn := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		this, _ := call.This.(*goja.Object)
		if this == nil {
			panic(r.vm.NewTypeError("Cannot convert a non-object"))
		}
		typ := jsexport.TypeNumber
		if call.Argument(0).String() == "string" {
			typ = jsexport.TypeString
		}

		if o := r.lookup(this); o != nil {
			for _, k := range o.class.chain() {
				if k.def.ConvertToType == nil {
					continue
				}
				var exception jsexport.Value
				v := k.def.ConvertToType(r, o, typ, &exception)
				r.throwIf(exception)
				if !v.IsEmpty() && !v.IsUndefined() {
					return r.ToGoja(v)
				}
			}
		}
		return r.ordinaryToPrimitive(this, typ)
	})
	_ = c.proto.DefineDataPropertySymbol(goja.SymToPrimitive, fn, goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (r *Runtime) ordinaryToPrimitive(obj *goja.Object, typ jsexport.Type) goja.Value {
	methods := [2]string{"valueOf", "toString"}
	if typ == jsexport.TypeString {
		methods[0], methods[1] = methods[1], methods[0]
	}
	for _, name := range methods {
		fn, ok := goja.AssertFunction(obj.Get(name))
		if !ok {
			continue
		}
		v, err := fn(obj)
		if err != nil {
			panic(err)
		}
		if _, isObject := v.(*goja.Object); !isObject {
			return v
		}
	}
	panic(r.vm.NewTypeError("Cannot convert object to primitive value"))
}
