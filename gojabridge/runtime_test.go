package gojabridge

import (
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/buke/jsexport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Runtime", func() {
	var (
		rt   *Runtime
		reg  *jsexport.Registry
		st   *stats
		logs *observer.ObservedLogs
		desc *jsexport.ClassDescriptor
	)

	run := func(src string) jsexport.Value {
		v, err := rt.RunString(src)
		Expect(err).To(BeNil())
		return v
	}

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		rt = New(WithLogger(logger))
		reg = jsexport.NewRegistry(rt, jsexport.WithLogger(logger))
		st = &stats{}

		var err error
		desc, err = buildCounter(reg, st)
		Expect(err).To(BeNil())
		Expect(rt.Set("Counter", desc.Class())).To(Succeed())
	})

	AfterEach(func() {
		rt.Close()
	})

	Describe("class instances", func() {
		It("dispatches value and function properties", func() {
			v := run(`
				const c = new Counter("hits", 2);
				c.increment();
				c.increment(3);
				c.value`)
			Expect(v.ToFloat64()).To(Equal(float64(6)))

			Expect(run(`c.label`).ToString()).To(Equal("hits"))
			Expect(run(`c.value = 10; c.value`).ToFloat64()).To(Equal(float64(10)))
			Expect(run(`c.increment === c.increment`).ToBool()).To(BeTrue())
			Expect(run(`typeof c.increment`).ToString()).To(Equal("function"))
			Expect(run(`c.increment.name`).ToString()).To(Equal("increment"))
		})

		It("enumerates static properties", func() {
			run(`const c = new Counter()`)
			Expect(run(`Object.keys(c).join(",")`).ToString()).To(Equal("label,value,fail,increment"))
			Expect(run(`"label" in c`).ToBool()).To(BeTrue())
			Expect(run(`"missing" in c`).ToBool()).To(BeFalse())
		})

		It("keeps properties added by scripts", func() {
			v := run(`
				const c = new Counter();
				c.extra = "yes";
				[c.extra, Object.keys(c).indexOf("extra") >= 0, delete c.extra, c.extra].join()`)
			Expect(v.ToString()).To(Equal("yes,true,true,"))
		})

		It("protects read-only and non-deletable properties", func() {
			Expect(run(`
				const c = new Counter("fixed");
				c.label = "changed";
				c.label`).ToString()).To(Equal("fixed"))
			Expect(run(`delete c.label`).ToBool()).To(BeFalse())

			_, err := rt.RunString(`"use strict"; c.label = "changed"`)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("TypeError"))

			// A setter declining the value is a rejected write too.
			Expect(run(`c.value = "nope"; c.value`).ToFloat64()).To(Equal(float64(0)))
		})

		It("uses the prototype chain for everything else", func() {
			Expect(run(`const c = new Counter(); typeof c.toString`).ToString()).To(Equal("function"))
			Expect(run(`Object.getPrototypeOf(c) === Counter.prototype`).ToBool()).To(BeTrue())
			Expect(run(`c.constructor === Counter`).ToBool()).To(BeTrue())
			Expect(run(`Counter.name`).ToString()).To(Equal("Counter"))
		})
	})

	Describe("construction and instanceof", func() {
		It("runs the native constructor", func() {
			v := run(`new Counter("made", 5)`)
			obj, ok := v.ToObject()
			Expect(ok).To(BeTrue())

			c, ok := jsexport.InstanceOf[*counter](reg, obj)
			Expect(ok).To(BeTrue())
			Expect(c.label).To(Equal("made"))
			Expect(c.n).To(Equal(float64(5)))
			Expect(obj.Class().Name()).To(Equal("Counter"))
		})

		It("throws constructor failures", func() {
			v := run(`
				let msg;
				try { new Counter("x", "bad") } catch (e) { msg = e.message }
				msg`)
			Expect(v.ToString()).To(Equal("Counter callAsConstructor: start must be a number"))
			Expect(reg.Lifecycle().Live()).To(Equal(0))
		})

		It("answers instanceof through the native check", func() {
			Expect(run(`new Counter() instanceof Counter`).ToBool()).To(BeTrue())
			Expect(run(`({}) instanceof Counter`).ToBool()).To(BeFalse())
			Expect(run(`5 instanceof Counter`).ToBool()).To(BeFalse())
		})

		It("wraps instances created from Go", func() {
			obj, err := reg.NewObject(rt, desc, &counter{label: "go", n: 41})
			Expect(err).To(BeNil())
			Expect(rt.Set("fromGo", obj)).To(Succeed())

			Expect(run(`fromGo.increment()`).ToFloat64()).To(Equal(float64(42)))
			Expect(run(`fromGo instanceof Counter`).ToBool()).To(BeTrue())

			v, err := obj.Get("label")
			Expect(err).To(BeNil())
			Expect(v.ToString()).To(Equal("go"))
		})
	})

	Describe("native failures", func() {
		It("throws them as JavaScript errors and logs them", func() {
			v := run(`
				const c = new Counter();
				let caught;
				try { c.fail() } catch (e) { caught = e.name + ": " + e.message }
				caught`)
			Expect(v.ToString()).To(Equal("Error: Counter.fail: counter broke"))

			failures := logs.FilterMessage("native callback failed")
			Expect(failures.Len()).To(Equal(1))
			Expect(failures.All()[0].ContextMap()["class"]).To(Equal("Counter"))
			Expect(failures.All()[0].ContextMap()["property"]).To(Equal("fail"))
		})

		It("keeps the Go error reachable from Go", func() {
			_, err := rt.RunString(`new Counter().fail()`)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, errBroke)).To(BeTrue())

			var jsErr *jsexport.Error
			Expect(errors.As(err, &jsErr)).To(BeTrue())
			Expect(jsErr.Property).To(Equal("fail"))
		})

		It("reports methods called on foreign receivers as TypeError", func() {
			v := run(`
				const inc = new Counter().increment;
				let caught;
				try { inc.call({}) } catch (e) { caught = e instanceof TypeError }
				caught`)
			Expect(v.ToBool()).To(BeTrue())
		})
	})

	Describe("finalization", func() {
		It("releases instances exactly once", func() {
			v := run(`new Counter("gone")`)
			obj, _ := v.ToObject()
			Expect(rt.Live()).To(Equal(1))
			Expect(reg.Lifecycle().Live()).To(Equal(1))

			Expect(rt.Release(obj)).To(BeTrue())
			Expect(rt.Release(obj)).To(BeFalse())
			Expect(st.finalized).To(Equal(1))
			Expect(rt.Live()).To(Equal(0))
			Expect(reg.Lifecycle().Live()).To(Equal(0))
		})

		It("releases everything on Close", func() {
			run(`const a = new Counter("a"), b = new Counter("b")`)
			Expect(rt.Live()).To(Equal(2))

			rt.Close()
			Expect(st.finalized).To(Equal(2))
			Expect(rt.Live()).To(Equal(0))
		})

		It("ignores plain objects", func() {
			obj, err := rt.NewObject(nil)
			Expect(err).To(BeNil())
			Expect(rt.Release(obj)).To(BeFalse())
		})
	})

	Describe("class hierarchies", func() {
		It("inherits parent properties and prototypes", func() {
			shapeDesc, err := jsexport.NewClassBuilder[shape]("Shape").
				Method("area", func(_ jsexport.Context, s shape, _ []jsexport.Value, _ jsexport.Object) (jsexport.Value, error) {
					return jsexport.Float64(s.Area()), nil
				}).
				Build(reg)
			Expect(err).To(BeNil())

			squareDesc, err := jsexport.NewClassBuilder[*square]("Square").
				SetParent(shapeDesc).
				ReadOnlyAccessor("side", func(_ jsexport.Context, s *square) (jsexport.Value, error) {
					return jsexport.Float64(s.side), nil
				}).
				SetConstructor(func(_ jsexport.Context, args []jsexport.Value) (*square, error) {
					s := &square{}
					if len(args) > 0 {
						s.side = args[0].ToFloat64()
					}
					return s, nil
				}).
				SetHasInstance(nil).
				Build(reg)
			Expect(err).To(BeNil())

			Expect(rt.Set("Shape", shapeDesc.Class())).To(Succeed())
			Expect(rt.Set("Square", squareDesc.Class())).To(Succeed())

			v := run(`
				const s = new Square(3);
				[s.area(), s.side, s instanceof Square, s instanceof Shape].join()`)
			Expect(v.ToString()).To(Equal("9,3,true,true"))
			Expect(run(`Object.keys(s).join()`).ToString()).To(Equal("side,area"))
		})
	})

	Describe("dynamic, callable and convertible classes", func() {
		BeforeEach(func() {
			bagDesc, err := jsexport.NewClassBuilder[*bag]("Bag").
				SetFactory(func() *bag { return &bag{items: make(map[string]jsexport.Value)} }).
				Build(reg)
			Expect(err).To(BeNil())
			Expect(rt.Set("Bag", bagDesc.Class())).To(Succeed())
		})

		It("routes unknown names to the property hooks", func() {
			v := run(`
				const b = new Bag();
				b.x = 1;
				b.y = "two";
				[b.x, b.y, "x" in b, "z" in b, Object.keys(b).join("|")].join()`)
			Expect(v.ToString()).To(Equal("1,two,true,false,x|y"))

			Expect(run(`delete b.x; "x" in b`).ToBool()).To(BeFalse())

			v = run(`
				let msg;
				try { b.forbidden = 1 } catch (e) { msg = e.message }
				msg`)
			Expect(v.ToString()).To(Equal("Bag.forbidden: forbidden key"))
		})

		It("calls instances as functions", func() {
			Expect(run(`const b = new Bag(); b.a = 1; typeof b`).ToString()).To(Equal("function"))
			Expect(run(`b(1, 2)`).ToFloat64()).To(Equal(float64(3)))
		})

		It("describes static properties of callable instances", func() {
			tallyDesc, err := jsexport.NewClassBuilder[*tally]("Tally").
				ReadOnlyAccessor("count", func(_ jsexport.Context, t *tally) (jsexport.Value, error) {
					return jsexport.Int64(int64(t.n)), nil
				}).
				Method("reset", func(_ jsexport.Context, t *tally, _ []jsexport.Value, _ jsexport.Object) (jsexport.Value, error) {
					t.n = 0
					return jsexport.Undefined(), nil
				}, jsexport.NotEnumerable()).
				Build(reg)
			Expect(err).To(BeNil())
			Expect(rt.Set("Tally", tallyDesc.Class())).To(Succeed())

			v := run(`
				const t = new Tally();
				t(1, 2);
				const c = Object.getOwnPropertyDescriptor(t, "count");
				const r = Object.getOwnPropertyDescriptor(t, "reset");
				[c.value, c.writable, c.enumerable, r.writable, r.enumerable, Object.keys(t).join("|")].join()`)
			Expect(v.ToString()).To(Equal("2,false,true,false,false,count"))
		})

		It("converts instances to primitives", func() {
			run(`const b = new Bag(); b.a = 1; b.b = 2`)
			Expect(run(`String(b)`).ToString()).To(Equal("bag(2)"))
			Expect(run(`b + 1`).ToFloat64()).To(Equal(float64(3)))
			Expect(run(`b * 2`).ToFloat64()).To(Equal(float64(4)))
		})
	})

	Describe("strict setters", func() {
		It("throws on rejected writes in sloppy mode code", func() {
			strict := New(WithStrictSetters())
			defer strict.Close()
			strictReg := jsexport.NewRegistry(strict)
			d, err := buildCounter(strictReg, &stats{})
			Expect(err).To(BeNil())
			Expect(strict.Set("Counter", d.Class())).To(Succeed())

			_, err = strict.RunString(`new Counter().label = "x"`)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("TypeError"))
		})
	})

	Describe("engine contract", func() {
		It("rejects duplicate and foreign classes", func() {
			_, err := rt.CreateClass(&jsexport.ClassDefinition{ClassName: "Counter"})
			Expect(errors.Is(err, ErrClassExists)).To(BeTrue())

			_, err = rt.CreateClass(nil)
			Expect(errors.Is(err, jsexport.ErrInvalidArgument)).To(BeTrue())

			other := New()
			defer other.Close()
			_, err = other.NewObject(desc.Class())
			Expect(errors.Is(err, ErrForeignClass)).To(BeTrue())
			_, err = other.CreateClass(&jsexport.ClassDefinition{ClassName: "Child", ParentClass: desc.Class()})
			Expect(errors.Is(err, ErrForeignClass)).To(BeTrue())
		})

		It("logs created classes", func() {
			created := logs.FilterMessage("goja class created")
			Expect(created.Len()).To(Equal(1))
			Expect(created.All()[0].ContextMap()["class"]).To(Equal("Counter"))
		})

		It("converts values both ways", func() {
			Expect(run(`1.5`).ToFloat64()).To(Equal(1.5))
			Expect(run(`"s"`).ToString()).To(Equal("s"))
			Expect(run(`true`).ToBool()).To(BeTrue())
			Expect(run(`null`).IsNull()).To(BeTrue())
			Expect(run(`undefined`).IsUndefined()).To(BeTrue())

			obj, ok := run(`({a: 1, b: [1, 2]})`).ToObject()
			Expect(ok).To(BeTrue())
			Expect(obj.Private()).To(BeZero())
			Expect(obj.Has("a")).To(BeTrue())
			a, err := obj.Get("a")
			Expect(err).To(BeNil())
			Expect(a.ToFloat64()).To(Equal(float64(1)))
			Expect(obj.Keys()).To(Equal([]string{"a", "b"}))

			Expect(rt.Set("answer", jsexport.Int64(42))).To(Succeed())
			Expect(run(`answer + 1`).ToFloat64()).To(Equal(float64(43)))
		})

		It("throws reported errors from Go values", func() {
			Expect(rt.Set("boom", jsexport.ErrorValue(errors.New("kaput")))).To(Succeed())
			Expect(run(`boom.message`).ToString()).To(Equal("kaput"))
		})
	})
})
