package vm

import (
	"context"
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// Built-in natives
// ---------------------------------------------------------------------------

// registerBuiltins installs the native functions every runtime starts
// with into the global environment.
func (rt *Runtime) registerBuiltins(m *Mutator) {
	env := rt.globalEnv.AsEnv()
	def := func(name string, fn NativeFn) {
		env.bindings[rt.Symbols.Intern(name)] = rt.Natives.Register(name, fn)
	}

	def("+", func(ctx *EvalContext, args []Value) EvalResult {
		acc := 0.0
		for i, a := range args {
			if !a.IsNumber() {
				return Completed(ctx.m.NewEvalError("+: argument %d is not a number", i))
			}
			acc += a.Number()
		}
		return Completed(FromNumber(acc))
	})

	def("-", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) == 0 {
			return Completed(ctx.m.NewArityError("-", 1, 0))
		}
		if !args[0].IsNumber() {
			return Completed(ctx.m.NewEvalError("-: argument 0 is not a number"))
		}
		if len(args) == 1 {
			return Completed(FromNumber(-args[0].Number()))
		}
		acc := args[0].Number()
		for i, a := range args[1:] {
			if !a.IsNumber() {
				return Completed(ctx.m.NewEvalError("-: argument %d is not a number", i+1))
			}
			acc -= a.Number()
		}
		return Completed(FromNumber(acc))
	})

	def("*", func(ctx *EvalContext, args []Value) EvalResult {
		acc := 1.0
		for i, a := range args {
			if !a.IsNumber() {
				return Completed(ctx.m.NewEvalError("*: argument %d is not a number", i))
			}
			acc *= a.Number()
		}
		return Completed(FromNumber(acc))
	})

	def("/", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 {
			return Completed(ctx.m.NewArityError("/", 2, len(args)))
		}
		if !args[0].IsNumber() || !args[1].IsNumber() {
			return Completed(ctx.m.NewEvalError("/: arguments must be numbers"))
		}
		return Completed(FromNumber(args[0].Number() / args[1].Number()))
	})

	def("=", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 {
			return Completed(ctx.m.NewArityError("=", 2, len(args)))
		}
		return Completed(FromBool(valueKeyEquals(args[0], args[1])))
	})

	def("<", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 || !args[0].IsNumber() || !args[1].IsNumber() {
			return Completed(ctx.m.NewEvalError("<: expects two numbers"))
		}
		return Completed(FromBool(args[0].Number() < args[1].Number()))
	})

	def(">", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 || !args[0].IsNumber() || !args[1].IsNumber() {
			return Completed(ctx.m.NewEvalError(">: expects two numbers"))
		}
		return Completed(FromBool(args[0].Number() > args[1].Number()))
	})

	def("not", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 {
			return Completed(ctx.m.NewArityError("not", 1, len(args)))
		}
		return Completed(FromBool(args[0].IsFalsy()))
	})

	def("list", func(ctx *EvalContext, args []Value) EvalResult {
		return Completed(ctx.m.ListFromSlice(args))
	})

	def("vector", func(ctx *EvalContext, args []Value) EvalResult {
		return Completed(ctx.m.VectorFromSlice(args))
	})

	def("hash-map", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args)%2 != 0 {
			return Completed(ctx.m.NewEvalError("hash-map: odd number of arguments"))
		}
		return Completed(ctx.m.MapFromPairs(args))
	})

	def("hash-set", func(ctx *EvalContext, args []Value) EvalResult {
		return Completed(ctx.m.SetFromSlice(args))
	})

	def("cons", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 {
			return Completed(ctx.m.NewArityError("cons", 2, len(args)))
		}
		if !args[1].IsList() {
			return Completed(ctx.m.NewEvalError("cons: second argument must be a list"))
		}
		return Completed(args[1].AsList().Prepend(ctx.m, args[0]))
	})

	def("conj", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 {
			return Completed(ctx.m.NewArityError("conj", 2, len(args)))
		}
		switch {
		case args[0].IsList():
			return Completed(args[0].AsList().Append(ctx.m, args[1]))
		case args[0].IsVector():
			args[0].AsVector().Push(ctx.m, args[1])
			return Completed(args[0])
		case args[0].IsSet():
			args[0].AsSet().Add(ctx.m, args[1])
			return Completed(args[0])
		default:
			return Completed(ctx.m.NewEvalError("conj: cannot add to %s", typeName(args[0])))
		}
	})

	def("first", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 || !args[0].IsList() {
			return Completed(ctx.m.NewEvalError("first: expects a list"))
		}
		return Completed(args[0].AsList().First(ctx.m))
	})

	def("rest", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 || !args[0].IsList() {
			return Completed(ctx.m.NewEvalError("rest: expects a list"))
		}
		return Completed(args[0].AsList().Rest(ctx.m))
	})

	def("last", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 || !args[0].IsList() {
			return Completed(ctx.m.NewEvalError("last: expects a list"))
		}
		return Completed(args[0].AsList().Last(ctx.m))
	})

	def("nth", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 || !args[1].IsNumber() {
			return Completed(ctx.m.NewEvalError("nth: expects a collection and an index"))
		}
		i := int(args[1].Number())
		switch {
		case args[0].IsList():
			return Completed(args[0].AsList().Nth(ctx.m, i))
		case args[0].IsVector():
			return Completed(args[0].AsVector().Get(ctx.m, i))
		default:
			return Completed(ctx.m.NewEvalError("nth: cannot index %s", typeName(args[0])))
		}
	})

	def("count", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 {
			return Completed(ctx.m.NewArityError("count", 1, len(args)))
		}
		switch {
		case args[0].IsList():
			return Completed(FromInt(args[0].AsList().Count()))
		case args[0].IsVector():
			return Completed(FromInt(args[0].AsVector().Count()))
		case args[0].IsMap():
			return Completed(FromInt(args[0].AsMap().Count()))
		case args[0].IsSet():
			return Completed(FromInt(args[0].AsSet().Count()))
		case args[0].IsStr():
			return Completed(FromInt(args[0].AsStr().Len()))
		default:
			return Completed(ctx.m.NewEvalError("count: cannot count %s", typeName(args[0])))
		}
	})

	def("get", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 && len(args) != 3 {
			return Completed(ctx.m.NewArityError("get", 2, len(args)))
		}
		missing := Nil
		if len(args) == 3 {
			missing = args[2]
		}
		if !args[0].IsMap() {
			return Completed(ctx.m.NewEvalError("get: expects a map"))
		}
		if v, ok := args[0].AsMap().Get(args[1]); ok {
			return Completed(v)
		}
		return Completed(missing)
	})

	def("assoc", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 3 || !args[0].IsMap() {
			return Completed(ctx.m.NewEvalError("assoc: expects a map, a key, and a value"))
		}
		args[0].AsMap().Insert(ctx.m, args[1], args[2])
		return Completed(args[0])
	})

	def("dissoc", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 || !args[0].IsMap() {
			return Completed(ctx.m.NewEvalError("dissoc: expects a map and a key"))
		}
		args[0].AsMap().Remove(ctx.m, args[1])
		return Completed(args[0])
	})

	def("contains?", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 {
			return Completed(ctx.m.NewArityError("contains?", 2, len(args)))
		}
		switch {
		case args[0].IsMap():
			return Completed(FromBool(args[0].AsMap().Contains(args[1])))
		case args[0].IsSet():
			return Completed(FromBool(args[0].AsSet().Contains(args[1])))
		default:
			return Completed(ctx.m.NewEvalError("contains?: expects a map or set"))
		}
	})

	def("str", func(ctx *EvalContext, args []Value) EvalResult {
		out := ""
		for _, a := range args {
			if a.IsStr() {
				out += a.AsStr().String()
			} else {
				out += renderValue(ctx.rt, a)
			}
		}
		return Completed(ctx.m.NewStr(out))
	})

	def("apply", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 2 {
			return Completed(ctx.m.NewArityError("apply", 2, len(args)))
		}
		if !args[1].IsList() {
			return Completed(ctx.m.NewEvalError("apply: second argument must be a list"))
		}
		return ctx.Apply(args[0], args[1].AsList().ToSlice())
	})

	def("type", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 {
			return Completed(ctx.m.NewArityError("type", 1, len(args)))
		}
		return Completed(ctx.rt.Keyword(typeName(args[0])))
	})

	def("err", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 && len(args) != 2 {
			return Completed(ctx.m.NewArityError("err", 1, len(args)))
		}
		msg := ""
		if len(args) == 2 && args[1].IsStr() {
			msg = args[1].AsStr().String()
		}
		return Completed(ctx.m.NewUserError(args[0], msg))
	})

	def("err-payload", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 || !args[0].IsError() {
			return Completed(ctx.m.NewEvalError("err-payload: expects an error"))
		}
		return Completed(args[0].AsError().Payload)
	})

	def("shared!", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 {
			return Completed(ctx.m.NewArityError("shared!", 1, len(args)))
		}
		ctx.rt.Heap.MarkShared(args[0])
		return Completed(args[0])
	})

	def("future?", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 {
			return Completed(ctx.m.NewArityError("future?", 1, len(args)))
		}
		return Completed(FromBool(args[0].IsObject() && args[0].IsFuture()))
	})

	// sleep-ms parks the caller on a bridge future for the given number
	// of milliseconds. Under the scheduler this suspends the task and
	// lets others run; in blocking contexts it parks the goroutine.
	def("sleep-ms", func(ctx *EvalContext, args []Value) EvalResult {
		if len(args) != 1 || !args[0].IsNumber() {
			return Completed(ctx.m.NewEvalError("sleep-ms: expects a number"))
		}
		ms := args[0].Number()
		if ms < 0 || math.IsNaN(ms) {
			return Completed(ctx.m.NewEvalError("sleep-ms: negative duration"))
		}

		var taskCtx context.Context
		if ctx.task != nil {
			taskCtx = ctx.task.Context()
		}
		h := ctx.rt.BridgeFuture(taskCtx, func(c context.Context) Value {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-c.Done():
			}
			return Nil
		})
		return ctx.awaitBridge(h)
	})
}

// awaitBridge waits on a bridge future: suspending under the scheduler,
// blocking otherwise.
func (ctx *EvalContext) awaitBridge(h FutureHandle) EvalResult {
	if ctx.blocking {
		v, ok := ctx.rt.Futures.Wait(h)
		if !ok {
			return Completed(ctx.m.NewStaleHandleError("future"))
		}
		return Completed(v)
	}
	return Suspend(h, &Continuation{kind: ContDeref, env: Nil})
}
