package vm

// ---------------------------------------------------------------------------
// Special forms
// ---------------------------------------------------------------------------

// sfKind discriminates the special forms recognized in call position.
type sfKind uint8

const (
	sfQuote sfKind = iota + 1
	sfIf
	sfDef
	sfFn
	sfDo
	sfLet
	sfAnd
	sfOr
	sfTry
	sfDeref
	sfGo
	sfQuasiquote
	sfUnquote
	sfUnquoteSplicing
	sfMacro
	sfMod
	sfImp
)

// specialFormNames maps surface names to kinds; the runtime interns these
// at boot so dispatch is a symbol-ID map lookup.
var specialFormNames = map[string]sfKind{
	"quote":            sfQuote,
	"if":               sfIf,
	"def":              sfDef,
	"fn":               sfFn,
	"do":               sfDo,
	"let":              sfLet,
	"and":              sfAnd,
	"or":               sfOr,
	"try":              sfTry,
	"deref":            sfDeref,
	"go":               sfGo,
	"quasiquote":       sfQuasiquote,
	"unquote":          sfUnquote,
	"unquote-splicing": sfUnquoteSplicing,
	"macro":            sfMacro,
	"mod":              sfMod,
	"imp":              sfImp,
}

func (ctx *EvalContext) evalSpecialForm(sf sfKind, forms []Value, env Value) EvalResult {
	args := forms[1:]
	switch sf {
	case sfQuote:
		if len(args) != 1 {
			return Completed(ctx.m.NewArityError("quote", 1, len(args)))
		}
		return Completed(args[0])

	case sfIf:
		return ctx.evalIf(args, env)

	case sfDef:
		return ctx.evalDef(args, env)

	case sfFn:
		return ctx.evalFn(args, env)

	case sfDo:
		return ctx.evalBodyFrom(args, 0, env)

	case sfLet:
		return ctx.evalLet(args, env)

	case sfAnd:
		return ctx.evalShortCircuit(ContAnd, args, 0, env, True)

	case sfOr:
		return ctx.evalShortCircuit(ContOr, args, 0, env, Nil)

	case sfTry:
		return ctx.evalTry(args, env)

	case sfDeref:
		return ctx.evalDeref(args, env)

	case sfGo:
		return ctx.evalGo(args, env)

	case sfQuasiquote:
		if len(args) != 1 {
			return Completed(ctx.m.NewArityError("quasiquote", 1, len(args)))
		}
		return Completed(ctx.quasiquote(args[0], env, 1))

	case sfUnquote, sfUnquoteSplicing:
		return Completed(ctx.m.NewEvalError("unquote outside quasiquote"))

	case sfMacro:
		return ctx.evalMacroDef(args, env)

	case sfMod:
		return ctx.evalMod(args, env)

	case sfImp:
		return ctx.evalImp(args, env)

	default:
		return Completed(ctx.m.NewEvalError("unknown special form"))
	}
}

// ---------------------------------------------------------------------------
// if / def / fn
// ---------------------------------------------------------------------------

func (ctx *EvalContext) evalIf(args []Value, env Value) EvalResult {
	if len(args) != 2 && len(args) != 3 {
		return Completed(ctx.m.NewArityError("if", 2, len(args)))
	}
	elseForm := Nil
	if len(args) == 3 {
		elseForm = args[2]
	}

	r := ctx.Eval(args[0], env)
	if r.IsSuspended() {
		return extendSuspension(r, &Continuation{
			kind:  ContIfBranch,
			env:   env,
			forms: []Value{args[1], elseForm},
		})
	}
	if r.IsError() {
		return r
	}
	if r.value.IsTruthy() {
		return ctx.Eval(args[1], env)
	}
	if elseForm.IsNil() {
		return Completed(Nil)
	}
	return ctx.Eval(elseForm, env)
}

func (ctx *EvalContext) evalDef(args []Value, env Value) EvalResult {
	if len(args) != 2 {
		return Completed(ctx.m.NewArityError("def", 2, len(args)))
	}
	if !args[0].IsSymbol() {
		return Completed(ctx.m.NewEvalError("def: name must be a symbol, got %s", typeName(args[0])))
	}
	sym := args[0].SymbolID()

	r := ctx.Eval(args[1], env)
	if r.IsSuspended() {
		return extendSuspension(r, &Continuation{
			kind:    ContDefValue,
			env:     env,
			symbols: []uint32{sym},
		})
	}
	if r.IsError() {
		return r
	}
	return ctx.finishDef(sym, r.value, env)
}

// finishDef installs the binding in the owning module's frame (or the
// env chain root outside any module), names anonymous functions after
// the binding, and exports the symbol from the module.
func (ctx *EvalContext) finishDef(sym uint32, v Value, env Value) EvalResult {
	if v.IsObject() && v.IsFunction() {
		v.AsFunction().SetName(ctx.rt.Symbols.Name(sym))
	}

	target := env.AsEnv()
	for target.moduleID == 0 && !target.parent.IsNil() {
		target = target.parent.AsEnv()
	}
	locked := ctx.m.heap.lockIfShared(&target.hdr)
	target.bindings[sym] = v
	ctx.m.heap.WriteBarrier(&target.hdr, v)
	ctx.m.heap.unlockIf(&target.hdr, locked)

	if target.moduleID != 0 {
		if mod := ctx.rt.Modules.Get(target.moduleID); mod != nil {
			mod.Export(sym)
		}
	}
	return Completed(v)
}

func (ctx *EvalContext) evalFn(args []Value, env Value) EvalResult {
	if len(args) < 1 {
		return Completed(ctx.m.NewArityError("fn", 1, len(args)))
	}
	params, rest, variadic, errVal := ctx.paramList(args[0])
	if !errVal.IsNil() {
		return Completed(errVal)
	}
	body := append([]Value(nil), args[1:]...)
	return Completed(ctx.m.NewFunction("", params, rest, variadic, body, env))
}

// paramList reads a parameter vector or list of symbols, with & marking
// a trailing rest parameter.
func (ctx *EvalContext) paramList(spec Value) (params []uint32, rest uint32, variadic bool, errVal Value) {
	var elems []Value
	switch {
	case spec.IsObject() && spec.IsVector():
		elems = spec.AsVector().ToSlice()
	case spec.IsObject() && spec.IsList():
		elems = spec.AsList().ToSlice()
	default:
		return nil, 0, false, ctx.m.NewEvalError("fn: parameter list must be a vector or list")
	}

	amp := ctx.rt.ampSymbol
	for i := 0; i < len(elems); i++ {
		if !elems[i].IsSymbol() {
			return nil, 0, false, ctx.m.NewEvalError("fn: parameter %d is not a symbol", i)
		}
		id := elems[i].SymbolID()
		if id == amp {
			if i != len(elems)-2 || !elems[i+1].IsSymbol() {
				return nil, 0, false, ctx.m.NewEvalError("fn: & must be followed by exactly one symbol")
			}
			return params, elems[i+1].SymbolID(), true, Nil
		}
		params = append(params, id)
	}
	return params, 0, false, Nil
}

// ---------------------------------------------------------------------------
// let
// ---------------------------------------------------------------------------

func (ctx *EvalContext) evalLet(args []Value, env Value) EvalResult {
	if len(args) < 1 {
		return Completed(ctx.m.NewArityError("let", 1, len(args)))
	}
	var binds []Value
	switch {
	case args[0].IsObject() && args[0].IsVector():
		binds = args[0].AsVector().ToSlice()
	case args[0].IsObject() && args[0].IsList():
		binds = args[0].AsList().ToSlice()
	default:
		return Completed(ctx.m.NewEvalError("let: bindings must be a vector or list"))
	}
	if len(binds)%2 != 0 {
		return Completed(ctx.m.NewEvalError("let: odd number of binding forms"))
	}

	symbols := make([]uint32, 0, len(binds)/2)
	forms := make([]Value, 0, len(binds)/2+len(args)-1)
	for i := 0; i < len(binds); i += 2 {
		if !binds[i].IsSymbol() {
			return Completed(ctx.m.NewEvalError("let: binding name %d is not a symbol", i/2))
		}
		symbols = append(symbols, binds[i].SymbolID())
		forms = append(forms, binds[i+1])
	}
	forms = append(forms, args[1:]...)

	bodyEnv := ctx.m.NewEnv(env)
	return ctx.evalLetFrom(symbols, forms, 0, bodyEnv)
}

// evalLetFrom evaluates binding inits sequentially in the new frame, so
// later bindings see earlier ones, then runs the body forms.
func (ctx *EvalContext) evalLetFrom(symbols []uint32, forms []Value, index int, bodyEnv Value) EvalResult {
	e := bodyEnv.AsEnv()
	for i := index; i < len(symbols); i++ {
		r := ctx.Eval(forms[i], bodyEnv)
		if r.IsSuspended() {
			return extendSuspension(r, &Continuation{
				kind:    ContLetBinding,
				env:     bodyEnv,
				forms:   forms,
				index:   i,
				symbols: symbols,
				bodyEnv: bodyEnv,
			})
		}
		if r.IsError() {
			return r
		}
		e.bindings[symbols[i]] = r.value
		ctx.m.heap.WriteBarrier(&e.hdr, r.value)
	}
	return ctx.evalBodyFrom(forms[len(symbols):], 0, bodyEnv)
}

// ---------------------------------------------------------------------------
// and / or
// ---------------------------------------------------------------------------

// evalShortCircuit runs and/or over forms from index. last carries the
// most recent result so the final value falls out naturally ((and) is
// true, (or) is nil).
func (ctx *EvalContext) evalShortCircuit(kind ContKind, forms []Value, index int, env Value, last Value) EvalResult {
	for i := index; i < len(forms); i++ {
		r := ctx.Eval(forms[i], env)
		if r.IsSuspended() {
			return extendSuspension(r, &Continuation{
				kind:  kind,
				env:   env,
				forms: forms,
				index: i,
			})
		}
		if r.IsError() {
			return r
		}
		last = r.value
		if kind == ContAnd && last.IsFalsy() {
			return Completed(last)
		}
		if kind == ContOr && last.IsTruthy() {
			return Completed(last)
		}
	}
	return Completed(last)
}

// ---------------------------------------------------------------------------
// try
// ---------------------------------------------------------------------------

// evalTry takes exactly a body form and a handler form. The handler is
// only evaluated if the body produced an error value; if the evaluated
// handler is callable it is applied to the error, otherwise its value
// replaces the error.
func (ctx *EvalContext) evalTry(args []Value, env Value) EvalResult {
	if len(args) != 2 {
		return Completed(ctx.m.NewArityError("try", 2, len(args)))
	}
	r := ctx.Eval(args[0], env)
	if r.IsSuspended() {
		return extendSuspension(r, &Continuation{
			kind:    ContTryBody,
			env:     env,
			handler: args[1],
		})
	}
	if r.IsError() {
		return ctx.evalTryHandler(args[1], r.value, env)
	}
	return r
}

func (ctx *EvalContext) evalTryHandler(handler, errVal, env Value) EvalResult {
	r := ctx.Eval(handler, env)
	if r.IsSuspended() {
		return Completed(ctx.m.NewEvalError("try: handler must not suspend"))
	}
	if r.IsError() {
		return r
	}
	if r.value.IsCallable() {
		return ctx.Apply(r.value, []Value{errVal})
	}
	return r
}

// ---------------------------------------------------------------------------
// deref / go
// ---------------------------------------------------------------------------

func (ctx *EvalContext) evalDeref(args []Value, env Value) EvalResult {
	if len(args) != 1 {
		return Completed(ctx.m.NewArityError("deref", 1, len(args)))
	}
	r := ctx.Eval(args[0], env)
	if r.IsSuspended() {
		return extendSuspension(r, &Continuation{kind: ContDerefTarget, env: env})
	}
	if r.IsError() {
		return r
	}
	return ctx.derefValue(r.value)
}

// derefValue waits for a future's result: by suspending under the
// scheduler, by parking the goroutine in blocking contexts.
func (ctx *EvalContext) derefValue(v Value) EvalResult {
	if !v.IsObject() || !v.IsFuture() {
		return Completed(ctx.m.NewEvalError("deref: not a future, got %s", typeName(v)))
	}
	h := v.AsFuture().Handle

	state, result, ok := ctx.rt.Futures.Poll(h)
	if !ok {
		return Completed(ctx.m.NewStaleHandleError("future"))
	}
	if state != FuturePending {
		return Completed(result)
	}

	if ctx.blocking {
		result, ok := ctx.rt.Futures.Wait(h)
		if !ok {
			return Completed(ctx.m.NewStaleHandleError("future"))
		}
		return Completed(result)
	}
	return Suspend(h, &Continuation{kind: ContDeref, env: Nil})
}

func (ctx *EvalContext) evalGo(args []Value, env Value) EvalResult {
	if len(args) != 1 {
		return Completed(ctx.m.NewArityError("go", 1, len(args)))
	}
	h := ctx.rt.Futures.Create()
	ctx.rt.Scheduler.SpawnExpr(args[0], env, h)
	return Completed(ctx.m.NewFutureValue(h))
}

// ---------------------------------------------------------------------------
// quasiquote
// ---------------------------------------------------------------------------

// quasiquote rebuilds form with unquoted parts evaluated. Unquote forms
// are evaluated to settlement: a suspension inside an unquote blocks
// until its future resolves rather than suspending the whole template.
func (ctx *EvalContext) quasiquote(form Value, env Value, depth int) Value {
	if !form.IsObject() || !form.IsList() {
		return form
	}
	list := form.AsList()
	if list.IsEmpty() {
		return form
	}
	elems := list.ToSlice()

	if kind, ok := ctx.qqMarker(elems[0]); ok {
		switch kind {
		case sfUnquote:
			if len(elems) != 2 {
				return ctx.m.NewArityError("unquote", 1, len(elems)-1)
			}
			if depth == 1 {
				return ctx.evalSettled(elems[1], env)
			}
			inner := ctx.quasiquote(elems[1], env, depth-1)
			if inner.IsObject() && inner.IsError() {
				return inner
			}
			return ctx.m.ListOf(elems[0], inner)

		case sfQuasiquote:
			if len(elems) != 2 {
				return ctx.m.NewArityError("quasiquote", 1, len(elems)-1)
			}
			inner := ctx.quasiquote(elems[1], env, depth+1)
			if inner.IsObject() && inner.IsError() {
				return inner
			}
			return ctx.m.ListOf(elems[0], inner)

		case sfUnquoteSplicing:
			return ctx.m.NewEvalError("unquote-splicing outside list position")
		}
	}

	out := make([]Value, 0, len(elems))
	for _, e := range elems {
		if e.IsObject() && e.IsList() && !e.AsList().IsEmpty() {
			sub := e.AsList().ToSlice()
			if kind, ok := ctx.qqMarker(sub[0]); ok && kind == sfUnquoteSplicing && depth == 1 {
				if len(sub) != 2 {
					return ctx.m.NewArityError("unquote-splicing", 1, len(sub)-1)
				}
				spliced := ctx.evalSettled(sub[1], env)
				if spliced.IsObject() && spliced.IsError() {
					return spliced
				}
				if !spliced.IsObject() || !spliced.IsList() {
					return ctx.m.NewEvalError("unquote-splicing: result is not a list")
				}
				out = append(out, spliced.AsList().ToSlice()...)
				continue
			}
		}
		sub := ctx.quasiquote(e, env, depth)
		if sub.IsObject() && sub.IsError() {
			return sub
		}
		out = append(out, sub)
	}
	return ctx.m.ListFromSlice(out)
}

// qqMarker recognizes quasiquote-related heads.
func (ctx *EvalContext) qqMarker(head Value) (sfKind, bool) {
	if !head.IsSymbol() {
		return 0, false
	}
	kind, ok := ctx.rt.specialForms[head.SymbolID()]
	if !ok {
		return 0, false
	}
	switch kind {
	case sfUnquote, sfUnquoteSplicing, sfQuasiquote:
		return kind, true
	}
	return 0, false
}

// evalSettled evaluates a form to a final value, blocking on any future
// it suspends on.
func (ctx *EvalContext) evalSettled(form Value, env Value) Value {
	r := ctx.Eval(form, env)
	for r.IsSuspended() {
		v, ok := ctx.rt.Futures.Wait(r.susp.Future)
		if !ok {
			v = ctx.m.NewStaleHandleError("future")
		}
		r = ctx.Resume(r.susp.Cont, v)
	}
	return r.value
}

// ---------------------------------------------------------------------------
// macro / mod / imp
// ---------------------------------------------------------------------------

func (ctx *EvalContext) evalMacroDef(args []Value, env Value) EvalResult {
	if len(args) < 2 {
		return Completed(ctx.m.NewArityError("macro", 2, len(args)))
	}
	if !args[0].IsSymbol() {
		return Completed(ctx.m.NewEvalError("macro: name must be a symbol"))
	}
	params, rest, variadic, errVal := ctx.paramList(args[1])
	if !errVal.IsNil() {
		return Completed(errVal)
	}
	name := ctx.rt.Symbols.Name(args[0].SymbolID())
	body := append([]Value(nil), args[2:]...)
	mac := ctx.m.NewMacro(name, params, rest, variadic, body, env)
	return ctx.finishDef(args[0].SymbolID(), mac, env)
}

// expandAndEvalMacro applies the macro to its unevaluated argument forms
// and evaluates the expansion in the caller's environment.
func (ctx *EvalContext) expandAndEvalMacro(mc *MacroObject, argForms []Value, env Value) EvalResult {
	frame, errVal := ctx.bindParams(mc.name, mc.params, mc.restParam, mc.variadic, mc.env, argForms)
	if !errVal.IsNil() {
		return Completed(errVal)
	}
	expansion := ctx.evalSettledBody(mc.body, frame)
	if expansion.IsObject() && expansion.IsError() {
		return Completed(expansion)
	}
	return ctx.Eval(expansion, env)
}

func (ctx *EvalContext) evalSettledBody(body []Value, env Value) Value {
	result := Nil
	for _, form := range body {
		result = ctx.evalSettled(form, env)
		if result.IsObject() && result.IsError() {
			return result
		}
	}
	return result
}

func (ctx *EvalContext) evalMod(args []Value, env Value) EvalResult {
	if len(args) < 1 {
		return Completed(ctx.m.NewArityError("mod", 1, len(args)))
	}
	if !args[0].IsSymbol() {
		return Completed(ctx.m.NewEvalError("mod: name must be a symbol"))
	}
	name := ctx.rt.Symbols.Name(args[0].SymbolID())
	mod := ctx.rt.Modules.Define(ctx.m, name, ctx.rt.globalEnv)

	r := ctx.evalBodyFrom(args[1:], 0, mod.Env)
	if r.IsSuspended() || r.IsError() {
		return r
	}
	return Completed(FromModuleID(mod.ID))
}

func (ctx *EvalContext) evalImp(args []Value, env Value) EvalResult {
	if len(args) != 1 && len(args) != 2 {
		return Completed(ctx.m.NewArityError("imp", 1, len(args)))
	}
	if !args[0].IsSymbol() {
		return Completed(ctx.m.NewEvalError("imp: module name must be a symbol"))
	}
	name := ctx.rt.Symbols.Name(args[0].SymbolID())
	other := ctx.rt.Modules.GetByName(name)
	if other == nil {
		return Completed(ctx.m.NewEvalError("imp: unknown module %s", name))
	}

	mod := ctx.owningModule(env.AsEnv())
	if mod == nil {
		return Completed(ctx.m.NewEvalError("imp: not inside a module"))
	}

	alias := uint32(0)
	if len(args) == 2 {
		if !args[1].IsSymbol() {
			return Completed(ctx.m.NewEvalError("imp: alias must be a symbol"))
		}
		alias = args[1].SymbolID()
	}
	mod.Import(other, alias)
	return Completed(FromModuleID(other.ID))
}
