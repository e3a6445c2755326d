package vm

// ---------------------------------------------------------------------------
// Evaluator
// ---------------------------------------------------------------------------

// EvalContext carries everything one evaluation needs: the runtime, the
// calling goroutine's allocation context, the owning task when running
// under the scheduler, and whether derefs may block the host goroutine.
//
// Tasks run with blocking=false: a deref of a pending future suspends and
// returns control to the scheduler. Host callers use blocking=true and
// park the goroutine instead.
type EvalContext struct {
	rt       *Runtime
	m        *Mutator
	task     *Task
	blocking bool
}

// Runtime returns the owning runtime.
func (ctx *EvalContext) Runtime() *Runtime { return ctx.rt }

// Mutator returns the allocation context.
func (ctx *EvalContext) Mutator() *Mutator { return ctx.m }

// Eval evaluates form in env. Errors are returned as completed error
// values; a deref of a pending future returns a suspension.
func (ctx *EvalContext) Eval(form Value, env Value) EvalResult {
	switch {
	case form.IsSymbol():
		return ctx.resolveSymbol(form, env)

	case form.IsObject() && form.IsList():
		list := form.AsList()
		if list.IsEmpty() {
			// The empty list is self-evaluating.
			return Completed(form)
		}
		return ctx.evalList(list, env)

	default:
		// Numbers, keywords, nil/true/false, strings, vectors, maps,
		// functions, futures, native handles: self-evaluating.
		return Completed(form)
	}
}

// resolveSymbol looks sym up along the lexical chain, then in the
// exports of the owning module's imports.
func (ctx *EvalContext) resolveSymbol(sym Value, env Value) EvalResult {
	id := sym.SymbolID()
	e := env.AsEnv()
	if v, ok := e.Lookup(id); ok {
		return Completed(v)
	}
	if mod := ctx.owningModule(e); mod != nil {
		if v, ok := mod.resolveImported(ctx.rt.Modules, id); ok {
			return Completed(v)
		}
	}
	return Completed(ctx.m.NewUndefinedSymbolError(sym, ctx.rt.Symbols.Name(id)))
}

// owningModule walks the env chain to the frame carrying a module ID.
func (ctx *EvalContext) owningModule(e *EnvObject) *Module {
	for {
		if e.moduleID != 0 {
			return ctx.rt.Modules.Get(e.moduleID)
		}
		if e.parent.IsNil() {
			return nil
		}
		e = e.parent.AsEnv()
	}
}

// evalList evaluates a non-empty list: special form, macro call, or
// function call.
func (ctx *EvalContext) evalList(list *ListObject, env Value) EvalResult {
	forms := list.ToSlice()
	head := forms[0]

	if head.IsSymbol() {
		if sf, ok := ctx.rt.specialForms[head.SymbolID()]; ok {
			return ctx.evalSpecialForm(sf, forms, env)
		}
		// Macro calls are recognized before argument evaluation.
		if r := ctx.resolveSymbol(head, env); !r.IsError() && !r.IsSuspended() && r.value.IsObject() && r.value.IsMacro() {
			return ctx.expandAndEvalMacro(r.value.AsMacro(), forms[1:], env)
		}
	}
	return ctx.evalCallFrom(forms, 0, make([]Value, 0, len(forms)), env)
}

// evalCallFrom evaluates the call elements left to right starting at
// index, with partial holding the values already evaluated. This is also
// the resume entry point for suspensions inside argument position: the
// saved frame records index and partial, and resuming continues with the
// next unevaluated element.
func (ctx *EvalContext) evalCallFrom(forms []Value, index int, partial []Value, env Value) EvalResult {
	for i := index; i < len(forms); i++ {
		r := ctx.Eval(forms[i], env)
		if r.IsSuspended() {
			saved := make([]Value, len(partial))
			copy(saved, partial)
			return extendSuspension(r, &Continuation{
				kind:    ContCallArgs,
				env:     env,
				forms:   forms,
				index:   i,
				partial: saved,
			})
		}
		if r.IsError() {
			return r
		}
		partial = append(partial, r.value)
	}
	return ctx.Apply(partial[0], partial[1:])
}

// Apply calls fn with already-evaluated args.
func (ctx *EvalContext) Apply(fn Value, args []Value) EvalResult {
	switch {
	case fn.IsNative():
		impl := ctx.rt.Natives.Lookup(fn.NativeID())
		if impl == nil {
			return Completed(ctx.m.NewEvalError("invalid native handle %d", fn.NativeID()))
		}
		return impl(ctx, args)

	case fn.IsObject() && fn.IsFunction():
		return ctx.applyFunction(fn.AsFunction(), args)

	case fn.IsObject() && fn.IsMacro():
		return Completed(ctx.m.NewEvalError("macro %s used as a function", fn.AsMacro().name))

	default:
		return Completed(ctx.m.NewEvalError("cannot call value of type %s", typeName(fn)))
	}
}

func (ctx *EvalContext) applyFunction(f *FunctionObject, args []Value) EvalResult {
	frame, errVal := ctx.bindParams(f.name, f.params, f.restParam, f.variadic, f.env, args)
	if !errVal.IsNil() {
		return Completed(errVal)
	}
	return ctx.evalBodyFrom(f.body, 0, frame)
}

// bindParams builds the call frame, collecting variadic tails into a
// list. Returns an error value (and a Nil frame) on arity mismatch.
func (ctx *EvalContext) bindParams(name string, params []uint32, restParam uint32, variadic bool, parentEnv Value, args []Value) (Value, Value) {
	display := name
	if display == "" {
		display = "fn"
	}
	if variadic {
		if len(args) < len(params) {
			return Nil, ctx.m.NewArityError(display, len(params), len(args))
		}
	} else if len(args) != len(params) {
		return Nil, ctx.m.NewArityError(display, len(params), len(args))
	}

	frame := ctx.m.NewEnv(parentEnv)
	e := frame.AsEnv()
	for i, p := range params {
		e.bindings[p] = args[i]
	}
	if variadic {
		e.bindings[restParam] = ctx.m.ListFromSlice(args[len(params):])
	}
	return frame, Nil
}

// evalBodyFrom evaluates body forms in sequence, returning the last
// result. Shared by function bodies and do.
func (ctx *EvalContext) evalBodyFrom(body []Value, index int, env Value) EvalResult {
	if len(body) == 0 {
		return Completed(Nil)
	}
	for i := index; i < len(body); i++ {
		r := ctx.Eval(body[i], env)
		if r.IsSuspended() {
			return extendSuspension(r, &Continuation{
				kind:  ContDoBody,
				env:   env,
				forms: body,
				index: i,
			})
		}
		if r.IsError() {
			return r
		}
		if i == len(body)-1 {
			return r
		}
	}
	return Completed(Nil)
}

// ---------------------------------------------------------------------------
// Resumption
// ---------------------------------------------------------------------------

// Resume feeds v into the innermost saved frame and runs the chain
// outward. A frame may itself suspend again, in which case the remaining
// outer frames are re-attached to the new suspension.
func (ctx *EvalContext) Resume(cont *Continuation, v Value) EvalResult {
	result := Completed(v)
	for c := cont; c != nil; {
		outer := c.next
		result = ctx.resumeFrame(c, result.value)
		if result.IsSuspended() {
			return extendSuspension(result, outer)
		}
		c = outer
	}
	return result
}

// resumeFrame dispatches one frame on its kind. Every frame except try
// propagates an incoming error value unchanged; try frames divert to
// their handler.
func (ctx *EvalContext) resumeFrame(c *Continuation, v Value) EvalResult {
	if v.IsObject() && v.IsError() && c.kind != ContTryBody {
		return Completed(v)
	}

	switch c.kind {
	case ContCallArgs:
		partial := append(c.partial, v)
		return ctx.evalCallFrom(c.forms, c.index+1, partial, c.env)

	case ContIfBranch:
		if v.IsTruthy() {
			return ctx.Eval(c.forms[0], c.env)
		}
		if c.forms[1].IsNil() {
			return Completed(Nil)
		}
		return ctx.Eval(c.forms[1], c.env)

	case ContDoBody:
		if c.index == len(c.forms)-1 {
			return Completed(v)
		}
		return ctx.evalBodyFrom(c.forms, c.index+1, c.env)

	case ContLetBinding:
		c.bodyEnv.AsEnv().bindings[c.symbols[c.index]] = v
		ctx.m.heap.WriteBarrier(c.bodyEnv.Header(), v)
		return ctx.evalLetFrom(c.symbols, c.forms, c.index+1, c.bodyEnv)

	case ContAnd:
		if v.IsFalsy() {
			return Completed(v)
		}
		return ctx.evalShortCircuit(ContAnd, c.forms, c.index+1, c.env, v)

	case ContOr:
		if v.IsTruthy() {
			return Completed(v)
		}
		return ctx.evalShortCircuit(ContOr, c.forms, c.index+1, c.env, v)

	case ContTryBody:
		if v.IsObject() && v.IsError() {
			return ctx.evalTryHandler(c.handler, v, c.env)
		}
		return Completed(v)

	case ContDerefTarget:
		return ctx.derefValue(v)

	case ContDeref:
		return Completed(v)

	case ContDefValue:
		return ctx.finishDef(c.symbols[0], v, c.env)

	default:
		return Completed(ctx.m.NewEvalError("cannot resume continuation of kind %d", c.kind))
	}
}

// typeName names a value's type for error messages.
func typeName(v Value) string {
	switch {
	case v.IsNumber():
		return "number"
	case v.IsSymbol():
		return "symbol"
	case v.IsKeyword():
		return "keyword"
	case v.IsNative():
		return "native-fn"
	case v.IsModule():
		return "module"
	case v.IsSpecial():
		if v.IsNil() {
			return "nil"
		}
		return "bool"
	case v.IsObject():
		return v.Header().typeTag.String()
	default:
		return "unknown"
	}
}
