package vm

// ---------------------------------------------------------------------------
// Evaluation results and continuations
// ---------------------------------------------------------------------------

// EvalResult is the outcome of one evaluation: either a final value
// (which may be an error value) or a suspension naming the future being
// waited on and the continuation to resume with its result.
type EvalResult struct {
	value Value
	susp  *Suspension
}

// Suspension pairs the awaited future with the saved resumption state.
type Suspension struct {
	Future FutureHandle
	Cont   *Continuation
}

// Completed wraps a final value.
func Completed(v Value) EvalResult {
	return EvalResult{value: v}
}

// Suspend wraps a suspension on h with the given continuation chain.
func Suspend(h FutureHandle, cont *Continuation) EvalResult {
	return EvalResult{value: Nil, susp: &Suspension{Future: h, Cont: cont}}
}

// IsSuspended reports whether the evaluation suspended.
func (r EvalResult) IsSuspended() bool { return r.susp != nil }

// IsError reports whether the evaluation completed with an error value.
func (r EvalResult) IsError() bool { return r.susp == nil && r.value.IsError() }

// Value returns the final value. Panics on a suspended result.
func (r EvalResult) Value() Value {
	if r.susp != nil {
		panic("EvalResult.Value: suspended")
	}
	return r.value
}

// Suspension returns the suspension state, or nil when completed.
func (r EvalResult) Suspension() *Suspension { return r.susp }

// ContKind discriminates continuation frames. Each kind names the syntactic
// position the suspension happened in; resuming dispatches on the kind and
// picks up evaluation exactly where it stopped. Keeping frames as tagged
// data rather than closures makes suspensions inspectable and keeps their
// captured state explicit.
type ContKind uint8

const (
	// ContCallArgs: a call form with arguments evaluated so far in
	// partial; the resumed value is the result of forms[index], and
	// evaluation continues with forms[index+1:].
	ContCallArgs ContKind = iota + 1

	// ContIfBranch: the resumed value is the condition; forms[0] is the
	// then-form, forms[1] the else-form (or Nil).
	ContIfBranch

	// ContDoBody: the resumed value is the result of forms[index];
	// evaluation continues with the remaining body forms.
	ContDoBody

	// ContLetBinding: the resumed value binds symbols[index] in bodyEnv;
	// forms holds the remaining binding init forms, then the body.
	ContLetBinding

	// ContAnd / ContOr: short-circuit evaluation over forms from index.
	ContAnd
	ContOr

	// ContTryBody: the resumed value is the try body's result; handler
	// holds the unevaluated handler form.
	ContTryBody

	// ContDerefTarget: the resumed value is the expression being
	// dereffed; deref proceeds on it.
	ContDerefTarget

	// ContDeref: the resumed value is the awaited future's result and is
	// returned as-is.
	ContDeref

	// ContDefValue: the resumed value is bound to symbols[0] in env.
	ContDefValue
)

// Continuation is one saved frame of suspended evaluation. next points at
// the enclosing frame; resuming runs inner frames first and feeds each
// result outward.
type Continuation struct {
	kind ContKind
	env  Value // evaluation environment of the frame

	forms   []Value  // pending forms, meaning depends on kind
	index   int      // position within forms
	partial []Value  // evaluated prefix for call frames
	symbols []uint32 // binding names for let and def frames
	bodyEnv Value    // let: the frame being populated
	handler Value    // try: unevaluated handler form

	next *Continuation
}

// Kind returns the frame's kind.
func (c *Continuation) Kind() ContKind { return c.kind }

// Depth returns the frame chain length, for diagnostics and tests.
func (c *Continuation) Depth() int {
	n := 0
	for ; c != nil; c = c.next {
		n++
	}
	return n
}

// chainTail walks to the last frame of a chain.
func chainTail(c *Continuation) *Continuation {
	for c.next != nil {
		c = c.next
	}
	return c
}

// extendSuspension attaches outer onto the end of a fresh suspension's
// frame chain, so the outer frames run after the inner ones when the
// future resolves.
func extendSuspension(r EvalResult, outer *Continuation) EvalResult {
	if outer == nil {
		return r
	}
	if r.susp.Cont == nil {
		r.susp.Cont = outer
	} else {
		chainTail(r.susp.Cont).next = outer
	}
	return r
}

// traceRefs enumerates the heap references a frame chain pins. The
// scheduler exposes suspended tasks' chains as heap roots through this.
func (c *Continuation) traceRefs(visit func(Value)) {
	for ; c != nil; c = c.next {
		visit(c.env)
		visit(c.bodyEnv)
		visit(c.handler)
		for _, f := range c.forms {
			visit(f)
		}
		for _, p := range c.partial {
			visit(p)
		}
	}
}
