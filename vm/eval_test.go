package vm

import "testing"

// testRuntime builds a runtime with the background sweeper disabled so
// tests control collection points themselves.
func testRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Heap.SweepEnabled = false
	rt := NewRuntime(cfg)
	t.Cleanup(rt.Close)
	return rt
}

// form builds a call form from its elements.
func form(rt *Runtime, elems ...Value) Value {
	return rt.Heap.Mutator().ListOf(elems...)
}

func TestEvalSelfEvaluating(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	cases := []Value{
		FromNumber(42),
		Nil,
		True,
		False,
		rt.Keyword("ready"),
		m.NewStr("hello"),
		m.ListOf(), // empty list
	}
	for _, c := range cases {
		if got := rt.EvalBlocking(c); got != c {
			t.Errorf("value %#x did not evaluate to itself", uint64(c))
		}
	}
}

func TestEvalQuote(t *testing.T) {
	rt := testRuntime(t)

	quoted := form(rt, rt.Intern("quote"), form(rt, rt.Intern("+"), FromNumber(1)))
	got := rt.EvalBlocking(quoted)
	if !got.IsList() || got.AsList().Count() != 2 {
		t.Errorf("quote returned %s", rt.Render(got))
	}
}

func TestEvalUndefinedSymbol(t *testing.T) {
	rt := testRuntime(t)

	got := rt.EvalBlocking(rt.Intern("no-such-thing"))
	if !got.IsError() {
		t.Fatal("undefined symbol should evaluate to an error value")
	}
	if got.AsError().Kind != ErrUndefinedSymbol {
		t.Errorf("error kind = %v", got.AsError().Kind)
	}
}

func TestEvalDefAndCall(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	// (def twice (fn [x] (* x 2)))
	fnForm := form(rt, rt.Intern("fn"),
		m.VectorFromSlice([]Value{rt.Intern("x")}),
		form(rt, rt.Intern("*"), rt.Intern("x"), FromNumber(2)))
	def := form(rt, rt.Intern("def"), rt.Intern("twice"), fnForm)

	bound := rt.EvalBlocking(def)
	if !bound.IsFunction() {
		t.Fatalf("def returned %s", rt.Render(bound))
	}
	if bound.AsFunction().name != "twice" {
		t.Errorf("def did not name the function: %q", bound.AsFunction().name)
	}

	got := rt.EvalBlocking(form(rt, rt.Intern("twice"), FromNumber(21)))
	if got.Number() != 42 {
		t.Errorf("(twice 21) = %s", rt.Render(got))
	}
}

func TestEvalClosureCapture(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	// (def add-n (fn [n] (fn [x] (+ x n))))
	inner := form(rt, rt.Intern("fn"),
		m.VectorFromSlice([]Value{rt.Intern("x")}),
		form(rt, rt.Intern("+"), rt.Intern("x"), rt.Intern("n")))
	outer := form(rt, rt.Intern("fn"),
		m.VectorFromSlice([]Value{rt.Intern("n")}),
		inner)
	rt.EvalBlocking(form(rt, rt.Intern("def"), rt.Intern("add-n"), outer))
	rt.EvalBlocking(form(rt, rt.Intern("def"), rt.Intern("add3"),
		form(rt, rt.Intern("add-n"), FromNumber(3))))

	got := rt.EvalBlocking(form(rt, rt.Intern("add3"), FromNumber(4)))
	if got.Number() != 7 {
		t.Errorf("captured binding lost: %s", rt.Render(got))
	}
}

func TestEvalArityMismatch(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	fnForm := form(rt, rt.Intern("fn"),
		m.VectorFromSlice([]Value{rt.Intern("a"), rt.Intern("b")}),
		rt.Intern("a"))
	rt.EvalBlocking(form(rt, rt.Intern("def"), rt.Intern("pair"), fnForm))

	got := rt.EvalBlocking(form(rt, rt.Intern("pair"), FromNumber(1)))
	if !got.IsError() || got.AsError().Kind != ErrArityMismatch {
		t.Fatalf("got %s", rt.Render(got))
	}
	e := got.AsError()
	if e.Expected != 2 || e.Got != 1 {
		t.Errorf("arity error carries expected=%d got=%d", e.Expected, e.Got)
	}
}

func TestEvalVariadic(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	// (def tail (fn [x & more] more))
	fnForm := form(rt, rt.Intern("fn"),
		m.VectorFromSlice([]Value{rt.Intern("x"), rt.Intern("&"), rt.Intern("more")}),
		rt.Intern("more"))
	rt.EvalBlocking(form(rt, rt.Intern("def"), rt.Intern("tail"), fnForm))

	got := rt.EvalBlocking(form(rt, rt.Intern("tail"),
		FromNumber(1), FromNumber(2), FromNumber(3)))
	if !got.IsList() || got.AsList().Count() != 2 {
		t.Fatalf("rest parameter = %s", rt.Render(got))
	}
	if got.AsList().First(m).Number() != 2 {
		t.Error("rest parameter lost order")
	}

	if got := rt.EvalBlocking(form(rt, rt.Intern("tail"))); !got.IsError() {
		t.Error("too few args for variadic should error")
	}
}

func TestEvalIf(t *testing.T) {
	rt := testRuntime(t)

	cases := []struct {
		cond Value
		want float64
	}{
		{True, 1},
		{False, 2},
		{Nil, 2},
		{FromNumber(0), 1}, // only false and nil are falsy
	}
	for _, c := range cases {
		got := rt.EvalBlocking(form(rt, rt.Intern("if"), c.cond, FromNumber(1), FromNumber(2)))
		if got.Number() != c.want {
			t.Errorf("if %s = %s, want %v", rt.Render(c.cond), rt.Render(got), c.want)
		}
	}

	// Two-arm if with a falsy condition yields nil.
	got := rt.EvalBlocking(form(rt, rt.Intern("if"), False, FromNumber(1)))
	if !got.IsNil() {
		t.Errorf("(if false 1) = %s, want nil", rt.Render(got))
	}
}

func TestEvalAndOr(t *testing.T) {
	rt := testRuntime(t)

	if got := rt.EvalBlocking(form(rt, rt.Intern("and"))); got != True {
		t.Errorf("(and) = %s", rt.Render(got))
	}
	if got := rt.EvalBlocking(form(rt, rt.Intern("or"))); !got.IsNil() {
		t.Errorf("(or) = %s", rt.Render(got))
	}

	// and yields the first falsy value, or the last value.
	got := rt.EvalBlocking(form(rt, rt.Intern("and"), FromNumber(1), False, rt.Intern("boom")))
	if got != False {
		t.Errorf("and did not short-circuit: %s", rt.Render(got))
	}
	got = rt.EvalBlocking(form(rt, rt.Intern("or"), Nil, FromNumber(7), rt.Intern("boom")))
	if got.Number() != 7 {
		t.Errorf("or did not short-circuit: %s", rt.Render(got))
	}
}

func TestEvalLet(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	// (let [a 1 b (+ a 1)] (+ a b)) — later bindings see earlier ones.
	binds := m.VectorFromSlice([]Value{
		rt.Intern("a"), FromNumber(1),
		rt.Intern("b"), form(rt, rt.Intern("+"), rt.Intern("a"), FromNumber(1)),
	})
	got := rt.EvalBlocking(form(rt, rt.Intern("let"), binds,
		form(rt, rt.Intern("+"), rt.Intern("a"), rt.Intern("b"))))
	if got.Number() != 3 {
		t.Errorf("let = %s, want 3", rt.Render(got))
	}

	// Bindings do not leak into the enclosing scope.
	if got := rt.EvalBlocking(rt.Intern("a")); !got.IsError() {
		t.Error("let binding leaked")
	}
}

func TestEvalDo(t *testing.T) {
	rt := testRuntime(t)

	got := rt.EvalBlocking(form(rt, rt.Intern("do"),
		FromNumber(1), FromNumber(2), FromNumber(3)))
	if got.Number() != 3 {
		t.Errorf("do = %s, want last form", rt.Render(got))
	}
	if got := rt.EvalBlocking(form(rt, rt.Intern("do"))); !got.IsNil() {
		t.Errorf("(do) = %s, want nil", rt.Render(got))
	}
}

func TestEvalErrorShortCircuit(t *testing.T) {
	rt := testRuntime(t)

	// An error in argument position aborts the call without evaluating
	// the remaining arguments.
	rt.EvalBlocking(form(rt, rt.Intern("def"), rt.Intern("hit"), FromNumber(0)))
	bad := form(rt, rt.Intern("+"),
		rt.Intern("no-such-thing"),
		form(rt, rt.Intern("def"), rt.Intern("hit"), FromNumber(1)))
	got := rt.EvalBlocking(bad)
	if !got.IsError() || got.AsError().Kind != ErrUndefinedSymbol {
		t.Fatalf("got %s", rt.Render(got))
	}
	if rt.EvalBlocking(rt.Intern("hit")).Number() != 0 {
		t.Error("argument after the error was still evaluated")
	}
}

func TestEvalTry(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	// A non-error body passes through untouched.
	got := rt.EvalBlocking(form(rt, rt.Intern("try"), FromNumber(1), FromNumber(99)))
	if got.Number() != 1 {
		t.Errorf("try of clean body = %s", rt.Render(got))
	}

	// A callable handler receives the error value.
	handler := form(rt, rt.Intern("fn"),
		m.VectorFromSlice([]Value{rt.Intern("e")}),
		form(rt, rt.Intern("err-payload"), rt.Intern("e")))
	body := form(rt, rt.Intern("err"), rt.Keyword("nope"))
	got = rt.EvalBlocking(form(rt, rt.Intern("try"), body, handler))
	if got != rt.Keyword("nope") {
		t.Errorf("handler result = %s", rt.Render(got))
	}

	// A non-callable handler value replaces the error.
	got = rt.EvalBlocking(form(rt, rt.Intern("try"), rt.Intern("no-such-thing"), FromNumber(7)))
	if got.Number() != 7 {
		t.Errorf("fallback handler = %s", rt.Render(got))
	}
}

func TestEvalUserError(t *testing.T) {
	rt := testRuntime(t)

	got := rt.EvalBlocking(form(rt, rt.Intern("err"), rt.Keyword("bad-input")))
	if !got.IsError() || got.AsError().Kind != ErrUserDefined {
		t.Fatalf("err = %s", rt.Render(got))
	}
	if got.AsError().Payload != rt.Keyword("bad-input") {
		t.Error("error payload lost")
	}
}

func TestEvalQuasiquote(t *testing.T) {
	rt := testRuntime(t)

	rt.EvalBlocking(form(rt, rt.Intern("def"), rt.Intern("x"), FromNumber(5)))

	// `(a ~x ~@(list 1 2)) => (a 5 1 2)
	template := form(rt, rt.Intern("quasiquote"), form(rt,
		rt.Intern("a"),
		form(rt, rt.Intern("unquote"), rt.Intern("x")),
		form(rt, rt.Intern("unquote-splicing"),
			form(rt, rt.Intern("list"), FromNumber(1), FromNumber(2)))))
	got := rt.EvalBlocking(template)
	if !got.IsList() {
		t.Fatalf("quasiquote = %s", rt.Render(got))
	}
	elems := got.AsList().ToSlice()
	if len(elems) != 4 {
		t.Fatalf("quasiquote produced %d elements", len(elems))
	}
	if elems[0] != rt.Intern("a") || elems[1].Number() != 5 ||
		elems[2].Number() != 1 || elems[3].Number() != 2 {
		t.Errorf("quasiquote = %s", rt.Render(got))
	}
}

func TestEvalUnquoteOutsideQuasiquote(t *testing.T) {
	rt := testRuntime(t)

	got := rt.EvalBlocking(form(rt, rt.Intern("unquote"), FromNumber(1)))
	if !got.IsError() {
		t.Error("bare unquote should be an error")
	}
}

func TestEvalMacro(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	// (macro unless [cond then] `(if ~cond nil ~then))
	body := form(rt, rt.Intern("quasiquote"), form(rt,
		rt.Intern("if"),
		form(rt, rt.Intern("unquote"), rt.Intern("cond")),
		Nil,
		form(rt, rt.Intern("unquote"), rt.Intern("then"))))
	def := form(rt, rt.Intern("macro"), rt.Intern("unless"),
		m.VectorFromSlice([]Value{rt.Intern("cond"), rt.Intern("then")}),
		body)
	if got := rt.EvalBlocking(def); !got.IsMacro() {
		t.Fatalf("macro def = %s", rt.Render(got))
	}

	got := rt.EvalBlocking(form(rt, rt.Intern("unless"), False, FromNumber(9)))
	if got.Number() != 9 {
		t.Errorf("(unless false 9) = %s", rt.Render(got))
	}
	got = rt.EvalBlocking(form(rt, rt.Intern("unless"), True, rt.Intern("boom")))
	if !got.IsNil() {
		t.Errorf("(unless true boom) = %s, want nil without evaluating boom", rt.Render(got))
	}
}

func TestEvalApplyNative(t *testing.T) {
	rt := testRuntime(t)

	got := rt.EvalBlocking(form(rt, rt.Intern("apply"), rt.Intern("+"),
		form(rt, rt.Intern("list"), FromNumber(1), FromNumber(2), FromNumber(3))))
	if got.Number() != 6 {
		t.Errorf("apply = %s", rt.Render(got))
	}
}

func TestEvalCallNonCallable(t *testing.T) {
	rt := testRuntime(t)

	got := rt.EvalBlocking(form(rt, FromNumber(1), FromNumber(2)))
	if !got.IsError() {
		t.Error("calling a number should be an error")
	}
}

func TestEvalModuleDefineAndImport(t *testing.T) {
	rt := testRuntime(t)

	// (mod geometry (def pi 3.14159))
	modForm := form(rt, rt.Intern("mod"), rt.Intern("geometry"),
		form(rt, rt.Intern("def"), rt.Intern("pi"), FromNumber(3.14159)))
	got := rt.EvalBlocking(modForm)
	if !got.IsModule() {
		t.Fatalf("mod = %s", rt.Render(got))
	}

	// pi is not visible in main before importing.
	if got := rt.EvalBlocking(rt.Intern("pi")); !got.IsError() {
		t.Fatal("module binding visible without import")
	}

	rt.EvalBlocking(form(rt, rt.Intern("imp"), rt.Intern("geometry")))
	got = rt.EvalBlocking(rt.Intern("pi"))
	if got.Number() != 3.14159 {
		t.Errorf("imported binding = %s", rt.Render(got))
	}
}

func TestSuspendResumeEquivalence(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	// Deref of a pending future under a non-blocking context suspends;
	// resuming with the eventual value must produce exactly what deref of
	// an already-complete future produces.
	ctx := &EvalContext{rt: rt, m: m}

	h := rt.Futures.Create()
	expr := form(rt, rt.Intern("+"), FromNumber(1),
		form(rt, rt.Intern("deref"), m.NewFutureValue(h)))

	r := ctx.Eval(expr, rt.MainModule().Env)
	if !r.IsSuspended() {
		t.Fatalf("deref of pending future did not suspend: %s", rt.Render(r.Value()))
	}
	if r.Suspension().Future != h {
		t.Error("suspension carries the wrong future")
	}

	rt.Futures.Complete(h, FromNumber(41))
	resumed := ctx.Resume(r.Suspension().Cont, FromNumber(41))
	if resumed.IsSuspended() {
		t.Fatal("resume suspended again")
	}

	h2 := rt.Futures.Create()
	rt.Futures.Complete(h2, FromNumber(41))
	direct := ctx.Eval(form(rt, rt.Intern("+"), FromNumber(1),
		form(rt, rt.Intern("deref"), m.NewFutureValue(h2))), rt.MainModule().Env)

	if resumed.Value() != direct.Value() {
		t.Errorf("resumed = %s, direct = %s", rt.Render(resumed.Value()), rt.Render(direct.Value()))
	}
	if resumed.Value().Number() != 42 {
		t.Errorf("result = %s, want 42", rt.Render(resumed.Value()))
	}
}
