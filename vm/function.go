package vm

import "unsafe"

// ---------------------------------------------------------------------------
// Functions and macros
// ---------------------------------------------------------------------------

// FunctionObject is a user-defined function: parameter symbols, body
// forms, and the defining environment captured as a closure. A variadic
// function collects trailing arguments into a list bound to restParam.
type FunctionObject struct {
	hdr       Header
	name      string // "" for anonymous functions
	params    []uint32
	restParam uint32
	variadic  bool
	body      []Value
	env       Value // EnvObject
}

func (f *FunctionObject) header() *Header { return &f.hdr }

func (f *FunctionObject) traceRefs(visit func(Value)) {
	visit(f.env)
	for _, form := range f.body {
		visit(form)
	}
}

// Name returns the function's name, or "" if anonymous.
func (f *FunctionObject) Name() string { return f.name }

// Arity returns the fixed parameter count and whether the function is
// variadic.
func (f *FunctionObject) Arity() (int, bool) { return len(f.params), f.variadic }

// Env returns the captured defining environment.
func (f *FunctionObject) Env() Value { return f.env }

// SetName names an anonymous function after the fact; def uses this so
// errors can mention the binding name.
func (f *FunctionObject) SetName(name string) {
	if f.name == "" {
		f.name = name
	}
}

// NewFunction allocates a function closure.
func (m *Mutator) NewFunction(name string, params []uint32, restParam uint32, variadic bool, body []Value, env Value) Value {
	f := &FunctionObject{
		name:      name,
		params:    params,
		restParam: restParam,
		variadic:  variadic,
		body:      body,
		env:       env,
	}
	f.hdr.typeTag = TagFunction
	return m.adopt(f, unsafe.Sizeof(*f))
}

// MacroObject is a macro: structurally a function whose call receives its
// argument forms unevaluated and whose result is evaluated in the
// caller's environment.
type MacroObject struct {
	hdr       Header
	name      string
	params    []uint32
	restParam uint32
	variadic  bool
	body      []Value
	env       Value
}

func (mc *MacroObject) header() *Header { return &mc.hdr }

func (mc *MacroObject) traceRefs(visit func(Value)) {
	visit(mc.env)
	for _, form := range mc.body {
		visit(form)
	}
}

// Name returns the macro's name.
func (mc *MacroObject) Name() string { return mc.name }

// NewMacro allocates a macro.
func (m *Mutator) NewMacro(name string, params []uint32, restParam uint32, variadic bool, body []Value, env Value) Value {
	mc := &MacroObject{
		name:      name,
		params:    params,
		restParam: restParam,
		variadic:  variadic,
		body:      body,
		env:       env,
	}
	mc.hdr.typeTag = TagMacro
	return m.adopt(mc, unsafe.Sizeof(*mc))
}
