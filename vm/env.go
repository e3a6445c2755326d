package vm

import "unsafe"

// ---------------------------------------------------------------------------
// Environments
// ---------------------------------------------------------------------------

// EnvObject is a lexical environment frame: bindings from symbol IDs to
// values plus a parent reference. Lookup walks the parent chain; the
// outermost frame of a module chain carries the module ID so resolution
// can continue into the module's imports.
type EnvObject struct {
	hdr      Header
	parent   Value // Env or Nil
	moduleID uint32
	bindings map[uint32]Value
}

func (e *EnvObject) header() *Header { return &e.hdr }

func (e *EnvObject) traceRefs(visit func(Value)) {
	visit(e.parent)
	for _, v := range e.bindings {
		visit(v)
	}
}

// NewEnv allocates an environment frame with the given parent (Env or
// Nil).
func (m *Mutator) NewEnv(parent Value) Value {
	e := &EnvObject{parent: parent, bindings: make(map[uint32]Value)}
	e.hdr.typeTag = TagEnv
	return m.adopt(e, unsafe.Sizeof(*e))
}

// Parent returns the parent frame, or Nil at the chain root.
func (e *EnvObject) Parent() Value { return e.parent }

// ModuleID returns the owning module's ID, or 0 for plain frames.
func (e *EnvObject) ModuleID() uint32 { return e.moduleID }

// Define binds sym in this frame, shadowing any outer binding.
func (e *EnvObject) Define(m *Mutator, sym uint32, v Value) {
	locked := m.heap.lockIfShared(&e.hdr)
	defer m.heap.unlockIf(&e.hdr, locked)

	e.bindings[sym] = v
	m.heap.WriteBarrier(&e.hdr, v)
}

// Lookup resolves sym along the parent chain.
func (e *EnvObject) Lookup(sym uint32) (Value, bool) {
	for env := e; ; {
		if v, ok := env.bindings[sym]; ok {
			return v, true
		}
		if env.parent.IsNil() {
			return Nil, false
		}
		env = env.parent.AsEnv()
	}
}

// SetExisting rebinds sym in the nearest frame that already binds it.
// Returns false if no frame binds sym.
func (e *EnvObject) SetExisting(m *Mutator, sym uint32, v Value) bool {
	for env := e; ; {
		if _, ok := env.bindings[sym]; ok {
			locked := m.heap.lockIfShared(&env.hdr)
			env.bindings[sym] = v
			m.heap.WriteBarrier(&env.hdr, v)
			m.heap.unlockIf(&env.hdr, locked)
			return true
		}
		if env.parent.IsNil() {
			return false
		}
		env = env.parent.AsEnv()
	}
}
