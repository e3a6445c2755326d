package vm

import "testing"

func TestEnvDefineAndLookup(t *testing.T) {
	_, m := testHeap()

	root := m.NewEnv(Nil)
	child := m.NewEnv(root)

	sym := uint32(1)
	root.AsEnv().Define(m, sym, FromNumber(1))
	if v, ok := child.AsEnv().Lookup(sym); !ok || v.Number() != 1 {
		t.Error("lookup did not walk the parent chain")
	}

	// Shadowing: child binding wins without touching the root.
	child.AsEnv().Define(m, sym, FromNumber(2))
	if v, _ := child.AsEnv().Lookup(sym); v.Number() != 2 {
		t.Error("child binding did not shadow")
	}
	if v, _ := root.AsEnv().Lookup(sym); v.Number() != 1 {
		t.Error("shadowing mutated the root")
	}

	if _, ok := child.AsEnv().Lookup(99); ok {
		t.Error("unbound symbol resolved")
	}
}

func TestEnvSetExisting(t *testing.T) {
	_, m := testHeap()

	root := m.NewEnv(Nil)
	child := m.NewEnv(root)
	sym := uint32(1)
	root.AsEnv().Define(m, sym, FromNumber(1))

	// SetExisting rebinds in the frame that holds the binding, not the
	// frame it was called on.
	if !child.AsEnv().SetExisting(m, sym, FromNumber(5)) {
		t.Fatal("setexisting missed a bound symbol")
	}
	if v, _ := root.AsEnv().Lookup(sym); v.Number() != 5 {
		t.Error("setexisting did not reach the owning frame")
	}
	if len(child.AsEnv().bindings) != 0 {
		t.Error("setexisting created a binding in the wrong frame")
	}

	if child.AsEnv().SetExisting(m, 99, Nil) {
		t.Error("setexisting of unbound symbol should fail")
	}
}
