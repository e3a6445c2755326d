package vm

import "testing"

func TestModuleRegistryDefine(t *testing.T) {
	_, m := testHeap()
	r := NewModuleRegistry()

	parent := m.NewEnv(Nil)
	mod := r.Define(m, "util", parent)
	if mod.ID != 1 {
		t.Errorf("first module ID = %d, want 1", mod.ID)
	}
	if mod.Env.AsEnv().ModuleID() != mod.ID {
		t.Error("module env does not carry the module ID")
	}
	if mod.Env.AsEnv().Parent() != parent {
		t.Error("module env not parented")
	}

	// Redefining by name returns the existing module.
	if again := r.Define(m, "util", parent); again != mod {
		t.Error("redefinition created a second module")
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}
	if r.GetByName("util") != mod || r.Get(mod.ID) != mod {
		t.Error("registry lookups disagree")
	}
	if r.Get(99) != nil || r.GetByName("nope") != nil {
		t.Error("missing modules should be nil")
	}
}

func TestModuleExportsAndImports(t *testing.T) {
	_, m := testHeap()
	r := NewModuleRegistry()
	parent := m.NewEnv(Nil)

	lib := r.Define(m, "lib", parent)
	app := r.Define(m, "app", parent)

	sym := uint32(7)
	lib.Env.AsEnv().Define(m, sym, FromNumber(3))

	// Unexported bindings are invisible to importers.
	app.Import(lib, 0)
	if _, ok := app.resolveImported(r, sym); ok {
		t.Fatal("unexported symbol resolved through import")
	}

	lib.Export(sym)
	if !lib.Exports(sym) {
		t.Fatal("export not recorded")
	}
	v, ok := app.resolveImported(r, sym)
	if !ok || v.Number() != 3 {
		t.Error("exported symbol did not resolve through import")
	}
}

func TestModuleImportOrder(t *testing.T) {
	_, m := testHeap()
	r := NewModuleRegistry()
	parent := m.NewEnv(Nil)

	first := r.Define(m, "first", parent)
	second := r.Define(m, "second", parent)
	app := r.Define(m, "app", parent)

	sym := uint32(7)
	first.Env.AsEnv().Define(m, sym, FromNumber(1))
	first.Export(sym)
	second.Env.AsEnv().Define(m, sym, FromNumber(2))
	second.Export(sym)

	app.Import(first, 0)
	app.Import(second, 0)

	// The most recent import wins.
	if v, _ := app.resolveImported(r, sym); v.Number() != 2 {
		t.Errorf("resolved %v, want the later import", v.Number())
	}
}
