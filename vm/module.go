package vm

import (
	"sync"
)

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

// Module is a named top-level namespace: an environment for its
// definitions, an export list, and the modules it has imported. Module
// values are immediates (tagModule) carrying the registry ID, so they
// cost nothing to copy and never interact with the heap sweeper; the
// registry itself roots every module environment.
type Module struct {
	ID   uint32
	Name string
	Env  Value // EnvObject

	mu      sync.RWMutex
	exports map[uint32]struct{} // exported symbol IDs
	imports []uint32            // imported module IDs, in import order
	aliases map[uint32]uint32   // alias symbol ID -> module ID
}

// Exports reports whether the module exports sym.
func (mod *Module) Exports(sym uint32) bool {
	mod.mu.RLock()
	defer mod.mu.RUnlock()
	_, ok := mod.exports[sym]
	return ok
}

// Export adds sym to the module's export list.
func (mod *Module) Export(sym uint32) {
	mod.mu.Lock()
	mod.exports[sym] = struct{}{}
	mod.mu.Unlock()
}

// ExportedSymbols returns the exported symbol IDs in unspecified order.
func (mod *Module) ExportedSymbols() []uint32 {
	mod.mu.RLock()
	defer mod.mu.RUnlock()
	out := make([]uint32, 0, len(mod.exports))
	for sym := range mod.exports {
		out = append(out, sym)
	}
	return out
}

// ModuleRegistry owns all modules of a runtime.
type ModuleRegistry struct {
	mu      sync.RWMutex
	byID    map[uint32]*Module
	byName  map[string]uint32
	nextID  uint32
}

// NewModuleRegistry creates an empty module registry. IDs start at 1 so
// that 0 can mean "no module".
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		byID:   make(map[uint32]*Module),
		byName: make(map[string]uint32),
		nextID: 1,
	}
}

// Define creates a module whose root environment is parented to parent
// (usually the runtime's global environment), or returns the existing
// module of that name.
func (r *ModuleRegistry) Define(m *Mutator, name string, parent Value) *Module {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		return r.byID[id]
	}

	id := r.nextID
	r.nextID++

	env := m.NewEnv(parent)
	env.AsEnv().moduleID = id

	mod := &Module{
		ID:      id,
		Name:    name,
		Env:     env,
		exports: make(map[uint32]struct{}),
		aliases: make(map[uint32]uint32),
	}
	r.byID[id] = mod
	r.byName[name] = id
	return mod
}

// Get returns the module with the given ID, or nil.
func (r *ModuleRegistry) Get(id uint32) *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// GetByName returns the module with the given name, or nil.
func (r *ModuleRegistry) GetByName(name string) *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byName[name]; ok {
		return r.byID[id]
	}
	return nil
}

// Count returns the number of defined modules.
func (r *ModuleRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Import records that mod imports other, optionally under an alias
// symbol.
func (mod *Module) Import(other *Module, alias uint32) {
	mod.mu.Lock()
	defer mod.mu.Unlock()
	mod.imports = append(mod.imports, other.ID)
	if alias != 0 {
		mod.aliases[alias] = other.ID
	}
}

// resolveImported looks sym up in the exports of mod's imports, most
// recent import first.
func (mod *Module) resolveImported(r *ModuleRegistry, sym uint32) (Value, bool) {
	mod.mu.RLock()
	imports := make([]uint32, len(mod.imports))
	copy(imports, mod.imports)
	mod.mu.RUnlock()

	for i := len(imports) - 1; i >= 0; i-- {
		other := r.Get(imports[i])
		if other == nil || !other.Exports(sym) {
			continue
		}
		if v, ok := other.Env.AsEnv().Lookup(sym); ok {
			return v, true
		}
	}
	return Nil, false
}

// rootEnvs passes every module environment to visit; the heap uses this
// as a root provider.
func (r *ModuleRegistry) rootEnvs(visit func(Value)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, mod := range r.byID {
		visit(mod.Env)
	}
}
