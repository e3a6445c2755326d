package vm

import "sync"

// ---------------------------------------------------------------------------
// SymbolTable: Interned symbols and keywords
// ---------------------------------------------------------------------------

// SymbolTable interns symbol and keyword strings to unique IDs.
// Symbols and keywords live in separate ID spaces; a symbol and a keyword
// with the same spelling are distinct values. Interning the same string
// twice always yields the same ID, so identity comparison of the boxed
// values is string equality.
type SymbolTable struct {
	mu        sync.RWMutex
	byName    map[string]uint32 // symbol name -> ID
	byID      []string          // symbol ID -> name
	kwByName  map[string]uint32 // keyword name -> ID
	kwByID    []string          // keyword ID -> name
}

// NewSymbolTable creates a new empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName:   make(map[string]uint32),
		byID:     make([]string, 0, 256),
		kwByName: make(map[string]uint32),
		kwByID:   make([]string, 0, 64),
	}
}

// Intern returns the ID for a symbol, creating a new one if needed.
func (st *SymbolTable) Intern(name string) uint32 {
	// Fast path: read-only lookup
	st.mu.RLock()
	if id, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return id
	}
	st.mu.RUnlock()

	// Slow path: need to add new symbol
	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := st.byName[name]; ok {
		return id
	}

	id := uint32(len(st.byID))
	st.byName[name] = id
	st.byID = append(st.byID, name)
	return id
}

// InternKeyword returns the ID for a keyword, creating a new one if needed.
// The name is the keyword's spelling without the leading colon.
func (st *SymbolTable) InternKeyword(name string) uint32 {
	st.mu.RLock()
	if id, ok := st.kwByName[name]; ok {
		st.mu.RUnlock()
		return id
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if id, ok := st.kwByName[name]; ok {
		return id
	}

	id := uint32(len(st.kwByID))
	st.kwByName[name] = id
	st.kwByID = append(st.kwByID, name)
	return id
}

// Lookup returns the ID for a symbol, or 0 and false if not found.
func (st *SymbolTable) Lookup(name string) (uint32, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.byName[name]
	return id, ok
}

// Name returns the symbol name for an ID, or "" if invalid.
func (st *SymbolTable) Name(id uint32) string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if int(id) >= len(st.byID) {
		return ""
	}
	return st.byID[id]
}

// KeywordName returns the keyword name for an ID, or "" if invalid.
func (st *SymbolTable) KeywordName(id uint32) string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if int(id) >= len(st.kwByID) {
		return ""
	}
	return st.kwByID[id]
}

// Len returns the number of interned symbols.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// All returns all symbol names in ID order.
func (st *SymbolTable) All() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make([]string, len(st.byID))
	copy(result, st.byID)
	return result
}

// SymbolValue creates a Value from a symbol name.
func (st *SymbolTable) SymbolValue(name string) Value {
	return FromSymbolID(st.Intern(name))
}

// KeywordValue creates a Value from a keyword name.
func (st *SymbolTable) KeywordValue(name string) Value {
	return FromKeywordID(st.InternKeyword(name))
}
