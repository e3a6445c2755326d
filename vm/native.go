package vm

import "sync"

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// NativeFn is a function implemented in Go. It receives already-evaluated
// arguments and may return an error value or a suspension like any other
// callable.
type NativeFn func(ctx *EvalContext, args []Value) EvalResult

// NativeRegistry maps native function handles to their implementations.
// The registry only grows; handles are stable for the life of the
// runtime, which is what lets them live in immediate values instead of
// on the heap.
type NativeRegistry struct {
	mu    sync.RWMutex
	fns   []NativeFn
	names []string
}

// NewNativeRegistry creates an empty native registry.
func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{
		fns:   make([]NativeFn, 0, 64),
		names: make([]string, 0, 64),
	}
}

// Register adds fn under the given name and returns its handle value.
func (r *NativeRegistry) Register(name string, fn NativeFn) Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uint32(len(r.fns))
	r.fns = append(r.fns, fn)
	r.names = append(r.names, name)
	return FromNativeID(id)
}

// Lookup returns the implementation for a handle, or nil if out of range.
func (r *NativeRegistry) Lookup(id uint32) NativeFn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.fns) {
		return nil
	}
	return r.fns[id]
}

// Name returns the registered name for a handle, or "".
func (r *NativeRegistry) Name(id uint32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.names) {
		return ""
	}
	return r.names[id]
}

// Len returns the number of registered natives.
func (r *NativeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fns)
}
