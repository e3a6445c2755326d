package vm

import (
	"sync"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Futures
// ---------------------------------------------------------------------------

// FutureState is the lifecycle of a future.
type FutureState int32

const (
	FuturePending FutureState = iota
	FutureReady
	FutureFailed
)

// FutureHandle names a registry slot plus the generation it was issued
// for. A handle outliving its slot (the future was released and the slot
// reissued) is detected by the generation check and surfaces as a
// recoverable error value, never as foreign data.
type FutureHandle struct {
	ID  uint32
	Gen uint32
}

type futureEntry struct {
	gen uint32

	mu      sync.Mutex
	state   FutureState
	result  Value
	bridged bool
	done    chan struct{}
	waiters []func(result Value)
}

// FutureRegistry owns every future of a runtime. Slot IDs are reused
// through a free list; each reuse bumps the slot generation so stale
// handles from the previous tenant miss.
type FutureRegistry struct {
	mu      sync.RWMutex
	entries map[uint32]*futureEntry
	free    []FutureHandle
	nextID  uint32
}

// NewFutureRegistry creates an empty future registry. IDs start at 1.
func NewFutureRegistry() *FutureRegistry {
	return &FutureRegistry{
		entries: make(map[uint32]*futureEntry),
		nextID:  1,
	}
}

// Create allocates a pending future and returns its handle.
func (r *FutureRegistry) Create() FutureHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var h FutureHandle
	if n := len(r.free); n > 0 {
		h = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		h = FutureHandle{ID: r.nextID, Gen: 1}
		r.nextID++
	}
	r.entries[h.ID] = &futureEntry{
		gen:    h.Gen,
		state:  FuturePending,
		result: Nil,
		done:   make(chan struct{}),
	}
	return h
}

func (r *FutureRegistry) lookup(h FutureHandle) *futureEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entries[h.ID]
	if e == nil || e.gen != h.Gen {
		return nil
	}
	return e
}

// Poll returns the future's state and, when resolved, its result.
// A stale handle returns ok=false.
func (r *FutureRegistry) Poll(h FutureHandle) (state FutureState, result Value, ok bool) {
	e := r.lookup(h)
	if e == nil {
		return FuturePending, Nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.result, true
}

// resolve writes the result exactly once and drains the waiter list.
// Returns false for a stale handle or an already-resolved future.
func (r *FutureRegistry) resolve(h FutureHandle, state FutureState, result Value) bool {
	e := r.lookup(h)
	if e == nil {
		return false
	}

	e.mu.Lock()
	if e.state != FuturePending {
		e.mu.Unlock()
		return false
	}
	e.state = state
	e.result = result
	waiters := e.waiters
	e.waiters = nil
	close(e.done)
	e.mu.Unlock()

	for _, w := range waiters {
		w(result)
	}
	return true
}

// Complete resolves the future with a value. Completing twice is a no-op
// returning false.
func (r *FutureRegistry) Complete(h FutureHandle, v Value) bool {
	return r.resolve(h, FutureReady, v)
}

// Fail resolves the future with an error value.
func (r *FutureRegistry) Fail(h FutureHandle, errVal Value) bool {
	return r.resolve(h, FutureFailed, errVal)
}

// AddWaiter registers fn to run when the future resolves; if it already
// has, fn runs immediately on the calling goroutine. Returns false for a
// stale handle.
func (r *FutureRegistry) AddWaiter(h FutureHandle, fn func(result Value)) bool {
	e := r.lookup(h)
	if e == nil {
		return false
	}
	e.mu.Lock()
	if e.state != FuturePending {
		result := e.result
		e.mu.Unlock()
		fn(result)
		return true
	}
	e.waiters = append(e.waiters, fn)
	e.mu.Unlock()
	return true
}

// Wait blocks the calling goroutine until the future resolves and
// returns its result. Only for host callers outside the scheduler; tasks
// suspend instead. Returns ok=false for a stale handle.
func (r *FutureRegistry) Wait(h FutureHandle) (Value, bool) {
	e := r.lookup(h)
	if e == nil {
		return Nil, false
	}
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, true
}

// MarkBridged flags the future as resolved by a host goroutine rather
// than another task; the scheduler uses this to distinguish suspended
// from bridge-waiting tasks.
func (r *FutureRegistry) MarkBridged(h FutureHandle) {
	if e := r.lookup(h); e != nil {
		e.mu.Lock()
		e.bridged = true
		e.mu.Unlock()
	}
}

// IsBridged reports whether the future is bridge-resolved.
func (r *FutureRegistry) IsBridged(h FutureHandle) bool {
	e := r.lookup(h)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridged
}

// Release frees the future's slot for reuse under a bumped generation.
// Outstanding handles to the released slot become stale.
func (r *FutureRegistry) Release(h FutureHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[h.ID]
	if e == nil || e.gen != h.Gen {
		return
	}
	delete(r.entries, h.ID)
	r.free = append(r.free, FutureHandle{ID: h.ID, Gen: h.Gen + 1})
}

// Count returns the number of live futures.
func (r *FutureRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SweepResolved releases every resolved future with no registered
// waiters, returning the number swept. The registry sweeper calls this
// periodically.
func (r *FutureRegistry) SweepResolved() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for id, e := range r.entries {
		e.mu.Lock()
		dead := e.state != FuturePending && len(e.waiters) == 0
		e.mu.Unlock()
		if dead {
			delete(r.entries, id)
			r.free = append(r.free, FutureHandle{ID: id, Gen: e.gen + 1})
			swept++
		}
	}
	return swept
}

// rootResults passes every resolved result to visit; the heap uses this
// as a root provider so results stay live until their futures are
// released.
func (r *FutureRegistry) rootResults(visit func(Value)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.mu.Lock()
		if e.state != FuturePending {
			visit(e.result)
		}
		e.mu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// Future values
// ---------------------------------------------------------------------------

// FutureObject is the heap value wrapping a future handle; it is what
// go-expressions return and what deref consumes.
type FutureObject struct {
	hdr    Header
	Handle FutureHandle
}

func (f *FutureObject) header() *Header       { return &f.hdr }
func (f *FutureObject) traceRefs(func(Value)) {}

// NewFutureValue allocates a future value wrapping h.
func (m *Mutator) NewFutureValue(h FutureHandle) Value {
	f := &FutureObject{Handle: h}
	f.hdr.typeTag = TagFuture
	return m.adopt(f, unsafe.Sizeof(*f))
}
