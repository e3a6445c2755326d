package vm

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/petermattis/goid"
)

// ---------------------------------------------------------------------------
// Heap: allocator, keep-alive table, roots, write barrier
// ---------------------------------------------------------------------------

// Heap owns every blink heap object. Go's collector is the underlying
// memory manager; because object pointers are NaN-boxed into Value bits,
// Go cannot see them, so the heap keeps a keep-alive table mapping each
// live object header to its Go reference. The sweeper (sweeper.go) marks
// from the registered roots and drops unreachable entries from the table,
// which is what actually frees them.
type Heap struct {
	mu      sync.Mutex
	objects map[*Header]heapObject

	// Explicit roots pinned by the host plus providers that enumerate
	// runtime-owned roots (module exports, task contexts, future results).
	roots         map[Value]struct{}
	rootProviders []func(visit func(Value))

	// Remembered set fed by the write barrier: objects that received a
	// reference store since the last collection.
	remembered map[*Header]struct{}

	mutators   map[int64]*Mutator
	mutatorsMu sync.RWMutex

	monitors      map[uint32]*monitor
	monitorsMu    sync.RWMutex
	nextMonitorID uint32

	allocCount   atomic.Uint64
	barrierCount atomic.Uint64

	// onFree is invoked for each object released by a collection, while
	// still holding the object. The runtime uses it to drop inflated
	// monitors for dead objects.
	onFree func(h *Header)
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	h := &Heap{
		objects:       make(map[*Header]heapObject),
		roots:         make(map[Value]struct{}),
		remembered:    make(map[*Header]struct{}),
		mutators:      make(map[int64]*Mutator),
		monitors:      make(map[uint32]*monitor),
		nextMonitorID: 1,
	}
	h.onFree = h.releaseMonitor
	return h
}

// Mutator is a per-goroutine allocation context. All allocation goes
// through the current goroutine's mutator; callers obtain it with
// Heap.Mutator(). A goroutine that is done allocating should call
// Heap.ReleaseMutator to drop its context.
type Mutator struct {
	heap       *Heap
	goroutine  int64
	allocCount uint64
}

// Mutator returns the allocation context for the calling goroutine,
// creating it on first use.
func (h *Heap) Mutator() *Mutator {
	gid := goid.Get()

	h.mutatorsMu.RLock()
	m, ok := h.mutators[gid]
	h.mutatorsMu.RUnlock()
	if ok {
		return m
	}

	h.mutatorsMu.Lock()
	defer h.mutatorsMu.Unlock()
	if m, ok := h.mutators[gid]; ok {
		return m
	}
	m = &Mutator{heap: h, goroutine: gid}
	h.mutators[gid] = m
	return m
}

// ReleaseMutator destroys the calling goroutine's allocation context.
// Safe to call when no context exists.
func (h *Heap) ReleaseMutator() {
	gid := goid.Get()
	h.mutatorsMu.Lock()
	delete(h.mutators, gid)
	h.mutatorsMu.Unlock()
}

// MutatorCount returns the number of live allocation contexts.
func (h *Heap) MutatorCount() int {
	h.mutatorsMu.RLock()
	defer h.mutatorsMu.RUnlock()
	return len(h.mutators)
}

// adopt registers a freshly allocated object in the keep-alive table and
// returns its boxed value. Every alloc helper funnels through here.
func (m *Mutator) adopt(obj heapObject, size uintptr) Value {
	hdr := obj.header()
	hdr.totalSize = uint32(size)

	m.heap.mu.Lock()
	m.heap.objects[hdr] = obj
	m.heap.mu.Unlock()

	m.allocCount++
	m.heap.allocCount.Add(1)
	return FromObjectPtr(unsafe.Pointer(hdr))
}

// ObjectCount returns the number of live heap objects.
func (h *Heap) ObjectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// AllocCount returns the total number of allocations performed.
func (h *Heap) AllocCount() uint64 {
	return h.allocCount.Load()
}

// Contains reports whether v is a live object owned by this heap.
func (h *Heap) Contains(v Value) bool {
	if !v.IsObject() {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.objects[v.Header()]
	return ok
}

// ---------------------------------------------------------------------------
// Roots
// ---------------------------------------------------------------------------

// AddRoot pins v so the sweeper never reclaims it or anything it reaches.
func (h *Heap) AddRoot(v Value) {
	if !v.IsObject() {
		return
	}
	h.mu.Lock()
	h.roots[v] = struct{}{}
	h.mu.Unlock()
}

// RemoveRoot unpins a value previously pinned with AddRoot.
func (h *Heap) RemoveRoot(v Value) {
	h.mu.Lock()
	delete(h.roots, v)
	h.mu.Unlock()
}

// AddRootProvider registers a callback that enumerates additional roots
// at collection time. Providers must be registered before the sweeper
// starts and are never removed.
func (h *Heap) AddRootProvider(provider func(visit func(Value))) {
	h.mu.Lock()
	h.rootProviders = append(h.rootProviders, provider)
	h.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Write barrier
// ---------------------------------------------------------------------------

// WriteBarrier records a reference store into an existing object. Every
// mutation that stores a heap reference into an already-allocated object
// must call this with the owning object's header; initializing stores at
// allocation time do not.
func (h *Heap) WriteBarrier(owner *Header, ref Value) {
	if !ref.IsObject() {
		return
	}
	h.barrierCount.Add(1)
	h.mu.Lock()
	h.remembered[owner] = struct{}{}
	h.mu.Unlock()
}

// BarrierCount returns the total number of barriered reference stores.
func (h *Heap) BarrierCount() uint64 {
	return h.barrierCount.Load()
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// CollectStats describes one mark-and-sweep pass.
type CollectStats struct {
	Live  int
	Freed int
}

// Collect performs a stop-the-world mark-and-sweep over the keep-alive
// table. Objects unreachable from the roots are dropped, after which Go's
// collector can free them.
func (h *Heap) Collect() CollectStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	for hdr := range h.objects {
		hdr.clearMark()
	}

	var mark func(v Value)
	mark = func(v Value) {
		if !v.IsObject() {
			return
		}
		hdr := v.Header()
		obj, ok := h.objects[hdr]
		if !ok || hdr.marked() {
			return
		}
		hdr.setMark()
		obj.traceRefs(mark)
	}

	for root := range h.roots {
		mark(root)
	}
	for _, provider := range h.rootProviders {
		provider(mark)
	}

	stats := CollectStats{}
	for hdr := range h.objects {
		if hdr.marked() {
			stats.Live++
			continue
		}
		if h.onFree != nil {
			h.onFree(hdr)
		}
		delete(h.objects, hdr)
		stats.Freed++
	}

	// A full pass consumes the remembered set; starting the next cycle
	// with stale entries for live objects would only grow it unboundedly.
	h.remembered = make(map[*Header]struct{})
	return stats
}
