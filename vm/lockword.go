package vm

import (
	"sync"
	"unsafe"

	"github.com/petermattis/goid"
	"github.com/zeebo/xxh3"
)

func hdrPointer(hdr *Header) unsafe.Pointer { return unsafe.Pointer(hdr) }

// ---------------------------------------------------------------------------
// Object synchronization: thin locks and inflated monitors
// ---------------------------------------------------------------------------

// The 64-bit lockword in every Header multiplexes four states:
//
//	bits  0-15  state: unlocked, thin, inflated, hashed
//	bits 16-55  payload:
//	              thin:     owner (32 bits) | recursion (8 bits, shifted 32)
//	              inflated: monitor table ID
//	              hashed:   40-bit identity hash fragment
//	bits 56-62  version counter, bumped on every state transition
//	bit  63     shared flag, sticky once set by MarkShared
//
// Uncontended acquisition is a single CAS from unlocked to thin. Contention
// and recursion overflow inflate the lock to an off-heap monitor. Locking
// is only engaged for objects marked shared; thread-confined objects never
// touch the lockword.

const (
	lockStateMask uint64 = 0xFFFF

	lockStateUnlocked uint64 = 0
	lockStateThin     uint64 = 1
	lockStateInflated uint64 = 2
	lockStateHashed   uint64 = 3

	lockPayloadShift        = 16
	lockPayloadMask  uint64 = 0xFF_FFFF_FFFF // 40 bits

	lockThinRecShift        = 32 // within the payload
	lockThinRecMask  uint64 = 0xFF
	lockThinRecMax   uint64 = 0xFF

	lockVersionShift        = 56
	lockVersionMask  uint64 = 0x7F

	lockSharedBit uint64 = 1 << 63
)

func lockState(w uint64) uint64   { return w & lockStateMask }
func lockPayload(w uint64) uint64 { return (w >> lockPayloadShift) & lockPayloadMask }
func lockVersion(w uint64) uint64 { return (w >> lockVersionShift) & lockVersionMask }

// composeLockword builds a lockword preserving the shared flag of prev and
// bumping its version.
func composeLockword(prev, state, payload uint64) uint64 {
	version := (lockVersion(prev) + 1) & lockVersionMask
	return state |
		(payload&lockPayloadMask)<<lockPayloadShift |
		version<<lockVersionShift |
		prev&lockSharedBit
}

func thinPayload(owner uint32, recursion uint64) uint64 {
	return uint64(owner) | (recursion&lockThinRecMask)<<lockThinRecShift
}

func thinOwner(payload uint64) uint32   { return uint32(payload) }
func thinRecursion(payload uint64) uint64 { return (payload >> lockThinRecShift) & lockThinRecMask }

// lockOwnerID identifies the locking goroutine. Scheduler tasks run on
// host goroutines, so goroutine identity is lock identity in both cases.
func lockOwnerID() uint32 {
	return uint32(goid.Get())
}

// monitor is the inflated form of an object lock: a recursive mutex with
// a wait queue, living off-heap in the heap's monitor table.
type monitor struct {
	mu        sync.Mutex
	cond      *sync.Cond
	owner     uint32 // 0 = unowned
	recursion uint64
	hash      uint64
	hasHash   bool
}

func newMonitor() *monitor {
	mon := &monitor{}
	mon.cond = sync.NewCond(&mon.mu)
	return mon
}

func (mon *monitor) lock(owner uint32) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	if mon.owner == owner {
		mon.recursion++
		return
	}
	for mon.owner != 0 {
		mon.cond.Wait()
	}
	mon.owner = owner
	mon.recursion = 1
}

func (mon *monitor) unlock(owner uint32) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	if mon.owner != owner {
		panic("vm: monitor unlock by non-owner")
	}
	mon.recursion--
	if mon.recursion == 0 {
		mon.owner = 0
		mon.cond.Signal()
	}
}

// ---------------------------------------------------------------------------
// Heap-level lock operations
// ---------------------------------------------------------------------------

// MarkShared flags v as reachable from more than one task. From this point
// on, every structural mutation of the object goes through its lock.
func (h *Heap) MarkShared(v Value) {
	if !v.IsObject() {
		return
	}
	hdr := v.Header()
	for {
		old := hdr.lockword.Load()
		if old&lockSharedBit != 0 {
			return
		}
		if hdr.lockword.CompareAndSwap(old, old|lockSharedBit) {
			return
		}
	}
}

// IsShared reports whether v has been marked shared.
func (h *Heap) IsShared(v Value) bool {
	if !v.IsObject() {
		return false
	}
	return v.Header().lockword.Load()&lockSharedBit != 0
}

// Lock acquires v's object lock for the calling goroutine, inflating on
// contention or recursion overflow. Reentrant.
func (h *Heap) Lock(hdr *Header) {
	owner := lockOwnerID()
	for {
		old := hdr.lockword.Load()
		switch lockState(old) {
		case lockStateUnlocked:
			next := composeLockword(old, lockStateThin, thinPayload(owner, 1))
			if hdr.lockword.CompareAndSwap(old, next) {
				return
			}

		case lockStateThin:
			payload := lockPayload(old)
			if thinOwner(payload) == owner {
				rec := thinRecursion(payload)
				if rec < lockThinRecMax {
					next := composeLockword(old, lockStateThin, thinPayload(owner, rec+1))
					if hdr.lockword.CompareAndSwap(old, next) {
						return
					}
					continue
				}
				// Recursion counter saturated: inflate, carrying the count.
				if h.inflate(hdr, old, owner, rec+1, 0, false) {
					return
				}
				continue
			}
			// Contended: inflate on behalf of the current thin owner, then
			// queue on the monitor.
			if h.inflate(hdr, old, thinOwner(payload), thinRecursion(payload), 0, false) {
				continue
			}

		case lockStateInflated:
			mon := h.lookupMonitor(uint32(lockPayload(old)))
			if mon == nil {
				continue // raced with a transition, re-read
			}
			mon.lock(owner)
			return

		case lockStateHashed:
			// The lockword already carries the identity hash; move it into
			// a monitor so the hash survives locking.
			if h.inflate(hdr, old, owner, 1, lockPayload(old), true) {
				return
			}
		}
	}
}

// Unlock releases v's object lock. Panics if the object is not locked.
func (h *Heap) Unlock(hdr *Header) {
	owner := lockOwnerID()
	for {
		old := hdr.lockword.Load()
		switch lockState(old) {
		case lockStateThin:
			payload := lockPayload(old)
			if thinOwner(payload) != owner {
				panic("vm: unlock of object locked by another goroutine")
			}
			rec := thinRecursion(payload)
			var next uint64
			if rec > 1 {
				next = composeLockword(old, lockStateThin, thinPayload(owner, rec-1))
			} else {
				next = composeLockword(old, lockStateUnlocked, 0)
			}
			if hdr.lockword.CompareAndSwap(old, next) {
				return
			}

		case lockStateInflated:
			mon := h.lookupMonitor(uint32(lockPayload(old)))
			if mon == nil {
				continue
			}
			mon.unlock(owner)
			return

		default:
			panic("vm: unlock of unlocked object")
		}
	}
}

// inflate installs a monitor owned by owner with the given recursion
// count, replacing the observed lockword. Returns false if the lockword
// changed underneath us.
func (h *Heap) inflate(hdr *Header, observed uint64, owner uint32, recursion uint64, hash uint64, hasHash bool) bool {
	mon := newMonitor()
	mon.owner = owner
	mon.recursion = recursion
	mon.hash = hash
	mon.hasHash = hasHash

	id := h.registerMonitor(mon)
	next := composeLockword(observed, lockStateInflated, uint64(id))
	if hdr.lockword.CompareAndSwap(observed, next) {
		return true
	}
	h.unregisterMonitor(id)
	return false
}

// lockIfShared acquires v's lock only when the object is marked shared.
// Returns whether a lock was taken; the caller must pass the result to
// unlockIf.
func (h *Heap) lockIfShared(hdr *Header) bool {
	if hdr.lockword.Load()&lockSharedBit == 0 {
		return false
	}
	h.Lock(hdr)
	return true
}

func (h *Heap) unlockIf(hdr *Header, locked bool) {
	if locked {
		h.Unlock(hdr)
	}
}

// LockStateOf reports the current lock state name for diagnostics.
func (h *Heap) LockStateOf(hdr *Header) string {
	switch lockState(hdr.lockword.Load()) {
	case lockStateUnlocked:
		return "unlocked"
	case lockStateThin:
		return "thin"
	case lockStateInflated:
		return "inflated"
	case lockStateHashed:
		return "hashed"
	default:
		return "invalid"
	}
}

// IdentityHash returns a stable identity hash for the object, caching it
// in the lockword when the object is unlocked and in the monitor when it
// is inflated.
func (h *Heap) IdentityHash(hdr *Header) uint64 {
	for {
		old := hdr.lockword.Load()
		switch lockState(old) {
		case lockStateHashed:
			return lockPayload(old)

		case lockStateUnlocked:
			var buf [8]byte
			putUint64(buf[:], uint64(uintptr(hdrPointer(hdr))))
			hash := xxh3.Hash(buf[:]) & lockPayloadMask
			next := composeLockword(old, lockStateHashed, hash)
			if hdr.lockword.CompareAndSwap(old, next) {
				return hash
			}

		case lockStateThin:
			// Locked thin: inflate so the hash has somewhere to live.
			payload := lockPayload(old)
			h.inflate(hdr, old, thinOwner(payload), thinRecursion(payload), 0, false)

		case lockStateInflated:
			mon := h.lookupMonitor(uint32(lockPayload(old)))
			if mon == nil {
				continue
			}
			mon.mu.Lock()
			if !mon.hasHash {
				var buf [8]byte
				putUint64(buf[:], uint64(uintptr(hdrPointer(hdr))))
				mon.hash = xxh3.Hash(buf[:]) & lockPayloadMask
				mon.hasHash = true
			}
			hash := mon.hash
			mon.mu.Unlock()
			return hash
		}
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// ---------------------------------------------------------------------------
// Monitor table
// ---------------------------------------------------------------------------

func (h *Heap) registerMonitor(mon *monitor) uint32 {
	h.monitorsMu.Lock()
	defer h.monitorsMu.Unlock()
	id := h.nextMonitorID
	h.nextMonitorID++
	h.monitors[id] = mon
	return id
}

func (h *Heap) unregisterMonitor(id uint32) {
	h.monitorsMu.Lock()
	delete(h.monitors, id)
	h.monitorsMu.Unlock()
}

func (h *Heap) lookupMonitor(id uint32) *monitor {
	h.monitorsMu.RLock()
	defer h.monitorsMu.RUnlock()
	return h.monitors[id]
}

// MonitorCount returns the number of inflated monitors, for tests and
// sweeper stats.
func (h *Heap) MonitorCount() int {
	h.monitorsMu.RLock()
	defer h.monitorsMu.RUnlock()
	return len(h.monitors)
}

// releaseMonitor drops the monitor of a dead object, if any.
func (h *Heap) releaseMonitor(hdr *Header) {
	w := hdr.lockword.Load()
	if lockState(w) == lockStateInflated {
		h.unregisterMonitor(uint32(lockPayload(w)))
	}
}
