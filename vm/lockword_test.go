package vm

import (
	"runtime"
	"sync"
	"testing"
)

func TestMarkSharedSticky(t *testing.T) {
	h, m := testHeap()
	v := m.NewVector()

	if h.IsShared(v) {
		t.Error("fresh object should not be shared")
	}
	h.MarkShared(v)
	if !h.IsShared(v) {
		t.Error("object not shared after MarkShared")
	}

	// Surviving a lock cycle: transitions must preserve the flag.
	h.Lock(v.Header())
	h.Unlock(v.Header())
	if !h.IsShared(v) {
		t.Error("shared flag lost across lock transition")
	}
}

func TestThinLockReentrant(t *testing.T) {
	h, m := testHeap()
	hdr := m.NewVector().Header()

	h.Lock(hdr)
	if got := h.LockStateOf(hdr); got != "thin" {
		t.Errorf("state after first lock = %q, want thin", got)
	}
	h.Lock(hdr)
	h.Unlock(hdr)
	if got := h.LockStateOf(hdr); got != "thin" {
		t.Errorf("state after partial unlock = %q, want thin", got)
	}
	h.Unlock(hdr)
	if got := h.LockStateOf(hdr); got != "unlocked" {
		t.Errorf("state after full unlock = %q, want unlocked", got)
	}
}

func TestUnlockOfUnlockedPanics(t *testing.T) {
	_, m := testHeap()
	hdr := m.NewVector().Header()

	defer func() {
		if recover() == nil {
			t.Error("unlock of unlocked object should panic")
		}
	}()
	m.heap.Unlock(hdr)
}

func TestContentionInflates(t *testing.T) {
	h, m := testHeap()
	hdr := m.NewVector().Header()

	h.Lock(hdr)

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Lock(hdr)
		close(acquired)
		h.Unlock(hdr)
	}()

	// Wait for the contender to inflate the lock on our behalf.
	for h.LockStateOf(hdr) != "inflated" {
		runtime.Gosched()
	}
	select {
	case <-acquired:
		t.Fatal("contender acquired the lock while we hold it")
	default:
	}

	h.Unlock(hdr)
	wg.Wait()
	<-acquired

	if h.MonitorCount() != 1 {
		t.Errorf("monitor count = %d, want 1", h.MonitorCount())
	}
}

func TestRecursionOverflowInflates(t *testing.T) {
	h, m := testHeap()
	hdr := m.NewVector().Header()

	depth := int(lockThinRecMax) + 2
	for i := 0; i < depth; i++ {
		h.Lock(hdr)
	}
	if got := h.LockStateOf(hdr); got != "inflated" {
		t.Errorf("state after recursion overflow = %q, want inflated", got)
	}
	for i := 0; i < depth; i++ {
		h.Unlock(hdr)
	}
}

func TestIdentityHashStable(t *testing.T) {
	h, m := testHeap()
	hdr := m.NewVector().Header()

	first := h.IdentityHash(hdr)
	if got := h.LockStateOf(hdr); got != "hashed" {
		t.Errorf("state after hashing = %q, want hashed", got)
	}
	if second := h.IdentityHash(hdr); second != first {
		t.Error("identity hash changed between calls")
	}

	// Locking a hashed object moves the hash into a monitor; it must not
	// change.
	h.Lock(hdr)
	if got := h.IdentityHash(hdr); got != first {
		t.Error("identity hash changed after inflation")
	}
	h.Unlock(hdr)
	if got := h.IdentityHash(hdr); got != first {
		t.Error("identity hash changed after unlock")
	}
}

func TestLockIfSharedSkipsConfined(t *testing.T) {
	h, m := testHeap()
	hdr := m.NewVector().Header()

	if h.lockIfShared(hdr) {
		t.Error("confined object should not be locked")
	}
	h.MarkShared(m.NewVector()) // unrelated object, no effect here
	if h.lockIfShared(hdr) {
		t.Error("confined object locked after marking another object")
	}
}
