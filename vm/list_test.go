package vm

import (
	"testing"
	"unsafe"
)

func testHeap() (*Heap, *Mutator) {
	h := NewHeap()
	return h, h.Mutator()
}

func TestEmptyList(t *testing.T) {
	_, m := testHeap()
	l := m.NewList().AsList()

	if !l.IsEmpty() || l.Count() != 0 {
		t.Error("new list should be empty")
	}
	if !l.Head().IsNil() {
		t.Error("empty list head should be Nil")
	}
	if v := l.First(m); !v.IsError() {
		t.Error("first of empty list should be an error value")
	}
	if v := l.Rest(m); !v.IsError() {
		t.Error("rest of empty list should be an error value")
	}
}

func TestListFromSlice(t *testing.T) {
	_, m := testHeap()
	l := m.ListOf(FromNumber(1), FromNumber(2), FromNumber(3)).AsList()

	if l.Count() != 3 {
		t.Fatalf("Count = %d, want 3", l.Count())
	}
	if l.First(m).Number() != 1 || l.Last(m).Number() != 3 {
		t.Error("first/last wrong")
	}
	got := l.ToSlice()
	for i, want := range []float64{1, 2, 3} {
		if got[i].Number() != want {
			t.Errorf("elem %d = %v, want %v", i, got[i].Number(), want)
		}
	}
}

func TestPrependSharesChain(t *testing.T) {
	_, m := testHeap()
	base := m.ListOf(FromNumber(2), FromNumber(3)).AsList()
	longer := base.Prepend(m, FromNumber(1)).AsList()

	if base.Count() != 2 || longer.Count() != 3 {
		t.Fatal("counts wrong after prepend")
	}
	// The new list's second node is the old list's head node.
	if longer.Head().AsListNode().Next() != base.Head() {
		t.Error("prepend did not share the chain")
	}
}

func TestAppendKeepsShorterViewsIntact(t *testing.T) {
	_, m := testHeap()
	a := m.ListOf(FromNumber(1), FromNumber(2)).AsList()
	b := a.Append(m, FromNumber(3)).AsList()

	if a.Count() != 2 || b.Count() != 3 {
		t.Fatal("counts wrong after append")
	}
	if got := a.ToSlice(); len(got) != 2 {
		t.Errorf("original list sees %d elements after append", len(got))
	}
	if b.Last(m).Number() != 3 {
		t.Error("appended element missing")
	}
}

func TestAppendTwiceFromSameHeader(t *testing.T) {
	_, m := testHeap()
	a := m.ListOf(FromNumber(1), FromNumber(2), FromNumber(3)).AsList()
	b := a.Append(m, FromNumber(4)).AsList()
	c := a.Append(m, FromNumber(5)).AsList()

	// The second append must not re-splice the shared tail node; b keeps
	// its own extension and every node stays reachable from b's head.
	if got := b.ToSlice(); len(got) != 4 || got[3].Number() != 4 {
		t.Errorf("b = %v, want [1 2 3 4]", got)
	}
	if got := c.ToSlice(); len(got) != 4 || got[3].Number() != 5 {
		t.Errorf("c = %v, want [1 2 3 5]", got)
	}
	if b.Last(m).Number() != 4 || c.Last(m).Number() != 5 {
		t.Error("tails wrong after double append")
	}
	if got := a.ToSlice(); len(got) != 3 {
		t.Errorf("original list sees %d elements", len(got))
	}

	// b's tail must be the node its head chain actually ends at.
	node := b.Head().AsListNode()
	for !node.Next().IsNil() {
		node = node.Next().AsListNode()
	}
	if FromObjectPtr(unsafe.Pointer(node.header())) != b.tail {
		t.Error("b's tail node is not reachable from its head")
	}
}

func TestRestSharing(t *testing.T) {
	_, m := testHeap()
	l := m.ListOf(FromNumber(1), FromNumber(2), FromNumber(3)).AsList()

	r := l.Rest(m)
	if r.AsList().Count() != 2 {
		t.Fatalf("rest count = %d", r.AsList().Count())
	}
	// Rest shares nodes, no copying.
	if r.AsList().Head() != l.Head().AsListNode().Next() {
		t.Error("rest did not share nodes")
	}

	one := m.ListOf(FromNumber(9)).AsList()
	r1 := one.Rest(m)
	if !r1.AsList().IsEmpty() {
		t.Error("rest of one-element list should be a fresh empty list")
	}
}

func TestPopFront(t *testing.T) {
	_, m := testHeap()
	l := m.ListOf(FromNumber(1), FromNumber(2)).AsList()

	v, rest := l.PopFront(m)
	if v.Number() != 1 {
		t.Errorf("popped %v, want 1", v.Number())
	}
	if rest.AsList().Count() != 1 {
		t.Errorf("rest count = %d, want 1", rest.AsList().Count())
	}

	empty := m.NewList().AsList()
	if v, _ := empty.PopFront(m); !v.IsError() {
		t.Error("pop-front of empty list should be an error value")
	}
}

func TestPopBack(t *testing.T) {
	_, m := testHeap()
	l := m.ListOf(FromNumber(1), FromNumber(2), FromNumber(3)).AsList()

	v, rest := l.PopBack(m)
	if v.Number() != 3 {
		t.Errorf("popped %v, want 3", v.Number())
	}
	got := rest.AsList().ToSlice()
	if len(got) != 2 || got[0].Number() != 1 || got[1].Number() != 2 {
		t.Errorf("rest wrong after pop-back: %v", got)
	}
}

func TestNth(t *testing.T) {
	_, m := testHeap()
	l := m.ListOf(FromNumber(10), FromNumber(20), FromNumber(30)).AsList()

	if l.Nth(m, 1).Number() != 20 {
		t.Error("nth(1) wrong")
	}
	if v := l.Nth(m, 3); !v.IsError() {
		t.Error("nth out of bounds should be an error value")
	}
	if v := l.Nth(m, -1); !v.IsError() {
		t.Error("negative nth should be an error value")
	}
}
