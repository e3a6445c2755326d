package vm

import "unsafe"

// ---------------------------------------------------------------------------
// Persistent linked list
// ---------------------------------------------------------------------------

// ListObject is the list header: a length plus head and tail node
// references. Nodes form a singly linked chain; the tail reference makes
// append and last O(1). Headers are cheap and freely allocated; Rest
// returns a new header sharing the chain, so derived lists share
// structure with their parents.
//
// Invariants: head and tail are both node references or both Nil, and
// length is 0 exactly when head is Nil.
type ListObject struct {
	hdr    Header
	length uint32
	head   Value // ListNode or Nil
	tail   Value // ListNode or Nil
}

// ListNode is one chain cell: a value and the next node or Nil.
type ListNode struct {
	hdr   Header
	value Value
	next  Value // ListNode or Nil
}

func (l *ListObject) header() *Header { return &l.hdr }
func (n *ListNode) header() *Header   { return &n.hdr }

func (l *ListObject) traceRefs(visit func(Value)) {
	visit(l.head)
	visit(l.tail)
}

func (n *ListNode) traceRefs(visit func(Value)) {
	visit(n.value)
	visit(n.next)
}

// Value returns the element stored in the node.
func (n *ListNode) Value() Value { return n.value }

// Next returns the following node reference, or Nil at the end.
func (n *ListNode) Next() Value { return n.next }

// Count returns the number of elements.
func (l *ListObject) Count() int { return int(l.length) }

// IsEmpty reports whether the list has no elements.
func (l *ListObject) IsEmpty() bool { return l.length == 0 }

// Head returns the first node reference, or Nil for the empty list.
func (l *ListObject) Head() Value { return l.head }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// NewList allocates an empty list.
func (m *Mutator) NewList() Value {
	l := &ListObject{head: Nil, tail: Nil}
	l.hdr.typeTag = TagList
	return m.adopt(l, unsafe.Sizeof(*l))
}

func (m *Mutator) newListNode(value, next Value) Value {
	n := &ListNode{value: value, next: next}
	n.hdr.typeTag = TagListNode
	return m.adopt(n, unsafe.Sizeof(*n))
}

func (m *Mutator) newListHeader(length uint32, head, tail Value) Value {
	l := &ListObject{length: length, head: head, tail: tail}
	l.hdr.typeTag = TagList
	return m.adopt(l, unsafe.Sizeof(*l))
}

// ListFromSlice allocates a list holding the given elements in order.
func (m *Mutator) ListFromSlice(elems []Value) Value {
	if len(elems) == 0 {
		return m.NewList()
	}
	next := Nil
	var tail Value = Nil
	for i := len(elems) - 1; i >= 0; i-- {
		node := m.newListNode(elems[i], next)
		if tail.IsNil() {
			tail = node
		}
		next = node
	}
	return m.newListHeader(uint32(len(elems)), next, tail)
}

// ListOf allocates a list of the given elements.
func (m *Mutator) ListOf(elems ...Value) Value {
	return m.ListFromSlice(elems)
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Prepend returns a new list with v in front. O(1); the new list shares
// the entire existing chain.
func (l *ListObject) Prepend(m *Mutator, v Value) Value {
	locked := m.heap.lockIfShared(&l.hdr)
	defer m.heap.unlockIf(&l.hdr, locked)

	node := m.newListNode(v, l.head)
	tail := l.tail
	if tail.IsNil() {
		tail = node
	}
	return m.newListHeader(l.length+1, node, tail)
}

// Append returns a new list with v at the back. Amortized O(1) via the
// tail reference: when the tail node's next is still Nil, the new node is
// spliced behind it and the new header shares the whole chain. A second
// append to the same header finds next already taken; splicing again
// would corrupt the first result, so the prefix is rebuilt fresh instead
// (O(n), like popBack). Sharers of the chain keep their shorter length
// and old tail either way, so their contents are unchanged.
func (l *ListObject) Append(m *Mutator, v Value) Value {
	locked := m.heap.lockIfShared(&l.hdr)
	defer m.heap.unlockIf(&l.hdr, locked)

	node := m.newListNode(v, Nil)
	if l.tail.IsNil() {
		return m.newListHeader(1, node, node)
	}
	oldTail := l.tail.AsListNode()
	if !oldTail.next.IsNil() {
		elems := append(l.ToSlice(), v)
		return m.ListFromSlice(elems)
	}
	oldTail.next = node
	m.heap.WriteBarrier(&oldTail.hdr, node)
	return m.newListHeader(l.length+1, l.head, node)
}

// First returns the first element, or an error value for the empty list.
func (l *ListObject) First(m *Mutator) Value {
	if l.length == 0 {
		return m.NewEvalError("first: empty list")
	}
	return l.head.AsListNode().value
}

// Last returns the last element, or an error value for the empty list.
// O(1) via the tail reference.
func (l *ListObject) Last(m *Mutator) Value {
	if l.length == 0 {
		return m.NewEvalError("last: empty list")
	}
	return l.tail.AsListNode().value
}

// Rest returns the list without its first element. O(1): the result is a
// new header over the shared chain. Rest of a one-element list is a fresh
// empty list; Rest of the empty list is an error value.
func (l *ListObject) Rest(m *Mutator) Value {
	switch l.length {
	case 0:
		return m.NewEvalError("rest: empty list")
	case 1:
		return m.NewList()
	}
	next := l.head.AsListNode().next
	return m.newListHeader(l.length-1, next, l.tail)
}

// PopFront returns the first element and the remaining list. O(1).
// Popping the empty list yields an error value.
func (l *ListObject) PopFront(m *Mutator) (Value, Value) {
	if l.length == 0 {
		err := m.NewEvalError("pop-front: empty list")
		return err, err
	}
	node := l.head.AsListNode()
	return node.value, l.Rest(m)
}

// PopBack returns the last element and the list without it. O(n): the
// chain must be walked to find the next-to-last node, and the prefix is
// re-linked fresh so existing sharers are unaffected. This is the
// documented cost of back removal on a singly linked chain; callers that
// pop from the back in a loop should use a vector instead.
func (l *ListObject) PopBack(m *Mutator) (Value, Value) {
	if l.length == 0 {
		err := m.NewEvalError("pop-back: empty list")
		return err, err
	}
	last := l.tail.AsListNode().value
	if l.length == 1 {
		return last, m.NewList()
	}

	elems := make([]Value, 0, l.length-1)
	node := l.head.AsListNode()
	for i := uint32(0); i < l.length-1; i++ {
		elems = append(elems, node.value)
		if !node.next.IsNil() {
			node = node.next.AsListNode()
		}
	}
	return last, m.ListFromSlice(elems)
}

// Nth returns the element at index i, or an error value when out of
// bounds. O(n).
func (l *ListObject) Nth(m *Mutator, i int) Value {
	if i < 0 || i >= int(l.length) {
		return m.NewEvalError("nth: index %d out of bounds for list of %d", i, l.length)
	}
	node := l.head.AsListNode()
	for ; i > 0; i-- {
		node = node.next.AsListNode()
	}
	return node.value
}

// ToSlice copies the elements into a Go slice. The header's length bounds
// the walk, so sharers of an extended chain only see their own elements.
func (l *ListObject) ToSlice() []Value {
	out := make([]Value, 0, l.length)
	if l.length == 0 {
		return out
	}
	node := l.head.AsListNode()
	for i := uint32(0); i < l.length; i++ {
		out = append(out, node.value)
		if !node.next.IsNil() {
			node = node.next.AsListNode()
		}
	}
	return out
}

// ForEach calls fn for each element in order.
func (l *ListObject) ForEach(fn func(i int, v Value)) {
	if l.length == 0 {
		return
	}
	node := l.head.AsListNode()
	for i := uint32(0); i < l.length; i++ {
		fn(int(i), node.value)
		if !node.next.IsNil() {
			node = node.next.AsListNode()
		}
	}
}
