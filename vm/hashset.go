package vm

import "unsafe"

// ---------------------------------------------------------------------------
// HashSet
// ---------------------------------------------------------------------------

// SetObject stores unique keys with the same two-mode layout as MapObject:
// four inline slots in small mode, a control-byte table in large mode.
// See hashmap.go for the probing and load rules; sets differ only in
// having no value array.
type SetObject struct {
	hdr      Header
	length   uint32
	capacity uint32 // 0 = small mode
	used     uint32

	small [smallSlots]setSlot

	ctrl []byte
	keys []Value
}

type setSlot struct {
	key      Value
	occupied bool
}

func (so *SetObject) header() *Header { return &so.hdr }

func (so *SetObject) traceRefs(visit func(Value)) {
	if so.capacity == 0 {
		for i := range so.small {
			if so.small[i].occupied {
				visit(so.small[i].key)
			}
		}
		return
	}
	for i, c := range so.ctrl {
		if c != ctrlEmpty && c != ctrlTombstone {
			visit(so.keys[i])
		}
	}
}

// Count returns the number of elements.
func (so *SetObject) Count() int { return int(so.length) }

// Capacity returns the large-mode table capacity, or 0 in small mode.
func (so *SetObject) Capacity() int { return int(so.capacity) }

// NewSet allocates an empty set in small mode.
func (m *Mutator) NewSet() Value {
	so := &SetObject{}
	for i := range so.small {
		so.small[i].key = Nil
	}
	so.hdr.typeTag = TagSet
	return m.adopt(so, unsafe.Sizeof(*so))
}

// SetFromSlice allocates a set of the given elements.
func (m *Mutator) SetFromSlice(elems []Value) Value {
	sv := m.NewSet()
	so := sv.AsSet()
	for _, e := range elems {
		so.Add(m, e)
	}
	return sv
}

// Contains reports whether key is in the set.
func (so *SetObject) Contains(key Value) bool {
	if so.capacity == 0 {
		for i := range so.small {
			if so.small[i].occupied && valueKeyEquals(so.small[i].key, key) {
				return true
			}
		}
		return false
	}

	hash := valueHash(key)
	frag := h2(hash)
	mask := so.capacity - 1
	i := uint32(hash) & mask
	for {
		switch c := so.ctrl[i]; {
		case c == ctrlEmpty:
			return false
		case c == frag && valueKeyEquals(so.keys[i], key):
			return true
		}
		i = (i + 1) & mask
	}
}

// Add inserts key, returning true if it was not already present.
func (so *SetObject) Add(m *Mutator, key Value) bool {
	locked := m.heap.lockIfShared(&so.hdr)
	defer m.heap.unlockIf(&so.hdr, locked)

	if so.capacity == 0 {
		for i := range so.small {
			if so.small[i].occupied && valueKeyEquals(so.small[i].key, key) {
				return false
			}
		}
		for i := range so.small {
			if !so.small[i].occupied {
				so.small[i] = setSlot{key: key, occupied: true}
				m.heap.WriteBarrier(&so.hdr, key)
				so.length++
				return true
			}
		}
		so.promote(m)
	}

	if (so.used+1)*8 > so.capacity*7 {
		so.rehash(m, so.capacity*2)
	}
	return so.addLarge(m, key)
}

func (so *SetObject) addLarge(m *Mutator, key Value) bool {
	hash := valueHash(key)
	frag := h2(hash)
	mask := so.capacity - 1
	i := uint32(hash) & mask
	insertAt := int32(-1)
	for {
		switch c := so.ctrl[i]; {
		case c == ctrlEmpty:
			if insertAt < 0 {
				insertAt = int32(i)
				so.used++
			}
			so.ctrl[insertAt] = frag
			so.keys[insertAt] = key
			m.heap.WriteBarrier(&so.hdr, key)
			so.length++
			return true
		case c == ctrlTombstone:
			if insertAt < 0 {
				insertAt = int32(i)
			}
		case c == frag && valueKeyEquals(so.keys[i], key):
			return false
		}
		i = (i + 1) & mask
	}
}

func (so *SetObject) promote(m *Mutator) {
	entries := so.small
	so.installTable(largeMinCapacity)
	so.length = 0
	so.used = 0
	for i := range entries {
		if entries[i].occupied {
			so.addLarge(m, entries[i].key)
		}
	}
	for i := range so.small {
		so.small[i] = setSlot{key: Nil}
	}
}

func (so *SetObject) rehash(m *Mutator, capacity uint32) {
	if capacity < largeMinCapacity {
		capacity = largeMinCapacity
	}
	oldCtrl, oldKeys := so.ctrl, so.keys
	so.installTable(capacity)
	so.length = 0
	so.used = 0
	for i, c := range oldCtrl {
		if c != ctrlEmpty && c != ctrlTombstone {
			so.addLarge(m, oldKeys[i])
		}
	}
}

func (so *SetObject) installTable(capacity uint32) {
	so.capacity = capacity
	so.ctrl = make([]byte, capacity)
	so.keys = make([]Value, capacity)
	for i := uint32(0); i < capacity; i++ {
		so.ctrl[i] = ctrlEmpty
		so.keys[i] = Nil
	}
}

// Remove deletes key, returning true if it was present.
func (so *SetObject) Remove(m *Mutator, key Value) bool {
	locked := m.heap.lockIfShared(&so.hdr)
	defer m.heap.unlockIf(&so.hdr, locked)

	if so.capacity == 0 {
		for i := range so.small {
			if so.small[i].occupied && valueKeyEquals(so.small[i].key, key) {
				so.small[i] = setSlot{key: Nil}
				so.length--
				return true
			}
		}
		return false
	}

	hash := valueHash(key)
	frag := h2(hash)
	mask := so.capacity - 1
	i := uint32(hash) & mask
	for {
		switch c := so.ctrl[i]; {
		case c == ctrlEmpty:
			return false
		case c == frag && valueKeyEquals(so.keys[i], key):
			so.ctrl[i] = ctrlTombstone
			so.keys[i] = Nil
			so.length--
			return true
		}
		i = (i + 1) & mask
	}
}

// ForEach calls fn for every element in unspecified order.
func (so *SetObject) ForEach(fn func(key Value)) {
	if so.capacity == 0 {
		for i := range so.small {
			if so.small[i].occupied {
				fn(so.small[i].key)
			}
		}
		return
	}
	for i, c := range so.ctrl {
		if c != ctrlEmpty && c != ctrlTombstone {
			fn(so.keys[i])
		}
	}
}

// Elems returns the elements in unspecified order.
func (so *SetObject) Elems() []Value {
	out := make([]Value, 0, so.length)
	so.ForEach(func(k Value) { out = append(out, k) })
	return out
}
