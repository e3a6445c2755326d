package vm

import (
	"unsafe"

	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// HashMap: small mode + Swiss-table large mode
// ---------------------------------------------------------------------------

// MapObject stores key/value pairs in one of two modes.
//
// Small mode (capacity == 0): up to four entries in inline slots, probed
// by linear scan. No hashing, no control bytes; cheap for the tiny maps
// that dominate interpreter workloads.
//
// Large mode: an open-addressing table with a control byte per slot and
// parallel key/value arrays. A control byte is ctrlEmpty (0x80) for a
// never-used slot, ctrlTombstone (0xFE) for a deleted one, or the low 7
// bits of the key's hash for a full slot, letting probes reject most
// non-matching slots without touching the key array. Capacity is always a
// power of two (minimum 8) and the table grows before the occupied-slot
// count (live plus tombstones) exceeds 7/8 of capacity.
type MapObject struct {
	hdr      Header
	length   uint32
	capacity uint32 // 0 = small mode
	used     uint32 // large mode: full + tombstone slots

	small [smallSlots]mapSlot

	ctrl []byte
	keys []Value
	vals []Value
}

type mapSlot struct {
	key      Value
	value    Value
	occupied bool
}

const (
	smallSlots = 4

	ctrlEmpty     byte = 0x80
	ctrlTombstone byte = 0xFE

	largeMinCapacity = 8
)

func (mo *MapObject) header() *Header { return &mo.hdr }

func (mo *MapObject) traceRefs(visit func(Value)) {
	if mo.capacity == 0 {
		for i := range mo.small {
			if mo.small[i].occupied {
				visit(mo.small[i].key)
				visit(mo.small[i].value)
			}
		}
		return
	}
	for i, c := range mo.ctrl {
		if c != ctrlEmpty && c != ctrlTombstone {
			visit(mo.keys[i])
			visit(mo.vals[i])
		}
	}
}

// Count returns the number of entries.
func (mo *MapObject) Count() int { return int(mo.length) }

// Capacity returns the large-mode table capacity, or 0 in small mode.
func (mo *MapObject) Capacity() int { return int(mo.capacity) }

// ---------------------------------------------------------------------------
// Key hashing and equality
// ---------------------------------------------------------------------------

// valueHash hashes a key. Strings hash by content so equal spellings
// collide; every other value hashes its identity bits, matching
// valueKeyEquals.
func valueHash(v Value) uint64 {
	if v.IsStr() {
		return xxh3.HashString(v.AsStr().s)
	}
	var buf [8]byte
	putUint64(buf[:], uint64(v))
	return xxh3.Hash(buf[:])
}

// valueKeyEquals is key equality: content equality for strings, bit
// identity for everything else. Interned symbols and keywords make bit
// identity string equality for those types for free.
func valueKeyEquals(a, b Value) bool {
	if a == b {
		return true
	}
	if a.IsStr() && b.IsStr() {
		return a.AsStr().s == b.AsStr().s
	}
	return false
}

func h2(hash uint64) byte { return byte(hash & 0x7F) }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// NewMap allocates an empty map in small mode.
func (m *Mutator) NewMap() Value {
	mo := &MapObject{}
	for i := range mo.small {
		mo.small[i].key = Nil
		mo.small[i].value = Nil
	}
	mo.hdr.typeTag = TagMap
	return m.adopt(mo, unsafe.Sizeof(*mo))
}

// MapFromPairs allocates a map from alternating key/value pairs.
func (m *Mutator) MapFromPairs(pairs []Value) Value {
	mv := m.NewMap()
	mo := mv.AsMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		mo.Insert(m, pairs[i], pairs[i+1])
	}
	return mv
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// Get returns the value for key and whether it was present.
func (mo *MapObject) Get(key Value) (Value, bool) {
	if mo.capacity == 0 {
		for i := range mo.small {
			if mo.small[i].occupied && valueKeyEquals(mo.small[i].key, key) {
				return mo.small[i].value, true
			}
		}
		return Nil, false
	}

	hash := valueHash(key)
	frag := h2(hash)
	mask := mo.capacity - 1
	i := uint32(hash) & mask
	for {
		switch c := mo.ctrl[i]; {
		case c == ctrlEmpty:
			return Nil, false
		case c == frag && valueKeyEquals(mo.keys[i], key):
			return mo.vals[i], true
		}
		i = (i + 1) & mask
	}
}

// Contains reports whether key is present.
func (mo *MapObject) Contains(key Value) bool {
	_, ok := mo.Get(key)
	return ok
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

// Insert associates key with value, returning the previous value or Nil.
// Inserting a fifth distinct key promotes a small map to the table form;
// a table at its load limit doubles before inserting.
func (mo *MapObject) Insert(m *Mutator, key, value Value) Value {
	locked := m.heap.lockIfShared(&mo.hdr)
	defer m.heap.unlockIf(&mo.hdr, locked)

	if mo.capacity == 0 {
		// Existing key wins the slot scan before any free slot.
		for i := range mo.small {
			if mo.small[i].occupied && valueKeyEquals(mo.small[i].key, key) {
				prev := mo.small[i].value
				mo.small[i].value = value
				m.heap.WriteBarrier(&mo.hdr, value)
				return prev
			}
		}
		for i := range mo.small {
			if !mo.small[i].occupied {
				mo.small[i] = mapSlot{key: key, value: value, occupied: true}
				m.heap.WriteBarrier(&mo.hdr, key)
				m.heap.WriteBarrier(&mo.hdr, value)
				mo.length++
				return Nil
			}
		}
		mo.promote(m)
		// fall through to the large-mode insert
	}

	if (mo.used+1)*8 > mo.capacity*7 {
		mo.rehash(m, mo.capacity*2)
	}
	return mo.insertLarge(m, key, value)
}

func (mo *MapObject) insertLarge(m *Mutator, key, value Value) Value {
	hash := valueHash(key)
	frag := h2(hash)
	mask := mo.capacity - 1
	i := uint32(hash) & mask
	insertAt := int32(-1)
	for {
		switch c := mo.ctrl[i]; {
		case c == ctrlEmpty:
			if insertAt < 0 {
				insertAt = int32(i)
				mo.used++ // consuming a never-used slot
			}
			mo.ctrl[insertAt] = frag
			mo.keys[insertAt] = key
			mo.vals[insertAt] = value
			m.heap.WriteBarrier(&mo.hdr, key)
			m.heap.WriteBarrier(&mo.hdr, value)
			mo.length++
			return Nil
		case c == ctrlTombstone:
			// Remember the first tombstone; keep probing in case the key
			// exists further along the chain.
			if insertAt < 0 {
				insertAt = int32(i)
			}
		case c == frag && valueKeyEquals(mo.keys[i], key):
			prev := mo.vals[i]
			mo.vals[i] = value
			m.heap.WriteBarrier(&mo.hdr, value)
			return prev
		}
		i = (i + 1) & mask
	}
}

// promote moves a full small map into an 8-slot table.
func (mo *MapObject) promote(m *Mutator) {
	entries := mo.small
	mo.installTable(largeMinCapacity)
	mo.length = 0
	mo.used = 0
	for i := range entries {
		if entries[i].occupied {
			mo.insertLarge(m, entries[i].key, entries[i].value)
		}
	}
	for i := range mo.small {
		mo.small[i] = mapSlot{key: Nil, value: Nil}
	}
}

// rehash rebuilds the table at the given capacity, dropping tombstones.
func (mo *MapObject) rehash(m *Mutator, capacity uint32) {
	if capacity < largeMinCapacity {
		capacity = largeMinCapacity
	}
	oldCtrl, oldKeys, oldVals := mo.ctrl, mo.keys, mo.vals
	mo.installTable(capacity)
	mo.length = 0
	mo.used = 0
	for i, c := range oldCtrl {
		if c != ctrlEmpty && c != ctrlTombstone {
			mo.insertLarge(m, oldKeys[i], oldVals[i])
		}
	}
}

func (mo *MapObject) installTable(capacity uint32) {
	mo.capacity = capacity
	mo.ctrl = make([]byte, capacity)
	mo.keys = make([]Value, capacity)
	mo.vals = make([]Value, capacity)
	for i := uint32(0); i < capacity; i++ {
		mo.ctrl[i] = ctrlEmpty
		mo.keys[i] = Nil
		mo.vals[i] = Nil
	}
}

// ---------------------------------------------------------------------------
// Remove
// ---------------------------------------------------------------------------

// Remove deletes key, returning its value or Nil if absent. Large-mode
// removal leaves a tombstone so probe chains stay intact.
func (mo *MapObject) Remove(m *Mutator, key Value) Value {
	locked := m.heap.lockIfShared(&mo.hdr)
	defer m.heap.unlockIf(&mo.hdr, locked)

	if mo.capacity == 0 {
		for i := range mo.small {
			if mo.small[i].occupied && valueKeyEquals(mo.small[i].key, key) {
				prev := mo.small[i].value
				mo.small[i] = mapSlot{key: Nil, value: Nil}
				mo.length--
				return prev
			}
		}
		return Nil
	}

	hash := valueHash(key)
	frag := h2(hash)
	mask := mo.capacity - 1
	i := uint32(hash) & mask
	for {
		switch c := mo.ctrl[i]; {
		case c == ctrlEmpty:
			return Nil
		case c == frag && valueKeyEquals(mo.keys[i], key):
			prev := mo.vals[i]
			mo.ctrl[i] = ctrlTombstone
			mo.keys[i] = Nil
			mo.vals[i] = Nil
			mo.length--
			return prev
		}
		i = (i + 1) & mask
	}
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

// ForEach calls fn for every entry in unspecified order.
func (mo *MapObject) ForEach(fn func(key, value Value)) {
	if mo.capacity == 0 {
		for i := range mo.small {
			if mo.small[i].occupied {
				fn(mo.small[i].key, mo.small[i].value)
			}
		}
		return
	}
	for i, c := range mo.ctrl {
		if c != ctrlEmpty && c != ctrlTombstone {
			fn(mo.keys[i], mo.vals[i])
		}
	}
}

// Keys returns the keys in unspecified order.
func (mo *MapObject) Keys() []Value {
	out := make([]Value, 0, mo.length)
	mo.ForEach(func(k, _ Value) { out = append(out, k) })
	return out
}
