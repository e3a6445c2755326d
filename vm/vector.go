package vm

import "unsafe"

// ---------------------------------------------------------------------------
// Vector: contiguous mutable sequence
// ---------------------------------------------------------------------------

// VectorObject is the vector header: length, capacity, and a reference to
// a separate VectorData block holding the elements. Growth allocates a
// fresh data block and repoints the header, so the header itself is never
// reallocated and stays valid as an object identity.
type VectorObject struct {
	hdr      Header
	length   uint32
	capacity uint32
	data     Value // VectorData or Nil when capacity is 0
}

// VectorData is the element storage block for a vector.
type VectorData struct {
	hdr   Header
	elems []Value
}

const vectorMinCapacity = 8

func (v *VectorObject) header() *Header { return &v.hdr }
func (d *VectorData) header() *Header   { return &d.hdr }

func (v *VectorObject) traceRefs(visit func(Value)) {
	visit(v.data)
}

func (d *VectorData) traceRefs(visit func(Value)) {
	for _, e := range d.elems {
		visit(e)
	}
}

// Count returns the number of elements.
func (v *VectorObject) Count() int { return int(v.length) }

// Capacity returns the current data block capacity.
func (v *VectorObject) Capacity() int { return int(v.capacity) }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// NewVector allocates an empty vector with no data block.
func (m *Mutator) NewVector() Value {
	v := &VectorObject{data: Nil}
	v.hdr.typeTag = TagVector
	return m.adopt(v, unsafe.Sizeof(*v))
}

func (m *Mutator) newVectorData(capacity uint32) Value {
	d := &VectorData{elems: make([]Value, capacity)}
	for i := range d.elems {
		d.elems[i] = Nil
	}
	d.hdr.typeTag = TagVectorData
	return m.adopt(d, unsafe.Sizeof(*d)+uintptr(capacity)*unsafe.Sizeof(Nil))
}

// VectorFromSlice allocates a vector holding the given elements.
func (m *Mutator) VectorFromSlice(elems []Value) Value {
	vv := m.NewVector()
	v := vv.AsVector()
	if len(elems) == 0 {
		return vv
	}
	capacity := uint32(vectorMinCapacity)
	for capacity < uint32(len(elems)) {
		capacity *= 2
	}
	dv := m.newVectorData(capacity)
	copy(dv.AsVectorData().elems, elems)
	v.data = dv
	v.capacity = capacity
	v.length = uint32(len(elems))
	return vv
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// grow repoints the header at a data block of at least want slots,
// doubling from the current capacity with a floor of 8. Every element
// copied into the new block is a reference store into an existing object,
// so each is barriered.
func (v *VectorObject) grow(m *Mutator, want uint32) {
	capacity := v.capacity * 2
	if capacity < vectorMinCapacity {
		capacity = vectorMinCapacity
	}
	for capacity < want {
		capacity *= 2
	}

	dv := m.newVectorData(capacity)
	d := dv.AsVectorData()
	if !v.data.IsNil() {
		old := v.data.AsVectorData()
		copy(d.elems, old.elems[:v.length])
		for _, e := range d.elems[:v.length] {
			m.heap.WriteBarrier(&d.hdr, e)
		}
	}
	v.data = dv
	v.capacity = capacity
	m.heap.WriteBarrier(&v.hdr, dv)
}

// Push appends an element, growing the data block as needed. Amortized
// O(1).
func (v *VectorObject) Push(m *Mutator, elem Value) {
	locked := m.heap.lockIfShared(&v.hdr)
	defer m.heap.unlockIf(&v.hdr, locked)

	if v.length == v.capacity {
		v.grow(m, v.length+1)
	}
	d := v.data.AsVectorData()
	d.elems[v.length] = elem
	m.heap.WriteBarrier(&d.hdr, elem)
	v.length++
}

// Pop removes and returns the last element, or an error value when the
// vector is empty.
func (v *VectorObject) Pop(m *Mutator) Value {
	locked := m.heap.lockIfShared(&v.hdr)
	defer m.heap.unlockIf(&v.hdr, locked)

	if v.length == 0 {
		return m.NewEvalError("pop: empty vector")
	}
	d := v.data.AsVectorData()
	v.length--
	elem := d.elems[v.length]
	d.elems[v.length] = Nil
	return elem
}

// Get returns the element at index i, or an error value when out of
// bounds.
func (v *VectorObject) Get(m *Mutator, i int) Value {
	if i < 0 || i >= int(v.length) {
		return m.NewEvalError("get: index %d out of bounds for vector of %d", i, v.length)
	}
	return v.data.AsVectorData().elems[i]
}

// Set replaces the element at index i, returning the previous element or
// an error value when out of bounds. Bounds are checked against length,
// not capacity.
func (v *VectorObject) Set(m *Mutator, i int, elem Value) Value {
	locked := m.heap.lockIfShared(&v.hdr)
	defer m.heap.unlockIf(&v.hdr, locked)

	if i < 0 || i >= int(v.length) {
		return m.NewEvalError("set: index %d out of bounds for vector of %d", i, v.length)
	}
	d := v.data.AsVectorData()
	prev := d.elems[i]
	d.elems[i] = elem
	m.heap.WriteBarrier(&d.hdr, elem)
	return prev
}

// Resize sets the length to n, truncating or padding with fill. Returns
// Nil, or an error value for a negative n.
func (v *VectorObject) Resize(m *Mutator, n int, fill Value) Value {
	if n < 0 {
		return m.NewEvalError("resize: negative length %d", n)
	}

	locked := m.heap.lockIfShared(&v.hdr)
	defer m.heap.unlockIf(&v.hdr, locked)

	want := uint32(n)
	if want > v.capacity {
		v.grow(m, want)
	}
	if v.data.IsNil() {
		v.length = 0
		return Nil
	}
	d := v.data.AsVectorData()
	if want > v.length {
		for i := v.length; i < want; i++ {
			d.elems[i] = fill
			m.heap.WriteBarrier(&d.hdr, fill)
		}
	} else {
		for i := want; i < v.length; i++ {
			d.elems[i] = Nil
		}
	}
	v.length = want
	return Nil
}

// ToSlice copies the elements into a Go slice.
func (v *VectorObject) ToSlice() []Value {
	out := make([]Value, v.length)
	if v.length > 0 {
		copy(out, v.data.AsVectorData().elems[:v.length])
	}
	return out
}
