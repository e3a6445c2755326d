package vm

import "testing"

func TestMapSmallMode(t *testing.T) {
	_, m := testHeap()
	mo := m.NewMap().AsMap()

	if mo.Capacity() != 0 {
		t.Fatalf("fresh map capacity = %d, want small mode", mo.Capacity())
	}
	for i := 0; i < 4; i++ {
		mo.Insert(m, FromNumber(float64(i)), FromNumber(float64(i*10)))
	}
	if mo.Capacity() != 0 {
		t.Error("four entries should stay in small mode")
	}
	if mo.Count() != 4 {
		t.Errorf("count = %d, want 4", mo.Count())
	}
	for i := 0; i < 4; i++ {
		v, ok := mo.Get(FromNumber(float64(i)))
		if !ok || v.Number() != float64(i*10) {
			t.Fatalf("lost key %d in small mode", i)
		}
	}
	if _, ok := mo.Get(FromNumber(99)); ok {
		t.Error("absent key reported present")
	}
}

func TestMapPromotion(t *testing.T) {
	_, m := testHeap()
	mo := m.NewMap().AsMap()

	for i := 0; i < 5; i++ {
		mo.Insert(m, FromNumber(float64(i)), FromNumber(float64(i)))
	}
	if mo.Capacity() != largeMinCapacity {
		t.Errorf("capacity after fifth key = %d, want %d", mo.Capacity(), largeMinCapacity)
	}
	if mo.Count() != 5 {
		t.Errorf("count = %d, want 5", mo.Count())
	}
	for i := 0; i < 5; i++ {
		if !mo.Contains(FromNumber(float64(i))) {
			t.Fatalf("key %d lost during promotion", i)
		}
	}
}

func TestMapUpdateReturnsPrevious(t *testing.T) {
	_, m := testHeap()
	mo := m.NewMap().AsMap()

	key := FromNumber(1)
	if prev := mo.Insert(m, key, FromNumber(10)); !prev.IsNil() {
		t.Error("fresh insert should return nil")
	}
	if prev := mo.Insert(m, key, FromNumber(20)); prev.Number() != 10 {
		t.Errorf("update returned %v, want 10", prev.Number())
	}
	if mo.Count() != 1 {
		t.Errorf("update changed count to %d", mo.Count())
	}
}

func TestMapRemove(t *testing.T) {
	_, m := testHeap()
	mo := m.NewMap().AsMap()

	// Promote first so removal exercises tombstones.
	for i := 0; i < 8; i++ {
		mo.Insert(m, FromNumber(float64(i)), FromNumber(float64(i)))
	}
	if prev := mo.Remove(m, FromNumber(3)); prev.Number() != 3 {
		t.Errorf("remove returned %v, want 3", prev.Number())
	}
	if mo.Contains(FromNumber(3)) {
		t.Error("removed key still present")
	}
	if prev := mo.Remove(m, FromNumber(3)); !prev.IsNil() {
		t.Error("removing an absent key should return nil")
	}
	// Probe chains must survive the tombstone.
	for _, i := range []int{0, 1, 2, 4, 5, 6, 7} {
		if !mo.Contains(FromNumber(float64(i))) {
			t.Fatalf("key %d lost after removal of another key", i)
		}
	}

	// Re-inserting should reuse the tombstoned slot, not grow used.
	usedBefore := mo.used
	mo.Insert(m, FromNumber(3), FromNumber(30))
	if mo.used != usedBefore {
		t.Errorf("used grew from %d to %d on tombstone reuse", usedBefore, mo.used)
	}
}

func TestMapGrowthKeepsLoadBound(t *testing.T) {
	_, m := testHeap()
	mo := m.NewMap().AsMap()

	const n = 200
	for i := 0; i < n; i++ {
		mo.Insert(m, FromNumber(float64(i)), FromNumber(float64(-i)))
	}
	if mo.Count() != n {
		t.Fatalf("count = %d, want %d", mo.Count(), n)
	}
	capacity := uint32(mo.Capacity())
	if capacity&(capacity-1) != 0 {
		t.Errorf("capacity %d is not a power of two", capacity)
	}
	if mo.used*8 > capacity*7 {
		t.Errorf("load %d/%d exceeds 7/8", mo.used, capacity)
	}
	for i := 0; i < n; i++ {
		v, ok := mo.Get(FromNumber(float64(i)))
		if !ok || v.Number() != float64(-i) {
			t.Fatalf("key %d lost across rehashes", i)
		}
	}
}

func TestMapStrKeysByContent(t *testing.T) {
	_, m := testHeap()
	mo := m.NewMap().AsMap()

	a := m.NewStr("alpha")
	b := m.NewStr("alpha")
	if a == b {
		t.Fatal("distinct allocations should have distinct identities")
	}
	mo.Insert(m, a, FromNumber(1))
	v, ok := mo.Get(b)
	if !ok || v.Number() != 1 {
		t.Error("string keys should compare by content")
	}

	// Non-string keys compare by identity only.
	mo.Insert(m, m.ListOf(), FromNumber(2))
	if mo.Contains(m.ListOf()) {
		t.Error("distinct empty lists should not be equal keys")
	}
}

func TestMapForEachAndKeys(t *testing.T) {
	_, m := testHeap()
	mo := m.MapFromPairs([]Value{
		FromNumber(1), FromNumber(10),
		FromNumber(2), FromNumber(20),
	}).AsMap()

	seen := map[float64]float64{}
	mo.ForEach(func(k, v Value) { seen[k.Number()] = v.Number() })
	if len(seen) != 2 || seen[1] != 10 || seen[2] != 20 {
		t.Errorf("foreach saw %v", seen)
	}
	if len(mo.Keys()) != 2 {
		t.Errorf("keys = %v", mo.Keys())
	}
}
