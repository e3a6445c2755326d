package vm

import "testing"

func TestVectorGrowth(t *testing.T) {
	_, m := testHeap()
	v := m.NewVector().AsVector()

	if v.Capacity() != 0 {
		t.Errorf("fresh vector capacity = %d, want 0", v.Capacity())
	}
	v.Push(m, FromNumber(1))
	if v.Capacity() != 8 {
		t.Errorf("first push capacity = %d, want 8", v.Capacity())
	}
	for i := 2; i <= 8; i++ {
		v.Push(m, FromNumber(float64(i)))
	}
	if v.Capacity() != 8 {
		t.Errorf("capacity grew early: %d", v.Capacity())
	}
	v.Push(m, FromNumber(9))
	if v.Capacity() != 16 {
		t.Errorf("capacity after doubling = %d, want 16", v.Capacity())
	}
	if v.Count() != 9 {
		t.Errorf("count = %d, want 9", v.Count())
	}
	for i := 0; i < 9; i++ {
		if v.Get(m, i).Number() != float64(i+1) {
			t.Fatalf("elem %d lost during growth", i)
		}
	}
}

func TestVectorPushPop(t *testing.T) {
	_, m := testHeap()
	v := m.VectorFromSlice([]Value{FromNumber(1), FromNumber(2)}).AsVector()

	if got := v.Pop(m); got.Number() != 2 {
		t.Errorf("pop = %v, want 2", got.Number())
	}
	if v.Count() != 1 {
		t.Errorf("count after pop = %d", v.Count())
	}
	v.Pop(m)
	if got := v.Pop(m); !got.IsError() {
		t.Error("pop of empty vector should be an error value")
	}
}

func TestVectorBounds(t *testing.T) {
	_, m := testHeap()
	v := m.VectorFromSlice([]Value{FromNumber(1)}).AsVector()

	if got := v.Get(m, 1); !got.IsError() {
		t.Error("get past length should be an error value")
	}
	if got := v.Set(m, 1, Nil); !got.IsError() {
		t.Error("set past length should be an error value")
	}
	if prev := v.Set(m, 0, FromNumber(5)); prev.Number() != 1 {
		t.Errorf("set returned %v, want previous 1", prev.Number())
	}
	if v.Get(m, 0).Number() != 5 {
		t.Error("set did not store")
	}
}

func TestVectorResize(t *testing.T) {
	_, m := testHeap()
	v := m.NewVector().AsVector()

	v.Resize(m, 5, True)
	if v.Count() != 5 {
		t.Fatalf("count = %d, want 5", v.Count())
	}
	for i := 0; i < 5; i++ {
		if v.Get(m, i) != True {
			t.Fatalf("fill value missing at %d", i)
		}
	}

	v.Resize(m, 2, Nil)
	if v.Count() != 2 {
		t.Errorf("count after truncate = %d, want 2", v.Count())
	}

	// A negative length is an error value, not a wrapped-around grow.
	if got := v.Resize(m, -1, Nil); !got.IsError() {
		t.Error("negative resize should be an error value")
	}
	if v.Count() != 2 {
		t.Errorf("count after rejected resize = %d, want 2", v.Count())
	}
}
