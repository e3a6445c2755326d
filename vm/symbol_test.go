package vm

import (
	"sync"
	"testing"
)

func TestInternIdempotent(t *testing.T) {
	st := NewSymbolTable()
	a := st.Intern("foo")
	b := st.Intern("foo")
	if a != b {
		t.Errorf("Intern not idempotent: %d vs %d", a, b)
	}
	if st.Name(a) != "foo" {
		t.Errorf("Name(%d) = %q", a, st.Name(a))
	}
}

func TestSymbolAndKeywordSpacesIndependent(t *testing.T) {
	st := NewSymbolTable()
	s := st.Intern("status")
	k := st.InternKeyword("status")
	// Both start at 0 in their own space.
	if s != 0 || k != 0 {
		t.Errorf("expected id 0 in both spaces, got %d and %d", s, k)
	}
	if st.Name(s) != "status" || st.KeywordName(k) != "status" {
		t.Error("name lookup broken")
	}
}

func TestLookupMiss(t *testing.T) {
	st := NewSymbolTable()
	if _, ok := st.Lookup("missing"); ok {
		t.Error("Lookup of missing symbol succeeded")
	}
	if st.Name(999) != "" {
		t.Error("Name of invalid ID should be empty")
	}
}

func TestConcurrentIntern(t *testing.T) {
	st := NewSymbolTable()
	var wg sync.WaitGroup
	ids := make([]uint32, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = st.Intern("shared")
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent intern produced different ids: %v", ids)
		}
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}
}
