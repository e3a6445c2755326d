package vm

import "unsafe"

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// StrObject is a heap-allocated immutable string. Strings compare by
// content, unlike other heap objects which compare by identity.
type StrObject struct {
	hdr Header
	s   string
}

func (s *StrObject) header() *Header       { return &s.hdr }
func (s *StrObject) traceRefs(func(Value)) {}

// String returns the Go string content.
func (s *StrObject) String() string { return s.s }

// Len returns the content length in bytes.
func (s *StrObject) Len() int { return len(s.s) }

// NewStr allocates a string value.
func (m *Mutator) NewStr(s string) Value {
	obj := &StrObject{s: s}
	obj.hdr.typeTag = TagStr
	return m.adopt(obj, unsafe.Sizeof(*obj)+uintptr(len(s)))
}

// Concat allocates the concatenation of two strings.
func (s *StrObject) Concat(m *Mutator, other *StrObject) Value {
	return m.NewStr(s.s + other.s)
}
