package vm

import (
	"math"
	"unsafe"
)

// Value represents a blink value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-number values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish types.
//
// Encoding scheme:
//   - Number: Native IEEE 754 double (if not a tagged NaN, it's a number)
//   - Object: Quiet NaN + tagObject + 48-bit pointer
//   - Symbol: Quiet NaN + tagSymbol + symbol ID
//   - Keyword: Quiet NaN + tagKeyword + keyword ID
//   - Special: Quiet NaN + tagSpecial + special value ID (nil/true/false)
//   - Native: Quiet NaN + tagNative + native function handle
//   - Module: Quiet NaN + tagModule + module handle
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for pointer/id
	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position)
	tagObject  uint64 = 0x0001000000000000 // Heap object pointer
	tagSymbol  uint64 = 0x0002000000000000 // Interned symbol ID
	tagKeyword uint64 = 0x0003000000000000 // Interned keyword ID
	tagSpecial uint64 = 0x0004000000000000 // nil, true, false
	tagNative  uint64 = 0x0005000000000000 // Native function handle
	tagModule  uint64 = 0x0006000000000000 // Module handle
)

// Special value payloads
const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special values
const (
	Nil   Value = Value(nanBits | tagSpecial | specialNil)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsNumber returns true if v represents a float64 number.
// A value is a number if it's not one of our tagged NaN values.
// This includes regular numbers, infinities, and "real" NaN values.
func (v Value) IsNumber() bool {
	bits := uint64(v)

	// Check if it's a NaN or Infinity (exponent all 1s)
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		// Exponent is not all 1s, so it's a regular float
		return true
	}

	// Exponent is all 1s. Could be Infinity or NaN.
	// Infinity has mantissa == 0 (ignoring sign bit)
	mantissa := bits & 0x000FFFFFFFFFFFFF
	if mantissa == 0 {
		// It's +Inf or -Inf, which are valid numbers
		return true
	}

	// It's a NaN. Check if it's one of our tagged values.
	if (bits & nanBits) != nanBits {
		// Quiet NaN bit not set - it's a signaling NaN, treat as number
		return true
	}

	// It's a quiet NaN. Check tag bits.
	tag := bits & tagMask
	if tag == 0 {
		// No tag bits set - it's a "real" quiet NaN, treat as number
		return true
	}

	// It's one of our tagged non-number values
	return false
}

// IsObject returns true if v represents a heap object pointer.
func (v Value) IsObject() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagObject)
}

// IsSymbol returns true if v represents an interned symbol.
func (v Value) IsSymbol() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSymbol)
}

// IsKeyword returns true if v represents an interned keyword.
func (v Value) IsKeyword() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagKeyword)
}

// IsNative returns true if v represents a native function handle.
func (v Value) IsNative() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagNative)
}

// IsModule returns true if v represents a module handle.
func (v Value) IsModule() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagModule)
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsTrue returns true if v is the true value.
func (v Value) IsTrue() bool {
	return v == True
}

// IsFalse returns true if v is the false value.
func (v Value) IsFalse() bool {
	return v == False
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// IsSpecial returns true if v is nil, true, or false.
func (v Value) IsSpecial() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSpecial)
}

// ---------------------------------------------------------------------------
// Number operations
// ---------------------------------------------------------------------------

// Number returns v as a float64.
// Panics if v is not a number.
func (v Value) Number() float64 {
	if !v.IsNumber() {
		panic("Value.Number: not a number")
	}
	return math.Float64frombits(uint64(v))
}

// FromNumber creates a Value from a float64.
func FromNumber(f float64) Value {
	return Value(math.Float64bits(f))
}

// FromInt creates a number Value from an int. Convenience for callers that
// compute lengths and indexes as Go ints.
func FromInt(n int) Value {
	return FromNumber(float64(n))
}

// ---------------------------------------------------------------------------
// Object pointer operations
// ---------------------------------------------------------------------------

// ObjectPtr returns v as an unsafe.Pointer to the heap object.
// Panics if v is not an object.
func (v Value) ObjectPtr() unsafe.Pointer {
	if !v.IsObject() {
		panic("Value.ObjectPtr: not an object")
	}
	ptr := uintptr(uint64(v) & payloadMask)
	return unsafe.Pointer(ptr)
}

// FromObjectPtr creates a Value from an unsafe.Pointer.
// The pointer must fit in 48 bits (true for all current architectures).
func FromObjectPtr(ptr unsafe.Pointer) Value {
	return Value(nanBits | tagObject | uint64(uintptr(ptr)))
}

// Header returns the object header behind an object value.
// Panics if v is not an object.
func (v Value) Header() *Header {
	return (*Header)(v.ObjectPtr())
}

// ---------------------------------------------------------------------------
// Symbol and keyword operations
// ---------------------------------------------------------------------------

// SymbolID returns the symbol ID encoded in v.
// Panics if v is not a symbol.
func (v Value) SymbolID() uint32 {
	if !v.IsSymbol() {
		panic("Value.SymbolID: not a symbol")
	}
	return uint32(uint64(v) & payloadMask)
}

// FromSymbolID creates a Value from a symbol ID.
func FromSymbolID(id uint32) Value {
	return Value(nanBits | tagSymbol | uint64(id))
}

// KeywordID returns the keyword ID encoded in v.
// Panics if v is not a keyword.
func (v Value) KeywordID() uint32 {
	if !v.IsKeyword() {
		panic("Value.KeywordID: not a keyword")
	}
	return uint32(uint64(v) & payloadMask)
}

// FromKeywordID creates a Value from a keyword ID.
func FromKeywordID(id uint32) Value {
	return Value(nanBits | tagKeyword | uint64(id))
}

// ---------------------------------------------------------------------------
// Native function handles
// ---------------------------------------------------------------------------

// NativeID returns the native function registry ID.
// Panics if v is not a native function handle.
func (v Value) NativeID() uint32 {
	if !v.IsNative() {
		panic("Value.NativeID: not a native function")
	}
	return uint32(uint64(v) & payloadMask)
}

// FromNativeID creates a Value from a native function ID.
func FromNativeID(id uint32) Value {
	return Value(nanBits | tagNative | uint64(id))
}

// ---------------------------------------------------------------------------
// Module handles
// ---------------------------------------------------------------------------

// ModuleID returns the module registry ID.
// Panics if v is not a module handle.
func (v Value) ModuleID() uint32 {
	if !v.IsModule() {
		panic("Value.ModuleID: not a module")
	}
	return uint32(uint64(v) & payloadMask)
}

// FromModuleID creates a Value from a module ID.
func FromModuleID(id uint32) Value {
	return Value(nanBits | tagModule | uint64(id))
}

// ---------------------------------------------------------------------------
// Boolean operations
// ---------------------------------------------------------------------------

// Bool returns v as a bool.
// Panics if v is not true or false.
func (v Value) Bool() bool {
	switch v {
	case True:
		return true
	case False:
		return false
	default:
		panic("Value.Bool: not a boolean")
	}
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// IsTruthy returns true if v is considered "truthy" in conditionals.
// Only false and nil are falsy; everything else is truthy, including 0
// and the empty list.
func (v Value) IsTruthy() bool {
	return v != False && v != Nil
}

// IsFalsy returns true if v is considered "falsy" in conditionals.
func (v Value) IsFalsy() bool {
	return v == False || v == Nil
}
