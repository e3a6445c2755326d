package vm

import (
	"sync/atomic"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Heap object headers
// ---------------------------------------------------------------------------

// TypeTag identifies the concrete layout of a heap object.
type TypeTag int8

const (
	TagList TypeTag = iota + 1
	TagListNode
	TagVector
	TagVectorData
	TagMap
	TagSet
	TagStr
	TagError
	TagFunction
	TagMacro
	TagFuture
	TagEnv
)

// String returns the type tag name for diagnostics.
func (t TypeTag) String() string {
	switch t {
	case TagList:
		return "List"
	case TagListNode:
		return "ListNode"
	case TagVector:
		return "Vector"
	case TagVectorData:
		return "VectorData"
	case TagMap:
		return "Map"
	case TagSet:
		return "Set"
	case TagStr:
		return "Str"
	case TagError:
		return "Error"
	case TagFunction:
		return "Function"
	case TagMacro:
		return "Macro"
	case TagFuture:
		return "Future"
	case TagEnv:
		return "Env"
	default:
		return "Unknown"
	}
}

// Header is embedded as the first field of every heap object, so a raw
// object pointer can always be read as *Header to discover the type tag
// before casting to the concrete layout.
//
// Layout:
//   - gcMeta: one word reserved for the collector (mark bit, forwarding)
//   - typeTag: immutable layout discriminator, set at allocation
//   - totalSize: object size in bytes at allocation time, immutable
//   - lockword: 64-bit synchronization word, see lockword.go
type Header struct {
	gcMeta    uint64
	typeTag   TypeTag
	_         [3]byte
	totalSize uint32
	lockword  atomic.Uint64
}

// TypeTag returns the object's layout discriminator.
func (h *Header) TypeTag() TypeTag {
	return h.typeTag
}

// TotalSize returns the object's size in bytes, fixed at allocation.
func (h *Header) TotalSize() uint32 {
	return h.totalSize
}

const gcMarkBit uint64 = 1

func (h *Header) setMark()     { h.gcMeta |= gcMarkBit }
func (h *Header) clearMark()   { h.gcMeta &^= gcMarkBit }
func (h *Header) marked() bool { return h.gcMeta&gcMarkBit != 0 }

// heapObject is implemented by every concrete heap object. traceRefs must
// visit every nested heap reference the object holds; the collector and
// the snapshot codec both rely on it enumerating references completely.
// References are visited before any scalar processing, preserving the
// refs-first scan order of the layouts.
type heapObject interface {
	header() *Header
	traceRefs(visit func(Value))
}

// ---------------------------------------------------------------------------
// Pointer recovery
// ---------------------------------------------------------------------------

// typeTagOf returns the type tag of an object value.
func typeTagOf(v Value) TypeTag {
	return v.Header().typeTag
}

// IsHeapType returns true if v is a heap object with the given tag.
func (v Value) IsHeapType(tag TypeTag) bool {
	return v.IsObject() && typeTagOf(v) == tag
}

// IsList returns true if v is a heap list.
func (v Value) IsList() bool { return v.IsHeapType(TagList) }

// IsVector returns true if v is a heap vector.
func (v Value) IsVector() bool { return v.IsHeapType(TagVector) }

// IsMap returns true if v is a heap map.
func (v Value) IsMap() bool { return v.IsHeapType(TagMap) }

// IsSet returns true if v is a heap set.
func (v Value) IsSet() bool { return v.IsHeapType(TagSet) }

// IsStr returns true if v is a heap string.
func (v Value) IsStr() bool { return v.IsHeapType(TagStr) }

// IsError returns true if v is a heap error value.
func (v Value) IsError() bool { return v.IsHeapType(TagError) }

// IsFunction returns true if v is a user-defined function.
func (v Value) IsFunction() bool { return v.IsHeapType(TagFunction) }

// IsMacro returns true if v is a macro.
func (v Value) IsMacro() bool { return v.IsHeapType(TagMacro) }

// IsFuture returns true if v is a future.
func (v Value) IsFuture() bool { return v.IsHeapType(TagFuture) }

// IsEnv returns true if v is an environment.
func (v Value) IsEnv() bool { return v.IsHeapType(TagEnv) }

// IsCallable returns true if v can appear in call position.
func (v Value) IsCallable() bool {
	return v.IsNative() || v.IsFunction() || v.IsMacro()
}

func mustTag(v Value, tag TypeTag, what string) unsafe.Pointer {
	p := v.ObjectPtr()
	if (*Header)(p).typeTag != tag {
		panic("Value." + what + ": wrong type tag")
	}
	return p
}

// AsList returns the list behind v. Panics if v is not a list.
func (v Value) AsList() *ListObject {
	return (*ListObject)(mustTag(v, TagList, "AsList"))
}

// AsListNode returns the list node behind v. Panics if v is not a node.
func (v Value) AsListNode() *ListNode {
	return (*ListNode)(mustTag(v, TagListNode, "AsListNode"))
}

// AsVector returns the vector behind v. Panics if v is not a vector.
func (v Value) AsVector() *VectorObject {
	return (*VectorObject)(mustTag(v, TagVector, "AsVector"))
}

// AsVectorData returns the vector data block behind v.
func (v Value) AsVectorData() *VectorData {
	return (*VectorData)(mustTag(v, TagVectorData, "AsVectorData"))
}

// AsMap returns the map behind v. Panics if v is not a map.
func (v Value) AsMap() *MapObject {
	return (*MapObject)(mustTag(v, TagMap, "AsMap"))
}

// AsSet returns the set behind v. Panics if v is not a set.
func (v Value) AsSet() *SetObject {
	return (*SetObject)(mustTag(v, TagSet, "AsSet"))
}

// AsStr returns the string behind v. Panics if v is not a string.
func (v Value) AsStr() *StrObject {
	return (*StrObject)(mustTag(v, TagStr, "AsStr"))
}

// AsError returns the error behind v. Panics if v is not an error.
func (v Value) AsError() *ErrorObject {
	return (*ErrorObject)(mustTag(v, TagError, "AsError"))
}

// AsFunction returns the function behind v. Panics if v is not a function.
func (v Value) AsFunction() *FunctionObject {
	return (*FunctionObject)(mustTag(v, TagFunction, "AsFunction"))
}

// AsMacro returns the macro behind v. Panics if v is not a macro.
func (v Value) AsMacro() *MacroObject {
	return (*MacroObject)(mustTag(v, TagMacro, "AsMacro"))
}

// AsFuture returns the future behind v. Panics if v is not a future.
func (v Value) AsFuture() *FutureObject {
	return (*FutureObject)(mustTag(v, TagFuture, "AsFuture"))
}

// AsEnv returns the environment behind v. Panics if v is not an env.
func (v Value) AsEnv() *EnvObject {
	return (*EnvObject)(mustTag(v, TagEnv, "AsEnv"))
}

// objectFromValue recovers the heapObject interface from an object value.
func objectFromValue(v Value) heapObject {
	switch typeTagOf(v) {
	case TagList:
		return v.AsList()
	case TagListNode:
		return v.AsListNode()
	case TagVector:
		return v.AsVector()
	case TagVectorData:
		return v.AsVectorData()
	case TagMap:
		return v.AsMap()
	case TagSet:
		return v.AsSet()
	case TagStr:
		return v.AsStr()
	case TagError:
		return v.AsError()
	case TagFunction:
		return v.AsFunction()
	case TagMacro:
		return v.AsMacro()
	case TagFuture:
		return v.AsFuture()
	case TagEnv:
		return v.AsEnv()
	default:
		panic("objectFromValue: unknown type tag")
	}
}
