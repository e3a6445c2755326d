package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshot codec
// ---------------------------------------------------------------------------

// Value graphs are serialized as a flat record table in canonical CBOR.
// Each record describes one value; heap objects are deduplicated by
// identity so shared structure and cycles survive the round trip. Record
// kinds for heap objects reuse the TypeTag space; immediates get their
// own kinds above it. Symbols and keywords travel by name and re-intern
// on decode, so snapshots move between runtimes.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

const (
	recNumber  uint8 = 100
	recNil     uint8 = 101
	recTrue    uint8 = 102
	recFalse   uint8 = 103
	recSymbol  uint8 = 104
	recKeyword uint8 = 105
)

// record is one serialized value.
type record struct {
	Kind uint8    `cbor:"k"`
	Num  float64  `cbor:"n,omitempty"`
	Str  string   `cbor:"s,omitempty"`
	Kids []uint32 `cbor:"c,omitempty"`

	// Error fields
	ErrKind  uint8 `cbor:"e,omitempty"`
	Expected int   `cbor:"x,omitempty"`
	Got      int   `cbor:"g,omitempty"`
}

// snapshot is the wire form: a record table plus the root index.
type snapshot struct {
	Version int      `cbor:"v"`
	Root    uint32   `cbor:"r"`
	Records []record `cbor:"o"`
}

const snapshotVersion = 1

type snapshotEncoder struct {
	rt      *Runtime
	records []record
	indexes map[*Header]uint32
}

// EncodeSnapshot serializes a value graph to canonical CBOR. Functions,
// macros, futures, environments, and module handles are runtime-bound
// and not serializable.
func (rt *Runtime) EncodeSnapshot(root Value) ([]byte, error) {
	enc := &snapshotEncoder{rt: rt, indexes: make(map[*Header]uint32)}
	rootIdx, err := enc.encode(root)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(&snapshot{
		Version: snapshotVersion,
		Root:    rootIdx,
		Records: enc.records,
	})
}

// reserve appends a placeholder record and returns its index; object
// records are reserved before their children encode so cycles resolve.
func (enc *snapshotEncoder) reserve() uint32 {
	enc.records = append(enc.records, record{})
	return uint32(len(enc.records) - 1)
}

func (enc *snapshotEncoder) encode(v Value) (uint32, error) {
	switch {
	case v.IsNumber():
		idx := enc.reserve()
		enc.records[idx] = record{Kind: recNumber, Num: v.Number()}
		return idx, nil
	case v.IsNil():
		idx := enc.reserve()
		enc.records[idx] = record{Kind: recNil}
		return idx, nil
	case v.IsTrue():
		idx := enc.reserve()
		enc.records[idx] = record{Kind: recTrue}
		return idx, nil
	case v.IsFalse():
		idx := enc.reserve()
		enc.records[idx] = record{Kind: recFalse}
		return idx, nil
	case v.IsSymbol():
		idx := enc.reserve()
		enc.records[idx] = record{Kind: recSymbol, Str: enc.rt.Symbols.Name(v.SymbolID())}
		return idx, nil
	case v.IsKeyword():
		idx := enc.reserve()
		enc.records[idx] = record{Kind: recKeyword, Str: enc.rt.Symbols.KeywordName(v.KeywordID())}
		return idx, nil
	case v.IsObject():
		return enc.encodeObject(v)
	default:
		return 0, fmt.Errorf("snapshot: cannot encode %s", typeName(v))
	}
}

func (enc *snapshotEncoder) encodeObject(v Value) (uint32, error) {
	hdr := v.Header()
	if idx, ok := enc.indexes[hdr]; ok {
		return idx, nil
	}
	idx := enc.reserve()
	enc.indexes[hdr] = idx

	encodeKids := func(elems []Value) ([]uint32, error) {
		kids := make([]uint32, 0, len(elems))
		for _, e := range elems {
			ki, err := enc.encode(e)
			if err != nil {
				return nil, err
			}
			kids = append(kids, ki)
		}
		return kids, nil
	}

	switch typeTagOf(v) {
	case TagStr:
		enc.records[idx] = record{Kind: uint8(TagStr), Str: v.AsStr().String()}

	case TagList:
		kids, err := encodeKids(v.AsList().ToSlice())
		if err != nil {
			return 0, err
		}
		enc.records[idx] = record{Kind: uint8(TagList), Kids: kids}

	case TagVector:
		kids, err := encodeKids(v.AsVector().ToSlice())
		if err != nil {
			return 0, err
		}
		enc.records[idx] = record{Kind: uint8(TagVector), Kids: kids}

	case TagMap:
		pairs := make([]Value, 0, v.AsMap().Count()*2)
		v.AsMap().ForEach(func(k, val Value) {
			pairs = append(pairs, k, val)
		})
		kids, err := encodeKids(pairs)
		if err != nil {
			return 0, err
		}
		enc.records[idx] = record{Kind: uint8(TagMap), Kids: kids}

	case TagSet:
		kids, err := encodeKids(v.AsSet().Elems())
		if err != nil {
			return 0, err
		}
		enc.records[idx] = record{Kind: uint8(TagSet), Kids: kids}

	case TagError:
		e := v.AsError()
		kids, err := encodeKids([]Value{e.Name, e.Payload})
		if err != nil {
			return 0, err
		}
		enc.records[idx] = record{
			Kind:     uint8(TagError),
			Str:      e.Message,
			Kids:     kids,
			ErrKind:  uint8(e.Kind),
			Expected: e.Expected,
			Got:      e.Got,
		}

	default:
		return 0, fmt.Errorf("snapshot: cannot encode %s", typeTagOf(v))
	}
	return idx, nil
}

// DecodeSnapshot rebuilds a value graph serialized by EncodeSnapshot.
// Symbols and keywords are re-interned into this runtime's tables.
func (rt *Runtime) DecodeSnapshot(data []byte) (Value, error) {
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return Nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if snap.Version != snapshotVersion {
		return Nil, fmt.Errorf("snapshot: unsupported version %d", snap.Version)
	}
	if int(snap.Root) >= len(snap.Records) {
		return Nil, fmt.Errorf("snapshot: root index %d out of range", snap.Root)
	}

	m := rt.Heap.Mutator()

	// First pass: allocate shells for container objects so child indexes
	// can resolve cyclic references.
	values := make([]Value, len(snap.Records))
	for i, rec := range snap.Records {
		switch rec.Kind {
		case uint8(TagList):
			values[i] = m.NewList()
		case uint8(TagVector):
			values[i] = m.NewVector()
		case uint8(TagMap):
			values[i] = m.NewMap()
		case uint8(TagSet):
			values[i] = m.NewSet()
		case uint8(TagError):
			values[i] = m.NewError(ErrorKind(rec.ErrKind), rec.Str)
		case uint8(TagStr):
			values[i] = m.NewStr(rec.Str)
		case recNumber:
			values[i] = FromNumber(rec.Num)
		case recNil:
			values[i] = Nil
		case recTrue:
			values[i] = True
		case recFalse:
			values[i] = False
		case recSymbol:
			values[i] = rt.Symbols.SymbolValue(rec.Str)
		case recKeyword:
			values[i] = rt.Symbols.KeywordValue(rec.Str)
		default:
			return Nil, fmt.Errorf("snapshot: unknown record kind %d", rec.Kind)
		}
	}

	kid := func(rec record, j int) (Value, error) {
		if j >= len(rec.Kids) || int(rec.Kids[j]) >= len(values) {
			return Nil, fmt.Errorf("snapshot: child index out of range")
		}
		return values[rec.Kids[j]], nil
	}

	// Second pass: fill containers.
	for i, rec := range snap.Records {
		switch rec.Kind {
		case uint8(TagList):
			// Fill the shell in place so records already pointing at it
			// see the final contents.
			elems := make([]Value, len(rec.Kids))
			for j := range rec.Kids {
				e, err := kid(rec, j)
				if err != nil {
					return Nil, err
				}
				elems[j] = e
			}
			if len(elems) > 0 {
				filled := m.ListFromSlice(elems).AsList()
				shell := values[i].AsList()
				shell.length = filled.length
				shell.head = filled.head
				shell.tail = filled.tail
				m.heap.WriteBarrier(&shell.hdr, shell.head)
				m.heap.WriteBarrier(&shell.hdr, shell.tail)
			}
		case uint8(TagVector):
			vec := values[i].AsVector()
			for j := range rec.Kids {
				e, err := kid(rec, j)
				if err != nil {
					return Nil, err
				}
				vec.Push(m, e)
			}
		case uint8(TagMap):
			mo := values[i].AsMap()
			for j := 0; j+1 < len(rec.Kids); j += 2 {
				k, err := kid(rec, j)
				if err != nil {
					return Nil, err
				}
				val, err := kid(rec, j+1)
				if err != nil {
					return Nil, err
				}
				mo.Insert(m, k, val)
			}
		case uint8(TagSet):
			so := values[i].AsSet()
			for j := range rec.Kids {
				e, err := kid(rec, j)
				if err != nil {
					return Nil, err
				}
				so.Add(m, e)
			}
		case uint8(TagError):
			e := values[i].AsError()
			name, err := kid(rec, 0)
			if err != nil {
				return Nil, err
			}
			payload, err := kid(rec, 1)
			if err != nil {
				return Nil, err
			}
			e.Name = name
			e.Payload = payload
			e.Expected = rec.Expected
			e.Got = rec.Got
			m.heap.WriteBarrier(&e.hdr, name)
			m.heap.WriteBarrier(&e.hdr, payload)
		}
	}
	return values[snap.Root], nil
}
