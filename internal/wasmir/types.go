// Package wasmir is the host WebAssembly IR adapter: a minimal, in-memory
// module model (expressions, functions, heap types) that the AD passes
// program against instead of a real Binaryen-style C API. Encoding to the
// actual Wasm binary/text formats is out of scope; see wasmir/wat for a
// debug-only printer and wasmir/wirepb for the msgpack round-trip format
// this repository uses in place of a binary codec.
package wasmir

import "fmt"

// Kind enumerates the primal value type kinds relevant to differentiation.
// Only the kinds listed in spec.md §3 are representable; everything else
// (v128, funcref, externref, stringref, null refs, ...) has no Kind here
// and is rejected at the IR boundary before it ever reaches gradtype.
type Kind uint8

const (
	KindF32 Kind = iota
	KindF64
	KindI32
	KindI64
	KindNone
	KindUnreachable
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindNone:
		return "none"
	case KindUnreachable:
		return "unreachable"
	case KindRef:
		return "ref"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// HeapID indexes into Module.Heaps.
type HeapID int

// NoHeap is the sentinel for a ValType that is not a reference.
const NoHeap HeapID = -1

// ValType is a primal value type P (spec.md §3).
type ValType struct {
	Kind Kind
	Heap HeapID // only meaningful when Kind == KindRef
}

func F32() ValType         { return ValType{Kind: KindF32, Heap: NoHeap} }
func F64() ValType         { return ValType{Kind: KindF64, Heap: NoHeap} }
func I32() ValType         { return ValType{Kind: KindI32, Heap: NoHeap} }
func I64() ValType         { return ValType{Kind: KindI64, Heap: NoHeap} }
func None() ValType        { return ValType{Kind: KindNone, Heap: NoHeap} }
func Unreachable() ValType { return ValType{Kind: KindUnreachable, Heap: NoHeap} }
func Ref(h HeapID) ValType { return ValType{Kind: KindRef, Heap: h} }

func (t ValType) IsRef() bool { return t.Kind == KindRef }

func (t ValType) IsFloat() bool { return t.Kind == KindF32 || t.Kind == KindF64 }

func (t ValType) Equal(o ValType) bool { return t.Kind == o.Kind && t.Heap == o.Heap }

func (t ValType) String() string {
	if t.Kind == KindRef {
		return fmt.Sprintf("ref(%d)", t.Heap)
	}
	return t.Kind.String()
}

// Tuple is an ordered sequence of primal or gradient value types.
type Tuple []ValType

func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !t[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// HeapKind distinguishes struct and array heap definitions.
type HeapKind uint8

const (
	HeapStruct HeapKind = iota
	HeapArray
)

// FieldDef is one field of a struct heap type.
type FieldDef struct {
	Type    ValType
	Mutable bool
}

// HeapDef is a struct or array heap type (spec.md §3's "heap (struct/array) types").
//
// Fields is populated for HeapStruct; Elem/ElemMutable for HeapArray.
type HeapDef struct {
	Kind        HeapKind
	Name        string // debug only, never used for identity
	Fields      []FieldDef
	Elem        ValType
	ElemMutable bool
}

// FeatureSet records which Wasm features the input module declares enabled.
// spec.md §6 requires Multivalue, ReferenceTypes, and GC for any module this
// system will transform.
type FeatureSet struct {
	Multivalue     bool
	ReferenceTypes bool
	GC             bool
}
