// Package adtest provides test-only tooling for exercising generated
// F_fwd/F_bwd pairs without a real Wasm runtime: a small tree-walking
// interpreter (this file) and a finite-difference gradient checker
// (findiff.go) built on top of it.
//
// Grounded on a different pack repo's internal/autodiff gradient-check
// tests, which compare an analytic backward pass against a
// central-difference estimate; adapted here to drive wasmir.Func bodies
// directly since this repository owns no Wasm execution engine. Never
// imported by the non-test code of internal/wasmir, internal/gradtype,
// internal/tapeplan, internal/adgen, or internal/addriver — those
// packages are the thing under test, not consumers of the test harness.
package adtest

import (
	"fmt"

	"fortio.org/safecast"

	"wasmgrad/internal/wasmir"
)

// Value is a runtime value: exactly one of the scalar fields is
// meaningful, as determined by Kind, except for KindRef where Obj holds
// the referenced struct/array.
type Value struct {
	Kind wasmir.Kind
	F32  float32
	F64  float64
	I32  int32
	I64  int64
	Obj  *Object
}

// Object is a struct or array instance. Structs store one Value per
// field; arrays store one Value per element, all sharing Elem's Kind.
type Object struct {
	IsArray bool
	Fields  []Value
}

func F64Val(v float64) Value { return Value{Kind: wasmir.KindF64, F64: v} }
func F32Val(v float32) Value { return Value{Kind: wasmir.KindF32, F32: v} }
func I32Val(v int32) Value   { return Value{Kind: wasmir.KindI32, I32: v} }
func I64Val(v int64) Value   { return Value{Kind: wasmir.KindI64, I64: v} }

func zeroValue(t wasmir.ValType) Value {
	switch t.Kind {
	case wasmir.KindF32:
		return Value{Kind: wasmir.KindF32}
	case wasmir.KindF64:
		return Value{Kind: wasmir.KindF64}
	case wasmir.KindI32:
		return Value{Kind: wasmir.KindI32}
	case wasmir.KindI64:
		return Value{Kind: wasmir.KindI64}
	case wasmir.KindRef:
		return Value{Kind: wasmir.KindRef}
	default:
		return Value{Kind: wasmir.KindNone}
	}
}

func addValue(a, b Value) Value {
	if a.Kind == wasmir.KindF32 {
		return Value{Kind: wasmir.KindF32, F32: a.F32 + b.F32}
	}
	return Value{Kind: wasmir.KindF64, F64: a.F64 + b.F64}
}

func subValue(a, b Value) Value {
	if a.Kind == wasmir.KindF32 {
		return Value{Kind: wasmir.KindF32, F32: a.F32 - b.F32}
	}
	return Value{Kind: wasmir.KindF64, F64: a.F64 - b.F64}
}

func mulValue(a, b Value) Value {
	if a.Kind == wasmir.KindF32 {
		return Value{Kind: wasmir.KindF32, F32: a.F32 * b.F32}
	}
	return Value{Kind: wasmir.KindF64, F64: a.F64 * b.F64}
}

func divValue(a, b Value) Value {
	if a.Kind == wasmir.KindF32 {
		return Value{Kind: wasmir.KindF32, F32: a.F32 / b.F32}
	}
	return Value{Kind: wasmir.KindF64, F64: a.F64 / b.F64}
}

// Interp evaluates wasmir.Func bodies against a fixed module, resolving
// calls by name.
type Interp struct {
	mod *wasmir.Module
}

// New returns an Interp that resolves calls against mod.
func New(mod *wasmir.Module) *Interp {
	return &Interp{mod: mod}
}

type frame struct {
	locals []Value
}

// Call invokes the named function with args bound to its leading locals
// (Wasm-style parameter numbering) and returns its top-level result
// values: the values its final body statement produces.
func (it *Interp) Call(name string, args []Value) ([]Value, error) {
	f, ok := it.mod.LookupFunc(name)
	if !ok {
		return nil, fmt.Errorf("adtest: function %q not found", name)
	}
	if len(args) != len(f.Params) {
		return nil, fmt.Errorf("adtest: %s: got %d args, want %d", name, len(args), len(f.Params))
	}
	fr := &frame{locals: make([]Value, len(f.Locals))}
	for i, t := range f.Locals {
		fr.locals[i] = zeroValue(t)
	}
	copy(fr.locals, args)

	var last []Value
	for _, id := range f.Body {
		vs, err := it.evalMulti(f, fr, id)
		if err != nil {
			return nil, err
		}
		last = vs
	}
	return last, nil
}

func (it *Interp) evalSingle(f *wasmir.Func, fr *frame, id wasmir.ExprID) (Value, error) {
	vs, err := it.evalMulti(f, fr, id)
	if err != nil {
		return Value{}, err
	}
	if len(vs) == 0 {
		return Value{}, nil
	}
	return vs[0], nil
}

func (it *Interp) evalMulti(f *wasmir.Func, fr *frame, id wasmir.ExprID) ([]Value, error) {
	if id == wasmir.NoExpr {
		return nil, nil
	}
	e := f.Expr(id)

	switch e.Kind {
	case wasmir.ExprBlock:
		var last []Value
		for _, c := range e.Children {
			vs, err := it.evalMulti(f, fr, c)
			if err != nil {
				return nil, err
			}
			last = vs
		}
		return last, nil

	case wasmir.ExprConstF32:
		return []Value{{Kind: wasmir.KindF32, F32: e.F32}}, nil
	case wasmir.ExprConstF64:
		return []Value{{Kind: wasmir.KindF64, F64: e.F64}}, nil
	case wasmir.ExprConstI32:
		return []Value{{Kind: wasmir.KindI32, I32: e.I32}}, nil
	case wasmir.ExprConstI64:
		return []Value{{Kind: wasmir.KindI64, I64: e.I64}}, nil

	case wasmir.ExprLocalGet:
		return []Value{fr.locals[e.Local]}, nil

	case wasmir.ExprLocalSet:
		v, err := it.evalSingle(f, fr, e.Value)
		if err != nil {
			return nil, err
		}
		fr.locals[e.Local] = v
		return nil, nil

	case wasmir.ExprLocalTee:
		v, err := it.evalSingle(f, fr, e.Value)
		if err != nil {
			return nil, err
		}
		fr.locals[e.Local] = v
		return []Value{v}, nil

	case wasmir.ExprBinary:
		l, err := it.evalSingle(f, fr, e.Left)
		if err != nil {
			return nil, err
		}
		r, err := it.evalSingle(f, fr, e.Right)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case wasmir.BinAddF32, wasmir.BinAddF64:
			return []Value{addValue(l, r)}, nil
		case wasmir.BinSubF32, wasmir.BinSubF64:
			return []Value{subValue(l, r)}, nil
		case wasmir.BinMulF32, wasmir.BinMulF64:
			return []Value{mulValue(l, r)}, nil
		case wasmir.BinDivF32, wasmir.BinDivF64:
			return []Value{divValue(l, r)}, nil
		default:
			return nil, fmt.Errorf("adtest: unknown binary op %v", e.Op)
		}

	case wasmir.ExprCall:
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			v, err := it.evalSingle(f, fr, a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return it.Call(e.Callee, args)

	case wasmir.ExprStructNew:
		def := it.mod.Heap(e.Heap)
		obj := &Object{Fields: make([]Value, len(def.Fields))}
		if len(e.Args) > 0 {
			for i, a := range e.Args {
				v, err := it.evalSingle(f, fr, a)
				if err != nil {
					return nil, err
				}
				obj.Fields[i] = v
			}
		} else {
			for i, fd := range def.Fields {
				obj.Fields[i] = zeroValue(fd.Type)
			}
		}
		return []Value{{Kind: wasmir.KindRef, Obj: obj}}, nil

	case wasmir.ExprArrayNewDefault:
		def := it.mod.Heap(e.Heap)
		size, err := it.evalSingle(f, fr, e.Size)
		if err != nil {
			return nil, err
		}
		obj := &Object{IsArray: true, Fields: make([]Value, size.I32)}
		for i := range obj.Fields {
			obj.Fields[i] = zeroValue(def.Elem)
		}
		return []Value{{Kind: wasmir.KindRef, Obj: obj}}, nil

	case wasmir.ExprArrayGet:
		arr, err := it.evalSingle(f, fr, e.Array)
		if err != nil {
			return nil, err
		}
		idx, err := it.evalSingle(f, fr, e.Index)
		if err != nil {
			return nil, err
		}
		return []Value{arr.Obj.Fields[idx.I32]}, nil

	case wasmir.ExprArraySet:
		arr, err := it.evalSingle(f, fr, e.Array)
		if err != nil {
			return nil, err
		}
		idx, err := it.evalSingle(f, fr, e.Index)
		if err != nil {
			return nil, err
		}
		val, err := it.evalSingle(f, fr, e.Value)
		if err != nil {
			return nil, err
		}
		arr.Obj.Fields[idx.I32] = val
		return nil, nil

	case wasmir.ExprArrayLen:
		arr, err := it.evalSingle(f, fr, e.Array)
		if err != nil {
			return nil, err
		}
		n, err := safecast.Conv[int32](len(arr.Obj.Fields))
		if err != nil {
			return nil, fmt.Errorf("adtest: array.len: %w", err)
		}
		return []Value{{Kind: wasmir.KindI32, I32: n}}, nil

	case wasmir.ExprTupleMake:
		out := make([]Value, 0, len(e.Children))
		for _, c := range e.Children {
			v, err := it.evalSingle(f, fr, c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case wasmir.ExprMultiSet:
		vs, err := it.evalMulti(f, fr, e.Value)
		if err != nil {
			return nil, err
		}
		for i, l := range e.Locals {
			if i < len(vs) {
				fr.locals[l] = vs[i]
			}
		}
		return nil, nil

	case wasmir.ExprStructGet:
		s, err := it.evalSingle(f, fr, e.Struct)
		if err != nil {
			return nil, err
		}
		return []Value{s.Obj.Fields[e.Field]}, nil

	case wasmir.ExprStructSet:
		s, err := it.evalSingle(f, fr, e.Struct)
		if err != nil {
			return nil, err
		}
		val, err := it.evalSingle(f, fr, e.Value)
		if err != nil {
			return nil, err
		}
		s.Obj.Fields[e.Field] = val
		return nil, nil

	default:
		return nil, fmt.Errorf("adtest: unsupported expr kind %v", e.Kind)
	}
}
