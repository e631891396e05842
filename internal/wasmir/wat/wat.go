// Package wat is a deliberately partial S-expression printer for
// wasmir.Module, used only for human-readable debugging: the CLI's
// --dump-ir flag and test failure output. It is not a parser and not a
// binary encoder — the real Wasm text/binary codec is out of scope for
// this repository (spec.md §1).
package wat

import (
	"fmt"
	"io"
	"strings"

	"wasmgrad/internal/wasmir"
)

// Fprint writes an S-expression rendering of m to w.
func Fprint(w io.Writer, m *wasmir.Module) {
	for i, def := range m.Heaps {
		fmt.Fprintln(w, heapString(wasmir.HeapID(i), def))
	}
	for _, group := range m.RecGroups {
		ids := make([]string, len(group))
		for i, id := range group {
			ids[i] = fmt.Sprintf("%d", id)
		}
		fmt.Fprintf(w, "(rec %s)\n", strings.Join(ids, " "))
	}
	for _, f := range m.Funcs {
		fmt.Fprintln(w, funcString(f))
	}
}

func heapString(id wasmir.HeapID, def wasmir.HeapDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(type $%d ", id)
	if def.Name != "" {
		fmt.Fprintf(&b, ";; %s ", def.Name)
	}
	switch def.Kind {
	case wasmir.HeapStruct:
		b.WriteString("(struct")
		for _, f := range def.Fields {
			fmt.Fprintf(&b, " (field %s%s%s)", mutPrefix(f.Mutable), f.Type, mutSuffix(f.Mutable))
		}
		b.WriteString(")")
	case wasmir.HeapArray:
		fmt.Fprintf(&b, "(array %s%s%s)", mutPrefix(def.ElemMutable), def.Elem, mutSuffix(def.ElemMutable))
	}
	b.WriteString(")")
	return b.String()
}

func mutPrefix(mutable bool) string {
	if mutable {
		return "(mut "
	}
	return ""
}

func mutSuffix(mutable bool) string {
	if mutable {
		return ")"
	}
	return ""
}

func funcString(f *wasmir.Func) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(func $%s", f.Name)
	for _, p := range f.Params {
		fmt.Fprintf(&b, " (param %s)", p)
	}
	for _, r := range f.Results {
		fmt.Fprintf(&b, " (result %s)", r)
	}
	for i := len(f.Params); i < len(f.Locals); i++ {
		fmt.Fprintf(&b, " (local %s)", f.Locals[i])
	}
	for _, id := range f.Body {
		b.WriteString("\n  ")
		writeExpr(&b, f, id, 1)
	}
	b.WriteString(")")
	return b.String()
}

func writeExpr(b *strings.Builder, f *wasmir.Func, id wasmir.ExprID, depth int) {
	if id == wasmir.NoExpr {
		b.WriteString("(nop)")
		return
	}
	e := f.Expr(id)
	switch e.Kind {
	case wasmir.ExprBlock:
		b.WriteString("(block")
		writeChildren(b, f, e.Children, depth)
		b.WriteString(")")
	case wasmir.ExprConstF32:
		fmt.Fprintf(b, "(f32.const %v)", e.F32)
	case wasmir.ExprConstF64:
		fmt.Fprintf(b, "(f64.const %v)", e.F64)
	case wasmir.ExprConstI32:
		fmt.Fprintf(b, "(i32.const %v)", e.I32)
	case wasmir.ExprConstI64:
		fmt.Fprintf(b, "(i64.const %v)", e.I64)
	case wasmir.ExprLocalGet:
		fmt.Fprintf(b, "(local.get %d)", e.Local)
	case wasmir.ExprLocalSet:
		fmt.Fprintf(b, "(local.set %d ", e.Local)
		writeExpr(b, f, e.Value, depth)
		b.WriteString(")")
	case wasmir.ExprLocalTee:
		fmt.Fprintf(b, "(local.tee %d ", e.Local)
		writeExpr(b, f, e.Value, depth)
		b.WriteString(")")
	case wasmir.ExprBinary:
		fmt.Fprintf(b, "(%s ", binOpString(e.Op))
		writeExpr(b, f, e.Left, depth)
		b.WriteString(" ")
		writeExpr(b, f, e.Right, depth)
		b.WriteString(")")
	case wasmir.ExprCall:
		fmt.Fprintf(b, "(call $%s", e.Callee)
		writeChildren(b, f, e.Args, depth)
		b.WriteString(")")
	case wasmir.ExprReturnCall:
		fmt.Fprintf(b, "(return_call $%s)", e.Callee)
	case wasmir.ExprStructNew:
		fmt.Fprintf(b, "(struct.new %d", e.Heap)
		writeChildren(b, f, e.Args, depth)
		b.WriteString(")")
	case wasmir.ExprArrayNewDefault:
		fmt.Fprintf(b, "(array.new_default %d ", e.Heap)
		writeExpr(b, f, e.Size, depth)
		b.WriteString(")")
	case wasmir.ExprArrayGet:
		b.WriteString("(array.get ")
		writeExpr(b, f, e.Array, depth)
		b.WriteString(" ")
		writeExpr(b, f, e.Index, depth)
		b.WriteString(")")
	case wasmir.ExprArraySet:
		b.WriteString("(array.set ")
		writeExpr(b, f, e.Array, depth)
		b.WriteString(" ")
		writeExpr(b, f, e.Index, depth)
		b.WriteString(" ")
		writeExpr(b, f, e.Value, depth)
		b.WriteString(")")
	case wasmir.ExprArrayLen:
		b.WriteString("(array.len ")
		writeExpr(b, f, e.Array, depth)
		b.WriteString(")")
	case wasmir.ExprTupleMake:
		b.WriteString("(tuple.make")
		writeChildren(b, f, e.Children, depth)
		b.WriteString(")")
	case wasmir.ExprMultiSet:
		b.WriteString("(multi.set (")
		for i, l := range e.Locals {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(b, "%d", l)
		}
		b.WriteString(") ")
		writeExpr(b, f, e.Value, depth)
		b.WriteString(")")
	case wasmir.ExprStructGet:
		fmt.Fprintf(b, "(struct.get %d ", e.Field)
		writeExpr(b, f, e.Struct, depth)
		b.WriteString(")")
	case wasmir.ExprStructSet:
		fmt.Fprintf(b, "(struct.set %d ", e.Field)
		writeExpr(b, f, e.Struct, depth)
		b.WriteString(" ")
		writeExpr(b, f, e.Value, depth)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "(unknown.%d)", e.Kind)
	}
}

func writeChildren(b *strings.Builder, f *wasmir.Func, ids []wasmir.ExprID, depth int) {
	for _, id := range ids {
		b.WriteString(" ")
		writeExpr(b, f, id, depth)
	}
}

func binOpString(op wasmir.BinOp) string {
	switch op {
	case wasmir.BinAddF32:
		return "f32.add"
	case wasmir.BinAddF64:
		return "f64.add"
	case wasmir.BinSubF32:
		return "f32.sub"
	case wasmir.BinSubF64:
		return "f64.sub"
	case wasmir.BinMulF32:
		return "f32.mul"
	case wasmir.BinMulF64:
		return "f64.mul"
	case wasmir.BinDivF32:
		return "f32.div"
	case wasmir.BinDivF64:
		return "f64.div"
	default:
		return "unknown.binop"
	}
}
