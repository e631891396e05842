package tapeplan

import (
	"testing"

	"wasmgrad/internal/gradtype"
	"wasmgrad/internal/wasmir"
)

// buildBinary returns a one-statement function f(x,y f64) f64 { x OP y }.
func buildBinary(op wasmir.BinOp) *wasmir.Func {
	f := wasmir.NewFunc("f", wasmir.Tuple{wasmir.F64(), wasmir.F64()}, wasmir.Tuple{wasmir.F64()})
	body := f.Emit(wasmir.Expr{
		Kind: wasmir.ExprBinary, Op: op,
		Left:  f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 0, Type: wasmir.F64()}),
		Right: f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 1, Type: wasmir.F64()}),
		Type:  wasmir.F64(),
	})
	f.SetBody([]wasmir.ExprID{body})
	return f
}

func newMapper(m *wasmir.Module) *gradtype.Mapper {
	return gradtype.NewMapper(m, wasmir.NewBuilder(m))
}

func TestPlanAddHasNoTapeFields(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	f := buildBinary(wasmir.BinAddF64)
	m.AddFunc(f)

	plan, err := Plan(f, m, newMapper(m))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Fields) != 0 {
		t.Fatalf("add needs no saved operands, got %d fields", len(plan.Fields))
	}
}

func TestPlanMulSavesBothOperands(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	f := buildBinary(wasmir.BinMulF64)
	m.AddFunc(f)

	plan, err := Plan(f, m, newMapper(m))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Fields) != 2 {
		t.Fatalf("mul must save both operands, got %d fields", len(plan.Fields))
	}
	for _, fp := range plan.Fields {
		if fp.Role != FieldStore {
			t.Errorf("expected FieldStore, got %v", fp.Role)
		}
	}
}

func TestPlanDivSavesDivisorAndQuotient(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	f := buildBinary(wasmir.BinDivF64)
	m.AddFunc(f)

	plan, err := Plan(f, m, newMapper(m))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Fields) != 2 {
		t.Fatalf("div must save the divisor and the quotient, got %d fields", len(plan.Fields))
	}
}

func TestPlanRejectsReturnCall(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	f := wasmir.NewFunc("f", wasmir.Tuple{wasmir.F64()}, wasmir.Tuple{wasmir.F64()})
	id := f.Emit(wasmir.Expr{Kind: wasmir.ExprReturnCall, Callee: "f", Type: wasmir.F64()})
	f.SetBody([]wasmir.ExprID{id})
	m.AddFunc(f)

	_, err := Plan(f, m, newMapper(m))
	if err == nil {
		t.Fatalf("expected return_call to be rejected")
	}
}

func TestPlanRejectsStructNewWithOperands(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	heap := m.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapStruct, Fields: []wasmir.FieldDef{{Type: wasmir.F64()}}})
	f := wasmir.NewFunc("f", nil, wasmir.Tuple{wasmir.Ref(heap)})
	arg := f.Emit(wasmir.Expr{Kind: wasmir.ExprConstF64, F64: 1, Type: wasmir.F64()})
	id := f.Emit(wasmir.Expr{Kind: wasmir.ExprStructNew, Heap: heap, Args: []wasmir.ExprID{arg}, Type: wasmir.Ref(heap)})
	f.SetBody([]wasmir.ExprID{id})
	m.AddFunc(f)

	_, err := Plan(f, m, newMapper(m))
	if err == nil {
		t.Fatalf("expected struct.new with operands to be rejected")
	}
}

func TestPlanArraySetAllocatesSetFieldForDifferentiableElem(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	heap := m.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapArray, Elem: wasmir.F64(), ElemMutable: true})

	f := wasmir.NewFunc("f", wasmir.Tuple{wasmir.Ref(heap), wasmir.F64()}, nil)
	setID := f.Emit(wasmir.Expr{
		Kind:  wasmir.ExprArraySet,
		Array: f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 0, Type: wasmir.Ref(heap)}),
		Index: f.Emit(wasmir.Expr{Kind: wasmir.ExprConstI32, I32: 0, Type: wasmir.I32()}),
		Value: f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 1, Type: wasmir.F64()}),
		Type:  wasmir.None(),
	})
	f.SetBody([]wasmir.ExprID{setID})
	m.AddFunc(f)

	plan, err := Plan(f, m, newMapper(m))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Sets) != 1 {
		t.Fatalf("expected one FieldSet allocation, got %d", len(plan.Sets))
	}
}

func TestPlanIsDeterministicAcrossRuns(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	f := buildBinary(wasmir.BinDivF64)
	m.AddFunc(f)

	mapper := newMapper(m)
	first, err := Plan(f, m, mapper)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	second, err := Plan(f, m, mapper)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(first.Fields) != len(second.Fields) {
		t.Fatalf("planning the same function twice produced different field counts: %d vs %d", len(first.Fields), len(second.Fields))
	}
	for i := range first.Fields {
		if first.Fields[i].Role != second.Fields[i].Role || first.Fields[i].Source != second.Fields[i].Source {
			t.Errorf("field %d differs between runs: %+v vs %+v", i, first.Fields[i], second.Fields[i])
		}
	}
}
