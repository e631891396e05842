package wirepb

import (
	"testing"

	"wasmgrad/internal/wasmir"
)

func buildSampleModule() *wasmir.Module {
	m := wasmir.NewModule(wasmir.FeatureSet{Multivalue: true, ReferenceTypes: true, GC: true})
	heap := m.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapStruct, Name: "tape", Fields: []wasmir.FieldDef{{Type: wasmir.F64()}}})
	m.NewRecGroup(heap)

	f := wasmir.NewFunc("square", wasmir.Tuple{wasmir.F64()}, wasmir.Tuple{wasmir.F64()})
	f.Exported = true
	mulID := f.Emit(wasmir.Expr{
		Kind: wasmir.ExprBinary, Op: wasmir.BinMulF64,
		Left:  f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 0, Type: wasmir.F64()}),
		Right: f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 0, Type: wasmir.F64()}),
		Type:  wasmir.F64(),
	})
	f.SetBody([]wasmir.ExprID{mulID})
	m.AddFunc(f)
	return m
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := buildSampleModule()

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Features != m.Features {
		t.Fatalf("features mismatch: got %+v, want %+v", got.Features, m.Features)
	}
	if len(got.Heaps) != len(m.Heaps) || got.Heaps[0].Name != "tape" {
		t.Fatalf("heaps did not round-trip: %+v", got.Heaps)
	}
	if len(got.RecGroups) != 1 || len(got.RecGroups[0]) != 1 {
		t.Fatalf("rec groups did not round-trip: %+v", got.RecGroups)
	}

	f, ok := got.LookupFunc("square")
	if !ok {
		t.Fatalf("decoded module lost the function name index")
	}
	if !f.Exported {
		t.Errorf("Exported flag did not round-trip")
	}
	if len(f.Body) != 1 {
		t.Fatalf("function body did not round-trip: %+v", f.Body)
	}
	if f.Expr(f.Body[0]).Op != wasmir.BinMulF64 {
		t.Errorf("body expression did not round-trip correctly")
	}
}

func TestDecodeRebuildsFuncByName(t *testing.T) {
	m := buildSampleModule()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.FuncByName) != 1 {
		t.Fatalf("FuncByName was not rebuilt: %v", got.FuncByName)
	}
}
