package gradtype

import (
	"testing"

	"wasmgrad/internal/wasmir"
)

func TestMapScalarKinds(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	mp := NewMapper(m, wasmir.NewBuilder(m))

	cases := []struct {
		name string
		in   wasmir.ValType
		want wasmir.ValType
	}{
		{"f32", wasmir.F32(), wasmir.F32()},
		{"f64", wasmir.F64(), wasmir.F64()},
		{"i32", wasmir.I32(), wasmir.None()},
		{"i64", wasmir.I64(), wasmir.None()},
		{"none", wasmir.None(), wasmir.None()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mp.Map(tc.in)
			if err != nil {
				t.Fatalf("Map(%v): %v", tc.in, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("Map(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsUnitAndBecomesMutable(t *testing.T) {
	if !IsUnit(wasmir.I32()) || !IsUnit(wasmir.None()) {
		t.Errorf("expected i32/none to be unit types")
	}
	if IsUnit(wasmir.F64()) {
		t.Errorf("f64 must not be a unit type")
	}
	if !BecomesMutable(wasmir.F32()) || !BecomesMutable(wasmir.F64()) {
		t.Errorf("expected float primals to become mutable")
	}
	if BecomesMutable(wasmir.I32()) {
		t.Errorf("integer primals must not become mutable")
	}
}

func TestMapTupleDropsUnitComponents(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	mp := NewMapper(m, wasmir.NewBuilder(m))

	got, err := mp.MapTuple(wasmir.Tuple{wasmir.I32(), wasmir.F64()})
	if err != nil {
		t.Fatalf("MapTuple: %v", err)
	}
	want := wasmir.Tuple{wasmir.F64()}
	if !got.Equal(want) {
		t.Errorf("MapTuple((i32,f64)) = %v, want %v", got, want)
	}

	got, err = mp.MapTuple(wasmir.Tuple{wasmir.F64(), wasmir.I32(), wasmir.F32()})
	if err != nil {
		t.Fatalf("MapTuple: %v", err)
	}
	want = wasmir.Tuple{wasmir.F64(), wasmir.F32()}
	if !got.Equal(want) {
		t.Errorf("MapTuple((f64,i32,f32)) = %v, want %v", got, want)
	}
}

func TestMapHeapStructDropsUnitFieldsAndFlipsMutability(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	h := m.NewHeap(wasmir.HeapDef{
		Kind: wasmir.HeapStruct,
		Name: "point",
		Fields: []wasmir.FieldDef{
			{Type: wasmir.F64()},
			{Type: wasmir.I32()},
		},
	})

	b := wasmir.NewBuilder(m)
	mp := NewMapper(m, b)

	gh, err := mp.MapHeap(h)
	if err != nil {
		t.Fatalf("MapHeap: %v", err)
	}
	b.Commit()

	def := m.Heap(gh)
	if len(def.Fields) != 1 {
		t.Fatalf("expected the unit field to be dropped, got %d fields", len(def.Fields))
	}
	if !def.Fields[0].Mutable {
		t.Errorf("expected the surviving differentiable field to become mutable")
	}
}

func TestMapHeapArrayWithUnitElemCollapsesToEmptyStruct(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	h := m.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapArray, Name: "ints", Elem: wasmir.I32()})

	b := wasmir.NewBuilder(m)
	mp := NewMapper(m, b)
	gh, err := mp.MapHeap(h)
	if err != nil {
		t.Fatalf("MapHeap: %v", err)
	}
	b.Commit()

	def := m.Heap(gh)
	if def.Kind != wasmir.HeapStruct || len(def.Fields) != 0 {
		t.Fatalf("expected an empty struct, got %+v", def)
	}
}

func TestMapHeapArrayWithFloatElem(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	h := m.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapArray, Name: "vec", Elem: wasmir.F64()})

	b := wasmir.NewBuilder(m)
	mp := NewMapper(m, b)
	gh, err := mp.MapHeap(h)
	if err != nil {
		t.Fatalf("MapHeap: %v", err)
	}
	b.Commit()

	def := m.Heap(gh)
	if def.Kind != wasmir.HeapArray || !def.Elem.Equal(wasmir.F64()) || !def.ElemMutable {
		t.Fatalf("expected a mutable f64 array, got %+v", def)
	}
}

func TestMapHeapIsMemoized(t *testing.T) {
	m := wasmir.NewModule(wasmir.FeatureSet{})
	h := m.NewHeap(wasmir.HeapDef{Kind: wasmir.HeapArray, Name: "vec", Elem: wasmir.F64()})

	b := wasmir.NewBuilder(m)
	mp := NewMapper(m, b)
	first, err := mp.MapHeap(h)
	if err != nil {
		t.Fatalf("MapHeap: %v", err)
	}
	second, err := mp.MapHeap(h)
	if err != nil {
		t.Fatalf("MapHeap: %v", err)
	}
	if first != second {
		t.Errorf("MapHeap returned different ids for the same input: %d vs %d", first, second)
	}
}
