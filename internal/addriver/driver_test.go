package addriver

import (
	"errors"
	"testing"

	"wasmgrad/internal/adcode"
	"wasmgrad/internal/adtest"
	"wasmgrad/internal/wasmir"
)

func fullFeatures() wasmir.FeatureSet {
	return wasmir.FeatureSet{Multivalue: true, ReferenceTypes: true, GC: true}
}

// binaryFunc builds f(x,y f64) f64 { x OP y } and registers it in mod.
func binaryFunc(mod *wasmir.Module, name string, op wasmir.BinOp) *wasmir.Func {
	f := wasmir.NewFunc(name, wasmir.Tuple{wasmir.F64(), wasmir.F64()}, wasmir.Tuple{wasmir.F64()})
	body := f.Emit(wasmir.Expr{
		Kind: wasmir.ExprBinary, Op: op,
		Left:  f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 0, Type: wasmir.F64()}),
		Right: f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 1, Type: wasmir.F64()}),
		Type:  wasmir.F64(),
	})
	f.SetBody([]wasmir.ExprID{body})
	mod.AddFunc(f)
	return f
}

// squareFunc builds square(x f64) f64 { x * x }.
func squareFunc(mod *wasmir.Module) *wasmir.Func {
	f := wasmir.NewFunc("square", wasmir.Tuple{wasmir.F64()}, wasmir.Tuple{wasmir.F64()})
	x := f.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 0, Type: wasmir.F64()})
	body := f.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: wasmir.BinMulF64, Left: x, Right: x, Type: wasmir.F64()})
	f.SetBody([]wasmir.ExprID{body})
	mod.AddFunc(f)
	return f
}

func TestTransformSubtractionAdjointMatchesFiniteDifference(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	binaryFunc(mod, "sub", wasmir.BinSubF64)

	d := New()
	results, err := d.Transform(mod, []string{"sub"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}

	it := adtest.New(mod)
	rep, err := adtest.CheckGradient(it, results[0].FwdName, results[0].BwdName, []float64{3, 5}, 1e-4, 1e-6)
	if err != nil {
		t.Fatalf("CheckGradient: %v", err)
	}
	if !rep.Pass {
		t.Errorf("sub gradient mismatch: analytic %v numeric %v maxErr %v", rep.Analytic, rep.Numeric, rep.MaxAbsErr)
	}
}

func TestTransformDivisionAdjointMatchesFiniteDifference(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	binaryFunc(mod, "div", wasmir.BinDivF64)

	d := New()
	results, err := d.Transform(mod, []string{"div"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	it := adtest.New(mod)
	rep, err := adtest.CheckGradient(it, results[0].FwdName, results[0].BwdName, []float64{7, 2}, 1e-4, 1e-6)
	if err != nil {
		t.Fatalf("CheckGradient: %v", err)
	}
	if !rep.Pass {
		t.Errorf("div gradient mismatch: analytic %v numeric %v maxErr %v", rep.Analytic, rep.Numeric, rep.MaxAbsErr)
	}
}

func TestTransformSquareAdjointMatchesFiniteDifference(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	squareFunc(mod)

	d := New()
	results, err := d.Transform(mod, []string{"square"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	it := adtest.New(mod)
	rep, err := adtest.CheckGradient(it, results[0].FwdName, results[0].BwdName, []float64{4}, 1e-4, 1e-6)
	if err != nil {
		t.Fatalf("CheckGradient: %v", err)
	}
	if !rep.Pass {
		t.Errorf("square gradient mismatch: analytic %v numeric %v maxErr %v", rep.Analytic, rep.Numeric, rep.MaxAbsErr)
	}
}

// TestTransformCompositionViaCallAdjointMatchesFiniteDifference builds
// poly(x f64) f64 { square(x) + x }, differentiating both poly and square
// in the same batch so poly's tape references square's tape struct
// (spec.md §3's cyclic-recursion-group requirement, exercised here for
// the ordinary non-mutual case).
func TestTransformCompositionViaCallAdjointMatchesFiniteDifference(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	squareFunc(mod)

	poly := wasmir.NewFunc("poly", wasmir.Tuple{wasmir.F64()}, wasmir.Tuple{wasmir.F64()})
	x := poly.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: 0, Type: wasmir.F64()})
	call := poly.Emit(wasmir.Expr{Kind: wasmir.ExprCall, Callee: "square", Args: []wasmir.ExprID{x}, Type: wasmir.F64(), ResultTypes: wasmir.Tuple{wasmir.F64()}})
	body := poly.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: wasmir.BinAddF64, Left: call, Right: x, Type: wasmir.F64()})
	poly.SetBody([]wasmir.ExprID{body})
	mod.AddFunc(poly)

	d := New()
	results, err := d.Transform(mod, []string{"square", "poly"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	var polyResult Result
	for _, r := range results {
		if r.Source == "poly" {
			polyResult = r
		}
	}
	if polyResult.FwdName == "" {
		t.Fatalf("poly not found among results: %+v", results)
	}

	it := adtest.New(mod)
	rep, err := adtest.CheckGradient(it, polyResult.FwdName, polyResult.BwdName, []float64{3}, 1e-4, 1e-6)
	if err != nil {
		t.Fatalf("CheckGradient: %v", err)
	}
	if !rep.Pass {
		t.Errorf("poly gradient mismatch: analytic %v numeric %v maxErr %v", rep.Analytic, rep.Numeric, rep.MaxAbsErr)
	}
}

func TestTransformRejectsModuleMissingRequiredFeatures(t *testing.T) {
	mod := wasmir.NewModule(wasmir.FeatureSet{Multivalue: true})
	binaryFunc(mod, "sub", wasmir.BinSubF64)

	_, err := New().Transform(mod, []string{"sub"})
	if err == nil {
		t.Fatalf("expected an error for a module missing reference-types/gc")
	}
	if !errors.Is(err, &adcode.Error{Code: adcode.FeatureRequired}) {
		t.Errorf("expected a FeatureRequired error, got %v", err)
	}
}

// TestTransformLeavesModuleUntouchedOnError plants a return_call among the
// targets (rejected by planning) alongside an otherwise-valid function, and
// checks that no heaps or functions from either target leaked into mod —
// spec.md §4.3's "no partial output" requirement.
func TestTransformLeavesModuleUntouchedOnError(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	binaryFunc(mod, "sub", wasmir.BinSubF64)

	bad := wasmir.NewFunc("bad", wasmir.Tuple{wasmir.F64()}, wasmir.Tuple{wasmir.F64()})
	id := bad.Emit(wasmir.Expr{Kind: wasmir.ExprReturnCall, Callee: "bad", Type: wasmir.F64()})
	bad.SetBody([]wasmir.ExprID{id})
	mod.AddFunc(bad)

	wantFuncs := len(mod.Funcs)
	wantHeaps := len(mod.Heaps)

	_, err := New().Transform(mod, []string{"sub", "bad"})
	if err == nil {
		t.Fatalf("expected an error from the return_call target")
	}
	if len(mod.Funcs) != wantFuncs {
		t.Errorf("module gained functions on a failed transform: had %d, now %d", wantFuncs, len(mod.Funcs))
	}
	if len(mod.Heaps) != wantHeaps {
		t.Errorf("module gained heaps on a failed transform: had %d, now %d", wantHeaps, len(mod.Heaps))
	}
}

func TestTransformOfAllFunctionsWhenTargetsEmpty(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	binaryFunc(mod, "sub", wasmir.BinSubF64)
	squareFunc(mod)

	results, err := New().Transform(mod, nil)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both module functions to be transformed, got %d results", len(results))
	}
}

func TestTransformRejectsUnknownTarget(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	binaryFunc(mod, "sub", wasmir.BinSubF64)

	_, err := New().Transform(mod, []string{"nope"})
	if err == nil {
		t.Fatalf("expected an error for an unresolved target name")
	}
}

// TestTransformHonorsRelaxedFeatureRequirements checks that a module
// missing the GC feature is accepted once the config stops requiring it,
// even though it would be rejected under the (all-required) defaults.
func TestTransformHonorsRelaxedFeatureRequirements(t *testing.T) {
	mod := wasmir.NewModule(wasmir.FeatureSet{Multivalue: true, ReferenceTypes: true})
	binaryFunc(mod, "sub", wasmir.BinSubF64)

	d := New()
	d.Config.Transform.RequireGC = false
	if _, err := d.Transform(mod, []string{"sub"}); err != nil {
		t.Fatalf("Transform with RequireGC=false: %v", err)
	}
}

// TestTransformUsesConfiguredNameSuffixes checks that Driver mints
// generated names with wasmgrad.toml's configured suffixes instead of the
// "_fwd"/"_bwd" defaults.
func TestTransformUsesConfiguredNameSuffixes(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	binaryFunc(mod, "sub", wasmir.BinSubF64)

	d := New()
	d.Config.Transform.NameSuffixFwd = "_forward"
	d.Config.Transform.NameSuffixBwd = "_backward"
	results, err := d.Transform(mod, []string{"sub"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if results[0].FwdName != "sub_forward" || results[0].BwdName != "sub_backward" {
		t.Errorf("got FwdName=%q BwdName=%q, want sub_forward/sub_backward", results[0].FwdName, results[0].BwdName)
	}
}

func TestTransformSerialAndParallelPlanningAgree(t *testing.T) {
	mod := wasmir.NewModule(fullFeatures())
	binaryFunc(mod, "sub", wasmir.BinSubF64)
	squareFunc(mod)

	serial := New()
	serial.Parallel = false
	results, err := serial.Transform(mod, []string{"sub", "square"})
	if err != nil {
		t.Fatalf("Transform (serial): %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two results, got %d", len(results))
	}

	parallelMod := wasmir.NewModule(fullFeatures())
	binaryFunc(parallelMod, "sub", wasmir.BinSubF64)
	squareFunc(parallelMod)

	parallelResults, err := New().Transform(parallelMod, []string{"sub", "square"})
	if err != nil {
		t.Fatalf("Transform (parallel): %v", err)
	}
	if len(parallelResults) != len(results) {
		t.Fatalf("parallel run returned %d results, serial run %d", len(parallelResults), len(results))
	}
	for i := range results {
		if results[i] != parallelResults[i] {
			t.Errorf("result %d differs: serial %+v, parallel %+v", i, results[i], parallelResults[i])
		}
	}
	if len(parallelMod.Funcs) != len(mod.Funcs) || len(parallelMod.Heaps) != len(mod.Heaps) {
		t.Errorf("module shape differs: serial %d funcs/%d heaps, parallel %d funcs/%d heaps",
			len(mod.Funcs), len(mod.Heaps), len(parallelMod.Funcs), len(parallelMod.Heaps))
	}
}
