// Package adgen implements the Forward/Backward Generator (spec.md §4.3):
// per-function emission of F_fwd and F_bwd from the original body and its
// tapeplan.TapePlan.
package adgen

import (
	"wasmgrad/internal/adcode"
	"wasmgrad/internal/gradtype"
	"wasmgrad/internal/tapeplan"
	"wasmgrad/internal/wasmir"
)

// noLocal marks a gradient slot that carries no information (unit
// gradient): emission simply skips any statement that would read or
// write it, since spec.md §4.3's edge cases forbid materializing
// zero-arity values.
const noLocal = -1

// HeapLookup is the subset of *wasmir.Module the generator needs to
// resolve an array operand's element type. Kept as an interface so tests
// can stub it the way tapeplan.Resolver does.
type HeapLookup interface {
	Heap(id wasmir.HeapID) wasmir.HeapDef
}

// Callee is what the generator needs to know about a call target to emit
// both the forward call (with zeroed input gradients) and the backward
// call (with accumulated result gradients).
type Callee struct {
	FwdName         string
	BwdName         string
	TapeHeap        wasmir.HeapID
	ParamTypes      wasmir.Tuple
	ResultTypes     wasmir.Tuple
	GradParamTypes  wasmir.Tuple
	GradResultTypes wasmir.Tuple
	// GradParamIndex has one entry per ParamTypes element: the index of
	// that parameter's gradient within GradParamTypes, or -1 if the
	// parameter's gradient is unit and was dropped by MapTuple.
	GradParamIndex []int
}

// varGen is spec.md §3's per-local Var, as tracked during generation.
type varGen struct {
	typ     wasmir.ValType
	gradTyp wasmir.ValType

	fwd  int // local index of the primal copy, in F_fwd
	grad int // local index of the in-forward gradient copy, in F_fwd (noLocal if unit)
	bwd  int // CURRENT local index of the accumulating gradient, in F_bwd (noLocal if unit)
}

// result is what emitting one expression returns: where to find its
// primal value in the forward function, its in-forward gradient local,
// and its backward accumulator local.
type result struct {
	fwd  wasmir.ExprID
	grad int
	bwd  int
}

// Generator holds the per-function state threaded through emission:
// growing local vectors for both new functions and the append-only
// backward statement buffer that gets reversed once at the end.
type Generator struct {
	orig    *wasmir.Func
	plan    *tapeplan.TapePlan
	mapper  *gradtype.Mapper
	heaps   HeapLookup
	callees map[string]Callee

	tapeHeap wasmir.HeapID

	fwd *wasmir.Func
	bwd *wasmir.Func

	vars []varGen

	fwdFields []int // fwd local receiving each tape field's value (tee target)
	bwdFields []int // bwd local holding each tape field reloaded at entry

	fwdZeroF64 int // uninitialized f64 local; placeholder grad for scalar consts

	// gradResultBwd[i] is the bwd-func parameter local holding the i-th
	// incoming result-gradient seed.
	gradResultBwd []int

	bwdStmts []wasmir.ExprID // accumulated in forward order, reversed once at assembly
}

// Generate builds F_fwd and F_bwd for orig per plan. tapeHeap is orig's
// own tape struct heap type, already constructed by addriver.Driver.
// callees maps every function orig calls to the information needed to
// emit forward/backward call sites.
func Generate(
	b *wasmir.Builder,
	heaps HeapLookup,
	orig *wasmir.Func,
	plan *tapeplan.TapePlan,
	mapper *gradtype.Mapper,
	tapeHeap wasmir.HeapID,
	fwdName, bwdName string,
	callees map[string]Callee,
) (fwd, bwdFn *wasmir.Func, err error) {
	gradParams, err := mapper.MapTuple(orig.Params)
	if err != nil {
		return nil, nil, err
	}
	gradResults, err := mapper.MapTuple(orig.Results)
	if err != nil {
		return nil, nil, err
	}

	fwdParams := append(append(wasmir.Tuple{}, orig.Params...), gradParams...)
	fwdResults := append(append(append(wasmir.Tuple{}, orig.Results...), gradResults...), wasmir.Ref(tapeHeap))

	bwdParams := append(append(append(wasmir.Tuple{}, gradParams...), gradResults...), wasmir.Ref(tapeHeap))
	bwdResults := gradParams

	g := &Generator{
		orig:     orig,
		plan:     plan,
		mapper:   mapper,
		heaps:    heaps,
		callees:  callees,
		tapeHeap: tapeHeap,
		fwd:      b.NewFunc(fwdName, fwdParams, fwdResults),
		bwd:      b.NewFunc(bwdName, bwdParams, bwdResults),
	}
	g.fwd.Exported = orig.Exported
	g.bwd.Exported = orig.Exported

	g.gradResultBwd = make([]int, len(gradResults))
	for i := range gradResults {
		g.gradResultBwd[i] = len(gradParams) + i
	}

	if err := g.allocLocals(orig, gradParams); err != nil {
		return nil, nil, err
	}
	g.allocFields(tapeHeap)

	out, err := g.genTopLevel(orig.Body)
	if err != nil {
		return nil, nil, err
	}

	if err := g.assembleForward(out); err != nil {
		return nil, nil, err
	}
	if err := g.assembleBackward(out, gradResults); err != nil {
		return nil, nil, err
	}

	return g.fwd, g.bwd, nil
}

// allocLocals allocates F_fwd's params-then-gradients, F_bwd's
// grads-then-result-grads-then-tape-param, one varGen per original
// local, and the scalar-gradient sentinel.
//
// A differentiable original parameter's F_bwd accumulator is the bwd
// function's own corresponding incoming gradient-parameter local, not a
// fresh one: F_bwd's contract (spec.md §6) is that its leading
// grad-params are seeds to accumulate onto, so reusing that local as the
// accumulator makes "accumulate into it" and "return its final value"
// the same local with no extra copy. A non-parameter local has no such
// external seed, so it gets a fresh (implicitly zero) local instead.
func (g *Generator) allocLocals(orig *wasmir.Func, gradParams wasmir.Tuple) error {
	g.vars = make([]varGen, len(orig.Locals))
	gradParamBase := len(orig.Params)
	gradParamIdx := 0
	for i, t := range orig.Locals {
		gt, err := g.mapper.Map(t)
		if err != nil {
			return err
		}
		v := varGen{typ: t, gradTyp: gt}
		if i < len(orig.Params) {
			v.fwd = i
		} else {
			v.fwd = g.fwd.AddLocal(t)
		}

		switch {
		case gt.Kind == wasmir.KindNone:
			v.grad = noLocal
			v.bwd = noLocal
		case i < len(orig.Params):
			v.grad = gradParamBase + gradParamIdx
			v.bwd = gradParamIdx // F_bwd's own leading grad-param local
			gradParamIdx++
		default:
			v.grad = g.fwd.AddLocal(gt)
			v.bwd = g.bwd.AddLocal(gt)
		}
		g.vars[i] = v
	}
	g.fwdZeroF64 = g.fwd.AddLocal(wasmir.F64())
	return nil
}

// allocFields allocates the per-tape-field locals: fwdFields[i] receives
// the value teed into field i during the forward pass; bwdFields[i]
// holds field i reloaded from the tape struct at the start of F_bwd.
func (g *Generator) allocFields(tapeHeap wasmir.HeapID) {
	n := len(g.plan.Fields)
	g.fwdFields = make([]int, n)
	g.bwdFields = make([]int, n)
	for i, fp := range g.plan.Fields {
		g.fwdFields[i] = g.fwd.AddLocal(fp.Type)
		g.bwdFields[i] = g.bwd.AddLocal(fp.Type)
	}
}

func (g *Generator) internalErr(ref wasmir.ExprID, detail string) error {
	return adcode.New(adcode.InternalInvariant, g.orig.Name, ref, detail)
}
