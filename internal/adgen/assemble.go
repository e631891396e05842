package adgen

import "wasmgrad/internal/wasmir"

// assembleForward appends F_fwd's final statement: build the tape struct
// from fwdFields and return (primal…, grad…, tape) — or just the bare
// value when there is nothing to tuple (spec.md §4.3's empty-tuple edge
// cases: an original void function still needs its tape returned, so the
// tape-only case is the floor, never a fully empty return).
func (g *Generator) assembleForward(out result) error {
	fieldVals := make([]wasmir.ExprID, len(g.fwdFields))
	for i, local := range g.fwdFields {
		fieldVals[i] = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: local, Type: g.plan.Fields[i].Type})
	}
	tapeNewID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprStructNew, Heap: g.tapeHeap, Args: fieldVals, Type: wasmir.Ref(g.tapeHeap)})

	gradResults, err := g.mapper.MapTuple(g.orig.Results)
	if err != nil {
		return err
	}

	var resultIDs []wasmir.ExprID
	if len(g.orig.Results) > 0 {
		resultIDs = append(resultIDs, out.fwd)
	}
	if len(gradResults) > 0 {
		gradLocal := out.grad
		if gradLocal == noLocal {
			gradLocal = g.fwdZeroF64
		}
		resultIDs = append(resultIDs, g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: gradLocal, Type: gradResults[0]}))
	}
	resultIDs = append(resultIDs, tapeNewID)

	if len(resultIDs) == 1 {
		g.fwd.Body = append(g.fwd.Body, resultIDs[0])
		return nil
	}
	multiID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprTupleMake, Children: resultIDs, Type: wasmir.None()})
	g.fwd.Body = append(g.fwd.Body, multiID)
	return nil
}

// assembleBackward reloads every tape field, seeds the top-level result's
// backward accumulator from F_bwd's own incoming result-gradient
// parameter(s), replays the reversed backward statement list, and
// returns the current value of every differentiable parameter's
// accumulator — which, per allocLocals, already lives in the
// corresponding leading F_bwd parameter local, so the return tuple reads
// those locals directly with no extra copy.
func (g *Generator) assembleBackward(out result, gradResults wasmir.Tuple) error {
	tapeParamLocal := len(g.bwd.Params) - 1

	var body []wasmir.ExprID
	for i, local := range g.bwdFields {
		getID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprStructGet, Struct: g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: tapeParamLocal, Type: wasmir.Ref(g.tapeHeap)}), Field: i, Type: g.plan.Fields[i].Type})
		setID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: local, Value: getID, Type: wasmir.None()})
		body = append(body, setID)
	}

	if len(gradResults) > 0 && out.bwd != noLocal {
		seedID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: g.gradResultBwd[0], Type: gradResults[0]})
		seedSetID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: out.bwd, Value: seedID, Type: wasmir.None()})
		body = append(body, seedSetID)
	}

	reversed := make([]wasmir.ExprID, len(g.bwdStmts))
	for i, s := range g.bwdStmts {
		reversed[len(g.bwdStmts)-1-i] = s
	}
	body = append(body, reversed...)

	gradParams := g.bwd.Results
	resultIDs := make([]wasmir.ExprID, 0, len(gradParams))
	for i, t := range gradParams {
		resultIDs = append(resultIDs, g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: i, Type: t}))
	}

	if len(resultIDs) == 1 {
		body = append(body, resultIDs[0])
	} else if len(resultIDs) > 1 {
		multiID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprTupleMake, Children: resultIDs, Type: wasmir.None()})
		body = append(body, multiID)
	}

	g.bwd.Body = body
	return nil
}
