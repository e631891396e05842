package adgen

import "wasmgrad/internal/wasmir"

// genCall emits a forward call to the callee's F_fwd (primal args
// followed by zeroed input-gradients, since a nested call never receives
// a real incoming gradient during the forward pass — only the top-level
// function's own parameters do) and, in the backward pass, a call to the
// callee's F_bwd that distributes its returned gradients into this call
// site's operand accumulators (spec.md §4.3 "Call").
func (g *Generator) genCall(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	callee, ok := g.callees[e.Callee]
	if !ok {
		return result{}, g.internalErr(ref, "unresolved callee \""+e.Callee+"\" reached generation")
	}

	argResults := make([]result, len(e.Args))
	fwdArgs := make([]wasmir.ExprID, 0, len(e.Args)+len(callee.GradParamTypes))
	for i, a := range e.Args {
		r, err := g.gen1(a)
		if err != nil {
			return result{}, err
		}
		argResults[i] = r
		fwdArgs = append(fwdArgs, r.fwd)
	}
	for _, gt := range callee.GradParamTypes {
		fwdArgs = append(fwdArgs, g.zeroGradValue(gt))
	}

	fwdResultTypes := append(append(append(wasmir.Tuple{}, callee.ResultTypes...), callee.GradResultTypes...), wasmir.Ref(callee.TapeHeap))
	callID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprCall, Callee: callee.FwdName, Args: fwdArgs, ResultTypes: fwdResultTypes, Type: wasmir.None()})

	resultLocals := make([]int, len(fwdResultTypes))
	for i, t := range fwdResultTypes {
		resultLocals[i] = g.fwd.AddLocal(t)
	}
	multiSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprMultiSet, Value: callID, Locals: resultLocals, Type: wasmir.None()})

	numResults := len(callee.ResultTypes)
	numGradResults := len(callee.GradResultTypes)
	tapeLocal := resultLocals[len(resultLocals)-1]
	tapeField := g.plan.Calls[ref]
	teeStoreID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: g.fwdFields[tapeField], Value: g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: tapeLocal, Type: wasmir.Ref(callee.TapeHeap)}), Type: wasmir.None()})

	children := []wasmir.ExprID{multiSetID, teeStoreID}
	var fwdValueID wasmir.ExprID
	grad := noLocal
	if numResults > 0 {
		fwdValueID = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: resultLocals[0], Type: callee.ResultTypes[0]})
		children = append(children, fwdValueID)
	}
	if numGradResults > 0 {
		grad = resultLocals[numResults]
	}
	blockType := e.Type
	blockID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: children, Type: blockType})

	// backward: accumulate this call site's own result gradient, invoke
	// the callee's F_bwd with zero input seeds, and distribute its
	// returned argument gradients into the operand accumulators.
	bwd := noLocal
	if numGradResults > 0 {
		bwd = g.bwd.AddLocal(callee.GradResultTypes[0])
	}

	dargsLocals := make([]int, len(callee.GradParamTypes))
	for i, t := range callee.GradParamTypes {
		dargsLocals[i] = g.bwd.AddLocal(t)
	}

	bwdArgs := make([]wasmir.ExprID, 0, len(dargsLocals)+numGradResults+1)
	for i, l := range dargsLocals {
		bwdArgs = append(bwdArgs, g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: l, Type: callee.GradParamTypes[i]}))
	}
	if numGradResults > 0 {
		bwdArgs = append(bwdArgs, g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: bwd, Type: callee.GradResultTypes[0]}))
	}
	tapeBwdLocal := g.bwdFields[tapeField]
	bwdArgs = append(bwdArgs, g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: tapeBwdLocal, Type: wasmir.Ref(callee.TapeHeap)}))

	callBwdID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprCall, Callee: callee.BwdName, Args: bwdArgs, ResultTypes: callee.GradParamTypes, Type: wasmir.None()})
	bwdResultLocals := make([]int, len(callee.GradParamTypes))
	for i, t := range callee.GradParamTypes {
		bwdResultLocals[i] = g.bwd.AddLocal(t)
	}
	bwdMultiSetID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprMultiSet, Value: callBwdID, Locals: bwdResultLocals, Type: wasmir.None()})

	stmts := []wasmir.ExprID{bwdMultiSetID}
	for i := range callee.ParamTypes {
		gi := callee.GradParamIndex[i]
		if gi < 0 || argResults[i].bwd == noLocal {
			continue
		}
		getID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: bwdResultLocals[gi], Type: callee.GradParamTypes[gi]})
		if s := g.buildAccumulate(argResults[i].bwd, callee.GradParamTypes[gi], getID); s != wasmir.NoExpr {
			stmts = append(stmts, s)
		}
	}
	g.pushBwd(stmts...)

	return result{fwd: blockID, grad: grad, bwd: bwd}, nil
}

// zeroGradValue emits the zero value of a gradient type t, used to seed a
// nested call's input gradients (spec.md §4.3 "Call": a nested call never
// receives a real incoming gradient, only the top-level function's own
// parameters do). Scalars get a zero constant; a differentiable struct or
// array parameter gets a zero-initialized heap value instead, the same
// "zero of a gradient heap type" idiom genStructNew/genArrayNewDefault use
// for a fresh grad local.
func (g *Generator) zeroGradValue(t wasmir.ValType) wasmir.ExprID {
	switch t.Kind {
	case wasmir.KindF32:
		return g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstF32, Type: t})
	case wasmir.KindRef:
		def := g.heaps.Heap(t.Heap)
		if def.Kind == wasmir.HeapArray {
			zeroLen := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstI32, Type: wasmir.I32()})
			return g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArrayNewDefault, Heap: t.Heap, Size: zeroLen, Type: t})
		}
		return g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprStructNew, Heap: t.Heap, Type: t})
	default:
		return g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstF64, Type: t})
	}
}
