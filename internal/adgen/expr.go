package adgen

import (
	"wasmgrad/internal/adcode"
	"wasmgrad/internal/gradtype"
	"wasmgrad/internal/tapeplan"
	"wasmgrad/internal/wasmir"
)

// genTopLevel emits the function body's top-level statements directly
// into g.fwd.Body (not wrapped in a nested block, unlike a Block value
// appearing as an operand) and returns the value of the last statement,
// the way tapeplan.planSeq tracks it for planning.
func (g *Generator) genTopLevel(ids []wasmir.ExprID) (result, error) {
	r := result{fwd: wasmir.NoExpr, grad: noLocal, bwd: noLocal}
	var body []wasmir.ExprID
	for _, id := range ids {
		var err error
		r, err = g.gen1(id)
		if err != nil {
			return result{}, err
		}
		if r.fwd != wasmir.NoExpr {
			body = append(body, r.fwd)
		}
	}
	// The function's return value is captured into a dedicated local
	// rather than left as the body's bare trailing expression: assembleForward
	// needs to read that value again (alongside the gradient and the tape),
	// and an expr node may only ever execute once (two parents on one
	// ExprID means a side-effecting last statement — a call, an array.set —
	// would run twice).
	if len(g.orig.Results) > 0 && r.fwd != wasmir.NoExpr && len(body) > 0 {
		outType := r.fwdType(g)
		out := g.fwd.AddLocal(outType)
		setID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: out, Value: r.fwd, Type: wasmir.None()})
		body[len(body)-1] = setID
		r.fwd = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: out, Type: outType})
	}
	g.fwd.Body = body
	return r, nil
}

// genSeq is genTopLevel's counterpart for a Block appearing as a value
// (an operand, not the function body): its children are wrapped into one
// real nested ExprBlock node rather than spliced into the caller's body.
func (g *Generator) genSeq(ids []wasmir.ExprID, typ wasmir.ValType) (result, error) {
	r := result{fwd: wasmir.NoExpr, grad: noLocal, bwd: noLocal}
	var children []wasmir.ExprID
	for _, id := range ids {
		var err error
		r, err = g.gen1(id)
		if err != nil {
			return result{}, err
		}
		if r.fwd != wasmir.NoExpr {
			children = append(children, r.fwd)
		}
	}
	blockID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: children, Type: typ})
	return result{fwd: blockID, grad: r.grad, bwd: r.bwd}, nil
}

// gen1 emits one expression node's forward form (into g.fwd) and its
// backward contribution (pushed to g.bwdStmts), dispatching on kind
// exactly the way tapeplan.plan1 does for the planning pass. A node the
// planner assigned a Store field has its forward value teed into that
// field's local.
func (g *Generator) gen1(ref wasmir.ExprID) (result, error) {
	if ref == wasmir.NoExpr {
		return result{fwd: wasmir.NoExpr, grad: noLocal, bwd: noLocal}, nil
	}
	e := g.orig.Expr(ref)

	r, err := g.genKind(ref, e)
	if err != nil {
		return result{}, err
	}
	if field, ok := g.plan.Stores[ref]; ok {
		r.fwd = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalTee, Local: g.fwdFields[field], Value: r.fwd, Type: g.plan.Fields[field].Type})
	}
	return r, nil
}

func (g *Generator) genKind(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	switch e.Kind {
	case wasmir.ExprBlock:
		return g.genSeq(e.Children, e.Type)

	case wasmir.ExprConstF32, wasmir.ExprConstF64, wasmir.ExprConstI32, wasmir.ExprConstI64:
		return g.genConst(ref, e)

	case wasmir.ExprLocalGet:
		return g.genLocalGet(ref, e)

	case wasmir.ExprLocalSet:
		return g.genLocalSet(ref, e, false)

	case wasmir.ExprLocalTee:
		return g.genLocalSet(ref, e, true)

	case wasmir.ExprBinary:
		return g.genBinary(ref, e)

	case wasmir.ExprCall:
		return g.genCall(ref, e)

	case wasmir.ExprStructNew:
		return g.genStructNew(ref, e)

	case wasmir.ExprArrayNewDefault:
		return g.genArrayNewDefault(ref, e)

	case wasmir.ExprArrayGet:
		return g.genArrayGet(ref, e)

	case wasmir.ExprArraySet:
		return g.genArraySet(ref, e)

	case wasmir.ExprArrayLen:
		return g.genArrayLen(ref, e)

	case wasmir.ExprTupleMake:
		return g.genTupleMake(ref, e)

	default:
		return result{}, g.internalErr(ref, "gen1 reached a kind tapeplan should already have rejected: "+e.Kind.String())
	}
}

func (g *Generator) genConst(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	var fwdID wasmir.ExprID
	switch e.Kind {
	case wasmir.ExprConstF32:
		fwdID = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstF32, F32: e.F32, Type: wasmir.F32()})
	case wasmir.ExprConstF64:
		fwdID = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstF64, F64: e.F64, Type: wasmir.F64()})
	case wasmir.ExprConstI32:
		fwdID = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstI32, I32: e.I32, Type: wasmir.I32()})
	default:
		fwdID = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstI64, I64: e.I64, Type: wasmir.I64()})
	}

	grad, bwd := noLocal, noLocal
	if e.Type.IsFloat() {
		grad = g.fwdZeroF64
	}
	// Only the zero-constant case reaches a gradient load: tapeplan's
	// markGrad rejects any non-zero constant with NonZeroGradientConstant
	// during planning, before generation ever runs.
	if load, ok := g.plan.GradLoads[ref]; ok {
		grad = g.fwdFields[load.Field]
		bwd = g.bwdFields[load.Field]
	}
	return result{fwd: fwdID, grad: grad, bwd: bwd}, nil
}

func (g *Generator) genLocalGet(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	v := g.vars[e.Local]
	fwdID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: v.fwd, Type: v.typ})
	return result{fwd: fwdID, grad: v.grad, bwd: v.bwd}, nil
}

// genLocalSet emits both the primal local.set and (when the local's
// gradient is non-unit) a paired gradient local.set, bundled into one
// forward block. In the backward pass it allocates a fresh accumulator
// for the local going forward and transfers its final value into the
// RHS's own accumulator — a one-time SSA-style handoff at the set/tee
// boundary, distinct from the repeated "+=" accumulation a use site
// performs (spec.md §4.3).
func (g *Generator) genLocalSet(ref wasmir.ExprID, e *wasmir.Expr, tee bool) (result, error) {
	rhs, err := g.gen1(e.Value)
	if err != nil {
		return result{}, err
	}
	v := g.vars[e.Local]

	primalSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: v.fwd, Value: rhs.fwd, Type: wasmir.None()})
	fwdChildren := []wasmir.ExprID{primalSetID}
	if v.grad != noLocal && rhs.grad != noLocal {
		gradGetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: rhs.grad, Type: v.gradTyp})
		gradSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: v.grad, Value: gradGetID, Type: wasmir.None()})
		fwdChildren = append(fwdChildren, gradSetID)
	}

	newBwd := noLocal
	if v.bwd != noLocal {
		newBwd = g.bwd.AddLocal(v.gradTyp)
		stmt := g.buildTransfer(rhs.bwd, newBwd, v.gradTyp)
		g.pushBwd(stmt)
		v.bwd = newBwd
		g.vars[e.Local] = v
	}

	if tee {
		teeGetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: v.fwd, Type: e.Type})
		fwdChildren = append(fwdChildren, teeGetID)
		blockID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: fwdChildren, Type: e.Type})
		return result{fwd: blockID, grad: rhs.grad, bwd: newBwd}, nil
	}

	var fwdID wasmir.ExprID
	if len(fwdChildren) == 1 {
		fwdID = fwdChildren[0]
	} else {
		fwdID = g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: fwdChildren, Type: wasmir.None()})
	}
	return result{fwd: fwdID, grad: noLocal, bwd: noLocal}, nil
}

func (g *Generator) genBinary(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	switch e.Op {
	case wasmir.BinAddF32, wasmir.BinAddF64:
		return g.genAddSub(ref, e, true)
	case wasmir.BinSubF32, wasmir.BinSubF64:
		return g.genAddSub(ref, e, false)
	case wasmir.BinMulF32, wasmir.BinMulF64:
		return g.genMul(ref, e)
	case wasmir.BinDivF32, wasmir.BinDivF64:
		return g.genDiv(ref, e)
	default:
		return result{}, g.internalErr(ref, "binary op on non-float operands")
	}
}

func (g *Generator) genAddSub(ref wasmir.ExprID, e *wasmir.Expr, isAdd bool) (result, error) {
	left, err := g.gen1(e.Left)
	if err != nil {
		return result{}, err
	}
	right, err := g.gen1(e.Right)
	if err != nil {
		return result{}, err
	}

	fwdID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: e.Op, Left: left.fwd, Right: right.fwd, Type: e.Type})
	grad := noLocal
	if e.Type.IsFloat() {
		grad = g.fwdZeroF64
	}
	bwd := g.bwd.AddLocal(e.Type)

	var stmts []wasmir.ExprID
	if s := g.buildAccumulate(left.bwd, e.Type, g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: bwd, Type: e.Type})); s != wasmir.NoExpr {
		stmts = append(stmts, s)
	}
	dz2 := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: bwd, Type: e.Type})
	var s2 wasmir.ExprID
	if isAdd {
		s2 = g.buildAccumulate(right.bwd, e.Type, dz2)
	} else {
		s2 = g.buildAccumulateSub(right.bwd, e.Type, dz2)
	}
	if s2 != wasmir.NoExpr {
		stmts = append(stmts, s2)
	}
	g.pushBwd(stmts...)

	return result{fwd: fwdID, grad: grad, bwd: bwd}, nil
}

func (g *Generator) genMul(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	left, err := g.gen1(e.Left)
	if err != nil {
		return result{}, err
	}
	right, err := g.gen1(e.Right)
	if err != nil {
		return result{}, err
	}

	fwdID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: e.Op, Left: left.fwd, Right: right.fwd, Type: e.Type})
	grad := noLocal
	if e.Type.IsFloat() {
		grad = g.fwdZeroF64
	}
	bwd := g.bwd.AddLocal(e.Type)

	var stmts []wasmir.ExprID
	dz1 := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: bwd, Type: e.Type})
	yTape, err := g.loadPrimal(e.Right, e.Type)
	if err != nil {
		return result{}, err
	}
	dx := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: mulOpFor(e.Type), Left: dz1, Right: yTape, Type: e.Type})
	if s := g.buildAccumulate(left.bwd, e.Type, dx); s != wasmir.NoExpr {
		stmts = append(stmts, s)
	}

	dz2 := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: bwd, Type: e.Type})
	xTape, err := g.loadPrimal(e.Left, e.Type)
	if err != nil {
		return result{}, err
	}
	dy := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: mulOpFor(e.Type), Left: dz2, Right: xTape, Type: e.Type})
	if s := g.buildAccumulate(right.bwd, e.Type, dy); s != wasmir.NoExpr {
		stmts = append(stmts, s)
	}

	g.pushBwd(stmts...)
	return result{fwd: fwdID, grad: grad, bwd: bwd}, nil
}

// genDiv implements ∂x += ∂z/y, ∂y -= (∂z/y)·z, reusing the freshly
// computed ∂z/y (dx1) for both contributions rather than recomputing it
// (spec.md §4.3's div rule).
func (g *Generator) genDiv(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	left, err := g.gen1(e.Left)
	if err != nil {
		return result{}, err
	}
	right, err := g.gen1(e.Right)
	if err != nil {
		return result{}, err
	}

	fwdID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: e.Op, Left: left.fwd, Right: right.fwd, Type: e.Type})
	grad := noLocal
	if e.Type.IsFloat() {
		grad = g.fwdZeroF64
	}
	bwd := g.bwd.AddLocal(e.Type)

	dz := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: bwd, Type: e.Type})
	yTape, err := g.loadPrimal(e.Right, e.Type)
	if err != nil {
		return result{}, err
	}
	dx1Local := g.bwd.AddLocal(e.Type)
	dx1ExprID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: divOpFor(e.Type), Left: dz, Right: yTape, Type: e.Type})
	dx1SetID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: dx1Local, Value: dx1ExprID, Type: wasmir.None()})

	stmts := []wasmir.ExprID{dx1SetID}
	dx1Get1 := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: dx1Local, Type: e.Type})
	if s := g.buildAccumulate(left.bwd, e.Type, dx1Get1); s != wasmir.NoExpr {
		stmts = append(stmts, s)
	}

	zTape, err := g.loadPrimal(ref, e.Type)
	if err != nil {
		return result{}, err
	}
	dx1Get2 := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: dx1Local, Type: e.Type})
	dyTerm := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: mulOpFor(e.Type), Left: dx1Get2, Right: zTape, Type: e.Type})
	if s := g.buildAccumulateSub(right.bwd, e.Type, dyTerm); s != wasmir.NoExpr {
		stmts = append(stmts, s)
	}

	g.pushBwd(stmts...)
	return result{fwd: fwdID, grad: grad, bwd: bwd}, nil
}

func (g *Generator) genStructNew(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	primalNewID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprStructNew, Heap: e.Heap, Type: e.Type})
	primalLocal := g.fwd.AddLocal(e.Type)
	primalSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: primalLocal, Value: primalNewID, Type: wasmir.None()})

	gt, err := g.mapper.Map(e.Type)
	if err != nil {
		return result{}, err
	}
	children := []wasmir.ExprID{primalSetID}
	gradLocal := noLocal
	if gt.Kind != wasmir.KindNone {
		gradHeap, err := g.mapper.MapHeap(e.Heap)
		if err != nil {
			return result{}, err
		}
		gradNewID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprStructNew, Heap: gradHeap, Type: gt})
		gradLocal = g.fwd.AddLocal(gt)
		gradSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: gradLocal, Value: gradNewID, Type: wasmir.None()})
		children = append(children, gradSetID)
	}
	children = append(children, g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: primalLocal, Type: e.Type}))
	blockID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: children, Type: e.Type})

	return result{fwd: blockID, grad: gradLocal, bwd: noLocal}, nil
}

func (g *Generator) genArrayNewDefault(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	size, err := g.gen1(e.Size)
	if err != nil {
		return result{}, err
	}
	sizeLocal := g.fwd.AddLocal(size.fwdType(g))
	sizeSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: sizeLocal, Value: size.fwd, Type: wasmir.None()})

	primalNewID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArrayNewDefault, Heap: e.Heap, Size: g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: sizeLocal, Type: wasmir.I32()}), Type: e.Type})
	primalLocal := g.fwd.AddLocal(e.Type)
	primalSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: primalLocal, Value: primalNewID, Type: wasmir.None()})

	gt, err := g.mapper.Map(e.Type)
	if err != nil {
		return result{}, err
	}
	children := []wasmir.ExprID{sizeSetID, primalSetID}
	gradLocal := noLocal
	if gt.Kind != wasmir.KindNone {
		gradHeap, err := g.mapper.MapHeap(e.Heap)
		if err != nil {
			return result{}, err
		}
		gradNewID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArrayNewDefault, Heap: gradHeap, Size: g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: sizeLocal, Type: wasmir.I32()}), Type: gt})
		gradLocal = g.fwd.AddLocal(gt)
		gradSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: gradLocal, Value: gradNewID, Type: wasmir.None()})
		children = append(children, gradSetID)
	}
	children = append(children, g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: primalLocal, Type: e.Type}))
	blockID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: children, Type: e.Type})

	return result{fwd: blockID, grad: gradLocal, bwd: noLocal}, nil
}

// fwdType recovers a result's forward-pass type by reading it back off
// the arena node it points to; used only where the surrounding context
// (array.new_default's size operand, always i32) doesn't already know it.
func (r result) fwdType(g *Generator) wasmir.ValType {
	return g.fwd.Expr(r.fwd).Type
}

func (g *Generator) genArrayGet(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	arr, err := g.gen1(e.Array)
	if err != nil {
		return result{}, err
	}
	elem, err := g.arrayElem(ref, e.Array)
	if err != nil {
		return result{}, err
	}

	if !gradtype.BecomesMutable(elem) {
		idx, err := g.gen1(e.Index)
		if err != nil {
			return result{}, err
		}
		fwdID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArrayGet, Array: arr.fwd, Index: idx.fwd, Type: e.Type})
		return result{fwd: fwdID, grad: noLocal, bwd: noLocal}, nil
	}

	idx, err := g.gen1(e.Index)
	if err != nil {
		return result{}, err
	}
	fwdID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArrayGet, Array: arr.fwd, Index: idx.fwd, Type: e.Type})

	gl, ok := g.plan.GradLoads[e.Array]
	if !ok {
		return result{}, g.internalErr(ref, "missing grad load for array operand")
	}
	gradArrLocal := g.bwdFields[gl.Field]
	gt, err := g.mapper.Map(elem)
	if err != nil {
		return result{}, err
	}
	idxLoad, err := g.loadPrimal(e.Index, wasmir.I32())
	if err != nil {
		return result{}, err
	}

	bwd := g.bwd.AddLocal(gt)
	dz := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: bwd, Type: gt})

	arrGet1 := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: gradArrLocal, Type: g.bwd.LocalType(gradArrLocal)})
	curID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprArrayGet, Array: arrGet1, Index: idxLoad, Type: gt})
	sumID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: addOpFor(gt), Left: curID, Right: dz, Type: gt})
	idxLoad2, err := g.loadPrimal(e.Index, wasmir.I32())
	if err != nil {
		return result{}, err
	}
	arrGet2 := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: gradArrLocal, Type: g.bwd.LocalType(gradArrLocal)})
	setID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprArraySet, Array: arrGet2, Index: idxLoad2, Value: sumID, Type: wasmir.None()})
	g.pushBwd(setID)

	return result{fwd: fwdID, grad: noLocal, bwd: bwd}, nil
}

func (g *Generator) genArraySet(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	arr, err := g.gen1(e.Array)
	if err != nil {
		return result{}, err
	}
	idx, err := g.gen1(e.Index)
	if err != nil {
		return result{}, err
	}
	val, err := g.gen1(e.Value)
	if err != nil {
		return result{}, err
	}

	elem, err := g.arrayElem(ref, e.Array)
	if err != nil {
		return result{}, err
	}
	if gradtype.IsUnit(elem) {
		fwdID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArraySet, Array: arr.fwd, Index: idx.fwd, Value: val.fwd, Type: wasmir.None()})
		return result{fwd: fwdID, grad: noLocal, bwd: noLocal}, nil
	}

	setFieldIdx, ok := g.plan.Sets[ref]
	if !ok {
		return result{}, g.internalErr(ref, "missing sets field for array.set")
	}
	gt, err := g.mapper.Map(elem)
	if err != nil {
		return result{}, err
	}

	primalSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArraySet, Array: arr.fwd, Index: idx.fwd, Value: val.fwd, Type: wasmir.None()})
	gradArrFwdType := g.fwd.LocalType(arr.grad)
	oldGradGetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArrayGet, Array: g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: arr.grad, Type: gradArrFwdType}), Index: idx.fwd, Type: gt})
	teeStoreID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: g.fwdFields[setFieldIdx], Value: oldGradGetID, Type: wasmir.None()})
	newGradSetID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArraySet, Array: g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: arr.grad, Type: gradArrFwdType}), Index: idx.fwd, Value: g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: val.grad, Type: gt}), Type: wasmir.None()})

	blockID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: []wasmir.ExprID{primalSetID, teeStoreID, newGradSetID}, Type: wasmir.None()})

	glArr, ok := g.plan.GradLoads[e.Array]
	if !ok {
		return result{}, g.internalErr(ref, "missing grad load for array.set array operand")
	}
	gradArrLocal := g.bwdFields[glArr.Field]
	fieldBwdLocal := g.bwdFields[setFieldIdx]
	idxLoad, err := g.loadPrimal(e.Index, wasmir.I32())
	if err != nil {
		return result{}, err
	}

	zeroID := g.emitConstOfType(gt, 0)
	zeroSetID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprArraySet, Array: g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: gradArrLocal, Type: g.bwd.LocalType(gradArrLocal)}), Index: idxLoad, Value: zeroID, Type: wasmir.None()})
	addGet := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: fieldBwdLocal, Type: gt})
	addStmtID := g.buildAccumulate(val.bwd, gt, addGet)

	var stmts []wasmir.ExprID
	stmts = append(stmts, zeroSetID)
	if addStmtID != wasmir.NoExpr {
		stmts = append(stmts, addStmtID)
	}
	g.pushBwd(stmts...)

	return result{fwd: blockID, grad: noLocal, bwd: noLocal}, nil
}

func (g *Generator) genArrayLen(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	arr, err := g.gen1(e.Array)
	if err != nil {
		return result{}, err
	}
	fwdID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprArrayLen, Array: arr.fwd, Type: e.Type})
	return result{fwd: fwdID, grad: noLocal, bwd: noLocal}, nil
}

func (g *Generator) genTupleMake(ref wasmir.ExprID, e *wasmir.Expr) (result, error) {
	children := make([]wasmir.ExprID, 0, len(e.Children))
	var last result
	for _, c := range e.Children {
		r, err := g.gen1(c)
		if err != nil {
			return result{}, err
		}
		children = append(children, r.fwd)
		last = r
	}
	blockID := g.fwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: children, Type: e.Type})
	return result{fwd: blockID, grad: last.grad, bwd: last.bwd}, nil
}

// arrayElem resolves the element type of the array produced by arrayRef,
// mirroring tapeplan.planner.arrayElem exactly (same rejection rules).
func (g *Generator) arrayElem(ref, arrayRef wasmir.ExprID) (wasmir.ValType, error) {
	arrType := g.orig.Expr(arrayRef).Type
	if !arrType.IsRef() {
		return wasmir.ValType{}, adcode.New(adcode.UnsupportedType, g.orig.Name, ref, "array operand is not a reference type")
	}
	def := g.heaps.Heap(arrType.Heap)
	if def.Kind != wasmir.HeapArray {
		return wasmir.ValType{}, adcode.New(adcode.UnsupportedType, g.orig.Name, ref, "array operand does not reference an array heap type")
	}
	return def.Elem, nil
}

// loadPrimal reloads a value the planner recorded in Loads[ref]: either a
// compile-time constant or a field from the tape struct, already
// available in bwdFields.
func (g *Generator) loadPrimal(ref wasmir.ExprID, typ wasmir.ValType) (wasmir.ExprID, error) {
	load, ok := g.plan.Loads[ref]
	if !ok {
		return wasmir.NoExpr, g.internalErr(ref, "no load recorded for a value the backward pass needs")
	}
	switch load.Kind {
	case tapeplan.LoadConst:
		return g.emitConstOfType(typ, load.Const), nil
	case tapeplan.LoadField:
		return g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: g.bwdFields[load.Field], Type: typ}), nil
	default:
		return wasmir.NoExpr, g.internalErr(ref, "unknown load kind")
	}
}

func (g *Generator) emitConstOfType(typ wasmir.ValType, v float64) wasmir.ExprID {
	if typ.Kind == wasmir.KindF32 {
		return g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstF32, F32: float32(v), Type: wasmir.F32()})
	}
	return g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprConstF64, F64: v, Type: wasmir.F64()})
}

func addOpFor(t wasmir.ValType) wasmir.BinOp {
	if t.Kind == wasmir.KindF32 {
		return wasmir.BinAddF32
	}
	return wasmir.BinAddF64
}

func subOpFor(t wasmir.ValType) wasmir.BinOp {
	if t.Kind == wasmir.KindF32 {
		return wasmir.BinSubF32
	}
	return wasmir.BinSubF64
}

func mulOpFor(t wasmir.ValType) wasmir.BinOp {
	if t.Kind == wasmir.KindF32 {
		return wasmir.BinMulF32
	}
	return wasmir.BinMulF64
}

func divOpFor(t wasmir.ValType) wasmir.BinOp {
	if t.Kind == wasmir.KindF32 {
		return wasmir.BinDivF32
	}
	return wasmir.BinDivF64
}

// buildAccumulate returns the statement "dst += value" (dst's current
// value read, added to value, written back), or wasmir.NoExpr if dst
// carries no gradient.
func (g *Generator) buildAccumulate(dst int, typ wasmir.ValType, value wasmir.ExprID) wasmir.ExprID {
	if dst == noLocal {
		return wasmir.NoExpr
	}
	getID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: dst, Type: typ})
	sumID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: addOpFor(typ), Left: getID, Right: value, Type: typ})
	return g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: dst, Value: sumID, Type: wasmir.None()})
}

// buildAccumulateSub returns the statement "dst -= value".
func (g *Generator) buildAccumulateSub(dst int, typ wasmir.ValType, value wasmir.ExprID) wasmir.ExprID {
	if dst == noLocal {
		return wasmir.NoExpr
	}
	getID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: dst, Type: typ})
	diffID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprBinary, Op: subOpFor(typ), Left: getID, Right: value, Type: typ})
	return g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: dst, Value: diffID, Type: wasmir.None()})
}

// buildTransfer returns the statement "dst = get(src)", the one-time
// SSA-style handoff at a local.set/tee boundary (as opposed to the
// repeated "+=" a use site performs).
func (g *Generator) buildTransfer(dst, src int, typ wasmir.ValType) wasmir.ExprID {
	if dst == noLocal || src == noLocal {
		return wasmir.NoExpr
	}
	getID := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalGet, Local: src, Type: typ})
	return g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprLocalSet, Local: dst, Value: getID, Type: wasmir.None()})
}

// pushBwd appends one logical backward statement, in forward source
// order, to g.bwdStmts. Multiple stmts that must keep their relative
// order (e.g. div's temporary followed by its two uses) are bundled into
// one Block so that reversing bwdStmts at assembly time reorders only
// independent statements against each other, never a statement against
// its own internal steps.
func (g *Generator) pushBwd(stmts ...wasmir.ExprID) {
	var filtered []wasmir.ExprID
	for _, s := range stmts {
		if s != wasmir.NoExpr {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return
	case 1:
		g.bwdStmts = append(g.bwdStmts, filtered[0])
	default:
		block := g.bwd.Emit(wasmir.Expr{Kind: wasmir.ExprBlock, Children: filtered, Type: wasmir.None()})
		g.bwdStmts = append(g.bwdStmts, block)
	}
}
