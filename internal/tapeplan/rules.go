package tapeplan

import (
	"wasmgrad/internal/adcode"
	"wasmgrad/internal/gradtype"
	"wasmgrad/internal/wasmir"
)

// planSeq plans a sequence of statements; the value of the sequence is
// the value of its last statement, or Void if empty (spec.md §4.2
// "Block").
func (p *planner) planSeq(ids []wasmir.ExprID) (Value, error) {
	v := voidValue()
	for _, id := range ids {
		var err error
		v, err = p.plan1(id)
		if err != nil {
			return Value{}, err
		}
	}
	return v, nil
}

// plan1 plans a single expression node, dispatching on kind exactly per
// the rules tabulated in spec.md §4.2.
func (p *planner) plan1(ref wasmir.ExprID) (Value, error) {
	if ref == wasmir.NoExpr {
		return voidValue(), nil
	}
	e := p.f.Expr(ref)

	switch e.Kind {
	case wasmir.ExprBlock:
		return p.planSeq(e.Children)

	case wasmir.ExprConstF32:
		return constValue(float64(e.F32)), nil
	case wasmir.ExprConstF64:
		return constValue(e.F64), nil
	case wasmir.ExprConstI32:
		return constValue(float64(e.I32)), nil
	case wasmir.ExprConstI64:
		return constValue(float64(e.I64)), nil

	case wasmir.ExprLocalGet:
		return p.planLocalGet(ref, e)

	case wasmir.ExprLocalSet:
		rhs, err := p.plan1(e.Value)
		if err != nil {
			return Value{}, err
		}
		p.vars[e.Local] = rhs
		return voidValue(), nil

	case wasmir.ExprLocalTee:
		rhs, err := p.plan1(e.Value)
		if err != nil {
			return Value{}, err
		}
		p.vars[e.Local] = rhs
		return rhs, nil

	case wasmir.ExprBinary:
		return p.planBinary(ref, e)

	case wasmir.ExprCall:
		return p.planCall(ref, e)

	case wasmir.ExprReturnCall:
		return Value{}, adcode.New(adcode.TailCall, p.f.Name, ref, "return_call is not differentiable")

	case wasmir.ExprStructNew:
		return p.planStructNew(ref, e)

	case wasmir.ExprArrayNewDefault:
		return p.planArrayNewDefault(ref, e)

	case wasmir.ExprArrayGet:
		return p.planArrayGet(ref, e)

	case wasmir.ExprArraySet:
		return p.planArraySet(ref, e)

	case wasmir.ExprArrayLen:
		return p.planArrayLen(ref, e)

	case wasmir.ExprTupleMake:
		for _, c := range e.Children {
			if _, err := p.plan1(c); err != nil {
				return Value{}, err
			}
		}
		return exprValue(ref), nil

	default:
		return Value{}, adcode.New(adcode.UnsupportedExpression, p.f.Name, ref, e.Kind.String())
	}
}

func (p *planner) planLocalGet(ref wasmir.ExprID, e *wasmir.Expr) (Value, error) {
	v := p.vars[e.Local]
	if v.Kind == Param {
		// First read lifts the binding to the value produced by this
		// get; subsequent reads see the same Expression.
		v = exprValue(ref)
		p.vars[e.Local] = v
	}
	return v, nil
}

func (p *planner) planBinary(ref wasmir.ExprID, e *wasmir.Expr) (Value, error) {
	switch e.Op {
	case wasmir.BinAddF32, wasmir.BinAddF64, wasmir.BinSubF32, wasmir.BinSubF64:
		if _, err := p.plan1(e.Left); err != nil {
			return Value{}, err
		}
		if _, err := p.plan1(e.Right); err != nil {
			return Value{}, err
		}
		return exprValue(ref), nil

	case wasmir.BinMulF32, wasmir.BinMulF64:
		if err := p.save(e.Left); err != nil {
			return Value{}, err
		}
		if err := p.save(e.Right); err != nil {
			return Value{}, err
		}
		return exprValue(ref), nil

	case wasmir.BinDivF32, wasmir.BinDivF64:
		if _, err := p.plan1(e.Left); err != nil {
			return Value{}, err
		}
		if err := p.save(e.Right); err != nil {
			return Value{}, err
		}
		// The quotient itself is needed by the reverse rule
		// ∂y = ∂z·(-x/y²) = -∂x·z/y.
		if err := p.mark(ref, exprValue(ref)); err != nil {
			return Value{}, err
		}
		return exprValue(ref), nil

	default:
		return Value{}, adcode.New(adcode.UnsupportedExpression, p.f.Name, ref, "binary op on non-float operands")
	}
}

func (p *planner) planCall(ref wasmir.ExprID, e *wasmir.Expr) (Value, error) {
	if _, ok := p.mod.LookupFunc(e.Callee); !ok {
		return Value{}, adcode.New(adcode.UnresolvedName, p.f.Name, ref, "call target \""+e.Callee+"\" not found in module")
	}
	for _, a := range e.Args {
		if _, err := p.plan1(a); err != nil {
			return Value{}, err
		}
	}
	field := p.allocField(FieldCall, ref, wasmir.ValType{}, e.Callee)
	p.plan.Calls[ref] = field
	return exprValue(ref), nil
}

func (p *planner) planStructNew(ref wasmir.ExprID, e *wasmir.Expr) (Value, error) {
	if len(e.Args) != 0 {
		return Value{}, adcode.New(adcode.InvalidInit, p.f.Name, ref, "struct.new with operands is unsupported")
	}
	return exprValue(ref), nil
}

func (p *planner) planArrayNewDefault(ref wasmir.ExprID, e *wasmir.Expr) (Value, error) {
	if e.NonDefaultInit {
		return Value{}, adcode.New(adcode.InvalidInit, p.f.Name, ref, "array.new_default with a non-default initializer is unsupported")
	}
	if _, err := p.plan1(e.Size); err != nil {
		return Value{}, err
	}
	return exprValue(ref), nil
}

func (p *planner) planArrayGet(ref wasmir.ExprID, e *wasmir.Expr) (Value, error) {
	arrVal, err := p.plan1(e.Array)
	if err != nil {
		return Value{}, err
	}
	elem, err := p.arrayElem(ref, e.Array)
	if err != nil {
		return Value{}, err
	}
	if gradtype.BecomesMutable(elem) {
		if err := p.markGrad(e.Array, arrVal); err != nil {
			return Value{}, err
		}
		if err := p.save(e.Index); err != nil {
			return Value{}, err
		}
	} else {
		if _, err := p.plan1(e.Index); err != nil {
			return Value{}, err
		}
	}
	return exprValue(ref), nil
}

func (p *planner) planArraySet(ref wasmir.ExprID, e *wasmir.Expr) (Value, error) {
	arrVal, err := p.plan1(e.Array)
	if err != nil {
		return Value{}, err
	}
	if err := p.save(e.Index); err != nil {
		return Value{}, err
	}
	valVal, err := p.plan1(e.Value)
	if err != nil {
		return Value{}, err
	}

	elem, err := p.arrayElem(ref, e.Array)
	if err != nil {
		return Value{}, err
	}
	if !gradtype.IsUnit(elem) {
		if err := p.markGrad(e.Array, arrVal); err != nil {
			return Value{}, err
		}
		if err := p.markGrad(e.Value, valVal); err != nil {
			return Value{}, err
		}
		gt, err := p.mapper.Map(elem)
		if err != nil {
			return Value{}, err
		}
		field := p.allocField(FieldSet, ref, gt, "")
		p.plan.Sets[ref] = field
	}
	return voidValue(), nil
}

func (p *planner) planArrayLen(ref wasmir.ExprID, e *wasmir.Expr) (Value, error) {
	if _, err := p.plan1(e.Array); err != nil {
		return Value{}, err
	}
	return exprValue(ref), nil
}

// arrayElem resolves the element type of the array produced by arrayRef.
func (p *planner) arrayElem(ref, arrayRef wasmir.ExprID) (wasmir.ValType, error) {
	arrType := p.f.Expr(arrayRef).Type
	if !arrType.IsRef() {
		return wasmir.ValType{}, adcode.New(adcode.UnsupportedType, p.f.Name, ref, "array operand is not a reference type")
	}
	def := p.mod.Heap(arrType.Heap)
	if def.Kind != wasmir.HeapArray {
		return wasmir.ValType{}, adcode.New(adcode.UnsupportedType, p.f.Name, ref, "array operand does not reference an array heap type")
	}
	return def.Elem, nil
}
