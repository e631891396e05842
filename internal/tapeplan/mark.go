package tapeplan

import (
	"wasmgrad/internal/adcode"
	"wasmgrad/internal/wasmir"
)

// mark records that the backward pass will need value at ref (spec.md
// §4.2's save/mark discipline).
func (p *planner) mark(ref wasmir.ExprID, v Value) error {
	switch v.Kind {
	case Const:
		p.plan.Loads[ref] = Load{Kind: LoadConst, Const: v.ConstVal}
		return nil
	case Expression:
		field, ok := p.storeField[v.Expr]
		if !ok {
			field = p.allocField(FieldStore, v.Expr, p.f.Expr(v.Expr).Type, "")
			p.storeField[v.Expr] = field
			p.plan.Stores[v.Expr] = field
		}
		p.plan.Loads[ref] = Load{Kind: LoadField, Field: field}
		return nil
	default:
		return adcode.New(adcode.InternalInvariant, p.f.Name, ref, "mark called with a Param/Void value")
	}
}

// save plans ref and marks its resulting value for tape storage.
func (p *planner) save(ref wasmir.ExprID) error {
	v, err := p.plan1(ref)
	if err != nil {
		return err
	}
	return p.mark(ref, v)
}

// markGrad allocates (or reuses) a grad field for the gradient of ref.
// v is ref's already-computed planned Value, used only to defend against
// the "should not occur" case of spec.md §9: a non-zero constant assigned
// a Field-kind gradient load.
func (p *planner) markGrad(ref wasmir.ExprID, v Value) error {
	if v.isNonZeroConst() {
		return adcode.New(adcode.NonZeroGradientConstant, p.f.Name, ref, "gradient requested for a non-zero constant")
	}
	if field, ok := p.gradField[ref]; ok {
		p.plan.GradLoads[ref] = Load{Kind: LoadField, Field: field}
		return nil
	}
	gt, err := p.mapper.Map(p.f.Expr(ref).Type)
	if err != nil {
		return err
	}
	field := p.allocField(FieldGrad, ref, gt, "")
	p.gradField[ref] = field
	p.plan.Grads[ref] = field
	p.plan.GradLoads[ref] = Load{Kind: LoadField, Field: field}
	return nil
}
