package tapeplan

import "wasmgrad/internal/wasmir"

// ValueKind tags the symbolic abstraction the planner assigns to a
// subexpression while walking a function body (spec.md §4.2).
type ValueKind uint8

const (
	// Param is the unevaluated initial binding of a local — either a
	// true function parameter or a not-yet-set additional local; the
	// planner treats both identically until the first local.get lifts
	// the binding to an Expression.
	Param ValueKind = iota
	// Void is the value of a statement position (local.set, array.set).
	Void
	// Const is a literal numeric value known at plan time.
	Const
	// Expression is the value produced by evaluating the given node.
	Expression
)

// Value is the planner's abstraction of a subexpression's result.
type Value struct {
	Kind     ValueKind
	ConstVal float64
	Expr     wasmir.ExprID
}

func paramValue() Value { return Value{Kind: Param} }
func voidValue() Value  { return Value{Kind: Void} }

func constValue(v float64) Value        { return Value{Kind: Const, ConstVal: v} }
func exprValue(ref wasmir.ExprID) Value { return Value{Kind: Expression, Expr: ref} }

func (v Value) isNonZeroConst() bool { return v.Kind == Const && v.ConstVal != 0 }
