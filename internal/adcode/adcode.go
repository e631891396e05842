// Package adcode defines the error taxonomy raised by the tape planner and
// the forward/backward generator (spec.md §7). Every error here is fatal
// to the whole transform: unlike this codebase's diagnostic bag used by
// its source-language front end, there is no severity, no accumulation,
// and no recovery — the first error aborts the transformation of the
// whole module.
package adcode

import (
	"fmt"

	"wasmgrad/internal/wasmir"
)

// Code identifies the kind of failure, matching spec.md §7 one-for-one.
type Code uint8

const (
	UnsupportedType Code = iota
	UnsupportedExpression
	UnsupportedConstant
	NonZeroGradientConstant
	TailCall
	InvalidInit
	UnresolvedName
	InternalInvariant
	FeatureRequired
)

func (c Code) String() string {
	switch c {
	case UnsupportedType:
		return "UnsupportedType"
	case UnsupportedExpression:
		return "UnsupportedExpression"
	case UnsupportedConstant:
		return "UnsupportedConstant"
	case NonZeroGradientConstant:
		return "NonZeroGradientConstant"
	case TailCall:
		return "TailCall"
	case InvalidInit:
		return "InvalidInit"
	case UnresolvedName:
		return "UnresolvedName"
	case InternalInvariant:
		return "InternalInvariant"
	case FeatureRequired:
		return "FeatureRequired"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type raised by tapeplan and adgen. It names
// the offending function and, where known, the expression id, per §7's
// "name the offending function and, where possible, the expression id."
type Error struct {
	Code   Code
	Func   string
	Expr   wasmir.ExprID // wasmir.NoExpr when not applicable
	Detail string
}

func (e *Error) Error() string {
	if e.Expr == wasmir.NoExpr {
		return fmt.Sprintf("%s: in function %q: %s", e.Code, e.Func, e.Detail)
	}
	return fmt.Sprintf("%s: in function %q at expr %d: %s", e.Code, e.Func, e.Expr, e.Detail)
}

// Is supports errors.Is comparisons against a bare Code-tagged sentinel,
// so callers can write errors.Is(err, &adcode.Error{Code: adcode.TailCall}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs an *Error for the given function and expression.
func New(code Code, funcName string, expr wasmir.ExprID, detail string) *Error {
	return &Error{Code: code, Func: funcName, Expr: expr, Detail: detail}
}

// NewFunc constructs an *Error not tied to a specific expression.
func NewFunc(code Code, funcName string, detail string) *Error {
	return &Error{Code: code, Func: funcName, Expr: wasmir.NoExpr, Detail: detail}
}
