package adcode

import (
	"errors"
	"testing"

	"wasmgrad/internal/wasmir"
)

func TestErrorMessageIncludesExprWhenKnown(t *testing.T) {
	err := New(TailCall, "f", wasmir.ExprID(3), "return_call is not differentiable")
	got := err.Error()
	want := `TailCall: in function "f" at expr 3: return_call is not differentiable`
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorMessageOmitsExprWhenUnset(t *testing.T) {
	err := NewFunc(FeatureRequired, "", "module is missing required feature(s): gc")
	got := err.Error()
	want := `FeatureRequired: in function "": module is missing required feature(s): gc`
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIsComparesByCodeOnly(t *testing.T) {
	err := New(UnresolvedName, "f", wasmir.ExprID(1), "call target \"g\" not found")
	if !errors.Is(err, &Error{Code: UnresolvedName}) {
		t.Errorf("expected errors.Is to match on Code alone")
	}
	if errors.Is(err, &Error{Code: TailCall}) {
		t.Errorf("expected errors.Is to reject a different Code")
	}
}

func TestCodeStringCoversEveryCode(t *testing.T) {
	codes := []Code{
		UnsupportedType, UnsupportedExpression, UnsupportedConstant,
		NonZeroGradientConstant, TailCall, InvalidInit, UnresolvedName,
		InternalInvariant, FeatureRequired,
	}
	for _, c := range codes {
		if c.String() == "Unknown" {
			t.Errorf("Code %d has no String() case", c)
		}
	}
}
