package adtest

import "math"

// Report is the result of one CheckGradient call: the backward pass's
// analytic gradient alongside a central-difference numeric estimate.
type Report struct {
	Analytic  []float64
	Numeric   []float64
	MaxAbsErr float64
	Pass      bool
}

// CheckGradient drives fwdName/bwdName (an F_fwd/F_bwd pair generated for
// an all-f64-parameter, single-f64-result function) at args, comparing
// F_bwd's analytic gradient against a central-difference estimate of
// F_fwd's primal output — spec.md §8's Testable Property 3 (Adjoint
// correctness), grounded on a different pack repo's
// internal/autodiff/gradient_check_test.go idea of comparing an analytic
// pass to a finite-difference estimate.
//
// The top-level call always seeds F_fwd's incoming parameter gradients
// and F_bwd's incoming parameter-gradient accumulators at zero and its
// result-gradient seed at one, mirroring a standalone top-level
// differentiation (never a nested call, which is the only case that
// would need a non-zero seed).
func CheckGradient(it *Interp, fwdName, bwdName string, args []float64, eps, tol float64) (*Report, error) {
	n := len(args)

	_, _, tape, err := evalForwardAndTape(it, fwdName, args)
	if err != nil {
		return nil, err
	}

	bwdIn := make([]Value, 0, n+2)
	for i := 0; i < n; i++ {
		bwdIn = append(bwdIn, F64Val(0))
	}
	bwdIn = append(bwdIn, F64Val(1))
	bwdIn = append(bwdIn, tape)

	bwdOut, err := it.Call(bwdName, bwdIn)
	if err != nil {
		return nil, err
	}
	grad := make([]float64, n)
	for i := 0; i < n && i < len(bwdOut); i++ {
		grad[i] = bwdOut[i].F64
	}

	numeric := make([]float64, n)
	for i := 0; i < n; i++ {
		plus := append([]float64{}, args...)
		minus := append([]float64{}, args...)
		plus[i] += eps
		minus[i] -= eps
		yPlus, err := evalPrimal(it, fwdName, plus)
		if err != nil {
			return nil, err
		}
		yMinus, err := evalPrimal(it, fwdName, minus)
		if err != nil {
			return nil, err
		}
		numeric[i] = (yPlus - yMinus) / (2 * eps)
	}

	maxErr := 0.0
	for i := range grad {
		if d := math.Abs(grad[i] - numeric[i]); d > maxErr {
			maxErr = d
		}
	}
	return &Report{Analytic: grad, Numeric: numeric, MaxAbsErr: maxErr, Pass: maxErr <= tol}, nil
}

// evalPrimal calls fwdName with zeroed input gradients and returns its
// first primal result.
func evalPrimal(it *Interp, fwdName string, args []float64) (float64, error) {
	y, _, _, err := evalForwardAndTape(it, fwdName, args)
	return y, err
}

// evalForwardAndTape calls fwdName with zeroed input gradients, returning
// its first primal result, the full result slice, and the tape value (the
// slice's last element, returned separately so callers needn't reach into
// the result slice themselves).
func evalForwardAndTape(it *Interp, fwdName string, args []float64) (float64, []Value, Value, error) {
	n := len(args)
	in := make([]Value, 0, 2*n)
	for _, a := range args {
		in = append(in, F64Val(a))
	}
	for i := 0; i < n; i++ {
		in = append(in, F64Val(0))
	}
	out, err := it.Call(fwdName, in)
	if err != nil {
		return 0, nil, Value{}, err
	}
	if len(out) == 0 {
		return 0, nil, Value{}, err
	}
	tape := out[len(out)-1]
	return out[0].F64, out, tape, nil
}
