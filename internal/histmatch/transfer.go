package histmatch

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// TransferFunc maps source sample values to reference-matched values. All
// implementations are monotone non-decreasing and safe for concurrent use.
type TransferFunc interface {
	Apply(v float64) float64
}

// Identity leaves values untouched. It stands in wherever matching is
// disabled or a histogram is too degenerate to drive a match.
type Identity struct{}

func (Identity) Apply(v float64) float64 { return v }

// IsIdentity reports whether f is the identity transfer, letting hot loops
// skip the call entirely.
func IsIdentity(f TransferFunc) bool {
	_, ok := f.(Identity)
	return ok
}

// LUT is a direct lookup table for discrete (integer-valued) samples:
// Values[i] is the matched output for input Min+i.
type LUT struct {
	Min    float64
	Values []float64
}

func (l *LUT) Apply(v float64) float64 {
	i := int(v - l.Min + 0.5)
	if i < 0 {
		i = 0
	}
	if i >= len(l.Values) {
		i = len(l.Values) - 1
	}
	return l.Values[i]
}

// Curve interpolates matched quantiles piecewise-linearly, for continuous
// samples. Inputs outside the fitted span clamp to its endpoints.
type Curve struct {
	lo, hi float64
	pl     interp.PiecewiseLinear
}

func (c *Curve) Apply(v float64) float64 {
	if v < c.lo {
		v = c.lo
	}
	if v > c.hi {
		v = c.hi
	}
	return c.pl.Predict(v)
}

// Match builds the transfer that aligns src's cumulative distribution to
// ref's. Both histograms must be compatible. Degenerate inputs on either
// side return the identity.
//
// The mapping walks both CDFs in lockstep: each source bin maps to the
// value of the first reference bin whose cumulative share reaches the
// source bin's. The walk never moves backward, which is what makes every
// returned transfer monotone.
func Match(src, ref *Histogram) (TransferFunc, error) {
	if !compatible(src, ref) {
		return nil, fmt.Errorf("histmatch: incompatible histograms (%d/%d bins, discrete %v/%v)",
			len(src.Counts), len(ref.Counts), src.Discrete, ref.Discrete)
	}
	if src.Degenerate() || ref.Degenerate() {
		return Identity{}, nil
	}

	srcCDF := src.CDF()
	refCDF := ref.CDF()
	mapped := make([]float64, len(srcCDF))
	j := 0
	for i, p := range srcCDF {
		for j < len(refCDF)-1 && refCDF[j] < p {
			j++
		}
		mapped[i] = ref.Value(j)
	}

	if src.Discrete {
		return &LUT{Min: src.Min, Values: mapped}, nil
	}

	// Continuous samples interpolate between bin midpoints instead of
	// snapping to them. Bin midpoints are strictly increasing, which is
	// what PiecewiseLinear.Fit requires; mapped values are non-decreasing.
	xs := make([]float64, len(mapped))
	for i := range xs {
		xs[i] = src.Value(i)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, mapped); err != nil {
		return nil, fmt.Errorf("histmatch: fit transfer: %w", err)
	}
	return &Curve{lo: xs[0], hi: xs[len(xs)-1], pl: pl}, nil
}
