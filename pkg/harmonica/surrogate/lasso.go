// Package surrogate fits and evaluates the per-anchor sparse polynomial
// models.
package surrogate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

// Solver fits a linear model to the rows of X.
type Solver interface {
	Fit(X mat.Matrix, y []float64) (Fit, error)
}

// Fit is a fitted linear model.
type Fit struct {
	Coef       []float64
	Intercept  float64
	Iterations int
	Converged  bool
}

// NonZero counts the non-zero coefficients.
func (f Fit) NonZero() int {
	n := 0
	for _, c := range f.Coef {
		if c != 0 {
			n++
		}
	}
	return n
}

// Lasso minimises (1/2n)·‖y − Xw − b‖² + Alpha·‖w‖₁ by cyclic coordinate
// descent. With FitIntercept the data is centred first and b is recovered
// afterwards, so a constant column in X always gets a zero coefficient.
type Lasso struct {
	Alpha        float64
	MaxIter      int
	Tol          float64
	FitIntercept bool
}

// DefaultLasso matches the settings used for the surrogates: alpha 0.001,
// 1000 sweeps, tolerance 1e-4, fitted intercept.
func DefaultLasso() Lasso {
	return Lasso{Alpha: 0.001, MaxIter: 1000, Tol: 1e-4, FitIntercept: true}
}

// Fit runs coordinate descent until the duality gap falls below
// Tol·‖y‖² or MaxIter sweeps have been made. Not converging is reported in
// the result, not as an error.
func (l Lasso) Fit(X mat.Matrix, y []float64) (Fit, error) {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return Fit{}, fmt.Errorf("lasso: empty design matrix: %w", internalerr.ErrInvalidInput)
	}
	if len(y) != n {
		return Fit{}, fmt.Errorf("lasso: %d targets for %d rows: %w", len(y), n, internalerr.ErrInvalidInput)
	}
	if l.Alpha < 0 {
		return Fit{}, fmt.Errorf("lasso: negative alpha %g: %w", l.Alpha, internalerr.ErrInvalidInput)
	}

	cols := make([][]float64, p)
	xMean := make([]float64, p)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
		if !finite(cols[j]) {
			return Fit{}, fmt.Errorf("lasso: column %d is not finite: %w", j, internalerr.ErrNumerical)
		}
	}
	target := append([]float64(nil), y...)
	if !finite(target) {
		return Fit{}, fmt.Errorf("lasso: targets are not finite: %w", internalerr.ErrNumerical)
	}

	var yMean float64
	if l.FitIntercept {
		for j, c := range cols {
			xMean[j] = floats.Sum(c) / float64(n)
			floats.AddConst(-xMean[j], c)
		}
		yMean = floats.Sum(target) / float64(n)
		floats.AddConst(-yMean, target)
	}

	norms := make([]float64, p)
	for j, c := range cols {
		norms[j] = floats.Dot(c, c)
	}

	w := make([]float64, p)
	resid := append([]float64(nil), target...)
	nAlpha := l.Alpha * float64(n)
	tol := l.Tol * floats.Dot(target, target)

	fit := Fit{}
	for iter := 1; iter <= l.MaxIter; iter++ {
		fit.Iterations = iter
		var wMax, dwMax float64
		for j, c := range cols {
			if norms[j] == 0 {
				continue
			}
			old := w[j]
			if old != 0 {
				floats.AddScaled(resid, old, c)
			}
			next := softThreshold(floats.Dot(c, resid), nAlpha) / norms[j]
			if next != 0 {
				floats.AddScaled(resid, -next, c)
			}
			w[j] = next
			dwMax = math.Max(dwMax, math.Abs(next-old))
			wMax = math.Max(wMax, math.Abs(next))
		}

		if wMax == 0 || dwMax/wMax < l.Tol || iter == l.MaxIter {
			if dualityGap(cols, resid, target, w, nAlpha) <= tol {
				fit.Converged = true
				break
			}
		}
	}

	if !finite(w) {
		return Fit{}, fmt.Errorf("lasso: coefficients diverged: %w", internalerr.ErrNumerical)
	}
	fit.Coef = w
	fit.Intercept = yMean
	if l.FitIntercept {
		fit.Intercept = yMean - floats.Dot(xMean, w)
	}
	return fit, nil
}

func dualityGap(cols [][]float64, resid, target, w []float64, nAlpha float64) float64 {
	var dualNorm float64
	for _, c := range cols {
		dualNorm = math.Max(dualNorm, math.Abs(floats.Dot(c, resid)))
	}
	rNorm2 := floats.Dot(resid, resid)

	scale := 1.0
	gap := rNorm2
	if dualNorm > nAlpha {
		scale = nAlpha / dualNorm
		gap = 0.5 * (rNorm2 + rNorm2*scale*scale)
	}
	return gap + nAlpha*floats.Norm(w, 1) - scale*floats.Dot(resid, target)
}

func softThreshold(x, lambda float64) float64 {
	switch {
	case x > lambda:
		return x - lambda
	case x < -lambda:
		return x + lambda
	default:
		return 0
	}
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
