package surrogate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/harmonica/pkg/harmonica/anchor"
)

// Table holds one fitted model per anchor. Rows of anchors that were never
// fitted stay zero and must not be used for prediction.
type Table struct {
	coef      *mat.Dense
	intercept []float64
	fitted    []bool
}

// Summary describes one anchor's fit.
type Summary struct {
	Anchor     int
	Rows       int
	NonZero    int
	Iterations int
	Converged  bool
}

// NewTable allocates an n×dim parameter table.
func NewTable(n, dim int) *Table {
	return &Table{
		coef:      mat.NewDense(n, dim, nil),
		intercept: make([]float64, n),
		fitted:    make([]bool, n),
	}
}

// Anchors is the number of rows in the table.
func (t *Table) Anchors() int {
	return len(t.intercept)
}

// Dim is the feature width.
func (t *Table) Dim() int {
	_, c := t.coef.Dims()
	return c
}

// FitPartitions fits one model per anchor in used on the rows of X routed
// to it. Any solver error aborts the whole table.
func (t *Table) FitPartitions(solver Solver, X mat.Matrix, y []float64, assign, used []int) ([]Summary, error) {
	rows, cols := X.Dims()
	if cols != t.Dim() {
		return nil, fmt.Errorf("surrogate: features have %d columns, table expects %d", cols, t.Dim())
	}
	if len(y) != rows || len(assign) != rows {
		return nil, fmt.Errorf("surrogate: %d rows, %d targets, %d assignments", rows, len(y), len(assign))
	}

	parts := anchor.Partition(assign)
	summaries := make([]Summary, 0, len(used))
	for _, a := range used {
		idx := parts[a]
		if a < 0 || a >= t.Anchors() || len(idx) == 0 {
			return nil, fmt.Errorf("surrogate: anchor %d has no rows", a)
		}

		sub := mat.NewDense(len(idx), cols, nil)
		target := make([]float64, len(idx))
		for i, r := range idx {
			sub.SetRow(i, mat.Row(nil, r, X))
			target[i] = y[r]
		}

		fit, err := solver.Fit(sub, target)
		if err != nil {
			return nil, fmt.Errorf("surrogate: fit anchor %d: %w", a, err)
		}
		t.coef.SetRow(a, fit.Coef)
		t.intercept[a] = fit.Intercept
		t.fitted[a] = true

		summaries = append(summaries, Summary{
			Anchor:     a,
			Rows:       len(idx),
			NonZero:    fit.NonZero(),
			Iterations: fit.Iterations,
			Converged:  fit.Converged,
		})
	}
	return summaries, nil
}

// Fitted reports whether anchor a has a model.
func (t *Table) Fitted(a int) bool {
	return a >= 0 && a < len(t.fitted) && t.fitted[a]
}

// Coef returns a copy of anchor a's coefficients.
func (t *Table) Coef(a int) []float64 {
	return mat.Row(nil, a, t.coef)
}

// Intercept returns anchor a's intercept.
func (t *Table) Intercept(a int) float64 {
	return t.intercept[a]
}

// Predict evaluates anchor a's model on one expanded feature row.
func (t *Table) Predict(features []float64, a int) float64 {
	if !t.Fitted(a) {
		panic(fmt.Sprintf("surrogate: anchor %d was never fitted", a))
	}
	return floats.Dot(t.coef.RawRowView(a), features) + t.intercept[a]
}

// PredictAll evaluates every row of X with its assigned anchor.
func (t *Table) PredictAll(X mat.Matrix, assign []int) []float64 {
	rows, cols := X.Dims()
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out[i] = t.Predict(row, assign[i])
	}
	return out
}
