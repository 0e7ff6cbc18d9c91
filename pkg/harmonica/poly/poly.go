// Package poly lifts ±1 masks into interaction features.
package poly

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"
)

// Expander maps a mask of length L to the constant 1 followed by every
// product of k distinct coordinates, for k = 1..Degree. Terms are ordered by
// k and then lexicographically, and the order never changes for a given
// (L, Degree), so coefficient vectors can be reused across calls.
type Expander struct {
	length int
	degree int
	terms  [][]int
}

// NewExpander builds the term list for masks of the given length.
func NewExpander(length, degree int) *Expander {
	if length <= 0 || degree <= 0 {
		panic(fmt.Sprintf("poly: invalid expander shape L=%d degree=%d", length, degree))
	}
	var terms [][]int
	for k := 1; k <= min(degree, length); k++ {
		terms = append(terms, combin.Combinations(length, k)...)
	}
	return &Expander{length: length, degree: degree, terms: terms}
}

// Dim is the expanded width, including the constant column.
func (e *Expander) Dim() int {
	return 1 + len(e.terms)
}

// Length is the mask length the expander accepts.
func (e *Expander) Length() int {
	return e.length
}

// Degree is the highest interaction order.
func (e *Expander) Degree() int {
	return e.degree
}

// Terms returns the coordinate sets behind columns 1..Dim()-1.
func (e *Expander) Terms() [][]int {
	return e.terms
}

// ExpandRow writes the features of one mask into dst, allocating when dst
// is too short.
func (e *Expander) ExpandRow(row, dst []float64) []float64 {
	if len(row) != e.length {
		panic(fmt.Sprintf("poly: row has %d columns, expander expects %d", len(row), e.length))
	}
	if len(dst) < e.Dim() {
		dst = make([]float64, e.Dim())
	}
	dst = dst[:e.Dim()]
	dst[0] = 1
	for j, term := range e.terms {
		v := 1.0
		for _, c := range term {
			v *= row[c]
		}
		dst[j+1] = v
	}
	return dst
}

// Expand lifts every row of m.
func (e *Expander) Expand(m mat.Matrix) *mat.Dense {
	rows, cols := m.Dims()
	if cols != e.length {
		panic(fmt.Sprintf("poly: matrix has %d columns, expander expects %d", cols, e.length))
	}
	out := mat.NewDense(rows, e.Dim(), nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, m)
		out.SetRow(i, e.ExpandRow(row, nil))
	}
	return out
}
