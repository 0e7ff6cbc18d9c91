// Package anchor partitions mask space around a small set of reference
// masks. Anchor 0 is always the all-kept mask.
package anchor

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/harmonica/pkg/harmonica/basis"
)

// Generate returns n anchors of the given length: the all-kept mask followed
// by n-1 independent Bernoulli(0.5) masks.
func Generate(n, length int, rng *rand.Rand) *mat.Dense {
	if n < 1 {
		panic("anchor: at least one anchor is required")
	}
	data := make([]float64, n*length)
	for i := 0; i < length; i++ {
		data[i] = basis.Kept
	}
	for i := length; i < len(data); i++ {
		if rng.Float64() > .5 {
			data[i] = basis.Kept
		} else {
			data[i] = basis.Dropped
		}
	}
	return mat.NewDense(n, length, data)
}

// Distances returns the L1 distance from row to every anchor.
func Distances(row []float64, anchors mat.Matrix) []float64 {
	n, _ := anchors.Dims()
	out := make([]float64, n)
	a := make([]float64, len(row))
	for j := 0; j < n; j++ {
		mat.Row(a, j, anchors)
		out[j] = floats.Distance(row, a, 1)
	}
	return out
}

// Assign maps every basis row to its nearest anchor by L1 distance, picking
// the lowest index on ties. When limit is non-nil only anchors in limit are
// eligible: candidates are visited by increasing distance (then index) and
// the first allowed one wins.
func Assign(b, anchors mat.Matrix, limit []int) []int {
	rows, cols := b.Dims()
	if _, acols := anchors.Dims(); acols != cols {
		panic("anchor: basis and anchors have different widths")
	}
	if limit != nil && len(limit) == 0 {
		panic("anchor: empty limit set")
	}

	out := make([]int, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, b)
		dist := Distances(row, anchors)
		if limit == nil {
			out[i] = nearest(dist)
		} else {
			out[i] = nearestAllowed(dist, limit)
		}
	}
	return out
}

func nearest(dist []float64) int {
	best, bestDist := 0, math.Inf(1)
	for j, d := range dist {
		if d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

func nearestAllowed(dist []float64, limit []int) int {
	order := make([]int, len(dist))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dist[order[a]] < dist[order[b]]
	})
	for _, j := range order {
		if slices.Contains(limit, j) {
			return j
		}
	}
	panic("anchor: no anchor in limit set")
}

// Used lists the anchors that received at least one row, in order of first
// appearance.
func Used(assign []int) []int {
	var used []int
	seen := make(map[int]struct{})
	for _, a := range assign {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		used = append(used, a)
	}
	return used
}

// Partition groups row indices by assigned anchor.
func Partition(assign []int) map[int][]int {
	out := make(map[int][]int)
	for i, a := range assign {
		out[a] = append(out[a], i)
	}
	return out
}
