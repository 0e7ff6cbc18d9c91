package anchor

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/harmonica/pkg/harmonica/basis"
)

func TestGenerate(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	a := Generate(4, 10, rng)
	rows, cols := a.Dims()
	require.Equal(t, 4, rows)
	require.Equal(t, 10, cols)

	for _, v := range mat.Row(nil, 0, a) {
		assert.Equal(t, basis.Kept, v)
	}
	for i := 1; i < rows; i++ {
		for _, v := range mat.Row(nil, i, a) {
			assert.Contains(t, []float64{basis.Kept, basis.Dropped}, v)
		}
	}
	assert.Panics(t, func() { Generate(0, 10, rng) })
}

func TestAssignNearest(t *testing.T) {
	anchors := mat.NewDense(3, 4, []float64{
		1, 1, 1, 1,
		-1, -1, -1, -1,
		1, 1, -1, -1,
	})
	b := mat.NewDense(3, 4, []float64{
		1, 1, 1, -1,
		-1, -1, -1, 1,
		1, 1, -1, -1,
	})
	assert.Equal(t, []int{0, 1, 2}, Assign(b, anchors, nil))
}

func TestAssignTieBreaksToLowestIndex(t *testing.T) {
	anchors := mat.NewDense(3, 4, []float64{
		1, 1, 1, 1,
		-1, -1, -1, -1,
		1, 1, -1, -1,
	})
	// Distance 2 to anchors 0 and 2, 6 to anchor 1.
	b := mat.NewDense(1, 4, []float64{1, 1, 1, -1})
	dist := Distances(mat.Row(nil, 0, b), anchors)
	require.Equal(t, dist[0], dist[2])

	assert.Equal(t, []int{0}, Assign(b, anchors, nil))
}

func TestAssignIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	anchors := Generate(5, 12, rng)
	g := basis.NewGenerator(basis.Policy{SamplesMin: 200, Anchors: 5}, rng)
	b := g.Random(12, 200, 0, nil)

	first := Assign(b, anchors, nil)
	second := Assign(b, anchors, nil)
	assert.Equal(t, first, second)
	for _, a := range first {
		assert.GreaterOrEqual(t, a, 0)
		assert.Less(t, a, 5)
	}
}

func TestAssignWithLimit(t *testing.T) {
	anchors := mat.NewDense(3, 4, []float64{
		1, 1, 1, 1,
		-1, -1, -1, -1,
		1, 1, -1, -1,
	})
	// Anchor 1 at distance 0, anchor 2 at 4, anchor 0 at 8.
	b := mat.NewDense(1, 4, []float64{-1, -1, -1, -1})

	assert.Equal(t, []int{1}, Assign(b, anchors, nil))
	assert.Equal(t, []int{2}, Assign(b, anchors, []int{0, 2}))
	assert.Equal(t, []int{0}, Assign(b, anchors, []int{0}))
}

func TestAssignLimitTieBreak(t *testing.T) {
	anchors := mat.NewDense(3, 2, []float64{
		1, 1,
		-1, -1,
		-1, -1,
	})
	b := mat.NewDense(1, 2, []float64{-1, -1})
	assert.Equal(t, []int{1}, Assign(b, anchors, []int{2, 1}))
	assert.Equal(t, []int{2}, Assign(b, anchors, []int{2, 0}))
}

func TestAssignPanics(t *testing.T) {
	anchors := mat.NewDense(1, 2, []float64{1, 1})
	assert.Panics(t, func() { Assign(mat.NewDense(1, 3, nil), anchors, nil) })
	assert.Panics(t, func() { Assign(mat.NewDense(1, 2, nil), anchors, []int{}) })
	assert.Panics(t, func() { Assign(mat.NewDense(1, 2, nil), anchors, []int{5}) })
}

func TestUsedAndPartition(t *testing.T) {
	assign := []int{2, 0, 2, 2, 0}
	assert.Equal(t, []int{2, 0}, Used(assign))
	assert.Equal(t, map[int][]int{0: {1, 4}, 2: {0, 2, 3}}, Partition(assign))
}
