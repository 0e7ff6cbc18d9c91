// Package basis generates ±1 feature-presence masks over the tokens of a
// single sentence. A row is one mask: +1 keeps the token at that position,
// -1 drops it.
package basis

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	Kept    = 1.0
	Dropped = -1.0

	// LocalLimit is the drop limit used for the local, high-overlap sample.
	LocalLimit = 4
)

// maxShift is the largest L for which 2^L fits an int without overflow.
const maxShift = 62

// Policy selects between exhaustive enumeration and sampling.
//
// Exhaustive enumeration materialises every mask and grows as 2^L (or as
// the sum of C(L,k) for k up to the drop limit), so it is reserved for
// sentences short enough that 2^L is below SamplesMin. Longer sentences are
// always sampled.
type Policy struct {
	SamplesMin int
	Anchors    int
}

// SampleCount returns min(SamplesMin, 2^L).
func (p Policy) SampleCount(length int) int {
	return min(p.SamplesMin, pow2(length))
}

// Exhaustive reports whether a sentence of the given length is small enough
// to be enumerated instead of sampled.
func (p Policy) Exhaustive(length int) bool {
	return pow2(length) < p.SamplesMin
}

// LocalThreshold is the sample count that switches the local generator to
// sampling.
func (p Policy) LocalThreshold() int {
	if p.Anchors <= 0 {
		return p.SamplesMin
	}
	return p.SamplesMin / p.Anchors
}

// LocalCount returns the size of the local sample, min(C(L,4), SampleCount/Anchors).
func (p Policy) LocalCount(length int) int {
	anchors := max(p.Anchors, 1)
	share := float64(p.SampleCount(length)) / float64(anchors)
	c := 0.0
	if length >= LocalLimit {
		c = float64(combin.Binomial(length, LocalLimit))
	}
	return int(math.Min(c, share))
}

func pow2(length int) int {
	if length >= maxShift {
		return math.MaxInt
	}
	return 1 << length
}

// Generator draws mask matrices. It is not safe for concurrent use.
type Generator struct {
	policy Policy
	rng    *rand.Rand
}

// NewGenerator returns a generator whose random stream is derived from rng.
func NewGenerator(policy Policy, rng *rand.Rand) *Generator {
	return &Generator{policy: policy, rng: rng}
}

// Policy returns the generator's sampling policy.
func (g *Generator) Policy() Policy {
	return g.policy
}

// Random produces masks of the given length with at most limit dropped
// tokens per row (0 means unlimited). When nSamples equals the policy's
// SamplesMin the masks are sampled, otherwise the whole admissible mask set
// is enumerated. Non-nil anchors are prepended so each anchor is seen at
// least once.
func (g *Generator) Random(length, nSamples, limit int, anchors mat.Matrix) *mat.Dense {
	limit = clampLimit(length, limit)

	var m *mat.Dense
	switch {
	case limit == 0 && nSamples == g.policy.SamplesMin:
		m = g.bernoulli(nSamples, length)
	case limit == 0:
		m = Enumerate(length)
	case nSamples == g.policy.SamplesMin:
		m = g.sampleDrops(length, nSamples, limit)
	default:
		m = EnumerateLimited(length, limit)
	}

	if anchors != nil {
		return Stack(anchors, m)
	}
	return m
}

// Local covers the high-overlap neighbourhood of the full sentence: masks
// with at most LocalLimit drops, sampled when nSamples equals the policy's
// local threshold and enumerated otherwise.
func (g *Generator) Local(length, nSamples int) *mat.Dense {
	limit := clampLimit(length, LocalLimit)
	if nSamples == g.policy.LocalThreshold() {
		return g.sampleDrops(length, nSamples, limit)
	}
	return EnumerateLimited(length, limit)
}

func clampLimit(length, limit int) int {
	if length <= 0 {
		panic(fmt.Sprintf("basis: sequence length must be positive, got %d", length))
	}
	if limit < 0 {
		panic(fmt.Sprintf("basis: negative drop limit %d", limit))
	}
	if limit > length {
		limit = length
	}
	return limit
}

func (g *Generator) bernoulli(n, length int) *mat.Dense {
	data := make([]float64, n*length)
	for i := range data {
		if g.rng.Float64() > .5 {
			data[i] = Kept
		} else {
			data[i] = Dropped
		}
	}
	return mat.NewDense(n, length, data)
}

func (g *Generator) sampleDrops(length, n, limit int) *mat.Dense {
	ks, weights := DropDistribution(length, limit, n)
	cat := distuv.NewCategorical(weights, g.rng)

	data := make([]float64, n*length)
	for i := range data {
		data[i] = Kept
	}
	for i := 0; i < n; i++ {
		k := ks[int(cat.Rand())]
		row := data[i*length : (i+1)*length]
		for _, pos := range g.rng.Perm(length)[:k] {
			row[pos] = Dropped
		}
	}
	return mat.NewDense(n, length, data)
}

// DropDistribution returns the candidate drop counts, limit down to 1, and
// their unnormalised weights C(L,k). Terms whose ratio to the first weight
// is not above 1/n are cut, along with everything after them.
func DropDistribution(length, limit, n int) ([]int, []float64) {
	var (
		ks      []int
		weights []float64
	)
	for k := limit; k >= 1; k-- {
		c := choose(length, k)
		if len(weights) > 0 && c/weights[0] <= 1/float64(n) {
			break
		}
		ks = append(ks, k)
		weights = append(weights, c)
	}
	return ks, weights
}

func choose(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	return combin.GeneralizedBinomial(float64(n), float64(k))
}

// Enumerate returns all 2^L masks in lexicographic order with -1 < +1, so
// the first row drops everything and the last keeps everything.
func Enumerate(length int) *mat.Dense {
	rows := pow2(length)
	data := make([]float64, rows*length)
	for r := 0; r < rows; r++ {
		for i := 0; i < length; i++ {
			v := Dropped
			if r>>(length-1-i)&1 == 1 {
				v = Kept
			}
			data[r*length+i] = v
		}
	}
	return mat.NewDense(rows, length, data)
}

// EnumerateLimited returns every mask with at most limit dropped tokens,
// ordered by drop count and then lexicographically by dropped positions.
func EnumerateLimited(length, limit int) *mat.Dense {
	limit = clampLimit(length, limit)
	rows := 0
	for k := 0; k <= limit; k++ {
		rows += combin.Binomial(length, k)
	}

	data := make([]float64, 0, rows*length)
	appendRow := func(drops []int) {
		row := make([]float64, length)
		for i := range row {
			row[i] = Kept
		}
		for _, pos := range drops {
			row[pos] = Dropped
		}
		data = append(data, row...)
	}

	appendRow(nil)
	for k := 1; k <= limit; k++ {
		gen := combin.NewCombinationGenerator(length, k)
		drops := make([]int, k)
		for gen.Next() {
			appendRow(gen.Combination(drops))
		}
	}
	return mat.NewDense(rows, length, data)
}

// Stack concatenates a on top of b.
func Stack(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Stack(a, b)
	return &out
}

// Drops counts the dropped positions in a mask row.
func Drops(row []float64) int {
	n := 0
	for _, v := range row {
		if v < 0 {
			n++
		}
	}
	return n
}

// Apply removes the dropped tokens from ids and right-pads the result with
// pad back to the original length.
func Apply(mask []float64, ids []int, pad int) []int {
	if len(mask) != len(ids) {
		panic(fmt.Sprintf("basis: mask length %d does not match sequence length %d", len(mask), len(ids)))
	}
	out := make([]int, 0, len(ids))
	for i, id := range ids {
		if mask[i] > 0 {
			out = append(out, id)
		}
	}
	for len(out) < len(ids) {
		out = append(out, pad)
	}
	return out
}

// ApplyAll applies every row of m to ids.
func ApplyAll(m mat.Matrix, ids []int, pad int) [][]int {
	rows, _ := m.Dims()
	out := make([][]int, rows)
	for i := 0; i < rows; i++ {
		out[i] = Apply(mat.Row(nil, i, m), ids, pad)
	}
	return out
}
