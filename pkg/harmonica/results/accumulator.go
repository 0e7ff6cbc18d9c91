// Package results collects per-radius surrogate and classifier outputs across
// sentences and writes them out as run artifacts.
package results

import (
	"fmt"
	"slices"

	"github.com/cognicore/harmonica/pkg/harmonica/faithfulness"
	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
	"github.com/cognicore/harmonica/pkg/harmonica/surrogate"
)

// SentenceResult is everything computed for one explained sentence.
type SentenceResult struct {
	Index   int
	Tokens  []string
	Used    []int
	Samples int
	Fits    []surrogate.Summary
	Radii   []faithfulness.Result

	// Attributions are the non-zero terms of the all-kept anchor's model,
	// strongest first. Empty when anchor 0 received no fitting rows.
	Attributions []Attribution
}

// Attribution is one interaction term of a surrogate. Weights are on the ±1
// mask scale: keeping every token in Positions instead of dropping them all
// moves the prediction by roughly 2·Weight for a single token.
type Attribution struct {
	Positions []int
	Tokens    []string
	Weight    float64
}

// MAE returns the error at every evaluated radius.
func (s SentenceResult) MAE() map[int]float64 {
	out := make(map[int]float64, len(s.Radii))
	for _, r := range s.Radii {
		out[r.Radius] = r.MAE
	}
	return out
}

// Series holds one radius's outputs, one entry per explained sentence in
// processing order. Entry lengths differ between sentences.
type Series struct {
	Radius      int
	Indices     []int
	Predictions [][]float64
	Truth       [][]float64
}

// Accumulator keeps a Series per radius.
type Accumulator struct {
	radii  []int
	series map[int]*Series
	count  int
}

// NewAccumulator creates empty series for the given radii.
func NewAccumulator(radii []int) *Accumulator {
	a := &Accumulator{
		radii:  slices.Clone(radii),
		series: make(map[int]*Series, len(radii)),
	}
	for _, r := range radii {
		a.series[r] = &Series{Radius: r}
	}
	return a
}

// Append adds a sentence. The result must carry exactly the accumulator's
// radii, otherwise nothing is added.
func (a *Accumulator) Append(s SentenceResult) error {
	if len(s.Radii) != len(a.radii) {
		return fmt.Errorf("sentence %d has %d radii, want %d: %w", s.Index, len(s.Radii), len(a.radii), internalerr.ErrInvalidInput)
	}
	for _, res := range s.Radii {
		if _, ok := a.series[res.Radius]; !ok {
			return fmt.Errorf("sentence %d: unknown radius %d: %w", s.Index, res.Radius, internalerr.ErrInvalidInput)
		}
	}

	for _, res := range s.Radii {
		ser := a.series[res.Radius]
		ser.Indices = append(ser.Indices, s.Index)
		ser.Predictions = append(ser.Predictions, res.Predictions)
		ser.Truth = append(ser.Truth, res.Truth)
	}
	a.count++
	return nil
}

// Series returns the outputs at radius r.
func (a *Accumulator) Series(r int) (*Series, bool) {
	s, ok := a.series[r]
	return s, ok
}

// Radii lists the tracked radii.
func (a *Accumulator) Radii() []int {
	return slices.Clone(a.radii)
}

// Len is the number of appended sentences.
func (a *Accumulator) Len() int {
	return a.count
}
