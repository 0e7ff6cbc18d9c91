// Package classifier adapts black-box binary text classifiers to the
// explanation pipeline. A classifier scores fixed-length token-index
// sequences and returns one probability per sequence.
package classifier

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/harmonica/pkg/harmonica/basis"
	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

// DefaultBatchSize bounds the number of sequences sent in one call.
const DefaultBatchSize = 512

// Scorer returns the positive-class probability of each sequence.
type Scorer interface {
	Score(ctx context.Context, batch [][]int) ([]float64, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, batch [][]int) ([]float64, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, batch [][]int) ([]float64, error) {
	return f(ctx, batch)
}

// Batched splits calls into sub-batches of at most Size sequences. Results
// are concatenated in input order, so batching has no effect on values.
type Batched struct {
	Scorer Scorer
	Size   int
}

// NewBatched wraps s with the default sub-batch size.
func NewBatched(s Scorer) *Batched {
	return &Batched{Scorer: s, Size: DefaultBatchSize}
}

// Score implements Scorer.
func (b *Batched) Score(ctx context.Context, batch [][]int) ([]float64, error) {
	size := b.Size
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([]float64, 0, len(batch))
	for start := 0; start < len(batch); start += size {
		end := min(start+size, len(batch))
		scores, err := b.Scorer.Score(ctx, batch[start:end])
		if err != nil {
			return nil, err
		}
		if len(scores) != end-start {
			return nil, fmt.Errorf("classifier returned %d scores for %d sequences: %w", len(scores), end-start, internalerr.ErrScorer)
		}
		out = append(out, scores...)
	}
	return out, nil
}

// ScoreMasks applies every mask row to ids and scores the resulting
// sequences.
func ScoreMasks(ctx context.Context, s Scorer, masks mat.Matrix, ids []int, pad int) ([]float64, error) {
	seqs := basis.ApplyAll(masks, ids, pad)
	scores, err := s.Score(ctx, seqs)
	if err != nil {
		return nil, fmt.Errorf("score %d masked sequences: %w", len(seqs), err)
	}
	if len(scores) != len(seqs) {
		return nil, fmt.Errorf("classifier returned %d scores for %d sequences: %w", len(scores), len(seqs), internalerr.ErrScorer)
	}
	return scores, nil
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
