// Package faithfulness measures how closely the fitted surrogates track the
// classifier on fresh masks at increasing distances from the full sentence.
package faithfulness

import (
	"context"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/harmonica/pkg/harmonica/anchor"
	"github.com/cognicore/harmonica/pkg/harmonica/basis"
	"github.com/cognicore/harmonica/pkg/harmonica/classifier"
	"github.com/cognicore/harmonica/pkg/harmonica/poly"
	"github.com/cognicore/harmonica/pkg/harmonica/surrogate"
)

// Radii are the drop limits every sentence is evaluated at. 0 places no
// limit on the number of dropped tokens.
var Radii = []int{0, 1, 2, 4, 8, 16, 32}

// Evaluator compares surrogate predictions with classifier scores for one
// sentence.
type Evaluator struct {
	Generator *basis.Generator
	Scorer    classifier.Scorer
	Expander  *poly.Expander
	Table     *surrogate.Table
	Anchors   mat.Matrix
	Used      []int
	IDs       []int
	Pad       int
}

// Result is the outcome at one radius.
type Result struct {
	Radius      int
	Predictions []float64
	Truth       []float64
	MAE         float64
}

// Evaluate draws a fresh basis with at most radius drops per row, routes it
// to the fitted anchors and scores it both ways.
func (e *Evaluator) Evaluate(ctx context.Context, radius, nSamples int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	masks := e.Generator.Random(len(e.IDs), nSamples, radius, nil)
	assign := anchor.Assign(masks, e.Anchors, e.Used)
	for _, a := range assign {
		if !e.Table.Fitted(a) {
			panic(fmt.Sprintf("faithfulness: sample routed to unfitted anchor %d", a))
		}
	}

	truth, err := classifier.ScoreMasks(ctx, e.Scorer, masks, e.IDs, e.Pad)
	if err != nil {
		return Result{}, fmt.Errorf("radius %d: %w", radius, err)
	}
	preds := e.Table.PredictAll(e.Expander.Expand(masks), assign)

	mae, err := MAE(preds, truth)
	if err != nil {
		return Result{}, fmt.Errorf("radius %d: %w", radius, err)
	}
	return Result{
		Radius:      radius,
		Predictions: preds,
		Truth:       truth,
		MAE:         mae,
	}, nil
}

// EvaluateAll runs Evaluate for each radius in order.
func (e *Evaluator) EvaluateAll(ctx context.Context, radii []int, nSamples int) ([]Result, error) {
	out := make([]Result, 0, len(radii))
	for _, r := range radii {
		res, err := e.Evaluate(ctx, r, nSamples)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// MAE is the mean absolute difference of two equally long series.
func MAE(pred, truth []float64) (float64, error) {
	if len(pred) != len(truth) {
		return 0, fmt.Errorf("mae: %d predictions for %d targets", len(pred), len(truth))
	}
	diffs := make([]float64, len(pred))
	for i := range pred {
		diffs[i] = math.Abs(pred[i] - truth[i])
	}
	return stats.Mean(diffs)
}
