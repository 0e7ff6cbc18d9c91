package harmonica

import (
	"context"
	"errors"
	"math"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/harmonica/pkg/harmonica/classifier"
	"github.com/cognicore/harmonica/pkg/harmonica/config"
	"github.com/cognicore/harmonica/pkg/harmonica/dataset"
	"github.com/cognicore/harmonica/pkg/harmonica/faithfulness"
	"github.com/cognicore/harmonica/pkg/harmonica/ingest"
	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
	"github.com/cognicore/harmonica/pkg/harmonica/metrics"
	"github.com/cognicore/harmonica/pkg/harmonica/results"
	"github.com/cognicore/harmonica/pkg/harmonica/store"
	"github.com/cognicore/harmonica/pkg/harmonica/store/memstore"
)

// keptScorer scores 0.1 per non-padding token.
var keptScorer = classifier.ScorerFunc(func(ctx context.Context, batch [][]int) ([]float64, error) {
	out := make([]float64, len(batch))
	for i, seq := range batch {
		for _, id := range seq {
			if id != ingest.PadIndex {
				out[i] += 0.1
			}
		}
	}
	return out, nil
})

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.SamplesMin = 8
	cfg.Anchors = 3
	cfg.Degree = 2
	return cfg
}

func newExplainer(cfg config.Config, scorer classifier.Scorer, sentences ...string) *Explainer {
	tok := ingest.NewTokenizer(nil)
	tokenized := make([][]string, len(sentences))
	for i, s := range sentences {
		tokenized[i] = tok.Tokenize(s)
	}
	return New(Options{
		Config:    cfg,
		Scorer:    scorer,
		Vocab:     ingest.BuildVocab(tokenized, 0),
		Tokenizer: tok,
		Logger:    zerolog.Nop(),
	})
}

func TestExplainSentenceShape(t *testing.T) {
	sentence := "the movie was great"
	e := newExplainer(smallConfig(), keptScorer, sentence)

	res, err := e.ExplainSentence(context.Background(), e.tok.Tokenize(sentence))
	require.NoError(t, err)

	// 16 local masks (every mask with at most four drops) plus 8 sampled ones.
	assert.Equal(t, 24, res.Samples)
	assert.Contains(t, res.Used, 0, "the all-kept mask always routes to anchor 0")
	for _, a := range res.Used {
		assert.GreaterOrEqual(t, a, 0)
		assert.Less(t, a, 3)
	}
	require.Len(t, res.Fits, len(res.Used))
	for _, f := range res.Fits {
		assert.Positive(t, f.Rows, "anchor %d", f.Anchor)
	}

	require.Len(t, res.Radii, len(faithfulness.Radii))
	for i, r := range res.Radii {
		assert.Equal(t, faithfulness.Radii[i], r.Radius)
		assert.Len(t, r.Truth, 8)
		assert.Len(t, r.Predictions, 8)
		assert.GreaterOrEqual(t, r.MAE, 0.0)
	}
	// Every mask of a four-token sentence is in the fitting basis, so the
	// additive scorer is matched up to Lasso shrinkage.
	assert.Less(t, res.Radii[0].MAE, 0.05)
}

func TestExplainSentenceRecoversAdditiveModel(t *testing.T) {
	cfg := config.Default()
	cfg.Anchors = 1
	sentence := "a quietly moving film ."
	e := newExplainer(cfg, keptScorer, sentence)

	res, err := e.ExplainSentence(context.Background(), e.tok.Tokenize(sentence))
	require.NoError(t, err)
	// 31 masks with at most four drops plus all 32 masks.
	assert.Equal(t, 63, res.Samples)
	for _, r := range res.Radii {
		assert.Less(t, r.MAE, 0.01, "radius %d", r.Radius)
	}

	// Each kept token adds 0.1, i.e. 0.05 per unit on the ±1 scale.
	require.GreaterOrEqual(t, len(res.Attributions), 5)
	for _, a := range res.Attributions[:5] {
		require.Len(t, a.Positions, 1)
		assert.Equal(t, res.Tokens[a.Positions[0]], a.Tokens[0])
		assert.InDelta(t, 0.05, a.Weight, 0.005)
	}
	for _, a := range res.Attributions[5:] {
		assert.Less(t, math.Abs(a.Weight), 0.005)
	}
}

func TestExplainSentenceTooShort(t *testing.T) {
	e := newExplainer(smallConfig(), keptScorer, "great")
	_, err := e.ExplainSentence(context.Background(), []string{"great"})
	assert.ErrorIs(t, err, internalerr.ErrTooShort)

	_, err = e.ExplainSentence(context.Background(), nil)
	assert.ErrorIs(t, err, internalerr.ErrTooShort)
}

func TestExplainSentenceTruncates(t *testing.T) {
	cfg := smallConfig()
	cfg.Truncate = 3
	e := newExplainer(cfg, keptScorer, "one two three four five")

	res, err := e.ExplainSentence(context.Background(), []string{"one", "two", "three", "four", "five"})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, res.Tokens)
}

func TestExplainSentenceInjectsAnchors(t *testing.T) {
	cfg := smallConfig()
	cfg.InjectAnchors = true
	e := newExplainer(cfg, keptScorer, "the movie was great")

	res, err := e.ExplainSentence(context.Background(), []string{"the", "movie", "was", "great"})
	require.NoError(t, err)
	assert.Equal(t, 27, res.Samples)
}

func TestExplainSentenceIsDeterministic(t *testing.T) {
	tokens := []string{"the", "movie", "was", "great", "fun"}
	a := newExplainer(smallConfig(), keptScorer, "the movie was great fun")
	b := newExplainer(smallConfig(), keptScorer, "the movie was great fun")

	ra, err := a.ExplainSentence(context.Background(), tokens)
	require.NoError(t, err)
	rb, err := b.ExplainSentence(context.Background(), tokens)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestExplainSentenceScorerError(t *testing.T) {
	failing := classifier.ScorerFunc(func(ctx context.Context, batch [][]int) ([]float64, error) {
		return nil, errors.New("model offline")
	})
	e := newExplainer(smallConfig(), failing, "the movie was great")
	_, err := e.ExplainSentence(context.Background(), []string{"the", "movie", "was", "great"})
	assert.ErrorContains(t, err, "model offline")
}

func counterValue(t *testing.T, r *metrics.Registry, status string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, r.Sentences.WithLabelValues(status).Write(&m))
	return m.GetCounter().GetValue()
}

var reviews = dataset.Records{
	{Sentence: "the movie was great", Label: 1},
	{Sentence: "ok", Label: 1},
	{Sentence: "a dull, lifeless plot", Label: 0},
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	reg := metrics.New()
	tok := ingest.NewTokenizer(nil)

	cfg := smallConfig()
	cfg.Anchors = 2
	e := New(Options{
		Config:    cfg,
		Scorer:    keptScorer,
		Vocab:     ingest.NewVocab([]string{"the", "movie", "was", "great", "a", "dull", ",", "lifeless", "plot"}),
		Tokenizer: tok,
		Store:     st,
		Metrics:   reg,
		Logger:    zerolog.Nop(),
	})

	acc := results.NewAccumulator(faithfulness.Radii)
	summary, err := e.Run(ctx, reviews, acc)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Explained)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, summary.MeanMAE, len(faithfulness.Radii))
	assert.Equal(t, 2, acc.Len())

	s, ok := acc.Series(4)
	require.True(t, ok)
	assert.Equal(t, []int{0, 2}, s.Indices, "the short sentence never reaches the accumulator")

	run, err := st.GetRun(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFinished, run.Status)
	assert.Equal(t, 2, run.Explained)
	assert.Equal(t, 1, run.Skipped)
	assert.Contains(t, run.Config, "samples_min: 8")

	stats, err := st.RadiusSummary(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Len(t, stats, len(faithfulness.Radii))

	assert.Equal(t, 2.0, counterValue(t, reg, metrics.StatusExplained))
	assert.Equal(t, 1.0, counterValue(t, reg, metrics.StatusSkipped))
}

func TestRunSplit(t *testing.T) {
	cfg := smallConfig()
	cfg.SplitStart, cfg.SplitEnd = 2, 3
	e := newExplainer(cfg, keptScorer, "a dull, lifeless plot")

	acc := results.NewAccumulator(faithfulness.Radii)
	summary, err := e.Run(context.Background(), reviews, acc)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Explained)
	s, _ := acc.Series(0)
	assert.Equal(t, []int{2}, s.Indices)
}

func TestRunFailureMarksRun(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	failing := classifier.ScorerFunc(func(ctx context.Context, batch [][]int) ([]float64, error) {
		return nil, errors.New("model offline")
	})
	e := New(Options{
		Config: smallConfig(),
		Scorer: failing,
		Vocab:  ingest.NewVocab(nil),
		Store:  st,
		Logger: zerolog.Nop(),
	})

	summary, err := e.Run(ctx, reviews, results.NewAccumulator(faithfulness.Radii))
	require.Error(t, err)
	assert.ErrorContains(t, err, "sentence 0")

	run, err := st.GetRun(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newExplainer(smallConfig(), keptScorer, "the movie was great")

	acc := results.NewAccumulator(faithfulness.Radii)
	_, err := e.Run(ctx, reviews, acc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, acc.Len())
}
