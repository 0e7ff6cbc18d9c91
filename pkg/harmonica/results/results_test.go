package results

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/harmonica/pkg/harmonica/config"
	"github.com/cognicore/harmonica/pkg/harmonica/faithfulness"
	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

func sentence(index int, radii []int, width int, offset float64) SentenceResult {
	s := SentenceResult{Index: index, Tokens: []string{"a", "b"}, Used: []int{0}}
	for _, r := range radii {
		pred := make([]float64, width)
		truth := make([]float64, width)
		for i := range pred {
			pred[i] = 0.5 + offset
			truth[i] = 0.5
		}
		s.Radii = append(s.Radii, faithfulness.Result{Radius: r, Predictions: pred, Truth: truth, MAE: offset})
	}
	return s
}

func TestAccumulatorAppend(t *testing.T) {
	acc := NewAccumulator([]int{0, 1})
	require.NoError(t, acc.Append(sentence(3, []int{0, 1}, 4, 0.1)))
	require.NoError(t, acc.Append(sentence(5, []int{0, 1}, 2, 0.2)))
	assert.Equal(t, 2, acc.Len())

	s, ok := acc.Series(1)
	require.True(t, ok)
	assert.Equal(t, []int{3, 5}, s.Indices)
	require.Len(t, s.Predictions, 2)
	assert.Len(t, s.Predictions[0], 4)
	assert.Len(t, s.Truth[1], 2)

	_, ok = acc.Series(8)
	assert.False(t, ok)
}

func TestAccumulatorRejectsMismatchedRadii(t *testing.T) {
	acc := NewAccumulator([]int{0, 1})
	assert.ErrorIs(t, acc.Append(sentence(0, []int{0}, 1, 0)), internalerr.ErrInvalidInput)
	assert.ErrorIs(t, acc.Append(sentence(0, []int{0, 2}, 1, 0)), internalerr.ErrInvalidInput)
	assert.Equal(t, 0, acc.Len())
	s, _ := acc.Series(0)
	assert.Empty(t, s.Predictions, "a rejected sentence leaves no partial rows")
}

func TestSentenceMAE(t *testing.T) {
	s := sentence(0, []int{0, 4}, 2, 0.25)
	assert.Equal(t, map[int]float64{0: 0.25, 4: 0.25}, s.MAE())
}

func TestNaming(t *testing.T) {
	n := NamingFor(config.Default())
	assert.Equal(t, "preciselasso_sample2000_anchor3_consisloss1", n.Dir())
	assert.Equal(t, "final_lasso_output_subspace4_seed123.json", n.File(KindLasso, 4))
	assert.Equal(t, "final_model_output_subspace0_seed123.json", n.File(KindModel, 0))

	n.SplitStart, n.SplitEnd = 100, 200
	n.ConsistencyLoss = 0.5
	assert.Equal(t, "preciselasso_sample2000_anchor3_consisloss0.5", n.Dir())
	assert.Equal(t, "final_lasso_output_subspace32_seed123_100_200.json", n.File(KindLasso, 32))
}

func TestPersistAndSummarize(t *testing.T) {
	root := t.TempDir()
	radii := []int{0, 2}
	acc := NewAccumulator(radii)
	require.NoError(t, acc.Append(sentence(0, radii, 3, 0.1)))
	require.NoError(t, acc.Append(sentence(1, radii, 5, 0.3)))

	cfg := config.Default()
	cfg.Model.APIKey = "secret"
	dir, err := Persist(root, NamingFor(cfg), acc, Manifest{RunID: "01TEST", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "preciselasso_sample2000_anchor3_consisloss1"), dir)

	rows, err := ReadSeries(filepath.Join(dir, "final_model_output_subspace2_seed123.json"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[1], 5)

	m, err := ReadManifest(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	assert.Equal(t, "01TEST", m.RunID)
	assert.Equal(t, 2, m.Sentences)
	assert.Len(t, m.Files, 2)
	assert.Empty(t, m.Config.Model.APIKey)
	assert.Equal(t, 2000, m.Config.SamplesMin)

	summary, err := Summarize(dir)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, 0, summary[0].Radius)
	assert.Equal(t, 2, summary[0].Sentences)
	assert.Equal(t, 8, summary[0].Samples)
	assert.InDelta(t, 0.2, summary[0].Mean, 1e-9)
	assert.InDelta(t, 0.2, summary[0].Median, 1e-9)
}

func TestPersistShardsShareDirectory(t *testing.T) {
	root := t.TempDir()
	radii := []int{0}
	for i, split := range [][2]int{{0, 10}, {10, 20}} {
		acc := NewAccumulator(radii)
		require.NoError(t, acc.Append(sentence(split[0], radii, 2, 0.1*float64(i+1))))
		n := NamingFor(config.Default())
		n.SplitStart, n.SplitEnd = split[0], split[1]
		_, err := Persist(root, n, acc, Manifest{})
		require.NoError(t, err)
	}

	dir := filepath.Join(root, NamingFor(config.Default()).Dir())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	summary, err := Summarize(dir)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 2, summary[0].Sentences)
	assert.InDelta(t, 0.15, summary[0].Mean, 1e-9)
}

func TestSummarizeErrors(t *testing.T) {
	_, err := Summarize(t.TempDir())
	assert.ErrorIs(t, err, internalerr.ErrNotFound)

	_, err = ReadSeries(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
