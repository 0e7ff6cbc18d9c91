package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/harmonica/pkg/harmonica/classifier"
	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(123), cfg.Seed)
	assert.Equal(t, 50, cfg.Truncate)
	assert.Equal(t, 2, cfg.Degree)
	assert.Equal(t, 2000, cfg.SamplesMin)
	assert.Equal(t, 3, cfg.Anchors)
	assert.Equal(t, 0.001, cfg.Lasso.Alpha)
	assert.Equal(t, 512, cfg.BatchSize)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run.yaml", `
seed: 7
degree: 3
samples_min: 500
lasso:
  alpha: 0.01
data:
  path: dev.tsv
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 3, cfg.Degree)
	assert.Equal(t, 500, cfg.SamplesMin)
	assert.Equal(t, 0.01, cfg.Lasso.Alpha)
	assert.Equal(t, 1000, cfg.Lasso.MaxIter, "untouched nested defaults survive")
	assert.Equal(t, 3, cfg.Anchors)
	assert.Equal(t, "dev.tsv", cfg.Data.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("/nonexistent/run.yaml")
	assert.Error(t, err)

	path := writeFile(t, t.TempDir(), "bad.yaml", "degree: [1, 2\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"degree":   func(c *Config) { c.Degree = 0 },
		"anchors":  func(c *Config) { c.Anchors = 0 },
		"samples":  func(c *Config) { c.SamplesMin = 2 },
		"limit":    func(c *Config) { c.SubspaceLimit = -1 },
		"truncate": func(c *Config) { c.Truncate = -1 },
		"split":    func(c *Config) { c.SplitStart, c.SplitEnd = 10, 5 },
		"batch":    func(c *Config) { c.BatchSize = 0 },
		"alpha":    func(c *Config) { c.Lasso.Alpha = -1 },
		"max_iter": func(c *Config) { c.Lasso.MaxIter = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), internalerr.ErrInvalidConfig)
		})
	}
}

func TestRange(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Sharded())
	start, end := cfg.Range(872)
	assert.Equal(t, 0, start)
	assert.Equal(t, 872, end)

	cfg.SplitStart, cfg.SplitEnd = 100, 200
	assert.True(t, cfg.Sharded())
	start, end = cfg.Range(872)
	assert.Equal(t, 100, start)
	assert.Equal(t, 200, end)

	start, end = cfg.Range(150)
	assert.Equal(t, 100, start)
	assert.Equal(t, 150, end)
}

func TestLoaderWithLexicon(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Data.Path = writeFile(t, dir, "dev.tsv", "sentence\tlabel\nthe movie was great\t1\nthe plot was dull\t0\n")
	cfg.Model.LexiconPath = writeFile(t, dir, "model.yaml", "bias: 0\nweights:\n  great: 2\n  dull: -2\n")

	comp, err := (&Loader{Config: cfg}).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, comp.Dataset.Len())
	assert.NotEqual(t, 0, comp.Vocab.Index("great"))
	require.IsType(t, &classifier.Batched{}, comp.Scorer)
	assert.Equal(t, 512, comp.Scorer.(*classifier.Batched).Size)
}

func TestLoaderWithTrainVocabAndRemote(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Data.Path = writeFile(t, dir, "dev.tsv", "sentence\tlabel\nfine\t1\n")
	cfg.Data.TrainPath = writeFile(t, dir, "train.jsonl", `{"sentence":"great great film","label":1}`)
	cfg.Model.URL = "https://models.test/predict"

	comp, err := (&Loader{Config: cfg}).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, comp.Vocab.Index("great"))
	assert.Equal(t, 0, comp.Vocab.Index("fine"), "vocabulary comes from the training split")
	assert.IsType(t, &classifier.Remote{}, comp.Scorer.(*classifier.Batched).Scorer)
}

func TestLoaderErrors(t *testing.T) {
	_, err := (&Loader{Config: Default()}).Load()
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	dir := t.TempDir()
	cfg := Default()
	cfg.Data.Path = writeFile(t, dir, "dev.tsv", "sentence\tlabel\nfine\t1\n")
	_, err = (&Loader{Config: cfg}).Load()
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig, "no classifier configured")

	cfg.Data.VocabPath = filepath.Join(dir, "missing.yaml")
	cfg.Model.URL = "https://models.test/predict"
	_, err = (&Loader{Config: cfg}).Load()
	assert.Error(t, err)
}
