package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

// Config holds every parameter of an explanation run.
type Config struct {
	Seed          int64 `yaml:"seed"`
	Truncate      int   `yaml:"long_sentence_truncate"`
	SubspaceLimit int   `yaml:"subspace_limit"`
	Degree        int   `yaml:"degree"`
	SamplesMin    int   `yaml:"samples_min"`
	Anchors       int   `yaml:"anchors"`

	// ConsistencyLoss and FitEpochs are accepted for compatibility with
	// gradient-based fitting setups. The Lasso fitter does not read them;
	// ConsistencyLoss only shows up in artifact names.
	ConsistencyLoss float64 `yaml:"ep_consistent_loss"`
	FitEpochs       int     `yaml:"fit_epochs"`

	SplitStart int `yaml:"split_start"`
	SplitEnd   int `yaml:"split_end"`

	InjectAnchors bool `yaml:"inject_anchors"`
	BatchSize     int  `yaml:"batch_size"`

	Lasso LassoConfig `yaml:"lasso"`
	Data  DataConfig  `yaml:"data"`
	Model ModelConfig `yaml:"model"`

	OutputDir  string `yaml:"output_dir"`
	LedgerPath string `yaml:"ledger_path"`
}

// LassoConfig configures the per-anchor regression.
type LassoConfig struct {
	Alpha   float64 `yaml:"alpha"`
	MaxIter int     `yaml:"max_iter"`
	Tol     float64 `yaml:"tol"`
}

// DataConfig points at the evaluated split and the vocabulary source.
type DataConfig struct {
	Path      string   `yaml:"path"`
	TrainPath string   `yaml:"train_path"`
	VocabPath string   `yaml:"vocab_path"`
	MaxVocab  int      `yaml:"max_vocab"`
	Stoplist  []string `yaml:"stoplist"`
}

// ModelConfig selects the classifier: a remote endpoint when URL is set,
// otherwise a lexicon model file.
type ModelConfig struct {
	LexiconPath string  `yaml:"lexicon_path"`
	URL         string  `yaml:"url"`
	APIKey      string  `yaml:"api_key"`
	RPS         float64 `yaml:"rps"`
}

// Default returns the stock run parameters.
func Default() Config {
	return Config{
		Seed:            123,
		Truncate:        50,
		SubspaceLimit:   0,
		Degree:          2,
		SamplesMin:      2000,
		Anchors:         3,
		ConsistencyLoss: 1,
		FitEpochs:       1000,
		BatchSize:       512,
		Lasso: LassoConfig{
			Alpha:   0.001,
			MaxIter: 1000,
			Tol:     1e-4,
		},
		Data: DataConfig{
			MaxVocab: 25000,
		},
		OutputDir: ".",
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	switch {
	case c.Degree < 1:
		return invalid("degree must be at least 1, got %d", c.Degree)
	case c.Anchors < 1:
		return invalid("anchors must be at least 1, got %d", c.Anchors)
	case c.SamplesMin < c.Anchors:
		return invalid("samples_min (%d) must be at least the anchor count (%d)", c.SamplesMin, c.Anchors)
	case c.SubspaceLimit < 0:
		return invalid("subspace_limit must not be negative, got %d", c.SubspaceLimit)
	case c.Truncate < 0:
		return invalid("long_sentence_truncate must not be negative, got %d", c.Truncate)
	case c.SplitStart < 0 || c.SplitEnd < c.SplitStart:
		return invalid("invalid split [%d, %d)", c.SplitStart, c.SplitEnd)
	case c.BatchSize < 1:
		return invalid("batch_size must be positive, got %d", c.BatchSize)
	case c.Lasso.Alpha < 0:
		return invalid("lasso.alpha must not be negative, got %g", c.Lasso.Alpha)
	case c.Lasso.MaxIter < 1:
		return invalid("lasso.max_iter must be positive, got %d", c.Lasso.MaxIter)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), internalerr.ErrInvalidConfig)
}

// Sharded reports whether the run covers an explicit index range.
func (c Config) Sharded() bool {
	return c.SplitStart != 0 || c.SplitEnd != 0
}

// Range returns the [start, end) dataset indices to process for a dataset
// of length n.
func (c Config) Range(n int) (int, int) {
	if !c.Sharded() {
		return 0, n
	}
	return min(c.SplitStart, n), min(c.SplitEnd, n)
}
