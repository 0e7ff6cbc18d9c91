package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cognicore/harmonica/pkg/harmonica"
	"github.com/cognicore/harmonica/pkg/harmonica/config"
	"github.com/cognicore/harmonica/pkg/harmonica/faithfulness"
	"github.com/cognicore/harmonica/pkg/harmonica/metrics"
	"github.com/cognicore/harmonica/pkg/harmonica/results"
	"github.com/cognicore/harmonica/pkg/harmonica/store"
	"github.com/cognicore/harmonica/pkg/harmonica/store/memstore"
	"github.com/cognicore/harmonica/pkg/harmonica/store/sqlite"
)

type runFlags struct {
	configPath  string
	metricsFile string
	overrides   config.Config
}

func newRunCmd() *cobra.Command {
	f := &runFlags{overrides: config.Default()}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit and evaluate surrogates for every sentence in a dataset split",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExplain(ctx, cmd, cfg, f.metricsFile)
		},
	}
	f.bind(cmd)
	return cmd
}

func (f *runFlags) bind(cmd *cobra.Command) {
	o := &f.overrides
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML config file; flags override its values")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this path")

	fl.Int64Var(&o.Seed, "seed", o.Seed, "random seed")
	fl.IntVar(&o.Truncate, "long-sentence-truncate", o.Truncate, "keep at most this many tokens per sentence (0 keeps all)")
	fl.IntVar(&o.SubspaceLimit, "subspace-limit", o.SubspaceLimit, "maximum dropped tokens per fitting mask (0 is unlimited)")
	fl.IntVar(&o.Degree, "degree", o.Degree, "maximum interaction order of the surrogate")
	fl.IntVar(&o.SamplesMin, "samples-min", o.SamplesMin, "sample budget; shorter sentences are enumerated")
	fl.IntVar(&o.Anchors, "n", o.Anchors, "number of anchors")
	fl.Float64Var(&o.ConsistencyLoss, "ep-consistent-loss", o.ConsistencyLoss, "consistency loss weight (recorded in artifact names)")
	fl.IntVar(&o.FitEpochs, "fit-epochs", o.FitEpochs, "fit epochs (accepted, unused by the Lasso fitter)")
	fl.IntVar(&o.SplitStart, "split-start", o.SplitStart, "first dataset index to process")
	fl.IntVar(&o.SplitEnd, "split-end", o.SplitEnd, "dataset index to stop before (0 with split-start 0 processes everything)")
	fl.BoolVar(&o.InjectAnchors, "inject-anchors", o.InjectAnchors, "prepend the anchors to the fitting basis")
	fl.IntVar(&o.BatchSize, "batch-size", o.BatchSize, "classifier batch size")
	fl.Float64Var(&o.Lasso.Alpha, "alpha", o.Lasso.Alpha, "Lasso regularisation strength")

	fl.StringVar(&o.Data.Path, "data", "", "evaluated split (.tsv or .jsonl)")
	fl.StringVar(&o.Data.TrainPath, "train", "", "training split used to build the vocabulary")
	fl.StringVar(&o.Data.VocabPath, "vocab", "", "vocabulary file written by the vocab command")
	fl.IntVar(&o.Data.MaxVocab, "max-vocab", o.Data.MaxVocab, "vocabulary size when building from data")
	fl.StringVar(&o.Model.LexiconPath, "model", "", "lexicon model YAML")
	fl.StringVar(&o.Model.URL, "model-url", "", "remote prediction endpoint")
	fl.Float64Var(&o.Model.RPS, "model-rps", o.Model.RPS, "remote endpoint rate limit in requests per second (0 is unlimited)")
	fl.StringVar(&o.OutputDir, "out", o.OutputDir, "root directory for artifacts")
	fl.StringVar(&o.LedgerPath, "ledger", "", "SQLite run ledger path")
}

// flagFields maps flag names onto the config field they override.
var flagFields = map[string]func(dst *config.Config, src config.Config){
	"seed":                   func(d *config.Config, s config.Config) { d.Seed = s.Seed },
	"long-sentence-truncate": func(d *config.Config, s config.Config) { d.Truncate = s.Truncate },
	"subspace-limit":         func(d *config.Config, s config.Config) { d.SubspaceLimit = s.SubspaceLimit },
	"degree":                 func(d *config.Config, s config.Config) { d.Degree = s.Degree },
	"samples-min":            func(d *config.Config, s config.Config) { d.SamplesMin = s.SamplesMin },
	"n":                      func(d *config.Config, s config.Config) { d.Anchors = s.Anchors },
	"ep-consistent-loss":     func(d *config.Config, s config.Config) { d.ConsistencyLoss = s.ConsistencyLoss },
	"fit-epochs":             func(d *config.Config, s config.Config) { d.FitEpochs = s.FitEpochs },
	"split-start":            func(d *config.Config, s config.Config) { d.SplitStart = s.SplitStart },
	"split-end":              func(d *config.Config, s config.Config) { d.SplitEnd = s.SplitEnd },
	"inject-anchors":         func(d *config.Config, s config.Config) { d.InjectAnchors = s.InjectAnchors },
	"batch-size":             func(d *config.Config, s config.Config) { d.BatchSize = s.BatchSize },
	"alpha":                  func(d *config.Config, s config.Config) { d.Lasso.Alpha = s.Lasso.Alpha },
	"data":                   func(d *config.Config, s config.Config) { d.Data.Path = s.Data.Path },
	"train":                  func(d *config.Config, s config.Config) { d.Data.TrainPath = s.Data.TrainPath },
	"vocab":                  func(d *config.Config, s config.Config) { d.Data.VocabPath = s.Data.VocabPath },
	"max-vocab":              func(d *config.Config, s config.Config) { d.Data.MaxVocab = s.Data.MaxVocab },
	"model":                  func(d *config.Config, s config.Config) { d.Model.LexiconPath = s.Model.LexiconPath },
	"model-url":              func(d *config.Config, s config.Config) { d.Model.URL = s.Model.URL },
	"model-rps":              func(d *config.Config, s config.Config) { d.Model.RPS = s.Model.RPS },
	"out":                    func(d *config.Config, s config.Config) { d.OutputDir = s.OutputDir },
	"ledger":                 func(d *config.Config, s config.Config) { d.LedgerPath = s.LedgerPath },
}

// resolve layers explicitly set flags over the config file (or the
// defaults) and validates the result.
func (f *runFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	for name, apply := range flagFields {
		if cmd.Flags().Changed(name) {
			apply(&cfg, f.overrides)
		}
	}
	if key := os.Getenv("HARMONICA_MODEL_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, path string) (store.Store, error) {
	if path == "" {
		return memstore.New(), nil
	}
	return sqlite.OpenSQLite(ctx, path)
}

func runExplain(ctx context.Context, cmd *cobra.Command, cfg config.Config, metricsFile string) error {
	loader := config.Loader{Config: cfg}
	comp, err := loader.Load()
	if err != nil {
		return err
	}
	log.Info().
		Int("sentences", comp.Dataset.Len()).
		Int("vocab", comp.Vocab.Len()).
		Msg("Loaded dataset and vocabulary")

	st, err := openStore(ctx, cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer st.Close()

	reg := metrics.New()
	explainer := harmonica.New(harmonica.Options{
		Config:    cfg,
		Scorer:    comp.Scorer,
		Vocab:     comp.Vocab,
		Tokenizer: comp.Tokenizer,
		Store:     st,
		Metrics:   reg,
		Logger:    log.Logger,
	})

	acc := results.NewAccumulator(faithfulness.Radii)
	summary, err := explainer.Run(ctx, comp.Dataset, acc)
	if err != nil {
		return err
	}

	dir, err := results.Persist(cfg.OutputDir, results.NamingFor(cfg), acc, results.Manifest{
		RunID:   summary.RunID,
		Skipped: summary.Skipped,
		Config:  cfg,
	})
	if err != nil {
		return err
	}
	if metricsFile != "" {
		if err := reg.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: explained %s sentences, skipped %s\n",
		summary.RunID, humanize.Comma(int64(summary.Explained)), humanize.Comma(int64(summary.Skipped)))
	for _, r := range faithfulness.Radii {
		if mae, ok := summary.MeanMAE[r]; ok {
			fmt.Fprintf(out, "  radius %2d  mean MAE %.6f\n", r, mae)
		}
	}
	fmt.Fprintf(out, "artifacts written to %s\n", dir)
	return nil
}
