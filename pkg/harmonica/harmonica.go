// Package harmonica explains a text classifier one sentence at a time. Each
// sentence's mask space is split around a few anchor masks, a sparse
// polynomial surrogate is fitted per anchor, and the surrogates are scored
// against the classifier at several distances from the full sentence.
package harmonica

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/harmonica/pkg/harmonica/anchor"
	"github.com/cognicore/harmonica/pkg/harmonica/basis"
	"github.com/cognicore/harmonica/pkg/harmonica/classifier"
	"github.com/cognicore/harmonica/pkg/harmonica/config"
	"github.com/cognicore/harmonica/pkg/harmonica/dataset"
	"github.com/cognicore/harmonica/pkg/harmonica/faithfulness"
	"github.com/cognicore/harmonica/pkg/harmonica/ingest"
	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
	"github.com/cognicore/harmonica/pkg/harmonica/metrics"
	"github.com/cognicore/harmonica/pkg/harmonica/poly"
	"github.com/cognicore/harmonica/pkg/harmonica/results"
	"github.com/cognicore/harmonica/pkg/harmonica/store"
	"github.com/cognicore/harmonica/pkg/harmonica/surrogate"
)

// SentenceResult is the outcome of explaining one sentence.
type SentenceResult = results.SentenceResult

// Options configures an Explainer. Store and Metrics are optional.
type Options struct {
	Config    config.Config
	Scorer    classifier.Scorer
	Vocab     *ingest.Vocab
	Tokenizer *ingest.Tokenizer
	Store     store.Store
	Metrics   *metrics.Registry
	Logger    zerolog.Logger
}

// Explainer runs the per-sentence pipeline. All randomness comes from one
// stream seeded by Config.Seed, so a run is reproducible for a fixed
// configuration and dataset order. It is not safe for concurrent use.
type Explainer struct {
	cfg     config.Config
	scorer  classifier.Scorer
	vocab   *ingest.Vocab
	tok     *ingest.Tokenizer
	store   store.Store
	metrics *metrics.Registry
	log     zerolog.Logger

	rng    *rand.Rand
	gen    *basis.Generator
	solver surrogate.Solver
}

// Summary reports a finished run.
type Summary struct {
	RunID     string
	Explained int
	Skipped   int
	MeanMAE   map[int]float64
}

// New creates an Explainer with the given dependencies
func New(opts Options) *Explainer {
	seed := uint64(opts.Config.Seed)
	rng := rand.New(rand.NewPCG(seed, seed))
	tok := opts.Tokenizer
	if tok == nil {
		tok = ingest.NewTokenizer(nil)
	}
	return &Explainer{
		cfg:     opts.Config,
		scorer:  opts.Scorer,
		vocab:   opts.Vocab,
		tok:     tok,
		store:   opts.Store,
		metrics: opts.Metrics,
		log:     opts.Logger,
		rng:     rng,
		gen: basis.NewGenerator(basis.Policy{
			SamplesMin: opts.Config.SamplesMin,
			Anchors:    opts.Config.Anchors,
		}, rng),
		solver: surrogate.Lasso{
			Alpha:        opts.Config.Lasso.Alpha,
			MaxIter:      opts.Config.Lasso.MaxIter,
			Tol:          opts.Config.Lasso.Tol,
			FitIntercept: true,
		},
	}
}

// ExplainSentence fits the anchor surrogates of one tokenized sentence and
// evaluates them at every radius. Sentences shorter than the polynomial
// degree return internalerr.ErrTooShort.
func (e *Explainer) ExplainSentence(ctx context.Context, tokens []string) (SentenceResult, error) {
	tokens = ingest.Truncate(tokens, e.cfg.Truncate)
	length := len(tokens)
	if length == 0 || length < e.cfg.Degree {
		return SentenceResult{}, fmt.Errorf("%d tokens for degree %d: %w", length, e.cfg.Degree, internalerr.ErrTooShort)
	}

	policy := e.gen.Policy()
	n := policy.SampleCount(length)
	ids := e.vocab.Encode(tokens, length)
	pad := e.vocab.Pad()

	anchors := anchor.Generate(e.cfg.Anchors, length, e.rng)
	local := e.gen.Local(length, policy.LocalCount(length))
	var inject mat.Matrix
	if e.cfg.InjectAnchors {
		inject = anchors
	}
	global := e.gen.Random(length, n, e.cfg.SubspaceLimit, inject)
	fitBasis := basis.Stack(local, global)

	assign := anchor.Assign(fitBasis, anchors, nil)
	used := anchor.Used(assign)

	y, err := classifier.ScoreMasks(ctx, e.scorer, fitBasis, ids, pad)
	if err != nil {
		return SentenceResult{}, err
	}

	exp := poly.NewExpander(length, e.cfg.Degree)
	table := surrogate.NewTable(e.cfg.Anchors, exp.Dim())
	start := time.Now()
	fits, err := table.FitPartitions(e.solver, exp.Expand(fitBasis), y, assign, used)
	if err != nil {
		return SentenceResult{}, err
	}
	e.metrics.RecordFit(time.Since(start).Seconds())

	ev := &faithfulness.Evaluator{
		Generator: e.gen,
		Scorer:    e.scorer,
		Expander:  exp,
		Table:     table,
		Anchors:   anchors,
		Used:      used,
		IDs:       ids,
		Pad:       pad,
	}
	radii, err := ev.EvaluateAll(ctx, faithfulness.Radii, n)
	if err != nil {
		return SentenceResult{}, err
	}

	rows, _ := fitBasis.Dims()
	scored := rows
	for _, r := range radii {
		scored += len(r.Truth)
	}
	e.metrics.RecordSamples(scored)
	e.metrics.RecordUsedAnchors(len(used))

	return SentenceResult{
		Tokens:       tokens,
		Used:         used,
		Samples:      rows,
		Fits:         fits,
		Radii:        radii,
		Attributions: attributions(table, exp, tokens),
	}, nil
}

// attributions lists the non-zero terms of anchor 0, the all-kept mask.
func attributions(table *surrogate.Table, exp *poly.Expander, tokens []string) []results.Attribution {
	if !table.Fitted(0) {
		return nil
	}
	coef := table.Coef(0)
	var out []results.Attribution
	for j, term := range exp.Terms() {
		w := coef[j+1]
		if w == 0 {
			continue
		}
		words := make([]string, len(term))
		for k, pos := range term {
			words[k] = tokens[pos]
		}
		out = append(out, results.Attribution{Positions: append([]int(nil), term...), Tokens: words, Weight: w})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return math.Abs(out[a].Weight) > math.Abs(out[b].Weight)
	})
	return out
}

// Run explains every sentence in the configured range of ds and appends the
// outputs to acc. Short sentences are skipped and never reach acc. Any
// other failure aborts the run.
func (e *Explainer) Run(ctx context.Context, ds dataset.Dataset, acc *results.Accumulator) (Summary, error) {
	start, end := e.cfg.Range(ds.Len())
	summary := Summary{MeanMAE: make(map[int]float64)}

	runID, err := e.beginRun(ctx)
	if err != nil {
		return summary, err
	}
	summary.RunID = runID

	e.log.Info().
		Str("run", runID).
		Int("start", start).
		Int("end", end).
		Int("samples_min", e.cfg.SamplesMin).
		Int("anchors", e.cfg.Anchors).
		Msg("Starting explanation run")

	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			e.finishRun(runID, store.StatusFailed)
			return summary, err
		}

		tokens := e.tok.Tokenize(ds.At(i).Sentence)
		res, err := e.ExplainSentence(ctx, tokens)
		if errors.Is(err, internalerr.ErrTooShort) {
			summary.Skipped++
			e.metrics.RecordSentence(metrics.StatusSkipped)
			e.log.Debug().Int("index", i).Int("length", len(tokens)).Msg("Skipping short sentence")
			if err := e.record(ctx, runID, store.Sentence{Index: i, Length: len(tokens), Skipped: true}); err != nil {
				e.finishRun(runID, store.StatusFailed)
				return summary, err
			}
			continue
		}
		if err != nil {
			e.metrics.RecordSentence(metrics.StatusFailed)
			e.finishRun(runID, store.StatusFailed)
			return summary, fmt.Errorf("sentence %d: %w", i, err)
		}

		res.Index = i
		if err := acc.Append(res); err != nil {
			e.finishRun(runID, store.StatusFailed)
			return summary, err
		}

		mae := res.MAE()
		summary.Explained++
		for r, v := range mae {
			summary.MeanMAE[r] += (v - summary.MeanMAE[r]) / float64(summary.Explained)
			e.metrics.RecordMAE(r, v)
		}
		e.metrics.RecordSentence(metrics.StatusExplained)

		err = e.record(ctx, runID, store.Sentence{
			Index:       i,
			Length:      len(res.Tokens),
			UsedAnchors: len(res.Used),
			Samples:     res.Samples,
			MAE:         mae,
		})
		if err != nil {
			e.finishRun(runID, store.StatusFailed)
			return summary, err
		}

		progress := zerolog.Dict()
		for _, r := range res.Radii {
			progress.Float64(strconv.Itoa(r.Radius), r.MAE)
		}
		e.log.Info().
			Int("index", i).
			Int("length", len(res.Tokens)).
			Int("used_anchors", len(res.Used)).
			Dict("mae", progress).
			Msg("Explained sentence")
	}

	e.finishRun(runID, store.StatusFinished)
	e.log.Info().
		Str("run", runID).
		Int("explained", summary.Explained).
		Int("skipped", summary.Skipped).
		Msg("Explanation run finished")
	return summary, nil
}

func (e *Explainer) beginRun(ctx context.Context) (string, error) {
	if e.store == nil {
		return store.NewID(), nil
	}
	snapshot := e.cfg
	snapshot.Model.APIKey = ""
	cfgYAML, err := yaml.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	run, err := e.store.BeginRun(ctx, store.Run{
		Dir:    results.NamingFor(e.cfg).Dir(),
		Config: string(cfgYAML),
	})
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return run.ID, nil
}

func (e *Explainer) record(ctx context.Context, runID string, s store.Sentence) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.RecordSentence(ctx, runID, s); err != nil {
		return fmt.Errorf("record sentence %d: %w", s.Index, err)
	}
	return nil
}

// finishRun uses a fresh context so cancelled runs are still closed out.
func (e *Explainer) finishRun(runID, status string) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.FinishRun(ctx, runID, status, time.Now()); err != nil {
		e.log.Warn().Err(err).Str("run", runID).Msg("Failed to finish run")
	}
}
