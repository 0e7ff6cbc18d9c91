package config

import (
	"fmt"

	"github.com/cognicore/harmonica/pkg/harmonica/classifier"
	"github.com/cognicore/harmonica/pkg/harmonica/dataset"
	"github.com/cognicore/harmonica/pkg/harmonica/ingest"
	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

// Loader builds the run's collaborators from a Config.
type Loader struct {
	Config Config
}

// Components holds the loaded collaborators.
type Components struct {
	Dataset   dataset.Records
	Tokenizer *ingest.Tokenizer
	Vocab     *ingest.Vocab
	Scorer    classifier.Scorer
}

// Load reads the dataset, builds or loads the vocabulary and constructs the
// classifier.
func (l *Loader) Load() (*Components, error) {
	cfg := l.Config
	comp := &Components{
		Tokenizer: ingest.NewTokenizer(cfg.Data.Stoplist),
	}

	if cfg.Data.Path == "" {
		return nil, fmt.Errorf("data.path required: %w", internalerr.ErrInvalidConfig)
	}
	ds, err := dataset.Load(cfg.Data.Path)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	comp.Dataset = ds

	vocab, err := l.loadVocab(comp.Tokenizer, ds)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	comp.Vocab = vocab

	scorer, err := l.loadScorer(vocab)
	if err != nil {
		return nil, fmt.Errorf("load classifier: %w", err)
	}
	comp.Scorer = &classifier.Batched{Scorer: scorer, Size: cfg.BatchSize}

	return comp, nil
}

func (l *Loader) loadVocab(tok *ingest.Tokenizer, eval dataset.Records) (*ingest.Vocab, error) {
	data := l.Config.Data
	if data.VocabPath != "" {
		return ingest.LoadVocab(data.VocabPath)
	}

	source := eval
	if data.TrainPath != "" {
		train, err := dataset.Load(data.TrainPath)
		if err != nil {
			return nil, err
		}
		source = train
	}
	return BuildVocab(tok, source, data.MaxVocab), nil
}

// BuildVocab tokenizes every record and builds a frequency vocabulary.
func BuildVocab(tok *ingest.Tokenizer, ds dataset.Dataset, maxSize int) *ingest.Vocab {
	sentences := make([][]string, ds.Len())
	for i := range sentences {
		sentences[i] = tok.Tokenize(ds.At(i).Sentence)
	}
	return ingest.BuildVocab(sentences, maxSize)
}

func (l *Loader) loadScorer(vocab *ingest.Vocab) (classifier.Scorer, error) {
	m := l.Config.Model
	switch {
	case m.URL != "":
		r := classifier.NewRemote(m.URL, m.RPS)
		r.APIKey = m.APIKey
		return r, nil
	case m.LexiconPath != "":
		return classifier.LoadLexicon(m.LexiconPath, vocab)
	default:
		return nil, fmt.Errorf("model.url or model.lexicon_path required: %w", internalerr.ErrInvalidConfig)
	}
}
