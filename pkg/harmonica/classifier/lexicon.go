package classifier

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/harmonica/pkg/harmonica/ingest"
)

// LexiconFile is the YAML form of a Lexicon model.
//
//	bias: -0.2
//	weights:
//	  great: 1.5
//	  dull: -1.2
//	bigrams:
//	  "not good": -2.0
type LexiconFile struct {
	Bias    float64            `yaml:"bias"`
	Weights map[string]float64 `yaml:"weights"`
	Bigrams map[string]float64 `yaml:"bigrams"`
}

type bigram struct{ a, b int }

// Lexicon is a logistic bag-of-words classifier with optional bigram
// weights: sigmoid(bias + Σ w[token] + Σ w[token_i, token_i+1]). Padding
// tokens contribute nothing. It stands in for a trained network wherever a
// cheap, deterministic scorer is enough.
type Lexicon struct {
	bias    float64
	weights []float64
	bigrams map[bigram]float64
	pad     int
}

// NewLexicon resolves a LexiconFile against a vocabulary. Words missing
// from the vocabulary are ignored.
func NewLexicon(f LexiconFile, vocab *ingest.Vocab) *Lexicon {
	l := &Lexicon{
		bias:    f.Bias,
		weights: make([]float64, vocab.Len()),
		bigrams: make(map[bigram]float64, len(f.Bigrams)),
		pad:     vocab.Pad(),
	}
	for word, w := range f.Weights {
		if i := vocab.Index(word); i != ingest.UnkIndex || word == ingest.UnkToken {
			l.weights[i] = w
		}
	}
	for pair, w := range f.Bigrams {
		parts := strings.Fields(pair)
		if len(parts) != 2 {
			continue
		}
		a, b := vocab.Index(parts[0]), vocab.Index(parts[1])
		if a == ingest.UnkIndex || b == ingest.UnkIndex {
			continue
		}
		l.bigrams[bigram{a, b}] = w
	}
	return l
}

// LoadLexicon reads a LexiconFile from path.
func LoadLexicon(path string, vocab *ingest.Vocab) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f LexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return NewLexicon(f, vocab), nil
}

// Logit returns the pre-sigmoid score of one sequence.
func (l *Lexicon) Logit(seq []int) float64 {
	z := l.bias
	prev := -1
	for _, id := range seq {
		if id == l.pad {
			prev = -1
			continue
		}
		if id >= 0 && id < len(l.weights) {
			z += l.weights[id]
		}
		if prev >= 0 {
			z += l.bigrams[bigram{prev, id}]
		}
		prev = id
	}
	return z
}

// Score implements Scorer.
func (l *Lexicon) Score(ctx context.Context, batch [][]int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(batch))
	for i, seq := range batch {
		out[i] = Sigmoid(l.Logit(seq))
	}
	return out, nil
}
