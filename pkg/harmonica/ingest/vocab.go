package ingest

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

const (
	UnkToken = "<unk>"
	PadToken = "<pad>"

	UnkIndex = 0
	PadIndex = 1
)

// Vocab maps tokens to dense indices. Index 0 is the unknown token and
// index 1 the padding token; everything else is ordered by descending
// training frequency.
type Vocab struct {
	itos []string
	stoi map[string]int
}

type vocabFile struct {
	Tokens []string `yaml:"tokens"`
}

// NewVocab builds a vocabulary from an ordered token list. The special
// tokens are added in front when missing.
func NewVocab(tokens []string) *Vocab {
	v := &Vocab{stoi: make(map[string]int, len(tokens)+2)}
	v.add(UnkToken)
	v.add(PadToken)
	for _, tok := range tokens {
		v.add(tok)
	}
	return v
}

func (v *Vocab) add(tok string) {
	if _, ok := v.stoi[tok]; ok {
		return
	}
	v.stoi[tok] = len(v.itos)
	v.itos = append(v.itos, tok)
}

// BuildVocab counts tokens over the tokenized sentences and keeps the
// maxSize most frequent ones (0 keeps all). Ties are broken alphabetically.
func BuildVocab(sentences [][]string, maxSize int) *Vocab {
	counts := make(map[string]int)
	for _, sent := range sentences {
		for _, tok := range sent {
			counts[tok]++
		}
	}
	delete(counts, UnkToken)
	delete(counts, PadToken)

	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	if maxSize > 0 && len(tokens) > maxSize {
		tokens = tokens[:maxSize]
	}
	return NewVocab(tokens)
}

// LoadVocab reads a vocabulary written by Save.
func LoadVocab(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f vocabFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse vocab %s: %w", path, err)
	}
	if len(f.Tokens) < 2 || f.Tokens[UnkIndex] != UnkToken || f.Tokens[PadIndex] != PadToken {
		return nil, fmt.Errorf("vocab %s: special tokens missing: %w", path, internalerr.ErrInvalidInput)
	}
	return NewVocab(f.Tokens), nil
}

// Save writes the vocabulary as YAML.
func (v *Vocab) Save(path string) error {
	data, err := yaml.Marshal(vocabFile{Tokens: v.itos})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Len is the number of entries, special tokens included.
func (v *Vocab) Len() int {
	return len(v.itos)
}

// Index returns the token's index, or UnkIndex for unknown tokens.
func (v *Vocab) Index(tok string) int {
	if i, ok := v.stoi[tok]; ok {
		return i
	}
	return UnkIndex
}

// Token returns the token at index i.
func (v *Vocab) Token(i int) string {
	if i < 0 || i >= len(v.itos) {
		return UnkToken
	}
	return v.itos[i]
}

// Pad is the padding index.
func (v *Vocab) Pad() int {
	return PadIndex
}

// Encode maps tokens to indices, right-padding with the pad index up to
// length. Longer inputs are cut to length.
func (v *Vocab) Encode(tokens []string, length int) []int {
	out := make([]int, length)
	for i := range out {
		if i < len(tokens) {
			out[i] = v.Index(tokens[i])
		} else {
			out[i] = PadIndex
		}
	}
	return out
}
