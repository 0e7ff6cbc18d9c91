package ingest

import (
	"strings"
	"unicode"
)

// Tokenizer splits sentences into lower-cased word and punctuation tokens.
// Unlike a search tokenizer it keeps short words and punctuation, since
// every token is a candidate feature for the explanation.
type Tokenizer struct {
	stopwords map[string]struct{}
	keepPunct bool
}

// NewTokenizer creates a tokenizer that drops the given stopwords. Pass an
// empty list to keep every token.
func NewTokenizer(stopwords []string) *Tokenizer {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stops, keepPunct: true}
}

// SetKeepPunctuation controls whether punctuation runes become tokens.
func (t *Tokenizer) SetKeepPunctuation(keep bool) {
	t.keepPunct = keep
}

// Tokenize splits text into tokens. Words are runs of letters, digits,
// hyphens and apostrophes; a trailing "n't" is split off the way English
// treebank tokenizers do ("don't" → "do", "n't").
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tokens = append(tokens, t.processToken(current.String())...)
		current.Reset()
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '\'':
			current.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			if t.keepPunct && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
				if p := string(r); !t.isStopword(p) {
					tokens = append(tokens, p)
				}
			}
		}
	}
	flush()

	return tokens
}

// processToken trims stray hyphens, splits negation clitics and filters
// stopwords.
func (t *Tokenizer) processToken(token string) []string {
	word := strings.Trim(token, "-")
	if word == "" {
		return nil
	}

	parts := []string{word}
	if strings.HasSuffix(word, "n't") && len(word) > 3 {
		parts = []string{strings.TrimSuffix(word, "n't"), "n't"}
	}

	out := parts[:0]
	for _, p := range parts {
		if !t.isStopword(p) {
			out = append(out, p)
		}
	}
	return out
}

func (t *Tokenizer) isStopword(word string) bool {
	_, ok := t.stopwords[word]
	return ok
}

// AddStopword adds a word to the stopword list
func (t *Tokenizer) AddStopword(word string) {
	t.stopwords[strings.ToLower(word)] = struct{}{}
}

// RemoveStopword removes a word from the stopword list
func (t *Tokenizer) RemoveStopword(word string) {
	delete(t.stopwords, strings.ToLower(word))
}

// Truncate keeps at most n leading tokens. n == 0 disables truncation.
func Truncate(tokens []string, n int) []string {
	if n <= 0 || len(tokens) <= n {
		return tokens
	}
	return tokens[:n]
}
