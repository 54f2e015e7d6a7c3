// Package tokenizer turns raw document text into the normalised terms the
// corpus layer counts. It lower-cases input, splits on non-alphanumeric
// boundaries, removes stop-words, and optionally applies Snowball stemming
// and n-gram joining. Stemming and topic modelling are library concerns;
// this package only sequences them behind a small interface.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Tokenizer converts raw text into an ordered sequence of terms.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Config selects the stages of the tokenizer chain.
type Config struct {
	MinTokenLength int
	Stemming       bool
	NGramSize      int
	ExtraStopWords []string
}

// New builds the configured chain: Simple → Stemmer → NGrams. Zero-value
// fields fall back to sensible defaults (length 2, no stemming, unigrams).
func New(cfg Config) Tokenizer {
	var t Tokenizer = NewSimple(cfg.MinTokenLength, cfg.ExtraStopWords)
	if cfg.Stemming {
		t = NewStemmer(t)
	}
	if cfg.NGramSize > 1 {
		t = NewNGrams(t, cfg.NGramSize)
	}
	return t
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {}, "all": {},
	"we": {}, "you": {}, "she": {}, "her": {}, "his": {}, "him": {},
	"i": {}, "me": {}, "my": {}, "our": {}, "your": {}, "them": {},
}

// Simple lower-cases, splits on non-letter/non-digit runes, and drops
// stop-words and tokens shorter than the minimum length.
type Simple struct {
	minLen int
	stop   map[string]struct{}
}

// NewSimple creates the base tokenizer. minLen <= 0 defaults to 2.
// extraStop entries extend the built-in English stop-word set.
func NewSimple(minLen int, extraStop []string) *Simple {
	if minLen <= 0 {
		minLen = 2
	}
	stop := make(map[string]struct{}, len(stopWords)+len(extraStop))
	for w := range stopWords {
		stop[w] = struct{}{}
	}
	for _, w := range extraStop {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Simple{minLen: minLen, stop: stop}
}

func (s *Simple) Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words)/2)
	for _, word := range words {
		if len(word) < s.minLen {
			continue
		}
		if _, isStop := s.stop[word]; isStop {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// Stemmer reduces each term of the wrapped tokenizer to its Snowball
// (Porter2) English stem. Terms the stemmer cannot process pass through
// unchanged.
type Stemmer struct {
	inner Tokenizer
}

func NewStemmer(inner Tokenizer) *Stemmer {
	return &Stemmer{inner: inner}
}

func (st *Stemmer) Tokenize(text string) []string {
	terms := st.inner.Tokenize(text)
	for i, term := range terms {
		stemmed, err := snowball.Stem(term, "english", false)
		if err != nil || stemmed == "" {
			continue
		}
		terms[i] = stemmed
	}
	return terms
}

// NGrams joins each run of n consecutive terms from the wrapped tokenizer
// into a single space-separated term, the shape used for phrase-level
// frequency analysis. n <= 1 passes terms through untouched.
type NGrams struct {
	inner Tokenizer
	n     int
}

func NewNGrams(inner Tokenizer, n int) *NGrams {
	return &NGrams{inner: inner, n: n}
}

func (ng *NGrams) Tokenize(text string) []string {
	terms := ng.inner.Tokenize(text)
	if ng.n <= 1 || len(terms) < ng.n {
		if ng.n > 1 {
			return nil
		}
		return terms
	}
	grams := make([]string, 0, len(terms)-ng.n+1)
	for i := 0; i+ng.n <= len(terms); i++ {
		grams = append(grams, strings.Join(terms[i:i+ng.n], " "))
	}
	return grams
}
