// Package sentiment scores documents by joining their terms against a
// valence lexicon. The join is strict: terms absent from the lexicon
// contribute nothing, mirroring the inner-join shape of tidy sentiment
// analysis. Scores are count-weighted sums of word valences in the
// AFINN convention (-5 strongly negative to +5 strongly positive).
package sentiment

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
)

// Lexicon maps lower-cased words to integer valences.
type Lexicon map[string]int

// Builtin returns the compact default lexicon. It favours words whose
// normalised form matches their surface form, so it behaves the same on
// stemmed and unstemmed corpora for most entries.
func Builtin() Lexicon {
	return Lexicon{
		"abandon": -2, "abuse": -3, "adore": 3, "afraid": -2,
		"anger": -3, "angry": -3, "awful": -3, "bad": -3,
		"best": 3, "betray": -3, "blame": -2, "bless": 2,
		"bright": 1, "broken": -1, "calm": 2, "chaos": -2,
		"cheer": 2, "clean": 2, "crash": -2, "cruel": -3,
		"cry": -1, "damn": -2, "dark": -1, "dead": -3,
		"dear": 2, "death": -2, "despair": -3, "dire": -3,
		"doubt": -1, "dread": -2, "evil": -3, "fail": -2,
		"fair": 2, "fear": -2, "fine": 2, "fond": 2,
		"free": 1, "fresh": 1, "glad": 3, "gloom": -2,
		"good": 3, "grand": 3, "great": 3, "grief": -2,
		"happy": 3, "harm": -2, "hate": -3, "hell": -4,
		"hope": 2, "hurt": -2, "joy": 3, "kind": 2,
		"laugh": 1, "lone": -2, "lost": -3, "love": 3,
		"luck": 3, "mad": -3, "misery": -2, "noble": 2,
		"pain": -2, "peace": 2, "poor": -2, "proud": 2,
		"rage": -2, "regret": -2, "rich": 2, "sad": -2,
		"safe": 1, "scare": -2, "shame": -2, "smile": 2,
		"sorrow": -2, "strong": 2, "sweet": 2, "terror": -3,
		"thank": 2, "trust": 1, "ugly": -3, "warm": 1,
		"weak": -2, "weep": -2, "win": 4, "wise": 2,
		"woe": -3, "worry": -3, "worse": -3, "worst": -3,
	}
}

// LoadFile reads a YAML lexicon of `word: valence` pairs, replacing the
// builtin set. Words are lower-cased; zero valences are kept so a file
// can deliberately neutralise a word.
func LoadFile(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon file %s: %w", path, err)
	}
	raw := make(map[string]int)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing lexicon file %s: %w", path, err)
	}
	lex := make(Lexicon, len(raw))
	for word, valence := range raw {
		lex[strings.ToLower(strings.TrimSpace(word))] = valence
	}
	return lex, nil
}

// DocumentSentiment is the per-document result of a lexicon join.
type DocumentSentiment struct {
	DocumentID  string  `json:"document_id"`
	Score       int     `json:"score"`
	Comparative float64 `json:"comparative"`
	Positive    int     `json:"positive"`
	Negative    int     `json:"negative"`
	Matched     int     `json:"matched"`
}

// Analyzer joins term counts against a fixed lexicon.
type Analyzer struct {
	lexicon Lexicon
}

// NewAnalyzer creates an Analyzer. A nil lexicon selects the builtin one.
func NewAnalyzer(lex Lexicon) *Analyzer {
	if lex == nil {
		lex = Builtin()
	}
	return &Analyzer{lexicon: lex}
}

// Analyze computes one DocumentSentiment per document present in the
// records, sorted by document ID. Score is the count-weighted valence
// sum, Positive and Negative count matched occurrences by sign, Matched
// counts distinct matched terms, and Comparative divides Score by the
// document's total term occurrences.
func (a *Analyzer) Analyze(records []tfidf.TermCount) []DocumentSentiment {
	totals := tfidf.DocumentTotals(records)

	results := make(map[string]*DocumentSentiment, len(totals))
	for _, rec := range records {
		res, ok := results[rec.DocumentID]
		if !ok {
			res = &DocumentSentiment{DocumentID: rec.DocumentID}
			results[rec.DocumentID] = res
		}
		valence, matched := a.lexicon[rec.Term]
		if !matched {
			continue
		}
		res.Score += valence * rec.Count
		res.Matched++
		if valence > 0 {
			res.Positive += rec.Count
		} else if valence < 0 {
			res.Negative += rec.Count
		}
	}

	out := make([]DocumentSentiment, 0, len(results))
	for docID, res := range results {
		if total := totals[docID]; total > 0 {
			res.Comparative = float64(res.Score) / float64(total)
		}
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}
