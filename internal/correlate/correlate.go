// Package correlate measures pairwise term association across the
// documents of a corpus. It counts, per term and per unordered term
// pair, how many documents contain them, and derives the phi
// correlation coefficient and pointwise mutual information from those
// document-level contingency tables.
package correlate

import (
	"math"
	"sort"
)

// Pair is an unordered term pair in canonical order (X < Y).
type Pair struct {
	X string
	Y string
}

// MakePair builds the canonical Pair for two terms.
func MakePair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{X: a, Y: b}
}

// Counter accumulates document-level term and pair frequencies. Observe
// cost grows quadratically with the number of distinct terms per
// document, so callers working with large documents cap the term set
// first.
type Counter struct {
	n   int
	nx  map[string]int
	nxy map[Pair]int
}

func NewCounter() *Counter {
	return &Counter{
		nx:  make(map[string]int),
		nxy: make(map[Pair]int),
	}
}

// Observe records one document's terms. Duplicates are collapsed; only
// presence matters at the document level.
func (c *Counter) Observe(terms []string) {
	if len(terms) == 0 {
		return
	}
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		set[term] = struct{}{}
	}
	if len(set) == 0 {
		return
	}
	distinct := make([]string, 0, len(set))
	for term := range set {
		distinct = append(distinct, term)
	}
	sort.Strings(distinct)

	c.n++
	for i, a := range distinct {
		c.nx[a]++
		for _, b := range distinct[i+1:] {
			c.nxy[Pair{X: a, Y: b}]++
		}
	}
}

// Docs returns the number of observed documents.
func (c *Counter) Docs() int {
	return c.n
}

// DocFreq returns the number of documents containing the term.
func (c *Counter) DocFreq(term string) int {
	return c.nx[term]
}

// JointFreq returns the number of documents containing both terms.
func (c *Counter) JointFreq(a, b string) int {
	return c.nxy[MakePair(a, b)]
}

// Phi returns the phi coefficient of the two terms' document-level
// 2x2 contingency table, in [-1, 1]. Degenerate tables (a term in no
// document or in every document) yield 0.
func (c *Counter) Phi(a, b string) float64 {
	na := float64(c.nx[a])
	nb := float64(c.nx[b])
	n := float64(c.n)
	n11 := float64(c.JointFreq(a, b))

	n10 := na - n11
	n01 := nb - n11
	n00 := n - na - nb + n11

	den := math.Sqrt(na * (n - na) * nb * (n - nb))
	if den == 0 {
		return 0
	}
	return (n11*n00 - n10*n01) / den
}

// PMI returns the pointwise mutual information ln(p(x,y)/(p(x)p(y))).
// Pairs that never co-occur, and terms that never occur, yield 0.
func (c *Counter) PMI(a, b string) float64 {
	na := c.nx[a]
	nb := c.nx[b]
	n11 := c.JointFreq(a, b)
	if na == 0 || nb == 0 || n11 == 0 || c.n == 0 {
		return 0
	}
	return math.Log(float64(n11) * float64(c.n) / (float64(na) * float64(nb)))
}

// Correlation is one scored term pair.
type Correlation struct {
	TermA string  `json:"term_a"`
	TermB string  `json:"term_b"`
	Phi   float64 `json:"phi"`
	PMI   float64 `json:"pmi"`
	Joint int     `json:"joint_docs"`
}

// TopPairs returns up to k co-occurring pairs ranked by phi (descending,
// ties broken lexically). Pairs where either term appears in fewer than
// minDocFreq documents are filtered out, which keeps one-off
// co-occurrences from dominating the ranking.
func (c *Counter) TopPairs(k, minDocFreq int) []Correlation {
	if minDocFreq < 1 {
		minDocFreq = 1
	}
	results := make([]Correlation, 0, len(c.nxy))
	for pair, joint := range c.nxy {
		if c.nx[pair.X] < minDocFreq || c.nx[pair.Y] < minDocFreq {
			continue
		}
		results = append(results, Correlation{
			TermA: pair.X,
			TermB: pair.Y,
			Phi:   c.Phi(pair.X, pair.Y),
			PMI:   c.PMI(pair.X, pair.Y),
			Joint: joint,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Phi != results[j].Phi {
			return results[i].Phi > results[j].Phi
		}
		if results[i].TermA != results[j].TermA {
			return results[i].TermA < results[j].TermA
		}
		return results[i].TermB < results[j].TermB
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
