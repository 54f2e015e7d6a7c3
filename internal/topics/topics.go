// Package topics fits Latent Dirichlet Allocation models over the
// documents of a corpus. Model fitting is delegated wholesale to
// james-bowman/nlp; this package rebuilds the vectoriser input from
// stored term counts and reshapes the output matrices into topic and
// mixture summaries.
package topics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"

	"github.com/corpuslab/corpus-analytics-platform/internal/tfidf"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
)

// WeightedTerm is one vocabulary term with its topic weight.
type WeightedTerm struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Topic is one fitted topic described by its heaviest terms.
type Topic struct {
	Index int            `json:"index"`
	Terms []WeightedTerm `json:"terms"`
}

// DocumentMixture is one document's probability distribution over topics.
type DocumentMixture struct {
	DocumentID string    `json:"document_id"`
	Weights    []float64 `json:"weights"`
}

// Result is a fitted topic model.
type Result struct {
	TopicCount int               `json:"topic_count"`
	Topics     []Topic           `json:"topics"`
	Mixtures   []DocumentMixture `json:"mixtures"`
}

// Modeler configures LDA fitting. Zero values fall back to defaults at
// Fit time (10 top terms, the library's iteration count).
type Modeler struct {
	TopicCount int
	Iterations int
	TopTerms   int
	Processes  int
}

// NewModeler creates a Modeler for the given topic count.
func NewModeler(topicCount, iterations, topTerms int) *Modeler {
	return &Modeler{
		TopicCount: topicCount,
		Iterations: iterations,
		TopTerms:   topTerms,
	}
}

// Fit trains an LDA model on the given term counts. Documents are
// rebuilt as bags of words (each term repeated by its count) so the
// vectoriser sees the analyzer's normalised terms. At least one topic
// and two documents are required.
func (m *Modeler) Fit(records []tfidf.TermCount) (*Result, error) {
	if m.TopicCount < 1 {
		return nil, fmt.Errorf("topic count %d: %w", m.TopicCount, apperrors.ErrInvalidInput)
	}

	docIDs, bags := buildBags(records)
	if len(bags) < 2 {
		return nil, fmt.Errorf("topic modeling needs at least 2 documents, have %d: %w",
			len(bags), apperrors.ErrInvalidInput)
	}

	topTerms := m.TopTerms
	if topTerms <= 0 {
		topTerms = 10
	}

	vectoriser := nlp.NewCountVectoriser()
	lda := nlp.NewLatentDirichletAllocation(m.TopicCount)
	if m.Iterations > 0 {
		lda.Iterations = m.Iterations
	}
	if m.Processes > 0 {
		lda.Processes = m.Processes
	}

	pipeline := nlp.NewPipeline(vectoriser, lda)
	docsOverTopics, err := pipeline.FitTransform(bags...)
	if err != nil {
		return nil, fmt.Errorf("fitting lda model: %w", err)
	}

	// Invert the vocabulary: column index → term.
	vocab := make([]string, len(vectoriser.Vocabulary))
	for term, idx := range vectoriser.Vocabulary {
		vocab[idx] = term
	}

	topicsOverWords := lda.Components()
	topicRows, vocabCols := topicsOverWords.Dims()
	topics := make([]Topic, 0, topicRows)
	for topic := 0; topic < topicRows; topic++ {
		terms := make([]WeightedTerm, 0, vocabCols)
		for word := 0; word < vocabCols; word++ {
			terms = append(terms, WeightedTerm{
				Term:   vocab[word],
				Weight: topicsOverWords.At(topic, word),
			})
		}
		sort.Slice(terms, func(i, j int) bool {
			if terms[i].Weight != terms[j].Weight {
				return terms[i].Weight > terms[j].Weight
			}
			return terms[i].Term < terms[j].Term
		})
		if len(terms) > topTerms {
			terms = terms[:topTerms]
		}
		topics = append(topics, Topic{Index: topic, Terms: terms})
	}

	// Rows are topics, columns are documents; each column is one
	// document's distribution over topics.
	_, cols := docsOverTopics.Dims()
	mixtures := make([]DocumentMixture, 0, cols)
	for doc := 0; doc < cols; doc++ {
		mixtures = append(mixtures, DocumentMixture{
			DocumentID: docIDs[doc],
			Weights:    mat.Col(nil, doc, docsOverTopics),
		})
	}

	return &Result{
		TopicCount: m.TopicCount,
		Topics:     topics,
		Mixtures:   mixtures,
	}, nil
}

// buildBags groups records by document and rebuilds each document as a
// space-joined bag of words in sorted document order.
func buildBags(records []tfidf.TermCount) ([]string, []string) {
	byDoc := make(map[string][]tfidf.TermCount)
	for _, rec := range records {
		byDoc[rec.DocumentID] = append(byDoc[rec.DocumentID], rec)
	}
	docIDs := make([]string, 0, len(byDoc))
	for docID := range byDoc {
		docIDs = append(docIDs, docID)
	}
	sort.Strings(docIDs)

	bags := make([]string, 0, len(docIDs))
	for _, docID := range docIDs {
		var b strings.Builder
		for _, rec := range byDoc[docID] {
			for i := 0; i < rec.Count; i++ {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(rec.Term)
			}
		}
		bags = append(bags, b.String())
	}
	return docIDs, bags
}
