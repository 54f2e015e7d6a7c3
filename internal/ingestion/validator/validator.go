// Package validator provides input validation for ingestion requests. It
// enforces corpus naming, title, and body constraints and returns per-field
// error details.
package validator

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/corpuslab/corpus-analytics-platform/internal/ingestion"
)

const (
	maxCorpusLength  = 64
	maxTitleLength   = 1024
	maxBodyLength    = 1048576
	maxIdemKeyLength = 255
)

// Corpus names double as snapshot directory names and cache key segments,
// so only a conservative slug alphabet is allowed.
var corpusNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

// Error lists the failures in field order, so the same bad request always
// produces the same message.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, field+":"+e.Fields[field])
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks that the corpus name, title, and body of the
// request meet the required constraints and returns a ValidationError if not.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)
	checkCorpus(errs, req.Corpus)
	checkTitle(errs, req.Title)
	checkBody(errs, req.Body)
	if len(req.IdempotencyKey) > maxIdemKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxIdemKeyLength)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkCorpus(errs map[string]string, corpus string) {
	switch corpus = strings.TrimSpace(corpus); {
	case corpus == "":
		errs["corpus"] = "corpus is required"
	case len(corpus) > maxCorpusLength:
		errs["corpus"] = fmt.Sprintf("corpus must be at most %d characters", maxCorpusLength)
	case !corpusNamePattern.MatchString(corpus):
		errs["corpus"] = "corpus must contain only lowercase letters, digits, and dashes"
	}
}

func checkTitle(errs map[string]string, title string) {
	switch title = strings.TrimSpace(title); {
	case title == "":
		errs["title"] = "title is required"
	case len(title) > maxTitleLength:
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
}

func checkBody(errs map[string]string, body string) {
	switch body = strings.TrimSpace(body); {
	case body == "":
		errs["body"] = "Body is requred and must not be empty"
	case len(body) > maxBodyLength:
		errs["body"] = fmt.Sprintf("body must be at most %d characters", maxBodyLength)
	}
}
