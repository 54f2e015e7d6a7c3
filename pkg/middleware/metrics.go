// Package middleware provides the HTTP middleware shared by the platform's
// services: request IDs, Prometheus metrics, request timeouts, and trace
// sampling.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
)

// Metrics records request count, latency, and an in-flight gauge for every
// request passing through. Paths are normalized before becoming label
// values; corpus names and document IDs must not blow up label cardinality.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter captures the response status code on its way through.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.status = code
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer so http.ResponseController can reach
// Flush and friends through the wrapper.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// normalizePath collapses the variable segments of scoring routes onto
// placeholders, so /api/v1/corpora/news/documents/42/scores and its siblings
// share one label value per route shape. The previous non-empty segment
// decides what a segment is, which keeps repeated slashes from leaking raw
// values into labels.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	prev := ""
	for i, part := range parts {
		if part == "" {
			continue
		}
		switch prev {
		case "corpora":
			parts[i] = "{corpus}"
		case "documents":
			parts[i] = "{id}"
		}
		prev = part
	}
	return strings.Join(parts, "/")
}
