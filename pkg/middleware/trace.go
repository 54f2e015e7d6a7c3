package middleware

import (
	"math/rand/v2"
	"net/http"

	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	"github.com/corpuslab/corpus-analytics-platform/pkg/tracing"
)

// Trace opens a root span per request, using the request ID as the trace
// ID, so child spans opened by instrumented code downstream attach to it.
// Span trees are logged for every request slower than the configured
// threshold, plus a sampled fraction of the rest.
func Trace(cfg config.TracingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, GetRequestID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()
			if span.Duration >= cfg.SlowRequestThreshold.Duration || rand.Float64() < cfg.SampleRate {
				span.Log()
			}
		})
	}
}
