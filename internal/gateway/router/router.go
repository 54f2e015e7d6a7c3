// Package router wires up all API gateway routes and applies the middleware
// chain (Metrics → RequestID → CORS → Auth → RateLimit).
package router

import (
	"net/http"

	"github.com/corpuslab/corpus-analytics-platform/internal/auth/apikey"
	"github.com/corpuslab/corpus-analytics-platform/internal/auth/ratelimit"
	gwhandler "github.com/corpuslab/corpus-analytics-platform/internal/gateway/handler"
	gwmw "github.com/corpuslab/corpus-analytics-platform/internal/gateway/middleware"
	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
	pkgmw "github.com/corpuslab/corpus-analytics-platform/pkg/middleware"
)

// New builds the full gateway HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST   /api/v1/documents                              → ingestion service (proxy, write scope)
//	GET    /api/v1/documents                              → list documents    (direct DB)
//	GET    /api/v1/documents/{id}                         → get document      (direct DB)
//	GET    /api/v1/corpora                                → scorer service    (proxy)
//	GET    /api/v1/corpora/{corpus}/documents/{id}/scores → scorer service    (proxy)
//	GET    /api/v1/corpora/{corpus}/top                   → scorer service    (proxy)
//	GET    /api/v1/corpora/{corpus}/stats                 → scorer service    (proxy)
//	GET    /api/v1/corpora/{corpus}/sentiment             → scorer service    (proxy)
//	GET    /api/v1/corpora/{corpus}/topics                → scorer service    (proxy)
//	GET    /api/v1/corpora/{corpus}/correlations          → scorer service    (proxy)
//	GET    /api/v1/analytics                              → analytics service (RPC)
//	GET    /api/v1/analytics/snapshots                    → analytics service (RPC)
//	GET    /api/v1/cache/stats                            → scorer service    (proxy)
//	POST   /api/v1/cache/invalidate                       → scorer service    (proxy, write scope)
//	POST   /api/v1/admin/keys                             → create API key    (admin scope)
//	GET    /api/v1/admin/keys                             → list API keys     (admin scope)
//	POST   /api/v1/admin/keys/revoke                      → revoke API key    (admin scope)
//	GET    /health                                        → gateway health
//
// Middleware chain (outermost first):
//
//	Metrics → RequestID → CORS → Auth → RateLimit → handler
func New(h *gwhandler.Handler, validator *apikey.Validator, limiter *ratelimit.Limiter, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Health (unauthenticated)
	mux.HandleFunc("GET /health", h.Health)

	// Document API
	mux.HandleFunc("POST /api/v1/documents", gwmw.RequireScope(apikey.ScopeWrite, h.ProxyIngest))
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)

	// Scoring API
	mux.HandleFunc("GET /api/v1/corpora", h.ProxyScorer)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/documents/{id}/scores", h.ProxyScorer)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/top", h.ProxyScorer)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/stats", h.ProxyScorer)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/sentiment", h.ProxyScorer)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/topics", h.ProxyScorer)
	mux.HandleFunc("GET /api/v1/corpora/{corpus}/correlations", h.ProxyScorer)

	// Analytics API
	mux.HandleFunc("GET /api/v1/analytics", h.AnalyticsStats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.AnalyticsSnapshots)

	// Cache API (lives in the scorer, which owns the cache)
	mux.HandleFunc("GET /api/v1/cache/stats", h.ProxyScorer)
	mux.HandleFunc("POST /api/v1/cache/invalidate", gwmw.RequireScope(apikey.ScopeWrite, h.ProxyScorer))

	// Admin API
	mux.HandleFunc("POST /api/v1/admin/keys", gwmw.RequireScope(apikey.ScopeAdmin, h.CreateAPIKey))
	mux.HandleFunc("GET /api/v1/admin/keys", gwmw.RequireScope(apikey.ScopeAdmin, h.ListAPIKeys))
	mux.HandleFunc("POST /api/v1/admin/keys/revoke", gwmw.RequireScope(apikey.ScopeAdmin, h.RevokeAPIKey))

	// Middleware chain, applied inside-out:
	// request → Metrics → RequestID → CORS → Auth → RateLimit → mux
	var chain http.Handler = mux
	chain = gwmw.RateLimit(limiter)(chain)
	chain = gwmw.Auth(validator)(chain)
	chain = gwmw.CORS(gwmw.DefaultCORSConfig())(chain)
	chain = pkgmw.RequestID(chain)
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}

	return chain
}
