// Package handler implements the gateway's HTTP endpoints: reverse proxies
// to the ingestion and scorer services, document metadata reads from
// PostgreSQL, API key administration, and analytics served over the internal
// RPC layer.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/internal/auth/apikey"
	"github.com/corpuslab/corpus-analytics-platform/pkg/grpc"
	"github.com/corpuslab/corpus-analytics-platform/pkg/metrics"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
	"github.com/corpuslab/corpus-analytics-platform/pkg/proto"
	"github.com/corpuslab/corpus-analytics-platform/pkg/resilience"
)

// Config holds the addresses of the backend services the gateway fronts.
type Config struct {
	IngestionURL     string
	ScorerURL        string
	AnalyticsRPCAddr string
}

type Handler struct {
	ingestionProxy *httputil.ReverseProxy
	scorerProxy    *httputil.ReverseProxy
	db             *postgres.Client
	keyValidator   *apikey.Validator
	analytics      *analyticsClient
	logger         *slog.Logger
}

// New creates a gateway Handler for the given backends. m may be nil when
// metrics are disabled.
func New(cfg Config, db *postgres.Client, keyValidator *apikey.Validator, m *metrics.Metrics) *Handler {
	logger := slog.Default().With("component", "gateway-handler")
	return &Handler{
		ingestionProxy: newProxy(cfg.IngestionURL, logger),
		scorerProxy:    newProxy(cfg.ScorerURL, logger),
		db:             db,
		keyValidator:   keyValidator,
		analytics:      newAnalyticsClient(cfg.AnalyticsRPCAddr, m),
		logger:         logger,
	}
}

func newProxy(target string, logger *slog.Logger) *httputil.ReverseProxy {
	u, _ := url.Parse(target)
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed", "upstream", target, "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream service unavailable"}`))
	}
	return proxy
}

// ProxyIngest forwards document submissions to the ingestion service.
func (h *Handler) ProxyIngest(w http.ResponseWriter, r *http.Request) {
	h.ingestionProxy.ServeHTTP(w, r)
}

// ProxyScorer forwards scoring and cache requests to the scorer service.
func (h *Handler) ProxyScorer(w http.ResponseWriter, r *http.Request) {
	h.scorerProxy.ServeHTTP(w, r)
}

// AnalyticsStats serves the live aggregated stats fetched from the analytics
// service over RPC.
func (h *Handler) AnalyticsStats(w http.ResponseWriter, r *http.Request) {
	var resp proto.StatsResponse
	if err := h.analytics.call(r.Context(), "AnalyticsService.Stats", proto.StatsRequest{}, &resp); err != nil {
		h.writeAnalyticsError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// AnalyticsSnapshots serves persisted analytics snapshots fetched over RPC.
func (h *Handler) AnalyticsSnapshots(w http.ResponseWriter, r *http.Request) {
	req := proto.SnapshotsRequest{
		Limit: int32(queryInt(r, "limit", 10, 100)),
	}
	var resp proto.SnapshotsResponse
	if err := h.analytics.call(r.Context(), "AnalyticsService.Snapshots", req, &resp); err != nil {
		h.writeAnalyticsError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// writeAnalyticsError distinguishes a tripped breaker, which is expected and
// quiet, from an actual RPC failure, which is logged.
func (h *Handler) writeAnalyticsError(w http.ResponseWriter, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		h.writeError(w, http.StatusServiceUnavailable, "analytics temporarily unavailable")
		return
	}
	h.logger.Error("analytics rpc failed", "error", err)
	h.writeError(w, http.StatusBadGateway, "analytics service unavailable")
}

// documentRecord is the full metadata row served for a single document.
type documentRecord struct {
	ID          string     `json:"id"`
	Corpus      string     `json:"corpus"`
	Title       string     `json:"title"`
	ContentHash string     `json:"content_hash"`
	ContentSize int        `json:"content_size"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	AnalyzedAt  *time.Time `json:"analyzed_at,omitempty"`
}

// documentSummary is the abbreviated row used in listings.
type documentSummary struct {
	ID        string    `json:"id"`
	Corpus    string    `json:"corpus"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// GetDocument serves one document's metadata straight from PostgreSQL. The
// body itself is not stored; only the analyzer ever saw it.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing document id")
		return
	}

	var doc documentRecord
	row := h.db.DB.QueryRowContext(r.Context(),
		`SELECT id, corpus, title, content_hash, content_size, status, created_at, analyzed_at
		 FROM documents WHERE id = $1`, id)
	switch err := row.Scan(&doc.ID, &doc.Corpus, &doc.Title, &doc.ContentHash, &doc.ContentSize,
		&doc.Status, &doc.CreatedAt, &doc.AnalyzedAt); {
	case errors.Is(err, sql.ErrNoRows):
		h.writeError(w, http.StatusNotFound, "document not found")
	case err != nil:
		h.logger.Error("document lookup failed", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not load document")
	default:
		h.writeJSON(w, http.StatusOK, doc)
	}
}

// ListDocuments serves paginated document metadata, newest first, optionally
// filtered to one corpus via ?corpus=.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 100)
	offset := queryInt(r, "offset", 0, 1<<30)

	query := `SELECT id, corpus, title, status, created_at FROM documents`
	var args []any
	if corpus := r.URL.Query().Get("corpus"); corpus != "" {
		query += ` WHERE corpus = $1`
		args = append(args, corpus)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := h.db.DB.QueryContext(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("document listing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not list documents")
		return
	}
	defer rows.Close()

	docs := make([]documentSummary, 0)
	for rows.Next() {
		var d documentSummary
		if err := rows.Scan(&d.ID, &d.Corpus, &d.Title, &d.Status, &d.CreatedAt); err != nil {
			h.logger.Warn("skipping unreadable document row", "error", err)
			continue
		}
		docs = append(docs, d)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
		"limit":     limit,
		"offset":    offset,
	})
}

// createKeyRequest is the admin payload for minting a key. ExpiresIn is a Go
// duration string such as "720h"; empty means the key never expires.
type createKeyRequest struct {
	Name      string   `json:"name"`
	RateLimit int      `json:"rate_limit"`
	Scopes    []string `json:"scopes,omitempty"`
	ExpiresIn string   `json:"expires_in,omitempty"`
}

// defaultKeyRateLimit applies when the admin omits rate_limit.
const defaultKeyRateLimit = 100

// parseExpiry converts an optional duration string into an absolute expiry.
// Empty input means no expiry and yields nil.
func parseExpiry(expiresIn string) (*time.Time, error) {
	if expiresIn == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(expiresIn)
	if err != nil {
		return nil, err
	}
	t := time.Now().Add(d)
	return &t, nil
}

// CreateAPIKey mints a new key and returns the raw value, shown exactly once.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = defaultKeyRateLimit
	}
	expiresAt, err := parseExpiry(req.ExpiresIn)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "expires_in must be a duration such as 720h")
		return
	}

	key, err := h.keyValidator.CreateKey(r.Context(), req.Name, req.RateLimit, req.Scopes, expiresAt)
	if err != nil {
		h.logger.Error("api key creation failed", "name", req.Name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not create api key")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"api_key": key,
		"name":    req.Name,
		"message": "store this key securely; it cannot be retrieved again",
	})
}

// ListAPIKeys serves all active keys, hashes excluded.
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keyValidator.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("api key listing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not list api keys")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

// RevokeAPIKey deactivates the raw key named in the request body.
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		h.writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := h.keyValidator.RevokeKey(r.Context(), req.Key); err != nil {
		if errors.Is(err, apikey.ErrInvalidKey) {
			h.writeError(w, http.StatusNotFound, "key not found")
			return
		}
		h.logger.Error("api key revocation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "could not revoke api key")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// Health reports the gateway process itself; backend reachability is the
// proxies' problem, surfaced per request.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "gateway"})
}

// analyticsClient wraps the internal RPC client with a circuit breaker and
// lazy reconnects, so a restarting analytics service does not take the
// gateway down with it.
type analyticsClient struct {
	addr    string
	breaker *resilience.CircuitBreaker

	mu     sync.Mutex
	client *grpc.Client
}

func newAnalyticsClient(addr string, m *metrics.Metrics) *analyticsClient {
	cbCfg := resilience.CircuitBreakerConfig{}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &analyticsClient{
		addr:    addr,
		breaker: resilience.NewCircuitBreaker("analytics-rpc", cbCfg),
	}
}

// analyticsCallTimeout bounds one RPC round trip. A call that exceeds it
// drops the connection: the late response would otherwise be read as the
// reply to the next request on the same connection.
const analyticsCallTimeout = 5 * time.Second

func (ac *analyticsClient) call(ctx context.Context, method string, params any, result any) error {
	return ac.breaker.Execute(func() error {
		client, err := ac.conn()
		if err != nil {
			return err
		}
		err = resilience.WithTimeout(ctx, analyticsCallTimeout, method, func(context.Context) error {
			return client.Call(method, params, result)
		})
		if err != nil {
			ac.drop(client)
			return err
		}
		return nil
	})
}

func (ac *analyticsClient) conn() (*grpc.Client, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.client != nil {
		return ac.client, nil
	}
	client, err := grpc.Dial(ac.addr)
	if err != nil {
		return nil, err
	}
	ac.client = client
	return client, nil
}

// drop discards a connection after a failed call so the next call redials.
func (ac *analyticsClient) drop(client *grpc.Client) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.client == client {
		ac.client.Close()
		ac.client = nil
	}
}

// queryInt reads an integer query parameter, falling back to def when the
// value is missing, unparseable, negative, or above max.
func queryInt(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 || parsed > max {
		return def
	}
	return parsed
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("response write failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
