// Package integration verifies the gateway's full middleware and proxy
// wiring against a real PostgreSQL database. The backend services it proxies
// to (ingestion, scorer) are canned httptest servers; everything on the
// gateway side (auth, scopes, rate limiting, routing) is the real thing.
//
// Run with:
//
//	go test -v ./test/integration/...
//
// Tests skip themselves when PostgreSQL is unavailable.
package integration

import (
	"bytes"
	"cmp"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/internal/auth/apikey"
	"github.com/corpuslab/corpus-analytics-platform/internal/auth/ratelimit"
	gwhandler "github.com/corpuslab/corpus-analytics-platform/internal/gateway/handler"
	"github.com/corpuslab/corpus-analytics-platform/internal/gateway/router"
	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
)

// skipIfNoPostgres connects to the test database or skips the test.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "corpusanalytics_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "corpusanalytics"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: config.Duration{Duration: 5 * time.Minute},
	})
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newGatewayServer wires a gateway over db with stub ingestion and scorer
// backends behind it.
func newGatewayServer(t *testing.T, db *postgres.Client) *httptest.Server {
	t.Helper()

	ingestionBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"document_id": "00000000-0000-0000-0000-000000000001",
			"corpus":      "news",
			"status":      "PENDING",
		})
	}))
	t.Cleanup(ingestionBackend.Close)

	scorerBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"corpus":  r.PathValue("corpus"),
			"results": []any{},
		})
	}))
	t.Cleanup(scorerBackend.Close)

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)
	t.Cleanup(limiter.Close)

	h := gwhandler.New(gwhandler.Config{
		IngestionURL:     ingestionBackend.URL,
		ScorerURL:        scorerBackend.URL,
		AnalyticsRPCAddr: "localhost:0", // not exercised here
	}, db, validator, nil)

	srv := httptest.NewServer(router.New(h, validator, limiter, nil))
	t.Cleanup(srv.Close)
	return srv
}

// newTestKey creates an API key directly through the validator, bypassing
// the gateway's admin endpoints (which themselves require a key).
func newTestKey(t *testing.T, db *postgres.Client, name string, rateLimit int, scopes []string) string {
	t.Helper()
	rawKey, err := apikey.NewValidator(db).CreateKey(t.Context(), name, rateLimit, scopes, nil)
	if err != nil {
		t.Fatalf("creating key %q: %v", name, err)
	}
	return rawKey
}

// do issues one request with optional API key and JSON body, returning the
// status code and response body.
func do(t *testing.T, method, url, key, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("building %s %s: %v", method, url, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody
}

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)

	status, body := do(t, "GET", srv.URL+"/health", "", "")
	if status != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", status)
	}
	var parsed map[string]string
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if parsed["status"] != "ok" {
		t.Errorf("status = %q, want ok", parsed["status"])
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)

	for _, path := range []string{
		"/api/v1/corpora",
		"/api/v1/corpora/news/top?limit=5",
		"/api/v1/documents",
		"/api/v1/analytics",
	} {
		if status, _ := do(t, "GET", srv.URL+path, "", ""); status != http.StatusUnauthorized {
			t.Errorf("GET %s without key = %d, want 401", path, status)
		}
	}
}

// A key must work immediately after creation and stop working immediately
// after revocation.
func TestAPIKeyLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	rawKey := newTestKey(t, db, "integration-test", 100, nil)

	scoreURL := srv.URL + "/api/v1/corpora/news/top?limit=5"
	if status, body := do(t, "GET", scoreURL, rawKey, ""); status != http.StatusOK {
		t.Fatalf("scoring with fresh key = %d, want 200: %s", status, body)
	}

	if err := apikey.NewValidator(db).RevokeKey(t.Context(), rawKey); err != nil {
		t.Fatalf("revoking key: %v", err)
	}
	if status, _ := do(t, "GET", scoreURL, rawKey, ""); status != http.StatusUnauthorized {
		t.Errorf("scoring with revoked key = %d, want 401", status)
	}
}

func TestDocumentIngestProxy(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	rawKey := newTestKey(t, db, "ingest-test", 100, []string{apikey.ScopeRead, apikey.ScopeWrite})

	payload, _ := json.Marshal(map[string]string{
		"corpus": "news",
		"title":  "Test Document",
		"body":   "This is a test document for integration testing.",
	})
	status, body := do(t, "POST", srv.URL+"/api/v1/documents", rawKey, string(payload))
	if status != http.StatusAccepted {
		t.Fatalf("POST /api/v1/documents = %d, want 202: %s", status, body)
	}
	if !bytes.Contains(body, []byte("PENDING")) {
		t.Errorf("proxied response missing PENDING status: %s", body)
	}
}

// A read-only key reaches scoring but not write or admin endpoints.
func TestScopeEnforcement(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	rawKey := newTestKey(t, db, "readonly-test", 100, []string{apikey.ScopeRead})

	for _, tc := range []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/documents"},
		{"POST", "/api/v1/cache/invalidate"},
		{"GET", "/api/v1/admin/keys"},
	} {
		if status, _ := do(t, tc.method, srv.URL+tc.path, rawKey, "{}"); status != http.StatusForbidden {
			t.Errorf("%s %s with read scope = %d, want 403", tc.method, tc.path, status)
		}
	}
}

func TestRateLimiting(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	rawKey := newTestKey(t, db, "ratelimit-test", 2, nil)

	for i := range 2 {
		if status, _ := do(t, "GET", srv.URL+"/api/v1/corpora", rawKey, ""); status != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i+1, status)
		}
	}
	if status, _ := do(t, "GET", srv.URL+"/api/v1/corpora", rawKey, ""); status != http.StatusTooManyRequests {
		t.Errorf("request over limit = %d, want 429", status)
	}
}

func envOrDefault(key, fallback string) string {
	return cmp.Or(os.Getenv(key), fallback)
}

func envOrDefaultInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}
