package handler

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// closedAddr reserves a loopback port and releases it, yielding an address
// that refuses connections.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestHealth(t *testing.T) {
	h := New(Config{}, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"gateway"`) {
		t.Errorf("body = %q, want the service name", rec.Body.String())
	}
}

func TestProxyForwardsToBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "ingestion")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer backend.Close()

	h := New(Config{IngestionURL: backend.URL, ScorerURL: backend.URL}, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.ProxyIngest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{}`)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if got := rec.Header().Get("X-Upstream"); got != "ingestion" {
		t.Errorf("X-Upstream = %q, want the backend's header forwarded", got)
	}
}

func TestProxyUpstreamDown(t *testing.T) {
	target := "http://" + closedAddr(t)
	h := New(Config{IngestionURL: target, ScorerURL: target}, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.ProxyScorer(rec, httptest.NewRequest(http.MethodGet, "/api/v1/score", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if !strings.Contains(rec.Body.String(), "upstream service unavailable") {
		t.Errorf("body = %q, want an upstream error", rec.Body.String())
	}
}

// TestAnalyticsBreakerTrips drives the analytics RPC client against a dead
// address until the circuit opens: connection failures surface as 502, the
// open breaker as 503.
func TestAnalyticsBreakerTrips(t *testing.T) {
	h := New(Config{AnalyticsRPCAddr: closedAddr(t)}, nil, nil, nil)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.AnalyticsStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats", nil))
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("call %d: status = %d, want %d", i+1, rec.Code, http.StatusBadGateway)
		}
	}

	rec := httptest.NewRecorder()
	h.AnalyticsStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after trip = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rec.Body.String(), "temporarily unavailable") {
		t.Errorf("body = %q, want the breaker message", rec.Body.String())
	}
}

func TestCreateAPIKeyRejectsBadInput(t *testing.T) {
	h := New(Config{}, nil, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing name", `{"rate_limit":5}`},
		{"bad expiry", `{"name":"ci","expires_in":"fortnight"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.CreateAPIKey(rec, httptest.NewRequest(http.MethodPost, "/admin/keys", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestParseExpiry(t *testing.T) {
	if got, err := parseExpiry(""); err != nil || got != nil {
		t.Errorf("parseExpiry(%q) = %v, %v, want nil, nil", "", got, err)
	}
	if _, err := parseExpiry("fortnight"); err == nil {
		t.Error("parseExpiry accepted a non-duration")
	}

	got, err := parseExpiry("24h")
	if err != nil {
		t.Fatalf("parseExpiry(24h): %v", err)
	}
	want := time.Now().Add(24 * time.Hour)
	if got.Before(want.Add(-time.Minute)) || got.After(want.Add(time.Minute)) {
		t.Errorf("expiry = %v, want about %v", got, want)
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=0", 0},
		{"limit=abc", 20},
		{"limit=-3", 20},
		{"limit=500", 20},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/documents?"+tt.query, nil)
		if got := queryInt(r, "limit", 20, 100); got != tt.want {
			t.Errorf("queryInt(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
