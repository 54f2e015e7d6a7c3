package middleware

import "testing"

// TestNormalizePath verifies that variable route segments collapse into
// placeholders while fixed segments survive.
func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/corpora", "/api/v1/corpora"},
		{"/api/v1/corpora/news/top", "/api/v1/corpora/{corpus}/top"},
		{"/api/v1/corpora/news/documents/doc-42/scores", "/api/v1/corpora/{corpus}/documents/{id}/scores"},
		{"/api/v1/documents", "/api/v1/documents"},
		{"/api/v1/documents/3f2b", "/api/v1/documents/{id}"},
		{"/api/v1/cache/stats", "/api/v1/cache/stats"},
		{"/api/v1/corpora//news/top", "/api/v1/corpora//{corpus}/top"},
	}

	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
