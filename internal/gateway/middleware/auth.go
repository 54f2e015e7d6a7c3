// Package middleware provides the gateway's HTTP middleware: API key
// authentication, scope enforcement, per-key rate limiting, and CORS.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/corpuslab/corpus-analytics-platform/internal/auth/apikey"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
)

type contextKey string

const apiKeyInfoKey contextKey = "api_key_info"

// keyValidator is the part of apikey.Validator the middleware calls.
type keyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// Auth validates the API key on every request. Keys are accepted from
// Authorization: Bearer, the X-API-Key header, or the api_key query
// parameter, in that order. Probe and scrape paths are exempt.
func Auth(validator *apikey.Validator) func(http.Handler) http.Handler {
	return auth(validator)
}

func auth(validator keyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				writeError(w, apperrors.HTTPStatusCode(apperrors.ErrUnauthorized), "missing api key")
				return
			}

			info, err := validator.Validate(r.Context(), key)
			if err != nil {
				status, msg := authFailure(err)
				writeError(w, status, msg)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authFailure maps a validation error to a response. Key problems are 401;
// anything else means the validator itself broke, and the client should not
// learn more than that.
func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, apikey.ErrInvalidKey):
		return http.StatusUnauthorized, "invalid api key"
	case errors.Is(err, apikey.ErrExpiredKey):
		return http.StatusUnauthorized, "expired api key"
	default:
		return http.StatusInternalServerError, "authentication error"
	}
}

// RequireScope wraps a handler so it only serves keys carrying the given
// scope. It must run inside Auth, which stores the KeyInfo in the context.
func RequireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := GetKeyInfo(r.Context())
		if info == nil {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}
		if !info.HasScope(scope) {
			writeError(w, http.StatusForbidden, "api key lacks scope: "+scope)
			return
		}
		next(w, r)
	}
}

// GetKeyInfo retrieves the validated KeyInfo from the request context.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey).(*apikey.KeyInfo)
	return info
}

// exemptPath reports whether the path skips authentication and rate
// limiting (probes and scrapes carry no API key).
func exemptPath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}

// extractAPIKey reads the API key from the request, preferring headers
// over the query parameter.
func extractAPIKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// writeError sends a JSON error body. The message goes through the JSON
// encoder, not string concatenation, so reflected input cannot corrupt
// the payload.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
