package middleware

import (
	"net/http"
	"strconv"

	"github.com/corpuslab/corpus-analytics-platform/internal/auth/ratelimit"
	apperrors "github.com/corpuslab/corpus-analytics-platform/pkg/errors"
)

// RateLimit enforces each key's configured allowance. It reads the KeyInfo
// that Auth stored in the context; requests without one pass through
// (exempt paths never reach Auth, everything else was already rejected
// by it).
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(limiter.Window().Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			info := GetKeyInfo(r.Context())
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(info.ID, info.RateLimit) {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, apperrors.HTTPStatusCode(apperrors.ErrRateLimited), apperrors.ErrRateLimited.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
