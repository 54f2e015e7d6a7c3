// Package apikey issues and validates the platform's API keys. Only the
// SHA-256 digest of a key is stored in PostgreSQL; the raw key exists
// exactly once, in the response that created it. Each key carries a scope
// set (read, write, admin) and a per-minute rate limit, and validation
// results are cached briefly so the gateway does not hit PostgreSQL on
// every request.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/corpuslab/corpus-analytics-platform/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// Well-known scopes. Read covers all scoring endpoints, Write covers
// ingestion and cache invalidation, Admin covers key management.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// validationCacheTTL bounds how long a revoked or expired key keeps working.
const validationCacheTTL = 30 * time.Second

// rawKeyPrefix marks minted keys so leaked ones are recognisable in logs
// and by secret scanners. The prefix is part of the hashed value.
const rawKeyPrefix = "ca_"

// KeyInfo holds metadata about a validated API key.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	Scopes    []string   `json:"scopes"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// HasScope reports whether the key carries the given scope. Admin keys
// implicitly carry every scope.
func (k *KeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}

func (k *KeyInfo) expired() bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now())
}

type cachedKey struct {
	info      *KeyInfo
	expiresAt time.Time
}

// Validator answers whether a presented key is good, backed by the api_keys
// table.
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedKey
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
		cache:  make(map[string]cachedKey),
	}
}

// Validate checks a raw key against the cache, then the database. It
// returns ErrInvalidKey for unknown or revoked keys and ErrExpiredKey for
// known ones past their expiry.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	hash := HashKey(rawKey)

	if info, ok := v.cachedInfo(hash); ok {
		if info.expired() {
			return nil, ErrExpiredKey
		}
		return info, nil
	}

	row := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, rate_limit, scopes, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`, hash)
	info, err := scanKeyInfo(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrInvalidKey
	case err != nil:
		return nil, fmt.Errorf("querying api key: %w", err)
	}

	v.remember(hash, &info)
	if info.expired() {
		return nil, ErrExpiredKey
	}
	return &info, nil
}

func (v *Validator) remember(hash string, info *KeyInfo) {
	v.mu.Lock()
	v.cache[hash] = cachedKey{info: info, expiresAt: time.Now().Add(validationCacheTTL)}
	v.mu.Unlock()
}

// CreateKey mints a key, stores its hash, and returns the raw key, which
// cannot be recovered afterwards. Nil scopes default to read-only; a nil
// expiresAt never expires.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, scopes []string, expiresAt *time.Time) (string, error) {
	rawKey := generateRawKey()

	if len(scopes) == 0 {
		scopes = []string{ScopeRead}
	}
	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}

	_, err := v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (name, key_hash, rate_limit, scopes, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		name, HashKey(rawKey), rateLimit, pq.Array(scopes), expiry)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}

	v.logger.Info("api key created", "name", name, "rate_limit", rateLimit, "scopes", scopes)
	return rawKey, nil
}

// RevokeKey deactivates a key and drops its cached validation immediately.
// Revoking an unknown key returns ErrInvalidKey.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	hash := HashKey(rawKey)

	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrInvalidKey
	}

	v.mu.Lock()
	delete(v.cache, hash)
	v.mu.Unlock()

	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns every active key, newest first. Hashes are never
// included.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, rate_limit, scopes, is_active, created_at, expires_at
		 FROM api_keys WHERE is_active = true ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		k, err := scanKeyInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (v *Validator) cachedInfo(hash string) (*KeyInfo, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.cache[hash]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.info, true
}

// scanKeyInfo reads one api_keys row. It works for both QueryRow and Query
// results; column order must match the SELECTs above.
func scanKeyInfo(row interface{ Scan(...any) error }) (KeyInfo, error) {
	var k KeyInfo
	var expires sql.NullTime
	var scopes pq.StringArray
	if err := row.Scan(&k.ID, &k.Name, &k.RateLimit, &scopes, &k.IsActive, &k.CreatedAt, &expires); err != nil {
		return KeyInfo{}, err
	}
	k.Scopes = []string(scopes)
	if expires.Valid {
		k.ExpiresAt = &expires.Time
	}
	return k, nil
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// generateRawKey returns the prefix plus 32 random bytes hex-encoded, the
// raw key handed to the caller.
func generateRawKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return rawKeyPrefix + hex.EncodeToString(b)
}
