package oauthx

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"
)

// TokenFingerprint derives the cache key for a raw access token. The digest
// is deterministic and one-way; the raw token itself is never stored or
// logged.
func TokenFingerprint(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ClaimsCache maps token fingerprints to previously assembled claims.
// Get returns (nil, nil) both for a true miss and for an expired entry; the
// caller cannot tell the two apart. Put is idempotent: writing an existing
// fingerprint refreshes the stored claims and expiry. Implementations must
// be safe for concurrent use without external locking.
type ClaimsCache interface {
	Get(ctx context.Context, fingerprint string) (*ApiClaims, error)
	Put(ctx context.Context, fingerprint string, claims *ApiClaims, expiry time.Time) error
}

// MemoryClaimsCache is the in-process ClaimsCache.
type MemoryClaimsCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	claims ApiClaims
	expiry time.Time
}

// NewMemoryClaimsCache creates an empty in-process claims cache.
func NewMemoryClaimsCache() *MemoryClaimsCache {
	return &MemoryClaimsCache{entries: make(map[string]memoryEntry)}
}

// Get returns the cached claims for the fingerprint, or nil past expiry.
func (c *MemoryClaimsCache) Get(_ context.Context, fingerprint string) (*ApiClaims, error) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !time.Now().Before(entry.expiry) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if current, ok := c.entries[fingerprint]; ok && !time.Now().Before(current.expiry) {
			delete(c.entries, fingerprint)
		}
		c.mu.Unlock()
		return nil, nil
	}
	claims := entry.claims
	return &claims, nil
}

// Put stores the claims until expiry. Entries already past expiry are not
// stored.
func (c *MemoryClaimsCache) Put(_ context.Context, fingerprint string, claims *ApiClaims, expiry time.Time) error {
	if claims == nil || !time.Now().Before(expiry) {
		return nil
	}
	c.mu.Lock()
	c.entries[fingerprint] = memoryEntry{claims: *claims, expiry: expiry}
	c.mu.Unlock()
	return nil
}

var _ ClaimsCache = (*MemoryClaimsCache)(nil)
