// Package cache implements the response cache: a KV-backed get/put
// keyed by request fingerprint, advisory and fail-open on KV errors.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"llmgateway/internal/domain"
	"llmgateway/internal/kv"
)

type Cache struct {
	store kv.Store
	ttl   time.Duration
}

func New(store kv.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

func key(tenantID, fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return fmt.Sprintf("cache:chat:v1:%s:%s", tenantID, hex.EncodeToString(sum[:]))
}

// Get returns the cached entry and true on a hit; any KV error or miss
// degrades to (zero entry, false) so callers treat it exactly like a miss.
func (c *Cache) Get(ctx context.Context, tenantID, fingerprint string) (domain.CacheEntry, bool) {
	raw, found, err := c.store.Get(ctx, key(tenantID, fingerprint))
	if err != nil || !found {
		return domain.CacheEntry{}, false
	}
	var entry domain.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return domain.CacheEntry{}, false
	}
	return entry, true
}

// Put stores entry under the fingerprint key. Errors are swallowed: the
// cache is advisory and must never fail the request that populates it.
func (c *Cache) Put(ctx context.Context, tenantID, fingerprint string, entry domain.CacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, key(tenantID, fingerprint), string(raw), c.ttl)
}
