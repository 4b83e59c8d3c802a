// Package cache keeps fully verified token claims for a bounded time so
// repeated requests with the same bearer token skip signature verification.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store is the backing key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, cost int64, ttl time.Duration) bool
	Del(key string)
}

type entry struct {
	claims map[string]any
	exp    time.Time
}

// TokenCache maps sha256(token) to its verified claims. Raw tokens are never
// used as keys. An entry never outlives the token's exp.
type TokenCache struct {
	store  Store
	maxTTL time.Duration
	now    func() time.Time
}

func NewTokenCache(store Store, maxTTL time.Duration) *TokenCache {
	return &TokenCache{store: store, maxTTL: maxTTL, now: time.Now}
}

// SetClock replaces time.Now.
func (c *TokenCache) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Get returns the cached claims for token while the token is unexpired.
func (c *TokenCache) Get(token string) (map[string]any, bool) {
	key := cacheKey(token)
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := v.(entry)
	if !ok {
		c.store.Del(key)
		return nil, false
	}
	if !c.now().Before(e.exp) {
		c.store.Del(key)
		return nil, false
	}
	return e.claims, true
}

// Put caches claims until min(exp, now+maxTTL).
func (c *TokenCache) Put(token string, claims map[string]any, exp time.Time) {
	ttl := exp.Sub(c.now())
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	if ttl <= 0 {
		return
	}
	c.store.Set(cacheKey(token), entry{claims: claims, exp: exp}, 1, ttl)
	// ristretto applies sets asynchronously
	if w, ok := c.store.(interface{ Wait() }); ok {
		w.Wait()
	}
}

func cacheKey(token string) string {
	s := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(s[:])
}
