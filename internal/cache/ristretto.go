package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoStore is the default Store, bounded by entry count.
type RistrettoStore struct {
	cache *ristretto.Cache
}

// NewRistrettoStore sizes the cache for maxEntries items of cost 1.
func NewRistrettoStore(maxEntries int64) (*RistrettoStore, error) {
	if maxEntries <= 0 {
		maxEntries = 1 << 14
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &RistrettoStore{cache: c}, nil
}

func (r *RistrettoStore) Get(key string) (any, bool) {
	return r.cache.Get(key)
}

func (r *RistrettoStore) Set(key string, value any, cost int64, ttl time.Duration) bool {
	return r.cache.SetWithTTL(key, value, cost, ttl)
}

func (r *RistrettoStore) Del(key string) {
	r.cache.Del(key)
}

// Wait blocks until buffered sets are applied.
func (r *RistrettoStore) Wait() { r.cache.Wait() }

func (r *RistrettoStore) Close() { r.cache.Close() }
