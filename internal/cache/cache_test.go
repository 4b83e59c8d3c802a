package cache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu   sync.Mutex
	m    map[string]any
	ttls map[string]time.Duration
}

func newMapStore() *mapStore {
	return &mapStore{m: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (s *mapStore) Get(k string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[k]
	return v, ok
}

func (s *mapStore) Set(k string, v any, _ int64, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = v
	s.ttls[k] = ttl
	return true
}

func (s *mapStore) Del(k string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
}

func TestTokenCacheTTLIsBoundedByExp(t *testing.T) {
	store := newMapStore()
	c := NewTokenCache(store, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("short", map[string]any{"sub": "a"}, now.Add(10*time.Second))
	c.Put("long", map[string]any{"sub": "b"}, now.Add(time.Hour))
	c.Put("dead", map[string]any{"sub": "c"}, now.Add(-time.Second))

	assert.Equal(t, 10*time.Second, store.ttls[cacheKey("short")])
	assert.Equal(t, time.Minute, store.ttls[cacheKey("long")])
	_, ok := store.m[cacheKey("dead")]
	assert.False(t, ok)
}

func TestTokenCacheRejectsExpiredEntries(t *testing.T) {
	store := newMapStore()
	c := NewTokenCache(store, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("tok", map[string]any{"sub": "a"}, now.Add(time.Minute))
	claims, ok := c.Get("tok")
	require.True(t, ok)
	assert.Equal(t, "a", claims["sub"])

	now = now.Add(time.Minute)
	_, ok = c.Get("tok")
	assert.False(t, ok, "entry must not be served at or after exp")
	assert.Empty(t, store.m)
}

func TestTokenCacheNeverStoresRawToken(t *testing.T) {
	store := newMapStore()
	c := NewTokenCache(store, time.Hour)
	c.Put("secret-token", map[string]any{}, time.Now().Add(time.Minute))
	for k := range store.m {
		assert.False(t, strings.Contains(k, "secret-token"))
	}
}

func TestRistrettoStore(t *testing.T) {
	rs, err := NewRistrettoStore(128)
	require.NoError(t, err)
	defer rs.Close()

	c := NewTokenCache(rs, time.Minute)
	c.Put("tok", map[string]any{"sub": "a"}, time.Now().Add(time.Minute))
	claims, ok := c.Get("tok")
	require.True(t, ok)
	assert.Equal(t, "a", claims["sub"])
}
