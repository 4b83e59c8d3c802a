package jwk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL          = 15 * time.Minute
	defaultFetchTimeout = 5 * time.Second
)

// Config controls caching and refresh of the key set.
type Config struct {
	// TTL is how long a fetched set is considered fresh. Lookups against an
	// older set trigger a refresh first.
	TTL time.Duration
	// FetchTimeout bounds a single remote fetch.
	FetchTimeout time.Duration
	// AllowStale keeps serving the previous set when a TTL-driven refresh fails.
	AllowStale bool
}

// Manager caches the key set for the process lifetime. The current set is
// published through an atomic pointer, so readers always see a complete
// snapshot and no lock is held while fetching.
type Manager struct {
	fetcher    Fetcher
	ttl        time.Duration
	timeout    time.Duration
	allowStale bool

	current atomic.Pointer[KeySet]
	sfGroup singleflight.Group

	now       func() time.Time
	logger    *slog.Logger
	onRefresh func(err error)
}

func NewManager(f Fetcher, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Manager{
		fetcher:    f,
		ttl:        cfg.TTL,
		timeout:    cfg.FetchTimeout,
		allowStale: cfg.AllowStale,
		now:        time.Now,
		logger:     slog.New(slog.DiscardHandler),
	}
}

func (m *Manager) SetLogger(l *slog.Logger) {
	if l != nil {
		m.logger = l
	}
}

// SetRefreshHook registers fn to be called after every remote fetch with its outcome.
func (m *Manager) SetRefreshHook(fn func(err error)) {
	m.onRefresh = fn
}

// Snapshot returns the currently published key set, or nil before the first fetch.
func (m *Manager) Snapshot() *KeySet {
	return m.current.Load()
}

// GetKey resolves kid against the cached set. A kid that is not cached
// causes at most one refresh per call; if the refreshed set still lacks it
// the error wraps ErrKeyNotFound.
func (m *Manager) GetKey(ctx context.Context, kid string) (any, error) {
	set := m.current.Load()
	refreshed := false
	var refreshErr error

	if set == nil || m.expired(set) {
		fresh, err := m.Refresh(ctx)
		refreshed = true
		switch {
		case err == nil:
			set = fresh
		case set != nil && m.allowStale:
			m.logger.Warn("jwks refresh failed, serving stale key set",
				slog.Time("fetched_at", set.FetchedAt()),
				slog.String("error", err.Error()))
			refreshErr = err
		default:
			return nil, err
		}
	}

	if key, ok := set.Lookup(kid); ok {
		return key, nil
	}
	if refreshed {
		if refreshErr != nil {
			return nil, fmt.Errorf("%w: kid=%s: %w", ErrKeyNotFound, kid, refreshErr)
		}
		return nil, fmt.Errorf("%w: kid=%s", ErrKeyNotFound, kid)
	}

	// Another request may have published a newer set since we loaded ours.
	if latest := m.current.Load(); latest != set {
		if key, ok := latest.Lookup(kid); ok {
			return key, nil
		}
	}

	m.logger.Debug("unknown kid, refreshing key set", slog.String("kid", kid))
	fresh, err := m.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: kid=%s: %w", ErrKeyNotFound, kid, err)
	}
	if key, ok := fresh.Lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid=%s", ErrKeyNotFound, kid)
}

// Refresh fetches the key set and swaps it in. Concurrent callers share one
// fetch. The fetch outlives the caller's cancellation but never FetchTimeout;
// a caller whose own context ends first stops waiting.
func (m *Manager) Refresh(ctx context.Context) (*KeySet, error) {
	ch := m.sfGroup.DoChan("jwks", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		set, err := m.fetcher.Fetch(fctx)
		if err != nil {
			if errors.Is(fctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrFetchTimeout) {
				err = fmt.Errorf("%w: %v", ErrFetchTimeout, err)
			}
			m.logger.Warn("jwks fetch failed", slog.String("error", err.Error()))
			m.notify(err)
			return nil, err
		}
		m.current.Store(set)
		m.logger.Info("jwks refreshed", slog.Int("keys", set.Len()))
		m.notify(nil)
		return set, nil
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		set, ok := res.Val.(*KeySet)
		if !ok {
			return nil, fmt.Errorf("unexpected singleflight result type %T", res.Val)
		}
		return set, nil
	}
}

func (m *Manager) expired(set *KeySet) bool {
	return !m.now().Before(set.FetchedAt().Add(m.ttl))
}

func (m *Manager) notify(err error) {
	if m.onRefresh != nil {
		m.onRefresh(err)
	}
}
