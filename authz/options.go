package authz

import (
	"log/slog"
	"net/http"
	"time"
)

// Cache stores verified claims keyed by a token hash. The default is an
// in-process ristretto cache.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, cost int64, ttl time.Duration) bool
	Del(key string)
}

// Metrics observes verifier outcomes. internal/metrics provides a
// Prometheus implementation.
type Metrics interface {
	AuthorizationSucceeded()
	AuthorizationFailed(kind Kind)
	KeySetRefreshed(err error)
}

type Option func(*Verifier)

// WithHTTPClient sets the client used to fetch the JWKS document.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		v.httpc = c
	}
}

func WithCache(c Cache) Option {
	return func(v *Verifier) {
		v.cache = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}
