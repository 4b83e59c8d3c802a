// Package authz verifies bearer tokens issued by an external identity
// provider and enforces the permissions they carry.
//
// A Verifier is built once per process and shared by every request. It
// fetches the provider's JWKS lazily, caches it, and refreshes it at most
// once per unknown key id.
package authz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	icache "github.com/keksclan/goBarista/internal/cache"
	"github.com/keksclan/goBarista/internal/jwk"
	"github.com/keksclan/goBarista/internal/luaengine"
	ijwt "github.com/keksclan/goBarista/internal/oauth/jwt"
)

// Verifier is safe for concurrent use.
type Verifier struct {
	cfg     Config
	httpc   *http.Client
	cache   Cache
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time

	keys      *jwk.Manager
	validator *ijwt.Validator
	tokens    *icache.TokenCache
	lua       *luaengine.Script
	closers   []io.Closer
}

// New applies defaults to cfg, validates it and wires the verifier. No
// network traffic happens until the first token is verified or Refresh is
// called.
func New(cfg Config, opts ...Option) (*Verifier, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Verifier{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.httpc == nil {
		v.httpc = &http.Client{Timeout: cfg.KeyFetchTimeout}
	}

	v.keys = jwk.NewManager(jwk.NewHTTPFetcher(cfg.JWKSURL, v.httpc), jwk.Config{
		TTL:          cfg.JWKSCacheTTL,
		FetchTimeout: cfg.KeyFetchTimeout,
		AllowStale:   cfg.AllowStaleJWKS,
	})
	v.keys.SetLogger(v.logger.With(slog.String("component", "jwks"), slog.String("url", cfg.JWKSURL)))
	if v.metrics != nil {
		v.keys.SetRefreshHook(v.metrics.KeySetRefreshed)
	}

	jv, err := ijwt.New(ijwt.Config{
		Issuer:      cfg.Issuer,
		Audience:    cfg.Audience,
		AllowedAlgs: cfg.AllowedAlgs,
		ClockSkew:   cfg.ClockSkew,
		Now:         v.now,
	}, v.keys)
	if err != nil {
		return nil, fmt.Errorf("init jwt validator: %w", err)
	}
	v.validator = jv

	if cfg.TokenCacheTTL > 0 {
		store := icache.Store(v.cache)
		if store == nil {
			rs, err := icache.NewRistrettoStore(1 << 14)
			if err != nil {
				return nil, err
			}
			v.closers = append(v.closers, closerFunc(rs.Close))
			store = rs
		}
		v.tokens = icache.NewTokenCache(store, cfg.TokenCacheTTL)
		v.tokens.SetClock(v.now)
	}

	if cfg.Policies.Lua.Enabled {
		s, err := luaengine.Compile(cfg.Policies.Lua.Script, cfg.Policies.Lua.Timeout)
		if err != nil {
			return nil, fmt.Errorf("init lua policy: %w", err)
		}
		v.lua = s
	}
	return v, nil
}

// Config returns the effective configuration after defaults.
func (v *Verifier) Config() Config { return v.cfg }

// Refresh fetches the key set now. Useful as a startup warm-up; failures are
// not fatal since verification refetches on demand.
func (v *Verifier) Refresh(ctx context.Context) error {
	_, err := v.keys.Refresh(ctx)
	return err
}

// Close releases the default token cache.
func (v *Verifier) Close() error {
	var errs []error
	for _, c := range v.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ExtractToken returns the token from an Authorization header of the form
// "Bearer <token>". The scheme is matched case-insensitively.
func ExtractToken(header string) (string, error) {
	if header == "" {
		return "", wrap(ErrMissingHeader, nil)
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", wrap(ErrInvalidHeaderFormat, fmt.Errorf("got %d parts", len(parts)))
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", wrap(ErrInvalidHeaderScheme, nil)
	}
	return parts[1], nil
}

// VerifyAndDecode checks structure, signing key, signature, expiry, issuer
// and audience in that order and returns the claims. The returned map is
// the caller's to keep.
func (v *Verifier) VerifyAndDecode(ctx context.Context, token string) (Claims, error) {
	if v.tokens != nil {
		if cached, ok := v.tokens.Get(token); ok {
			return Claims(cached).Clone(), nil
		}
	}

	raw, err := v.validator.Validate(ctx, token)
	if err != nil {
		return nil, classify(err)
	}
	claims := Claims(raw)

	if err := v.applyPolicies(ctx, claims); err != nil {
		return nil, wrap(ErrInvalidClaims, err)
	}

	if v.tokens != nil {
		if exp, ok := claims.ExpiresAt(); ok {
			v.tokens.Put(token, raw, exp)
		}
	}
	return claims.Clone(), nil
}

// Permissions returns the permission set carried by claims. An absent claim
// yields an empty set.
func (v *Verifier) Permissions(claims Claims) []string {
	perms, _ := claims.Strings(v.cfg.PermissionsClaim)
	return perms
}

// CheckPermission reports whether required is among the token's permissions.
func (v *Verifier) CheckPermission(required string, claims Claims) error {
	perms, present := claims.Strings(v.cfg.PermissionsClaim)
	if !present && v.cfg.RequirePermissionsClaim {
		return wrap(ErrPermissionsClaimMissing, nil)
	}
	if required == "" {
		return wrap(ErrPermissionDenied, errors.New("no permission named"))
	}
	if !slices.Contains(perms, required) {
		return wrap(ErrPermissionDenied, fmt.Errorf("missing %q", required))
	}
	return nil
}

// Authorize runs ExtractToken, VerifyAndDecode and CheckPermission, stopping
// at the first failure. Every failure is an *Error.
func (v *Verifier) Authorize(ctx context.Context, header, required string) (Claims, error) {
	claims, err := v.authorize(ctx, header, required)
	if err != nil {
		var ae *Error
		if errors.As(err, &ae) {
			v.observeFailure(ae, required)
		}
		return nil, err
	}
	if v.metrics != nil {
		v.metrics.AuthorizationSucceeded()
	}
	return claims, nil
}

func (v *Verifier) authorize(ctx context.Context, header, required string) (Claims, error) {
	token, err := ExtractToken(header)
	if err != nil {
		return nil, err
	}
	claims, err := v.VerifyAndDecode(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := v.CheckPermission(required, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) applyPolicies(ctx context.Context, claims Claims) error {
	if !v.cfg.Policies.Claims.empty() {
		if err := v.cfg.Policies.Claims.Validate(claims); err != nil {
			return err
		}
	}
	if v.lua != nil {
		if err := v.lua.Evaluate(ctx, claims, v.Permissions(claims)); err != nil {
			return err
		}
	}
	return nil
}

func (v *Verifier) observeFailure(e *Error, required string) {
	if v.metrics != nil {
		v.metrics.AuthorizationFailed(e.Kind)
	}
	level := slog.LevelDebug
	if e.Kind == KindKeyFetchTimeout {
		level = slog.LevelWarn
	}
	attrs := []any{slog.String("kind", string(e.Kind)), slog.Int("status", e.Status)}
	if required != "" {
		attrs = append(attrs, slog.String("permission", required))
	}
	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}
	v.logger.Log(context.Background(), level, "authorization failed", attrs...)
}

// classify maps validator failures onto authorization errors.
func classify(err error) *Error {
	switch {
	case errors.Is(err, ijwt.ErrMalformed):
		return wrap(ErrMalformedToken, err)
	case errors.Is(err, ijwt.ErrKeyFetchTimeout):
		return wrap(ErrKeyFetchTimeout, err)
	case errors.Is(err, ijwt.ErrUnknownKey):
		return wrap(ErrUnknownSigningKey, err)
	case errors.Is(err, ijwt.ErrSignature):
		return wrap(ErrInvalidSignature, err)
	case errors.Is(err, ijwt.ErrExpired):
		return wrap(ErrTokenExpired, err)
	default:
		return wrap(ErrInvalidClaims, err)
	}
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
