package authz

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultJWKSCacheTTL     = 15 * time.Minute
	DefaultKeyFetchTimeout  = 5 * time.Second
	DefaultTokenCacheTTL    = 30 * time.Second
	DefaultPermissionsClaim = "permissions"
)

// Config describes the identity provider and how its tokens are checked.
// Only Domain (or both Issuer and JWKSURL) and Audience are required.
type Config struct {
	// Domain is the tenant host, e.g. "coffee.eu.auth0.com". Issuer and
	// JWKSURL are derived from it when unset.
	Domain   string
	Issuer   string
	Audience string
	JWKSURL  string

	AllowedAlgs     []string
	JWKSCacheTTL    time.Duration
	KeyFetchTimeout time.Duration
	AllowStaleJWKS  bool
	ClockSkew       time.Duration

	PermissionsClaim        string
	RequirePermissionsClaim bool

	// TokenCacheTTL caps how long verified claims are reused. Negative
	// disables the cache.
	TokenCacheTTL time.Duration

	Policies Policies
}

type Policies struct {
	Claims ClaimPolicy
	Lua    LuaPolicy
}

// LuaPolicy is an optional script run against every verified token.
type LuaPolicy struct {
	Enabled bool
	Script  string
	Timeout time.Duration
}

func (c *Config) setDefaults() {
	c.Domain = normalizeDomain(c.Domain)
	if c.Issuer == "" && c.Domain != "" {
		c.Issuer = "https://" + c.Domain + "/"
	}
	if c.JWKSURL == "" && c.Domain != "" {
		c.JWKSURL = "https://" + c.Domain + "/.well-known/jwks.json"
	}
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.JWKSCacheTTL == 0 {
		c.JWKSCacheTTL = DefaultJWKSCacheTTL
	}
	if c.KeyFetchTimeout == 0 {
		c.KeyFetchTimeout = DefaultKeyFetchTimeout
	}
	if c.PermissionsClaim == "" {
		c.PermissionsClaim = DefaultPermissionsClaim
	}
	if c.TokenCacheTTL == 0 {
		c.TokenCacheTTL = DefaultTokenCacheTTL
	}
}

// WithDefaults returns a copy of c with every unset field defaulted.
func (c Config) WithDefaults() Config {
	c.setDefaults()
	return c
}

func (c Config) Validate() error {
	if c.JWKSURL == "" {
		return errors.New("auth: domain or jwks_url is required")
	}
	u, err := url.Parse(c.JWKSURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("auth: invalid jwks_url %q", c.JWKSURL)
	}
	if c.Issuer == "" {
		return errors.New("auth: domain or issuer is required")
	}
	if c.Audience == "" {
		return errors.New("auth: audience is required")
	}
	if c.JWKSCacheTTL < 0 || c.KeyFetchTimeout < 0 || c.ClockSkew < 0 {
		return errors.New("auth: durations must not be negative")
	}
	if c.Policies.Lua.Enabled && strings.TrimSpace(c.Policies.Lua.Script) == "" {
		return errors.New("auth: lua policy enabled without a script")
	}
	return nil
}

// normalizeDomain accepts "tenant.auth0.com", "https://tenant.auth0.com/"
// and similar spellings.
func normalizeDomain(d string) string {
	d = strings.TrimSpace(d)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	return strings.TrimRight(d, "/")
}
