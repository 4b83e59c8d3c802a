package baristaconfig

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type envLoader struct {
	lookup func(string) (string, bool)
}

// FromEnv returns a Loader reading BARISTA_* environment variables.
// AUTH0_DOMAIN and API_AUDIENCE are accepted as fallbacks for the domain
// and audience.
func FromEnv() Loader {
	return &envLoader{lookup: os.LookupEnv}
}

func (l *envLoader) Load(_ context.Context) (*Config, error) {
	var cfg Config
	var err error

	cfg.Server.Addr = l.str("BARISTA_ADDR")
	cfg.Server.Env = l.str("BARISTA_ENV")
	cfg.Server.LogLevel = l.str("BARISTA_LOG_LEVEL")
	cfg.Server.CORSOrigins = l.str("BARISTA_CORS_ORIGINS")
	if cfg.Server.ShutdownTimeout, err = l.duration("BARISTA_SHUTDOWN_TIMEOUT"); err != nil {
		return nil, err
	}

	cfg.Database.Driver = l.str("BARISTA_DB_DRIVER")
	cfg.Database.DSN = l.str("BARISTA_DB_DSN")

	cfg.Auth.Domain = l.str("BARISTA_AUTH_DOMAIN", "AUTH0_DOMAIN")
	cfg.Auth.Audience = l.str("BARISTA_AUTH_AUDIENCE", "API_AUDIENCE")
	cfg.Auth.Issuer = l.str("BARISTA_AUTH_ISSUER")
	cfg.Auth.JWKSURL = l.str("BARISTA_AUTH_JWKS_URL")
	if algs := l.str("BARISTA_AUTH_ALLOWED_ALGS"); algs != "" {
		cfg.Auth.AllowedAlgs = strings.FieldsFunc(algs, func(r rune) bool { return r == ',' || r == ' ' })
	}
	cfg.Auth.PermissionsClaim = l.str("BARISTA_AUTH_PERMISSIONS_CLAIM")

	if cfg.Auth.JWKSCacheTTL, err = l.duration("BARISTA_AUTH_JWKS_CACHE_TTL"); err != nil {
		return nil, err
	}
	if cfg.Auth.KeyFetchTimeout, err = l.duration("BARISTA_AUTH_KEY_FETCH_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.Auth.ClockSkew, err = l.duration("BARISTA_AUTH_CLOCK_SKEW"); err != nil {
		return nil, err
	}
	if cfg.Auth.TokenCacheTTL, err = l.duration("BARISTA_AUTH_TOKEN_CACHE_TTL"); err != nil {
		return nil, err
	}
	if cfg.Auth.AllowStaleJWKS, err = l.bool("BARISTA_AUTH_ALLOW_STALE_JWKS"); err != nil {
		return nil, err
	}
	if cfg.Auth.RequirePermissionsClaim, err = l.bool("BARISTA_AUTH_REQUIRE_PERMISSIONS_CLAIM"); err != nil {
		return nil, err
	}
	if path := l.str("BARISTA_AUTH_LUA_POLICY_FILE"); path != "" {
		script, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lua policy: %w", err)
		}
		cfg.Auth.Policies.Lua.Enabled = true
		cfg.Auth.Policies.Lua.Script = string(script)
	}
	return finish(&cfg)
}

// str returns the first non-empty variable among keys.
func (l *envLoader) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := l.lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// duration accepts Go duration syntax ("90s") or a bare number of seconds.
func (l *envLoader) duration(key string) (time.Duration, error) {
	v := l.str(key)
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func (l *envLoader) bool(key string) (bool, error) {
	v := l.str(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
