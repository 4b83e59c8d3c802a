package baristaconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/keksclan/goBarista/authz"
	"github.com/keksclan/goBarista/internal/store"
	lua "github.com/yuin/gopher-lua"
)

// Loader produces a defaulted, validated Config.
type Loader interface {
	Load(ctx context.Context) (*Config, error)
}

type goLoader struct {
	cfg Config
}

// FromGo returns a Loader for a config built in code.
func FromGo(cfg Config) Loader {
	return &goLoader{cfg: cfg}
}

func (l *goLoader) Load(_ context.Context) (*Config, error) {
	cfg := l.cfg
	return finish(&cfg)
}

type jsonLoader struct {
	path string
}

func FromJSONFile(path string) Loader {
	return &jsonLoader{path: path}
}

type jsonConfig struct {
	Server   jsonServer   `json:"server"`
	Database jsonDatabase `json:"database"`
	Auth     jsonAuth     `json:"auth"`
}

type jsonServer struct {
	Addr               string `json:"addr"`
	Env                string `json:"env"`
	LogLevel           string `json:"log_level"`
	CORSOrigins        string `json:"cors_origins"`
	ShutdownTimeoutSec int    `json:"shutdown_timeout_sec"`
}

type jsonDatabase struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type jsonAuth struct {
	Domain                  string       `json:"domain"`
	Issuer                  string       `json:"issuer"`
	Audience                string       `json:"audience"`
	JWKSURL                 string       `json:"jwks_url"`
	AllowedAlgs             []string     `json:"allowed_algs"`
	JWKSCacheTTLSec         int          `json:"jwks_cache_ttl_sec"`
	KeyFetchTimeoutMs       int          `json:"key_fetch_timeout_ms"`
	AllowStaleJWKS          bool         `json:"allow_stale_jwks"`
	ClockSkewSec            int          `json:"clock_skew_sec"`
	PermissionsClaim        string       `json:"permissions_claim"`
	RequirePermissionsClaim bool         `json:"require_permissions_claim"`
	TokenCacheTTLSec        int          `json:"token_cache_ttl_sec"`
	Policies                jsonPolicies `json:"policies"`
}

type jsonPolicies struct {
	Claims jsonClaimsPolicy `json:"claims"`
	Lua    jsonLuaPolicy    `json:"lua"`
}

type jsonClaimsPolicy struct {
	Required       []string         `json:"required"`
	Denylist       []string         `json:"denylist"`
	EnforcedValues map[string][]any `json:"enforced_values"`
}

type jsonLuaPolicy struct {
	Enabled   bool   `json:"enabled"`
	Script    string `json:"script"`
	TimeoutMs int    `json:"timeout_ms"`
}

func (l *jsonLoader) Load(_ context.Context) (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read json config: %w", err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	cfg := jsonToConfig(jc)
	return finish(&cfg)
}

func jsonToConfig(jc jsonConfig) Config {
	return Config{
		Server: ServerConfig{
			Addr:            jc.Server.Addr,
			Env:             jc.Server.Env,
			LogLevel:        jc.Server.LogLevel,
			CORSOrigins:     jc.Server.CORSOrigins,
			ShutdownTimeout: seconds(jc.Server.ShutdownTimeoutSec),
		},
		Database: store.Config{Driver: jc.Database.Driver, DSN: jc.Database.DSN},
		Auth: authz.Config{
			Domain:                  jc.Auth.Domain,
			Issuer:                  jc.Auth.Issuer,
			Audience:                jc.Auth.Audience,
			JWKSURL:                 jc.Auth.JWKSURL,
			AllowedAlgs:             jc.Auth.AllowedAlgs,
			JWKSCacheTTL:            seconds(jc.Auth.JWKSCacheTTLSec),
			KeyFetchTimeout:         millis(jc.Auth.KeyFetchTimeoutMs),
			AllowStaleJWKS:          jc.Auth.AllowStaleJWKS,
			ClockSkew:               seconds(jc.Auth.ClockSkewSec),
			PermissionsClaim:        jc.Auth.PermissionsClaim,
			RequirePermissionsClaim: jc.Auth.RequirePermissionsClaim,
			TokenCacheTTL:           seconds(jc.Auth.TokenCacheTTLSec),
			Policies: authz.Policies{
				Claims: authz.ClaimPolicy{
					Required:       jc.Auth.Policies.Claims.Required,
					Denylist:       jc.Auth.Policies.Claims.Denylist,
					EnforcedValues: jc.Auth.Policies.Claims.EnforcedValues,
				},
				Lua: authz.LuaPolicy{
					Enabled: jc.Auth.Policies.Lua.Enabled,
					Script:  jc.Auth.Policies.Lua.Script,
					Timeout: millis(jc.Auth.Policies.Lua.TimeoutMs),
				},
			},
		},
	}
}

type luaLoader struct {
	path string
}

// FromLuaFile returns a Loader for a Lua file that returns the config as a
// table. The file runs in a sandbox with only base, table, string and math.
func FromLuaFile(path string) Loader {
	return &luaLoader{path: path}
}

func (l *luaLoader) Load(_ context.Context) (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read lua config file: %w", err)
	}
	return LoadLuaString(string(data))
}

// LoadLuaString evaluates script and maps the returned table onto Config.
func LoadLuaString(script string) (*Config, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(fn, lua.LNil)
	}

	if err := L.DoString(script); err != nil {
		return nil, fmt.Errorf("lua config execution: %w", err)
	}
	tbl, ok := L.Get(-1).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua config must return a table, got %s", L.Get(-1).Type())
	}
	cfg := luaTableToConfig(tbl)
	return finish(&cfg)
}

func luaTableToConfig(tbl *lua.LTable) Config {
	var cfg Config

	if srv := getTableField(tbl, "server"); srv != nil {
		cfg.Server.Addr = getStringField(srv, "addr")
		cfg.Server.Env = getStringField(srv, "env")
		cfg.Server.LogLevel = getStringField(srv, "log_level")
		cfg.Server.CORSOrigins = getStringField(srv, "cors_origins")
		cfg.Server.ShutdownTimeout = seconds(int(getNumberField(srv, "shutdown_timeout_sec")))
	}
	if db := getTableField(tbl, "database"); db != nil {
		cfg.Database.Driver = getStringField(db, "driver")
		cfg.Database.DSN = getStringField(db, "dsn")
	}

	auth := getTableField(tbl, "auth")
	if auth == nil {
		return cfg
	}
	cfg.Auth.Domain = getStringField(auth, "domain")
	cfg.Auth.Issuer = getStringField(auth, "issuer")
	cfg.Auth.Audience = getStringField(auth, "audience")
	cfg.Auth.JWKSURL = getStringField(auth, "jwks_url")
	cfg.Auth.AllowedAlgs = getStringSliceField(auth, "allowed_algs")
	cfg.Auth.JWKSCacheTTL = seconds(int(getNumberField(auth, "jwks_cache_ttl_sec")))
	cfg.Auth.KeyFetchTimeout = millis(int(getNumberField(auth, "key_fetch_timeout_ms")))
	cfg.Auth.AllowStaleJWKS = getBoolField(auth, "allow_stale_jwks")
	cfg.Auth.ClockSkew = seconds(int(getNumberField(auth, "clock_skew_sec")))
	cfg.Auth.PermissionsClaim = getStringField(auth, "permissions_claim")
	cfg.Auth.RequirePermissionsClaim = getBoolField(auth, "require_permissions_claim")
	cfg.Auth.TokenCacheTTL = seconds(int(getNumberField(auth, "token_cache_ttl_sec")))

	if policies := getTableField(auth, "policies"); policies != nil {
		if claims := getTableField(policies, "claims"); claims != nil {
			cfg.Auth.Policies.Claims.Required = getStringSliceField(claims, "required")
			cfg.Auth.Policies.Claims.Denylist = getStringSliceField(claims, "denylist")
		}
		if l := getTableField(policies, "lua"); l != nil {
			cfg.Auth.Policies.Lua.Enabled = getBoolField(l, "enabled")
			cfg.Auth.Policies.Lua.Script = getStringField(l, "script")
			cfg.Auth.Policies.Lua.Timeout = millis(int(getNumberField(l, "timeout_ms")))
		}
	}
	return cfg
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func millis(n int) time.Duration  { return time.Duration(n) * time.Millisecond }

func getStringField(tbl *lua.LTable, key string) string {
	if s, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func getNumberField(tbl *lua.LTable, key string) float64 {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

func getBoolField(tbl *lua.LTable, key string) bool {
	if b, ok := tbl.RawGetString(key).(lua.LBool); ok {
		return bool(b)
	}
	return false
}

func getTableField(tbl *lua.LTable, key string) *lua.LTable {
	if t, ok := tbl.RawGetString(key).(*lua.LTable); ok {
		return t
	}
	return nil
}

func getStringSliceField(tbl *lua.LTable, key string) []string {
	t, ok := tbl.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	t.ForEach(func(_, v lua.LValue) {
		if s, ok := v.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}
