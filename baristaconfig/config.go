// Package baristaconfig loads the service configuration from Go values,
// JSON files, Lua files or the environment.
package baristaconfig

import (
	"errors"
	"fmt"
	"time"

	"github.com/keksclan/goBarista/authz"
	"github.com/keksclan/goBarista/internal/store"
)

type Config struct {
	Server   ServerConfig
	Database store.Config
	Auth     authz.Config
}

type ServerConfig struct {
	Addr string
	// Env selects the log format: JSON for "production" and "staging",
	// text otherwise.
	Env             string
	LogLevel        string
	CORSOrigins     string
	ShutdownTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.CORSOrigins == "" {
		c.Server.CORSOrigins = "*"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = store.DriverSQLite
	}
	if c.Database.Driver == store.DriverSQLite && c.Database.DSN == "" {
		c.Database.DSN = "barista.db"
	}
	c.Auth = c.Auth.WithDefaults()
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == store.DriverPostgres && c.Database.DSN == "" {
		return errors.New("database.dsn is required for postgres")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must not be negative")
	}
	return c.Auth.Validate()
}

// finish defaults and validates cfg, wrapping failures the same way for
// every loader.
func finish(cfg *Config) (*Config, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}
