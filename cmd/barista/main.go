// Command barista serves the drinks API.
//
// Configuration comes from a .json or .lua file given with -config, or from
// BARISTA_* environment variables when no file is given.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/keksclan/goBarista/authz"
	"github.com/keksclan/goBarista/baristaconfig"
	"github.com/keksclan/goBarista/internal/api"
	"github.com/keksclan/goBarista/internal/metrics"
	"github.com/keksclan/goBarista/internal/store"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "barista:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a .json or .lua config file")
	reset := flag.Bool("reset", false, "drop all drinks and reseed before serving")
	addr := flag.String("addr", "", "listen address, overrides the config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := loaderFor(*configPath)
	if err != nil {
		return err
	}
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := baristaconfig.NewLogger(cfg.Server, os.Stdout, version)
	slog.SetDefault(logger)

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if *reset {
		if err := st.Reset(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
		logger.Info("store reset", slog.String("driver", cfg.Database.Driver))
	}

	m := metrics.New()
	verifier, err := authz.New(cfg.Auth,
		authz.WithLogger(logger.With(slog.String("component", "authz"))),
		authz.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("init verifier: %w", err)
	}
	defer verifier.Close()

	// Keys are fetched lazily anyway; a failed warm-up only costs the first
	// request a fetch.
	if err := verifier.Refresh(ctx); err != nil {
		logger.Warn("jwks warm-up failed", slog.String("error", err.Error()))
	}

	srv := api.New(api.Config{CORSOrigins: cfg.Server.CORSOrigins}, st, verifier, m,
		logger.With(slog.String("component", "http")))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loaderFor(path string) (baristaconfig.Loader, error) {
	if path == "" {
		return baristaconfig.FromEnv(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return baristaconfig.FromJSONFile(path), nil
	case ".lua":
		return baristaconfig.FromLuaFile(path), nil
	default:
		return nil, fmt.Errorf("unsupported config file %q: want .json or .lua", path)
	}
}

