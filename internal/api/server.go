// Package api serves the drinks HTTP API.
package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/keksclan/goBarista/adapters/common"
	"github.com/keksclan/goBarista/internal/metrics"
	"github.com/keksclan/goBarista/internal/store"
)

type Config struct {
	// CORSOrigins is a comma separated list, "*" for any.
	CORSOrigins string
}

// Server owns the Fiber app and everything a request needs. It is built
// once in main and shared by all handlers.
type Server struct {
	app     *fiber.App
	store   store.Store
	auth    common.Authorizer
	metrics *metrics.Collector
	logger  *slog.Logger
}

func New(cfg Config, st store.Store, auth common.Authorizer, m *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if m == nil {
		m = metrics.New()
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}

	s := &Server{store: st, auth: auth, metrics: m, logger: logger}
	s.app = fiber.New(fiber.Config{
		AppName:               "barista",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Content-Type, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
	s.app.Use(s.accessLog)

	s.routes()
	return s
}

// App exposes the Fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
