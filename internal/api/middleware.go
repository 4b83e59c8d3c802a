package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/keksclan/goBarista/adapters/common"
	"github.com/keksclan/goBarista/authz"
)

var fiberMessages = map[int]string{
	http.StatusBadRequest:          "Bad request",
	http.StatusNotFound:            "Not Found",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	http.StatusNotAcceptable:       "Not Acceptable",
	http.StatusUnprocessableEntity: "Request Unprocessable",
}

// errorHandler renders every error returned from a handler as the JSON
// failure body. Internal detail is logged, never returned.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var ae *authz.Error
	if errors.As(err, &ae) {
		status, body := common.FromError(ae)
		return c.Status(status).JSON(body)
	}

	code := http.StatusInternalServerError
	msg := "Server Error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if m, ok := fiberMessages[fe.Code]; ok {
			code, msg = fe.Code, m
		} else if fe.Code < http.StatusInternalServerError {
			code, msg = fe.Code, http.StatusText(fe.Code)
		}
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
	}
	return c.Status(code).JSON(common.ErrorBody{Error: code, Message: msg})
}

// accessLog logs one line per request and feeds the HTTP metrics. Errors
// are rendered here so the logged status is the one sent.
func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := s.app.ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	elapsed := time.Since(start)
	status := c.Response().StatusCode()
	route := c.Route().Path

	s.metrics.ObserveRequest(c.Method(), route, status, elapsed)

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	rid, _ := c.Locals("requestid").(string)
	s.logger.LogAttrs(c.UserContext(), level, "request",
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.String("route", route),
		slog.Int("status", status),
		slog.Duration("duration", elapsed),
		slog.String("request_id", rid),
	)
	return nil
}
