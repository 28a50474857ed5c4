// Package server exposes the generation pipeline over HTTP: one endpoint per
// input kind, a submit endpoint, and a streaming log endpoint per session.
package server

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/formloom/formloom/internal/broadcast"
	"github.com/formloom/formloom/internal/config"
	"github.com/formloom/formloom/internal/creator"
)

// Server wires the creator pipeline and the session log registry into a
// fiber application.
type Server struct {
	App     *fiber.App
	creator *creator.Creator
	logs    *broadcast.Registry
	cfg     config.ServerEnvConfig
}

func New(cfg config.ServerEnvConfig, c *creator.Creator, logs *broadcast.Registry) *Server {
	if cfg.Address == "" {
		cfg.Address = DefaultServerAddress
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultServerPort
	}
	if cfg.BodySizeLimit == 0 {
		cfg.BodySizeLimit = DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		Prefork:      false,
		ErrorHandler: fiberErrHandler,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		BodyLimit:    cfg.BodySizeLimit,
	})

	app.Use(recover.New())
	// Streaming routes must not pass through body-rewriting middleware.
	app.Use(ZstdMiddleware([]string{"/api/health", "/api/sessions"}))

	s := &Server{App: app, creator: c, logs: logs, cfg: cfg}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.App.Group("/api")
	api.Get("/health", s.handleHealth)

	forms := api.Group("/forms")
	forms.Post("/from-text", s.handleFromText)
	forms.Post("/from-file", s.handleFromFile)
	forms.Post("/from-doc", s.handleFromDoc)
	forms.Post("/from-script", s.handleFromScript)
	forms.Post("/", s.handleCreate)

	api.Get("/sessions/:id/logs", s.handleSessionLogs)
}

// fiberErrHandler turns any error escaping a handler into the standard error
// envelope, with pipeline errors mapped to their proper status codes.
func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	code, body := classify(err)

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Msg("request failed")

	return ctx.Status(code).JSON(body)
}

// Listen blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	log.Info().Str("addr", addr).Msg("http server listening")
	return s.App.Listen(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}
