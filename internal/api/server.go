// Package api exposes the ledger pipeline over HTTP with fiber.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/card-statement-ledger/internal/logger"
	"github.com/insightdelivered/card-statement-ledger/internal/pipeline"
)

// Options configure a Server.
type Options struct {
	Version string
	// BodyLimitMB caps upload size; 0 uses 32 MB.
	BodyLimitMB int
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server holds the HTTP handlers for the API.
type Server struct {
	pipeline *pipeline.Pipeline
	version  string
	log      zerolog.Logger
	app      *fiber.App
}

// New builds the fiber app and registers routes.
func New(p *pipeline.Pipeline, opts Options) *Server {
	limit := opts.BodyLimitMB
	if limit <= 0 {
		limit = 32
	}

	s := &Server{pipeline: p, version: opts.Version, log: opts.Logger}
	s.app = fiber.New(fiber.Config{
		AppName:               "card-statement-ledger",
		BodyLimit:             limit << 20,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New())
	s.app.Use(s.requestLogger)

	s.app.Get("/api/health", s.HandleHealth)
	s.app.Post("/api/extract", s.HandleExtract)
	s.app.Post("/api/categorize", s.HandleCategorize)
	s.app.Get("/api/rules", s.HandleRules)
	if opts.Gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// App returns the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down HTTP server")
		return s.app.ShutdownWithTimeout(10 * time.Second)
	}
}

// RequestIDHeader carries the per-request ID echoed back to the client.
const RequestIDHeader = "X-Request-ID"

// requestLogger tags each request with an ID and stores a request-scoped
// logger in the user context, which the pipeline picks up.
func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()

	reqID := c.Get(RequestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	c.Set(RequestIDHeader, reqID)
	log := s.log.With().Str("request_id", reqID).Logger()
	c.SetUserContext(logger.WithContext(c.UserContext(), log))

	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	log.Info().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("HTTP request")
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(errorResponse{Success: false, Error: err.Error()})
}
