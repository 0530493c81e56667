package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/tinylink/internal/app/service"
	inthttp "github.com/sifan077/tinylink/internal/http/handler"
	"github.com/sifan077/tinylink/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles what the HTTP server needs.
type Dependencies struct {
	Logger       *zap.Logger
	Links        service.LinkService
	Redirects    *service.RedirectService
	BaseURL      string
	ListLimit    int
	HealthChecks map[string]inthttp.HealthCheck

	// RateLimiter is nil when Redis is disabled.
	RateLimiter middleware.Counter
	RateLimit   middleware.RateLimitConfig
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "tinylink",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.Recovery(s.deps.Logger))
	if s.deps.RateLimiter != nil {
		s.app.Use(middleware.RateLimit(s.deps.RateLimiter, s.deps.RateLimit, s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.Links,
		BaseURL:     s.deps.BaseURL,
		ListLimit:   s.deps.ListLimit,
	})
	apiHandler.Register(s.app)

	// Registered last: /:code matches any single path segment.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:       s.deps.Logger,
		Redirects:    s.deps.Redirects,
		LinkService:  s.deps.Links,
		BaseURL:      s.deps.BaseURL,
		HealthChecks: s.deps.HealthChecks,
	})
	redirectHandler.Register(s.app)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": msg,
	})
}
