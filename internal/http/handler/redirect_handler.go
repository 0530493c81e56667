package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/sifan077/tinylink/internal/app/service"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes an optional backend. A nil error means ready.
type HealthCheck func(ctx context.Context) error

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger       *zap.Logger
	Redirects    *service.RedirectService
	LinkService  service.LinkService
	BaseURL      string
	HealthChecks map[string]HealthCheck
}

// RedirectHandler serves the public redirect and the service endpoints.
type RedirectHandler struct {
	logger       *zap.Logger
	redirects    *service.RedirectService
	linkService  service.LinkService
	baseURL      string
	healthChecks map[string]HealthCheck
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:       logger,
		redirects:    deps.Redirects,
		linkService:  deps.LinkService,
		baseURL:      deps.BaseURL,
		healthChecks: deps.HealthChecks,
	}
}

// Register wires redirect routes onto the provided router. It must run after
// every other route so that /:code does not shadow them.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Info)
	router.Get("/health", h.Health)
	router.Get("/:code", h.Resolve)
}

// Info describes the service and its API.
func (h *RedirectHandler) Info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":        "Tiny Link",
		"total_links": h.linkService.CountLinks(),
		"base_url":    h.baseURL,
		"api": fiber.Map{
			"create": "POST /api/links",
			"list":   "GET /api/links",
			"get":    "GET /api/links/{code}",
			"stats":  "GET /api/links/{code}/stats",
			"delete": "DELETE /api/links/{code}",
		},
	})
}

// Health reports the link count and the readiness of configured backends.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(userContext(c), healthTimeout)
	defer cancel()

	checks := lo.MapValues(h.healthChecks, func(check HealthCheck, name string) string {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("backend", name), zap.Error(err))
			return "error: " + err.Error()
		}
		return "ok"
	})

	status := "ok"
	code := fiber.StatusOK
	if lo.SomeBy(lo.Values(checks), func(result string) bool { return result != "ok" }) {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	body := fiber.Map{
		"status": status,
		"links":  h.linkService.CountLinks(),
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	return c.Status(code).JSON(body)
}

// Resolve handles GET /:code with a 302 to the target URL.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")

	link, err := h.redirects.Resolve(userContext(c), code, service.Visitor{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Referer:   c.Get(fiber.HeaderReferer),
	})
	if err != nil {
		if status, _ := errorStatus(err); status >= fiber.StatusInternalServerError {
			h.logger.Error("failed to resolve link", zap.Error(err), zap.String("code", code))
		}
		return writeError(c, err)
	}

	return c.Redirect(link.URL, fiber.StatusFound)
}
