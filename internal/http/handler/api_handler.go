package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/sifan077/tinylink/internal/app/service"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
	BaseURL     string
	ListLimit   int
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
	baseURL     string
	listLimit   int
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger,
		linkService: deps.LinkService,
		baseURL:     deps.BaseURL,
		listLimit:   deps.ListLimit,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Get("/:code", h.GetLink)
			links.Get("/:code/stats", h.LinkStats)
			links.Delete("/:code", h.DeleteLink)
		}
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	URL       string  `json:"url"`
	Code      string  `json:"code,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	input := service.CreateLinkInput{
		Code: req.Code,
		URL:  req.URL,
	}
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		expires, err := model.ParseTimestamp(*req.ExpiresAt)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "expires_at must be an ISO-8601 timestamp",
			})
		}
		input.ExpiresAt = &expires
	}

	link, err := h.linkService.CreateLink(userContext(c), input)
	if err != nil {
		h.logFailure("failed to create link", err, zap.String("url", req.URL))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newLinkResponse(h.baseURL, *link))
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.listLimit)

	page, err := h.linkService.ListLinks(userContext(c), limit)
	if err != nil {
		h.logFailure("failed to list links", err)
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"links": lo.Map(page.Links, func(link model.Link, _ int) LinkResponse {
			return newLinkResponse(h.baseURL, link)
		}),
		"total": page.Total,
	})
}

// GetLink handles GET /api/links/:code
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	code := c.Params("code")

	link, err := h.linkService.GetLink(userContext(c), code)
	if err != nil {
		h.logFailure("failed to get link", err, zap.String("code", code))
		return writeError(c, err)
	}

	return c.JSON(newLinkResponse(h.baseURL, *link))
}

// LinkStatsResponse is the body of GET /api/links/:code/stats.
//
// ArchivedClicks is only present when the click archive is enabled.
type LinkStatsResponse struct {
	Code           string             `json:"code"`
	OriginalURL    string             `json:"original_url"`
	CreatedAt      string             `json:"created_at"`
	TotalClicks    int64              `json:"total_clicks"`
	RecentClicks   []model.ClickEvent `json:"recent_clicks"`
	ArchivedClicks *int64             `json:"archived_clicks,omitempty"`
}

// LinkStats handles GET /api/links/:code/stats
func (h *APIHandler) LinkStats(c *fiber.Ctx) error {
	code := c.Params("code")

	stats, err := h.linkService.LinkStats(userContext(c), code)
	if err != nil {
		h.logFailure("failed to load link stats", err, zap.String("code", code))
		return writeError(c, err)
	}

	return c.JSON(LinkStatsResponse{
		Code:           stats.Link.Code,
		OriginalURL:    stats.Link.URL,
		CreatedAt:      model.FormatTimestamp(stats.Link.CreatedAt),
		TotalClicks:    stats.Clicks.Total,
		RecentClicks:   stats.Clicks.Recent,
		ArchivedClicks: stats.Archived,
	})
}

// DeleteLink handles DELETE /api/links/:code
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	code := c.Params("code")

	if err := h.linkService.DeleteLink(userContext(c), code); err != nil {
		h.logFailure("failed to delete link", err, zap.String("code", code))
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"deleted": code,
	})
}

// logFailure logs only errors that map to a server-side status.
func (h *APIHandler) logFailure(msg string, err error, fields ...zap.Field) {
	if status, _ := errorStatus(err); status < fiber.StatusInternalServerError {
		return
	}
	h.logger.Error(msg, append(fields, zap.Error(err))...)
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
