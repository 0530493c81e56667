package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/sifan077/tinylink/internal/app/repository"
)

// LinkResponse is the JSON shape of a link on the management API.
type LinkResponse struct {
	Code        string  `json:"code"`
	ShortURL    string  `json:"short_url"`
	OriginalURL string  `json:"original_url"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   *string `json:"expires_at"`
	Clicks      int64   `json:"clicks"`
}

func newLinkResponse(baseURL string, link model.Link) LinkResponse {
	resp := LinkResponse{
		Code:        link.Code,
		ShortURL:    baseURL + "/" + link.Code,
		OriginalURL: link.URL,
		CreatedAt:   model.FormatTimestamp(link.CreatedAt),
		Clicks:      link.Clicks,
	}
	if link.ExpiresAt != nil {
		expires := model.FormatTimestamp(*link.ExpiresAt)
		resp.ExpiresAt = &expires
	}
	return resp
}

// errorStatus maps domain errors onto HTTP status codes and client messages.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrLinkNotFound):
		return fiber.StatusNotFound, "link not found"
	case errors.Is(err, repository.ErrLinkExpired):
		return fiber.StatusGone, "link expired"
	case errors.Is(err, repository.ErrInvalidURL):
		return fiber.StatusBadRequest, "invalid url: scheme must be http or https"
	case errors.Is(err, repository.ErrInvalidCode):
		return fiber.StatusBadRequest, "code must be alphanumeric and not a reserved path"
	case errors.Is(err, repository.ErrCodeConflict):
		return fiber.StatusConflict, "code already exists"
	case errors.Is(err, repository.ErrExhaustedKeyspace):
		return fiber.StatusServiceUnavailable, "no free code available"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status, msg := errorStatus(err)
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
