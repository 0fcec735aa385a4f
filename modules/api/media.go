package api

import (
	"errors"
	"net/url"

	"github.com/example/taskboard/modules/media"
	"github.com/gofiber/fiber/v2"
)

// MediaHandlers serves images kept by a media backend that has no public host.
type MediaHandlers struct {
	fetcher media.Fetcher
}

// NewMediaHandlers creates a new MediaHandlers instance.
func NewMediaHandlers(fetcher media.Fetcher) *MediaHandlers {
	return &MediaHandlers{fetcher: fetcher}
}

// Get handles GET /media/*.
func (h *MediaHandlers) Get(c *fiber.Ctx) error {
	publicID, err := url.PathUnescape(c.Params("*"))
	if err != nil || publicID == "" {
		return badRequest(c, "Invalid media path")
	}

	data, contentType, err := h.fetcher.Fetch(c.UserContext(), publicID)
	if err != nil {
		if errors.Is(err, media.ErrObjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "Media not found",
			})
		}
		return internalError(c, err)
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400, immutable")
	return c.Status(fiber.StatusOK).Send(data)
}
