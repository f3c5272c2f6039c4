package controllers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ArtFox/internal/pkg/generation"
	"github.com/ManuelReschke/ArtFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ArtFox/internal/pkg/upload"
	"github.com/ManuelReschke/ArtFox/internal/pkg/usercontext"
)

// HandleGenerate accepts a multipart upload (field "image") plus projectId and
// style, and charges one credit after the provider returned an artwork.
func (h *Handler) HandleGenerate(c *fiber.Ctx) error {
	if h.Generator == nil {
		return errorResponse(c, fiber.StatusServiceUnavailable, "not_configured", "Artwork generation is not configured")
	}

	file, err := c.FormFile("image")
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", "Missing image upload")
	}
	if file.Size > upload.MaxImageBytes {
		return respondError(c, upload.ErrUploadTooLarge)
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, upload.MaxImageBytes+1))
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.Generator.Generate(c.UserContext(), generation.Request{
		UserID:    usercontext.GetUserID(c),
		ProjectID: c.FormValue("projectId"),
		Style:     c.FormValue("style"),
		Filename:  file.Filename,
		Image:     data,
	})
	if err != nil {
		if errors.Is(err, generation.ErrProviderFailed) {
			h.Counters.Inc(counter.GenerationsFailed)
		} else {
			h.Counters.Inc(counter.GenerationsRejected)
		}
		return respondError(c, err)
	}
	h.Counters.Inc(counter.GenerationsSucceeded)
	return c.JSON(result)
}
