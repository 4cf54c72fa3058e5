package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/mediastore"
)

// MediaController manages the media library of a sub-account.
type MediaController struct {
	media *mediastore.Service
}

func NewMediaController(media *mediastore.Service) *MediaController {
	return &MediaController{media: media}
}

// HandleUpload stores the multipart "file" under an optional display "name".
func (mc *MediaController) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "missing_file", "Multipart field 'file' is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_file", "Uploaded file could not be read")
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	media, err := mc.media.Upload(ctx, mediastore.Upload{
		SubAccountID: c.Params("subaccountId"),
		Name:         c.FormValue("name"),
		FileName:     fileHeader.Filename,
		ContentType:  contentType,
		Size:         fileHeader.Size,
		Body:         file,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(media)
}

func (mc *MediaController) HandleList(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	media, err := mc.media.List(ctx, c.Params("subaccountId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"media": media})
}

func (mc *MediaController) HandleDelete(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	media, err := mc.media.Delete(ctx, c.Params("mediaId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": media.ID})
}
