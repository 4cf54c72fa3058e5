package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/billing"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/board"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/mediastore"
)

const requestTimeout = 15 * time.Second

var validate = models.NewValidator()

var (
	errInvalidBody = errors.New("request body could not be parsed")
	// errUnknownTag marks tag ids in a ticket payload that do not exist.
	errUnknownTag = errors.New("unknown tag")
)

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// parseBody decodes the JSON body into dst and runs the struct validation.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return validate.Struct(dst)
}

// respondError maps domain errors to HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, errInvalidBody):
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	case errors.As(err, &verrs):
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", verrs.Error())
	case errors.Is(err, errUnknownTag):
		return jsonError(c, fiber.StatusBadRequest, "unknown_tag", err.Error())
	case errors.Is(err, board.ErrIndexOutOfRange):
		return jsonError(c, fiber.StatusBadRequest, "index_out_of_range", "Source or destination index is out of range")
	case errors.Is(err, board.ErrLaneNotFound):
		return jsonError(c, fiber.StatusConflict, "lane_not_found", "Lane is not part of the current board")
	case errors.Is(err, mediastore.ErrEmptyFile):
		return jsonError(c, fiber.StatusBadRequest, "empty_file", err.Error())
	case errors.Is(err, mediastore.ErrFileTooLarge):
		return jsonError(c, fiber.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	case errors.Is(err, billing.ErrNoConnectAccount):
		return jsonError(c, fiber.StatusConflict, "no_connect_account", err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Resource not found")
	default:
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "Internal Server Error")
	}
}

// requestContext bounds the work a handler does on behalf of one request.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// HandlePing answers the API health check.
func HandlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ping": "pong"})
}
