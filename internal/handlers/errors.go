package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/catalog"
	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/models"
	"github.com/yourorg/synapse/internal/tokenstore"
	"github.com/yourorg/synapse/internal/validation"
)

// writeError maps a domain error to a status and ErrorResponse.
func writeError(c *fiber.Ctx, err error) error {
	status, body := classify(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(body)
}

func classify(err error) (int, models.ErrorResponse) {
	var fe *validation.FieldError
	switch {
	case errors.As(err, &fe):
		return fiber.StatusBadRequest, models.ErrorResponse{Error: fe.Error(), Code: models.CodeInvalidRequest}
	case errors.Is(err, gate.ErrEmptyToken):
		return fiber.StatusUnprocessableEntity, models.ErrorResponse{Error: gate.ErrEmptyToken.Error(), Code: models.CodeEmptyToken}
	case errors.Is(err, gate.ErrMissingDevice):
		return fiber.StatusBadRequest, models.ErrorResponse{Error: gate.ErrMissingDevice.Error(), Code: models.CodeMissingDevice}
	case errors.Is(err, gate.ErrInvalidToken):
		return fiber.StatusUnauthorized, models.ErrorResponse{Error: gate.ErrInvalidToken.Error(), Code: models.CodeInvalidToken}
	case errors.Is(err, gate.ErrDeviceMismatch):
		return fiber.StatusForbidden, models.ErrorResponse{Error: gate.ErrDeviceMismatch.Error(), Code: models.CodeDeviceMismatch}
	case errors.Is(err, gate.ErrStoreUnavailable), errors.Is(err, tokenstore.ErrUnavailable):
		return fiber.StatusServiceUnavailable, models.ErrorResponse{Error: gate.ErrStoreUnavailable.Error(), Code: models.CodeStoreUnavailable}
	case errors.Is(err, tokenstore.ErrTokenNotFound):
		return fiber.StatusNotFound, models.ErrorResponse{Error: "token not found", Code: models.CodeNotFound}
	case errors.Is(err, tokenstore.ErrTokenExists):
		return fiber.StatusConflict, models.ErrorResponse{Error: "token already exists", Code: models.CodeConflict}
	case errors.Is(err, catalog.ErrEmptyLibrary):
		return fiber.StatusServiceUnavailable, models.ErrorResponse{Error: "the library is empty, check the question source", Code: models.CodeEmptyLibrary}
	default:
		return fiber.StatusInternalServerError, models.ErrorResponse{Error: "internal error", Code: models.CodeInternal}
	}
}
