package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/catalog"
	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/models"
	"github.com/yourorg/synapse/internal/tokenstore"
	"github.com/yourorg/synapse/internal/validation"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{gate.ErrEmptyToken, fiber.StatusUnprocessableEntity, models.CodeEmptyToken},
		{gate.ErrMissingDevice, fiber.StatusBadRequest, models.CodeMissingDevice},
		{gate.ErrInvalidToken, fiber.StatusUnauthorized, models.CodeInvalidToken},
		{gate.ErrDeviceMismatch, fiber.StatusForbidden, models.CodeDeviceMismatch},
		{fmt.Errorf("%w: dial tcp", gate.ErrStoreUnavailable), fiber.StatusServiceUnavailable, models.CodeStoreUnavailable},
		{tokenstore.ErrTokenNotFound, fiber.StatusNotFound, models.CodeNotFound},
		{tokenstore.ErrTokenExists, fiber.StatusConflict, models.CodeConflict},
		{fmt.Errorf("%w: boom", catalog.ErrEmptyLibrary), fiber.StatusServiceUnavailable, models.CodeEmptyLibrary},
		{&validation.FieldError{Field: "token", Message: "bad"}, fiber.StatusBadRequest, models.CodeInvalidRequest},
		{errors.New("surprise"), fiber.StatusInternalServerError, models.CodeInternal},
	}
	for _, tc := range cases {
		status, body := classify(tc.err)
		if status != tc.status || body.Code != tc.code {
			t.Errorf("classify(%v) = %d/%s, want %d/%s", tc.err, status, body.Code, tc.status, tc.code)
		}
	}
}

func TestStoreErrorMessageDoesNotLeakCause(t *testing.T) {
	_, body := classify(fmt.Errorf("%w: dial tcp 10.0.0.5:3306", gate.ErrStoreUnavailable))
	if body.Error != "connection error, access denied" {
		t.Fatalf("unexpected message %q", body.Error)
	}
}

func TestEmptyTokenPromptsForToken(t *testing.T) {
	status, body := classify(gate.ErrEmptyToken)
	if status != fiber.StatusUnprocessableEntity || body.Error != "please enter a token" {
		t.Fatalf("got %d %q", status, body.Error)
	}
}
