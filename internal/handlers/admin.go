package handlers

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/models"
	"github.com/yourorg/synapse/internal/tokenstore"
	"github.com/yourorg/synapse/internal/validation"
)

// AdminHandler manages access tokens.
type AdminHandler struct {
	gate *gate.Service
}

func NewAdminHandler(g *gate.Service) *AdminHandler {
	return &AdminHandler{gate: g}
}

// ListTokens handles GET /api/admin/tokens.
func (h *AdminHandler) ListTokens(c *fiber.Ctx) error {
	records, err := h.gate.Tokens(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	resp := models.TokenListResponse{Tokens: make([]models.TokenDTO, 0, len(records))}
	for _, rec := range records {
		dto := toTokenDTO(rec)
		if dto.Bound {
			resp.Bound++
		}
		resp.Tokens = append(resp.Tokens, dto)
	}
	resp.Total = len(resp.Tokens)
	return c.JSON(resp)
}

// IssueTokens handles POST /api/admin/tokens.
func (h *AdminHandler) IssueTokens(c *fiber.Ctx) error {
	var req models.IssueTokensRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "invalid json", Code: models.CodeInvalidRequest})
		}
	}

	ctx := c.UserContext()
	if token := strings.TrimSpace(req.Token); token != "" {
		if err := validation.ValidateToken(token); err != nil {
			return writeError(c, err)
		}
		if err := h.gate.Issue(ctx, token); err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(models.IssueTokensResponse{Tokens: []string{token}})
	}

	if req.Count == 0 {
		req.Count = 1
	}
	if err := validation.ValidateIssueCount(req.Count); err != nil {
		return writeError(c, err)
	}
	issued, err := h.gate.IssueGenerated(ctx, req.Count)
	if err != nil && len(issued) == 0 {
		return writeError(c, err)
	}
	if err != nil {
		log.Printf("[ADMIN] issued %d of %d tokens: %v", len(issued), req.Count, err)
	}
	return c.Status(fiber.StatusCreated).JSON(models.IssueTokensResponse{Tokens: issued})
}

// ResetToken handles POST /api/admin/tokens/:token/reset.
func (h *AdminHandler) ResetToken(c *fiber.Ctx) error {
	if err := h.gate.Reset(c.UserContext(), c.Params("token")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RevokeToken handles DELETE /api/admin/tokens/:token.
func (h *AdminHandler) RevokeToken(c *fiber.Ctx) error {
	if err := h.gate.Revoke(c.UserContext(), c.Params("token")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func toTokenDTO(rec tokenstore.Record) models.TokenDTO {
	dto := models.TokenDTO{
		Token:    rec.Token,
		Bound:    rec.Bound(),
		DeviceID: rec.DeviceID,
	}
	if !rec.RegisteredAt.IsZero() {
		t := rec.RegisteredAt.UTC()
		dto.RegisteredAt = &t
	}
	if !rec.CreatedAt.IsZero() {
		t := rec.CreatedAt.UTC().Truncate(time.Second)
		dto.CreatedAt = &t
	}
	return dto
}
