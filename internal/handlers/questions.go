package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/catalog"
	"github.com/yourorg/synapse/internal/models"
)

const maxPageLimit = 100

// QuestionsHandler serves the question bank to unlocked devices.
type QuestionsHandler struct {
	catalog *catalog.Catalog
}

func NewQuestionsHandler(c *catalog.Catalog) *QuestionsHandler {
	return &QuestionsHandler{catalog: c}
}

// List handles GET /api/questions?course=&year=&topic=&page=&limit=.
// Facet parameters may repeat or hold comma-separated values.
func (h *QuestionsHandler) List(c *fiber.Ctx) error {
	filter := catalog.Filter{
		Courses: multiQuery(c, "course"),
		Years:   multiQuery(c, "year"),
		Topics:  multiQuery(c, "topic"),
	}
	limit := c.QueryInt("limit", 0)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page, err := h.catalog.Query(c.UserContext(), filter, c.QueryInt("page", 1), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(models.QuestionsResponse{Page: page, Filter: filter})
}

// Facets handles GET /api/questions/facets.
func (h *QuestionsHandler) Facets(c *fiber.Ctx) error {
	facets, err := h.catalog.Facets(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(facets)
}

// Refresh handles POST /api/admin/questions/refresh.
func (h *QuestionsHandler) Refresh(c *fiber.Ctx) error {
	h.catalog.Refresh()
	if _, err := h.catalog.Questions(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(h.catalog.Status())
}

func multiQuery(c *fiber.Ctx, key string) []string {
	var out []string
	for _, raw := range c.Context().QueryArgs().PeekMulti(key) {
		for _, v := range strings.Split(string(raw), ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
