package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
)

// LatestReviews returns the newest reviews.
type LatestReviews interface {
	Latest(ctx context.Context, limit int) ([]models.Review, error)
}

// EntityLister lists entities.
type EntityLister interface {
	List(ctx context.Context, f repositories.EntityFilter) ([]models.Entity, int64, error)
}

// RootCategories returns the top of the category forest.
type RootCategories interface {
	Roots(ctx context.Context) ([]models.Category, error)
}

// HomepageHandler serves the public /homepage panels.
type HomepageHandler struct {
	reviews    LatestReviews
	entities   EntityLister
	categories RootCategories
	stats      repositories.StatsRepository
}

func NewHomepageHandler(reviews LatestReviews, entities EntityLister, categories RootCategories, stats repositories.StatsRepository) *HomepageHandler {
	return &HomepageHandler{reviews: reviews, entities: entities, categories: categories, stats: stats}
}

func (h *HomepageHandler) RegisterHomepageRoutes(g *echo.Group) {
	g.GET("/home_middle_panel", h.MiddlePanel)
	g.GET("/left_panel", h.LeftPanel)
	g.GET("/reviews", h.Reviews)
	g.GET("/entities", h.Entities)
	g.GET("/stats", h.Stats)
}

func clampLimit(v, def, max int) int {
	if v < 1 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func (h *HomepageHandler) topEntities(ctx context.Context, limit int) ([]models.Entity, error) {
	items, _, err := h.entities.List(ctx, repositories.EntityFilter{
		SortBy:    "review_count",
		SortOrder: "desc",
		Page:      repositories.Page{Page: 1, Limit: limit},
	})
	return items, err
}

// MiddlePanel combines recent reviews and popular entities.
func (h *HomepageHandler) MiddlePanel(c echo.Context) error {
	ctx := c.Request().Context()
	reviews, err := h.reviews.Latest(ctx, clampLimit(queryInt(c, "reviews_limit", 15), 15, 50))
	if err != nil {
		return err
	}
	entities, err := h.topEntities(ctx, clampLimit(queryInt(c, "entities_limit", 20), 20, 50))
	if err != nil {
		return err
	}
	return OK(c, echo.Map{
		"recent_reviews":    reviews,
		"trending_entities": entities,
	})
}

func (h *HomepageHandler) LeftPanel(c echo.Context) error {
	ctx := c.Request().Context()
	roots, err := h.categories.Roots(ctx)
	if err != nil {
		return err
	}
	top, err := h.topEntities(ctx, clampLimit(queryInt(c, "limit", 5), 5, 20))
	if err != nil {
		return err
	}
	return OK(c, echo.Map{"categories": roots, "top_entities": top})
}

func (h *HomepageHandler) Reviews(c echo.Context) error {
	reviews, err := h.reviews.Latest(c.Request().Context(), clampLimit(queryInt(c, "limit", 20), 20, 100))
	if err != nil {
		return err
	}
	return OK(c, reviews)
}

func (h *HomepageHandler) Entities(c echo.Context) error {
	entities, err := h.topEntities(c.Request().Context(), clampLimit(queryInt(c, "limit", 20), 20, 100))
	if err != nil {
		return err
	}
	return OK(c, entities)
}

func (h *HomepageHandler) Stats(c echo.Context) error {
	stats, err := h.stats.Platform(c.Request().Context())
	if err != nil {
		return err
	}
	return OK(c, stats)
}
