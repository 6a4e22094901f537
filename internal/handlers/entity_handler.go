package handlers

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/viewtracking"
)

// EntityService is the subset of entities.Service used over HTTP.
type EntityService interface {
	Create(ctx context.Context, userID uint, req models.CreateEntityRequest) (*models.Entity, error)
	Get(ctx context.Context, id uint) (*models.Entity, error)
	List(ctx context.Context, f repositories.EntityFilter) ([]models.Entity, int64, error)
	Claim(ctx context.Context, id, userID uint) (*models.Entity, error)
	Verify(ctx context.Context, id uint) (*models.Entity, error)
}

// EntityReviews lists reviews of an entity.
type EntityReviews interface {
	ListByEntity(ctx context.Context, entityID uint, p repositories.Page) ([]models.Review, int64, error)
}

// EntityAnalytics reads per-entity view analytics.
type EntityAnalytics interface {
	EntityAnalytics(ctx context.Context, entityID uint, v viewtracking.Viewer) (*viewtracking.Analytics, error)
}

type EntityHandler struct {
	entities  EntityService
	reviews   EntityReviews
	analytics EntityAnalytics
}

func NewEntityHandler(entities EntityService, reviews EntityReviews, analytics EntityAnalytics) *EntityHandler {
	return &EntityHandler{entities: entities, reviews: reviews, analytics: analytics}
}

func (h *EntityHandler) RegisterEntityRoutes(public, protected, admin *echo.Group) {
	public.GET("/entities", h.List)
	public.GET("/entities/:id", h.Get)
	public.GET("/entities/:id/reviews", h.Reviews)

	protected.POST("/entities", h.Create)
	protected.POST("/entities/:id/claim", h.Claim)
	protected.GET("/entities/:id/analytics", h.Analytics)

	admin.POST("/entities/:id/verify", h.Verify)
}

// filterFrom reads the list query. Both camelCase and snake_case sort keys
// are accepted.
func filterFrom(c echo.Context) repositories.EntityFilter {
	sortBy := c.QueryParam("sortBy")
	if sortBy == "" {
		sortBy = c.QueryParam("sort_by")
	}
	sortOrder := c.QueryParam("sortOrder")
	if sortOrder == "" {
		sortOrder = c.QueryParam("sort_order")
	}
	f := repositories.EntityFilter{
		FinalCategoryID: queryUint(c, "final_category_id"),
		RootCategoryID:  queryUint(c, "root_category_id"),
		Search:          strings.TrimSpace(c.QueryParam("search")),
		SortBy:          sortBy,
		SortOrder:       sortOrder,
		Page:            pageFrom(c, 20, 100),
	}
	if v := queryBool(c, "verified"); v != nil {
		f.OnlyVerified = *v
	}
	return f
}

func (h *EntityHandler) List(c echo.Context) error {
	f := filterFrom(c)
	items, total, err := h.entities.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return Paginated(c, items, f.Page, total)
}

func (h *EntityHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	e, err := h.entities.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return OK(c, e)
}

func (h *EntityHandler) Reviews(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	p := pageFrom(c, 20, 100)
	items, total, err := h.reviews.ListByEntity(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return Paginated(c, items, p, total)
}

func (h *EntityHandler) Create(c echo.Context) error {
	var req models.CreateEntityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	e, err := h.entities.Create(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return Created(c, e, "entity created")
}

func (h *EntityHandler) Claim(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	e, err := h.entities.Claim(c.Request().Context(), id, middleware.UserID(c))
	if err != nil {
		return err
	}
	return Message(c, e, "entity claimed")
}

func (h *EntityHandler) Verify(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	e, err := h.entities.Verify(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return Message(c, e, "entity verified")
}

func (h *EntityHandler) Analytics(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.analytics.EntityAnalytics(c.Request().Context(), id, viewer(c))
	if err != nil {
		return err
	}
	return OK(c, a)
}

func viewer(c echo.Context) viewtracking.Viewer {
	return viewtracking.Viewer{UserID: middleware.UserID(c), IsAdmin: middleware.IsAdmin(c)}
}
