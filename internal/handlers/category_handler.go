package handlers

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/category"
	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// CategoryService is the subset of category.Service used over HTTP.
type CategoryService interface {
	Roots(ctx context.Context) ([]models.Category, error)
	Children(ctx context.Context, parentID uint) ([]models.Category, error)
	Leaves(ctx context.Context, rootID *uint) ([]models.Category, error)
	Get(ctx context.Context, id uint, withChildren, withAncestors bool) (*category.Node, error)
	ByPath(ctx context.Context, path string) (*models.Category, error)
	Breadcrumb(ctx context.Context, id uint) ([]category.Crumb, error)
	Questions(ctx context.Context, id uint) ([]models.CategoryQuestion, error)
	Create(ctx context.Context, req models.CreateCategoryRequest, userID *uint) (*models.Category, error)
	CreateCustom(ctx context.Context, req models.CreateCustomCategoryRequest, userID uint) (*models.Category, bool, error)
	Delete(ctx context.Context, id uint, cascade bool) (int, error)
	Search(ctx context.Context, query string, limit int) ([]category.SearchHit, error)
	Autocomplete(ctx context.Context, input string) (*category.Suggestion, error)
}

// CategoryHandler serves /unified-categories.
type CategoryHandler struct {
	categories CategoryService
}

func NewCategoryHandler(svc CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: svc}
}

func (h *CategoryHandler) RegisterCategoryRoutes(public, protected, admin *echo.Group) {
	public.GET("", h.Roots)
	public.GET("/roots", h.Roots)
	public.GET("/leaf", h.Leaves)
	public.GET("/search", h.Search)
	public.GET("/autocomplete", h.Autocomplete)
	public.GET("/path/*", h.ByPath)
	public.GET("/:id", h.Get)
	public.GET("/:id/children", h.Children)
	public.GET("/:id/breadcrumb", h.Breadcrumb)
	public.GET("/:id/questions", h.Questions)

	protected.POST("/custom", h.CreateCustom)

	admin.POST("", h.Create)
	admin.DELETE("/:id", h.Delete)
}

func (h *CategoryHandler) Roots(c echo.Context) error {
	roots, err := h.categories.Roots(c.Request().Context())
	if err != nil {
		return err
	}
	return OK(c, roots)
}

func (h *CategoryHandler) Leaves(c echo.Context) error {
	var root *uint
	if id := queryUint(c, "root_id"); id != 0 {
		root = &id
	}
	leaves, err := h.categories.Leaves(c.Request().Context(), root)
	if err != nil {
		return err
	}
	return OK(c, leaves)
}

func (h *CategoryHandler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return domain.NewValidationError("q", "is required")
	}
	hits, err := h.categories.Search(c.Request().Context(), q, queryInt(c, "limit", 20))
	if err != nil {
		return err
	}
	return OK(c, hits)
}

func (h *CategoryHandler) Autocomplete(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return domain.NewValidationError("q", "is required")
	}
	s, err := h.categories.Autocomplete(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return OK(c, s)
}

func (h *CategoryHandler) ByPath(c echo.Context) error {
	cat, err := h.categories.ByPath(c.Request().Context(), c.Param("*"))
	if err != nil {
		return err
	}
	return OK(c, cat)
}

func (h *CategoryHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	withChildren := queryBool(c, "include_children")
	withAncestors := queryBool(c, "include_ancestors")
	node, err := h.categories.Get(c.Request().Context(), id,
		withChildren != nil && *withChildren,
		withAncestors != nil && *withAncestors)
	if err != nil {
		return err
	}
	return OK(c, node)
}

func (h *CategoryHandler) Children(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	children, err := h.categories.Children(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return OK(c, children)
}

func (h *CategoryHandler) Breadcrumb(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	crumbs, err := h.categories.Breadcrumb(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return OK(c, crumbs)
}

func (h *CategoryHandler) Questions(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	qs, err := h.categories.Questions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return OK(c, qs)
}

func (h *CategoryHandler) Create(c echo.Context) error {
	var req models.CreateCategoryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cat, err := h.categories.Create(c.Request().Context(), req, middleware.OptionalUserID(c))
	if err != nil {
		return err
	}
	return Created(c, cat, "category created")
}

func (h *CategoryHandler) CreateCustom(c echo.Context) error {
	var req models.CreateCustomCategoryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cat, created, err := h.categories.CreateCustom(c.Request().Context(), req, middleware.UserID(c))
	if err != nil {
		return err
	}
	if !created {
		return Message(c, cat, "category already exists")
	}
	return Created(c, cat, "category created")
}

func (h *CategoryHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	cascade := queryBool(c, "cascade")
	n, err := h.categories.Delete(c.Request().Context(), id, cascade != nil && *cascade)
	if err != nil {
		return err
	}
	return Message(c, echo.Map{"deleted": n}, "category deleted")
}
