package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/viewtracking"
)

// ViewTracker is the subset of viewtracking.Service used over HTTP.
type ViewTracker interface {
	Track(ctx context.Context, req viewtracking.Request) (*viewtracking.Result, error)
	ReviewAnalytics(ctx context.Context, reviewID uint, v viewtracking.Viewer) (*viewtracking.Analytics, error)
	EntityAnalytics(ctx context.Context, entityID uint, v viewtracking.Viewer) (*viewtracking.Analytics, error)
}

type ViewTrackingHandler struct {
	views ViewTracker
}

func NewViewTrackingHandler(views ViewTracker) *ViewTrackingHandler {
	return &ViewTrackingHandler{views: views}
}

// RegisterViewRoutes mounts tracking under optional auth and analytics under
// required auth.
func (h *ViewTrackingHandler) RegisterViewRoutes(public, protected *echo.Group) {
	public.POST("/reviews/:id", h.track(models.ContentReview))
	public.POST("/entities/:id", h.track(models.ContentEntity))

	protected.GET("/reviews/:id/analytics", h.ReviewAnalytics)
	protected.GET("/entities/:id/analytics", h.EntityAnalytics)
}

func (h *ViewTrackingHandler) track(contentType string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		res, err := h.views.Track(c.Request().Context(), viewtracking.Request{
			ContentType: contentType,
			ContentID:   id,
			UserID:      middleware.OptionalUserID(c),
			IPAddress:   viewtracking.ClientIP(c.Request()),
			UserAgent:   c.Request().UserAgent(),
		})
		if err != nil {
			return err
		}
		return OK(c, res)
	}
}

func (h *ViewTrackingHandler) ReviewAnalytics(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.views.ReviewAnalytics(c.Request().Context(), id, viewer(c))
	if err != nil {
		return err
	}
	return OK(c, a)
}

func (h *ViewTrackingHandler) EntityAnalytics(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.views.EntityAnalytics(c.Request().Context(), id, viewer(c))
	if err != nil {
		return err
	}
	return OK(c, a)
}
