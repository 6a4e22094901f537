package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/notification"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
)

// NotificationService is the subset of notification.Service used over HTTP.
type NotificationService interface {
	Dropdown(ctx context.Context, userID uint) (*notification.Dropdown, error)
	Summary(ctx context.Context, userID uint) (*notification.Summary, error)
	List(ctx context.Context, userID uint, f repositories.NotificationFilter, p repositories.Page) ([]models.Notification, int64, error)
	Stats(ctx context.Context, userID uint) (*repositories.NotificationCounts, error)
	Update(ctx context.Context, userID, id uint, req models.UpdateNotificationRequest) (*models.Notification, error)
	MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	BulkUpdate(ctx context.Context, userID uint, req models.BulkUpdateNotificationsRequest) (int64, error)
	Delete(ctx context.Context, userID, id uint) error
	Broadcast(ctx context.Context, actorID uint, req models.BroadcastRequest) (int, error)
}

// NotificationHandler serves /enterprise-notifications.
type NotificationHandler struct {
	notifications NotificationService
}

func NewNotificationHandler(svc NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: svc}
}

func (h *NotificationHandler) RegisterNotificationRoutes(g, admin *echo.Group) {
	g.GET("", h.List)
	g.GET("/", h.List)
	g.GET("/dropdown", h.Dropdown)
	g.GET("/summary", h.Summary)
	g.GET("/stats", h.Stats)
	g.PATCH("/mark-all-read", h.MarkAllRead)
	g.PATCH("/bulk-update", h.BulkUpdate)
	g.PATCH("/:id", h.Update)
	g.PATCH("/:id/read", h.MarkRead)
	g.DELETE("/:id", h.Delete)

	admin.POST("/broadcast", h.Broadcast)
}

func (h *NotificationHandler) Dropdown(c echo.Context) error {
	d, err := h.notifications.Dropdown(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return OK(c, d)
}

func (h *NotificationHandler) Summary(c echo.Context) error {
	s, err := h.notifications.Summary(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return OK(c, s)
}

func (h *NotificationHandler) List(c echo.Context) error {
	f := repositories.NotificationFilter{
		IsRead:         queryBool(c, "is_read"),
		Type:           c.QueryParam("type"),
		Priority:       c.QueryParam("priority"),
		DeliveryStatus: c.QueryParam("delivery_status"),
	}
	if v := queryBool(c, "include_expired"); v != nil {
		f.IncludeExpired = *v
	}
	p := pageFrom(c, 20, 100)
	items, total, err := h.notifications.List(c.Request().Context(), middleware.UserID(c), f, p)
	if err != nil {
		return err
	}
	return Paginated(c, items, p, total)
}

func (h *NotificationHandler) Stats(c echo.Context) error {
	s, err := h.notifications.Stats(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return OK(c, s)
}

func (h *NotificationHandler) Update(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req models.UpdateNotificationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	n, err := h.notifications.Update(c.Request().Context(), middleware.UserID(c), id, req)
	if err != nil {
		return err
	}
	return OK(c, n)
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	n, err := h.notifications.MarkRead(c.Request().Context(), middleware.UserID(c), id)
	if err != nil {
		return err
	}
	return OK(c, n)
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	n, err := h.notifications.MarkAllRead(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return Message(c, echo.Map{"updated": n}, "all notifications marked as read")
}

func (h *NotificationHandler) BulkUpdate(c echo.Context) error {
	var req models.BulkUpdateNotificationsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	n, err := h.notifications.BulkUpdate(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return OK(c, echo.Map{"updated": n})
}

func (h *NotificationHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.notifications.Delete(c.Request().Context(), middleware.UserID(c), id); err != nil {
		return err
	}
	return Message(c, nil, "notification deleted")
}

func (h *NotificationHandler) Broadcast(c echo.Context) error {
	var req models.BroadcastRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	n, err := h.notifications.Broadcast(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return Created(c, echo.Map{"recipients": n}, "broadcast sent")
}
