package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// CircleService is the circle-request subset of social.Service.
type CircleService interface {
	SendCircleRequest(ctx context.Context, senderID uint, in models.CreateCircleRequest) (*models.CircleRequest, error)
	RespondCircleRequest(ctx context.Context, userID, requestID uint, status string) (*models.CircleRequest, error)
	PendingRequests(ctx context.Context, userID uint) ([]models.CircleRequest, error)
	Members(ctx context.Context, userID uint) ([]models.User, error)
}

type CircleHandler struct {
	circles CircleService
}

func NewCircleHandler(svc CircleService) *CircleHandler {
	return &CircleHandler{circles: svc}
}

func (h *CircleHandler) RegisterCircleRoutes(g *echo.Group) {
	g.GET("/members", h.Members)
	g.GET("/requests/pending", h.Pending)
	g.POST("/requests", h.Send)
	g.PUT("/requests/:id", h.Respond)
}

func (h *CircleHandler) Members(c echo.Context) error {
	users, err := h.circles.Members(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	out := make([]models.UserCompact, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToCompact())
	}
	return OK(c, out)
}

func (h *CircleHandler) Pending(c echo.Context) error {
	reqs, err := h.circles.PendingRequests(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	if reqs == nil {
		reqs = []models.CircleRequest{}
	}
	return OK(c, reqs)
}

func (h *CircleHandler) Send(c echo.Context) error {
	var req models.CreateCircleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	out, err := h.circles.SendCircleRequest(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return Created(c, out, "circle request sent")
}

func (h *CircleHandler) Respond(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req models.RespondCircleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	out, err := h.circles.RespondCircleRequest(c.Request().Context(), middleware.UserID(c), id, req.Status)
	if err != nil {
		return err
	}
	return Message(c, out, "circle request "+req.Status)
}
