package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/reviews"
)

// ReviewService is the subset of reviews.Service used over HTTP.
type ReviewService interface {
	CreateReview(ctx context.Context, userID uint, req models.CreateReviewRequest) (*models.Review, error)
	GetReview(ctx context.Context, id uint) (*models.Review, error)
	DeleteReview(ctx context.Context, id, userID uint, admin bool) error
	AddComment(ctx context.Context, reviewID, userID uint, req models.CreateCommentRequest) (*models.Comment, error)
	DeleteComment(ctx context.Context, commentID, userID uint, admin bool) error
	ListComments(ctx context.Context, reviewID uint, p repositories.Page) ([]models.Comment, int64, error)
	React(ctx context.Context, userID uint, targetType string, targetID uint, reactionType string) (*reviews.ReactionResult, error)
	Unreact(ctx context.Context, userID uint, targetType string, targetID uint) error
	Summary(ctx context.Context, targetType string, targetID uint) (map[string]int64, error)
}

// ReviewHandler serves reviews, their comments and reactions.
type ReviewHandler struct {
	reviews ReviewService
}

func NewReviewHandler(svc ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: svc}
}

func (h *ReviewHandler) RegisterReviewRoutes(public, protected *echo.Group) {
	public.GET("/reviews/:id", h.Get)
	public.GET("/reviews/:id/comments", h.Comments)
	public.GET("/reviews/:id/reactions", h.reactionSummary(models.TargetReview))
	public.GET("/comments/:id/reactions", h.reactionSummary(models.TargetComment))

	protected.POST("/reviews", h.Create)
	protected.DELETE("/reviews/:id", h.Delete)
	protected.POST("/reviews/:id/comments", h.AddComment)
	protected.DELETE("/comments/:id", h.DeleteComment)
	protected.POST("/reviews/:id/reactions", h.react(models.TargetReview))
	protected.DELETE("/reviews/:id/reactions", h.unreact(models.TargetReview))
	protected.POST("/comments/:id/reactions", h.react(models.TargetComment))
	protected.DELETE("/comments/:id/reactions", h.unreact(models.TargetComment))
}

func (h *ReviewHandler) Create(c echo.Context) error {
	var req models.CreateReviewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := h.reviews.CreateReview(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return Created(c, r, "review created")
}

func (h *ReviewHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.reviews.GetReview(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return OK(c, r)
}

func (h *ReviewHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.reviews.DeleteReview(c.Request().Context(), id, middleware.UserID(c), middleware.IsAdmin(c)); err != nil {
		return err
	}
	return Message(c, nil, "review deleted")
}

func (h *ReviewHandler) Comments(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	p := pageFrom(c, 20, 100)
	items, total, err := h.reviews.ListComments(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return Paginated(c, items, p, total)
}

func (h *ReviewHandler) AddComment(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req models.CreateCommentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	comment, err := h.reviews.AddComment(c.Request().Context(), id, middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return Created(c, comment, "comment added")
}

func (h *ReviewHandler) DeleteComment(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.reviews.DeleteComment(c.Request().Context(), id, middleware.UserID(c), middleware.IsAdmin(c)); err != nil {
		return err
	}
	return Message(c, nil, "comment deleted")
}

func (h *ReviewHandler) react(targetType string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		var req models.ReactRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		res, err := h.reviews.React(c.Request().Context(), middleware.UserID(c), targetType, id, req.ReactionType)
		if err != nil {
			return err
		}
		return OK(c, res)
	}
}

func (h *ReviewHandler) unreact(targetType string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		if err := h.reviews.Unreact(c.Request().Context(), middleware.UserID(c), targetType, id); err != nil {
			return err
		}
		return Message(c, nil, "reaction removed")
	}
}

func (h *ReviewHandler) reactionSummary(targetType string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		summary, err := h.reviews.Summary(c.Request().Context(), targetType, id)
		if err != nil {
			return err
		}
		return OK(c, summary)
	}
}
