package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/auth"
	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
)

// FollowService is the subset of social.Service used by UserHandler.
type FollowService interface {
	Follow(ctx context.Context, followerID, targetID uint) error
	Unfollow(ctx context.Context, followerID, targetID uint) error
	IsFollowing(ctx context.Context, followerID, targetID uint) (bool, error)
	Followers(ctx context.Context, userID uint, p repositories.Page) ([]models.User, error)
	Following(ctx context.Context, userID uint, p repositories.Page) ([]models.User, error)
}

// UserReviews lists a user's reviews.
type UserReviews interface {
	ListByUser(ctx context.Context, userID uint, p repositories.Page) ([]models.Review, int64, error)
}

// UserHandler handles HTTP requests related to users
type UserHandler struct {
	users   repositories.UserRepository
	follows FollowService
	reviews UserReviews
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repositories.UserRepository, follows FollowService, reviews UserReviews) *UserHandler {
	return &UserHandler{users: users, follows: follows, reviews: reviews}
}

// RegisterUserRoutes registers user routes. public routes run with optional
// auth, protected routes require a token.
func (h *UserHandler) RegisterUserRoutes(public, protected *echo.Group) {
	protected.PUT("/users/me", h.UpdateProfile)
	protected.POST("/users/:id/follow", h.Follow)
	protected.DELETE("/users/:id/follow", h.Unfollow)

	public.GET("/users/search", h.Search)
	public.GET("/users/:id", h.GetUser)
	public.GET("/users/:id/reviews", h.Reviews)
	public.GET("/users/:id/followers", h.Followers)
	public.GET("/users/:id/following", h.Following)
}

// UserProfile is a user as seen by the caller.
type UserProfile struct {
	*models.User
	IsFollowing *bool `json:"is_following,omitempty"`
	IsSelf      bool  `json:"is_self"`
}

// lookup resolves :id as a numeric id or a username.
func (h *UserHandler) lookup(c echo.Context) (*models.User, error) {
	key := c.Param("id")
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		return h.users.GetUserByID(c.Request().Context(), uint(id))
	}
	return h.users.GetUserByUsername(c.Request().Context(), strings.ToLower(key))
}

func (h *UserHandler) GetUser(c echo.Context) error {
	user, err := h.lookup(c)
	if err != nil {
		return err
	}
	profile := UserProfile{User: user}
	if viewer := middleware.UserID(c); viewer != 0 {
		profile.IsSelf = viewer == user.ID
		if !profile.IsSelf {
			following, err := h.follows.IsFollowing(c.Request().Context(), viewer, user.ID)
			if err != nil {
				return err
			}
			profile.IsFollowing = &following
		}
	}
	return OK(c, profile)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req models.UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	id := middleware.UserID(c)
	user, err := h.users.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{}
	first, last := user.FirstName, user.LastName
	if req.FirstName != nil {
		first = strings.TrimSpace(*req.FirstName)
		fields["first_name"] = first
	}
	if req.LastName != nil {
		last = strings.TrimSpace(*req.LastName)
		fields["last_name"] = last
	}
	if req.FirstName != nil || req.LastName != nil {
		if err := auth.ValidateNames(first, last); err != nil {
			return err
		}
	}
	if req.Bio != nil {
		fields["bio"] = strings.TrimSpace(*req.Bio)
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = *req.AvatarURL
	}
	if len(fields) > 0 {
		if err := h.users.UpdateFields(ctx, id, fields); err != nil {
			return err
		}
	}
	updated, err := h.users.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	return Message(c, updated, "profile updated")
}

func (h *UserHandler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return OK(c, []models.UserCompact{})
	}
	users, err := h.users.SearchUsers(c.Request().Context(), q, 20)
	if err != nil {
		return err
	}
	out := make([]models.UserCompact, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToCompact())
	}
	return OK(c, out)
}

func (h *UserHandler) Reviews(c echo.Context) error {
	user, err := h.lookup(c)
	if err != nil {
		return err
	}
	p := pageFrom(c, 20, 100)
	reviews, total, err := h.reviews.ListByUser(c.Request().Context(), user.ID, p)
	if err != nil {
		return err
	}
	return Paginated(c, reviews, p, total)
}

func (h *UserHandler) Follow(c echo.Context) error {
	target, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.follows.Follow(c.Request().Context(), middleware.UserID(c), target); err != nil {
		return err
	}
	return OK(c, echo.Map{"following": true})
}

func (h *UserHandler) Unfollow(c echo.Context) error {
	target, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.follows.Unfollow(c.Request().Context(), middleware.UserID(c), target); err != nil {
		return err
	}
	return OK(c, echo.Map{"following": false})
}

func (h *UserHandler) Followers(c echo.Context) error {
	return h.listRelation(c, h.follows.Followers)
}

func (h *UserHandler) Following(c echo.Context) error {
	return h.listRelation(c, h.follows.Following)
}

func (h *UserHandler) listRelation(c echo.Context, list func(context.Context, uint, repositories.Page) ([]models.User, error)) error {
	user, err := h.lookup(c)
	if err != nil {
		return err
	}
	users, err := list(c.Request().Context(), user.ID, pageFrom(c, 20, 100))
	if err != nil {
		return err
	}
	out := make([]models.UserCompact, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToCompact())
	}
	return OK(c, out)
}
