package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/messaging"
	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
)

// MessengerService is the subset of messaging.Service used over HTTP.
type MessengerService interface {
	CreateConversation(ctx context.Context, creatorID uint, req models.CreateConversationRequest) (*models.Conversation, error)
	Conversations(ctx context.Context, userID uint, p repositories.Page) ([]messaging.ConversationView, int64, error)
	Send(ctx context.Context, senderID uint, req models.SendMessageRequest) (*messaging.Delivery, error)
	Messages(ctx context.Context, userID, conversationID, beforeID uint, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, userID, conversationID uint) ([]uint, error)
	React(ctx context.Context, userID, messageID uint, reactionType string) (*messaging.Reaction, error)
	Unreact(ctx context.Context, userID, messageID uint, reactionType string) (*messaging.Reaction, error)
}

// LivePublisher pushes messenger events to connected sockets.
type LivePublisher interface {
	PublishMessage(senderID uint, d *messaging.Delivery)
	PublishRead(userID, conversationID uint, participants []uint)
	PublishReaction(r *messaging.Reaction)
}

// MessengerHandler serves /messenger. Writes are fanned out to websocket
// peers the same way socket frames are.
type MessengerHandler struct {
	messenger MessengerService
	live      LivePublisher
}

func NewMessengerHandler(svc MessengerService, live LivePublisher) *MessengerHandler {
	return &MessengerHandler{messenger: svc, live: live}
}

func (h *MessengerHandler) RegisterMessengerRoutes(g *echo.Group) {
	g.GET("/conversations", h.Conversations)
	g.POST("/conversations", h.CreateConversation)
	g.GET("/conversations/:id/messages", h.Messages)
	g.POST("/conversations/:id/read", h.MarkRead)
	g.POST("/messages", h.Send)
	g.POST("/messages/:id/reactions", h.React)
	g.DELETE("/messages/:id/reactions", h.Unreact)
}

func (h *MessengerHandler) Conversations(c echo.Context) error {
	p := pageFrom(c, 20, 100)
	items, total, err := h.messenger.Conversations(c.Request().Context(), middleware.UserID(c), p)
	if err != nil {
		return err
	}
	return Paginated(c, items, p, total)
}

func (h *MessengerHandler) CreateConversation(c echo.Context) error {
	var req models.CreateConversationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	conv, err := h.messenger.CreateConversation(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return Created(c, conv, "")
}

func (h *MessengerHandler) Messages(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	msgs, err := h.messenger.Messages(c.Request().Context(), middleware.UserID(c), id,
		queryUint(c, "before_id"), queryInt(c, "limit", 50))
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return OK(c, msgs)
}

func (h *MessengerHandler) MarkRead(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	userID := middleware.UserID(c)
	participants, err := h.messenger.MarkRead(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	h.live.PublishRead(userID, id, participants)
	return Message(c, nil, "conversation marked as read")
}

func (h *MessengerHandler) Send(c echo.Context) error {
	var req models.SendMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	userID := middleware.UserID(c)
	d, err := h.messenger.Send(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	h.live.PublishMessage(userID, d)
	return Created(c, d.Message, "")
}

type messageReactionRequest struct {
	ReactionType string `json:"reaction_type" validate:"required,max=20"`
}

func (h *MessengerHandler) React(c echo.Context) error {
	return h.changeReaction(c, h.messenger.React)
}

func (h *MessengerHandler) Unreact(c echo.Context) error {
	return h.changeReaction(c, h.messenger.Unreact)
}

func (h *MessengerHandler) changeReaction(c echo.Context, change func(context.Context, uint, uint, string) (*messaging.Reaction, error)) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req messageReactionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := change(c.Request().Context(), middleware.UserID(c), id, req.ReactionType)
	if err != nil {
		return err
	}
	h.live.PublishReaction(r)
	return OK(c, r)
}
