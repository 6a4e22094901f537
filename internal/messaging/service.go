// Package messaging persists conversations, participants and messages. The
// realtime hub and the messenger HTTP handlers both write through it so the
// database stays the source of truth for delivery retries.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

const (
	maxGroupParticipants = 100
	defaultMessagePage   = 50
	maxMessagePage       = 100
)

// ErrNotParticipant is returned when the caller is not an active participant.
var ErrNotParticipant = fmt.Errorf("not a participant of this conversation: %w", domain.ErrForbidden)

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	models.Conversation
	UnreadCount int64      `json:"unread_count"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
}

// Delivery is a persisted message together with the active participants it
// must be fanned out to.
type Delivery struct {
	Message      *models.Message
	Participants []uint
}

type Service struct {
	tx    *repositories.TxManager
	repo  repositories.ConversationRepository
	users repositories.UserRepository
	now   func() time.Time
	log   zerolog.Logger
}

func NewService(tx *repositories.TxManager, repo repositories.ConversationRepository, users repositories.UserRepository) *Service {
	return &Service{
		tx:    tx,
		repo:  repo,
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logging.With("messaging"),
	}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateConversation opens a conversation between the creator and the given
// users. A direct conversation that already exists is returned as is.
func (s *Service) CreateConversation(ctx context.Context, creatorID uint, req models.CreateConversationRequest) (*models.Conversation, error) {
	others := dedupe(req.ParticipantIDs, creatorID)
	if len(others) == 0 {
		return nil, domain.NewValidationError("participant_ids", "must name at least one other user")
	}
	switch req.ConversationType {
	case models.ConversationDirect:
		if len(others) != 1 {
			return nil, domain.NewValidationError("participant_ids", "a direct conversation has exactly one other participant")
		}
	case models.ConversationGroup:
		if len(others)+1 > maxGroupParticipants {
			return nil, domain.NewValidationError("participant_ids", fmt.Sprintf("at most %d participants", maxGroupParticipants))
		}
	default:
		return nil, domain.NewValidationError("conversation_type", "must be one of: direct group")
	}
	for _, id := range others {
		if _, err := s.users.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewValidationError("participant_ids", fmt.Sprintf("unknown user %d", id))
			}
			return nil, err
		}
	}

	if req.ConversationType == models.ConversationDirect {
		existing, err := s.repo.FindDirect(ctx, creatorID, others[0])
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	now := s.now()
	conv := &models.Conversation{
		ConversationType: req.ConversationType,
		Title:            strings.TrimSpace(req.Title),
		IsPrivate:        req.IsPrivate || req.ConversationType == models.ConversationDirect,
		MaxParticipants:  maxGroupParticipants,
		CreatedByUserID:  creatorID,
	}
	if req.ConversationType == models.ConversationDirect {
		conv.MaxParticipants = 2
	}
	participants := []models.Participant{{UserID: creatorID, Role: models.ParticipantAdmin, JoinedAt: now}}
	for _, id := range others {
		participants = append(participants, models.Participant{UserID: id, Role: models.ParticipantMember, JoinedAt: now})
	}
	if err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, conv, participants)
	}); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.log.Info().Uint("conversation_id", conv.ID).Uint("user_id", creatorID).Int("participants", len(participants)).Msg("conversation created")
	return conv, nil
}

// Conversations lists the caller's conversations, most recently active first.
func (s *Service) Conversations(ctx context.Context, userID uint, p repositories.Page) ([]ConversationView, int64, error) {
	convs, total, err := s.repo.ListForUser(ctx, userID, p.Normalize(20, 100))
	if err != nil {
		return nil, 0, err
	}
	ids := make([]uint, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	mine, err := s.repo.ParticipantsFor(ctx, ids, userID)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ConversationView, len(convs))
	for i, c := range convs {
		out[i] = ConversationView{Conversation: c}
		if p, ok := mine[c.ID]; ok {
			out[i].UnreadCount = p.UnreadCount
			out[i].LastReadAt = p.LastReadAt
		}
	}
	return out, total, nil
}

// IsParticipant reports whether userID is an active participant.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	_, err := s.repo.GetParticipant(ctx, conversationID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID uint) error {
	ok, err := s.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// Participants returns the active participant IDs, read from the database.
func (s *Service) Participants(ctx context.Context, conversationID uint) ([]uint, error) {
	return s.repo.ActiveParticipantIDs(ctx, conversationID)
}

// ConversationIDs returns the conversations userID is active in.
func (s *Service) ConversationIDs(ctx context.Context, userID uint) ([]uint, error) {
	return s.repo.ConversationIDsForUser(ctx, userID)
}

// Send persists a message, bumps the other participants' unread counters and
// returns the fan-out set.
func (s *Service) Send(ctx context.Context, senderID uint, req models.SendMessageRequest) (*Delivery, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return nil, domain.NewValidationError("content", "is required")
	}
	if len(content) > 5000 {
		return nil, domain.NewValidationError("content", "must be at most 5000")
	}
	msgType := req.MessageType
	if msgType == "" {
		msgType = models.MessageText
	}
	if msgType != models.MessageText && msgType != models.MessageImage && msgType != models.MessageFile {
		return nil, domain.NewValidationError("message_type", "must be one of: text image file")
	}
	if err := s.requireParticipant(ctx, req.ConversationID, senderID); err != nil {
		return nil, err
	}
	if req.ReplyToMessageID != nil {
		parent, err := s.repo.GetMessage(ctx, *req.ReplyToMessageID)
		if err != nil || parent.ConversationID != req.ConversationID {
			return nil, domain.NewValidationError("reply_to_message_id", "unknown message")
		}
	}

	now := s.now()
	msg := &models.Message{
		ConversationID:   req.ConversationID,
		SenderID:         senderID,
		Content:          content,
		MessageType:      msgType,
		ReplyToMessageID: req.ReplyToMessageID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var participants []uint
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateMessage(ctx, msg); err != nil {
			return err
		}
		if len(req.Attachments) > 0 {
			atts := make([]models.MessageAttachment, len(req.Attachments))
			for i, a := range req.Attachments {
				atts[i] = models.MessageAttachment{
					MessageID: msg.ID, FileURL: a.FileURL, FileName: a.FileName,
					MimeType: a.MimeType, SizeBytes: a.SizeBytes, CreatedAt: now,
				}
			}
			if err := s.repo.CreateAttachments(ctx, atts); err != nil {
				return err
			}
			msg.Attachments = atts
		}
		if err := s.repo.IncrementUnread(ctx, req.ConversationID, senderID); err != nil {
			return err
		}
		if err := s.repo.Touch(ctx, req.ConversationID, now); err != nil {
			return err
		}
		var err error
		participants, err = s.repo.ActiveParticipantIDs(ctx, req.ConversationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &Delivery{Message: msg, Participants: participants}, nil
}

// Messages pages backwards from beforeID; the result is oldest first.
func (s *Service) Messages(ctx context.Context, userID, conversationID, beforeID uint, limit int) ([]models.Message, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit < 1 || limit > maxMessagePage {
		limit = defaultMessagePage
	}
	return s.repo.ListMessages(ctx, conversationID, beforeID, limit)
}

// MarkRead clears the caller's unread counter and returns the fan-out set.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID uint) ([]uint, error) {
	if err := s.repo.MarkRead(ctx, conversationID, userID, s.now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotParticipant
		}
		return nil, err
	}
	return s.repo.ActiveParticipantIDs(ctx, conversationID)
}

// Reaction is the outcome of a message reaction change.
type Reaction struct {
	ConversationID uint   `json:"conversation_id"`
	MessageID      uint   `json:"message_id"`
	UserID         uint   `json:"user_id"`
	ReactionType   string `json:"reaction_type"`
	Added          bool   `json:"added"`
	Participants   []uint `json:"-"`
}

func (s *Service) React(ctx context.Context, userID, messageID uint, reactionType string) (*Reaction, error) {
	return s.changeReaction(ctx, userID, messageID, reactionType, true)
}

func (s *Service) Unreact(ctx context.Context, userID, messageID uint, reactionType string) (*Reaction, error) {
	return s.changeReaction(ctx, userID, messageID, reactionType, false)
}

func (s *Service) changeReaction(ctx context.Context, userID, messageID uint, reactionType string, add bool) (*Reaction, error) {
	reactionType = strings.TrimSpace(reactionType)
	if reactionType == "" || len(reactionType) > 20 {
		return nil, domain.NewValidationError("reaction_type", "must be 1 to 20 characters")
	}
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	if add {
		err = s.repo.AddReaction(ctx, &models.MessageReaction{MessageID: messageID, UserID: userID, ReactionType: reactionType, CreatedAt: s.now()})
		if errors.Is(err, domain.ErrConflict) {
			err = nil
		}
	} else {
		err = s.repo.RemoveReaction(ctx, messageID, userID, reactionType)
	}
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ActiveParticipantIDs(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	return &Reaction{
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		UserID:         userID,
		ReactionType:   reactionType,
		Added:          add,
		Participants:   participants,
	}, nil
}

func dedupe(ids []uint, exclude uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
