package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// ConversationRepository defines the interface for messenger persistence
type ConversationRepository interface {
	Create(ctx context.Context, c *models.Conversation, participants []models.Participant) error
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	FindDirect(ctx context.Context, userA, userB uint) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID uint, p Page) ([]models.Conversation, int64, error)
	GetParticipant(ctx context.Context, conversationID, userID uint) (*models.Participant, error)
	ActiveParticipantIDs(ctx context.Context, conversationID uint) ([]uint, error)
	ConversationIDsForUser(ctx context.Context, userID uint) ([]uint, error)
	ParticipantsFor(ctx context.Context, conversationIDs []uint, userID uint) (map[uint]models.Participant, error)
	Touch(ctx context.Context, conversationID uint, at time.Time) error

	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uint, beforeID uint, limit int) ([]models.Message, error)
	IncrementUnread(ctx context.Context, conversationID, exceptUserID uint) error
	MarkRead(ctx context.Context, conversationID, userID uint, at time.Time) error

	AddReaction(ctx context.Context, r *models.MessageReaction) error
	RemoveReaction(ctx context.Context, messageID, userID uint, reactionType string) error
	CreateAttachments(ctx context.Context, attachments []models.MessageAttachment) error
}

// PostgresConversationRepository implements ConversationRepository for PostgreSQL
type PostgresConversationRepository struct {
	db *gorm.DB
}

// NewPostgresConversationRepository creates a new PostgresConversationRepository
func NewPostgresConversationRepository(db *gorm.DB) *PostgresConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *models.Conversation, participants []models.Participant) error {
	db := conn(ctx, r.db)
	if err := db.Create(c).Error; err != nil {
		return mapErr(err)
	}
	for i := range participants {
		participants[i].ConversationID = c.ID
	}
	if len(participants) == 0 {
		return nil
	}
	return mapErr(db.Create(&participants).Error)
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var c models.Conversation
	if err := conn(ctx, r.db).First(&c, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// FindDirect returns the direct conversation both users are active in.
func (r *PostgresConversationRepository) FindDirect(ctx context.Context, userA, userB uint) (*models.Conversation, error) {
	db := conn(ctx, r.db)
	mine := db.Session(&gorm.Session{NewDB: true}).Model(&models.Participant{}).
		Select("conversation_id").Where("user_id = ? AND left_at IS NULL", userA)
	theirs := db.Session(&gorm.Session{NewDB: true}).Model(&models.Participant{}).
		Select("conversation_id").Where("user_id = ? AND left_at IS NULL", userB)

	var c models.Conversation
	err := db.Where("conversation_type = ?", models.ConversationDirect).
		Where("id IN (?) AND id IN (?)", mine, theirs).
		First(&c).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *PostgresConversationRepository) ListForUser(ctx context.Context, userID uint, p Page) ([]models.Conversation, int64, error) {
	db := conn(ctx, r.db)
	ids := db.Session(&gorm.Session{NewDB: true}).Model(&models.Participant{}).
		Select("conversation_id").Where("user_id = ? AND left_at IS NULL", userID)
	q := db.Model(&models.Conversation{}).Where("id IN (?)", ids)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Conversation
	err := q.Order("updated_at DESC").Order("id DESC").Offset(p.Offset()).Limit(p.Limit).Find(&out).Error
	return out, total, err
}

// GetParticipant returns the active participant row.
func (r *PostgresConversationRepository) GetParticipant(ctx context.Context, conversationID, userID uint) (*models.Participant, error) {
	var p models.Participant
	err := conn(ctx, r.db).Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", conversationID, userID).First(&p).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *PostgresConversationRepository) ActiveParticipantIDs(ctx context.Context, conversationID uint) ([]uint, error) {
	var ids []uint
	err := conn(ctx, r.db).Model(&models.Participant{}).
		Where("conversation_id = ? AND left_at IS NULL", conversationID).
		Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

func (r *PostgresConversationRepository) ConversationIDsForUser(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := conn(ctx, r.db).Model(&models.Participant{}).
		Where("user_id = ? AND left_at IS NULL", userID).Pluck("conversation_id", &ids).Error
	return ids, err
}

// ParticipantsFor returns the caller's participant rows keyed by conversation.
func (r *PostgresConversationRepository) ParticipantsFor(ctx context.Context, conversationIDs []uint, userID uint) (map[uint]models.Participant, error) {
	out := make(map[uint]models.Participant, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	var rows []models.Participant
	err := conn(ctx, r.db).Where("conversation_id IN ? AND user_id = ? AND left_at IS NULL", conversationIDs, userID).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ConversationID] = p
	}
	return out, nil
}

func (r *PostgresConversationRepository) Touch(ctx context.Context, conversationID uint, at time.Time) error {
	return conn(ctx, r.db).Model(&models.Conversation{}).Where("id = ?", conversationID).UpdateColumn("updated_at", at).Error
}

func (r *PostgresConversationRepository) CreateMessage(ctx context.Context, m *models.Message) error {
	return mapErr(conn(ctx, r.db).Omit("Reactions", "Attachments").Create(m).Error)
}

func (r *PostgresConversationRepository) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var m models.Message
	if err := conn(ctx, r.db).Preload("Reactions").Preload("Attachments").First(&m, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

// ListMessages pages backwards from beforeID (0 = newest) and returns oldest first.
func (r *PostgresConversationRepository) ListMessages(ctx context.Context, conversationID uint, beforeID uint, limit int) ([]models.Message, error) {
	q := conn(ctx, r.db).Preload("Reactions").Preload("Attachments").
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var out []models.Message
	if err := q.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *PostgresConversationRepository) IncrementUnread(ctx context.Context, conversationID, exceptUserID uint) error {
	return conn(ctx, r.db).Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id <> ? AND left_at IS NULL", conversationID, exceptUserID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
}

func (r *PostgresConversationRepository) MarkRead(ctx context.Context, conversationID, userID uint, at time.Time) error {
	res := conn(ctx, r.db).Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", conversationID, userID).
		Updates(map[string]interface{}{"unread_count": 0, "last_read_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *PostgresConversationRepository) AddReaction(ctx context.Context, reaction *models.MessageReaction) error {
	return mapErr(conn(ctx, r.db).Create(reaction).Error)
}

func (r *PostgresConversationRepository) RemoveReaction(ctx context.Context, messageID, userID uint, reactionType string) error {
	res := conn(ctx, r.db).Where("message_id = ? AND user_id = ? AND reaction_type = ?", messageID, userID, reactionType).
		Delete(&models.MessageReaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *PostgresConversationRepository) CreateAttachments(ctx context.Context, attachments []models.MessageAttachment) error {
	if len(attachments) == 0 {
		return nil
	}
	return conn(ctx, r.db).Create(&attachments).Error
}
