package models

import "time"

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"

	ParticipantAdmin  = "admin"
	ParticipantMember = "member"

	MessageText   = "text"
	MessageImage  = "image"
	MessageFile   = "file"
	MessageSystem = "system"
)

type Conversation struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	ConversationType string    `json:"conversation_type" gorm:"size:20;not null"`
	Title            string    `json:"title,omitempty" gorm:"size:200"`
	IsPrivate        bool      `json:"is_private" gorm:"not null"`
	MaxParticipants  int       `json:"max_participants" gorm:"not null"`
	CreatedByUserID  uint      `json:"created_by" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"index"`
}

// Participant is active while LeftAt is nil.
type Participant struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	ConversationID uint       `json:"conversation_id" gorm:"not null;index"`
	UserID         uint       `json:"user_id" gorm:"not null;index"`
	Role           string     `json:"role" gorm:"size:20;not null"`
	UnreadCount    int64      `json:"unread_count" gorm:"not null"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty" gorm:"index"`
}

type Message struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	ConversationID   uint       `json:"conversation_id" gorm:"not null;index"`
	SenderID         uint       `json:"sender_id" gorm:"not null;index"`
	Content          string     `json:"content" gorm:"type:text"`
	MessageType      string     `json:"message_type" gorm:"size:20;not null"`
	ReplyToMessageID *uint      `json:"reply_to_message_id,omitempty"`
	IsEdited         bool       `json:"is_edited" gorm:"not null"`
	IsDeleted        bool       `json:"is_deleted" gorm:"not null"`
	CreatedAt        time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time  `json:"updated_at"`
	EditedAt         *time.Time `json:"edited_at,omitempty"`

	Reactions   []MessageReaction   `json:"reactions,omitempty" gorm:"foreignKey:MessageID"`
	Attachments []MessageAttachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`
}

type MessageReaction struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	MessageID    uint      `json:"message_id" gorm:"not null;uniqueIndex:idx_message_reaction"`
	UserID       uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_message_reaction"`
	ReactionType string    `json:"reaction_type" gorm:"size:20;not null;uniqueIndex:idx_message_reaction"`
	CreatedAt    time.Time `json:"created_at"`
}

// MessageAttachment references an already uploaded object; uploads happen elsewhere.
type MessageAttachment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	MessageID uint      `json:"message_id" gorm:"not null;index"`
	FileURL   string    `json:"file_url" gorm:"not null"`
	FileName  string    `json:"file_name" gorm:"size:255"`
	MimeType  string    `json:"mime_type" gorm:"size:100"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateConversationRequest defines the body of POST /messenger/conversations
type CreateConversationRequest struct {
	ConversationType string `json:"conversation_type" validate:"required,oneof=direct group"`
	Title            string `json:"title" validate:"max=200"`
	ParticipantIDs   []uint `json:"participant_ids" validate:"required,min=1,max=100"`
	IsPrivate        bool   `json:"is_private"`
}

// SendMessageRequest defines the body of POST /messenger/messages
type SendMessageRequest struct {
	ConversationID   uint                `json:"conversation_id" validate:"required"`
	Content          string              `json:"content" validate:"required_without=Attachments,max=5000"`
	MessageType      string              `json:"message_type" validate:"omitempty,oneof=text image file"`
	ReplyToMessageID *uint               `json:"reply_to_message_id"`
	Attachments      []MessageAttachment `json:"attachments" validate:"max=10"`
}
