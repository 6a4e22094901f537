// Package realtime keeps the in-process websocket registry: which users are
// connected, which conversations they have joined, and the messenger and
// notification frames exchanged with them.
package realtime

import (
	"time"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// Client to server frame types.
const (
	TypePing              = "ping"
	TypeJoinConversation  = "join_conversation"
	TypeLeaveConversation = "leave_conversation"
	TypeTyping            = "typing"
	TypeSendMessage       = "send_message"
	TypeMarkRead          = "mark_read"
	TypeAddReaction       = "add_reaction"
	TypeRemoveReaction    = "remove_reaction"
)

// Server to client frame types.
const (
	TypePong          = "pong"
	TypeConnection    = "connection"
	TypeUserOnline    = "user_online"
	TypeUserOffline   = "user_offline"
	TypeNewMessage    = "new_message"
	TypeMessageSent   = "message_sent"
	TypeReaction      = "reaction"
	TypeMessageStatus = "message_status"
	TypeNotification  = "notification"
	TypeJoined        = "joined_conversation"
	TypeError         = "error"
)

// Channel names a websocket surface.
type Channel string

const (
	ChannelMessenger     Channel = "messenger"
	ChannelNotifications Channel = "notifications"
)

// CloseInvalidToken is sent when the path token does not verify.
const CloseInvalidToken = 4001

// Inbound is any frame a client may send.
type Inbound struct {
	Type             string `json:"type"`
	ConversationID   uint   `json:"conversation_id,omitempty"`
	Content          string `json:"content,omitempty"`
	MessageType      string `json:"message_type,omitempty"`
	TempID           string `json:"temp_id,omitempty"`
	ReplyToMessageID *uint  `json:"reply_to_message_id,omitempty"`
	IsTyping         bool   `json:"is_typing,omitempty"`
	MessageID        uint   `json:"message_id,omitempty"`
	ReactionType     string `json:"reaction_type,omitempty"`
}

// Outbound is any frame the server sends. Unused fields are omitted.
type Outbound struct {
	Type           string               `json:"type"`
	Status         string               `json:"status,omitempty"`
	UserID         uint                 `json:"user_id,omitempty"`
	ConversationID uint                 `json:"conversation_id,omitempty"`
	MessageID      uint                 `json:"message_id,omitempty"`
	TempID         string               `json:"temp_id,omitempty"`
	Message        *models.Message      `json:"message,omitempty"`
	IsTyping       *bool                `json:"is_typing,omitempty"`
	ReactionType   string               `json:"reaction_type,omitempty"`
	Action         string               `json:"action,omitempty"`
	Notification   *models.Notification `json:"notification,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

// ErrorFrame reports a failed client request to the offending connection.
type ErrorFrame struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func errorFrame(msg string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: msg, Timestamp: time.Now().UTC()}
}
