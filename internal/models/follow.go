package models

import "time"

// Follow is a one-directional follow relationship between users.
type Follow struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	FollowerID  uint      `json:"follower_id" gorm:"index;uniqueIndex:idx_follower_following"`
	FollowingID uint      `json:"following_id" gorm:"index;uniqueIndex:idx_follower_following"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	CircleRequestPending  = "pending"
	CircleRequestAccepted = "accepted"
	CircleRequestDeclined = "declined"
)

// CircleRequest asks another user to join the sender's circle.
type CircleRequest struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	SenderID    uint       `json:"sender_id" gorm:"not null;index"`
	ReceiverID  uint       `json:"receiver_id" gorm:"not null;index"`
	Status      string     `json:"status" gorm:"size:20;not null;index"`
	Message     string     `json:"message,omitempty" gorm:"size:300"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateCircleRequest defines the body of POST /circles/requests
type CreateCircleRequest struct {
	ReceiverID uint   `json:"receiver_id" validate:"required"`
	Message    string `json:"message" validate:"max=300"`
}

// RespondCircleRequest defines the body of PUT /circles/requests/:id
type RespondCircleRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted declined"`
}
