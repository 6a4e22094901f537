package models

import "time"

// Comment represents a comment on a review
type Comment struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ReviewID      uint      `json:"review_id" gorm:"not null;index"`
	UserID        uint      `json:"user_id" gorm:"not null;index"`
	Content       string    `json:"content" gorm:"type:text;not null"`
	ReactionCount int64     `json:"reaction_count" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateCommentRequest defines the request body for creating a new comment
type CreateCommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}
