package models

import "time"

// ReviewUserSummary is the author snapshot embedded in a review for feed rendering.
type ReviewUserSummary struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Level     int    `json:"level"`
}

type Review struct {
	ID            uint               `json:"id" gorm:"primaryKey"`
	UserID        uint               `json:"user_id" gorm:"not null;index"`
	EntityID      uint               `json:"entity_id" gorm:"not null;index"`
	Title         string             `json:"title" gorm:"size:200"`
	Content       string             `json:"content" gorm:"type:text;not null"`
	OverallRating float64            `json:"overall_rating" gorm:"not null"`
	Ratings       map[string]float64 `json:"ratings" gorm:"serializer:json;type:text"`
	Pros          []string           `json:"pros" gorm:"serializer:json;type:text"`
	Cons          []string           `json:"cons" gorm:"serializer:json;type:text"`
	IsVerified    bool               `json:"is_verified" gorm:"not null"`
	IsAnonymous   bool               `json:"is_anonymous" gorm:"not null"`

	ViewCount     int64 `json:"view_count" gorm:"not null"`
	ReactionCount int64 `json:"reaction_count" gorm:"not null"`
	CommentCount  int64 `json:"comment_count" gorm:"not null"`

	UserSummary   ReviewUserSummary `json:"user_summary" gorm:"serializer:json;type:text"`
	EntitySummary EntityCompact     `json:"entity_summary" gorm:"serializer:json;type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateReviewRequest defines the body of POST /reviews
type CreateReviewRequest struct {
	EntityID      uint               `json:"entity_id" validate:"required"`
	Title         string             `json:"title" validate:"max=200"`
	Content       string             `json:"content" validate:"required,min=10,max=10000"`
	OverallRating float64            `json:"overall_rating" validate:"required,min=1,max=5"`
	Ratings       map[string]float64 `json:"ratings" validate:"omitempty,dive,min=1,max=5"`
	Pros          []string           `json:"pros" validate:"max=10,dive,max=200"`
	Cons          []string           `json:"cons" validate:"max=10,dive,max=200"`
	IsAnonymous   bool               `json:"is_anonymous"`
}
