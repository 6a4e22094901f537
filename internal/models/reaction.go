package models

import "time"

const (
	TargetReview  = "review"
	TargetComment = "comment"
)

// ReactionTypes is the fixed emoji set accepted for reactions.
var ReactionTypes = []string{"thumbs_up", "thumbs_down", "love", "haha", "celebrate", "sad", "eyes", "bomb"}

// IsReactionType reports whether t belongs to ReactionTypes.
func IsReactionType(t string) bool {
	for _, r := range ReactionTypes {
		if r == t {
			return true
		}
	}
	return false
}

// Reaction is a polymorphic reaction on a review or a comment; one per (target, user).
type Reaction struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TargetType   string    `json:"target_type" gorm:"size:20;not null;uniqueIndex:idx_reaction_target_user"`
	TargetID     uint      `json:"target_id" gorm:"not null;uniqueIndex:idx_reaction_target_user"`
	UserID       uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_reaction_target_user;index"`
	ReactionType string    `json:"reaction_type" gorm:"size:20;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReactRequest defines the body of POST /reviews/:id/reactions and /comments/:id/reactions
type ReactRequest struct {
	ReactionType string `json:"reaction_type" validate:"required,oneof=thumbs_up thumbs_down love haha celebrate sad eyes bomb"`
}
