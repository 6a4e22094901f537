package models

import "time"

// CategorySnapshot is the {id, name, slug, level} copy of a category stored on an entity.
type CategorySnapshot struct {
	CategoryID uint   `json:"id" gorm:"column:id"`
	Name       string `json:"name" gorm:"size:100"`
	Slug       string `json:"slug" gorm:"size:120"`
	Level      int    `json:"level"`
}

// Entity is a reviewable subject: a business, place, product or professional.
type Entity struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"size:200;not null;index"`
	Slug        string `json:"slug" gorm:"size:220;uniqueIndex;not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Website     string `json:"website,omitempty"`

	RootCategory  CategorySnapshot `json:"root_category" gorm:"embedded;embeddedPrefix:root_category_"`
	FinalCategory CategorySnapshot `json:"final_category" gorm:"embedded;embeddedPrefix:final_category_"`

	AverageRating float64 `json:"average_rating" gorm:"not null"`
	ReviewCount   int64   `json:"review_count" gorm:"not null"`
	ReactionCount int64   `json:"reaction_count" gorm:"not null"`
	CommentCount  int64   `json:"comment_count" gorm:"not null"`
	ViewCount     int64   `json:"view_count" gorm:"not null"`

	IsActive        bool       `json:"is_active" gorm:"not null;index"`
	IsVerified      bool       `json:"is_verified" gorm:"not null"`
	IsClaimed       bool       `json:"is_claimed" gorm:"not null"`
	ClaimedBy       *uint      `json:"claimed_by,omitempty" gorm:"index"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	CreatedByUserID *uint      `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EntityCompact is embedded in review summaries and feed cards.
type EntityCompact struct {
	ID            uint    `json:"id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	AvatarURL     string  `json:"avatar_url,omitempty"`
	CategoryName  string  `json:"category_name,omitempty"`
	AverageRating float64 `json:"average_rating"`
	IsVerified    bool    `json:"is_verified"`
}

func (e *Entity) ToCompact() EntityCompact {
	return EntityCompact{
		ID:            e.ID,
		Name:          e.Name,
		Slug:          e.Slug,
		AvatarURL:     e.AvatarURL,
		CategoryName:  e.FinalCategory.Name,
		AverageRating: e.AverageRating,
		IsVerified:    e.IsVerified,
	}
}

// CreateEntityRequest defines the body of POST /entities
type CreateEntityRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=200"`
	Description     string `json:"description" validate:"max=5000"`
	FinalCategoryID uint   `json:"final_category_id" validate:"required"`
	AvatarURL       string `json:"avatar_url" validate:"omitempty,url"`
	Website         string `json:"website" validate:"omitempty,url"`
}
