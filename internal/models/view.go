package models

import "time"

const (
	ContentReview = "review"
	ContentEntity = "entity"
)

// ViewRecord is one logical view event. It is stored in review_views or
// entity_views through ReviewView and EntityView.
type ViewRecord struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	ContentID       uint       `json:"content_id" gorm:"not null;index"`
	UserID          *uint      `json:"user_id,omitempty" gorm:"index"`
	IPAddress       string     `json:"ip_address" gorm:"size:64;not null;index"`
	UserAgent       string     `json:"user_agent" gorm:"size:500"`
	SessionID       string     `json:"session_id" gorm:"size:64;not null;index"`
	ViewedAt        time.Time  `json:"viewed_at" gorm:"not null;index"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	IsUniqueUser    bool       `json:"is_unique_user" gorm:"not null"`
	IsUniqueSession bool       `json:"is_unique_session" gorm:"not null"`
	IsValid         bool       `json:"is_valid" gorm:"not null;index"`
}

type ReviewView struct {
	ViewRecord
}

func (ReviewView) TableName() string { return "review_views" }

type EntityView struct {
	ViewRecord
}

func (EntityView) TableName() string { return "entity_views" }

// ViewTable maps a content type to its view table.
func ViewTable(contentType string) string {
	if contentType == ContentEntity {
		return EntityView{}.TableName()
	}
	return ReviewView{}.TableName()
}

// NewViewRow wraps rec in the model stored for contentType.
func NewViewRow(contentType string, rec ViewRecord) interface{} {
	if contentType == ContentEntity {
		return &EntityView{ViewRecord: rec}
	}
	return &ReviewView{ViewRecord: rec}
}
