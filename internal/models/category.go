package models

import "time"

// CustomCategoryName is the name of nodes under which users may add their own children.
const CustomCategoryName = "Custom"

// Category is a node of the unified category tree.
type Category struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name" gorm:"size:100;not null;index"`
	Slug            string    `json:"slug" gorm:"size:120;not null;uniqueIndex:idx_category_parent_slug"`
	ParentID        *uint     `json:"parent_id" gorm:"index;uniqueIndex:idx_category_parent_slug"`
	Path            string    `json:"path" gorm:"size:500;not null;index"`
	Level           int       `json:"level" gorm:"not null"`
	SortOrder       int       `json:"sort_order" gorm:"not null"`
	Description     string    `json:"description,omitempty" gorm:"size:500"`
	Icon            string    `json:"icon,omitempty" gorm:"size:50"`
	IsActive        bool      `json:"is_active" gorm:"not null;index"`
	CreatedByUserID *uint     `json:"created_by_user_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Category) TableName() string { return "unified_categories" }

// Snapshot returns the copy stored on entities.
func (c *Category) Snapshot() CategorySnapshot {
	return CategorySnapshot{CategoryID: c.ID, Name: c.Name, Slug: c.Slug, Level: c.Level}
}

// CategoryQuestion is a rating criterion attached to a category.
type CategoryQuestion struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CategoryID uint      `json:"category_id" gorm:"not null;index"`
	Key        string    `json:"key" gorm:"size:50;not null"`
	Question   string    `json:"question" gorm:"size:255;not null"`
	IsRequired bool      `json:"is_required" gorm:"not null"`
	SortOrder  int       `json:"sort_order" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateCategoryRequest defines the body of POST /unified-categories
type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	ParentID    *uint  `json:"parent_id"`
	Description string `json:"description" validate:"max=500"`
	Icon        string `json:"icon" validate:"max=50"`
	SortOrder   int    `json:"sort_order"`
}

// CreateCustomCategoryRequest defines the body of POST /unified-categories/custom
type CreateCustomCategoryRequest struct {
	Name           string `json:"name" validate:"required,min=2,max=100"`
	ParentCustomID uint   `json:"parent_custom_id" validate:"required"`
}
