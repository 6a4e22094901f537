package testhelper

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// SeedUser inserts an active user with a unique email and username.
func SeedUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{
		Email:        fmt.Sprintf("%s@example.com", name),
		Username:     name,
		FirstName:    name,
		LastName:     "Tester",
		PasswordHash: "x",
		Role:         models.RoleUser,
		IsActive:     true,
		Level:        1,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

// SeedCategory inserts a category below parent (nil for a root).
func SeedCategory(t *testing.T, db *gorm.DB, parent *models.Category, name, slug string) *models.Category {
	t.Helper()
	c := &models.Category{Name: name, Slug: slug, Path: slug, Level: 1, IsActive: true}
	if parent != nil {
		c.ParentID = &parent.ID
		c.Path = parent.Path + "." + slug
		c.Level = parent.Level + 1
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed category %s: %v", name, err)
	}
	return c
}

// SeedEntity inserts an active entity under the given leaf category.
func SeedEntity(t *testing.T, db *gorm.DB, name string, root, final *models.Category) *models.Entity {
	t.Helper()
	e := &models.Entity{Name: name, Slug: fmt.Sprintf("%s-%d", name, time.Now().UnixNano()), IsActive: true}
	if root != nil {
		e.RootCategory = root.Snapshot()
	}
	if final != nil {
		e.FinalCategory = final.Snapshot()
	}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("seed entity %s: %v", name, err)
	}
	return e
}

// SeedReview inserts a review without touching any counter.
func SeedReview(t *testing.T, db *gorm.DB, author *models.User, entity *models.Entity, rating float64) *models.Review {
	t.Helper()
	r := &models.Review{
		UserID:        author.ID,
		EntityID:      entity.ID,
		Title:         "seeded",
		Content:       "seeded review content",
		OverallRating: rating,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed review: %v", err)
	}
	return r
}
