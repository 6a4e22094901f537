package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// PlatformStats are the homepage totals.
type PlatformStats struct {
	Users      int64 `json:"total_users"`
	Entities   int64 `json:"total_entities"`
	Reviews    int64 `json:"total_reviews"`
	Categories int64 `json:"total_categories"`
}

// StatsRepository reads site-wide totals.
type StatsRepository interface {
	Platform(ctx context.Context) (*PlatformStats, error)
}

// PostgresStatsRepository implements StatsRepository for PostgreSQL
type PostgresStatsRepository struct {
	db *gorm.DB
}

// NewPostgresStatsRepository creates a new PostgresStatsRepository
func NewPostgresStatsRepository(db *gorm.DB) *PostgresStatsRepository {
	return &PostgresStatsRepository{db: db}
}

func (r *PostgresStatsRepository) Platform(ctx context.Context) (*PlatformStats, error) {
	db := conn(ctx, r.db)
	var out PlatformStats
	if err := db.Model(&models.User{}).Where("is_active = ?", true).Count(&out.Users).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Entity{}).Where("is_active = ?", true).Count(&out.Entities).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Review{}).Count(&out.Reviews).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Category{}).Where("is_active = ?", true).Count(&out.Categories).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
