package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// FollowRepository defines the interface for follow data operations
type FollowRepository interface {
	CreateFollow(ctx context.Context, follow *models.Follow) error
	DeleteFollow(ctx context.Context, followerID, followingID uint) error
	IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error)
	GetFollowers(ctx context.Context, userID uint, p Page) ([]models.User, error)
	GetFollowing(ctx context.Context, userID uint, p Page) ([]models.User, error)
}

// PostgresFollowRepository implements FollowRepository for PostgreSQL
type PostgresFollowRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRepository creates a new PostgresFollowRepository
func NewPostgresFollowRepository(db *gorm.DB) *PostgresFollowRepository {
	return &PostgresFollowRepository{db: db}
}

func (r *PostgresFollowRepository) CreateFollow(ctx context.Context, follow *models.Follow) error {
	return mapErr(conn(ctx, r.db).Create(follow).Error)
}

func (r *PostgresFollowRepository) DeleteFollow(ctx context.Context, followerID, followingID uint) error {
	res := conn(ctx, r.db).Where("follower_id = ? AND following_id = ?", followerID, followingID).Delete(&models.Follow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *PostgresFollowRepository) IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).Count(&count).Error
	return count > 0, err
}

func (r *PostgresFollowRepository) GetFollowers(ctx context.Context, userID uint, p Page) ([]models.User, error) {
	db := conn(ctx, r.db)
	var users []models.User
	err := db.Where("id IN (?) AND is_active = ?",
		db.Session(&gorm.Session{NewDB: true}).Table("follows").Select("follower_id").Where("following_id = ?", userID), true,
	).Order("id").Offset(p.Offset()).Limit(p.Limit).Find(&users).Error
	return users, err
}

func (r *PostgresFollowRepository) GetFollowing(ctx context.Context, userID uint, p Page) ([]models.User, error) {
	db := conn(ctx, r.db)
	var users []models.User
	err := db.Where("id IN (?) AND is_active = ?",
		db.Session(&gorm.Session{NewDB: true}).Table("follows").Select("following_id").Where("follower_id = ?", userID), true,
	).Order("id").Offset(p.Offset()).Limit(p.Limit).Find(&users).Error
	return users, err
}
