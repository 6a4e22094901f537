package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// ReviewRepository defines the interface for review data operations
type ReviewRepository interface {
	Create(ctx context.Context, r *models.Review) error
	GetByID(ctx context.Context, id uint) (*models.Review, error)
	Delete(ctx context.Context, id uint) error
	ListByUser(ctx context.Context, userID uint, p Page) ([]models.Review, int64, error)
	ListByEntity(ctx context.Context, entityID uint, p Page) ([]models.Review, int64, error)
	Latest(ctx context.Context, limit int) ([]models.Review, error)
	AdjustCounter(ctx context.Context, id uint, column string, delta int64) error
}

// PostgresReviewRepository implements ReviewRepository for PostgreSQL
type PostgresReviewRepository struct {
	db *gorm.DB
}

// NewPostgresReviewRepository creates a new PostgresReviewRepository
func NewPostgresReviewRepository(db *gorm.DB) *PostgresReviewRepository {
	return &PostgresReviewRepository{db: db}
}

func (r *PostgresReviewRepository) Create(ctx context.Context, review *models.Review) error {
	return mapErr(conn(ctx, r.db).Create(review).Error)
}

func (r *PostgresReviewRepository) GetByID(ctx context.Context, id uint) (*models.Review, error) {
	var review models.Review
	if err := conn(ctx, r.db).First(&review, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &review, nil
}

// Delete removes the review together with its comments, their reactions and
// the review's own reactions and views.
func (r *PostgresReviewRepository) Delete(ctx context.Context, id uint) error {
	db := conn(ctx, r.db)
	commentIDs := db.Session(&gorm.Session{NewDB: true}).Model(&models.Comment{}).Select("id").Where("review_id = ?", id)
	if err := db.Where("target_type = ? AND target_id IN (?)", models.TargetComment, commentIDs).Delete(&models.Reaction{}).Error; err != nil {
		return err
	}
	if err := db.Where("target_type = ? AND target_id = ?", models.TargetReview, id).Delete(&models.Reaction{}).Error; err != nil {
		return err
	}
	if err := db.Where("review_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
		return err
	}
	if err := db.Where("content_id = ?", id).Delete(&models.ReviewView{}).Error; err != nil {
		return err
	}
	res := db.Delete(&models.Review{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *PostgresReviewRepository) ListByUser(ctx context.Context, userID uint, p Page) ([]models.Review, int64, error) {
	return r.list(ctx, "user_id = ?", userID, p)
}

func (r *PostgresReviewRepository) ListByEntity(ctx context.Context, entityID uint, p Page) ([]models.Review, int64, error) {
	return r.list(ctx, "entity_id = ?", entityID, p)
}

func (r *PostgresReviewRepository) list(ctx context.Context, where string, arg uint, p Page) ([]models.Review, int64, error) {
	q := conn(ctx, r.db).Model(&models.Review{}).Where(where, arg)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Review
	err := q.Order("created_at DESC").Order("id DESC").Offset(p.Offset()).Limit(p.Limit).Find(&out).Error
	return out, total, err
}

func (r *PostgresReviewRepository) Latest(ctx context.Context, limit int) ([]models.Review, error) {
	var out []models.Review
	err := conn(ctx, r.db).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *PostgresReviewRepository) AdjustCounter(ctx context.Context, id uint, column string, delta int64) error {
	return adjustCounter(conn(ctx, r.db), "reviews", column, id, delta)
}
