package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, c *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	Delete(ctx context.Context, id uint) error
	ListByReview(ctx context.Context, reviewID uint, p Page) ([]models.Comment, int64, error)
	AdjustCounter(ctx context.Context, id uint, column string, delta int64) error
}

// PostgresCommentRepository implements CommentRepository for PostgreSQL
type PostgresCommentRepository struct {
	db *gorm.DB
}

// NewPostgresCommentRepository creates a new PostgresCommentRepository
func NewPostgresCommentRepository(db *gorm.DB) *PostgresCommentRepository {
	return &PostgresCommentRepository{db: db}
}

func (r *PostgresCommentRepository) Create(ctx context.Context, c *models.Comment) error {
	return mapErr(conn(ctx, r.db).Create(c).Error)
}

func (r *PostgresCommentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var c models.Comment
	if err := conn(ctx, r.db).First(&c, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// Delete removes the comment and the reactions on it.
func (r *PostgresCommentRepository) Delete(ctx context.Context, id uint) error {
	db := conn(ctx, r.db)
	if err := db.Where("target_type = ? AND target_id = ?", models.TargetComment, id).Delete(&models.Reaction{}).Error; err != nil {
		return err
	}
	res := db.Delete(&models.Comment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *PostgresCommentRepository) ListByReview(ctx context.Context, reviewID uint, p Page) ([]models.Comment, int64, error) {
	q := conn(ctx, r.db).Model(&models.Comment{}).Where("review_id = ?", reviewID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Comment
	err := q.Order("created_at ASC").Order("id ASC").Offset(p.Offset()).Limit(p.Limit).Find(&out).Error
	return out, total, err
}

func (r *PostgresCommentRepository) AdjustCounter(ctx context.Context, id uint, column string, delta int64) error {
	return adjustCounter(conn(ctx, r.db), "comments", column, id, delta)
}
