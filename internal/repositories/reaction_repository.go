package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// ReactionRepository defines the interface for polymorphic reactions
type ReactionRepository interface {
	Get(ctx context.Context, targetType string, targetID, userID uint) (*models.Reaction, error)
	Create(ctx context.Context, reaction *models.Reaction) error
	UpdateType(ctx context.Context, id uint, reactionType string) error
	Delete(ctx context.Context, id uint) error
	Summary(ctx context.Context, targetType string, targetID uint) (map[string]int64, error)
}

// PostgresReactionRepository implements ReactionRepository for PostgreSQL
type PostgresReactionRepository struct {
	db *gorm.DB
}

// NewPostgresReactionRepository creates a new PostgresReactionRepository
func NewPostgresReactionRepository(db *gorm.DB) *PostgresReactionRepository {
	return &PostgresReactionRepository{db: db}
}

func (r *PostgresReactionRepository) Get(ctx context.Context, targetType string, targetID, userID uint) (*models.Reaction, error) {
	var reaction models.Reaction
	err := conn(ctx, r.db).Where("target_type = ? AND target_id = ? AND user_id = ?", targetType, targetID, userID).
		First(&reaction).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &reaction, nil
}

func (r *PostgresReactionRepository) Create(ctx context.Context, reaction *models.Reaction) error {
	return mapErr(conn(ctx, r.db).Create(reaction).Error)
}

func (r *PostgresReactionRepository) UpdateType(ctx context.Context, id uint, reactionType string) error {
	return conn(ctx, r.db).Model(&models.Reaction{}).Where("id = ?", id).Update("reaction_type", reactionType).Error
}

func (r *PostgresReactionRepository) Delete(ctx context.Context, id uint) error {
	res := conn(ctx, r.db).Delete(&models.Reaction{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

// Summary counts reactions on a target per reaction type.
func (r *PostgresReactionRepository) Summary(ctx context.Context, targetType string, targetID uint) (map[string]int64, error) {
	var rows []struct {
		ReactionType string
		Total        int64
	}
	err := conn(ctx, r.db).Model(&models.Reaction{}).
		Select("reaction_type, COUNT(*) AS total").
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Group("reaction_type").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.ReactionType] = row.Total
	}
	return out, nil
}
