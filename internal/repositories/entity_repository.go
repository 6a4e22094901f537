package repositories

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// EntityFilter narrows GET /entities.
type EntityFilter struct {
	FinalCategoryID uint
	RootCategoryID  uint
	Search          string
	SortBy          string
	SortOrder       string
	OnlyVerified    bool
	Page            Page
}

var entitySortColumns = map[string]string{
	"name":           "name",
	"created_at":     "created_at",
	"average_rating": "average_rating",
	"review_count":   "review_count",
	"view_count":     "view_count",
}

// EntityRepository defines the interface for entity data operations
type EntityRepository interface {
	Create(ctx context.Context, e *models.Entity) error
	GetByID(ctx context.Context, id uint) (*models.Entity, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, f EntityFilter) ([]models.Entity, int64, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	AdjustCounter(ctx context.Context, id uint, column string, delta int64) error
	RecomputeRating(ctx context.Context, id uint) (float64, error)
}

// PostgresEntityRepository implements EntityRepository for PostgreSQL
type PostgresEntityRepository struct {
	db *gorm.DB
}

// NewPostgresEntityRepository creates a new PostgresEntityRepository
func NewPostgresEntityRepository(db *gorm.DB) *PostgresEntityRepository {
	return &PostgresEntityRepository{db: db}
}

func (r *PostgresEntityRepository) Create(ctx context.Context, e *models.Entity) error {
	return mapErr(conn(ctx, r.db).Create(e).Error)
}

func (r *PostgresEntityRepository) GetByID(ctx context.Context, id uint) (*models.Entity, error) {
	var e models.Entity
	if err := conn(ctx, r.db).Where("id = ? AND is_active = ?", id, true).First(&e).Error; err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (r *PostgresEntityRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Entity{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *PostgresEntityRepository) List(ctx context.Context, f EntityFilter) ([]models.Entity, int64, error) {
	q := conn(ctx, r.db).Model(&models.Entity{}).Where("is_active = ?", true)
	if f.FinalCategoryID != 0 {
		q = q.Where("final_category_id = ?", f.FinalCategoryID)
	}
	if f.RootCategoryID != 0 {
		q = q.Where("root_category_id = ?", f.RootCategoryID)
	}
	if f.OnlyVerified {
		q = q.Where("is_verified = ?", true)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(strings.ToLower(s)) + "%"
		q = q.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\')", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := entitySortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		direction = "ASC"
	}

	var out []models.Entity
	err := q.Order(column + " " + direction).Order("id DESC").
		Offset(f.Page.Offset()).Limit(f.Page.Limit).
		Find(&out).Error
	return out, total, err
}

func (r *PostgresEntityRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := conn(ctx, r.db).Model(&models.Entity{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *PostgresEntityRepository) AdjustCounter(ctx context.Context, id uint, column string, delta int64) error {
	return adjustCounter(conn(ctx, r.db), "entities", column, id, delta)
}

// RecomputeRating sets average_rating to the mean of the entity's reviews, 0 when none.
func (r *PostgresEntityRepository) RecomputeRating(ctx context.Context, id uint) (float64, error) {
	db := conn(ctx, r.db)
	var avg struct{ Value float64 }
	err := db.Model(&models.Review{}).Select("COALESCE(AVG(overall_rating), 0) AS value").
		Where("entity_id = ?", id).Scan(&avg).Error
	if err != nil {
		return 0, err
	}
	err = db.Model(&models.Entity{}).Where("id = ?", id).UpdateColumn("average_rating", avg.Value).Error
	return avg.Value, err
}
