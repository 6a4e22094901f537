package repositories

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// CategoryRepository defines the interface for the unified category tree
type CategoryRepository interface {
	Create(ctx context.Context, c *models.Category) error
	GetByID(ctx context.Context, id uint) (*models.Category, error)
	GetByPath(ctx context.Context, path string) (*models.Category, error)
	GetChildBySlug(ctx context.Context, parentID *uint, slug string) (*models.Category, error)
	Roots(ctx context.Context) ([]models.Category, error)
	Children(ctx context.Context, parentID uint) ([]models.Category, error)
	Subtree(ctx context.Context, path string) ([]models.Category, error)
	Leaves(ctx context.Context, rootPath string) ([]models.Category, error)
	All(ctx context.Context) ([]models.Category, error)
	FindByName(ctx context.Context, name string) ([]models.Category, error)
	SearchName(ctx context.Context, fragment string, limit int) ([]models.Category, error)
	Delete(ctx context.Context, ids []uint) error
	CountEntityReferences(ctx context.Context, ids []uint) (int64, error)
	Questions(ctx context.Context, categoryID uint) ([]models.CategoryQuestion, error)
}

// PostgresCategoryRepository implements CategoryRepository for PostgreSQL
type PostgresCategoryRepository struct {
	db *gorm.DB
}

// NewPostgresCategoryRepository creates a new PostgresCategoryRepository
func NewPostgresCategoryRepository(db *gorm.DB) *PostgresCategoryRepository {
	return &PostgresCategoryRepository{db: db}
}

func (r *PostgresCategoryRepository) Create(ctx context.Context, c *models.Category) error {
	return mapErr(conn(ctx, r.db).Create(c).Error)
}

func (r *PostgresCategoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	if err := conn(ctx, r.db).Where("id = ? AND is_active = ?", id, true).First(&c).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *PostgresCategoryRepository) GetByPath(ctx context.Context, path string) (*models.Category, error) {
	var c models.Category
	if err := conn(ctx, r.db).Where("path = ? AND is_active = ?", path, true).First(&c).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// GetChildBySlug looks up a sibling by slug; a nil parentID targets the roots.
func (r *PostgresCategoryRepository) GetChildBySlug(ctx context.Context, parentID *uint, slug string) (*models.Category, error) {
	var c models.Category
	q := conn(ctx, r.db).Where("slug = ?", slug)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if err := q.First(&c).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *PostgresCategoryRepository) Roots(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	err := conn(ctx, r.db).Where("parent_id IS NULL AND is_active = ?", true).
		Order("sort_order ASC, name ASC").Find(&out).Error
	return out, err
}

func (r *PostgresCategoryRepository) Children(ctx context.Context, parentID uint) ([]models.Category, error) {
	var out []models.Category
	err := conn(ctx, r.db).Where("parent_id = ? AND is_active = ?", parentID, true).
		Order("sort_order ASC, name ASC").Find(&out).Error
	return out, err
}

// Subtree returns the node at path and all of its descendants, active or not.
func (r *PostgresCategoryRepository) Subtree(ctx context.Context, path string) ([]models.Category, error) {
	var out []models.Category
	err := conn(ctx, r.db).Where("path = ? OR path LIKE ? ESCAPE '\\'", path, escapeLike(path)+".%").
		Order("level DESC").Find(&out).Error
	return out, err
}

// Leaves returns active nodes without active children, optionally below rootPath.
func (r *PostgresCategoryRepository) Leaves(ctx context.Context, rootPath string) ([]models.Category, error) {
	var out []models.Category
	db := conn(ctx, r.db)
	q := db.Where("is_active = ?", true).
		Where("NOT EXISTS (?)",
			db.Session(&gorm.Session{NewDB: true}).Table("unified_categories AS child").
				Select("1").
				Where("child.parent_id = unified_categories.id AND child.is_active = ?", true),
		)
	if rootPath != "" {
		q = q.Where("path = ? OR path LIKE ? ESCAPE '\\'", rootPath, escapeLike(rootPath)+".%")
	}
	err := q.Order("path ASC").Find(&out).Error
	return out, err
}

func (r *PostgresCategoryRepository) All(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	err := conn(ctx, r.db).Where("is_active = ?", true).Order("level ASC, sort_order ASC, name ASC").Find(&out).Error
	return out, err
}

// FindByName matches the name case-insensitively.
func (r *PostgresCategoryRepository) FindByName(ctx context.Context, name string) ([]models.Category, error) {
	var out []models.Category
	err := conn(ctx, r.db).Where("LOWER(name) = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(name)), true).
		Order("level DESC").Find(&out).Error
	return out, err
}

// SearchName is a case-insensitive substring match on the name.
func (r *PostgresCategoryRepository) SearchName(ctx context.Context, fragment string, limit int) ([]models.Category, error) {
	var out []models.Category
	err := conn(ctx, r.db).Where("LOWER(name) LIKE ? ESCAPE '\\' AND is_active = ?", "%"+escapeLike(strings.ToLower(fragment))+"%", true).
		Order("level DESC, name ASC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *PostgresCategoryRepository) Delete(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	db := conn(ctx, r.db)
	if err := db.Where("category_id IN ?", ids).Delete(&models.CategoryQuestion{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&models.Category{}).Error
}

// CountEntityReferences counts entities using any of ids as root or final category.
func (r *PostgresCategoryRepository) CountEntityReferences(ctx context.Context, ids []uint) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Entity{}).
		Where("root_category_id IN ? OR final_category_id IN ?", ids, ids).
		Count(&count).Error
	return count, err
}

func (r *PostgresCategoryRepository) Questions(ctx context.Context, categoryID uint) ([]models.CategoryQuestion, error) {
	var out []models.CategoryQuestion
	err := conn(ctx, r.db).Where("category_id = ?", categoryID).Order("sort_order ASC").Find(&out).Error
	return out, err
}

// escapeLike keeps user input from acting as a wildcard.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
