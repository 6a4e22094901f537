package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// ViewQuery selects view rows of one content item.
type ViewQuery struct {
	ContentType string
	ContentID   uint
	UserID      *uint
	IPAddress   string
	SessionID   string
	Since       time.Time
	OnlyValid   bool
}

// ViewRepository persists view records in review_views and entity_views.
type ViewRepository interface {
	Insert(ctx context.Context, contentType string, rec *models.ViewRecord) error
	Count(ctx context.Context, q ViewQuery) (int64, error)
	CountByIP(ctx context.Context, ip string, since time.Time) (int64, error)
	RecentByIP(ctx context.Context, ip string, since time.Time) (map[string][]models.ViewRecord, error)
	Invalidate(ctx context.Context, contentType string, ids []uint) (int64, error)
	CountValid(ctx context.Context, contentType string, contentID uint, now time.Time) (int64, error)
	UniqueUsers(ctx context.Context, contentType string, contentID uint) (int64, error)
	LastViewAt(ctx context.Context, contentType string, contentID uint) (*time.Time, error)
}

// PostgresViewRepository implements ViewRepository for PostgreSQL
type PostgresViewRepository struct {
	db *gorm.DB
}

// NewPostgresViewRepository creates a new PostgresViewRepository
func NewPostgresViewRepository(db *gorm.DB) *PostgresViewRepository {
	return &PostgresViewRepository{db: db}
}

func (r *PostgresViewRepository) Insert(ctx context.Context, contentType string, rec *models.ViewRecord) error {
	row := models.NewViewRow(contentType, *rec)
	if err := conn(ctx, r.db).Create(row).Error; err != nil {
		return mapErr(err)
	}
	switch v := row.(type) {
	case *models.ReviewView:
		rec.ID = v.ID
	case *models.EntityView:
		rec.ID = v.ID
	}
	return nil
}

func (r *PostgresViewRepository) Count(ctx context.Context, q ViewQuery) (int64, error) {
	tx := conn(ctx, r.db).Table(models.ViewTable(q.ContentType)).Where("content_id = ?", q.ContentID)
	if q.UserID != nil {
		tx = tx.Where("user_id = ?", *q.UserID)
	}
	if q.IPAddress != "" {
		tx = tx.Where("ip_address = ?", q.IPAddress)
	}
	if q.SessionID != "" {
		tx = tx.Where("session_id = ?", q.SessionID)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("viewed_at > ?", q.Since)
	}
	if q.OnlyValid {
		tx = tx.Where("is_valid = ?", true)
	}
	var count int64
	err := tx.Count(&count).Error
	return count, err
}

// CountByIP counts views from ip across all content since the given time.
func (r *PostgresViewRepository) CountByIP(ctx context.Context, ip string, since time.Time) (int64, error) {
	var total int64
	for _, table := range []string{models.ViewTable(models.ContentReview), models.ViewTable(models.ContentEntity)} {
		var count int64
		err := conn(ctx, r.db).Table(table).Where("ip_address = ? AND viewed_at > ?", ip, since).Count(&count).Error
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// RecentByIP returns still-valid views from ip since the given time, keyed by content type.
func (r *PostgresViewRepository) RecentByIP(ctx context.Context, ip string, since time.Time) (map[string][]models.ViewRecord, error) {
	out := make(map[string][]models.ViewRecord, 2)
	for _, ct := range []string{models.ContentReview, models.ContentEntity} {
		var rows []models.ViewRecord
		err := conn(ctx, r.db).Table(models.ViewTable(ct)).
			Where("ip_address = ? AND viewed_at > ? AND is_valid = ?", ip, since, true).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			out[ct] = rows
		}
	}
	return out, nil
}

// Invalidate marks rows invalid and returns how many flipped.
func (r *PostgresViewRepository) Invalidate(ctx context.Context, contentType string, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := conn(ctx, r.db).Table(models.ViewTable(contentType)).
		Where("id IN ? AND is_valid = ?", ids, true).
		UpdateColumn("is_valid", false)
	return res.RowsAffected, res.Error
}

// CountValid applies the counter predicate: valid and not expired.
func (r *PostgresViewRepository) CountValid(ctx context.Context, contentType string, contentID uint, now time.Time) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Table(models.ViewTable(contentType)).
		Where("content_id = ? AND is_valid = ? AND (expires_at IS NULL OR expires_at > ?)", contentID, true, now).
		Count(&count).Error
	return count, err
}

func (r *PostgresViewRepository) UniqueUsers(ctx context.Context, contentType string, contentID uint) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Table(models.ViewTable(contentType)).
		Where("content_id = ? AND is_valid = ? AND user_id IS NOT NULL", contentID, true).
		Distinct("user_id").Count(&count).Error
	return count, err
}

func (r *PostgresViewRepository) LastViewAt(ctx context.Context, contentType string, contentID uint) (*time.Time, error) {
	var rec models.ViewRecord
	err := conn(ctx, r.db).Table(models.ViewTable(contentType)).
		Where("content_id = ? AND is_valid = ?", contentID, true).
		Order("viewed_at DESC").Limit(1).Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec.ViewedAt, nil
}
