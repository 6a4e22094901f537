package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// NotificationFilter narrows List.
type NotificationFilter struct {
	IsRead         *bool
	Type           string
	Priority       string
	DeliveryStatus string
	IncludeExpired bool
}

// NotificationCounts backs the stats endpoint.
type NotificationCounts struct {
	Total            int64            `json:"total"`
	Unread           int64            `json:"unread"`
	Read             int64            `json:"read"`
	Urgent           int64            `json:"urgent"`
	Critical         int64            `json:"critical"`
	Expired          int64            `json:"expired"`
	ByDeliveryStatus map[string]int64 `json:"by_delivery_status"`
	ByType           map[string]int64 `json:"by_type"`
}

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	CreateBatch(ctx context.Context, ns []models.Notification) error
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	Dropdown(ctx context.Context, userID uint, now time.Time, limit int) ([]models.Notification, bool, error)
	UnreadCounts(ctx context.Context, userID uint, now time.Time) (unread, urgent int64, err error)
	List(ctx context.Context, userID uint, f NotificationFilter, now time.Time, p Page) ([]models.Notification, int64, error)
	Stats(ctx context.Context, userID uint, now time.Time) (*NotificationCounts, error)
	UpdateOwned(ctx context.Context, userID uint, ids []uint, fields map[string]interface{}) (int64, error)
	MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error)
	Delete(ctx context.Context, id uint) error
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
	MarkDelivered(ctx context.Context, ids []uint) (int64, error)
}

// PostgresNotificationRepository implements NotificationRepository for PostgreSQL
type PostgresNotificationRepository struct {
	db *gorm.DB
}

// NewPostgresNotificationRepository creates a new PostgresNotificationRepository
func NewPostgresNotificationRepository(db *gorm.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

// notExpired excludes rows past expires_at and rows already swept to expired.
func notExpired(q *gorm.DB, now time.Time) *gorm.DB {
	return q.Where("(expires_at IS NULL OR expires_at > ?) AND delivery_status <> ?", now, models.DeliveryExpired)
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return mapErr(conn(ctx, r.db).Create(n).Error)
}

func (r *PostgresNotificationRepository) CreateBatch(ctx context.Context, ns []models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return mapErr(conn(ctx, r.db).CreateInBatches(&ns, 500).Error)
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := conn(ctx, r.db).First(&n, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &n, nil
}

// Dropdown orders urgent/critical first, then unread before read, newest first.
// The second return value reports whether more rows exist beyond limit.
func (r *PostgresNotificationRepository) Dropdown(ctx context.Context, userID uint, now time.Time, limit int) ([]models.Notification, bool, error) {
	var out []models.Notification
	err := notExpired(conn(ctx, r.db).Where("user_id = ?", userID), now).
		Order(gorm.Expr("CASE WHEN priority IN (?, ?) THEN 0 ELSE 1 END", models.PriorityCritical, models.PriorityUrgent)).
		Order("is_read ASC").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Find(&out).Error
	if err != nil {
		return nil, false, err
	}
	if len(out) > limit {
		return out[:limit], true, nil
	}
	return out, false, nil
}

// UnreadCounts returns unread and unread urgent/critical counts, expired rows excluded.
func (r *PostgresNotificationRepository) UnreadCounts(ctx context.Context, userID uint, now time.Time) (int64, int64, error) {
	db := conn(ctx, r.db)
	var unread, urgent int64
	err := notExpired(db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false), now).
		Count(&unread).Error
	if err != nil {
		return 0, 0, err
	}
	err = notExpired(db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false), now).
		Where("priority IN ?", []string{models.PriorityCritical, models.PriorityUrgent}).
		Count(&urgent).Error
	return unread, urgent, err
}

func (r *PostgresNotificationRepository) List(ctx context.Context, userID uint, f NotificationFilter, now time.Time, p Page) ([]models.Notification, int64, error) {
	q := conn(ctx, r.db).Model(&models.Notification{}).Where("user_id = ?", userID)
	if !f.IncludeExpired {
		q = notExpired(q, now)
	}
	if f.IsRead != nil {
		q = q.Where("is_read = ?", *f.IsRead)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.DeliveryStatus != "" {
		q = q.Where("delivery_status = ?", f.DeliveryStatus)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Notification
	err := q.Order("created_at DESC").Order("id DESC").Offset(p.Offset()).Limit(p.Limit).Find(&out).Error
	return out, total, err
}

func (r *PostgresNotificationRepository) Stats(ctx context.Context, userID uint, now time.Time) (*NotificationCounts, error) {
	db := conn(ctx, r.db)
	base := func() *gorm.DB { return db.Model(&models.Notification{}).Where("user_id = ?", userID) }

	stats := &NotificationCounts{ByDeliveryStatus: map[string]int64{}, ByType: map[string]int64{}}
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&stats.Total, base()},
		{&stats.Unread, base().Where("is_read = ?", false)},
		{&stats.Read, base().Where("is_read = ?", true)},
		{&stats.Urgent, base().Where("priority = ?", models.PriorityUrgent)},
		{&stats.Critical, base().Where("priority = ?", models.PriorityCritical)},
		{&stats.Expired, base().Where("delivery_status = ? OR (expires_at IS NOT NULL AND expires_at <= ?)", models.DeliveryExpired, now)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	var groups []struct {
		GroupKey string
		Total    int64
	}
	if err := base().Select("delivery_status AS group_key, COUNT(*) AS total").Group("delivery_status").Scan(&groups).Error; err != nil {
		return nil, err
	}
	for _, g := range groups {
		stats.ByDeliveryStatus[g.GroupKey] = g.Total
	}
	groups = nil
	if err := base().Select("type AS group_key, COUNT(*) AS total").Group("type").Scan(&groups).Error; err != nil {
		return nil, err
	}
	for _, g := range groups {
		stats.ByType[g.GroupKey] = g.Total
	}
	return stats, nil
}

// UpdateOwned applies fields to the rows in ids that belong to userID.
func (r *PostgresNotificationRepository) UpdateOwned(ctx context.Context, userID uint, ids []uint, fields map[string]interface{}) (int64, error) {
	if len(ids) == 0 || len(fields) == 0 {
		return 0, nil
	}
	res := conn(ctx, r.db).Model(&models.Notification{}).Where("id IN ? AND user_id = ?", ids, userID).Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at, "delivery_status": models.DeliveryRead})
	return res.RowsAffected, res.Error
}

func (r *PostgresNotificationRepository) Delete(ctx context.Context, id uint) error {
	res := conn(ctx, r.db).Delete(&models.Notification{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

// ExpireBefore flags rows whose expires_at has passed.
func (r *PostgresNotificationRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&models.Notification{}).
		Where("expires_at IS NOT NULL AND expires_at <= ? AND delivery_status <> ?", now, models.DeliveryExpired).
		UpdateColumn("delivery_status", models.DeliveryExpired)
	return res.RowsAffected, res.Error
}

// MarkDelivered moves pending rows in ids to delivered.
func (r *PostgresNotificationRepository) MarkDelivered(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := conn(ctx, r.db).Model(&models.Notification{}).
		Where("id IN ? AND delivery_status = ?", ids, models.DeliveryPending).
		UpdateColumn("delivery_status", models.DeliveryDelivered)
	return res.RowsAffected, res.Error
}
