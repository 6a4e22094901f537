package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// CircleRepository defines the interface for circle requests and membership
type CircleRepository interface {
	CreateRequest(ctx context.Context, req *models.CircleRequest) error
	GetRequestByID(ctx context.Context, id uint) (*models.CircleRequest, error)
	FindBetween(ctx context.Context, userA, userB uint) (*models.CircleRequest, error)
	PendingFor(ctx context.Context, receiverID uint) ([]models.CircleRequest, error)
	Members(ctx context.Context, userID uint) ([]models.User, error)
	UpdateStatus(ctx context.Context, id uint, fields map[string]interface{}) error
}

// PostgresCircleRepository implements CircleRepository for PostgreSQL
type PostgresCircleRepository struct {
	db *gorm.DB
}

// NewPostgresCircleRepository creates a new PostgresCircleRepository
func NewPostgresCircleRepository(db *gorm.DB) *PostgresCircleRepository {
	return &PostgresCircleRepository{db: db}
}

func (r *PostgresCircleRepository) CreateRequest(ctx context.Context, req *models.CircleRequest) error {
	return mapErr(conn(ctx, r.db).Create(req).Error)
}

func (r *PostgresCircleRepository) GetRequestByID(ctx context.Context, id uint) (*models.CircleRequest, error) {
	var req models.CircleRequest
	if err := conn(ctx, r.db).First(&req, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &req, nil
}

// FindBetween returns the most recent request in either direction.
func (r *PostgresCircleRepository) FindBetween(ctx context.Context, userA, userB uint) (*models.CircleRequest, error) {
	var req models.CircleRequest
	err := conn(ctx, r.db).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Order("id DESC").First(&req).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &req, nil
}

func (r *PostgresCircleRepository) PendingFor(ctx context.Context, receiverID uint) ([]models.CircleRequest, error) {
	var out []models.CircleRequest
	err := conn(ctx, r.db).Where("receiver_id = ? AND status = ?", receiverID, models.CircleRequestPending).
		Order("created_at DESC").Find(&out).Error
	return out, err
}

// Members lists users connected to userID by an accepted request.
func (r *PostgresCircleRepository) Members(ctx context.Context, userID uint) ([]models.User, error) {
	db := conn(ctx, r.db)
	sent := db.Session(&gorm.Session{NewDB: true}).Model(&models.CircleRequest{}).Select("receiver_id").
		Where("sender_id = ? AND status = ?", userID, models.CircleRequestAccepted)
	received := db.Session(&gorm.Session{NewDB: true}).Model(&models.CircleRequest{}).Select("sender_id").
		Where("receiver_id = ? AND status = ?", userID, models.CircleRequestAccepted)

	var users []models.User
	err := db.Where("(id IN (?) OR id IN (?)) AND is_active = ?", sent, received, true).Find(&users).Error
	return users, err
}

func (r *PostgresCircleRepository) UpdateStatus(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := conn(ctx, r.db).Model(&models.CircleRequest{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}
