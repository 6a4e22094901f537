package repositories

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByLogin(ctx context.Context, emailOrUsername string) (*models.User, error)
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateUser(ctx context.Context, user *models.User) error
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	AdjustCounter(ctx context.Context, id uint, column string, delta int64) error
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
	ActiveUserIDs(ctx context.Context) ([]uint, error)
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	return mapErr(conn(ctx, r.db).Create(user).Error)
}

// GetUserByID returns an active user.
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *PostgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "username = ?", strings.ToLower(strings.TrimSpace(username)))
}

// GetUserByLogin matches either the email or the username.
func (r *PostgresUserRepository) GetUserByLogin(ctx context.Context, emailOrUsername string) (*models.User, error) {
	v := strings.ToLower(strings.TrimSpace(emailOrUsername))
	return r.first(ctx, "(email = ? OR username = ?)", v, v)
}

func (r *PostgresUserRepository) GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error) {
	return r.first(ctx, "firebase_uid = ?", firebaseUID)
}

func (r *PostgresUserRepository) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := conn(ctx, r.db).Where(query, args...).Where("is_active = ?", true).First(&user).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

// EmailExists checks every row, deactivated users included, since the column is unique.
func (r *PostgresUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.User{}).Where("email = ?", strings.ToLower(email)).Count(&count).Error
	return count > 0, err
}

func (r *PostgresUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.User{}).Where("username = ?", strings.ToLower(username)).Count(&count).Error
	return count > 0, err
}

func (r *PostgresUserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	return mapErr(conn(ctx, r.db).Save(user).Error)
}

func (r *PostgresUserRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := conn(ctx, r.db).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}

// AdjustCounter adds delta to a counter column without letting it drop below zero.
func (r *PostgresUserRepository) AdjustCounter(ctx context.Context, id uint, column string, delta int64) error {
	return adjustCounter(conn(ctx, r.db), "users", column, id, delta)
}

// SearchUsers searches active users by username, name or email
func (r *PostgresUserRepository) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	var users []models.User
	like := "%" + strings.ToLower(query) + "%"
	err := conn(ctx, r.db).
		Where("is_active = ?", true).
		Where("LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?", like, like, like, like).
		Order("follower_count DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (r *PostgresUserRepository) ActiveUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := conn(ctx, r.db).Model(&models.User{}).Where("is_active = ?", true).Pluck("id", &ids).Error
	return ids, err
}
