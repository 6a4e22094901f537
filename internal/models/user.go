package models

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	Email        string  `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Username     string  `json:"username" gorm:"size:50;uniqueIndex;not null"`
	FirstName    string  `json:"first_name" gorm:"size:50"`
	LastName     string  `json:"last_name" gorm:"size:50"`
	PasswordHash string  `json:"-" gorm:"not null"`
	FirebaseUID  *string `json:"-" gorm:"size:128;uniqueIndex"`
	Role         string  `json:"role" gorm:"size:20;not null"`
	AvatarURL    string  `json:"avatar_url,omitempty"`
	Bio          string  `json:"bio,omitempty" gorm:"size:500"`

	IsActive   bool `json:"is_active" gorm:"not null;index"`
	IsVerified bool `json:"is_verified" gorm:"not null"`
	IsPremium  bool `json:"is_premium" gorm:"not null"`

	ReviewCount    int64 `json:"review_count" gorm:"not null"`
	FollowerCount  int64 `json:"follower_count" gorm:"not null"`
	FollowingCount int64 `json:"following_count" gorm:"not null"`
	FriendCount    int64 `json:"friend_count" gorm:"not null"`
	Level          int   `json:"level" gorm:"not null"`
	Points         int64 `json:"points" gorm:"not null"`

	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DisplayName joins first and last name, falling back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// UserCompact is a minimal user representation for embedding in responses
type UserCompact struct {
	ID         uint   `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	IsVerified bool   `json:"is_verified"`
}

// ToCompact converts User to UserCompact
func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:         u.ID,
		Username:   u.Username,
		Name:       u.DisplayName(),
		AvatarURL:  u.AvatarURL,
		IsVerified: u.IsVerified,
	}
}

// UpdateProfileRequest defines the body of PUT /users/me
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	Bio       *string `json:"bio" validate:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
}
