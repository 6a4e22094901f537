package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/ratelimit"
)

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	// Caller identifies the requester for throttling, usually the client IP.
	Caller string
	Policy PasswordPolicy
}

// Register creates an unverified, active user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if ok, retry := s.limiter.Allow(ratelimit.Key("register", in.Caller), RegisterRule); !ok {
		return nil, s.rateLimited("register", retry)
	}

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidateNames(in.FirstName, in.LastName); err != nil {
		return nil, err
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if exists {
		return nil, domain.ErrDuplicateUser
	}

	username, err := GenerateUsername(ctx, email, s.users.UsernameExists)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	info := PersonalInfo{Email: email, Username: username, FirstName: in.FirstName, LastName: in.LastName}
	if err := ValidatePassword(in.Password, info, in.Policy); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		Role:         models.RoleUser,
		IsActive:     true,
		Level:        1,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.ErrDuplicateUser
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, nil
}

var validate = validator.New()

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return "", domain.NewValidationError("email", "must be a valid email address")
	}
	return email, nil
}
