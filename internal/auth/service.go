// Package auth implements registration, credential checks, JWT issuance and
// password resets.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/mailer"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/ratelimit"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/firebase"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// Limiter rules for the auth actions.
var (
	RegisterRule = ratelimit.Rule{Limit: 3, Window: 30 * time.Minute}
	LoginRule    = ratelimit.Rule{Limit: 5, Window: 15 * time.Minute}
)

// ErrInvalidCredentials is returned for an unknown login or a wrong password.
var ErrInvalidCredentials = fmt.Errorf("invalid email/username or password: %w", domain.ErrUnauthorized)

// IdentityVerifier verifies third-party ID tokens (Firebase).
type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebase.Identity, error)
}

// Config holds the auth service settings.
type Config struct {
	BcryptCost int
	// ResetURL is the frontend page that receives ?token=<reset token>.
	ResetURL string
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Service implements the authentication flows.
type Service struct {
	users    repositories.UserRepository
	tokens   *TokenManager
	limiter  *ratelimit.Limiter
	mailer   mailer.Mailer
	identity IdentityVerifier
	cfg      Config
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a new auth Service. identity may be nil when federated
// login is not configured.
func NewService(users repositories.UserRepository, tokens *TokenManager, limiter *ratelimit.Limiter, m mailer.Mailer, identity IdentityVerifier, cfg Config) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		limiter:  limiter,
		mailer:   m,
		identity: identity,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.With("auth"),
	}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Tokens exposes the token manager for middleware.
func (s *Service) Tokens() *TokenManager { return s.tokens }

// GetUser returns an active user.
func (s *Service) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *Service) rateLimited(action string, retry time.Duration) error {
	return &domain.RateLimitError{Action: action, RetryAfter: retry}
}

// userFromClaims loads the active user named by claims.
func (s *Service) userFromClaims(ctx context.Context, claims *Claims) (*models.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.TokenError{Reason: domain.TokenInvalid, Err: errors.New("user inactive or missing")}
		}
		return nil, err
	}
	return user, nil
}
