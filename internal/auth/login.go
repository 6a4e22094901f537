package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/ratelimit"
)

// Authenticate checks credentials. After LoginRule.Limit failures inside the
// window the login is locked; a success clears the failure count. Failures
// for a known account are counted per account, whichever of email or
// username was typed.
func (s *Service) Authenticate(ctx context.Context, emailOrUsername, password string) (*models.User, error) {
	login := strings.ToLower(strings.TrimSpace(emailOrUsername))

	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	key := ratelimit.Key("login", login)
	if user != nil {
		key = loginKey(user)
	}

	if locked, retry := s.limiter.Exceeded(key, LoginRule); locked {
		s.log.Warn().Str("login", login).Dur("retry_after", retry).Msg("login locked")
		return nil, s.rateLimited("login", retry)
	}
	if user == nil {
		s.limiter.Record(key, LoginRule)
		return nil, ErrInvalidCredentials
	}

	if !CheckPassword(user.PasswordHash, password) {
		s.limiter.Record(key, LoginRule)
		s.log.Info().Uint("user_id", user.ID).Int("attempts_left", s.limiter.Remaining(key, LoginRule)).Msg("failed login")
		return nil, ErrInvalidCredentials
	}

	s.limiter.Reset(key)
	now := s.now()
	if err := s.users.UpdateFields(ctx, user.ID, map[string]interface{}{"last_login_at": now, "last_active_at": now}); err != nil {
		s.log.Warn().Err(err).Uint("user_id", user.ID).Msg("record last login")
	}
	user.LastLoginAt = &now
	return user, nil
}

func loginKey(user *models.User) string {
	return ratelimit.Key("login", strconv.FormatUint(uint64(user.ID), 10))
}

// IssueTokens returns a fresh access/refresh pair.
func (s *Service) IssueTokens(user *models.User, deviceFP string) (*TokenPair, error) {
	access, err := s.tokens.Issue(user, TokenAccess, deviceFP)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(user, TokenRefresh, deviceFP)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokens.TTL(TokenAccess).Seconds()),
	}, nil
}

// VerifyToken validates token as the expected type. A device fingerprint
// mismatch is logged and tolerated.
func (s *Service) VerifyToken(token string, expected TokenType, deviceFP string) (*Claims, error) {
	claims, err := s.tokens.Parse(token, expected)
	if err != nil {
		return nil, err
	}
	if claims.DeviceFP != "" && deviceFP != "" && claims.DeviceFP != deviceFP {
		s.log.Warn().Str("sub", claims.Subject).Str("jti", claims.ID).Msg("device fingerprint mismatch")
	}
	return claims, nil
}

// Refresh issues a new access token for a still-active user.
func (s *Service) Refresh(ctx context.Context, refreshToken, deviceFP string) (*TokenPair, error) {
	claims, err := s.VerifyToken(refreshToken, TokenRefresh, deviceFP)
	if err != nil {
		return nil, err
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.Issue(user, TokenAccess, claims.DeviceFP)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.TTL(TokenAccess).Seconds()),
	}, nil
}
