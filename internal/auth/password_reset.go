package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/mailer"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// PasswordResetRequested is the reply to every reset request, whether or not
// the address belongs to a user.
const PasswordResetRequested = "If an account exists for this email, a password reset link has been sent."

// RequestPasswordReset emails a reset token valid for the reset TTL.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return PasswordResetRequested, nil
	}

	user, err := s.users.GetUserByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error().Err(err).Msg("password reset lookup")
		}
		return PasswordResetRequested, nil
	}

	token, err := s.tokens.Issue(user, TokenReset, "")
	if err != nil {
		return "", err
	}
	link := s.cfg.ResetURL + "?token=" + url.QueryEscape(token)
	if err := s.mailer.Send(ctx, mailer.PasswordResetMessage(user.Email, link, s.tokens.TTL(TokenReset))); err != nil {
		s.log.Error().Err(err).Uint("user_id", user.ID).Msg("send password reset email")
	}
	return PasswordResetRequested, nil
}

// ResetPassword consumes a reset token. The token is bound to the password
// hash at issue time, so it works once.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.VerifyToken(token, TokenReset, "")
	if err != nil {
		return err
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return err
	}
	if claims.PasswordStamp != passwordStamp(user.PasswordHash) {
		return &domain.TokenError{Reason: domain.TokenInvalid, Err: errors.New("reset token already used")}
	}
	return s.SetPassword(ctx, user, newPassword, PolicyStrict)
}

// SetPassword validates and stores a new password for user.
func (s *Service) SetPassword(ctx context.Context, user *models.User, newPassword string, policy PasswordPolicy) error {
	if err := s.CheckNewPassword(user, newPassword, policy); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdateFields(ctx, user.ID, map[string]interface{}{"password_hash": hash}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	user.PasswordHash = hash
	s.limiter.Reset(loginKey(user))
	s.log.Info().Uint("user_id", user.ID).Msg("password changed")
	return nil
}

// CheckNewPassword runs the password policy against user's personal info.
func (s *Service) CheckNewPassword(user *models.User, newPassword string, policy PasswordPolicy) error {
	return ValidatePassword(newPassword, PersonalInfo{
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, policy)
}

// MarkVerified flags the user owning email as verified.
func (s *Service) MarkVerified(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.IsVerified {
		return user, nil
	}
	if err := s.users.UpdateFields(ctx, user.ID, map[string]interface{}{"is_verified": true}); err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	user.IsVerified = true
	s.log.Info().Uint("user_id", user.ID).Msg("email verified")
	return user, nil
}

// UserByEmail returns the active user for email.
func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByEmail(ctx, normalized)
}
