// Package verification issues and checks 6-digit email codes for account
// verification and password resets.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/auth"
	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/mailer"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/ratelimit"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// CodeType scopes a code to one flow.
type CodeType string

const (
	CodeEmailVerification CodeType = "email_verification"
	CodePasswordReset     CodeType = "password_reset"
)

// Valid reports whether ct is a known code type.
func (ct CodeType) Valid() bool {
	return ct == CodeEmailVerification || ct == CodePasswordReset
}

func (ct CodeType) purpose() string {
	if ct == CodePasswordReset {
		return "password reset"
	}
	return "verification"
}

const (
	CodeTTL        = 15 * time.Minute
	MaxAttempts    = 5
	ResendCooldown = 2 * time.Minute
)

// SendRule throttles code requests per (code type, email).
var SendRule = ratelimit.Rule{Limit: 3, Window: time.Minute, Block: 5 * time.Minute}

// ErrAlreadyVerified is returned when a verification code is requested for a
// verified account.
var ErrAlreadyVerified = domain.NewValidationError("email", "is already verified")

// SendResult describes the code currently outstanding for an address.
type SendResult struct {
	Sent              bool   `json:"sent"`
	Email             string `json:"email"`
	ExpiresIn         int    `json:"expires_in"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	ResendAvailableIn int    `json:"resend_available_in,omitempty"`
}

// Accounts is the slice of the auth service verification needs.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	MarkVerified(ctx context.Context, email string) (*models.User, error)
	CheckNewPassword(user *models.User, newPassword string, policy auth.PasswordPolicy) error
	SetPassword(ctx context.Context, user *models.User, newPassword string, policy auth.PasswordPolicy) error
}

type Service struct {
	store    *CodeStore
	limiter  *ratelimit.Limiter
	mailer   mailer.Mailer
	accounts Accounts
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(store *CodeStore, limiter *ratelimit.Limiter, m mailer.Mailer, accounts Accounts) *Service {
	return &Service{
		store:    store,
		limiter:  limiter,
		mailer:   m,
		accounts: accounts,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.With("verification"),
	}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates the account and sends its first verification code.
func (s *Service) Register(ctx context.Context, in auth.RegisterInput) (*models.User, *SendResult, error) {
	user, err := s.accounts.Register(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.SendCode(ctx, user.Email, CodeEmailVerification)
	if err != nil {
		return nil, nil, err
	}
	return user, res, nil
}

// Resend issues a new code for an existing account. For password resets an
// unknown address gets the same reply as a known one.
func (s *Service) Resend(ctx context.Context, email string, ct CodeType) (*SendResult, error) {
	if !ct.Valid() {
		return nil, domain.NewValidationError("code_type", "must be one of: email_verification password_reset")
	}
	normalized, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := s.accounts.UserByEmail(ctx, normalized)
	switch {
	case errors.Is(err, domain.ErrNotFound) && ct == CodePasswordReset:
		return s.silentResult(normalized, ct)
	case err != nil:
		return nil, err
	case ct == CodeEmailVerification && user.IsVerified:
		return nil, ErrAlreadyVerified
	}
	return s.SendCode(ctx, normalized, ct)
}

// ForgotPassword sends a password reset code when the account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) (*SendResult, error) {
	return s.Resend(ctx, email, CodePasswordReset)
}

// silentResult applies the send throttle without issuing anything.
func (s *Service) silentResult(email string, ct CodeType) (*SendResult, error) {
	if ok, retry := s.limiter.Allow(ratelimit.Key("send_"+string(ct), email), SendRule); !ok {
		return nil, &domain.RateLimitError{Action: "send_code", RetryAfter: retry}
	}
	return &SendResult{Sent: true, Email: email, ExpiresIn: int(CodeTTL.Seconds()), AttemptsRemaining: MaxAttempts}, nil
}

// SendCode generates, stores and mails a code for (email, ct). Inside the
// resend cooldown nothing is sent and ResendAvailableIn is set instead.
func (s *Service) SendCode(ctx context.Context, email string, ct CodeType) (*SendResult, error) {
	if ok, retry := s.limiter.Allow(ratelimit.Key("send_"+string(ct), email), SendRule); !ok {
		return nil, &domain.RateLimitError{Action: "send_code", RetryAfter: retry}
	}

	now := s.now()
	if rec, ok := s.store.Peek(email, ct); ok && now.Before(rec.expiresAt) {
		if wait := rec.createdAt.Add(ResendCooldown).Sub(now); wait > 0 {
			return &SendResult{
				Email:             email,
				ExpiresIn:         int(rec.expiresAt.Sub(now).Seconds()),
				AttemptsRemaining: MaxAttempts - rec.attempts,
				ResendAvailableIn: int((wait + time.Second - 1) / time.Second),
			}, nil
		}
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	s.store.Issue(email, ct, code, now)

	if err := s.mailer.Send(ctx, mailer.VerificationCodeMessage(email, code, ct.purpose(), CodeTTL)); err != nil {
		s.log.Error().Err(err).Str("code_type", string(ct)).Msg("send verification code")
	}
	s.log.Info().Str("code_type", string(ct)).Msg("verification code issued")

	return &SendResult{
		Sent:              true,
		Email:             email,
		ExpiresIn:         int(CodeTTL.Seconds()),
		AttemptsRemaining: MaxAttempts,
	}, nil
}

// VerifyCode checks a code; see CodeStore.Check for the outcomes.
func (s *Service) VerifyCode(_ context.Context, email, code string, ct CodeType) error {
	normalized, err := auth.NormalizeEmail(email)
	if err != nil {
		return err
	}
	return s.store.Check(normalized, ct, code, s.now())
}

// VerifyEmail consumes an email_verification code and marks the user verified.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*models.User, error) {
	if err := s.VerifyCode(ctx, email, code, CodeEmailVerification); err != nil {
		return nil, err
	}
	normalized, _ := auth.NormalizeEmail(email)
	return s.accounts.MarkVerified(ctx, normalized)
}

// ResetPassword consumes a password_reset code and stores newPassword. The
// password is checked first so a rejected password does not burn an attempt.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := s.accounts.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.CodeError{Reason: domain.CodeMissing}
		}
		return err
	}
	if err := s.accounts.CheckNewPassword(user, newPassword, auth.PolicyStrict); err != nil {
		return err
	}
	if err := s.store.Check(user.Email, CodePasswordReset, code, s.now()); err != nil {
		return err
	}
	return s.accounts.SetPassword(ctx, user, newPassword, auth.PolicyStrict)
}

// Sweep drops expired codes.
func (s *Service) Sweep() int {
	return s.store.Sweep(s.now())
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
