package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// ErrFederationDisabled is returned when no identity verifier is configured.
var ErrFederationDisabled = fmt.Errorf("federated login is not configured: %w", domain.ErrValidation)

// FirebaseLogin verifies a Firebase ID token and returns the linked user,
// linking by email or creating a verified account on first use.
func (s *Service) FirebaseLogin(ctx context.Context, idToken string) (*models.User, error) {
	if s.identity == nil {
		return nil, ErrFederationDisabled
	}
	identity, err := s.identity.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, &domain.TokenError{Reason: domain.TokenInvalid, Err: err}
	}

	user, err := s.users.GetUserByFirebaseUID(ctx, identity.UID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	email, err := NormalizeEmail(identity.Email)
	if err != nil {
		return nil, err
	}

	user, err = s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		uid := identity.UID
		fields := map[string]interface{}{"firebase_uid": uid}
		if identity.EmailVerified {
			fields["is_verified"] = true
		}
		if err := s.users.UpdateFields(ctx, user.ID, fields); err != nil {
			return nil, fmt.Errorf("link firebase account: %w", err)
		}
		user.FirebaseUID = &uid
		user.IsVerified = user.IsVerified || identity.EmailVerified
		s.log.Info().Uint("user_id", user.ID).Msg("firebase account linked")
		return user, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	return s.createFederatedUser(ctx, email, identity.UID, identity.Name, identity.EmailVerified)
}

func (s *Service) createFederatedUser(ctx context.Context, email, uid, name string, verified bool) (*models.User, error) {
	username, err := GenerateUsername(ctx, email, s.users.UsernameExists)
	if err != nil {
		return nil, err
	}

	// Federated users never log in with a password; store an unguessable one.
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	hash, err := HashPassword(hex.EncodeToString(secret), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	first, last := splitName(name)
	user := &models.User{
		Email:        email,
		Username:     username,
		FirstName:    first,
		LastName:     last,
		PasswordHash: hash,
		FirebaseUID:  &uid,
		Role:         models.RoleUser,
		IsActive:     true,
		IsVerified:   verified,
		Level:        1,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.ErrDuplicateUser
		}
		return nil, fmt.Errorf("create federated user: %w", err)
	}
	s.log.Info().Uint("user_id", user.ID).Msg("user created from firebase login")
	return user, nil
}

func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
