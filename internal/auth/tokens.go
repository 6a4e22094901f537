package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// TokenType is the "type" claim of every issued JWT.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	TokenReset   TokenType = "reset"
)

// Claims is the JWT payload issued by TokenManager.
type Claims struct {
	Type          TokenType `json:"type"`
	Role          string    `json:"role,omitempty"`
	DeviceFP      string    `json:"device_fp,omitempty"`
	PasswordStamp string    `json:"pst,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, &domain.TokenError{Reason: domain.TokenInvalid, Err: errors.New("bad subject")}
	}
	return uint(id), nil
}

// TokenConfig configures TokenManager.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
}

// TokenManager signs and verifies HS256 tokens.
type TokenManager struct {
	cfg    TokenConfig
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenManager creates a TokenManager. now may be nil for the wall clock.
func NewTokenManager(cfg TokenConfig, now func() time.Time) *TokenManager {
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		now:    now,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// TTL returns the lifetime configured for a token type.
func (m *TokenManager) TTL(t TokenType) time.Duration {
	switch t {
	case TokenRefresh:
		return m.cfg.RefreshTTL
	case TokenReset:
		return m.cfg.ResetTTL
	default:
		return m.cfg.AccessTTL
	}
}

// Issue signs a token of type t for user.
func (m *TokenManager) Issue(user *models.User, t TokenType, deviceFP string) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		Type:     t,
		Role:     user.Role,
		DeviceFP: deviceFP,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL(t))),
			ID:        uuid.NewString(),
		},
	}
	if t == TokenReset {
		claims.PasswordStamp = passwordStamp(user.PasswordHash)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", t, err)
	}
	return signed, nil
}

// Parse verifies signature, expiry, issuer, audience and the type claim.
func (m *TokenManager) Parse(token string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &domain.TokenError{Reason: domain.TokenExpired, Err: err}
		}
		return nil, &domain.TokenError{Reason: domain.TokenInvalid, Err: err}
	}
	if !claims.VerifyIssuer(m.cfg.Issuer, true) || !claims.VerifyAudience(m.cfg.Audience, true) {
		return nil, &domain.TokenError{Reason: domain.TokenInvalid, Err: errors.New("issuer or audience mismatch")}
	}
	if claims.ExpiresAt == nil {
		return nil, &domain.TokenError{Reason: domain.TokenInvalid, Err: errors.New("missing exp")}
	}
	if claims.Type != expected {
		return nil, &domain.TokenError{Reason: domain.TokenTypeMismatch}
	}
	return claims, nil
}

// passwordStamp binds reset tokens to the password hash they were issued
// against, so a reset token stops working once the password changes.
func passwordStamp(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
