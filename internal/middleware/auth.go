package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/auth"
	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// Context keys set by the auth middleware.
const (
	ctxUserID = "user_id"
	ctxRole   = "user_role"
	ctxClaims = "claims"

	// HeaderDeviceFingerprint carries the optional client fingerprint bound
	// into issued tokens.
	HeaderDeviceFingerprint = "X-Device-Fingerprint"
)

// TokenVerifier is implemented by auth.Service.
type TokenVerifier interface {
	VerifyToken(token string, expected auth.TokenType, deviceFP string) (*auth.Claims, error)
}

var errMissingToken = &domain.TokenError{Reason: domain.TokenInvalid, Err: errors.New("missing bearer token")}

func bearer(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func authenticate(c echo.Context, v TokenVerifier, token string) error {
	claims, err := v.VerifyToken(token, auth.TokenAccess, c.Request().Header.Get(HeaderDeviceFingerprint))
	if err != nil {
		return err
	}
	id, err := claims.UserID()
	if err != nil {
		return err
	}
	c.Set(ctxUserID, id)
	c.Set(ctxRole, claims.Role)
	c.Set(ctxClaims, claims)
	return nil
}

// JWTAuth requires a valid access token in the Authorization header.
func JWTAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearer(c)
			if !ok {
				return errMissingToken
			}
			if err := authenticate(c, v, token); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// OptionalJWTAuth identifies the caller when a valid token is present and
// lets anonymous requests through. An invalid token is treated as anonymous.
func OptionalJWTAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token, ok := bearer(c); ok {
				_ = authenticate(c, v, token)
			}
			return next(c)
		}
	}
}

// RequireAdmin must run after JWTAuth.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsAdmin(c) {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}

// UserID returns the authenticated user, or 0.
func UserID(c echo.Context) uint {
	id, _ := c.Get(ctxUserID).(uint)
	return id
}

// OptionalUserID returns nil for anonymous requests.
func OptionalUserID(c echo.Context) *uint {
	id := UserID(c)
	if id == 0 {
		return nil
	}
	return &id
}

// IsAdmin reports whether the token carries the admin role.
func IsAdmin(c echo.Context) bool {
	role, _ := c.Get(ctxRole).(string)
	return role == models.RoleAdmin
}

// Claims returns the verified token claims, if any.
func Claims(c echo.Context) *auth.Claims {
	claims, _ := c.Get(ctxClaims).(*auth.Claims)
	return claims
}
