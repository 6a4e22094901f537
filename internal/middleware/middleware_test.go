package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/reviewinn/backend/internal/auth"
	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

type fakeVerifier struct {
	claims   map[string]*auth.Claims
	lastFP   string
	lastType auth.TokenType
}

func (f *fakeVerifier) VerifyToken(token string, expected auth.TokenType, deviceFP string) (*auth.Claims, error) {
	f.lastFP, f.lastType = deviceFP, expected
	if c, ok := f.claims[token]; ok {
		return c, nil
	}
	return nil, &domain.TokenError{Reason: domain.TokenExpired, Err: errors.New("expired")}
}

func claimsFor(sub, role string) *auth.Claims {
	return &auth.Claims{Type: auth.TokenAccess, Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
}

func newVerifier() *fakeVerifier {
	return &fakeVerifier{claims: map[string]*auth.Claims{
		"user-token":  claimsFor("7", models.RoleUser),
		"admin-token": claimsFor("1", models.RoleAdmin),
		"bad-subject": claimsFor("abc", models.RoleUser),
	}}
}

func run(t *testing.T, mw []echo.MiddlewareFunc, header string, h echo.HandlerFunc) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return c, h(c)
}

func noContent(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

func TestJWTAuth(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		_, err := run(t, []echo.MiddlewareFunc{JWTAuth(newVerifier())}, "", noContent)
		var terr *domain.TokenError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, domain.TokenInvalid, terr.Reason)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		_, err := run(t, []echo.MiddlewareFunc{JWTAuth(newVerifier())}, "Basic user-token", noContent)
		var terr *domain.TokenError
		assert.ErrorAs(t, err, &terr)
	})

	t.Run("valid token", func(t *testing.T) {
		v := newVerifier()
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer user-token")
		req.Header.Set(HeaderDeviceFingerprint, "fp-1")
		c := e.NewContext(req, httptest.NewRecorder())

		err := JWTAuth(v)(func(c echo.Context) error {
			assert.Equal(t, uint(7), UserID(c))
			assert.False(t, IsAdmin(c))
			require.NotNil(t, Claims(c))
			return nil
		})(c)
		require.NoError(t, err)
		assert.Equal(t, "fp-1", v.lastFP)
		assert.Equal(t, auth.TokenAccess, v.lastType)
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := run(t, []echo.MiddlewareFunc{JWTAuth(newVerifier())}, "Bearer stale", noContent)
		var terr *domain.TokenError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, domain.TokenExpired, terr.Reason)
	})

	t.Run("bad subject", func(t *testing.T) {
		_, err := run(t, []echo.MiddlewareFunc{JWTAuth(newVerifier())}, "Bearer bad-subject", noContent)
		var terr *domain.TokenError
		assert.ErrorAs(t, err, &terr)
	})
}

func TestOptionalJWTAuth(t *testing.T) {
	var seen *uint
	capture := func(c echo.Context) error {
		seen = OptionalUserID(c)
		return nil
	}

	_, err := run(t, []echo.MiddlewareFunc{OptionalJWTAuth(newVerifier())}, "", capture)
	require.NoError(t, err)
	assert.Nil(t, seen)

	_, err = run(t, []echo.MiddlewareFunc{OptionalJWTAuth(newVerifier())}, "Bearer stale", capture)
	require.NoError(t, err)
	assert.Nil(t, seen)

	_, err = run(t, []echo.MiddlewareFunc{OptionalJWTAuth(newVerifier())}, "Bearer user-token", capture)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, uint(7), *seen)
}

func TestRequireAdmin(t *testing.T) {
	chain := []echo.MiddlewareFunc{JWTAuth(newVerifier()), RequireAdmin()}

	_, err := run(t, chain, "Bearer user-token", noContent)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = run(t, chain, "Bearer admin-token", noContent)
	assert.NoError(t, err)
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, SecurityHeaders()(noContent)(c))
	h := rec.Header()
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.NotEmpty(t, h.Get("Content-Security-Policy"))
	assert.NotEmpty(t, h.Get("Strict-Transport-Security"))
	assert.Regexp(t, `^\d+\.\d{3}ms$`, h.Get("X-Response-Time"))
}

func TestRequestContextPropagatesRequestID(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.Response().Header().Set(echo.HeaderXRequestID, "req-123")

	err := RequestContext()(func(c echo.Context) error {
		assert.Equal(t, "req-123", logging.RequestIDFromContext(c.Request().Context()))
		return nil
	})(c)
	require.NoError(t, err)
}

func TestRequestContextGeneratesMissingID(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	var got string
	require.NoError(t, RequestContext()(func(c echo.Context) error {
		got = logging.RequestIDFromContext(c.Request().Context())
		return nil
	})(c))
	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get(echo.HeaderXRequestID))
}

func TestRequestLoggerHandsErrorToEcho(t *testing.T) {
	e := echo.New()
	var handled error
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handled = err
		_ = c.NoContent(http.StatusNotFound)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/missing", nil), rec)

	err := RequestLogger()(func(echo.Context) error { return domain.ErrNotFound })(c)
	assert.NoError(t, err)
	assert.ErrorIs(t, handled, domain.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
