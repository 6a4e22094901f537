package handlers

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/reviewinn/backend/internal/auth"
	"github.com/anonto42/reviewinn/backend/internal/mailer"
	"github.com/anonto42/reviewinn/backend/internal/ratelimit"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/repositories/testhelper"
	"github.com/anonto42/reviewinn/backend/internal/verification"
)

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

func TestRegisterVerifyLoginOverHTTP(t *testing.T) {
	db := testhelper.SetupTestDB(t)
	limiter := ratelimit.New()
	mail := &mailer.Recorder{}
	authSvc := auth.NewService(
		repositories.NewPostgresUserRepository(db),
		auth.NewTokenManager(auth.TokenConfig{
			Secret: "test-secret-that-is-long-enough-32b", Issuer: "reviewinn-api", Audience: "reviewinn-frontend",
			AccessTTL: time.Hour, RefreshTTL: 720 * time.Hour, ResetTTL: time.Hour,
		}, nil),
		limiter, mail, nil, auth.Config{BcryptCost: 4},
	)
	codes := verification.NewService(verification.NewCodeStore(), limiter, mail, authSvc)

	e := newEcho()
	NewAuthHandler(authSvc, codes, passThrough).RegisterAuthRoutes(e.Group("/api/v1/auth"))

	rec := do(e, http.MethodPost, "/api/v1/auth/v2/register",
		`{"email":"a@b.com","password":"Abcdef1!","first_name":"A","last_name":"B"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent struct {
		ExpiresIn         int `json:"expires_in"`
		AttemptsRemaining int `json:"attempts_remaining"`
	}
	decodeEnvelope(t, rec, &sent)
	assert.Equal(t, 900, sent.ExpiresIn)
	assert.Equal(t, 5, sent.AttemptsRemaining)

	msg, ok := mail.Last("a@b.com")
	require.True(t, ok)
	code := sixDigits.FindString(msg.Body)
	require.NotEmpty(t, code)

	rec = do(e, http.MethodPost, "/api/v1/auth/v2/verify-email", `{"email":"a@b.com","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verified struct {
		Verified    bool   `json:"verified"`
		AccessToken string `json:"access_token"`
	}
	decodeEnvelope(t, rec, &verified)
	assert.True(t, verified.Verified)
	assert.NotEmpty(t, verified.AccessToken)

	rec = do(e, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.com","password":"Abcdef1!"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	decodeEnvelope(t, rec, &tokens)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
}

func TestStrictRegisterRejectsSequences(t *testing.T) {
	db := testhelper.SetupTestDB(t)
	authSvc := auth.NewService(
		repositories.NewPostgresUserRepository(db),
		auth.NewTokenManager(auth.TokenConfig{
			Secret: "test-secret-that-is-long-enough-32b", AccessTTL: time.Hour, RefreshTTL: time.Hour, ResetTTL: time.Hour,
		}, nil),
		ratelimit.New(), &mailer.Recorder{}, nil, auth.Config{BcryptCost: 4},
	)
	e := newEcho()
	NewAuthHandler(authSvc, &stubCodes{}, passThrough).RegisterAuthRoutes(e.Group("/api/v1/auth"))

	rec := do(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"a@b.com","password":"Abcdef1!","first_name":"A","last_name":"B"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "sequences")
}
