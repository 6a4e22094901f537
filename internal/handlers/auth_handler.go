package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/auth"
	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/verification"
	"github.com/anonto42/reviewinn/backend/internal/viewtracking"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// AuthService is the subset of auth.Service used over HTTP.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, emailOrUsername, password string) (*models.User, error)
	IssueTokens(user *models.User, deviceFP string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken, deviceFP string) (*auth.TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	FirebaseLogin(ctx context.Context, idToken string) (*models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// CodeService is the subset of verification.Service used over HTTP.
type CodeService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*models.User, *verification.SendResult, error)
	VerifyEmail(ctx context.Context, email, code string) (*models.User, error)
	Resend(ctx context.Context, email string, ct verification.CodeType) (*verification.SendResult, error)
	ForgotPassword(ctx context.Context, email string) (*verification.SendResult, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	auth  AuthService
	codes CodeService
	jwt   echo.MiddlewareFunc
}

// NewAuthHandler creates a new AuthHandler. requireAuth guards /me and /logout.
func NewAuthHandler(a AuthService, codes CodeService, requireAuth echo.MiddlewareFunc) *AuthHandler {
	return &AuthHandler{auth: a, codes: codes, jwt: requireAuth}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/forgot-password", h.ForgotPassword)
	g.POST("/reset-password", h.ResetPassword)
	g.POST("/firebase-login", h.FirebaseLogin)
	g.GET("/me", h.Me, h.jwt)
	g.POST("/logout", h.Logout, h.jwt)

	v2 := g.Group("/v2")
	v2.POST("/register", h.RegisterWithCode)
	v2.POST("/verify-email", h.VerifyEmail)
	v2.POST("/resend-verification", h.ResendCode)
	v2.POST("/forgot-password", h.ForgotPasswordCode)
	v2.POST("/reset-password", h.ResetPasswordCode)
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

func (r registerRequest) input(c echo.Context, policy auth.PasswordPolicy) auth.RegisterInput {
	return auth.RegisterInput{
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Caller:    viewtracking.ClientIP(c.Request()),
		Policy:    policy,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetTokenRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type resendRequest struct {
	Email    string `json:"email" validate:"required,email"`
	CodeType string `json:"code_type"`
}

type resetCodeRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required"`
}

type firebaseLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// LoginResponse is returned by every flow that signs a user in.
type LoginResponse struct {
	*auth.TokenPair
	User *models.User `json:"user"`
}

// CodeRegistration is returned by /v2/register.
type CodeRegistration struct {
	*verification.SendResult
	User *models.User `json:"user"`
}

// VerifiedLogin is returned by /v2/verify-email.
type VerifiedLogin struct {
	Verified bool `json:"verified"`
	*LoginResponse
}

func fingerprint(c echo.Context) string {
	return c.Request().Header.Get(middleware.HeaderDeviceFingerprint)
}

func (h *AuthHandler) signIn(c echo.Context, user *models.User) (*LoginResponse, error) {
	pair, err := h.auth.IssueTokens(user, fingerprint(c))
	if err != nil {
		return nil, err
	}
	return &LoginResponse{TokenPair: pair, User: user}, nil
}

// Register creates an account without email verification.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.auth.Register(c.Request().Context(), req.input(c, auth.PolicyStrict))
	if err != nil {
		return err
	}
	return Created(c, user, "registration successful")
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.auth.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	resp, err := h.signIn(c, user)
	if err != nil {
		return err
	}
	return OK(c, resp)
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken, fingerprint(c))
	if err != nil {
		return err
	}
	return OK(c, pair)
}

// ForgotPassword emails a reset link. The reply never reveals whether the
// address exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	msg, err := h.auth.RequestPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return Message(c, nil, msg)
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return Message(c, nil, "password has been reset")
}

func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req firebaseLoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.auth.FirebaseLogin(c.Request().Context(), req.IDToken)
	if err != nil {
		return err
	}
	resp, err := h.signIn(c, user)
	if err != nil {
		return err
	}
	return OK(c, resp)
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.auth.GetUser(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return OK(c, user)
}

// Logout is acknowledged only; tokens are dropped by the client.
func (h *AuthHandler) Logout(c echo.Context) error {
	logging.Ctx(c.Request().Context()).Info().Uint("user_id", middleware.UserID(c)).Msg("user logged out")
	return Message(c, nil, "logged out")
}

// RegisterWithCode creates an unverified account and emails a 6-digit code.
// The emailed code proves the address, so the password only needs to pass
// the basic policy.
func (h *AuthHandler) RegisterWithCode(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, sent, err := h.codes.Register(c.Request().Context(), req.input(c, auth.PolicyBasic))
	if err != nil {
		return err
	}
	return Message(c, CodeRegistration{SendResult: sent, User: user}, "verification code sent")
}

// VerifyEmail consumes the code and signs the user in.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.codes.VerifyEmail(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return err
	}
	resp, err := h.signIn(c, user)
	if err != nil {
		return err
	}
	return Message(c, VerifiedLogin{Verified: true, LoginResponse: resp}, "email verified")
}

func (h *AuthHandler) ResendCode(c echo.Context) error {
	var req resendRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ct := verification.CodeType(req.CodeType)
	if ct == "" {
		ct = verification.CodeEmailVerification
	}
	res, err := h.codes.Resend(c.Request().Context(), req.Email, ct)
	if err != nil {
		return err
	}
	return OK(c, res)
}

func (h *AuthHandler) ForgotPasswordCode(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.codes.ForgotPassword(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return Message(c, res, "if an account exists for this email, a reset code has been sent")
}

func (h *AuthHandler) ResetPasswordCode(c echo.Context) error {
	var req resetCodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.codes.ResetPassword(c.Request().Context(), req.Email, req.Code, req.NewPassword); err != nil {
		return err
	}
	return Message(c, nil, "password has been reset")
}
