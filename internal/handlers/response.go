package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// Envelope is the body of every successful response.
type Envelope struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

func newPagination(p repositories.Page, total int64) *Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	return &Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    p.Page < pages,
		HasPrev:    p.Page > 1,
	}
}

// ErrorBody is the body of every failed response.
type ErrorBody struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Type    string              `json:"type"`
	Fields  []domain.FieldError `json:"fields,omitempty"`

	RetryAfter        *int `json:"retry_after,omitempty"`
	AttemptsRemaining *int `json:"attempts_remaining,omitempty"`
}

func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(c echo.Context, data interface{}, message string) error {
	return c.JSON(http.StatusCreated, Envelope{Success: true, Data: data, Message: message})
}

func Message(c echo.Context, data interface{}, message string) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

func Paginated(c echo.Context, data interface{}, p repositories.Page, total int64) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Pagination: newPagination(p, total)})
}

// classify maps an error to its status code and machine-readable detail.
func classify(err error) (int, ErrorDetail) {
	var (
		verr *domain.ValidationError
		cerr *domain.CodeError
		rerr *domain.RateLimitError
		terr *domain.TokenError
		herr *echo.HTTPError
		d    ErrorDetail
	)
	switch {
	case errors.As(err, &cerr):
		d = ErrorDetail{Code: "INVALID_CODE", Type: "ValidationError", Message: cerr.Error()}
		if cerr.Reason == domain.CodeInvalid {
			n := cerr.AttemptsRemaining
			d.AttemptsRemaining = &n
		} else {
			d.Code = "CODE_" + strings.ToUpper(string(cerr.Reason))
		}
		return http.StatusBadRequest, d
	case errors.As(err, &verr):
		d = ErrorDetail{Code: "VALIDATION_ERROR", Type: "ValidationError", Message: verr.Error(), Fields: verr.Errors}
		return http.StatusBadRequest, d
	case errors.As(err, &rerr):
		secs := int(math.Ceil(rerr.RetryAfter.Seconds()))
		return http.StatusTooManyRequests, ErrorDetail{Code: "RATE_LIMITED", Type: "RateLimitError", Message: rerr.Error(), RetryAfter: &secs}
	case errors.As(err, &terr):
		code := "INVALID_TOKEN"
		if terr.Reason == domain.TokenExpired {
			code = "TOKEN_EXPIRED"
		}
		return http.StatusUnauthorized, ErrorDetail{Code: code, Type: "AuthenticationError", Message: "invalid or expired token"}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorDetail{Code: "VALIDATION_ERROR", Type: "ValidationError", Message: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorDetail{Code: "UNAUTHORIZED", Type: "AuthenticationError", Message: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, ErrorDetail{Code: "FORBIDDEN", Type: "AuthorizationError", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorDetail{Code: "NOT_FOUND", Type: "NotFound", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, ErrorDetail{Code: "CONFLICT", Type: "Conflict", Message: err.Error()}
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorDetail{Code: "RATE_LIMITED", Type: "RateLimitError", Message: err.Error()}
	case errors.Is(err, domain.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, ErrorDetail{Code: "REQUEST_TOO_LARGE", Type: "RequestTooLarge", Message: err.Error()}
	case errors.As(err, &herr):
		return fromHTTPError(herr)
	}
	return http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL_ERROR", Type: "InternalError", Message: "internal server error"}
}

// fromHTTPError covers errors raised by echo itself: routing, binding and
// the body limit middleware.
func fromHTTPError(herr *echo.HTTPError) (int, ErrorDetail) {
	msg := http.StatusText(herr.Code)
	if s, ok := herr.Message.(string); ok && herr.Code < 500 {
		msg = s
	}
	d := ErrorDetail{Code: "HTTP_" + strconv.Itoa(herr.Code), Type: "HTTPError", Message: msg}
	switch herr.Code {
	case http.StatusBadRequest:
		d.Code, d.Type = "VALIDATION_ERROR", "ValidationError"
	case http.StatusUnauthorized:
		d.Code, d.Type = "UNAUTHORIZED", "AuthenticationError"
	case http.StatusForbidden:
		d.Code, d.Type = "FORBIDDEN", "AuthorizationError"
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		d.Code, d.Type = "NOT_FOUND", "NotFound"
	case http.StatusRequestEntityTooLarge:
		d.Code, d.Type = "REQUEST_TOO_LARGE", "RequestTooLarge"
	case http.StatusTooManyRequests:
		d.Code, d.Type = "RATE_LIMITED", "RateLimitError"
	}
	if herr.Code >= 500 {
		d.Code, d.Type = "INTERNAL_ERROR", "InternalError"
	}
	return herr.Code, d
}

// Fail writes the error envelope for err.
func Fail(c echo.Context, err error) error {
	status, detail := classify(err)
	if status >= 500 {
		logging.Ctx(c.Request().Context()).Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("unhandled error")
	}
	if detail.RetryAfter != nil {
		c.Response().Header().Set("Retry-After", strconv.Itoa(*detail.RetryAfter))
	}
	return c.JSON(status, ErrorBody{Success: false, Error: detail, Timestamp: time.Now().UTC()})
}

// ErrorHandler replaces echo's default so every error leaves in the envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		status, _ := classify(err)
		_ = c.NoContent(status)
		return
	}
	_ = Fail(c, err)
}

// bind decodes and validates the request body.
func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		var herr *echo.HTTPError
		if errors.As(err, &herr) && herr.Code == http.StatusRequestEntityTooLarge {
			return domain.ErrTooLarge
		}
		return domain.NewValidationError("body", "malformed request body")
	}
	return c.Validate(dst)
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.NewValidationError(name, "must be a positive integer")
	}
	return uint(id), nil
}

func queryInt(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return def
	}
	return v
}

func queryUint(c echo.Context, name string) uint {
	v, err := strconv.ParseUint(c.QueryParam(name), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

func queryBool(c echo.Context, name string) *bool {
	v, err := strconv.ParseBool(c.QueryParam(name))
	if err != nil {
		return nil
	}
	return &v
}

func pageFrom(c echo.Context, def, max int) repositories.Page {
	return repositories.Page{Page: queryInt(c, "page", 1), Limit: queryInt(c, "limit", def)}.Normalize(def, max)
}
