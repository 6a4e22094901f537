package config

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupMiddleware installs echo's stock middleware: panic recovery, request IDs,
// CORS and the request body cap. Application middleware is added by the router.
func SetupMiddleware(e *echo.Echo, cfg ServerConfig) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: len(cfg.CORSOrigins) > 0 && cfg.CORSOrigins[0] != "*",
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Device-Fingerprint"},
	}))
	e.Use(middleware.BodyLimit(cfg.MaxBodySize))
}
