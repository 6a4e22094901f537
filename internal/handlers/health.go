package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports the status of every registered dependency.
type HealthHandler struct {
	checks  map[string]func(ctx context.Context) error
	timeout time.Duration
	started time.Time
}

func NewHealthHandler(checks map[string]func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, started: time.Now()}
}

type healthStatus struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Uptime   string            `json:"uptime"`
	Checks   map[string]string `json:"checks"`
	Degraded []string          `json:"degraded,omitempty"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	out := healthStatus{
		Status:  "healthy",
		Service: "reviewinn-api",
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Checks:  make(map[string]string, len(h.checks)),
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			out.Checks[name] = "unhealthy: " + err.Error()
			out.Degraded = append(out.Degraded, name)
			continue
		}
		out.Checks[name] = "ok"
	}
	status := http.StatusOK
	if len(out.Degraded) > 0 {
		sort.Strings(out.Degraded)
		out.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, Envelope{Success: status == http.StatusOK, Data: out})
}
