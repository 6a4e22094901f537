package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/reviewinn/backend/internal/engagement"
)

// CounterAdmin is the maintenance surface of engagement.Service.
type CounterAdmin interface {
	Report(ctx context.Context) (*engagement.Report, error)
	Repair(ctx context.Context) (*engagement.RepairResult, error)
	ValidateSample(ctx context.Context, n int) (*engagement.SampleResult, error)
}

// AdminHandler serves /admin; every route requires the admin role.
type AdminHandler struct {
	counters CounterAdmin
}

func NewAdminHandler(counters CounterAdmin) *AdminHandler {
	return &AdminHandler{counters: counters}
}

func (h *AdminHandler) RegisterAdminRoutes(g *echo.Group) {
	g.GET("/counters/report", h.Report)
	g.POST("/counters/repair", h.Repair)
	g.GET("/counters/sample", h.Sample)
}

func (h *AdminHandler) Report(c echo.Context) error {
	rep, err := h.counters.Report(c.Request().Context())
	if err != nil {
		return err
	}
	return OK(c, rep)
}

func (h *AdminHandler) Repair(c echo.Context) error {
	res, err := h.counters.Repair(c.Request().Context())
	if err != nil {
		return err
	}
	return Message(c, res, "counters repaired")
}

func (h *AdminHandler) Sample(c echo.Context) error {
	n := queryInt(c, "n", 10)
	if n > 1000 {
		n = 1000
	}
	res, err := h.counters.ValidateSample(c.Request().Context(), n)
	if err != nil {
		return err
	}
	return OK(c, res)
}
