package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/viewtracking"
)

type recordingTracker struct {
	last   viewtracking.Request
	viewer viewtracking.Viewer
}

func (r *recordingTracker) Track(_ context.Context, req viewtracking.Request) (*viewtracking.Result, error) {
	r.last = req
	return &viewtracking.Result{Tracked: true, Reason: "tracked", ViewCount: 11}, nil
}

func (r *recordingTracker) ReviewAnalytics(_ context.Context, id uint, v viewtracking.Viewer) (*viewtracking.Analytics, error) {
	r.viewer = v
	if v.UserID != 42 {
		return nil, domain.ErrForbidden
	}
	return &viewtracking.Analytics{ContentType: models.ContentReview, ContentID: id, ViewCount: 11}, nil
}

func (r *recordingTracker) EntityAnalytics(context.Context, uint, viewtracking.Viewer) (*viewtracking.Analytics, error) {
	return nil, domain.ErrNotFound
}

func asUser(id uint) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id != 0 {
				c.Set("user_id", id)
			}
			return next(c)
		}
	}
}

func newViewServer(user uint) (*echo.Echo, *recordingTracker) {
	tr := &recordingTracker{}
	e := newEcho()
	NewViewTrackingHandler(tr).RegisterViewRoutes(
		e.Group("/view-tracking", asUser(user)),
		e.Group("/view-tracking", asUser(user)),
	)
	return e, tr
}

func TestTrackAnonymousView(t *testing.T) {
	e, tr := newViewServer(0)
	rec := do(e, http.MethodPost, "/view-tracking/reviews/5", "", "User-Agent", "Mozilla/5.0", "X-Real-IP", "198.51.100.4")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, models.ContentReview, tr.last.ContentType)
	assert.Equal(t, uint(5), tr.last.ContentID)
	assert.Nil(t, tr.last.UserID)
	assert.Equal(t, "198.51.100.4", tr.last.IPAddress)
	assert.Equal(t, "Mozilla/5.0", tr.last.UserAgent)

	var res viewtracking.Result
	decodeEnvelope(t, rec, &res)
	assert.True(t, res.Tracked)
	assert.Equal(t, int64(11), res.ViewCount)
}

func TestTrackEntityAsUser(t *testing.T) {
	e, tr := newViewServer(42)
	rec := do(e, http.MethodPost, "/view-tracking/entities/9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ContentEntity, tr.last.ContentType)
	require.NotNil(t, tr.last.UserID)
	assert.Equal(t, uint(42), *tr.last.UserID)
}

func TestTrackRejectsBadID(t *testing.T) {
	e, _ := newViewServer(0)
	rec := do(e, http.MethodPost, "/view-tracking/reviews/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", decodeError(t, rec).Error.Fields[0].Field)
}

func TestAnalyticsAccess(t *testing.T) {
	e, tr := newViewServer(42)
	rec := do(e, http.MethodGet, "/view-tracking/reviews/5/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(42), tr.viewer.UserID)
	assert.False(t, tr.viewer.IsAdmin)

	e, _ = newViewServer(7)
	rec = do(e, http.MethodGet, "/view-tracking/reviews/5/analytics", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, http.MethodGet, "/view-tracking/entities/5/analytics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type listingNotifications struct {
	NotificationService
	filter repositories.NotificationFilter
	page   repositories.Page
}

func (l *listingNotifications) List(_ context.Context, _ uint, f repositories.NotificationFilter, p repositories.Page) ([]models.Notification, int64, error) {
	l.filter, l.page = f, p
	return []models.Notification{{}, {}}, 45, nil
}

func TestNotificationListPaginates(t *testing.T) {
	svc := &listingNotifications{}
	e := newEcho()
	NewNotificationHandler(svc).RegisterNotificationRoutes(e.Group("/n", asUser(42)), e.Group("/n/admin"))

	rec := do(e, http.MethodGet, "/n?page=2&limit=20&is_read=false&type=review_reply", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec, nil)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 3, env.Pagination.TotalPages)
	assert.True(t, env.Pagination.HasNext)
	require.NotNil(t, svc.filter.IsRead)
	assert.False(t, *svc.filter.IsRead)
	assert.Equal(t, "review_reply", svc.filter.Type)

	do(e, http.MethodGet, "/n?limit=500", "")
	assert.Equal(t, 20, svc.page.Limit)
	assert.Equal(t, 1, svc.page.Page)
}
