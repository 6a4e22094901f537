package viewtracking

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/engagement"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/repositories/testhelper"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	counters *engagement.Service
	now    time.Time
	author *models.User
	entity *models.Entity
	review *models.Review
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelper.SetupTestDB(t)
	f := &fixture{db: db, now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	tx := repositories.NewTxManager(db)
	counters := engagement.NewService(
		repositories.NewPostgresReviewRepository(db),
		repositories.NewPostgresCommentRepository(db),
		repositories.NewPostgresEntityRepository(db),
		repositories.NewPostgresUserRepository(db),
		repositories.NewPostgresEngagementRepository(db),
		tx,
	).WithClock(func() time.Time { return f.now })
	f.counters = counters
	f.svc = NewService(
		tx,
		repositories.NewPostgresViewRepository(db),
		repositories.NewPostgresReviewRepository(db),
		repositories.NewPostgresEntityRepository(db),
		counters,
		nil,
		DefaultPolicy(),
	).WithClock(func() time.Time { return f.now })

	f.author = testhelper.SeedUser(t, db, "author")
	f.entity = testhelper.SeedEntity(t, db, "Clinic", nil, nil)
	f.review = testhelper.SeedReview(t, db, f.author, f.entity, 4)
	return f
}

func (f *fixture) track(t *testing.T, req Request) *Result {
	t.Helper()
	res, err := f.svc.Track(context.Background(), req)
	require.NoError(t, err)
	return res
}

func (f *fixture) reviewViews(t *testing.T) int64 {
	t.Helper()
	var r models.Review
	require.NoError(t, f.db.First(&r, f.review.ID).Error)
	return r.ViewCount
}

func TestAuthenticatedViewCooldown(t *testing.T) {
	f := newFixture(t)
	viewer := testhelper.SeedUser(t, f.db, "viewer")
	req := Request{ContentType: models.ContentReview, ContentID: f.review.ID, UserID: &viewer.ID, IPAddress: "10.0.0.1", UserAgent: "test"}

	first := f.track(t, req)
	assert.True(t, first.Tracked)
	assert.Equal(t, ReasonTracked, first.Reason)
	assert.Equal(t, int64(1), first.ViewCount)
	require.NotNil(t, first.IsUniqueUser)
	assert.True(t, *first.IsUniqueUser)

	for _, offset := range []time.Duration{10 * time.Second, time.Minute, 4 * time.Minute} {
		f.now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC).Add(offset)
		res := f.track(t, req)
		assert.False(t, res.Tracked, "offset %s", offset)
		assert.Equal(t, ReasonRateLimited, res.Reason)
		assert.Equal(t, int64(1), res.ViewCount)
	}
	assert.Equal(t, int64(1), f.reviewViews(t))

	f.now = f.now.Add(25 * time.Hour)
	again := f.track(t, req)
	assert.True(t, again.Tracked)
	require.NotNil(t, again.IsUniqueUser)
	assert.False(t, *again.IsUniqueUser)
	assert.True(t, *again.IsUniqueSession)
	assert.Equal(t, int64(2), f.reviewViews(t))
}

func TestExpiredViewsDropOutOfCounters(t *testing.T) {
	f := newFixture(t)
	f.svc.policy.Retention = 2 * time.Hour
	ctx := context.Background()
	viewer := testhelper.SeedUser(t, f.db, "viewer")
	start := f.now

	assert.True(t, f.track(t, Request{ContentType: models.ContentReview, ContentID: f.review.ID, UserID: &viewer.ID, IPAddress: "10.0.0.1", UserAgent: "curl"}).Tracked)
	f.now = start.Add(time.Hour)
	assert.True(t, f.track(t, Request{ContentType: models.ContentReview, ContentID: f.review.ID, IPAddress: "10.0.0.2", UserAgent: "firefox"}).Tracked)
	assert.Equal(t, int64(2), f.reviewViews(t))

	var stored []models.ViewRecord
	require.NoError(t, f.db.Table(models.ViewTable(models.ContentReview)).Order("id").Find(&stored).Error)
	require.Len(t, stored, 2)
	require.NotNil(t, stored[0].ExpiresAt)
	assert.True(t, stored[0].ExpiresAt.Equal(start.Add(2*time.Hour)))

	f.now = start.Add(150 * time.Minute)
	valid, err := repositories.NewPostgresViewRepository(f.db).CountValid(ctx, models.ContentReview, f.review.ID, f.now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), valid)

	rep, err := f.counters.Report(ctx)
	require.NoError(t, err)
	views := rep.Kinds["review.view_count"]
	assert.Equal(t, int64(1), views.Inconsistent)
	require.Len(t, views.Rows, 1)
	assert.Equal(t, int64(2), views.Rows[0].Stored)
	assert.Equal(t, int64(1), views.Rows[0].Actual)

	res, err := f.counters.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ByKind["review.view_count"])
	assert.Equal(t, int64(1), f.reviewViews(t))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	// "é" is two bytes; cutting at 2 would split it.
	assert.Equal(t, "a", truncate("aéb", 2))
	assert.Equal(t, "aé", truncate("aéb", 3))
	assert.Equal(t, "", truncate("日本", 2))

	ua := strings.Repeat("ü", 300)
	got := truncate(ua, 500)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, 500)
}

func TestAnonymousViewCooldownPerSession(t *testing.T) {
	f := newFixture(t)
	req := Request{ContentType: models.ContentEntity, ContentID: f.entity.ID, IPAddress: "10.0.0.2", UserAgent: "firefox"}

	first := f.track(t, req)
	assert.True(t, first.Tracked)
	require.NotNil(t, first.IsUniqueUser)
	assert.False(t, *first.IsUniqueUser)
	assert.True(t, *first.IsUniqueSession)

	f.now = f.now.Add(20 * time.Minute)
	second := f.track(t, req)
	assert.False(t, second.Tracked)
	assert.Equal(t, ReasonRateLimited, second.Reason)

	other := req
	other.UserAgent = "safari"
	assert.True(t, f.track(t, other).Tracked)

	var e models.Entity
	require.NoError(t, f.db.First(&e, f.entity.ID).Error)
	assert.Equal(t, int64(2), e.ViewCount)
}

func TestIPBurstIsRefusedAndInvalidated(t *testing.T) {
	f := newFixture(t)
	const ip = "10.0.0.9"
	var burst []*models.Entity
	for i := 0; i < 11; i++ {
		e := testhelper.SeedEntity(t, f.db, fmt.Sprintf("Shop %d", i), nil, nil)
		burst = append(burst, e)
		res := f.track(t, Request{ContentType: models.ContentEntity, ContentID: e.ID, IPAddress: ip, UserAgent: "bot"})
		require.True(t, res.Tracked)
	}

	f.now = f.now.Add(time.Minute)
	viewer := testhelper.SeedUser(t, f.db, "viewer")
	res := f.track(t, Request{ContentType: models.ContentReview, ContentID: f.review.ID, UserID: &viewer.ID, IPAddress: ip, UserAgent: "bot"})
	assert.False(t, res.Tracked)
	assert.Equal(t, ReasonSuspicious, res.Reason)
	assert.Zero(t, f.reviewViews(t))

	for _, e := range burst {
		var stored models.Entity
		require.NoError(t, f.db.First(&stored, e.ID).Error)
		assert.Zero(t, stored.ViewCount, "entity %d", e.ID)
	}
}

func TestTrackRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Track(context.Background(), Request{ContentType: "post", ContentID: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Track(context.Background(), Request{ContentType: models.ContentReview, ContentID: 999})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionIDBucketsByHour(t *testing.T) {
	at := time.Date(2026, 5, 10, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, SessionID("1.2.3.4", "ua", at), SessionID("1.2.3.4", "ua", at.Add(50*time.Minute)))
	assert.NotEqual(t, SessionID("1.2.3.4", "ua", at), SessionID("1.2.3.4", "ua", at.Add(time.Hour)))
	assert.NotEqual(t, SessionID("1.2.3.4", "ua", at), SessionID("1.2.3.5", "ua", at))
}

func TestReviewAnalyticsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testhelper.SeedUser(t, f.db, "owner")
	stranger := testhelper.SeedUser(t, f.db, "stranger")
	require.NoError(t, f.db.Model(&models.Entity{}).Where("id = ?", f.entity.ID).
		Updates(map[string]interface{}{"is_claimed": true, "claimed_by": owner.ID}).Error)

	f.track(t, Request{ContentType: models.ContentReview, ContentID: f.review.ID, UserID: &stranger.ID, IPAddress: "10.0.0.3"})

	a, err := f.svc.ReviewAnalytics(ctx, f.review.ID, Viewer{UserID: f.author.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ViewCount)
	assert.Equal(t, int64(1), a.ValidViews)
	assert.Equal(t, int64(1), a.UniqueUsers)
	assert.NotNil(t, a.LastViewAt)

	_, err = f.svc.ReviewAnalytics(ctx, f.review.ID, Viewer{UserID: owner.ID})
	assert.NoError(t, err)
	_, err = f.svc.ReviewAnalytics(ctx, f.review.ID, Viewer{UserID: stranger.ID, IsAdmin: true})
	assert.NoError(t, err)
	_, err = f.svc.ReviewAnalytics(ctx, f.review.ID, Viewer{UserID: stranger.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.EntityAnalytics(ctx, f.entity.ID, Viewer{UserID: f.author.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.EntityAnalytics(ctx, f.entity.ID, Viewer{UserID: owner.ID})
	assert.NoError(t, err)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(r))
}
