package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/repositories/testhelper"
)

type fakePusher struct {
	mu     sync.Mutex
	online map[uint]bool
	pushed []models.Notification
}

func (p *fakePusher) PushNotification(userID uint, n *models.Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	p.pushed = append(p.pushed, *n)
	return true
}

type fixture struct {
	db   *gorm.DB
	svc  *Service
	now  time.Time
	user *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelper.SetupTestDB(t)
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	svc := NewService(repositories.NewPostgresNotificationRepository(db), repositories.NewPostgresUserRepository(db)).
		WithClock(func() time.Time { return now })
	return &fixture{db: db, svc: svc, now: now, user: testhelper.SeedUser(t, db, "reader")}
}

func (f *fixture) insert(t *testing.T, title, priority string, read bool, createdAt time.Time, expiresAt time.Time) *models.Notification {
	t.Helper()
	n := &models.Notification{
		UserID:         f.user.ID,
		Type:           TypeReviewComment,
		Title:          title,
		Priority:       priority,
		DeliveryStatus: models.DeliveryDelivered,
		IsRead:         read,
		ExpiresAt:      &expiresAt,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	require.NoError(t, f.db.Create(n).Error)
	return n
}

func titles(ns []models.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Title
	}
	return out
}

func TestDropdownOrder(t *testing.T) {
	f := newFixture(t)
	future := f.now.Add(24 * time.Hour)
	f.insert(t, "N1", models.PriorityCritical, false, f.now.Add(-4*time.Hour), future)
	f.insert(t, "N2", models.PriorityNormal, true, f.now.Add(-2*time.Hour), future)
	f.insert(t, "N3", models.PriorityUrgent, false, f.now.Add(-3*time.Hour), future)
	f.insert(t, "N4", models.PriorityNormal, false, f.now.Add(-1*time.Hour), f.now.Add(-time.Minute))

	d, err := f.svc.Dropdown(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"N1", "N3", "N2"}, titles(d.Notifications))
	assert.Equal(t, int64(2), d.UnreadCount)
	assert.Equal(t, int64(2), d.UrgentCount)
	assert.False(t, d.HasMore)
}

func TestDropdownHasMore(t *testing.T) {
	f := newFixture(t)
	future := f.now.Add(24 * time.Hour)
	for i := 0; i < DropdownLimit+1; i++ {
		f.insert(t, "n", models.PriorityLow, false, f.now.Add(-time.Duration(i)*time.Minute), future)
	}
	d, err := f.svc.Dropdown(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Len(t, d.Notifications, DropdownLimit)
	assert.True(t, d.HasMore)
	assert.Equal(t, int64(DropdownLimit+1), d.UnreadCount)
}

func TestCreateDefaultsAndSelfFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := testhelper.SeedUser(t, f.db, "actor")

	cases := map[string]time.Duration{
		models.PriorityCritical: 7 * 24 * time.Hour,
		models.PriorityUrgent:   7 * 24 * time.Hour,
		models.PriorityHigh:     14 * 24 * time.Hour,
		models.PriorityNormal:   30 * 24 * time.Hour,
		models.PriorityLow:      30 * 24 * time.Hour,
	}
	for priority, ttl := range cases {
		n, err := f.svc.Create(ctx, Event{Type: TypeSystemBroadcast, RecipientID: f.user.ID, ActorID: actor.ID, Title: "hi", Priority: priority})
		require.NoError(t, err)
		require.NotNil(t, n.ExpiresAt)
		assert.True(t, n.ExpiresAt.Equal(f.now.Add(ttl)), priority)
		assert.Equal(t, models.DeliveryPending, n.DeliveryStatus)
	}

	n, err := f.svc.Create(ctx, Event{Type: TypeReviewComment, RecipientID: f.user.ID, Title: "defaulted"})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, n.Priority)

	n, err = f.svc.Create(ctx, Event{Type: TypeReviewComment, RecipientID: actor.ID, ActorID: actor.ID, Title: "self"})
	require.NoError(t, err)
	assert.Nil(t, n)

	_, err = f.svc.Create(ctx, Event{Type: TypeReviewComment, RecipientID: f.user.ID, Title: "x", Priority: "loud"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	var count int64
	require.NoError(t, f.db.Model(&models.Notification{}).Where("user_id = ?", actor.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreatePushesToOnlineRecipient(t *testing.T) {
	f := newFixture(t)
	offline := testhelper.SeedUser(t, f.db, "offline")
	pusher := &fakePusher{online: map[uint]bool{f.user.ID: true}}
	f.svc.SetPusher(pusher)

	online, err := f.svc.Create(context.Background(), Event{Type: TypeLevelUp, RecipientID: f.user.ID, Title: "Level up"})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, online.DeliveryStatus)

	pending, err := f.svc.Create(context.Background(), Event{Type: TypeLevelUp, RecipientID: offline.ID, Title: "Level up"})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryPending, pending.DeliveryStatus)

	var stored models.Notification
	require.NoError(t, f.db.First(&stored, online.ID).Error)
	assert.Equal(t, models.DeliveryDelivered, stored.DeliveryStatus)
	require.NoError(t, f.db.First(&stored, pending.ID).Error)
	assert.Equal(t, models.DeliveryPending, stored.DeliveryStatus)
	require.Len(t, pusher.pushed, 1)
	assert.Equal(t, online.ID, pusher.pushed[0].ID)
}

func TestUpdateReadAndOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := testhelper.SeedUser(t, f.db, "other")
	n := f.insert(t, "mine", models.PriorityNormal, false, f.now, f.now.Add(time.Hour))

	_, err := f.svc.MarkRead(ctx, other.ID, n.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, other.ID, n.ID), domain.ErrNotFound)

	read, err := f.svc.MarkRead(ctx, f.user.ID, n.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	assert.Equal(t, models.DeliveryRead, read.DeliveryStatus)
	require.NotNil(t, read.ReadAt)

	unread := false
	back, err := f.svc.Update(ctx, f.user.ID, n.ID, models.UpdateNotificationRequest{IsRead: &unread})
	require.NoError(t, err)
	assert.False(t, back.IsRead)
	assert.Nil(t, back.ReadAt)

	_, err = f.svc.Update(ctx, f.user.ID, n.ID, models.UpdateNotificationRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, f.svc.Delete(ctx, f.user.ID, n.ID))
	_, err = f.svc.MarkRead(ctx, f.user.ID, n.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBulkUpdateSkipsForeignRows(t *testing.T) {
	f := newFixture(t)
	other := testhelper.SeedUser(t, f.db, "other")
	a := f.insert(t, "a", models.PriorityNormal, false, f.now, f.now.Add(time.Hour))
	b := f.insert(t, "b", models.PriorityNormal, false, f.now, f.now.Add(time.Hour))
	foreign := &models.Notification{UserID: other.ID, Type: TypeReviewComment, Title: "theirs", Priority: models.PriorityNormal, DeliveryStatus: models.DeliveryPending}
	require.NoError(t, f.db.Create(foreign).Error)

	read := true
	n, err := f.svc.BulkUpdate(context.Background(), f.user.ID, models.BulkUpdateNotificationsRequest{
		IDs: []uint{a.ID, b.ID, foreign.ID}, IsRead: &read,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var stored models.Notification
	require.NoError(t, f.db.First(&stored, foreign.ID).Error)
	assert.False(t, stored.IsRead)

	failed := "failed"
	n, err = f.svc.BulkUpdate(context.Background(), f.user.ID, models.BulkUpdateNotificationsRequest{IDs: []uint{a.ID}, DeliveryStatus: &failed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	bogus := "bounced"
	_, err = f.svc.BulkUpdate(context.Background(), f.user.ID, models.BulkUpdateNotificationsRequest{IDs: []uint{a.ID}, DeliveryStatus: &bogus})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMarkAllReadAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	future := f.now.Add(time.Hour)
	f.insert(t, "a", models.PriorityUrgent, false, f.now, future)
	f.insert(t, "b", models.PriorityCritical, false, f.now, future)
	f.insert(t, "c", models.PriorityNormal, true, f.now, future)
	f.insert(t, "d", models.PriorityNormal, false, f.now, f.now.Add(-time.Hour))

	stats, err := f.svc.Stats(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Unread)
	assert.Equal(t, int64(1), stats.Read)
	assert.Equal(t, int64(1), stats.Urgent)
	assert.Equal(t, int64(1), stats.Critical)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(4), stats.ByType[TypeReviewComment])

	n, err := f.svc.MarkAllRead(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	sum, err := f.svc.Summary(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, sum.UnreadCount)
	assert.Zero(t, sum.UrgentCount)
}

func TestCleanupExpiredIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "old", models.PriorityNormal, false, f.now.Add(-48*time.Hour), f.now.Add(-time.Hour))
	f.insert(t, "fresh", models.PriorityNormal, false, f.now, f.now.Add(time.Hour))

	n, err := f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, total, err := f.svc.List(ctx, f.user.ID, repositories.NotificationFilter{}, repositories.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"fresh"}, titles(list))

	_, total, err = f.svc.List(ctx, f.user.ID, repositories.NotificationFilter{IncludeExpired: true, DeliveryStatus: models.DeliveryExpired}, repositories.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := testhelper.SeedUser(t, f.db, "admin")
	inactive := testhelper.SeedUser(t, f.db, "inactive")
	require.NoError(t, f.db.Model(inactive).Update("is_active", false).Error)

	sent, err := f.svc.Broadcast(ctx, admin.ID, models.BroadcastRequest{
		Type: TypeSystemBroadcast, Title: "Maintenance tonight", Priority: models.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = f.svc.Broadcast(ctx, admin.ID, models.BroadcastRequest{
		Type: TypeSystemBroadcast, Title: "Just you", UserIDs: []uint{f.user.ID, f.user.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	var count int64
	require.NoError(t, f.db.Model(&models.Notification{}).Where("user_id = ?", f.user.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	require.NoError(t, f.db.Model(&models.Notification{}).Where("user_id = ?", inactive.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGamificationEventsPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events := []Event{
		BadgeEarned(f.user.ID, "First Review"),
		LevelUp(f.user.ID, 3),
		MilestoneReached(f.user.ID, "100 helpful votes"),
		DailyTaskComplete(f.user.ID, "Write a review", 15),
	}
	for _, ev := range events {
		n, err := f.svc.Create(ctx, ev)
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, ev.Type, n.Type)
		assert.Equal(t, models.DeliveryPending, n.DeliveryStatus)
	}

	level, err := f.svc.Create(ctx, LevelUp(f.user.ID, 4))
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, level.Priority)
	assert.Equal(t, "You reached level 4.", level.Content)
}
