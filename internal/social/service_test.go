package social

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/notification"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/repositories/testhelper"
)

func setup(t *testing.T) (*Service, *gorm.DB, *[]notification.Event) {
	t.Helper()
	db := testhelper.SetupTestDB(t)
	events := &[]notification.Event{}
	pub := notification.PublisherFunc(func(_ context.Context, ev notification.Event) {
		*events = append(*events, ev)
	})
	svc := NewService(
		repositories.NewTxManager(db),
		repositories.NewPostgresFollowRepository(db),
		repositories.NewPostgresCircleRepository(db),
		repositories.NewPostgresUserRepository(db),
		pub,
	)
	return svc, db, events
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return u
}

func TestFollowMaintainsCounters(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	alice := testhelper.SeedUser(t, db, "alice")
	bob := testhelper.SeedUser(t, db, "bob")

	require.NoError(t, svc.Follow(ctx, alice.ID, bob.ID))
	assert.ErrorIs(t, svc.Follow(ctx, alice.ID, bob.ID), ErrAlreadyFollowing)
	assert.ErrorIs(t, svc.Follow(ctx, alice.ID, alice.ID), domain.ErrValidation)
	assert.ErrorIs(t, svc.Follow(ctx, alice.ID, 999), domain.ErrNotFound)

	assert.Equal(t, int64(1), reloadUser(t, db, alice.ID).FollowingCount)
	assert.Equal(t, int64(1), reloadUser(t, db, bob.ID).FollowerCount)

	followers, err := svc.Followers(ctx, bob.ID, repositories.Page{})
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, alice.ID, followers[0].ID)

	following, err := svc.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, following)

	require.NoError(t, svc.Unfollow(ctx, alice.ID, bob.ID))
	assert.ErrorIs(t, svc.Unfollow(ctx, alice.ID, bob.ID), domain.ErrNotFound)
	assert.Zero(t, reloadUser(t, db, alice.ID).FollowingCount)
	assert.Zero(t, reloadUser(t, db, bob.ID).FollowerCount)
}

func TestCircleRequestAccepted(t *testing.T) {
	svc, db, events := setup(t)
	ctx := context.Background()
	alice := testhelper.SeedUser(t, db, "alice")
	bob := testhelper.SeedUser(t, db, "bob")

	req, err := svc.SendCircleRequest(ctx, alice.ID, models.CreateCircleRequest{ReceiverID: bob.ID, Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, models.CircleRequestPending, req.Status)

	_, err = svc.SendCircleRequest(ctx, bob.ID, models.CreateCircleRequest{ReceiverID: alice.ID})
	assert.ErrorIs(t, err, ErrRequestPending)

	pending, err := svc.PendingRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = svc.RespondCircleRequest(ctx, alice.ID, req.ID, models.CircleRequestAccepted)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	answered, err := svc.RespondCircleRequest(ctx, bob.ID, req.ID, models.CircleRequestAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.CircleRequestAccepted, answered.Status)
	assert.NotNil(t, answered.RespondedAt)

	_, err = svc.RespondCircleRequest(ctx, bob.ID, req.ID, models.CircleRequestDeclined)
	assert.ErrorIs(t, err, ErrRequestAnswered)
	_, err = svc.SendCircleRequest(ctx, alice.ID, models.CreateCircleRequest{ReceiverID: bob.ID})
	assert.ErrorIs(t, err, ErrAlreadyInCircle)

	assert.Equal(t, int64(1), reloadUser(t, db, alice.ID).FriendCount)
	assert.Equal(t, int64(1), reloadUser(t, db, bob.ID).FriendCount)

	members, err := svc.Members(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, bob.ID, members[0].ID)

	require.Len(t, *events, 2)
	assert.Equal(t, notification.TypeCircleRequest, (*events)[0].Type)
	assert.Equal(t, bob.ID, (*events)[0].RecipientID)
	assert.Equal(t, notification.TypeCircleAccepted, (*events)[1].Type)
	assert.Equal(t, alice.ID, (*events)[1].RecipientID)
}

func TestCircleRequestDeclinedCanBeRetried(t *testing.T) {
	svc, db, events := setup(t)
	ctx := context.Background()
	alice := testhelper.SeedUser(t, db, "alice")
	bob := testhelper.SeedUser(t, db, "bob")

	req, err := svc.SendCircleRequest(ctx, alice.ID, models.CreateCircleRequest{ReceiverID: bob.ID})
	require.NoError(t, err)
	_, err = svc.RespondCircleRequest(ctx, bob.ID, req.ID, models.CircleRequestDeclined)
	require.NoError(t, err)

	assert.Zero(t, reloadUser(t, db, alice.ID).FriendCount)
	assert.Equal(t, notification.TypeCircleDeclined, (*events)[1].Type)
	assert.Equal(t, models.PriorityLow, (*events)[1].Priority)

	_, err = svc.SendCircleRequest(ctx, alice.ID, models.CreateCircleRequest{ReceiverID: bob.ID})
	require.NoError(t, err)

	_, err = svc.RespondCircleRequest(ctx, bob.ID, req.ID, "maybe")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
