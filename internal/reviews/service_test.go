package reviews

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/engagement"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/notification"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/repositories/testhelper"
)

type recorder struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recorder) Publish(_ context.Context, ev notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t string) []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// flakyApplier fails the first `failures` calls with an infrastructure error.
type flakyApplier struct {
	next     engagement.Applier
	failures int
	calls    int
	err      error
}

func (f *flakyApplier) Apply(ctx context.Context, ev engagement.Event) error {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return f.err
		}
		return errors.New("deadlock detected")
	}
	return f.next.Apply(ctx, ev)
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	counters *engagement.Service
	events   *recorder
	author   *models.User
	entity   *models.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelper.SetupTestDB(t)
	f := &fixture{db: db, events: &recorder{}}
	f.counters = newCounters(db)
	f.svc = newService(db, f.counters, f.events)
	f.author = testhelper.SeedUser(t, db, "author")
	f.entity = testhelper.SeedEntity(t, db, "Clinic", nil, nil)
	return f
}

func newCounters(db *gorm.DB) *engagement.Service {
	return engagement.NewService(
		repositories.NewPostgresReviewRepository(db),
		repositories.NewPostgresCommentRepository(db),
		repositories.NewPostgresEntityRepository(db),
		repositories.NewPostgresUserRepository(db),
		repositories.NewPostgresEngagementRepository(db),
		repositories.NewTxManager(db),
	)
}

func newService(db *gorm.DB, counters engagement.Applier, pub notification.Publisher) *Service {
	return NewService(
		repositories.NewTxManager(db),
		repositories.NewPostgresReviewRepository(db),
		repositories.NewPostgresCommentRepository(db),
		repositories.NewPostgresReactionRepository(db),
		repositories.NewPostgresEntityRepository(db),
		repositories.NewPostgresUserRepository(db),
		counters,
		pub,
	)
}

func (f *fixture) createReview(t *testing.T, rating float64) *models.Review {
	t.Helper()
	r, err := f.svc.CreateReview(context.Background(), f.author.ID, models.CreateReviewRequest{
		EntityID:      f.entity.ID,
		Title:         "Great visit",
		Content:       "The staff were friendly and quick.",
		OverallRating: rating,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) reload(t *testing.T, reviewID uint) (models.Review, models.Entity, models.User) {
	t.Helper()
	var r models.Review
	var e models.Entity
	var u models.User
	require.NoError(t, f.db.First(&r, reviewID).Error)
	require.NoError(t, f.db.First(&e, f.entity.ID).Error)
	require.NoError(t, f.db.First(&u, f.author.ID).Error)
	return r, e, u
}

func TestCounterConsistencyScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	review := f.createReview(t, 4)

	var comments []*models.Comment
	for i := 0; i < 3; i++ {
		u := testhelper.SeedUser(t, f.db, fmt.Sprintf("commenter%d", i))
		c, err := f.svc.AddComment(ctx, review.ID, u.ID, models.CreateCommentRequest{Content: "agreed"})
		require.NoError(t, err)
		comments = append(comments, c)
	}
	for i := 0; i < 2; i++ {
		u := testhelper.SeedUser(t, f.db, fmt.Sprintf("reactor%d", i))
		_, err := f.svc.React(ctx, u.ID, models.TargetReview, review.ID, "love")
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		u := testhelper.SeedUser(t, f.db, fmt.Sprintf("viewer%d", i))
		uid := u.ID
		require.NoError(t, f.db.Create(&models.ReviewView{ViewRecord: models.ViewRecord{
			ContentID: review.ID, UserID: &uid, IPAddress: "10.0.0.1", SessionID: "s",
			ViewedAt: time.Now().UTC(), IsValid: true,
		}}).Error)
		require.NoError(t, f.counters.Apply(ctx, engagement.Event{Kind: engagement.ViewRecorded, ContentType: models.ContentReview, ReviewID: review.ID}))
	}

	r, e, u := f.reload(t, review.ID)
	assert.Equal(t, int64(3), r.CommentCount)
	assert.Equal(t, int64(2), r.ReactionCount)
	assert.Equal(t, int64(5), r.ViewCount)
	assert.Equal(t, int64(1), e.ReviewCount)
	assert.Equal(t, int64(3), e.CommentCount)
	assert.Equal(t, int64(2), e.ReactionCount)
	assert.Equal(t, int64(0), e.ViewCount)
	assert.InDelta(t, 4.0, e.AverageRating, 0.001)
	assert.Equal(t, int64(1), u.ReviewCount)

	require.NoError(t, f.svc.DeleteComment(ctx, comments[0].ID, comments[0].UserID, false))
	r, e, _ = f.reload(t, review.ID)
	assert.Equal(t, int64(2), r.CommentCount)
	assert.Equal(t, int64(2), e.CommentCount)

	report, err := f.counters.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(100), report.HealthScore)
}

func TestCreateReviewSnapshotsAuthorAndEntity(t *testing.T) {
	f := newFixture(t)
	review := f.createReview(t, 5)

	assert.Equal(t, f.author.ID, review.UserSummary.ID)
	assert.Equal(t, "author", review.UserSummary.Username)
	assert.Equal(t, f.entity.ID, review.EntitySummary.ID)

	anon, err := f.svc.CreateReview(context.Background(), f.author.ID, models.CreateReviewRequest{
		EntityID: f.entity.ID, Content: "Anonymous but honest.", OverallRating: 2, IsAnonymous: true,
	})
	require.NoError(t, err)
	assert.Zero(t, anon.UserSummary.ID)
	assert.Equal(t, "Anonymous", anon.UserSummary.Name)

	_, e, u := f.reload(t, review.ID)
	assert.Equal(t, int64(2), e.ReviewCount)
	assert.InDelta(t, 3.5, e.AverageRating, 0.001)
	assert.Equal(t, int64(2), u.ReviewCount)
}

func TestCreateReviewUnknownEntity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateReview(context.Background(), f.author.ID, models.CreateReviewRequest{
		EntityID: 9999, Content: "Nothing to see here.", OverallRating: 3,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReviewOnClaimedEntityNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	f.createReview(t, 4)
	assert.Empty(t, f.events.ofType(notification.TypeReviewEntityNew))

	owner := testhelper.SeedUser(t, f.db, "owner")
	require.NoError(t, f.db.Model(&models.Entity{}).Where("id = ?", f.entity.ID).
		Updates(map[string]interface{}{"is_claimed": true, "claimed_by": owner.ID}).Error)

	review := f.createReview(t, 3)
	got := f.events.ofType(notification.TypeReviewEntityNew)
	require.Len(t, got, 1)
	assert.Equal(t, owner.ID, got[0].RecipientID)
	assert.Equal(t, f.author.ID, got[0].ActorID)
	assert.Equal(t, review.ID, got[0].EntityID)
	assert.Equal(t, models.PriorityNormal, got[0].Priority)
}

func TestCommentNotifiesReviewAuthor(t *testing.T) {
	f := newFixture(t)
	review := f.createReview(t, 4)
	commenter := testhelper.SeedUser(t, f.db, "commenter")

	c, err := f.svc.AddComment(context.Background(), review.ID, commenter.ID, models.CreateCommentRequest{Content: "  thanks for this  "})
	require.NoError(t, err)
	assert.Equal(t, "thanks for this", c.Content)

	got := f.events.ofType(notification.TypeReviewComment)
	require.Len(t, got, 1)
	assert.Equal(t, f.author.ID, got[0].RecipientID)
	assert.Equal(t, commenter.ID, got[0].ActorID)
	assert.Equal(t, c.ID, got[0].Data["comment_id"])
}

func TestAddCommentValidation(t *testing.T) {
	f := newFixture(t)
	review := f.createReview(t, 4)

	_, err := f.svc.AddComment(context.Background(), review.ID, f.author.ID, models.CreateCommentRequest{Content: "   "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.AddComment(context.Background(), 9999, f.author.ID, models.CreateCommentRequest{Content: "hello"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var count int64
	require.NoError(t, f.db.Model(&models.Comment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReactChangeTypeAndUnreact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	review := f.createReview(t, 4)
	fan := testhelper.SeedUser(t, f.db, "fan")

	res, err := f.svc.React(ctx, fan.ID, models.TargetReview, review.ID, "love")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, map[string]int64{"love": 1}, res.Summary)

	res, err = f.svc.React(ctx, fan.ID, models.TargetReview, review.ID, "haha")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "haha", res.Reaction.ReactionType)
	assert.Equal(t, map[string]int64{"haha": 1}, res.Summary)

	r, e, _ := f.reload(t, review.ID)
	assert.Equal(t, int64(1), r.ReactionCount)
	assert.Equal(t, int64(1), e.ReactionCount)
	assert.Len(t, f.events.ofType(notification.TypeReviewReaction), 1)

	require.NoError(t, f.svc.Unreact(ctx, fan.ID, models.TargetReview, review.ID))
	r, e, _ = f.reload(t, review.ID)
	assert.Zero(t, r.ReactionCount)
	assert.Zero(t, e.ReactionCount)

	assert.ErrorIs(t, f.svc.Unreact(ctx, fan.ID, models.TargetReview, review.ID), domain.ErrNotFound)
}

func TestReactOnCommentTouchesOnlyComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	review := f.createReview(t, 4)
	commenter := testhelper.SeedUser(t, f.db, "commenter")
	c, err := f.svc.AddComment(ctx, review.ID, commenter.ID, models.CreateCommentRequest{Content: "first"})
	require.NoError(t, err)

	_, err = f.svc.React(ctx, f.author.ID, models.TargetComment, c.ID, "thumbs_up")
	require.NoError(t, err)

	var stored models.Comment
	require.NoError(t, f.db.First(&stored, c.ID).Error)
	assert.Equal(t, int64(1), stored.ReactionCount)
	r, e, _ := f.reload(t, review.ID)
	assert.Zero(t, r.ReactionCount)
	assert.Zero(t, e.ReactionCount)

	got := f.events.ofType(notification.TypeCommentReaction)
	require.Len(t, got, 1)
	assert.Equal(t, commenter.ID, got[0].RecipientID)
}

func TestReactRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	review := f.createReview(t, 4)

	_, err := f.svc.React(context.Background(), f.author.ID, models.TargetReview, review.ID, "angry")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.React(context.Background(), f.author.ID, "entity", review.ID, "love")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteReviewPermissionsAndRollups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	review := f.createReview(t, 4)
	stranger := testhelper.SeedUser(t, f.db, "stranger")
	admin := testhelper.SeedUser(t, f.db, "admin")

	_, err := f.svc.AddComment(ctx, review.ID, stranger.ID, models.CreateCommentRequest{Content: "meh"})
	require.NoError(t, err)
	_, err = f.svc.React(ctx, stranger.ID, models.TargetReview, review.ID, "sad")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteReview(ctx, review.ID, stranger.ID, false), domain.ErrForbidden)
	require.NoError(t, f.svc.DeleteReview(ctx, review.ID, admin.ID, true))

	var e models.Entity
	var u models.User
	require.NoError(t, f.db.First(&e, f.entity.ID).Error)
	require.NoError(t, f.db.First(&u, f.author.ID).Error)
	assert.Zero(t, e.ReviewCount)
	assert.Zero(t, e.CommentCount)
	assert.Zero(t, e.ReactionCount)
	assert.Zero(t, e.AverageRating)
	assert.Zero(t, u.ReviewCount)

	var reactions int64
	require.NoError(t, f.db.Model(&models.Reaction{}).Count(&reactions).Error)
	assert.Zero(t, reactions)

	_, err = f.svc.GetReview(ctx, review.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCommentPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	review := f.createReview(t, 4)
	commenter := testhelper.SeedUser(t, f.db, "commenter")
	stranger := testhelper.SeedUser(t, f.db, "stranger")

	c, err := f.svc.AddComment(ctx, review.ID, commenter.ID, models.CreateCommentRequest{Content: "spam"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteComment(ctx, c.ID, stranger.ID, false), domain.ErrForbidden)
	require.NoError(t, f.svc.DeleteComment(ctx, c.ID, f.author.ID, false))
	assert.ErrorIs(t, f.svc.DeleteComment(ctx, c.ID, f.author.ID, false), domain.ErrNotFound)
}

func TestDeleteCommentRemovesItsReactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	review := f.createReview(t, 4)
	commenter := testhelper.SeedUser(t, f.db, "commenter")
	fan := testhelper.SeedUser(t, f.db, "fan")

	c, err := f.svc.AddComment(ctx, review.ID, commenter.ID, models.CreateCommentRequest{Content: "great"})
	require.NoError(t, err)
	_, err = f.svc.React(ctx, fan.ID, models.TargetComment, c.ID, "love")
	require.NoError(t, err)
	_, err = f.svc.React(ctx, f.author.ID, models.TargetComment, c.ID, "thumbs_up")
	require.NoError(t, err)
	_, err = f.svc.React(ctx, fan.ID, models.TargetReview, review.ID, "love")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteComment(ctx, c.ID, commenter.ID, false))

	var onComment, onReview int64
	require.NoError(t, f.db.Model(&models.Reaction{}).
		Where("target_type = ? AND target_id = ?", models.TargetComment, c.ID).Count(&onComment).Error)
	require.NoError(t, f.db.Model(&models.Reaction{}).
		Where("target_type = ? AND target_id = ?", models.TargetReview, review.ID).Count(&onReview).Error)
	assert.Zero(t, onComment)
	assert.Equal(t, int64(1), onReview)

	r, e, _ := f.reload(t, review.ID)
	assert.Zero(t, r.CommentCount)
	assert.Equal(t, int64(1), r.ReactionCount)
	assert.Equal(t, int64(1), e.ReactionCount)
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	db := testhelper.SetupTestDB(t)
	author := testhelper.SeedUser(t, db, "author")
	entity := testhelper.SeedEntity(t, db, "Clinic", nil, nil)
	req := models.CreateReviewRequest{EntityID: entity.ID, Content: "Retried but saved.", OverallRating: 4}

	flaky := &flakyApplier{next: newCounters(db), failures: 1}
	review, err := newService(db, flaky, nil).CreateReview(context.Background(), author.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.calls)

	var rows int64
	require.NoError(t, db.Model(&models.Review{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
	var stored models.Entity
	require.NoError(t, db.First(&stored, entity.ID).Error)
	assert.Equal(t, int64(1), stored.ReviewCount)
	assert.NotZero(t, review.ID)

	broken := &flakyApplier{next: newCounters(db), failures: 2}
	_, err = newService(db, broken, nil).CreateReview(context.Background(), author.ID, req)
	require.Error(t, err)
	assert.Equal(t, 2, broken.calls)
	require.NoError(t, db.Model(&models.Review{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestDomainFailureNotRetried(t *testing.T) {
	db := testhelper.SetupTestDB(t)
	author := testhelper.SeedUser(t, db, "author")
	entity := testhelper.SeedEntity(t, db, "Clinic", nil, nil)

	counters := &flakyApplier{next: newCounters(db), failures: 5, err: domain.ErrNotFound}
	_, err := newService(db, counters, nil).CreateReview(context.Background(), author.ID, models.CreateReviewRequest{
		EntityID: entity.ID, Content: "Should not persist.", OverallRating: 4,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, counters.calls)

	var rows int64
	require.NoError(t, db.Model(&models.Review{}).Count(&rows).Error)
	assert.Zero(t, rows)
}
