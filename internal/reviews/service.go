// Package reviews owns review, comment and reaction writes. Every write runs
// in one transaction together with its counter mutations; notifications are
// published only after the commit.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/engagement"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/notification"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

type Service struct {
	tx        *repositories.TxManager
	reviews   repositories.ReviewRepository
	comments  repositories.CommentRepository
	reactions repositories.ReactionRepository
	entities  repositories.EntityRepository
	users     repositories.UserRepository
	counters  engagement.Applier
	notify    notification.Publisher
	log       zerolog.Logger
}

func NewService(
	tx *repositories.TxManager,
	reviews repositories.ReviewRepository,
	comments repositories.CommentRepository,
	reactions repositories.ReactionRepository,
	entities repositories.EntityRepository,
	users repositories.UserRepository,
	counters engagement.Applier,
	notify notification.Publisher,
) *Service {
	if notify == nil {
		notify = notification.Discard
	}
	return &Service{
		tx:        tx,
		reviews:   reviews,
		comments:  comments,
		reactions: reactions,
		entities:  entities,
		users:     users,
		counters:  counters,
		notify:    notify,
		log:       logging.With("reviews"),
	}
}

// inTx runs fn in a transaction and retries once when the failure is not a
// domain error.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := s.tx.RunInTx(ctx, fn)
	if err == nil || domain.Known(err) || ctx.Err() != nil {
		return err
	}
	s.log.Warn().Err(err).Str("op", op).Msg("transaction failed, retrying once")
	if err = s.tx.RunInTx(ctx, fn); err != nil {
		if domain.Known(err) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) CreateReview(ctx context.Context, userID uint, req models.CreateReviewRequest) (*models.Review, error) {
	author, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	entity, err := s.entities.GetByID(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}

	review := &models.Review{
		UserID:        author.ID,
		EntityID:      entity.ID,
		Title:         strings.TrimSpace(req.Title),
		Content:       strings.TrimSpace(req.Content),
		OverallRating: req.OverallRating,
		Ratings:       req.Ratings,
		Pros:          req.Pros,
		Cons:          req.Cons,
		IsAnonymous:   req.IsAnonymous,
		UserSummary:   authorSummary(author, req.IsAnonymous),
		EntitySummary: entity.ToCompact(),
	}

	err = s.inTx(ctx, "create review", func(ctx context.Context) error {
		review.ID = 0
		if err := s.reviews.Create(ctx, review); err != nil {
			return err
		}
		return s.counters.Apply(ctx, engagement.Event{
			Kind:     engagement.ReviewCreated,
			ReviewID: review.ID,
			EntityID: entity.ID,
			UserID:   author.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	if entity.IsClaimed && entity.ClaimedBy != nil {
		s.notify.Publish(ctx, notification.ReviewOnEntity(*entity.ClaimedBy, author, entity, review))
	}
	s.log.Info().Uint("review_id", review.ID).Uint("entity_id", entity.ID).Uint("user_id", author.ID).Msg("review created")
	return review, nil
}

func authorSummary(u *models.User, anonymous bool) models.ReviewUserSummary {
	if anonymous {
		return models.ReviewUserSummary{Username: "anonymous", Name: "Anonymous"}
	}
	return models.ReviewUserSummary{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.DisplayName(),
		AvatarURL: u.AvatarURL,
		Level:     u.Level,
	}
}

func (s *Service) GetReview(ctx context.Context, id uint) (*models.Review, error) {
	return s.reviews.GetByID(ctx, id)
}

func (s *Service) ListByEntity(ctx context.Context, entityID uint, p repositories.Page) ([]models.Review, int64, error) {
	if _, err := s.entities.GetByID(ctx, entityID); err != nil {
		return nil, 0, err
	}
	return s.reviews.ListByEntity(ctx, entityID, p.Normalize(20, 100))
}

func (s *Service) ListByUser(ctx context.Context, userID uint, p repositories.Page) ([]models.Review, int64, error) {
	return s.reviews.ListByUser(ctx, userID, p.Normalize(20, 100))
}

func (s *Service) Latest(ctx context.Context, limit int) ([]models.Review, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.reviews.Latest(ctx, limit)
}

// DeleteReview removes a review with its comments, reactions and views.
// Only the author or an admin may delete.
func (s *Service) DeleteReview(ctx context.Context, id, userID uint, admin bool) error {
	return s.inTx(ctx, "delete review", func(ctx context.Context) error {
		review, err := s.reviews.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if review.UserID != userID && !admin {
			return domain.ErrForbidden
		}
		if err := s.reviews.Delete(ctx, id); err != nil {
			return err
		}
		return s.counters.Apply(ctx, engagement.Event{
			Kind:      engagement.ReviewDeleted,
			ReviewID:  review.ID,
			EntityID:  review.EntityID,
			UserID:    review.UserID,
			Comments:  review.CommentCount,
			Reactions: review.ReactionCount,
		})
	})
}

func (s *Service) AddComment(ctx context.Context, reviewID, userID uint, req models.CreateCommentRequest) (*models.Comment, error) {
	actor, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, domain.NewValidationError("content", "is required")
	}

	comment := &models.Comment{ReviewID: reviewID, UserID: userID, Content: content}
	var review *models.Review
	err = s.inTx(ctx, "add comment", func(ctx context.Context) error {
		r, err := s.reviews.GetByID(ctx, reviewID)
		if err != nil {
			return err
		}
		review = r
		comment.ID = 0
		if err := s.comments.Create(ctx, comment); err != nil {
			return err
		}
		return s.counters.Apply(ctx, engagement.Event{Kind: engagement.CommentCreated, ReviewID: r.ID, EntityID: r.EntityID})
	})
	if err != nil {
		return nil, err
	}

	s.notify.Publish(ctx, notification.CommentOnReview(review.UserID, actor, review, comment))
	return comment, nil
}

// DeleteComment is allowed for the comment author, the review author and admins.
func (s *Service) DeleteComment(ctx context.Context, commentID, userID uint, admin bool) error {
	return s.inTx(ctx, "delete comment", func(ctx context.Context) error {
		c, err := s.comments.GetByID(ctx, commentID)
		if err != nil {
			return err
		}
		review, err := s.reviews.GetByID(ctx, c.ReviewID)
		if err != nil {
			return err
		}
		if c.UserID != userID && review.UserID != userID && !admin {
			return domain.ErrForbidden
		}
		if err := s.comments.Delete(ctx, c.ID); err != nil {
			return err
		}
		return s.counters.Apply(ctx, engagement.Event{Kind: engagement.CommentDeleted, ReviewID: review.ID, EntityID: review.EntityID})
	})
}

func (s *Service) ListComments(ctx context.Context, reviewID uint, p repositories.Page) ([]models.Comment, int64, error) {
	if _, err := s.reviews.GetByID(ctx, reviewID); err != nil {
		return nil, 0, err
	}
	return s.comments.ListByReview(ctx, reviewID, p.Normalize(20, 100))
}

// ReactionResult is returned by React.
type ReactionResult struct {
	Reaction *models.Reaction `json:"reaction"`
	Created  bool             `json:"created"`
	Summary  map[string]int64 `json:"summary"`
}

// target is the resolved parent of a reaction.
type target struct {
	review  *models.Review
	comment *models.Comment
}

func (t target) authorID() uint {
	if t.comment != nil {
		return t.comment.UserID
	}
	return t.review.UserID
}

func (t target) event(kind engagement.EventKind) engagement.Event {
	if t.comment != nil {
		return engagement.Event{Kind: kind, TargetType: models.TargetComment, CommentID: t.comment.ID}
	}
	return engagement.Event{Kind: kind, TargetType: models.TargetReview, ReviewID: t.review.ID, EntityID: t.review.EntityID}
}

func (s *Service) resolve(ctx context.Context, targetType string, targetID uint) (target, error) {
	switch targetType {
	case models.TargetReview:
		r, err := s.reviews.GetByID(ctx, targetID)
		return target{review: r}, err
	case models.TargetComment:
		c, err := s.comments.GetByID(ctx, targetID)
		return target{comment: c}, err
	}
	return target{}, domain.NewValidationError("target_type", "must be one of: review comment")
}

// React adds the user's reaction or changes its type. Only a new reaction
// moves counters and notifies the target author.
func (s *Service) React(ctx context.Context, userID uint, targetType string, targetID uint, reactionType string) (*ReactionResult, error) {
	if !models.IsReactionType(reactionType) {
		return nil, domain.NewValidationError("reaction_type", "must be one of: "+strings.Join(models.ReactionTypes, " "))
	}
	actor, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		t      target
		result ReactionResult
	)
	err = s.inTx(ctx, "react", func(ctx context.Context) error {
		result = ReactionResult{}
		resolved, err := s.resolve(ctx, targetType, targetID)
		if err != nil {
			return err
		}
		t = resolved
		existing, err := s.reactions.Get(ctx, targetType, targetID, userID)
		switch {
		case err == nil:
			if existing.ReactionType != reactionType {
				if err := s.reactions.UpdateType(ctx, existing.ID, reactionType); err != nil {
					return err
				}
				existing.ReactionType = reactionType
			}
			result.Reaction = existing
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		reaction := &models.Reaction{TargetType: targetType, TargetID: targetID, UserID: userID, ReactionType: reactionType}
		if err := s.reactions.Create(ctx, reaction); err != nil {
			return err
		}
		result.Reaction = reaction
		result.Created = true
		return s.counters.Apply(ctx, t.event(engagement.ReactionAdded))
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		if t.comment != nil {
			s.notify.Publish(ctx, notification.ReactionOnComment(t.authorID(), actor, t.comment, reactionType))
		} else {
			s.notify.Publish(ctx, notification.ReactionOnReview(t.authorID(), actor, t.review, reactionType))
		}
	}
	if result.Summary, err = s.reactions.Summary(ctx, targetType, targetID); err != nil {
		return nil, err
	}
	return &result, nil
}

// Unreact removes the user's reaction from the target.
func (s *Service) Unreact(ctx context.Context, userID uint, targetType string, targetID uint) error {
	return s.inTx(ctx, "unreact", func(ctx context.Context) error {
		t, err := s.resolve(ctx, targetType, targetID)
		if err != nil {
			return err
		}
		existing, err := s.reactions.Get(ctx, targetType, targetID, userID)
		if err != nil {
			return err
		}
		if err := s.reactions.Delete(ctx, existing.ID); err != nil {
			return err
		}
		return s.counters.Apply(ctx, t.event(engagement.ReactionRemoved))
	})
}

// Summary counts reactions on a target per type.
func (s *Service) Summary(ctx context.Context, targetType string, targetID uint) (map[string]int64, error) {
	if _, err := s.resolve(ctx, targetType, targetID); err != nil {
		return nil, err
	}
	return s.reactions.Summary(ctx, targetType, targetID)
}
