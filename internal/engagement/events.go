// Package engagement keeps the denormalized counters on reviews, comments,
// entities and users equal to their authoritative tables. Apply runs inside
// the transaction of the triggering write; Report, Repair and ValidateSample
// detect and heal drift.
package engagement

import (
	"context"
	"fmt"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// EventKind names a write that moves one or more counters.
type EventKind string

const (
	CommentCreated  EventKind = "comment_created"
	CommentDeleted  EventKind = "comment_deleted"
	ReactionAdded   EventKind = "reaction_added"
	ReactionRemoved EventKind = "reaction_removed"
	ViewRecorded    EventKind = "view_recorded"
	ViewInvalidated EventKind = "view_invalidated"
	ReviewCreated   EventKind = "review_created"
	ReviewDeleted   EventKind = "review_deleted"
)

// Event carries the identifiers a counter mutation needs.
//
//   - comment events: ReviewID, EntityID
//   - reaction events: TargetType, and ReviewID+EntityID or CommentID
//   - view events: ContentType and ReviewID or EntityID; Count for batches
//   - review events: ReviewID, EntityID, UserID; on delete, Comments and
//     Reactions hold the review's own counters so the entity roll-ups drop too
type Event struct {
	Kind        EventKind
	ReviewID    uint
	CommentID   uint
	EntityID    uint
	UserID      uint
	TargetType  string
	ContentType string
	Count       int64
	Comments    int64
	Reactions   int64
}

func (e Event) count() int64 {
	if e.Count > 0 {
		return e.Count
	}
	return 1
}

// Applier is implemented by Service; writers depend on it.
type Applier interface {
	Apply(ctx context.Context, ev Event) error
}

type counterStore interface {
	AdjustCounter(ctx context.Context, id uint, column string, delta int64) error
}

type entityStore interface {
	counterStore
	RecomputeRating(ctx context.Context, id uint) (float64, error)
}

// Apply mutates the counters affected by ev. It must be called with the
// ctx of the transaction that wrote the authoritative row.
func (s *Service) Apply(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case CommentCreated, CommentDeleted:
		delta := sign(ev.Kind == CommentCreated)
		if err := s.reviews.AdjustCounter(ctx, ev.ReviewID, "comment_count", delta); err != nil {
			return err
		}
		return s.entities.AdjustCounter(ctx, ev.EntityID, "comment_count", delta)

	case ReactionAdded, ReactionRemoved:
		delta := sign(ev.Kind == ReactionAdded)
		switch ev.TargetType {
		case models.TargetReview:
			if err := s.reviews.AdjustCounter(ctx, ev.ReviewID, "reaction_count", delta); err != nil {
				return err
			}
			return s.entities.AdjustCounter(ctx, ev.EntityID, "reaction_count", delta)
		case models.TargetComment:
			return s.comments.AdjustCounter(ctx, ev.CommentID, "reaction_count", delta)
		}
		return fmt.Errorf("apply %s: unknown target %q", ev.Kind, ev.TargetType)

	case ViewRecorded, ViewInvalidated:
		delta := ev.count()
		if ev.Kind == ViewInvalidated {
			delta = -delta
		}
		switch ev.ContentType {
		case models.ContentReview:
			return s.reviews.AdjustCounter(ctx, ev.ReviewID, "view_count", delta)
		case models.ContentEntity:
			return s.entities.AdjustCounter(ctx, ev.EntityID, "view_count", delta)
		}
		return fmt.Errorf("apply %s: unknown content %q", ev.Kind, ev.ContentType)

	case ReviewCreated, ReviewDeleted:
		delta := sign(ev.Kind == ReviewCreated)
		if err := s.entities.AdjustCounter(ctx, ev.EntityID, "review_count", delta); err != nil {
			return err
		}
		if err := s.users.AdjustCounter(ctx, ev.UserID, "review_count", delta); err != nil {
			return err
		}
		if ev.Kind == ReviewDeleted {
			if err := s.entities.AdjustCounter(ctx, ev.EntityID, "comment_count", -ev.Comments); err != nil {
				return err
			}
			if err := s.entities.AdjustCounter(ctx, ev.EntityID, "reaction_count", -ev.Reactions); err != nil {
				return err
			}
		}
		_, err := s.entities.RecomputeRating(ctx, ev.EntityID)
		return err
	}
	return fmt.Errorf("apply: unknown event %q", ev.Kind)
}

func sign(up bool) int64 {
	if up {
		return 1
	}
	return -1
}
