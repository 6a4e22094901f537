// Package notification turns domain events into persisted notifications,
// pushes them to online recipients and serves the notification tray.
//
// Writers publish an Event after their transaction commits. Publishing never
// fails the caller: the Bus hands the event to a watermill router which
// persists it with retries, and failures end up in the log.
package notification

import (
	"context"
	"time"
)

const (
	TypeReviewEntityNew   = "review_entity_new"
	TypeReviewComment     = "review_comment"
	TypeReviewReaction    = "review_reaction"
	TypeCommentReaction   = "comment_reaction"
	TypeCircleRequest     = "circle_request"
	TypeCircleAccepted    = "circle_accepted"
	TypeCircleDeclined    = "circle_declined"
	TypeBadgeEarned       = "badge_earned"
	TypeLevelUp           = "level_up"
	TypeMilestoneReached  = "milestone_reached"
	TypeDailyTaskComplete = "daily_task_complete"
	TypeEntityClaimed     = "entity_claimed"
	TypeEntityVerified    = "entity_verified"
	TypeSystemBroadcast   = "system_broadcast"
)

// Event describes one notification to create.
type Event struct {
	Type        string                 `json:"type"`
	RecipientID uint                   `json:"recipient_id"`
	ActorID     uint                   `json:"actor_id,omitempty"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content,omitempty"`
	EntityType  string                 `json:"entity_type,omitempty"`
	EntityID    uint                   `json:"entity_id,omitempty"`
	Priority    string                 `json:"priority,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty"`
}

// selfInflicted reports whether the actor would notify themselves.
func (e Event) selfInflicted() bool {
	return e.ActorID != 0 && e.ActorID == e.RecipientID
}

// Publisher accepts events after the originating write committed.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event)

func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) {})
