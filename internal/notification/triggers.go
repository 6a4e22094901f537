package notification

import (
	"fmt"

	"github.com/anonto42/reviewinn/backend/internal/models"
)

// The constructors below map domain events to notifications. Recipient
// selection and self-notification filtering happen in Service.Create.

func ReviewOnEntity(owner uint, actor *models.User, entity *models.Entity, review *models.Review) Event {
	return Event{
		Type:        TypeReviewEntityNew,
		RecipientID: owner,
		ActorID:     actor.ID,
		Title:       fmt.Sprintf("New review on %s", entity.Name),
		Content:     fmt.Sprintf("%s rated %s %.1f stars.", actorName(actor, review.IsAnonymous), entity.Name, review.OverallRating),
		EntityType:  models.TargetReview,
		EntityID:    review.ID,
		Priority:    models.PriorityNormal,
		Data:        map[string]interface{}{"entity_id": entity.ID, "review_id": review.ID, "rating": review.OverallRating},
	}
}

func CommentOnReview(author uint, actor *models.User, review *models.Review, comment *models.Comment) Event {
	return Event{
		Type:        TypeReviewComment,
		RecipientID: author,
		ActorID:     actor.ID,
		Title:       "New comment on your review",
		Content:     fmt.Sprintf("%s commented: %s", actor.DisplayName(), excerpt(comment.Content, 120)),
		EntityType:  models.TargetReview,
		EntityID:    review.ID,
		Priority:    models.PriorityNormal,
		Data:        map[string]interface{}{"review_id": review.ID, "comment_id": comment.ID},
	}
}

func ReactionOnReview(author uint, actor *models.User, review *models.Review, reactionType string) Event {
	return Event{
		Type:        TypeReviewReaction,
		RecipientID: author,
		ActorID:     actor.ID,
		Title:       "New reaction on your review",
		Content:     fmt.Sprintf("%s reacted %s to your review.", actor.DisplayName(), reactionType),
		EntityType:  models.TargetReview,
		EntityID:    review.ID,
		Priority:    models.PriorityLow,
		Data:        map[string]interface{}{"review_id": review.ID, "reaction_type": reactionType},
	}
}

func ReactionOnComment(author uint, actor *models.User, comment *models.Comment, reactionType string) Event {
	return Event{
		Type:        TypeCommentReaction,
		RecipientID: author,
		ActorID:     actor.ID,
		Title:       "New reaction on your comment",
		Content:     fmt.Sprintf("%s reacted %s to your comment.", actor.DisplayName(), reactionType),
		EntityType:  models.TargetComment,
		EntityID:    comment.ID,
		Priority:    models.PriorityLow,
		Data:        map[string]interface{}{"review_id": comment.ReviewID, "comment_id": comment.ID, "reaction_type": reactionType},
	}
}

func CircleRequest(target uint, actor *models.User, requestID uint) Event {
	return Event{
		Type:        TypeCircleRequest,
		RecipientID: target,
		ActorID:     actor.ID,
		Title:       "New circle request",
		Content:     fmt.Sprintf("%s wants to add you to their circle.", actor.DisplayName()),
		EntityType:  "circle_request",
		EntityID:    requestID,
		Priority:    models.PriorityNormal,
		Data:        map[string]interface{}{"request_id": requestID, "requester_id": actor.ID},
	}
}

func CircleAccepted(requester uint, actor *models.User, requestID uint) Event {
	return Event{
		Type:        TypeCircleAccepted,
		RecipientID: requester,
		ActorID:     actor.ID,
		Title:       "Circle request accepted",
		Content:     fmt.Sprintf("%s accepted your circle request.", actor.DisplayName()),
		EntityType:  "circle_request",
		EntityID:    requestID,
		Priority:    models.PriorityNormal,
		Data:        map[string]interface{}{"request_id": requestID, "user_id": actor.ID},
	}
}

func CircleDeclined(requester uint, actor *models.User, requestID uint) Event {
	return Event{
		Type:        TypeCircleDeclined,
		RecipientID: requester,
		ActorID:     actor.ID,
		Title:       "Circle request declined",
		Content:     fmt.Sprintf("%s declined your circle request.", actor.DisplayName()),
		EntityType:  "circle_request",
		EntityID:    requestID,
		Priority:    models.PriorityLow,
		Data:        map[string]interface{}{"request_id": requestID},
	}
}

func EntityClaimed(owner uint, entity *models.Entity) Event {
	return Event{
		Type:        TypeEntityClaimed,
		RecipientID: owner,
		Title:       fmt.Sprintf("You claimed %s", entity.Name),
		Content:     "Your claim was recorded. Reviews on this entity will now be sent to you.",
		EntityType:  "entity",
		EntityID:    entity.ID,
		Priority:    models.PriorityNormal,
		Data:        map[string]interface{}{"entity_id": entity.ID},
	}
}

func EntityVerified(owner uint, entity *models.Entity) Event {
	return Event{
		Type:        TypeEntityVerified,
		RecipientID: owner,
		Title:       fmt.Sprintf("%s is verified", entity.Name),
		Content:     "An administrator verified your entity.",
		EntityType:  "entity",
		EntityID:    entity.ID,
		Priority:    models.PriorityHigh,
		Data:        map[string]interface{}{"entity_id": entity.ID},
	}
}

// Gamification triggers. Scoring happens elsewhere; these only notify.

func BadgeEarned(user uint, badge string) Event {
	return Event{
		Type:        TypeBadgeEarned,
		RecipientID: user,
		Title:       "Badge earned",
		Content:     fmt.Sprintf("You earned the %s badge.", badge),
		Priority:    models.PriorityNormal,
		Data:        map[string]interface{}{"badge": badge},
	}
}

func LevelUp(user uint, level int) Event {
	return Event{
		Type:        TypeLevelUp,
		RecipientID: user,
		Title:       "Level up",
		Content:     fmt.Sprintf("You reached level %d.", level),
		Priority:    models.PriorityHigh,
		Data:        map[string]interface{}{"level": level},
	}
}

func MilestoneReached(user uint, milestone string) Event {
	return Event{
		Type:        TypeMilestoneReached,
		RecipientID: user,
		Title:       "Milestone reached",
		Content:     milestone,
		Priority:    models.PriorityNormal,
		Data:        map[string]interface{}{"milestone": milestone},
	}
}

func DailyTaskComplete(user uint, task string, points int) Event {
	return Event{
		Type:        TypeDailyTaskComplete,
		RecipientID: user,
		Title:       "Daily task complete",
		Content:     fmt.Sprintf("%s (+%d points)", task, points),
		Priority:    models.PriorityNormal,
		Data:        map[string]interface{}{"task": task, "points": points},
	}
}

func actorName(u *models.User, anonymous bool) string {
	if anonymous {
		return "Someone"
	}
	return u.DisplayName()
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
