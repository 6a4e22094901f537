// Package social maintains follows and circle membership together with the
// follower, following and friend counters on users.
package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/notification"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

var (
	ErrAlreadyFollowing = fmt.Errorf("already following this user: %w", domain.ErrConflict)
	ErrRequestPending   = fmt.Errorf("a circle request is already pending: %w", domain.ErrConflict)
	ErrAlreadyInCircle  = fmt.Errorf("already in circle: %w", domain.ErrConflict)
	ErrRequestAnswered  = fmt.Errorf("circle request already answered: %w", domain.ErrConflict)
)

type Service struct {
	tx      *repositories.TxManager
	follows repositories.FollowRepository
	circles repositories.CircleRepository
	users   repositories.UserRepository
	notify  notification.Publisher
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(
	tx *repositories.TxManager,
	follows repositories.FollowRepository,
	circles repositories.CircleRepository,
	users repositories.UserRepository,
	notify notification.Publisher,
) *Service {
	if notify == nil {
		notify = notification.Discard
	}
	return &Service{
		tx:      tx,
		follows: follows,
		circles: circles,
		users:   users,
		notify:  notify,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logging.With("social"),
	}
}

func (s *Service) Follow(ctx context.Context, followerID, targetID uint) error {
	if followerID == targetID {
		return domain.NewValidationError("id", "cannot follow yourself")
	}
	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		following, err := s.follows.IsFollowing(ctx, followerID, targetID)
		if err != nil {
			return err
		}
		if following {
			return ErrAlreadyFollowing
		}
		if err := s.follows.CreateFollow(ctx, &models.Follow{FollowerID: followerID, FollowingID: targetID}); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return ErrAlreadyFollowing
			}
			return err
		}
		if err := s.users.AdjustCounter(ctx, followerID, "following_count", 1); err != nil {
			return err
		}
		return s.users.AdjustCounter(ctx, targetID, "follower_count", 1)
	})
}

func (s *Service) Unfollow(ctx context.Context, followerID, targetID uint) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.follows.DeleteFollow(ctx, followerID, targetID); err != nil {
			return err
		}
		if err := s.users.AdjustCounter(ctx, followerID, "following_count", -1); err != nil {
			return err
		}
		return s.users.AdjustCounter(ctx, targetID, "follower_count", -1)
	})
}

func (s *Service) IsFollowing(ctx context.Context, followerID, targetID uint) (bool, error) {
	return s.follows.IsFollowing(ctx, followerID, targetID)
}

func (s *Service) Followers(ctx context.Context, userID uint, p repositories.Page) ([]models.User, error) {
	return s.follows.GetFollowers(ctx, userID, p.Normalize(20, 100))
}

func (s *Service) Following(ctx context.Context, userID uint, p repositories.Page) ([]models.User, error) {
	return s.follows.GetFollowing(ctx, userID, p.Normalize(20, 100))
}

// SendCircleRequest asks receiver to join the sender's circle. A declined
// request may be retried.
func (s *Service) SendCircleRequest(ctx context.Context, senderID uint, in models.CreateCircleRequest) (*models.CircleRequest, error) {
	if senderID == in.ReceiverID {
		return nil, domain.NewValidationError("receiver_id", "cannot add yourself")
	}
	sender, err := s.users.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUserByID(ctx, in.ReceiverID); err != nil {
		return nil, err
	}

	req := &models.CircleRequest{SenderID: senderID, ReceiverID: in.ReceiverID, Status: models.CircleRequestPending, Message: in.Message}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		prev, err := s.circles.FindBetween(ctx, senderID, in.ReceiverID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return err
		case prev.Status == models.CircleRequestPending:
			return ErrRequestPending
		case prev.Status == models.CircleRequestAccepted:
			return ErrAlreadyInCircle
		}
		return s.circles.CreateRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	s.notify.Publish(ctx, notification.CircleRequest(in.ReceiverID, sender, req.ID))
	return req, nil
}

// RespondCircleRequest accepts or declines a pending request addressed to
// userID. Acceptance bumps both users' friend_count.
func (s *Service) RespondCircleRequest(ctx context.Context, userID, requestID uint, status string) (*models.CircleRequest, error) {
	if status != models.CircleRequestAccepted && status != models.CircleRequestDeclined {
		return nil, domain.NewValidationError("status", "must be one of: accepted declined")
	}
	actor, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var req *models.CircleRequest
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if req, err = s.circles.GetRequestByID(ctx, requestID); err != nil {
			return err
		}
		if req.ReceiverID != userID {
			return domain.ErrForbidden
		}
		if req.Status != models.CircleRequestPending {
			return ErrRequestAnswered
		}
		now := s.now()
		if err := s.circles.UpdateStatus(ctx, req.ID, map[string]interface{}{"status": status, "responded_at": now}); err != nil {
			return err
		}
		req.Status, req.RespondedAt = status, &now
		if status != models.CircleRequestAccepted {
			return nil
		}
		if err := s.users.AdjustCounter(ctx, req.SenderID, "friend_count", 1); err != nil {
			return err
		}
		return s.users.AdjustCounter(ctx, req.ReceiverID, "friend_count", 1)
	})
	if err != nil {
		return nil, err
	}

	if status == models.CircleRequestAccepted {
		s.notify.Publish(ctx, notification.CircleAccepted(req.SenderID, actor, req.ID))
	} else {
		s.notify.Publish(ctx, notification.CircleDeclined(req.SenderID, actor, req.ID))
	}
	s.log.Info().Uint("request_id", req.ID).Str("status", status).Msg("circle request answered")
	return req, nil
}

func (s *Service) PendingRequests(ctx context.Context, userID uint) ([]models.CircleRequest, error) {
	return s.circles.PendingFor(ctx, userID)
}

func (s *Service) Members(ctx context.Context, userID uint) ([]models.User, error) {
	return s.circles.Members(ctx, userID)
}
