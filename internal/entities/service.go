// Package entities manages reviewable subjects: creation under a leaf
// category, listing, ownership claims and admin verification.
package entities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/category"
	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/notification"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// ErrAlreadyClaimed is returned when another user owns the entity.
var ErrAlreadyClaimed = fmt.Errorf("entity already claimed: %w", domain.ErrConflict)

type categoryReader interface {
	Get(ctx context.Context, id uint, withChildren, withAncestors bool) (*category.Node, error)
}

type Service struct {
	tx         *repositories.TxManager
	repo       repositories.EntityRepository
	categories categoryReader
	notify     notification.Publisher
	now        func() time.Time
	log        zerolog.Logger
}

func NewService(tx *repositories.TxManager, repo repositories.EntityRepository, categories categoryReader, notify notification.Publisher) *Service {
	if notify == nil {
		notify = notification.Discard
	}
	return &Service{
		tx:         tx,
		repo:       repo,
		categories: categories,
		notify:     notify,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logging.With("entities"),
	}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create stores a new entity under the given final category. The root
// category snapshot is the level-1 ancestor of that category.
func (s *Service) Create(ctx context.Context, userID uint, req models.CreateEntityRequest) (*models.Entity, error) {
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		return nil, domain.NewValidationError("name", "must be at least 2")
	}
	node, err := s.categories.Get(ctx, req.FinalCategoryID, false, true)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewValidationError("final_category_id", "unknown category")
	}
	if err != nil {
		return nil, err
	}

	final := node.Category.Snapshot()
	root := final
	if len(node.Ancestors) > 0 {
		a := node.Ancestors[0]
		root = models.CategorySnapshot{CategoryID: a.ID, Name: a.Name, Slug: a.Slug, Level: a.Level}
	}

	uid := userID
	e := &models.Entity{
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		AvatarURL:       req.AvatarURL,
		Website:         req.Website,
		RootCategory:    root,
		FinalCategory:   final,
		IsActive:        true,
		CreatedByUserID: &uid,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		slug, err := s.uniqueSlug(ctx, name)
		if err != nil {
			return err
		}
		e.Slug = slug
		return s.repo.Create(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("entity_id", e.ID).Str("slug", e.Slug).Uint("user_id", userID).Msg("entity created")
	return e, nil
}

func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := category.Slugify(name)
	if base == "" {
		base = "entity"
	}
	slug := base
	for i := 2; i <= 20; i++ {
		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Entity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f repositories.EntityFilter) ([]models.Entity, int64, error) {
	f.Page = f.Page.Normalize(20, 100)
	return s.repo.List(ctx, f)
}

// Claim records userID as the owner. Claiming an entity one already owns is
// a no-op.
func (s *Service) Claim(ctx context.Context, id, userID uint) (*models.Entity, error) {
	var e *models.Entity
	var fresh bool
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		if e.IsClaimed && e.ClaimedBy != nil {
			if *e.ClaimedBy == userID {
				return nil
			}
			return ErrAlreadyClaimed
		}
		now := s.now()
		if err := s.repo.UpdateFields(ctx, id, map[string]interface{}{
			"is_claimed": true, "claimed_by": userID, "claimed_at": now,
		}); err != nil {
			return err
		}
		uid := userID
		e.IsClaimed, e.ClaimedBy, e.ClaimedAt = true, &uid, &now
		fresh = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if fresh {
		s.notify.Publish(ctx, notification.EntityClaimed(userID, e))
		s.log.Info().Uint("entity_id", id).Uint("user_id", userID).Msg("entity claimed")
	}
	return e, nil
}

// Verify marks the entity verified and tells the owner, if any.
func (s *Service) Verify(ctx context.Context, id uint) (*models.Entity, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.IsVerified {
		return e, nil
	}
	if err := s.repo.UpdateFields(ctx, id, map[string]interface{}{"is_verified": true}); err != nil {
		return nil, err
	}
	e.IsVerified = true
	if e.ClaimedBy != nil {
		s.notify.Publish(ctx, notification.EntityVerified(*e.ClaimedBy, e))
	}
	return e, nil
}
