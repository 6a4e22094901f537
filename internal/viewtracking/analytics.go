package viewtracking

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// Analytics summarizes the views of one content item.
type Analytics struct {
	ContentType string     `json:"content_type"`
	ContentID   uint       `json:"content_id"`
	ViewCount   int64      `json:"view_count"`
	ValidViews  int64      `json:"valid_views"`
	UniqueUsers int64      `json:"unique_users"`
	LastViewAt  *time.Time `json:"last_view_at,omitempty"`
	Today       int64      `json:"views_today"`
	Week        int64      `json:"views_week"`
	Month       int64      `json:"views_month"`
}

// Viewer identifies who asks for analytics.
type Viewer struct {
	UserID  uint
	IsAdmin bool
}

// ReviewAnalytics is visible to the review author, the owner of the reviewed
// entity and admins.
func (s *Service) ReviewAnalytics(ctx context.Context, reviewID uint, v Viewer) (*Analytics, error) {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	allowed := v.IsAdmin || review.UserID == v.UserID
	if !allowed {
		entity, err := s.entities.GetByID(ctx, review.EntityID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			allowed = entity.ClaimedBy != nil && *entity.ClaimedBy == v.UserID
		}
	}
	if !allowed {
		return nil, domain.ErrForbidden
	}
	return s.collect(ctx, models.ContentReview, reviewID, review.ViewCount)
}

// EntityAnalytics is visible to the entity owner and admins.
func (s *Service) EntityAnalytics(ctx context.Context, entityID uint, v Viewer) (*Analytics, error) {
	entity, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if !v.IsAdmin && (entity.ClaimedBy == nil || *entity.ClaimedBy != v.UserID) {
		return nil, domain.ErrForbidden
	}
	return s.collect(ctx, models.ContentEntity, entityID, entity.ViewCount)
}

func (s *Service) collect(ctx context.Context, contentType string, id uint, stored int64) (*Analytics, error) {
	now := s.now()
	a := &Analytics{ContentType: contentType, ContentID: id, ViewCount: stored}

	var err error
	if a.ValidViews, err = s.views.CountValid(ctx, contentType, id, now); err != nil {
		return nil, err
	}
	if a.UniqueUsers, err = s.views.UniqueUsers(ctx, contentType, id); err != nil {
		return nil, err
	}
	if a.LastViewAt, err = s.views.LastViewAt(ctx, contentType, id); err != nil {
		return nil, err
	}

	if s.analytics == nil {
		return a, nil
	}
	rollup, err := s.analytics.Get(ctx, contentType, id)
	if errors.Is(err, domain.ErrNotFound) {
		return a, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("content_type", contentType).Uint("content_id", id).Msg("analytics rollup unavailable")
		return a, nil
	}
	a.Today = rollup.Window(now, 1)
	a.Week = rollup.Window(now, 7)
	a.Month = rollup.Window(now, 30)
	return a, nil
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
