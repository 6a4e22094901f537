// Package viewtracking ingests review and entity views. It applies the
// cooldown and fraud policies, stores view records, moves the view counters
// in the same transaction and feeds the analytics rollups.
package viewtracking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/engagement"
	"github.com/anonto42/reviewinn/backend/internal/metrics"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

const (
	ReasonTracked     = "tracked"
	ReasonRateLimited = "rate_limited"
	ReasonSuspicious  = "suspicious_activity"
)

// Policy holds the cooldown and fraud thresholds. Review and entity
// surfaces share DefaultPolicy unless a caller overrides it.
type Policy struct {
	AnonymousCooldown time.Duration
	UserCooldown      time.Duration
	MicroCooldown     time.Duration
	SessionTimeout    time.Duration
	FraudWindow       time.Duration
	// MaxIPViews is the number of views one IP may produce across all
	// content inside FraudWindow.
	MaxIPViews int64
	// MaxContentViews is the number of views one user may produce on one
	// content item inside FraudWindow.
	MaxContentViews int64
	// Retention is how long a tracked view counts toward view_count.
	// Expired rows are left in place and dropped by the counter predicate
	// on the next repair.
	Retention time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		AnonymousCooldown: time.Hour,
		UserCooldown:      24 * time.Hour,
		MicroCooldown:     30 * time.Second,
		SessionTimeout:    4 * time.Hour,
		FraudWindow:       5 * time.Minute,
		MaxIPViews:        10,
		MaxContentViews:   3,
		Retention:         90 * 24 * time.Hour,
	}
}

// Request is one view attempt.
type Request struct {
	ContentType string
	ContentID   uint
	UserID      *uint
	IPAddress   string
	UserAgent   string
}

// Result is returned to the client.
type Result struct {
	Tracked         bool   `json:"tracked"`
	Reason          string `json:"reason"`
	ViewCount       int64  `json:"view_count"`
	IsUniqueUser    *bool  `json:"is_unique_user,omitempty"`
	IsUniqueSession *bool  `json:"is_unique_session,omitempty"`
}

type Service struct {
	tx        *repositories.TxManager
	views     repositories.ViewRepository
	reviews   repositories.ReviewRepository
	entities  repositories.EntityRepository
	counters  engagement.Applier
	analytics repositories.AnalyticsRepository
	policy    Policy
	now       func() time.Time
	log       zerolog.Logger
}

// NewService wires the tracker. analytics may be nil when MongoDB is not
// configured.
func NewService(
	tx *repositories.TxManager,
	views repositories.ViewRepository,
	reviews repositories.ReviewRepository,
	entities repositories.EntityRepository,
	counters engagement.Applier,
	analytics repositories.AnalyticsRepository,
	policy Policy,
) *Service {
	return &Service{
		tx:        tx,
		views:     views,
		reviews:   reviews,
		entities:  entities,
		counters:  counters,
		analytics: analytics,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.With("viewtracking"),
	}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SessionID derives a pseudo-session from client address, user agent and
// the current hour.
func SessionID(ip, userAgent string, at time.Time) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent + "|" + at.UTC().Truncate(time.Hour).Format(time.RFC3339)))
	return hex.EncodeToString(sum[:16])
}

// viewCount reads the stored counter of the content item.
func (s *Service) viewCount(ctx context.Context, contentType string, id uint) (int64, error) {
	if contentType == models.ContentReview {
		r, err := s.reviews.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		return r.ViewCount, nil
	}
	e, err := s.entities.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return e.ViewCount, nil
}

func (s *Service) refuse(ctx context.Context, req Request, reason string) (*Result, error) {
	metrics.Views.WithLabelValues(req.ContentType, reason).Inc()
	count, err := s.viewCount(ctx, req.ContentType, req.ContentID)
	if err != nil {
		return nil, err
	}
	return &Result{Tracked: false, Reason: reason, ViewCount: count}, nil
}

// Track applies the policy to req and records the view when allowed.
func (s *Service) Track(ctx context.Context, req Request) (*Result, error) {
	if req.ContentType != models.ContentReview && req.ContentType != models.ContentEntity {
		return nil, domain.NewValidationError("content_type", "must be one of: review entity")
	}
	if _, err := s.viewCount(ctx, req.ContentType, req.ContentID); err != nil {
		return nil, err
	}
	req.IPAddress = strings.TrimSpace(req.IPAddress)
	if req.IPAddress == "" {
		req.IPAddress = "unknown"
	}

	now := s.now()
	session := SessionID(req.IPAddress, req.UserAgent, now)
	expires := now.Add(s.policy.Retention)
	rec := &models.ViewRecord{
		ContentID: req.ContentID,
		UserID:    req.UserID,
		IPAddress: req.IPAddress,
		UserAgent: truncate(req.UserAgent, 500),
		SessionID: session,
		ViewedAt:  now,
		ExpiresAt: &expires,
		IsValid:   true,
	}

	if req.UserID == nil {
		recent, err := s.views.Count(ctx, repositories.ViewQuery{
			ContentType: req.ContentType, ContentID: req.ContentID,
			IPAddress: req.IPAddress, SessionID: session, Since: now.Add(-s.policy.AnonymousCooldown),
		})
		if err != nil {
			return nil, fmt.Errorf("anonymous cooldown: %w", err)
		}
		if recent > 0 {
			return s.refuse(ctx, req, ReasonRateLimited)
		}
		rec.IsUniqueUser = false
		rec.IsUniqueSession = true
		return s.record(ctx, req, rec)
	}

	reason, err := s.checkUser(ctx, req, now)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return s.refuse(ctx, req, reason)
	}

	prior, err := s.views.Count(ctx, repositories.ViewQuery{
		ContentType: req.ContentType, ContentID: req.ContentID, UserID: req.UserID, OnlyValid: true,
	})
	if err != nil {
		return nil, err
	}
	inSession, err := s.views.Count(ctx, repositories.ViewQuery{
		ContentType: req.ContentType, ContentID: req.ContentID, SessionID: session, Since: now.Add(-s.policy.SessionTimeout),
	})
	if err != nil {
		return nil, err
	}
	rec.IsUniqueUser = prior == 0
	rec.IsUniqueSession = inSession == 0
	return s.record(ctx, req, rec)
}

// checkUser runs the fraud guard and the cooldowns for an authenticated
// viewer and returns a refusal reason, or "" when the view may be recorded.
func (s *Service) checkUser(ctx context.Context, req Request, now time.Time) (string, error) {
	windowStart := now.Add(-s.policy.FraudWindow)

	fromIP, err := s.views.CountByIP(ctx, req.IPAddress, windowStart)
	if err != nil {
		return "", fmt.Errorf("fraud guard: %w", err)
	}
	if fromIP > s.policy.MaxIPViews {
		s.log.Warn().Str("ip", req.IPAddress).Int64("views", fromIP).Msg("view burst from ip, invalidating recent views")
		if err := s.invalidateBurst(ctx, req.IPAddress, windowStart); err != nil {
			s.log.Error().Err(err).Str("ip", req.IPAddress).Msg("invalidate burst views")
		}
		return ReasonSuspicious, nil
	}

	q := repositories.ViewQuery{ContentType: req.ContentType, ContentID: req.ContentID, UserID: req.UserID, Since: windowStart}
	sameContent, err := s.views.Count(ctx, q)
	if err != nil {
		return "", fmt.Errorf("fraud guard: %w", err)
	}
	if sameContent > s.policy.MaxContentViews {
		s.log.Warn().Uint("user_id", *req.UserID).Uint("content_id", req.ContentID).Msg("repeated views of one item")
		return ReasonSuspicious, nil
	}

	for _, window := range []time.Duration{s.policy.MicroCooldown, s.policy.UserCooldown} {
		q.Since = now.Add(-window)
		n, err := s.views.Count(ctx, q)
		if err != nil {
			return "", fmt.Errorf("view cooldown: %w", err)
		}
		if n > 0 {
			return ReasonRateLimited, nil
		}
	}
	return "", nil
}

// record inserts rec and bumps the counter in one transaction, then feeds
// the analytics rollup.
func (s *Service) record(ctx context.Context, req Request, rec *models.ViewRecord) (*Result, error) {
	var count int64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.views.Insert(ctx, req.ContentType, rec); err != nil {
			return err
		}
		ev := engagement.Event{Kind: engagement.ViewRecorded, ContentType: req.ContentType}
		if req.ContentType == models.ContentReview {
			ev.ReviewID = req.ContentID
		} else {
			ev.EntityID = req.ContentID
		}
		if err := s.counters.Apply(ctx, ev); err != nil {
			return err
		}
		var err error
		count, err = s.viewCount(ctx, req.ContentType, req.ContentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record view: %w", err)
	}
	metrics.Views.WithLabelValues(req.ContentType, ReasonTracked).Inc()

	if s.analytics != nil {
		if err := s.analytics.RecordView(ctx, req.ContentType, req.ContentID, rec.ViewedAt, rec.IsUniqueUser); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("content_type", req.ContentType).Uint("content_id", req.ContentID).Msg("view analytics rollup failed")
		}
	}

	uniqueUser, uniqueSession := rec.IsUniqueUser, rec.IsUniqueSession
	return &Result{
		Tracked:         true,
		Reason:          ReasonTracked,
		ViewCount:       count,
		IsUniqueUser:    &uniqueUser,
		IsUniqueSession: &uniqueSession,
	}, nil
}

// invalidateBurst flips the recent views of ip to invalid and takes them
// back out of the counters.
func (s *Service) invalidateBurst(ctx context.Context, ip string, since time.Time) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		recent, err := s.views.RecentByIP(ctx, ip, since)
		if err != nil {
			return err
		}
		for contentType, rows := range recent {
			byContent := make(map[uint][]uint)
			for _, r := range rows {
				byContent[r.ContentID] = append(byContent[r.ContentID], r.ID)
			}
			for contentID, ids := range byContent {
				n, err := s.views.Invalidate(ctx, contentType, ids)
				if err != nil {
					return err
				}
				if n == 0 {
					continue
				}
				ev := engagement.Event{Kind: engagement.ViewInvalidated, ContentType: contentType, Count: n}
				if contentType == models.ContentReview {
					ev.ReviewID = contentID
				} else {
					ev.EntityID = contentID
				}
				if err := s.counters.Apply(ctx, ev); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
			}
		}
		return nil
	})
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
