package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/metrics"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// DropdownLimit caps the tray.
const DropdownLimit = 20

// DefaultExpiry derives expires_at from priority.
func DefaultExpiry(priority string, from time.Time) time.Time {
	switch priority {
	case models.PriorityCritical, models.PriorityUrgent:
		return from.Add(7 * 24 * time.Hour)
	case models.PriorityHigh:
		return from.Add(14 * 24 * time.Hour)
	default:
		return from.Add(30 * 24 * time.Hour)
	}
}

func validPriority(p string) bool {
	switch p {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent, models.PriorityCritical:
		return true
	}
	return false
}

// Pusher delivers a persisted notification to the recipient's open
// connections and reports whether any connection accepted it.
type Pusher interface {
	PushNotification(userID uint, n *models.Notification) bool
}

type userLister interface {
	ActiveUserIDs(ctx context.Context) ([]uint, error)
}

type Service struct {
	repo  repositories.NotificationRepository
	users userLister
	now   func() time.Time
	log   zerolog.Logger

	mu     sync.RWMutex
	pusher Pusher
}

func NewService(repo repositories.NotificationRepository, users userLister) *Service {
	return &Service{
		repo:  repo,
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logging.With("notification"),
	}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SetPusher attaches the realtime hub once it exists.
func (s *Service) SetPusher(p Pusher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pusher = p
}

func (s *Service) getPusher() Pusher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pusher
}

// Create persists ev and pushes it to the recipient when online. Events
// where the actor is the recipient are dropped and return nil, nil.
func (s *Service) Create(ctx context.Context, ev Event) (*models.Notification, error) {
	if ev.RecipientID == 0 {
		return nil, domain.NewValidationError("recipient_id", "is required")
	}
	if ev.selfInflicted() {
		return nil, nil
	}
	n, err := s.build(ev.RecipientID, ev)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()

	batch := []models.Notification{*n}
	s.deliver(ctx, batch)
	*n = batch[0]
	return n, nil
}

func (s *Service) build(recipient uint, ev Event) (*models.Notification, error) {
	if ev.Type == "" || ev.Title == "" {
		return nil, domain.NewValidationError("type", "type and title are required")
	}
	priority := ev.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !validPriority(priority) {
		return nil, domain.NewValidationError("priority", "must be one of: low normal high urgent critical")
	}

	now := s.now()
	expires := DefaultExpiry(priority, now)
	if ev.ExpiresAt != nil {
		expires = ev.ExpiresAt.UTC()
	}
	n := &models.Notification{
		UserID:           recipient,
		Type:             ev.Type,
		Title:            ev.Title,
		Content:          ev.Content,
		EntityType:       ev.EntityType,
		Priority:         priority,
		DeliveryStatus:   models.DeliveryPending,
		NotificationData: ev.Data,
		ExpiresAt:        &expires,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if ev.ActorID != 0 {
		actor := ev.ActorID
		n.ActorID = &actor
	}
	if ev.EntityID != 0 {
		id := ev.EntityID
		n.EntityID = &id
	}
	return n, nil
}

// deliver pushes each notification and flips the accepted ones to delivered.
func (s *Service) deliver(ctx context.Context, ns []models.Notification) {
	p := s.getPusher()
	if p == nil {
		return
	}
	var ids []uint
	for i := range ns {
		n := &ns[i]
		n.DeliveryStatus = models.DeliveryDelivered
		if !p.PushNotification(n.UserID, n) {
			n.DeliveryStatus = models.DeliveryPending
			continue
		}
		ids = append(ids, n.ID)
	}
	if len(ids) == 0 {
		return
	}
	if _, err := s.repo.MarkDelivered(ctx, ids); err != nil {
		s.log.Warn().Err(err).Int("count", len(ids)).Msg("mark notifications delivered")
		return
	}
	metrics.NotificationsDelivered.Add(float64(len(ids)))
}

// Dropdown is the tray payload.
type Dropdown struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
	UrgentCount   int64                 `json:"urgent_count"`
	HasMore       bool                  `json:"has_more"`
}

func (s *Service) Dropdown(ctx context.Context, userID uint) (*Dropdown, error) {
	now := s.now()
	items, more, err := s.repo.Dropdown(ctx, userID, now, DropdownLimit)
	if err != nil {
		return nil, fmt.Errorf("dropdown: %w", err)
	}
	unread, urgent, err := s.repo.UnreadCounts(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("dropdown counts: %w", err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &Dropdown{Notifications: items, UnreadCount: unread, UrgentCount: urgent, HasMore: more}, nil
}

// Summary is the badge payload.
type Summary struct {
	UnreadCount int64 `json:"unread_count"`
	UrgentCount int64 `json:"urgent_count"`
}

func (s *Service) Summary(ctx context.Context, userID uint) (*Summary, error) {
	unread, urgent, err := s.repo.UnreadCounts(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	return &Summary{UnreadCount: unread, UrgentCount: urgent}, nil
}

func (s *Service) List(ctx context.Context, userID uint, f repositories.NotificationFilter, p repositories.Page) ([]models.Notification, int64, error) {
	return s.repo.List(ctx, userID, f, s.now(), p.Normalize(20, 100))
}

func (s *Service) Stats(ctx context.Context, userID uint) (*repositories.NotificationCounts, error) {
	return s.repo.Stats(ctx, userID, s.now())
}

// updateFields turns an is_read / delivery_status patch into column updates.
func (s *Service) updateFields(isRead *bool, status *string) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if status != nil {
		switch *status {
		case models.DeliveryPending, models.DeliveryDelivered, models.DeliveryRead, models.DeliveryFailed, models.DeliveryExpired:
			fields["delivery_status"] = *status
		default:
			return nil, domain.NewValidationError("delivery_status", "must be one of: pending delivered read failed expired")
		}
		if *status == models.DeliveryRead && isRead == nil {
			t := true
			isRead = &t
		}
	}
	if isRead != nil {
		fields["is_read"] = *isRead
		if *isRead {
			fields["read_at"] = s.now()
			if status == nil {
				fields["delivery_status"] = models.DeliveryRead
			}
		} else {
			fields["read_at"] = nil
		}
	}
	if len(fields) == 0 {
		return nil, domain.NewValidationError("body", "nothing to update")
	}
	return fields, nil
}

// owned loads a notification and hides rows of other users behind ErrNotFound.
func (s *Service) owned(ctx context.Context, userID, id uint) (*models.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return n, nil
}

func (s *Service) Update(ctx context.Context, userID, id uint, req models.UpdateNotificationRequest) (*models.Notification, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	fields, err := s.updateFields(req.IsRead, req.DeliveryStatus)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateOwned(ctx, userID, []uint{id}, fields); err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	read := true
	return s.Update(ctx, userID, id, models.UpdateNotificationRequest{IsRead: &read})
}

func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID, s.now())
}

// BulkUpdate applies the patch to the listed notifications the user owns;
// foreign ids are skipped silently.
func (s *Service) BulkUpdate(ctx context.Context, userID uint, req models.BulkUpdateNotificationsRequest) (int64, error) {
	if len(req.IDs) == 0 {
		return 0, domain.NewValidationError("notification_ids", "is required")
	}
	fields, err := s.updateFields(req.IsRead, req.DeliveryStatus)
	if err != nil {
		return 0, err
	}
	return s.repo.UpdateOwned(ctx, userID, req.IDs, fields)
}

func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// CleanupExpired flags rows past expires_at. Safe to run repeatedly.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired notifications: %w", err)
	}
	if n > 0 {
		metrics.NotificationsExpired.Add(float64(n))
		s.log.Info().Int64("expired", n).Msg("expired notifications")
	}
	return n, nil
}

// Broadcast creates one notification per recipient: the listed users, or
// every active user when the list is empty.
func (s *Service) Broadcast(ctx context.Context, actorID uint, req models.BroadcastRequest) (int, error) {
	recipients := req.UserIDs
	if len(recipients) == 0 {
		ids, err := s.users.ActiveUserIDs(ctx)
		if err != nil {
			return 0, fmt.Errorf("broadcast recipients: %w", err)
		}
		recipients = ids
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	ev := Event{
		Type:      req.Type,
		ActorID:   actorID,
		Title:     req.Title,
		Content:   req.Content,
		Priority:  req.Priority,
		Data:      req.Data,
		ExpiresAt: req.ExpiresAt,
	}
	batch := make([]models.Notification, 0, len(recipients))
	seen := make(map[uint]bool, len(recipients))
	for _, id := range recipients {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		n, err := s.build(id, ev)
		if err != nil {
			return 0, err
		}
		batch = append(batch, *n)
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("broadcast: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(ev.Type).Add(float64(len(batch)))
	s.deliver(ctx, batch)
	s.log.Info().Int("recipients", len(batch)).Str("type", ev.Type).Msg("broadcast sent")
	return len(batch), nil
}
