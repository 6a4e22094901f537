package models

import "time"

const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityUrgent   = "urgent"
	PriorityCritical = "critical"

	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
	DeliveryFailed    = "failed"
	DeliveryExpired   = "expired"
)

// Notification is owned by its recipient (UserID).
type Notification struct {
	ID               uint                   `json:"id" gorm:"primaryKey"`
	UserID           uint                   `json:"user_id" gorm:"not null;index"`
	ActorID          *uint                  `json:"actor_id,omitempty" gorm:"index"`
	Type             string                 `json:"type" gorm:"size:50;not null;index"`
	Title            string                 `json:"title" gorm:"size:200;not null"`
	Content          string                 `json:"content" gorm:"type:text"`
	EntityType       string                 `json:"entity_type,omitempty" gorm:"size:30"`
	EntityID         *uint                  `json:"entity_id,omitempty"`
	Priority         string                 `json:"priority" gorm:"size:20;not null;index"`
	DeliveryStatus   string                 `json:"delivery_status" gorm:"size:20;not null;index"`
	IsRead           bool                   `json:"is_read" gorm:"not null;index"`
	ReadAt           *time.Time             `json:"read_at,omitempty"`
	NotificationData map[string]interface{} `json:"notification_data,omitempty" gorm:"serializer:json;type:text"`
	ExpiresAt        *time.Time             `json:"expires_at,omitempty" gorm:"index"`
	CreatedAt        time.Time              `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// IsUrgent reports whether the notification sorts into the urgent band.
func (n *Notification) IsUrgent() bool {
	return n.Priority == PriorityUrgent || n.Priority == PriorityCritical
}

// UpdateNotificationRequest defines the body of PATCH /enterprise-notifications/:id
type UpdateNotificationRequest struct {
	IsRead         *bool   `json:"is_read"`
	DeliveryStatus *string `json:"delivery_status" validate:"omitempty,oneof=pending delivered read failed expired"`
}

// BulkUpdateNotificationsRequest defines the body of PATCH /enterprise-notifications/bulk-update
type BulkUpdateNotificationsRequest struct {
	IDs            []uint  `json:"notification_ids" validate:"required,min=1,max=500"`
	IsRead         *bool   `json:"is_read"`
	DeliveryStatus *string `json:"delivery_status" validate:"omitempty,oneof=pending delivered read failed expired"`
}

// BroadcastRequest defines the body of POST /enterprise-notifications/broadcast
type BroadcastRequest struct {
	Type      string                 `json:"type" validate:"required,max=50"`
	Title     string                 `json:"title" validate:"required,max=200"`
	Content   string                 `json:"content" validate:"max=5000"`
	Priority  string                 `json:"priority" validate:"omitempty,oneof=low normal high urgent critical"`
	UserIDs   []uint                 `json:"user_ids"`
	Data      map[string]interface{} `json:"data"`
	ExpiresAt *time.Time             `json:"expires_at"`
}
