package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/safetrade/safetrade-backend/pkg/enums"
)

// WebhookDelivery is one at-least-once notification owed to a partner.
// Payload is an immutable snapshot taken at enqueue time; later order
// mutations never alter it. NextAttemptAt persists the retry schedule so
// pending deliveries survive a process restart.
type WebhookDelivery struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PartnerID     uuid.UUID              `gorm:"column:partner_id;type:uuid;not null;index"`
	OrderID       uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	EventType     enums.WebhookEventType `gorm:"column:event_type;not null"`
	Payload       json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	Status        enums.DeliveryStatus   `gorm:"column:status;not null;default:'pending';index:idx_webhook_deliveries_due"`
	Attempts      int                    `gorm:"column:attempts;not null;default:0"`
	NextAttemptAt *time.Time             `gorm:"column:next_attempt_at;index:idx_webhook_deliveries_due"`
	LastAttemptAt *time.Time             `gorm:"column:last_attempt_at"`
	LastError     *string                `gorm:"column:last_error"`
	DeliveredAt   *time.Time             `gorm:"column:delivered_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
