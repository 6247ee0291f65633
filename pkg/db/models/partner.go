package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Partner is a prepaid B2B account that purchases against a credit balance
// and optionally receives order lifecycle webhooks.
type Partner struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string          `gorm:"column:name;not null"`
	APIKey        string          `gorm:"column:api_key;uniqueIndex;not null"`
	CreditBalance decimal.Decimal `gorm:"column:credit_balance;type:numeric(18,6);not null;default:0"`
	WebhookURL    *string         `gorm:"column:webhook_url"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
