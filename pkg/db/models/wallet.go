package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's spendable and locked balances. One wallet per user,
// created lazily on first use.
type Wallet struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;uniqueIndex;not null"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric(18,6);not null;default:0"`
	LockedBalance decimal.Decimal `gorm:"column:locked_balance;type:numeric(18,6);not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
