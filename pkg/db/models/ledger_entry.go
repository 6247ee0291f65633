package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safetrade/safetrade-backend/pkg/enums"
)

// LedgerEntry is the append-only audit record for a single balance mutation.
// BalanceBefore/BalanceAfter are captured inside the same transaction as the
// guarded balance update, so the trail is sufficient to reconcile any account.
type LedgerEntry struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountType   enums.LedgerAccountType `gorm:"column:account_type;not null"`
	AccountID     uuid.UUID               `gorm:"column:account_id;type:uuid;not null;index"`
	OrderID       *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	Type          enums.LedgerEntryType   `gorm:"column:type;not null"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:numeric(18,6);not null"`
	BalanceBefore decimal.Decimal         `gorm:"column:balance_before;type:numeric(18,6);not null"`
	BalanceAfter  decimal.Decimal         `gorm:"column:balance_after;type:numeric(18,6);not null"`
	Reason        string                  `gorm:"column:reason;not null"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}
