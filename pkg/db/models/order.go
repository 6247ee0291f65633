package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safetrade/safetrade-backend/pkg/enums"
)

// Order is one purchase attempt against the fulfillment provider. Exactly one
// of PartnerID/UserID is set (enforced by a table CHECK). The row is owned by
// a single saga run until it reaches a terminal status; after that the only
// permitted transition is COMPLETED to REFUNDED.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PartnerID       *uuid.UUID        `gorm:"column:partner_id;type:uuid;index"`
	UserID          *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	ProductSKU      string            `gorm:"column:product_sku;not null"`
	ProductName     string            `gorm:"column:product_name;not null"`
	Quantity        int               `gorm:"column:quantity;not null;default:1"`
	FaceValue       decimal.Decimal   `gorm:"column:face_value;type:numeric(10,2);not null"`
	PaidAmount      decimal.Decimal   `gorm:"column:paid_amount;type:numeric(18,6);not null"`
	CostAmount      decimal.Decimal   `gorm:"column:cost_amount;type:numeric(10,2);not null"`
	Status          enums.OrderStatus `gorm:"column:status;not null;default:'PENDING'"`
	GiftCardCode    *string           `gorm:"column:gift_card_code"`
	ExternalOrderID *string           `gorm:"column:external_order_id"`
	FailureReason   *string           `gorm:"column:failure_reason"`
	DeliveredAt     *time.Time        `gorm:"column:delivered_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// PayerType reports which ledger account funded the order.
func (o *Order) PayerType() enums.PayerType {
	if o.PartnerID != nil {
		return enums.PayerTypePartner
	}
	return enums.PayerTypeUser
}
