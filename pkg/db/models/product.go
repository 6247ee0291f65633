package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry with per-channel pricing. ProviderCost is what
// the fulfillment provider charges us; B2B/B2C prices are what payers pay.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU          string          `gorm:"column:sku;uniqueIndex;not null"`
	Name         string          `gorm:"column:name;not null"`
	Category     string          `gorm:"column:category;not null"`
	Region       string          `gorm:"column:region;not null;default:'global'"`
	ProviderCost decimal.Decimal `gorm:"column:provider_cost;type:numeric(10,2);not null"`
	B2CPrice     decimal.Decimal `gorm:"column:b2c_price;type:numeric(10,2);not null"`
	B2BPrice     decimal.Decimal `gorm:"column:b2b_price;type:numeric(10,2);not null"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
