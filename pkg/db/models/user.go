package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a wallet-funded end customer.
type User struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TelegramID int64     `gorm:"column:telegram_id;uniqueIndex;not null"`
	Username   *string   `gorm:"column:username"`
	FirstName  *string   `gorm:"column:first_name"`
	LastName   *string   `gorm:"column:last_name"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
