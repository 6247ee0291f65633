package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the gorm handle shared by the domain repositories.
type Base struct {
	conn *gorm.DB
}

// NewBase binds a Base to the provided gorm handle.
func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB returns the handle scoped to ctx so queries inherit deadlines and
// cancellation.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}

// Rebind returns a Base running on tx. A nil tx keeps the current handle,
// letting WithTx implementations pass through outside a transaction.
func (b Base) Rebind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{conn: tx}
}
