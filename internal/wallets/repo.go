package wallets

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/repo"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
)

// Repository manages persistence for user wallets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wallet *models.Wallet) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// MoveToLocked shifts amount from balance into locked_balance when the
	// spendable balance covers it. Returns the rows affected.
	MoveToLocked(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error)
	// ReleaseLocked shifts amount back from locked_balance into balance when
	// the locked balance covers it. Returns the rows affected.
	ReleaseLocked(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a wallets repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.DB(ctx).Create(wallet).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.DB(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) MoveToLocked(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	res := r.DB(ctx).Exec(
		`UPDATE wallets
		 SET balance = balance - ?, locked_balance = locked_balance + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND balance >= ?`,
		amount, amount, id, amount,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) ReleaseLocked(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	res := r.DB(ctx).Exec(
		`UPDATE wallets
		 SET balance = balance + ?, locked_balance = locked_balance - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND locked_balance >= ?`,
		amount, amount, id, amount,
	)
	return res.RowsAffected, res.Error
}
