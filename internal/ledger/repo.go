package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/repo"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
)

// Repository manages balance mutations and their append-only audit entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// DebitBalance subtracts amount from the account's balance only when the
	// balance covers it, returning the resulting balance. ErrInsufficientFunds
	// is returned when the guard rejects the update.
	DebitBalance(ctx context.Context, account Account, amount decimal.Decimal) (decimal.Decimal, error)
	// CreditBalance adds amount to the account's balance and returns the
	// resulting balance.
	CreditBalance(ctx context.Context, account Account, amount decimal.Decimal) (decimal.Decimal, error)
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	ListByAccount(ctx context.Context, account Account, limit int) ([]models.LedgerEntry, error)
}

// Account addresses one balance-bearing row: a partner's prepaid credit or a
// user wallet.
type Account struct {
	Type enums.LedgerAccountType
	ID   uuid.UUID
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func balanceColumn(account Account) (table, column string, err error) {
	switch account.Type {
	case enums.LedgerAccountTypePartner:
		return "partners", "credit_balance", nil
	case enums.LedgerAccountTypeWallet:
		return "wallets", "balance", nil
	default:
		return "", "", fmt.Errorf("unknown ledger account type %q", account.Type)
	}
}

func (r *repository) DebitBalance(ctx context.Context, account Account, amount decimal.Decimal) (decimal.Decimal, error) {
	table, column, err := balanceColumn(account)
	if err != nil {
		return decimal.Zero, err
	}

	// The balance guard lives in the WHERE clause so the check and the write
	// are one atomic statement. Never read-modify-write a balance.
	var row struct {
		Balance decimal.Decimal
	}
	query := fmt.Sprintf(
		"UPDATE %s SET %s = %s - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND %s >= ? RETURNING %s AS balance",
		table, column, column, column, column,
	)
	res := r.DB(ctx).Raw(query, amount, account.ID, amount).Scan(&row)
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		exists, err := r.accountExists(ctx, table, account.ID)
		if err != nil {
			return decimal.Zero, err
		}
		if !exists {
			return decimal.Zero, gorm.ErrRecordNotFound
		}
		return decimal.Zero, ErrInsufficientFunds
	}
	return row.Balance, nil
}

func (r *repository) CreditBalance(ctx context.Context, account Account, amount decimal.Decimal) (decimal.Decimal, error) {
	table, column, err := balanceColumn(account)
	if err != nil {
		return decimal.Zero, err
	}

	var row struct {
		Balance decimal.Decimal
	}
	query := fmt.Sprintf(
		"UPDATE %s SET %s = %s + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? RETURNING %s AS balance",
		table, column, column, column,
	)
	res := r.DB(ctx).Raw(query, amount, account.ID).Scan(&row)
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, gorm.ErrRecordNotFound
	}
	return row.Balance, nil
}

func (r *repository) accountExists(ctx context.Context, table string, id uuid.UUID) (bool, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE id = ?", table)
	if err := r.DB(ctx).Raw(query, id).Scan(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByAccount(ctx context.Context, account Account, limit int) ([]models.LedgerEntry, error) {
	q := r.DB(ctx).
		Where("account_type = ? AND account_id = ?", account.Type, account.ID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
