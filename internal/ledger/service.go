package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
	"github.com/safetrade/safetrade-backend/pkg/logger"
)

// ErrInsufficientFunds signals the balance guard rejected a debit.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Service is the single gateway for moving money. Every mutation is a guarded
// single-row update paired with an audit entry in the same transaction.
type Service interface {
	// Debit withdraws amount from the account, failing without side effects
	// when the balance does not cover it.
	Debit(ctx context.Context, input MutationInput) (*models.LedgerEntry, error)
	// Credit deposits amount into the account. Used for top-ups and for saga
	// compensation after a provider failure.
	Credit(ctx context.Context, input MutationInput) (*models.LedgerEntry, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	ListByAccount(ctx context.Context, account Account, limit int) ([]models.LedgerEntry, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MutationInput captures one balance movement and its audit context.
type MutationInput struct {
	Account Account
	Amount  decimal.Decimal
	Reason  string
	OrderID *uuid.UUID
}

type service struct {
	tx   txRunner
	repo Repository
	logg *logger.Logger
}

// NewService wires a ledger service with the provided transaction runner and
// repository.
func NewService(tx txRunner, repo Repository, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("ledger tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("ledger logger required")
	}
	return &service{tx: tx, repo: repo, logg: logg}, nil
}

func (in MutationInput) validate() error {
	if in.Account.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !in.Account.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid account type %q", in.Account.Type))
	}
	if !in.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if in.Reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	return nil
}

func (s *service) Debit(ctx context.Context, input MutationInput) (*models.LedgerEntry, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		after, err := repo.DebitBalance(ctx, input.Account, input.Amount)
		if err != nil {
			return err
		}
		entry = newEntry(input, enums.LedgerEntryTypeDebit, after.Add(input.Amount), after)
		return repo.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, s.translateErr(ctx, err, input, "debit")
	}

	s.logMutation(ctx, "ledger debit recorded", input, entry)
	return entry, nil
}

func (s *service) Credit(ctx context.Context, input MutationInput) (*models.LedgerEntry, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		after, err := repo.CreditBalance(ctx, input.Account, input.Amount)
		if err != nil {
			return err
		}
		entry = newEntry(input, enums.LedgerEntryTypeCredit, after.Sub(input.Amount), after)
		return repo.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, s.translateErr(ctx, err, input, "credit")
	}

	s.logMutation(ctx, "ledger credit recorded", input, entry)
	return entry, nil
}

func (s *service) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

func (s *service) ListByAccount(ctx context.Context, account Account, limit int) ([]models.LedgerEntry, error) {
	if account.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	return s.repo.ListByAccount(ctx, account, limit)
}

func newEntry(input MutationInput, entryType enums.LedgerEntryType, before, after decimal.Decimal) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:            uuid.New(),
		AccountType:   input.Account.Type,
		AccountID:     input.Account.ID,
		OrderID:       input.OrderID,
		Type:          entryType,
		Amount:        input.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reason:        input.Reason,
	}
}

func (s *service) logMutation(ctx context.Context, msg string, input MutationInput, entry *models.LedgerEntry) {
	fields := map[string]any{
		"account_id":    input.Account.ID.String(),
		"account_type":  input.Account.Type,
		"amount":        input.Amount.String(),
		"balance_after": entry.BalanceAfter.String(),
		"reason":        input.Reason,
	}
	if input.OrderID != nil {
		fields["order_id"] = input.OrderID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *service) translateErr(ctx context.Context, err error, input MutationInput, op string) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return pkgerrors.Wrap(pkgerrors.CodeInsufficientFunds, err,
			fmt.Sprintf("balance does not cover %s of %s", op, input.Amount.String()))
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "account not found")
	default:
		logCtx := s.logg.WithField(ctx, "account_id", input.Account.ID.String())
		s.logg.Error(logCtx, fmt.Sprintf("ledger %s failed", op), err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("ledger %s failed", op))
	}
}
