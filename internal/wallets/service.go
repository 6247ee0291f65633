package wallets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/ledger"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
	"github.com/safetrade/safetrade-backend/pkg/logger"
)

// Service manages user wallets. Wallets are created lazily on first use and
// every balance movement goes through the ledger for an audit trail.
type Service interface {
	// FindOrCreate returns the user's wallet, creating an empty one if needed.
	FindOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// Deposit credits spendable balance via the ledger.
	Deposit(ctx context.Context, userID uuid.UUID, input DepositInput) (*models.Wallet, error)
	// Withdraw debits spendable balance via the ledger, failing when the
	// balance does not cover the amount.
	Withdraw(ctx context.Context, userID uuid.UUID, input WithdrawInput) (*models.Wallet, error)
	// Transactions returns the wallet's ledger history, newest first.
	Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error)
	// LockFunds moves spendable balance into the locked bucket.
	LockFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
	// ReleaseFunds moves locked balance back into the spendable bucket.
	ReleaseFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
}

// DepositInput carries a wallet top-up.
type DepositInput struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"omitempty,max=255"`
}

// WithdrawInput carries a wallet withdrawal.
type WithdrawInput struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"omitempty,max=255"`
}

type service struct {
	repo   Repository
	ledger ledger.Service
	logg   *logger.Logger
}

// NewService wires the wallets service.
func NewService(repo Repository, ledgerSvc ledger.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallets repository required")
	}
	if ledgerSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, ledger: ledgerSvc, logg: logg}, nil
}

func (s *service) FindOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find wallet")
	}

	wallet = &models.Wallet{
		ID:            uuid.New(),
		UserID:        userID,
		Balance:       decimal.Zero,
		LockedBalance: decimal.Zero,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "wallet created")
	return wallet, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find wallet")
	}
	return wallet, nil
}

func (s *service) Deposit(ctx context.Context, userID uuid.UUID, input DepositInput) (*models.Wallet, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit amount must be positive")
	}

	wallet, err := s.FindOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	reason := input.Reason
	if reason == "" {
		reason = "wallet deposit"
	}
	if _, err := s.ledger.Credit(ctx, ledger.MutationInput{
		Account: ledger.Account{Type: enums.LedgerAccountTypeWallet, ID: wallet.ID},
		Amount:  input.Amount,
		Reason:  reason,
	}); err != nil {
		return nil, err
	}

	return s.repo.FindByID(ctx, wallet.ID)
}

func (s *service) Withdraw(ctx context.Context, userID uuid.UUID, input WithdrawInput) (*models.Wallet, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}

	wallet, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	reason := input.Reason
	if reason == "" {
		reason = "wallet withdrawal"
	}
	if _, err := s.ledger.Debit(ctx, ledger.MutationInput{
		Account: ledger.Account{Type: enums.LedgerAccountTypeWallet, ID: wallet.ID},
		Amount:  input.Amount,
		Reason:  reason,
	}); err != nil {
		return nil, err
	}

	return s.repo.FindByID(ctx, wallet.ID)
}

func (s *service) Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	wallet, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListByAccount(ctx, ledger.Account{
		Type: enums.LedgerAccountTypeWallet,
		ID:   wallet.ID,
	}, limit)
}

func (s *service) LockFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "lock amount must be positive")
	}
	wallet, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	affected, err := s.repo.MoveToLocked(ctx, wallet.ID, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet funds")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "balance does not cover lock amount")
	}
	return nil
}

func (s *service) ReleaseFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "release amount must be positive")
	}
	wallet, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	affected, err := s.repo.ReleaseLocked(ctx, wallet.ID, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release wallet funds")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "locked balance does not cover release amount")
	}
	return nil
}
