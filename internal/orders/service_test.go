package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/ledger"
	"github.com/safetrade/safetrade-backend/internal/provider"
	"github.com/safetrade/safetrade-backend/internal/webhooks"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
	"github.com/safetrade/safetrade-backend/pkg/logger"
	"github.com/safetrade/safetrade-backend/pkg/pagination"
)

type fakeRepository struct {
	orders map[uuid.UUID]*models.Order
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, order *models.Order) error {
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeRepository) transition(id uuid.UUID, from, to enums.OrderStatus, mutate func(*models.Order)) (bool, error) {
	order, ok := f.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	if mutate != nil {
		mutate(order)
	}
	return true, nil
}

func (f *fakeRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.transition(id, enums.OrderStatusPending, enums.OrderStatusProcessing, nil)
}

func (f *fakeRepository) Complete(ctx context.Context, id uuid.UUID, code, externalOrderID string, deliveredAt time.Time) (bool, error) {
	return f.transition(id, enums.OrderStatusProcessing, enums.OrderStatusCompleted, func(o *models.Order) {
		o.GiftCardCode = &code
		o.ExternalOrderID = &externalOrderID
		o.DeliveredAt = &deliveredAt
	})
}

func (f *fakeRepository) Fail(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return f.transition(id, enums.OrderStatusProcessing, enums.OrderStatusFailed, func(o *models.Order) {
		o.FailureReason = &reason
	})
}

func (f *fakeRepository) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.transition(id, enums.OrderStatusCompleted, enums.OrderStatusRefunded, nil)
}

func (f *fakeRepository) List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

// fakeLedger mutates an in-memory balance with the same guard as the real
// accessor.
type fakeLedger struct {
	balance decimal.Decimal
	entries []ledger.MutationInput
}

func (f *fakeLedger) Debit(ctx context.Context, input ledger.MutationInput) (*models.LedgerEntry, error) {
	if f.balance.LessThan(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds")
	}
	f.balance = f.balance.Sub(input.Amount)
	f.entries = append(f.entries, input)
	return &models.LedgerEntry{BalanceAfter: f.balance}, nil
}

func (f *fakeLedger) Credit(ctx context.Context, input ledger.MutationInput) (*models.LedgerEntry, error) {
	f.balance = f.balance.Add(input.Amount)
	f.entries = append(f.entries, input)
	return &models.LedgerEntry{BalanceAfter: f.balance}, nil
}

type fakePartnerDirectory struct {
	partner *models.Partner
}

func (f *fakePartnerDirectory) GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	if f.partner == nil || f.partner.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "partner not found")
	}
	return f.partner, nil
}

type fakeWalletDirectory struct {
	wallet *models.Wallet
}

func (f *fakeWalletDirectory) FindOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if f.wallet != nil && f.wallet.UserID == userID {
		return f.wallet, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected wallet lookup")
}

type fakeCatalog struct {
	product *models.Product
}

func (f *fakeCatalog) GetActiveBySKU(ctx context.Context, sku string) (*models.Product, error) {
	if f.product == nil || f.product.SKU != sku {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return f.product, nil
}

type fakeProvider struct {
	purchaseFn func(ctx context.Context, sku string, quantity int) (*provider.PurchaseResult, error)
	calls      int
}

func (f *fakeProvider) Purchase(ctx context.Context, sku string, quantity int) (*provider.PurchaseResult, error) {
	f.calls++
	if f.purchaseFn != nil {
		return f.purchaseFn(ctx, sku, quantity)
	}
	return &provider.PurchaseResult{
		OrderID:      "BF-" + uuid.NewString(),
		ProductSKU:   sku,
		Quantity:     quantity,
		GiftCardCode: "AAAA-BBBB-CCCC-DDDD",
		Status:       "COMPLETED",
	}, nil
}

type fakeEnqueuer struct {
	events []webhooks.EnqueueInput
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, input webhooks.EnqueueInput) (*models.WebhookDelivery, error) {
	f.events = append(f.events, input)
	return &models.WebhookDelivery{ID: uuid.New()}, nil
}

type sagaFixture struct {
	svc      Service
	repo     *fakeRepository
	ledger   *fakeLedger
	provider *fakeProvider
	webhooks *fakeEnqueuer
	partner  *models.Partner
	product  *models.Product
}

func newSagaFixture(t *testing.T, balance string) *sagaFixture {
	t.Helper()

	partner := &models.Partner{
		ID:            uuid.New(),
		Name:          "Acme Resale",
		CreditBalance: decimal.RequireFromString(balance),
		IsActive:      true,
	}
	product := &models.Product{
		ID:           uuid.New(),
		SKU:          "amazon-50-us",
		Name:         "Amazon $50 (US)",
		ProviderCost: decimal.RequireFromString("14.80"),
		B2CPrice:     decimal.RequireFromString("22.00"),
		B2BPrice:     decimal.RequireFromString("20.00"),
		IsActive:     true,
	}

	repo := newFakeRepository()
	ledgerSvc := &fakeLedger{balance: partner.CreditBalance}
	providerClient := &fakeProvider{}
	enqueuer := &fakeEnqueuer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(ServiceParams{
		Repository: repo,
		Ledger:     ledgerSvc,
		Partners:   &fakePartnerDirectory{partner: partner},
		Wallets:    &fakeWalletDirectory{},
		Catalog:    &fakeCatalog{product: product},
		Provider:   providerClient,
		Webhooks:   enqueuer,
		Logger:     logg,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return &sagaFixture{
		svc:      svc,
		repo:     repo,
		ledger:   ledgerSvc,
		provider: providerClient,
		webhooks: enqueuer,
		partner:  partner,
		product:  product,
	}
}

func TestCreate_PartnerOrderSucceeds(t *testing.T) {
	f := newSagaFixture(t, "100.00")

	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		PartnerID: &f.partner.ID,
		SKU:       f.product.SKU,
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.Status != enums.OrderStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", order.Status)
	}
	if order.GiftCardCode == nil || *order.GiftCardCode == "" {
		t.Fatal("expected a gift card code")
	}
	if !order.PaidAmount.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("paid amount = %s, want 40.00", order.PaidAmount)
	}
	if !f.ledger.balance.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("balance = %s, want 60.00", f.ledger.balance)
	}

	if len(f.webhooks.events) != 1 {
		t.Fatalf("enqueued %d webhooks, want 1", len(f.webhooks.events))
	}
	if f.webhooks.events[0].EventType != enums.WebhookEventOrderCompleted {
		t.Fatalf("event = %s, want order.completed", f.webhooks.events[0].EventType)
	}
}

func TestCreate_InsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newSagaFixture(t, "30.00")

	_, err := f.svc.Create(context.Background(), CreateOrderInput{
		PartnerID: &f.partner.ID,
		SKU:       f.product.SKU,
		Quantity:  2,
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	if len(f.repo.orders) != 0 {
		t.Fatal("no order row may exist after a funds rejection")
	}
	if !f.ledger.balance.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("balance = %s, want unchanged 30.00", f.ledger.balance)
	}
	if f.provider.calls != 0 {
		t.Fatal("provider must not be called without reserved funds")
	}
	if len(f.webhooks.events) != 0 {
		t.Fatal("no webhook may be enqueued for a rejected order")
	}
}

func TestCreate_ProviderFailureCompensates(t *testing.T) {
	f := newSagaFixture(t, "100.00")
	f.provider.purchaseFn = func(ctx context.Context, sku string, quantity int) (*provider.PurchaseResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "provider timeout")
	}

	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		PartnerID: &f.partner.ID,
		SKU:       f.product.SKU,
		Quantity:  2,
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if order == nil {
		t.Fatal("expected the failed order to be returned alongside the error")
	}
	if order.Status != enums.OrderStatusFailed {
		t.Fatalf("status = %s, want FAILED", order.Status)
	}
	if order.FailureReason == nil {
		t.Fatal("expected a recorded failure reason")
	}

	if !f.ledger.balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("balance = %s, want restored 100.00", f.ledger.balance)
	}
	if len(f.webhooks.events) != 1 || f.webhooks.events[0].EventType != enums.WebhookEventOrderFailed {
		t.Fatalf("expected one order.failed webhook, got %+v", f.webhooks.events)
	}
	if f.provider.calls != 1 {
		t.Fatalf("provider called %d times, want exactly 1", f.provider.calls)
	}
}

func TestCreate_RejectsAmbiguousPayer(t *testing.T) {
	f := newSagaFixture(t, "100.00")
	userID := uuid.New()

	tests := []struct {
		name  string
		input CreateOrderInput
	}{
		{name: "both payers", input: CreateOrderInput{PartnerID: &f.partner.ID, UserID: &userID, SKU: f.product.SKU, Quantity: 1}},
		{name: "no payer", input: CreateOrderInput{SKU: f.product.SKU, Quantity: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.input)
			if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreate_RejectsInactivePartner(t *testing.T) {
	f := newSagaFixture(t, "100.00")
	f.partner.IsActive = false

	_, err := f.svc.Create(context.Background(), CreateOrderInput{
		PartnerID: &f.partner.ID,
		SKU:       f.product.SKU,
		Quantity:  1,
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreate_WalletFundedOrderSkipsWebhooks(t *testing.T) {
	f := newSagaFixture(t, "0.00")
	userID := uuid.New()
	wallet := &models.Wallet{
		ID:      uuid.New(),
		UserID:  userID,
		Balance: decimal.RequireFromString("50.00"),
	}

	svc, err := NewService(ServiceParams{
		Repository: f.repo,
		Ledger:     &fakeLedger{balance: wallet.Balance},
		Partners:   &fakePartnerDirectory{},
		Wallets:    &fakeWalletDirectory{wallet: wallet},
		Catalog:    &fakeCatalog{product: f.product},
		Provider:   f.provider,
		Webhooks:   f.webhooks,
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	order, err := svc.Create(context.Background(), CreateOrderInput{
		UserID:   &userID,
		SKU:      f.product.SKU,
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.PartnerID != nil {
		t.Fatal("wallet-funded order must not carry a partner reference")
	}
	if !order.PaidAmount.Equal(decimal.RequireFromString("22.00")) {
		t.Fatalf("paid amount = %s, want b2c 22.00", order.PaidAmount)
	}
	if len(f.webhooks.events) != 0 {
		t.Fatal("wallet-funded orders produce no partner webhooks")
	}
}

func TestRefund_OnlyFromCompleted(t *testing.T) {
	f := newSagaFixture(t, "100.00")

	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		PartnerID: &f.partner.ID,
		SKU:       f.product.SKU,
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	refunded, err := f.svc.Refund(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refunded.Status != enums.OrderStatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", refunded.Status)
	}
	if !f.ledger.balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("balance = %s, want restored 100.00", f.ledger.balance)
	}

	if _, err := f.svc.Refund(context.Background(), order.ID); pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("second refund should conflict, got %v", err)
	}

	events := f.webhooks.events
	if len(events) != 2 || events[1].EventType != enums.WebhookEventOrderRefunded {
		t.Fatalf("expected order.refunded webhook, got %+v", events)
	}
}

func TestRefund_UnknownOrder(t *testing.T) {
	f := newSagaFixture(t, "100.00")
	_, err := f.svc.Refund(context.Background(), uuid.New())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetByID_UnknownOrder(t *testing.T) {
	f := newSagaFixture(t, "100.00")
	_, err := f.svc.GetByID(context.Background(), uuid.New())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
