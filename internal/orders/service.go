package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/ledger"
	"github.com/safetrade/safetrade-backend/internal/products"
	"github.com/safetrade/safetrade-backend/internal/provider"
	"github.com/safetrade/safetrade-backend/internal/webhooks"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
	"github.com/safetrade/safetrade-backend/pkg/logger"
	"github.com/safetrade/safetrade-backend/pkg/pagination"
)

type ledgerService interface {
	Debit(ctx context.Context, input ledger.MutationInput) (*models.LedgerEntry, error)
	Credit(ctx context.Context, input ledger.MutationInput) (*models.LedgerEntry, error)
}

type partnerDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
}

type walletDirectory interface {
	FindOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

type productCatalog interface {
	GetActiveBySKU(ctx context.Context, sku string) (*models.Product, error)
}

type webhookEnqueuer interface {
	Enqueue(ctx context.Context, input webhooks.EnqueueInput) (*models.WebhookDelivery, error)
}

// Payer is the single resolved funding source for an order.
type Payer struct {
	Type enums.PayerType
	ID   uuid.UUID
}

// payerContext carries everything the saga needs about the payer after the
// one-time resolution at entry.
type payerContext struct {
	payer     Payer
	account   ledger.Account
	available decimal.Decimal
	partnerID *uuid.UUID
	userID    *uuid.UUID
}

// CreateOrderInput identifies the payer and the requested product. Exactly
// one of PartnerID/UserID must be set.
type CreateOrderInput struct {
	PartnerID *uuid.UUID `json:"partner_id"`
	UserID    *uuid.UUID `json:"user_id"`
	SKU       string     `json:"sku" validate:"required"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
}

// ListInput filters order listings.
type ListInput struct {
	PartnerID *uuid.UUID
	UserID    *uuid.UUID
	Status    *enums.OrderStatus
	Limit     int
	Cursor    string
}

// Service runs the order fulfillment workflow: reserve funds, purchase from
// the provider, finalize, and compensate the ledger when the purchase fails.
type Service interface {
	// Create runs the full fulfillment workflow. When the provider call
	// fails, the already-compensated FAILED order is returned together with
	// the provider error.
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	// Refund credits the payer the paid amount. Only COMPLETED orders
	// qualify.
	Refund(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, input ListInput) ([]models.Order, string, error)
}

type service struct {
	repo     Repository
	ledger   ledgerService
	partners partnerDirectory
	wallets  walletDirectory
	catalog  productCatalog
	provider provider.Client
	webhooks webhookEnqueuer
	logg     *logger.Logger
	now      func() time.Time
}

// ServiceParams wires the saga's collaborators.
type ServiceParams struct {
	Repository Repository
	Ledger     ledgerService
	Partners   partnerDirectory
	Wallets    walletDirectory
	Catalog    productCatalog
	Provider   provider.Client
	Webhooks   webhookEnqueuer
	Logger     *logger.Logger
}

// NewService validates and wires the order saga.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, errors.New("order repository is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if params.Partners == nil {
		return nil, errors.New("partner directory is required")
	}
	if params.Wallets == nil {
		return nil, errors.New("wallet directory is required")
	}
	if params.Catalog == nil {
		return nil, errors.New("product catalog is required")
	}
	if params.Provider == nil {
		return nil, errors.New("provider client is required")
	}
	if params.Webhooks == nil {
		return nil, errors.New("webhook enqueuer is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		repo:     params.Repository,
		ledger:   params.Ledger,
		partners: params.Partners,
		wallets:  params.Wallets,
		catalog:  params.Catalog,
		provider: params.Provider,
		webhooks: params.Webhooks,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	payer, err := s.resolvePayer(ctx, input)
	if err != nil {
		return nil, err
	}

	product, err := s.catalog.GetActiveBySKU(ctx, input.SKU)
	if err != nil {
		return nil, err
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	quantity := decimal.NewFromInt(int64(input.Quantity))
	unitPrice := products.PriceForChannel(product.B2BPrice, product.B2CPrice, payer.payer.Type)
	total := unitPrice.Mul(quantity)
	cost := product.ProviderCost.Mul(quantity)

	// Early rejection only. The debit below re-checks atomically.
	if payer.available.LessThan(total) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds,
			fmt.Sprintf("balance %s is below order total %s", payer.available.StringFixed(2), total.StringFixed(2)))
	}

	orderID := uuid.New()
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	if _, err := s.ledger.Debit(ctx, ledger.MutationInput{
		Account: payer.account,
		Amount:  total,
		Reason:  fmt.Sprintf("order %s: purchase %dx %s", orderID, input.Quantity, product.SKU),
		OrderID: &orderID,
	}); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          orderID,
		PartnerID:   payer.partnerID,
		UserID:      payer.userID,
		ProductSKU:  product.SKU,
		ProductName: product.Name,
		Quantity:    input.Quantity,
		FaceValue:   unitPrice,
		PaidAmount:  total,
		CostAmount:  cost,
		Status:      enums.OrderStatusPending,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		// Funds are reserved but no order row exists. Return them before
		// surfacing the error so the ledger stays consistent.
		s.compensate(ctx, payer.account, total, orderID, fmt.Sprintf("order %s: compensation after create failure", orderID))
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	if _, err := s.repo.MarkProcessing(ctx, order.ID); err != nil {
		s.logg.Error(ctx, "mark order processing", err)
	}
	order.Status = enums.OrderStatusProcessing

	result, purchaseErr := s.provider.Purchase(ctx, product.SKU, input.Quantity)
	if purchaseErr != nil {
		return s.failOrder(ctx, order, payer, total, purchaseErr)
	}

	deliveredAt := s.now().UTC()
	if _, err := s.repo.Complete(ctx, order.ID, result.GiftCardCode, result.OrderID, deliveredAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete order")
	}
	order.Status = enums.OrderStatusCompleted
	order.GiftCardCode = &result.GiftCardCode
	order.ExternalOrderID = &result.OrderID
	order.DeliveredAt = &deliveredAt

	s.enqueueEvent(ctx, order, enums.WebhookEventOrderCompleted)
	s.logg.Info(ctx, "order completed")
	return order, nil
}

// failOrder marks the order FAILED, returns the reserved funds, and surfaces
// the provider failure. The FAILED status is written before the compensating
// credit so the audit trail always explains the credit.
func (s *service) failOrder(ctx context.Context, order *models.Order, payer *payerContext, total decimal.Decimal, cause error) (*models.Order, error) {
	reason := cause.Error()
	if _, err := s.repo.Fail(ctx, order.ID, reason); err != nil {
		s.logg.Error(ctx, "mark order failed", err)
	}
	order.Status = enums.OrderStatusFailed
	order.FailureReason = &reason

	s.compensate(ctx, payer.account, total, order.ID, fmt.Sprintf("order %s: compensation after provider failure", order.ID))
	s.enqueueEvent(ctx, order, enums.WebhookEventOrderFailed)
	s.logg.Error(ctx, "order failed at provider", cause)

	return order, pkgerrors.Wrap(pkgerrors.CodeProvider, cause, "order failed")
}

func (s *service) compensate(ctx context.Context, account ledger.Account, amount decimal.Decimal, orderID uuid.UUID, reason string) {
	if _, err := s.ledger.Credit(ctx, ledger.MutationInput{
		Account: account,
		Amount:  amount,
		Reason:  reason,
		OrderID: &orderID,
	}); err != nil {
		// The reserved amount is stranded. The ledger entry from the debit
		// carries enough detail for manual reconciliation.
		s.logg.Error(ctx, "compensating credit failed, manual reconciliation required", err)
	}
}

func (s *service) Refund(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be refunded", order.Status))
	}

	account, err := s.accountFor(ctx, order)
	if err != nil {
		return nil, err
	}

	moved, err := s.repo.MarkRefunded(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order refunded")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was refunded concurrently")
	}
	order.Status = enums.OrderStatusRefunded

	if _, err := s.ledger.Credit(ctx, ledger.MutationInput{
		Account: account,
		Amount:  order.PaidAmount,
		Reason:  fmt.Sprintf("order %s: refund", order.ID),
		OrderID: &order.ID,
	}); err != nil {
		return nil, err
	}

	s.enqueueEvent(ctx, order, enums.WebhookEventOrderRefunded)
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order refunded")
	return order, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.Order, string, error) {
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	orders, next, err := s.repo.List(ctx, listOrdersParams{
		PartnerID: input.PartnerID,
		UserID:    input.UserID,
		Status:    input.Status,
		Limit:     input.Limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	nextCursor := ""
	if next != nil {
		nextCursor = next.Encode()
	}
	return orders, nextCursor, nil
}

// resolvePayer performs the one-time payer dispatch: exactly one reference,
// an existing and usable account, and the current available balance.
func (s *service) resolvePayer(ctx context.Context, input CreateOrderInput) (*payerContext, error) {
	switch {
	case input.PartnerID != nil && input.UserID != nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must reference exactly one payer")
	case input.PartnerID != nil:
		partner, err := s.partners.GetByID(ctx, *input.PartnerID)
		if err != nil {
			return nil, err
		}
		if !partner.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner is not active")
		}
		return &payerContext{
			payer:     Payer{Type: enums.PayerTypePartner, ID: partner.ID},
			account:   ledger.Account{Type: enums.LedgerAccountTypePartner, ID: partner.ID},
			available: partner.CreditBalance,
			partnerID: &partner.ID,
		}, nil
	case input.UserID != nil:
		wallet, err := s.wallets.FindOrCreate(ctx, *input.UserID)
		if err != nil {
			return nil, err
		}
		return &payerContext{
			payer:     Payer{Type: enums.PayerTypeUser, ID: wallet.UserID},
			account:   ledger.Account{Type: enums.LedgerAccountTypeWallet, ID: wallet.ID},
			available: wallet.Balance,
			userID:    &wallet.UserID,
		}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must reference a partner or a user")
	}
}

// accountFor rebuilds the ledger account from a persisted order's payer
// reference, for refunds.
func (s *service) accountFor(ctx context.Context, order *models.Order) (ledger.Account, error) {
	if order.PartnerID != nil {
		return ledger.Account{Type: enums.LedgerAccountTypePartner, ID: *order.PartnerID}, nil
	}
	if order.UserID == nil {
		return ledger.Account{}, pkgerrors.New(pkgerrors.CodeInternal, "order has no payer reference")
	}
	wallet, err := s.wallets.FindOrCreate(ctx, *order.UserID)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{Type: enums.LedgerAccountTypeWallet, ID: wallet.ID}, nil
}

// enqueueEvent notifies the paying partner about a terminal order state.
// Delivery problems never surface to the order caller.
func (s *service) enqueueEvent(ctx context.Context, order *models.Order, event enums.WebhookEventType) {
	if order.PartnerID == nil {
		return
	}
	if _, err := s.webhooks.Enqueue(ctx, webhooks.EnqueueInput{
		PartnerID: *order.PartnerID,
		OrderID:   order.ID,
		EventType: event,
		Data:      orderEventData(order),
	}); err != nil {
		s.logg.Error(ctx, "enqueue order webhook", err)
	}
}

// orderEventData is the payload snapshot partners receive. Later order
// mutations do not alter an already-enqueued payload.
func orderEventData(order *models.Order) map[string]any {
	data := map[string]any{
		"orderId":    order.ID.String(),
		"status":     order.Status.String(),
		"sku":        order.ProductSKU,
		"quantity":   order.Quantity,
		"paidAmount": order.PaidAmount.StringFixed(2),
	}
	if order.GiftCardCode != nil {
		data["giftCardCode"] = *order.GiftCardCode
	}
	if order.ExternalOrderID != nil {
		data["externalOrderId"] = *order.ExternalOrderID
	}
	if order.FailureReason != nil {
		data["reason"] = *order.FailureReason
	}
	return data
}
