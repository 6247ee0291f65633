package products

import (
	"github.com/shopspring/decimal"

	"github.com/safetrade/safetrade-backend/pkg/enums"
)

// Pricing is value based rather than cost-plus: the provider's wholesale cost
// is assumed to be ~37% of US retail, end users pay 55% of retail (a 45%
// saving), and partners get a further 10% off the user price.
var (
	retailCostRatio = decimal.RequireFromString("0.37")
	userRetailShare = decimal.RequireFromString("0.55")
	partnerDiscount = decimal.RequireFromString("0.90")
	hundred         = decimal.NewFromInt(100)
)

// Breakdown is the full pricing picture for one product at one provider cost.
type Breakdown struct {
	ProviderCost   decimal.Decimal `json:"provider_cost"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	UserPrice      decimal.Decimal `json:"user_price"`
	PartnerPrice   decimal.Decimal `json:"partner_price"`
	Fee            decimal.Decimal `json:"fee"`
	MarginPercent  decimal.Decimal `json:"margin_percent"`
	UserSavings    decimal.Decimal `json:"user_savings"`
	SavingsPercent decimal.Decimal `json:"savings_percent"`
}

// ComputeBreakdown derives channel prices from the provider's wholesale cost.
func ComputeBreakdown(providerCost decimal.Decimal) Breakdown {
	retail := providerCost.Div(retailCostRatio)
	userPrice := retail.Mul(userRetailShare)
	partnerPrice := userPrice.Mul(partnerDiscount)

	fee := partnerPrice.Sub(providerCost)
	marginPercent := decimal.Zero
	if partnerPrice.IsPositive() {
		marginPercent = fee.Div(partnerPrice).Mul(hundred)
	}

	return Breakdown{
		ProviderCost:   providerCost.Round(2),
		RetailPrice:    retail.Round(2),
		UserPrice:      userPrice.Round(2),
		PartnerPrice:   partnerPrice.Round(2),
		Fee:            fee.Round(2),
		MarginPercent:  marginPercent.Round(1),
		UserSavings:    retail.Sub(userPrice).Round(2),
		SavingsPercent: decimal.NewFromInt(45),
	}
}

// PriceForChannel picks the catalog price a payer type is charged.
func PriceForChannel(b2bPrice, b2cPrice decimal.Decimal, payer enums.PayerType) decimal.Decimal {
	if payer == enums.PayerTypePartner {
		return b2bPrice
	}
	return b2cPrice
}
