package rates

import (
	"log"

	"payops/internal/models"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Calculator computes transaction fees from resolved card rates.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// ComputeFee returns round_half_up(|amount| * ratePercent / 100, 2), clamped
// to [0, |amount|]. The clamp makes a misconfigured rate harmless rather
// than an error.
func (c *Calculator) ComputeFee(amount, ratePercent decimal.Decimal) decimal.Decimal {
	magnitude := amount.Abs()
	fee := magnitude.Mul(ratePercent).Div(oneHundred).Round(2)
	if fee.IsNegative() {
		return decimal.Zero
	}
	if fee.GreaterThan(magnitude) {
		return magnitude
	}
	return fee
}

// Split is the money breakdown for one settled transaction. For direct
// merchants FranchiseFee and Commission are zero and DualRate is false.
type Split struct {
	Fee          decimal.Decimal // merchant-facing fee
	Net          decimal.Decimal // amount - Fee, credited to the merchant
	FranchiseFee decimal.Decimal
	Commission   decimal.Decimal // Fee - FranchiseFee, credited to the franchise
	DualRate     bool
}

// ComputeSplit applies the card rate to the amount. Franchise merchants with
// both split rates configured get the dual-rate commission math; everyone
// else takes the single-rate path. A nil single rate on the fallback path is
// ErrRateNotConfigured.
func (c *Calculator) ComputeSplit(amount decimal.Decimal, rate *models.CardRate, franchiseMerchant bool) (*Split, error) {
	if franchiseMerchant && rate.HasDualRates() {
		merchantFee := c.ComputeFee(amount, *rate.MerchantRate)
		franchiseFee := c.ComputeFee(amount, *rate.FranchiseRate)
		commission := merchantFee.Sub(franchiseFee)
		if commission.IsNegative() {
			// Misconfiguration, not a rejection: the franchise rate
			// exceeds the merchant rate.
			log.Printf("rates: negative franchise commission %s for card %q (merchant rate %s < franchise rate %s)",
				commission, rate.CardName, rate.MerchantRate, rate.FranchiseRate)
		}
		return &Split{
			Fee:          merchantFee,
			Net:          amount.Sub(merchantFee),
			FranchiseFee: franchiseFee,
			Commission:   commission,
			DualRate:     true,
		}, nil
	}

	single := rate.SingleRate
	if single == nil {
		single = rate.MerchantRate
	}
	if single == nil {
		return nil, ErrRateNotConfigured
	}

	fee := c.ComputeFee(amount, *single)
	return &Split{
		Fee: fee,
		Net: amount.Sub(fee),
	}, nil
}
