package discovery

import (
	"time"

	"payops/internal/models"

	"github.com/shopspring/decimal"
)

// RejectReason tags why a vendor transaction cannot be settled. Reasons are
// data embedded per candidate, never errors: discovery always produces output
// so an operator can see partial results.
type RejectReason string

const (
	RejectNone                RejectReason = ""
	RejectTransactionNotFound RejectReason = "TRANSACTION_NOT_FOUND"
	RejectAlreadySettled      RejectReason = "ALREADY_SETTLED"
	RejectDeviceNotFound      RejectReason = "DEVICE_NOT_FOUND"
	RejectWrongMerchant       RejectReason = "WRONG_MERCHANT"
	RejectWrongProduct        RejectReason = "WRONG_PRODUCT"
	RejectNoPricingScheme     RejectReason = "NO_PRICING_SCHEME"
	RejectSchemeExpired       RejectReason = "SCHEME_EXPIRED"
	RejectNoCardRate          RejectReason = "NO_CARD_RATE"
	RejectNoRateConfigured    RejectReason = "NO_RATE_CONFIGURED"
)

// Candidate is one classified vendor transaction. OK candidates carry the
// computed fee and net; rejected ones carry the reason instead.
type Candidate struct {
	VendorTxKey string
	Transaction *models.VendorTransaction
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	NetAmount   decimal.Decimal
	Reject      RejectReason
}

// OK reports whether the candidate is settleable.
func (c *Candidate) OK() bool {
	return c.Reject == RejectNone
}

// Window is the resolved settlement time window.
type Window struct {
	From time.Time
	To   time.Time
}
