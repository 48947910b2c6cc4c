package ledger

import (
	"payops/internal/models"

	"github.com/shopspring/decimal"
)

// PostingRequest describes one credit to an owner's wallet. Net is the
// signed movement applied to the balance; Amount and Fee are recorded on the
// ledger entry for audit.
type PostingRequest struct {
	OwnerID     uint
	OwnerType   string
	VendorTxKey string
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Net         decimal.Decimal
	EntryType   string
	BatchID     *uint
	Actor       string
}

// PostingResult captures the posting outcome. AlreadyPosted means a ledger
// entry for (owner, key) existed and nothing was changed.
type PostingResult struct {
	Entry         *models.LedgerEntry
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	AlreadyPosted bool
}
