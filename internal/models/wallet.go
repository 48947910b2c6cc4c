package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet owner types
const (
	OwnerTypeMerchant  = "MERCHANT"
	OwnerTypeFranchise = "FRANCHISE"
)

// Ledger entry types
const (
	EntryTypeSettlement = "SETTLEMENT"
	EntryTypeCommission = "COMMISSION"
)

// Ledger entry statuses
const (
	EntryStatusSettled = "SETTLED"
)

// Wallet is the mutable balance root for one merchant or franchise. The
// balance only ever changes while the row is held under an exclusive lock,
// and the new value must equal the old value plus the signed movement.
type Wallet struct {
	ID                 uint            `gorm:"primarykey"`
	OwnerID            uint            `gorm:"not null;uniqueIndex:idx_wallet_owner"`
	OwnerType          string          `gorm:"not null;uniqueIndex:idx_wallet_owner"`
	AvailableBalance   decimal.Decimal `gorm:"type:numeric(18,2)"`
	LastMovementAmount decimal.Decimal `gorm:"type:numeric(18,2)"`
	LastMovementAt     *time.Time
	TotalCredited      decimal.Decimal `gorm:"type:numeric(18,2)"`
	TotalFees          decimal.Decimal `gorm:"type:numeric(18,2)"`
	EntryCount         int64           `gorm:"default:0"`
	Version            int64           `gorm:"default:0"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	// New wallets always start from zero, whatever the caller set.
	w.AvailableBalance = decimal.Zero
	w.TotalCredited = decimal.Zero
	w.TotalFees = decimal.Zero
	return nil
}

// LedgerEntry is the immutable record of one wallet posting. Its existence
// for (owner, vendor tx key) is the idempotency guard for settlement; rows
// are never updated or deleted.
type LedgerEntry struct {
	ID            uint            `gorm:"primarykey"`
	OwnerID       uint            `gorm:"not null;uniqueIndex:idx_ledger_owner_key"`
	OwnerType     string          `gorm:"not null;uniqueIndex:idx_ledger_owner_key"`
	VendorTxKey   string          `gorm:"not null;uniqueIndex:idx_ledger_owner_key"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2)"`
	Fee           decimal.Decimal `gorm:"type:numeric(18,2)"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(18,2)"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(18,2)"`
	Status        string          `gorm:"default:'SETTLED'"`
	EntryType     string          `gorm:"not null"`
	BatchID       *uint           `gorm:"index"`
	CreatedBy     string
	CreatedAt     time.Time
}
