package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VendorTransaction is a raw card transaction reported by the processing
// vendor. Settled transitions false -> true exactly once, atomically with the
// merchant's ledger posting.
type VendorTransaction struct {
	ID                uint   `gorm:"primarykey"`
	ExternalRef       string `gorm:"uniqueIndex;not null"`
	MID               string `gorm:"column:mid;index"`
	TID               string `gorm:"column:tid;index"`
	CardBrand         string
	CardType          string
	Amount            decimal.Decimal `gorm:"type:numeric(18,2)"`
	Currency          string          `gorm:"default:'USD'"`
	TransactionDate   time.Time       `gorm:"index"`
	Settled           bool            `gorm:"index;default:false"`
	SettledAt         *time.Time
	SettlementBatchID *uint `gorm:"index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
