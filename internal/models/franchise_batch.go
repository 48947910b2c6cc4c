package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Franchise batch merchant slot statuses
const (
	FranchiseMerchantSelected   = "SELECTED"
	FranchiseMerchantProcessing = "PROCESSING"
	FranchiseMerchantCompleted  = "COMPLETED"
	FranchiseMerchantFailed     = "FAILED"
)

// FranchiseBatch is a settlement run spanning many merchants of one
// franchise. Its totals are a pure aggregation of the per-merchant results
// and are never edited directly.
type FranchiseBatch struct {
	ID             uint            `gorm:"primarykey"`
	Reference      string          `gorm:"uniqueIndex;not null"`
	FranchiseID    uint            `gorm:"index;not null"`
	CycleKey       string          `gorm:"not null"`
	Status         string          `gorm:"index;default:'DRAFT'"`
	MerchantCount  int             `gorm:"default:0"`
	GrossAmount    decimal.Decimal `gorm:"type:numeric(18,2)"`
	TotalFees      decimal.Decimal `gorm:"type:numeric(18,2)"`
	NetAmount      decimal.Decimal `gorm:"type:numeric(18,2)"`
	ProcessedCount int             `gorm:"default:0"`
	FailedCount    int             `gorm:"default:0"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FranchiseBatchMerchant is one merchant's slot inside a franchise batch.
type FranchiseBatchMerchant struct {
	ID                uint   `gorm:"primarykey"`
	FranchiseBatchID  uint   `gorm:"index;not null"`
	MerchantID        uint   `gorm:"index;not null"`
	SettlementBatchID *uint  `gorm:"index"`
	Status            string `gorm:"default:'SELECTED'"`
	ProcessedCount    int    `gorm:"default:0"`
	FailedCount       int    `gorm:"default:0"`
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
