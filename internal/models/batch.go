package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement batch statuses
const (
	BatchStatusDraft              = "DRAFT"
	BatchStatusOpen               = "OPEN"
	BatchStatusProcessing         = "PROCESSING"
	BatchStatusCompleted          = "COMPLETED"
	BatchStatusPartiallyCompleted = "PARTIALLY_COMPLETED"
	BatchStatusFailed             = "FAILED"
	BatchStatusClosed             = "CLOSED"
)

// Candidate statuses
const (
	CandidateStatusSelected   = "SELECTED"
	CandidateStatusProcessing = "PROCESSING"
	CandidateStatusCompleted  = "COMPLETED"
	CandidateStatusFailed     = "FAILED"
	CandidateStatusRejected   = "REJECTED"
)

// Settlement cycle keys
const (
	CycleT0 = "T0"
	CycleT1 = "T1"
	CycleT2 = "T2"
)

// SettlementBatch is the unit of settlement work for one merchant in one
// cycle. Status moves forward only, except for the explicit resume reset.
type SettlementBatch struct {
	ID             uint   `gorm:"primarykey"`
	Reference      string `gorm:"uniqueIndex;not null"`
	MerchantID     uint   `gorm:"index;not null;uniqueIndex:idx_active_batch,where:product_id IS NOT NULL AND (status = 'DRAFT' OR status = 'OPEN' OR status = 'PROCESSING');uniqueIndex:idx_active_batch_nop,where:product_id IS NULL AND (status = 'DRAFT' OR status = 'OPEN' OR status = 'PROCESSING')"`
	ProductID      *uint  `gorm:"index;uniqueIndex:idx_active_batch"`
	CycleKey       string `gorm:"not null;uniqueIndex:idx_active_batch;uniqueIndex:idx_active_batch_nop"`
	WindowFrom     time.Time
	WindowTo       time.Time
	Status         string          `gorm:"index;default:'DRAFT'"`
	CandidateCount int             `gorm:"default:0"`
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

// IsModifiable reports whether candidates may still be replaced.
func (b *SettlementBatch) IsModifiable() bool {
	return b.Status == BatchStatusDraft || b.Status == BatchStatusOpen
}

// IsResumable reports whether the batch may be re-driven over its failed
// candidates.
func (b *SettlementBatch) IsResumable() bool {
	return b.Status == BatchStatusFailed || b.Status == BatchStatusPartiallyCompleted
}

// Progress returns processed+failed over total as a percentage.
func (b *SettlementBatch) Progress() float64 {
	if b.CandidateCount == 0 {
		return 100
	}
	return float64(b.ProcessedCount+b.FailedCount) / float64(b.CandidateCount) * 100
}

// SettlementCandidate is one vendor transaction proposed for a batch, with
// its computed money figures and per-candidate processing status.
type SettlementCandidate struct {
	ID            uint            `gorm:"primarykey"`
	BatchID       uint            `gorm:"index;not null"`
	VendorTxKey   string          `gorm:"index;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2)"`
	Fee           decimal.Decimal `gorm:"type:numeric(18,2)"`
	NetAmount     decimal.Decimal `gorm:"type:numeric(18,2)"`
	Status        string          `gorm:"index;default:'SELECTED'"`
	FailureReason string
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
