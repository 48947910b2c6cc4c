package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCardName is the fallback card rate row consulted when no rate
// matches the transaction's brand and type.
const DefaultCardName = "DEFAULT"

// SchemeAssignment is the pricing scheme active for a device's
// outward-distribution event.
type SchemeAssignment struct {
	ID             uint `gorm:"primarykey"`
	DistributionID uint `gorm:"index;not null"`
	SchemeID       uint `gorm:"index;not null"`
	EffectiveFrom  time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ActiveAt reports whether the assignment covers the given transaction date.
func (a *SchemeAssignment) ActiveAt(t time.Time) bool {
	if t.Before(a.EffectiveFrom) {
		return false
	}
	if a.ExpiresAt != nil && t.After(*a.ExpiresAt) {
		return false
	}
	return true
}

// CardRate holds the fee rate(s) for a card name within a scheme. SingleRate
// applies to direct merchants; MerchantRate/FranchiseRate, when both are set,
// drive the franchise commission split.
type CardRate struct {
	ID            uint             `gorm:"primarykey"`
	SchemeID      uint             `gorm:"index;not null"`
	CardName      string           `gorm:"not null"`
	SingleRate    *decimal.Decimal `gorm:"type:numeric(7,4)"`
	MerchantRate  *decimal.Decimal `gorm:"type:numeric(7,4)"`
	FranchiseRate *decimal.Decimal `gorm:"type:numeric(7,4)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasDualRates reports whether both split rates are configured.
func (r *CardRate) HasDualRates() bool {
	return r.MerchantRate != nil && r.FranchiseRate != nil
}
