package models

import (
	"time"
)

// Merchant settlement types
const (
	MerchantTypeDirect    = "DIRECT"
	MerchantTypeFranchise = "FRANCHISE"
)

type Merchant struct {
	ID           uint   `gorm:"primarykey"`
	BusinessName string `gorm:"not null"`
	BusinessType string
	FranchiseID  *uint  `gorm:"index"`
	CycleKey     string `gorm:"default:'T1'"`
	Status       string `gorm:"default:'active'"`
	ContactEmail string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFranchise reports whether settlement proceeds are split with a franchise.
func (m *Merchant) IsFranchise() bool {
	return m.FranchiseID != nil && *m.FranchiseID != 0
}

type Franchise struct {
	ID        uint   `gorm:"primarykey"`
	Name      string `gorm:"not null"`
	Status    string `gorm:"default:'active'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
