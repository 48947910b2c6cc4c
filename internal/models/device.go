package models

import "time"

// Device is a provisioned terminal, QR standee or serial bound to a merchant
// and product. DistributionID links to the outward-distribution event that
// fixed the device's pricing scheme assignment.
type Device struct {
	ID             uint   `gorm:"primarykey"`
	MerchantID     uint   `gorm:"index;not null"`
	ProductID      uint   `gorm:"index"`
	MID            string `gorm:"column:mid;index"`
	TID            string `gorm:"column:tid;index"`
	SerialNumber   string
	DistributionID uint   `gorm:"index"`
	Status         string `gorm:"default:'active'"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
