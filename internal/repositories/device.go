package repositories

import (
	"errors"
	"fmt"

	"payops/internal/models"

	"gorm.io/gorm"
)

// DeviceIdentifiers is the MID/TID set owned by one merchant's devices.
type DeviceIdentifiers struct {
	MIDs []string
	TIDs []string
}

// DeviceRepository is the device directory contract: identifier-set lookup
// per merchant, and reverse lookup from transaction identifiers to a device.
type DeviceRepository interface {
	FindIdentifiers(merchantID uint, productID *uint) (*DeviceIdentifiers, error)
	// FindByIdentifiers resolves a device with exact MID+TID precedence,
	// then MID only, then TID only.
	FindByIdentifiers(mid, tid string) (*models.Device, error)
}

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) FindIdentifiers(merchantID uint, productID *uint) (*DeviceIdentifiers, error) {
	query := r.db.Model(&models.Device{}).Where("merchant_id = ?", merchantID)
	if productID != nil {
		query = query.Where("product_id = ?", *productID)
	}

	var devices []models.Device
	if err := query.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to find device identifiers: %w", err)
	}

	ids := &DeviceIdentifiers{}
	for _, d := range devices {
		if d.MID != "" {
			ids.MIDs = append(ids.MIDs, d.MID)
		}
		if d.TID != "" {
			ids.TIDs = append(ids.TIDs, d.TID)
		}
	}
	return ids, nil
}

func (r *deviceRepository) FindByIdentifiers(mid, tid string) (*models.Device, error) {
	var device models.Device

	if mid != "" && tid != "" {
		err := r.db.Where("mid = ? AND tid = ?", mid, tid).First(&device).Error
		if err == nil {
			return &device, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to find device: %w", err)
		}
	}
	if mid != "" {
		err := r.db.Where("mid = ?", mid).First(&device).Error
		if err == nil {
			return &device, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to find device: %w", err)
		}
	}
	if tid != "" {
		err := r.db.Where("tid = ?", tid).First(&device).Error
		if err == nil {
			return &device, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to find device: %w", err)
		}
	}
	return nil, ErrDeviceNotFound
}
