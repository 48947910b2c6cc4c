package repositories

import (
	"errors"
	"fmt"

	"payops/internal/models"

	"gorm.io/gorm"
)

// MerchantRepository reads merchants and franchises.
type MerchantRepository interface {
	GetByID(id uint) (*models.Merchant, error)
	GetFranchise(id uint) (*models.Franchise, error)
	ListByFranchise(franchiseID uint) ([]models.Merchant, error)
	BelongsToFranchise(merchantID, franchiseID uint) (bool, error)
}

type merchantRepository struct {
	db *gorm.DB
}

func NewMerchantRepository(db *gorm.DB) MerchantRepository {
	return &merchantRepository{db: db}
}

func (r *merchantRepository) GetByID(id uint) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := r.db.First(&merchant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	return &merchant, nil
}

func (r *merchantRepository) GetFranchise(id uint) (*models.Franchise, error) {
	var franchise models.Franchise
	if err := r.db.First(&franchise, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFranchiseNotFound
		}
		return nil, fmt.Errorf("failed to get franchise: %w", err)
	}
	return &franchise, nil
}

func (r *merchantRepository) ListByFranchise(franchiseID uint) ([]models.Merchant, error) {
	var merchants []models.Merchant
	if err := r.db.Where("franchise_id = ?", franchiseID).Order("id").Find(&merchants).Error; err != nil {
		return nil, fmt.Errorf("failed to list franchise merchants: %w", err)
	}
	return merchants, nil
}

func (r *merchantRepository) BelongsToFranchise(merchantID, franchiseID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Merchant{}).
		Where("id = ? AND franchise_id = ?", merchantID, franchiseID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check franchise membership: %w", err)
	}
	return count > 0, nil
}
