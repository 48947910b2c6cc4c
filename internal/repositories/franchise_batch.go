package repositories

import (
	"errors"
	"fmt"

	"payops/internal/models"

	"gorm.io/gorm"
)

// FranchiseBatchRepository owns franchise batches and their merchant slots.
type FranchiseBatchRepository interface {
	Create(batch *models.FranchiseBatch, merchants []models.FranchiseBatchMerchant) error
	GetByID(id uint) (*models.FranchiseBatch, error)
	Update(batch *models.FranchiseBatch) error
	ListMerchants(franchiseBatchID uint) ([]models.FranchiseBatchMerchant, error)
	UpdateMerchant(slot *models.FranchiseBatchMerchant) error
}

type franchiseBatchRepository struct {
	db *gorm.DB
}

func NewFranchiseBatchRepository(db *gorm.DB) FranchiseBatchRepository {
	return &franchiseBatchRepository{db: db}
}

func (r *franchiseBatchRepository) Create(batch *models.FranchiseBatch, merchants []models.FranchiseBatchMerchant) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("failed to create franchise batch: %w", err)
		}
		for i := range merchants {
			merchants[i].FranchiseBatchID = batch.ID
		}
		if len(merchants) > 0 {
			if err := tx.Create(&merchants).Error; err != nil {
				return fmt.Errorf("failed to create franchise batch merchants: %w", err)
			}
		}
		return nil
	})
}

func (r *franchiseBatchRepository) GetByID(id uint) (*models.FranchiseBatch, error) {
	var batch models.FranchiseBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFranchiseBatchNotFound
		}
		return nil, fmt.Errorf("failed to get franchise batch: %w", err)
	}
	return &batch, nil
}

func (r *franchiseBatchRepository) Update(batch *models.FranchiseBatch) error {
	if err := r.db.Save(batch).Error; err != nil {
		return fmt.Errorf("failed to update franchise batch: %w", err)
	}
	return nil
}

func (r *franchiseBatchRepository) ListMerchants(franchiseBatchID uint) ([]models.FranchiseBatchMerchant, error) {
	var slots []models.FranchiseBatchMerchant
	err := r.db.Where("franchise_batch_id = ?", franchiseBatchID).Order("id").Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list franchise batch merchants: %w", err)
	}
	return slots, nil
}

func (r *franchiseBatchRepository) UpdateMerchant(slot *models.FranchiseBatchMerchant) error {
	if err := r.db.Save(slot).Error; err != nil {
		return fmt.Errorf("failed to update franchise batch merchant: %w", err)
	}
	return nil
}
