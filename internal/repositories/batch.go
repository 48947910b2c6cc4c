package repositories

import (
	"errors"
	"fmt"

	"payops/internal/models"

	"gorm.io/gorm"
)

// BatchRepository owns settlement batches and their candidates.
type BatchRepository interface {
	Create(batch *models.SettlementBatch) error
	GetByID(id uint) (*models.SettlementBatch, error)
	Update(batch *models.SettlementBatch) error
	// FindActive returns the one non-terminal batch for the merchant, cycle
	// and product combination, if any.
	FindActive(merchantID uint, cycleKey string, productID *uint) (*models.SettlementBatch, error)

	ReplaceCandidates(batchID uint, candidates []models.SettlementCandidate) error
	ListCandidates(batchID uint) ([]models.SettlementCandidate, error)
	ListCandidatesByStatus(batchID uint, status string) ([]models.SettlementCandidate, error)
	UpdateCandidate(candidate *models.SettlementCandidate) error
	ResetFailedCandidates(batchID uint) (int64, error)
}

type batchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(batch *models.SettlementBatch) error {
	if err := r.db.Create(batch).Error; err != nil {
		// The partial unique index on active batches rejects a second
		// non-terminal batch for the same merchant, cycle and product.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrBatchConflict
		}
		return fmt.Errorf("failed to create settlement batch: %w", err)
	}
	return nil
}

func (r *batchRepository) GetByID(id uint) (*models.SettlementBatch, error) {
	var batch models.SettlementBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get settlement batch: %w", err)
	}
	return &batch, nil
}

func (r *batchRepository) Update(batch *models.SettlementBatch) error {
	if err := r.db.Save(batch).Error; err != nil {
		return fmt.Errorf("failed to update settlement batch: %w", err)
	}
	return nil
}

func (r *batchRepository) FindActive(merchantID uint, cycleKey string, productID *uint) (*models.SettlementBatch, error) {
	active := []string{
		models.BatchStatusDraft,
		models.BatchStatusOpen,
		models.BatchStatusProcessing,
	}
	query := r.db.Where("merchant_id = ? AND cycle_key = ? AND status IN ?", merchantID, cycleKey, active)
	if productID != nil {
		query = query.Where("product_id = ?", *productID)
	} else {
		query = query.Where("product_id IS NULL")
	}

	var batch models.SettlementBatch
	if err := query.First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to find active batch: %w", err)
	}
	return &batch, nil
}

// ReplaceCandidates deletes all existing candidates for the batch and inserts
// the new set in one transaction.
func (r *batchRepository) ReplaceCandidates(batchID uint, candidates []models.SettlementCandidate) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", batchID).
			Delete(&models.SettlementCandidate{}).Error; err != nil {
			return fmt.Errorf("failed to delete batch candidates: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}
		if err := tx.Create(&candidates).Error; err != nil {
			return fmt.Errorf("failed to insert batch candidates: %w", err)
		}
		return nil
	})
}

func (r *batchRepository) ListCandidates(batchID uint) ([]models.SettlementCandidate, error) {
	var candidates []models.SettlementCandidate
	err := r.db.Where("batch_id = ?", batchID).Order("id").Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list batch candidates: %w", err)
	}
	return candidates, nil
}

func (r *batchRepository) ListCandidatesByStatus(batchID uint, status string) ([]models.SettlementCandidate, error) {
	var candidates []models.SettlementCandidate
	err := r.db.Where("batch_id = ? AND status = ?", batchID, status).
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list batch candidates: %w", err)
	}
	return candidates, nil
}

func (r *batchRepository) UpdateCandidate(candidate *models.SettlementCandidate) error {
	if err := r.db.Save(candidate).Error; err != nil {
		return fmt.Errorf("failed to update candidate: %w", err)
	}
	return nil
}

// ResetFailedCandidates flips FAILED candidates back to SELECTED for a resume
// run, leaving completed ones untouched.
func (r *batchRepository) ResetFailedCandidates(batchID uint) (int64, error) {
	result := r.db.Model(&models.SettlementCandidate{}).
		Where("batch_id = ? AND status = ?", batchID, models.CandidateStatusFailed).
		Updates(map[string]interface{}{
			"status":         models.CandidateStatusSelected,
			"failure_reason": "",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset failed candidates: %w", result.Error)
	}
	return result.RowsAffected, nil
}
