package repositories

import (
	"errors"
	"fmt"
	"time"

	"payops/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VendorTransactionRepository is the vendor transaction store contract.
type VendorTransactionRepository interface {
	GetByExternalRef(key string) (*models.VendorTransaction, error)
	// LockByExternalRef acquires the row exclusively for the duration of
	// the enclosing transaction.
	LockByExternalRef(key string) (*models.VendorTransaction, error)
	// FindCandidates returns unsettled transactions in the window whose
	// identifiers intersect the given MID/TID set, in transaction order.
	FindCandidates(from, to time.Time, mids, tids []string) ([]models.VendorTransaction, error)
	// EarliestUnsettledDate returns the transaction date of the oldest
	// unsettled transaction for the identifier set, or nil if none.
	EarliestUnsettledDate(mids, tids []string) (*time.Time, error)
	MarkSettled(tx *models.VendorTransaction, batchID uint) error
}

type vendorTransactionRepository struct {
	db *gorm.DB
}

func NewVendorTransactionRepository(db *gorm.DB) VendorTransactionRepository {
	return &vendorTransactionRepository{db: db}
}

func (r *vendorTransactionRepository) GetByExternalRef(key string) (*models.VendorTransaction, error) {
	var tx models.VendorTransaction
	if err := r.db.Where("external_ref = ?", key).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get vendor transaction: %w", err)
	}
	return &tx, nil
}

func (r *vendorTransactionRepository) LockByExternalRef(key string) (*models.VendorTransaction, error) {
	var tx models.VendorTransaction
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_ref = ?", key).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to lock vendor transaction: %w", err)
	}
	return &tx, nil
}

func (r *vendorTransactionRepository) FindCandidates(from, to time.Time, mids, tids []string) ([]models.VendorTransaction, error) {
	if len(mids) == 0 && len(tids) == 0 {
		return nil, nil
	}

	query := r.db.Where("settled = ? AND transaction_date BETWEEN ? AND ?", false, from, to)
	switch {
	case len(mids) > 0 && len(tids) > 0:
		query = query.Where("mid IN ? OR tid IN ?", mids, tids)
	case len(mids) > 0:
		query = query.Where("mid IN ?", mids)
	default:
		query = query.Where("tid IN ?", tids)
	}

	var txs []models.VendorTransaction
	if err := query.Order("transaction_date, id").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to find candidate transactions: %w", err)
	}
	return txs, nil
}

func (r *vendorTransactionRepository) EarliestUnsettledDate(mids, tids []string) (*time.Time, error) {
	if len(mids) == 0 && len(tids) == 0 {
		return nil, nil
	}

	query := r.db.Model(&models.VendorTransaction{}).Where("settled = ?", false)
	switch {
	case len(mids) > 0 && len(tids) > 0:
		query = query.Where("mid IN ? OR tid IN ?", mids, tids)
	case len(mids) > 0:
		query = query.Where("mid IN ?", mids)
	default:
		query = query.Where("tid IN ?", tids)
	}

	var tx models.VendorTransaction
	err := query.Order("transaction_date").First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find earliest unsettled transaction: %w", err)
	}
	return &tx.TransactionDate, nil
}

func (r *vendorTransactionRepository) MarkSettled(tx *models.VendorTransaction, batchID uint) error {
	now := time.Now().UTC()
	tx.Settled = true
	tx.SettledAt = &now
	tx.SettlementBatchID = &batchID

	result := r.db.Model(&models.VendorTransaction{}).
		Where("id = ? AND settled = ?", tx.ID, false).
		Updates(map[string]interface{}{
			"settled":             true,
			"settled_at":          now,
			"settlement_batch_id": batchID,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark transaction settled: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("vendor transaction %s already settled", tx.ExternalRef)
	}
	return nil
}
