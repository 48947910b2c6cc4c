package repositories

import (
	"errors"
	"fmt"
	"time"

	"payops/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository owns wallet rows and their immutable ledger entries.
// Balance mutation is only exposed through ApplyMovement so that callers
// cannot blind-write a balance.
type WalletRepository interface {
	GetByOwner(ownerID uint, ownerType string) (*models.Wallet, error)
	// LockByOwner acquires the wallet row exclusively for the duration of
	// the enclosing transaction, creating a zero-balance wallet if absent.
	LockByOwner(ownerID uint, ownerType string) (*models.Wallet, error)
	// ApplyMovement advances the locked wallet by the signed net amount and
	// stamps the last-movement and running-total fields.
	ApplyMovement(wallet *models.Wallet, net, fee decimal.Decimal) error
	FindLedgerEntry(ownerID uint, ownerType, vendorTxKey string) (*models.LedgerEntry, error)
	CreateLedgerEntry(entry *models.LedgerEntry) error
	ListLedgerEntries(ownerID uint, ownerType string, limit, offset int) ([]models.LedgerEntry, error)
}

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) GetByOwner(ownerID uint, ownerType string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) LockByOwner(ownerID uint, ownerType string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).
		First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	// Wallets are created lazily on first posting. Concurrent first
	// postings can both miss the select above; the conflict clause turns
	// the losing insert into a no-op instead of a duplicate-key error.
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Wallet{OwnerID: ownerID, OwnerType: ownerType}).Error; err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	// Re-acquire under lock so concurrent first postings serialize on the
	// same row regardless of who won the insert.
	err = r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).
		First(&wallet).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet after create: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) ApplyMovement(wallet *models.Wallet, net, fee decimal.Decimal) error {
	now := time.Now().UTC()
	wallet.AvailableBalance = wallet.AvailableBalance.Add(net)
	wallet.LastMovementAmount = net
	wallet.LastMovementAt = &now
	wallet.TotalCredited = wallet.TotalCredited.Add(net)
	wallet.TotalFees = wallet.TotalFees.Add(fee)
	wallet.EntryCount++
	wallet.Version++

	if err := r.db.Save(wallet).Error; err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) FindLedgerEntry(ownerID uint, ownerType, vendorTxKey string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.Where("owner_id = ? AND owner_type = ? AND vendor_tx_key = ?",
		ownerID, ownerType, vendorTxKey).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return &entry, nil
}

func (r *walletRepository) CreateLedgerEntry(entry *models.LedgerEntry) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

func (r *walletRepository) ListLedgerEntries(ownerID uint, ownerType string, limit, offset int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
