package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Registry bundles every repository bound to one *gorm.DB handle. A registry
// built from a transaction handle scopes all member repositories to that
// transaction, which is how services compose multi-repository units of work.
type Registry struct {
	Merchants          MerchantRepository
	Devices            DeviceRepository
	Pricing            PricingRepository
	VendorTransactions VendorTransactionRepository
	Wallets            WalletRepository
	Batches            BatchRepository
	FranchiseBatches   FranchiseBatchRepository
}

// NewRegistry builds a registry over the given database handle.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		Merchants:          NewMerchantRepository(db),
		Devices:            NewDeviceRepository(db),
		Pricing:            NewPricingRepository(db),
		VendorTransactions: NewVendorTransactionRepository(db),
		Wallets:            NewWalletRepository(db),
		Batches:            NewBatchRepository(db),
		FranchiseBatches:   NewFranchiseBatchRepository(db),
	}
}

// UnitOfWork runs a function against a transaction-scoped registry. Each
// Execute call is one commit boundary: everything inside commits or rolls
// back together, independently of sibling calls.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(r *Registry) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork returns a UnitOfWork backed by gorm transactions.
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) Execute(ctx context.Context, fn func(r *Registry) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRegistry(tx))
	})
}
