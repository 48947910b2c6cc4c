package repositories

import "errors"

// Repository errors
var (
	ErrMerchantNotFound       = errors.New("merchant not found")
	ErrFranchiseNotFound      = errors.New("franchise not found")
	ErrDeviceNotFound         = errors.New("device not found")
	ErrSchemeNotFound         = errors.New("pricing scheme assignment not found")
	ErrCardRateNotFound       = errors.New("card rate not found")
	ErrTransactionNotFound    = errors.New("vendor transaction not found")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrLedgerEntryNotFound    = errors.New("ledger entry not found")
	ErrBatchNotFound          = errors.New("settlement batch not found")
	ErrBatchConflict          = errors.New("active settlement batch already exists")
	ErrCandidateNotFound      = errors.New("settlement candidate not found")
	ErrFranchiseBatchNotFound = errors.New("franchise batch not found")
)
