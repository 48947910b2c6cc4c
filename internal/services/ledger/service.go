// Package ledger owns the wallet posting invariant: a balance evolves only
// through locked, idempotent postings, each leaving an immutable ledger row
// with before/after balances.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"payops/internal/metrics"
	"payops/internal/models"
	"payops/internal/repositories"
	"payops/internal/repositories/cache"
)

// Service posts credits to merchant and franchise wallets.
type Service struct {
	uow     repositories.UnitOfWork
	wallets repositories.WalletRepository
	cache   *cache.Service
	metrics metrics.Collector
}

// NewService creates a ledger service. cache may be nil; metrics falls back
// to a no-op collector.
func NewService(
	uow repositories.UnitOfWork,
	wallets repositories.WalletRepository,
	cacheSvc *cache.Service,
	collector metrics.Collector,
) *Service {
	if uow == nil {
		panic("ledger: unit of work is required")
	}
	if wallets == nil {
		panic("ledger: wallet repository is required")
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &Service{
		uow:     uow,
		wallets: wallets,
		cache:   cacheSvc,
		metrics: collector,
	}
}

// PostCredit applies the posting in its own unit of work: lock wallet,
// idempotency check, ledger insert, balance update — all atomic.
func (s *Service) PostCredit(ctx context.Context, req PostingRequest) (*PostingResult, error) {
	var result *PostingResult
	err := s.uow.Execute(ctx, func(r *repositories.Registry) error {
		var err error
		result, err = s.Apply(r.Wallets, req)
		return err
	})
	if err != nil {
		s.metrics.RecordError("post_credit", "posting_failed")
		return nil, err
	}

	s.InvalidateWallet(ctx, req.OwnerID, req.OwnerType)
	if !result.AlreadyPosted {
		net, _ := req.Net.Float64()
		s.metrics.RecordPosting(req.OwnerType, net)
	}
	return result, nil
}

// Apply runs the posting against an already-open unit of work. Callers that
// need the posting atomic with other writes (settlement executor) compose it
// into their own transaction through this method.
func (s *Service) Apply(wallets repositories.WalletRepository, req PostingRequest) (*PostingResult, error) {
	if req.OwnerID == 0 || req.OwnerType == "" {
		return nil, fmt.Errorf("ledger: posting requires an owner")
	}
	if req.VendorTxKey == "" {
		return nil, fmt.Errorf("ledger: posting requires a vendor transaction key")
	}

	wallet, err := wallets.LockByOwner(req.OwnerID, req.OwnerType)
	if err != nil {
		return nil, err
	}

	// Existence of the ledger row is the idempotency guard: a duplicate
	// invocation (retry, resume, concurrent worker) short-circuits here,
	// inside the same lock that protects the balance.
	existing, err := wallets.FindLedgerEntry(req.OwnerID, req.OwnerType, req.VendorTxKey)
	if err == nil {
		return &PostingResult{
			Entry:         existing,
			BalanceBefore: existing.BalanceBefore,
			BalanceAfter:  existing.BalanceAfter,
			AlreadyPosted: true,
		}, nil
	}
	if !errors.Is(err, repositories.ErrLedgerEntryNotFound) {
		return nil, err
	}

	balanceBefore := wallet.AvailableBalance
	balanceAfter := balanceBefore.Add(req.Net)

	entry := &models.LedgerEntry{
		OwnerID:       req.OwnerID,
		OwnerType:     req.OwnerType,
		VendorTxKey:   req.VendorTxKey,
		Amount:        req.Amount,
		Fee:           req.Fee,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Status:        models.EntryStatusSettled,
		EntryType:     req.EntryType,
		BatchID:       req.BatchID,
		CreatedBy:     req.Actor,
	}
	if err := wallets.CreateLedgerEntry(entry); err != nil {
		return nil, err
	}
	if err := wallets.ApplyMovement(wallet, req.Net, req.Fee); err != nil {
		return nil, err
	}

	return &PostingResult{
		Entry:         entry,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
	}, nil
}

// GetWallet returns the owner's wallet, cache first.
func (s *Service) GetWallet(ctx context.Context, ownerID uint, ownerType string) (*models.Wallet, error) {
	if s.cache != nil {
		if wallet, err := s.cache.GetWallet(ctx, ownerID, ownerType); err == nil && wallet != nil {
			return wallet, nil
		}
	}

	wallet, err := s.wallets.GetByOwner(ownerID, ownerType)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.CacheWallet(ctx, wallet)
	}
	return wallet, nil
}

// ListEntries returns the owner's ledger history, newest first.
func (s *Service) ListEntries(ctx context.Context, ownerID uint, ownerType string, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.wallets.ListLedgerEntries(ownerID, ownerType, limit, offset)
}

// InvalidateWallet drops the cached wallet snapshot after a committed
// posting. Safe with a nil cache.
func (s *Service) InvalidateWallet(ctx context.Context, ownerID uint, ownerType string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateWallet(ctx, ownerID, ownerType); err != nil {
		s.metrics.RecordError("invalidate_wallet", "cache")
	}
}

// RecordPosting forwards a committed posting to the metrics collector. Used
// by callers that applied postings inside their own transaction.
func (s *Service) RecordPosting(ownerType string, result *PostingResult) {
	if result == nil || result.AlreadyPosted {
		return
	}
	// The credited movement is the balance delta, not amount minus fee:
	// for a commission entry the latter is the merchant's net.
	net, _ := result.Entry.BalanceAfter.Sub(result.Entry.BalanceBefore).Float64()
	s.metrics.RecordPosting(ownerType, net)
}
