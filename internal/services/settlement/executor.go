// Package settlement turns validated candidates into committed wallet
// postings: the per-candidate executor, the merchant batch lifecycle, and the
// asynchronous batch processor.
package settlement

import (
	"context"
	"fmt"

	"payops/internal/metrics"
	"payops/internal/models"
	"payops/internal/repositories"
	"payops/internal/services/ledger"
	"payops/internal/services/rates"
)

// FranchiseKeySuffix derives the franchise commission ledger key from the
// vendor transaction key, giving the commission posting its own idempotency
// guard.
const FranchiseKeySuffix = "_FRANCHISE"

// Executor settles one candidate at a time. Every SettleOne call is its own
// unit of work with an independent commit boundary: a failure on one
// candidate never rolls back a sibling's committed posting.
type Executor struct {
	uow     repositories.UnitOfWork
	ledger  *ledger.Service
	calc    *rates.Calculator
	metrics metrics.Collector
}

func NewExecutor(uow repositories.UnitOfWork, ledgerSvc *ledger.Service, collector metrics.Collector) *Executor {
	if uow == nil {
		panic("settlement: unit of work is required")
	}
	if ledgerSvc == nil {
		panic("settlement: ledger service is required")
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &Executor{
		uow:     uow,
		ledger:  ledgerSvc,
		calc:    rates.NewCalculator(),
		metrics: collector,
	}
}

// SettleOne resolves, prices and posts a single vendor transaction. The
// outcome is always a Result; errors and panics inside the unit of work are
// mapped to OutcomeFailed so the caller's loop continues.
func (e *Executor) SettleOne(ctx context.Context, merchantID, batchID uint, vendorTxKey, actor string) (result Result) {
	result = Result{VendorTxKey: vendorTxKey}

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = OutcomeFailed
			result.Reason = fmt.Sprintf("panic: %v", r)
			e.metrics.RecordError("settle_one", "panic")
		}
		e.metrics.RecordSettlement(string(result.Outcome))
	}()

	var (
		merchantPosting  *ledger.PostingResult
		franchisePosting *ledger.PostingResult
		franchiseID      uint
	)

	err := e.uow.Execute(ctx, func(r *repositories.Registry) error {
		vt, err := r.VendorTransactions.LockByExternalRef(vendorTxKey)
		if err != nil {
			return err
		}
		if vt.Settled {
			result.Outcome = OutcomeAlreadySettled
			return nil
		}

		merchant, err := r.Merchants.GetByID(merchantID)
		if err != nil {
			return err
		}

		device, err := r.Devices.FindByIdentifiers(vt.MID, vt.TID)
		if err != nil {
			return err
		}
		if device.MerchantID != merchant.ID {
			return ErrWrongMerchant
		}

		resolution, err := rates.Resolve(r.Pricing, device, vt)
		if err != nil {
			return err
		}

		split, err := e.calc.ComputeSplit(vt.Amount, resolution.Rate, merchant.IsFranchise())
		if err != nil {
			return err
		}
		result.Fee = split.Fee
		result.NetAmount = split.Net
		result.Commission = split.Commission

		merchantPosting, err = e.ledger.Apply(r.Wallets, ledger.PostingRequest{
			OwnerID:     merchant.ID,
			OwnerType:   models.OwnerTypeMerchant,
			VendorTxKey: vendorTxKey,
			Amount:      vt.Amount,
			Fee:         split.Fee,
			Net:         split.Net,
			EntryType:   models.EntryTypeSettlement,
			BatchID:     &batchID,
			Actor:       actor,
		})
		if err != nil {
			return err
		}

		if merchant.IsFranchise() && split.DualRate {
			franchiseID = *merchant.FranchiseID
			franchisePosting, err = e.ledger.Apply(r.Wallets, ledger.PostingRequest{
				OwnerID:     franchiseID,
				OwnerType:   models.OwnerTypeFranchise,
				VendorTxKey: vendorTxKey + FranchiseKeySuffix,
				Amount:      vt.Amount,
				Fee:         split.FranchiseFee,
				Net:         split.Commission,
				EntryType:   models.EntryTypeCommission,
				BatchID:     &batchID,
				Actor:       actor,
			})
			if err != nil {
				return err
			}
		}

		if err := r.VendorTransactions.MarkSettled(vt, batchID); err != nil {
			return err
		}

		result.Outcome = OutcomeOK
		return nil
	})
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}

	if result.Outcome == OutcomeOK {
		e.ledger.InvalidateWallet(ctx, merchantID, models.OwnerTypeMerchant)
		e.ledger.RecordPosting(models.OwnerTypeMerchant, merchantPosting)
		if franchisePosting != nil {
			e.ledger.InvalidateWallet(ctx, franchiseID, models.OwnerTypeFranchise)
			e.ledger.RecordPosting(models.OwnerTypeFranchise, franchisePosting)
		}
	}
	return result
}
