// Package discovery finds vendor transactions plausibly belonging to a
// merchant's devices within a settlement window and classifies each one as
// settleable or rejected with a reason.
package discovery

import (
	"context"
	"errors"
	"time"

	"payops/internal/models"
	"payops/internal/repositories"
	"payops/internal/services/rates"
)

// Service performs candidate discovery. All lookups are read-only.
type Service struct {
	merchants repositories.MerchantRepository
	devices   repositories.DeviceRepository
	vendorTxs repositories.VendorTransactionRepository
	pricing   repositories.PricingRepository
	calc      *rates.Calculator
	now       func() time.Time
}

func NewService(
	merchants repositories.MerchantRepository,
	devices repositories.DeviceRepository,
	vendorTxs repositories.VendorTransactionRepository,
	pricing repositories.PricingRepository,
) *Service {
	if merchants == nil || devices == nil || vendorTxs == nil || pricing == nil {
		panic("discovery: all repositories are required")
	}
	return &Service{
		merchants: merchants,
		devices:   devices,
		vendorTxs: vendorTxs,
		pricing:   pricing,
		calc:      rates.NewCalculator(),
		now:       time.Now,
	}
}

// ResolveWindow turns a cycle key into a concrete window for the merchant.
// The end comes from the cycle rule; the start defaults to the merchant's
// earliest unsettled transaction date, falling back to the merchant's
// creation date when there is none.
func (s *Service) ResolveWindow(ctx context.Context, merchantID uint, productID *uint, cycleKey string) (*Window, error) {
	end, err := CycleWindowEnd(cycleKey, s.now())
	if err != nil {
		return nil, err
	}

	merchant, err := s.merchants.GetByID(merchantID)
	if err != nil {
		return nil, err
	}

	ids, err := s.devices.FindIdentifiers(merchantID, productID)
	if err != nil {
		return nil, err
	}

	start := merchant.CreatedAt
	if earliest, err := s.vendorTxs.EarliestUnsettledDate(ids.MIDs, ids.TIDs); err != nil {
		return nil, err
	} else if earliest != nil {
		start = *earliest
	}

	return &Window{From: start, To: end}, nil
}

// Discover finds unsettled in-window transactions for the merchant's devices
// and classifies each. The returned slice always includes rejected
// candidates; it never fails on a classifiable transaction.
func (s *Service) Discover(ctx context.Context, merchantID uint, productID *uint, window Window) ([]Candidate, error) {
	ids, err := s.devices.FindIdentifiers(merchantID, productID)
	if err != nil {
		return nil, err
	}

	merchant, err := s.merchants.GetByID(merchantID)
	if err != nil {
		return nil, err
	}

	txs, err := s.vendorTxs.FindCandidates(window.From, window.To, ids.MIDs, ids.TIDs)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(txs))
	for i := range txs {
		candidates = append(candidates, s.classify(&txs[i], merchant, productID))
	}
	return candidates, nil
}

// Validate classifies specific vendor transaction keys against a merchant,
// used when a batch's candidate set is replaced with an operator-chosen list.
func (s *Service) Validate(ctx context.Context, merchantID uint, productID *uint, vendorTxKeys []string) ([]Candidate, error) {
	merchant, err := s.merchants.GetByID(merchantID)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(vendorTxKeys))
	for _, key := range vendorTxKeys {
		tx, err := s.vendorTxs.GetByExternalRef(key)
		if err != nil {
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				candidates = append(candidates, Candidate{
					VendorTxKey: key,
					Reject:      RejectTransactionNotFound,
				})
				continue
			}
			return nil, err
		}
		if tx.Settled {
			candidates = append(candidates, Candidate{
				VendorTxKey: key,
				Transaction: tx,
				Amount:      tx.Amount,
				Reject:      RejectAlreadySettled,
			})
			continue
		}
		candidates = append(candidates, s.classify(tx, merchant, productID))
	}
	return candidates, nil
}

// classify runs the full device -> scheme -> rate resolution for one
// transaction and attaches either the computed money figures or a reject
// reason. Resolution failures are data, not errors.
func (s *Service) classify(tx *models.VendorTransaction, merchant *models.Merchant, productID *uint) Candidate {
	c := Candidate{
		VendorTxKey: tx.ExternalRef,
		Transaction: tx,
		Amount:      tx.Amount,
	}

	device, err := s.devices.FindByIdentifiers(tx.MID, tx.TID)
	if err != nil {
		c.Reject = RejectDeviceNotFound
		return c
	}
	if device.MerchantID != merchant.ID {
		c.Reject = RejectWrongMerchant
		return c
	}
	if productID != nil && device.ProductID != *productID {
		c.Reject = RejectWrongProduct
		return c
	}

	resolution, err := rates.Resolve(s.pricing, device, tx)
	if err != nil {
		switch {
		case errors.Is(err, rates.ErrNoScheme):
			c.Reject = RejectNoPricingScheme
		case errors.Is(err, rates.ErrSchemeExpired):
			c.Reject = RejectSchemeExpired
		case errors.Is(err, rates.ErrNoRate):
			c.Reject = RejectNoCardRate
		default:
			c.Reject = RejectNoCardRate
		}
		return c
	}

	split, err := s.calc.ComputeSplit(tx.Amount, resolution.Rate, merchant.IsFranchise())
	if err != nil {
		c.Reject = RejectNoRateConfigured
		return c
	}

	c.Fee = split.Fee
	c.NetAmount = split.Net
	return c
}
