// Package rates resolves the effective card rate for a vendor transaction and
// computes fee splits. All arithmetic is fixed-point decimal; the package is
// read-only with respect to storage.
package rates

import (
	"errors"
	"fmt"
	"strings"

	"payops/internal/models"
	"payops/internal/repositories"
)

// PricingStore is the slice of the pricing repository the resolver needs.
type PricingStore interface {
	FindSchemeAssignment(distributionID uint) (*models.SchemeAssignment, error)
	FindCardRate(schemeID uint, cardName string) (*models.CardRate, error)
}

// Resolution is the outcome of rate resolution for one transaction.
type Resolution struct {
	Assignment *models.SchemeAssignment
	Rate       *models.CardRate
	CardName   string
}

// NormalizeCardName builds the lookup card name from the vendor-reported
// brand and type, e.g. ("visa", "Credit") -> "VISA CREDIT".
func NormalizeCardName(brand, cardType string) string {
	parts := make([]string, 0, 2)
	if b := strings.ToUpper(strings.TrimSpace(brand)); b != "" {
		parts = append(parts, b)
	}
	if t := strings.ToUpper(strings.TrimSpace(cardType)); t != "" {
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return models.DefaultCardName
	}
	return strings.Join(parts, " ")
}

// Resolve finds the scheme assignment for the device's distribution event and
// the card rate for the transaction's card, falling back to the DEFAULT card
// name when no brand-specific rate exists.
func Resolve(store PricingStore, device *models.Device, tx *models.VendorTransaction) (*Resolution, error) {
	assignment, err := store.FindSchemeAssignment(device.DistributionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSchemeNotFound) {
			return nil, ErrNoScheme
		}
		return nil, fmt.Errorf("failed to resolve scheme assignment: %w", err)
	}
	if !assignment.ActiveAt(tx.TransactionDate) {
		return nil, ErrSchemeExpired
	}

	cardName := NormalizeCardName(tx.CardBrand, tx.CardType)
	rate, err := store.FindCardRate(assignment.SchemeID, cardName)
	if err != nil {
		if !errors.Is(err, repositories.ErrCardRateNotFound) {
			return nil, fmt.Errorf("failed to resolve card rate: %w", err)
		}
		rate, err = store.FindCardRate(assignment.SchemeID, models.DefaultCardName)
		if err != nil {
			if errors.Is(err, repositories.ErrCardRateNotFound) {
				return nil, ErrNoRate
			}
			return nil, fmt.Errorf("failed to resolve default card rate: %w", err)
		}
	}

	return &Resolution{
		Assignment: assignment,
		Rate:       rate,
		CardName:   cardName,
	}, nil
}
