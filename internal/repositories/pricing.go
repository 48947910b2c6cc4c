package repositories

import (
	"errors"
	"fmt"
	"strings"

	"payops/internal/models"

	"gorm.io/gorm"
)

// PricingRepository is the pricing store contract: scheme assignment per
// distribution event and card rate per (scheme, card name).
type PricingRepository interface {
	FindSchemeAssignment(distributionID uint) (*models.SchemeAssignment, error)
	// FindCardRate matches the card name case-insensitively as a substring
	// of the configured rate rows.
	FindCardRate(schemeID uint, cardName string) (*models.CardRate, error)
}

type pricingRepository struct {
	db *gorm.DB
}

func NewPricingRepository(db *gorm.DB) PricingRepository {
	return &pricingRepository{db: db}
}

func (r *pricingRepository) FindSchemeAssignment(distributionID uint) (*models.SchemeAssignment, error) {
	var assignment models.SchemeAssignment
	err := r.db.Where("distribution_id = ?", distributionID).
		Order("effective_from DESC").
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSchemeNotFound
		}
		return nil, fmt.Errorf("failed to find scheme assignment: %w", err)
	}
	return &assignment, nil
}

func (r *pricingRepository) FindCardRate(schemeID uint, cardName string) (*models.CardRate, error) {
	needle := "%" + strings.ToUpper(strings.TrimSpace(cardName)) + "%"

	var rate models.CardRate
	err := r.db.Where("scheme_id = ? AND UPPER(card_name) LIKE ?", schemeID, needle).
		Order("id").
		First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardRateNotFound
		}
		return nil, fmt.Errorf("failed to find card rate: %w", err)
	}
	return &rate, nil
}
