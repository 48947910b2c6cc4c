package handlers

import (
	"strconv"
	"strings"

	"payops/internal/models"
	"payops/internal/services/ledger"
	"payops/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type WalletHandler struct {
	ledger *ledger.Service
}

func NewWalletHandler(ledgerSvc *ledger.Service) *WalletHandler {
	return &WalletHandler{ledger: ledgerSvc}
}

func ownerType(c *fiber.Ctx) (string, bool) {
	switch strings.ToUpper(c.Params("ownerType")) {
	case models.OwnerTypeMerchant:
		return models.OwnerTypeMerchant, true
	case models.OwnerTypeFranchise:
		return models.OwnerTypeFranchise, true
	default:
		return "", false
	}
}

// GetWallet returns the owner's wallet with its current balance.
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	ot, ok := ownerType(c)
	if !ok {
		return response.BadRequest(c, "owner type must be MERCHANT or FRANCHISE")
	}
	ownerID, err := parseID(c, "ownerId")
	if err != nil {
		return response.BadRequest(c, "invalid owner id")
	}

	wallet, err := h.ledger.GetWallet(c.Context(), ownerID, ot)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "wallet", fiber.Map{"wallet": wallet})
}

// GetLedger returns the owner's ledger history, newest first.
func (h *WalletHandler) GetLedger(c *fiber.Ctx) error {
	ot, ok := ownerType(c)
	if !ok {
		return response.BadRequest(c, "owner type must be MERCHANT or FRANCHISE")
	}
	ownerID, err := parseID(c, "ownerId")
	if err != nil {
		return response.BadRequest(c, "invalid owner id")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	entries, err := h.ledger.ListEntries(c.Context(), ownerID, ot, limit, offset)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "ledger entries", fiber.Map{"entries": entries})
}
