package handlers

import (
	"errors"

	"payops/internal/services/franchise"
	"payops/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type FranchiseHandler struct {
	service *franchise.Service
}

func NewFranchiseHandler(service *franchise.Service) *FranchiseHandler {
	return &FranchiseHandler{service: service}
}

// CreateBatch creates a franchise batch over selected merchants, or over all
// of them when merchant_ids is omitted.
func (h *FranchiseHandler) CreateBatch(c *fiber.Ctx) error {
	franchiseID, err := parseID(c, "franchiseId")
	if err != nil {
		return response.BadRequest(c, "invalid franchise id")
	}

	var input struct {
		MerchantIDs []uint `json:"merchant_ids"`
		CycleKey    string `json:"cycle_key"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	if input.CycleKey == "" {
		input.CycleKey = "T1"
	}

	var batch interface{}
	if len(input.MerchantIDs) > 0 {
		batch, err = h.service.CreateSelectiveBatch(c.Context(), franchiseID, input.MerchantIDs, input.CycleKey, actingUser(c))
	} else {
		batch, err = h.service.CreateFullBatch(c.Context(), franchiseID, input.CycleKey, actingUser(c))
	}
	if err != nil {
		return mapFranchiseError(c, err)
	}
	return response.Success(c, "franchise batch created", fiber.Map{"batch": batch})
}

// Process starts the franchise run over per-merchant transaction key lists.
func (h *FranchiseHandler) Process(c *fiber.Ctx) error {
	batchID, err := parseID(c, "batchId")
	if err != nil {
		return response.BadRequest(c, "invalid batch id")
	}

	var input struct {
		Transactions map[uint][]string `json:"transactions"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}

	batch, err := h.service.ProcessWithCustomTransactions(c.Context(), batchID, input.Transactions, actingUser(c))
	if err != nil {
		return mapFranchiseError(c, err)
	}
	return response.Success(c, "processing scheduled", fiber.Map{"batch": batch})
}

// GetBatch returns the franchise batch with its merchant slots.
func (h *FranchiseHandler) GetBatch(c *fiber.Ctx) error {
	batchID, err := parseID(c, "batchId")
	if err != nil {
		return response.BadRequest(c, "invalid batch id")
	}

	batch, err := h.service.GetBatch(c.Context(), batchID)
	if err != nil {
		return mapFranchiseError(c, err)
	}
	merchants, err := h.service.ListMerchants(c.Context(), batchID)
	if err != nil {
		return mapFranchiseError(c, err)
	}
	return response.Success(c, "franchise batch", fiber.Map{
		"batch":     batch,
		"merchants": merchants,
	})
}

func mapFranchiseError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, franchise.ErrNotFranchiseMember),
		errors.Is(err, franchise.ErrUnknownMerchant),
		errors.Is(err, franchise.ErrNoMerchants):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, franchise.ErrBatchNotStartable):
		return response.Conflict(c, err.Error())
	default:
		return mapError(c, err)
	}
}
