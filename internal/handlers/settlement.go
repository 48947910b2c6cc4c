// Package handlers is the thin HTTP surface over the settlement engine:
// trigger calls return immediately after scheduling, and batch state is
// observed by polling.
package handlers

import (
	"errors"
	"strconv"

	"payops/internal/repositories"
	"payops/internal/services/discovery"
	"payops/internal/services/settlement"
	"payops/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// actingUser is the opaque audit identity supplied by the caller. The engine
// never interprets it.
func actingUser(c *fiber.Ctx) string {
	if actor := c.Get("X-Acting-User"); actor != "" {
		return actor
	}
	return "system"
}

func parseID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

type SettlementHandler struct {
	batches   *settlement.BatchManager
	discovery *discovery.Service
}

func NewSettlementHandler(batches *settlement.BatchManager, discoverySvc *discovery.Service) *SettlementHandler {
	return &SettlementHandler{
		batches:   batches,
		discovery: discoverySvc,
	}
}

// DiscoverCandidates returns every in-window transaction for a merchant with
// its classification, settleable or not.
func (h *SettlementHandler) DiscoverCandidates(c *fiber.Ctx) error {
	merchantID, err := parseID(c, "merchantId")
	if err != nil {
		return response.BadRequest(c, "invalid merchant id")
	}

	var productID *uint
	if raw := c.Query("product_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return response.BadRequest(c, "invalid product id")
		}
		p := uint(id)
		productID = &p
	}

	cycleKey := c.Query("cycle", "T1")
	window, err := h.discovery.ResolveWindow(c.Context(), merchantID, productID, cycleKey)
	if err != nil {
		return mapError(c, err)
	}

	candidates, err := h.discovery.Discover(c.Context(), merchantID, productID, *window)
	if err != nil {
		return mapError(c, err)
	}

	return response.Success(c, "candidates discovered", fiber.Map{
		"window":     window,
		"candidates": candidates,
	})
}

// CreateBatch creates or reuses the active batch for a merchant and cycle.
func (h *SettlementHandler) CreateBatch(c *fiber.Ctx) error {
	var input struct {
		MerchantID uint   `json:"merchant_id"`
		ProductID  *uint  `json:"product_id"`
		CycleKey   string `json:"cycle_key"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	if input.MerchantID == 0 {
		return response.BadRequest(c, "merchant_id is required")
	}
	if input.CycleKey == "" {
		input.CycleKey = "T1"
	}

	batch, err := h.batches.GetOrCreateActiveBatch(c.Context(), input.MerchantID, input.ProductID, input.CycleKey, actingUser(c))
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "batch ready", fiber.Map{"batch": batch})
}

// UpdateCandidates replaces a batch's candidate set and schedules processing.
func (h *SettlementHandler) UpdateCandidates(c *fiber.Ctx) error {
	batchID, err := parseID(c, "batchId")
	if err != nil {
		return response.BadRequest(c, "invalid batch id")
	}

	var input struct {
		VendorTxKeys []string `json:"vendor_tx_keys"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}

	batch, classified, err := h.batches.UpdateBatchCandidates(c.Context(), batchID, input.VendorTxKeys, actingUser(c))
	if err != nil {
		return mapError(c, err)
	}

	rejected := make([]discovery.Candidate, 0)
	for _, cand := range classified {
		if !cand.OK() {
			rejected = append(rejected, cand)
		}
	}
	return response.Success(c, "processing scheduled", fiber.Map{
		"batch":    batch,
		"rejected": rejected,
	})
}

// GetBatch returns the batch entity with its candidates.
func (h *SettlementHandler) GetBatch(c *fiber.Ctx) error {
	batchID, err := parseID(c, "batchId")
	if err != nil {
		return response.BadRequest(c, "invalid batch id")
	}

	batch, err := h.batches.GetBatch(c.Context(), batchID)
	if err != nil {
		return mapError(c, err)
	}
	candidates, err := h.batches.ListCandidates(c.Context(), batchID)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "batch", fiber.Map{
		"batch":      batch,
		"candidates": candidates,
	})
}

// GetProgress returns the polling snapshot for a running batch.
func (h *SettlementHandler) GetProgress(c *fiber.Ctx) error {
	batchID, err := parseID(c, "batchId")
	if err != nil {
		return response.BadRequest(c, "invalid batch id")
	}

	progress, err := h.batches.GetProgress(c.Context(), batchID)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "progress", fiber.Map{"progress": progress})
}

// Resume re-drives the failed candidates of a terminal batch.
func (h *SettlementHandler) Resume(c *fiber.Ctx) error {
	batchID, err := parseID(c, "batchId")
	if err != nil {
		return response.BadRequest(c, "invalid batch id")
	}

	batch, err := h.batches.Resume(c.Context(), batchID, actingUser(c))
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "resume scheduled", fiber.Map{"batch": batch})
}

// Close marks a terminal batch CLOSED.
func (h *SettlementHandler) Close(c *fiber.Ctx) error {
	batchID, err := parseID(c, "batchId")
	if err != nil {
		return response.BadRequest(c, "invalid batch id")
	}

	batch, err := h.batches.MarkClosed(c.Context(), batchID)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "batch closed", fiber.Map{"batch": batch})
}

// mapError translates engine sentinels to HTTP statuses.
func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repositories.ErrMerchantNotFound),
		errors.Is(err, repositories.ErrBatchNotFound),
		errors.Is(err, repositories.ErrFranchiseNotFound),
		errors.Is(err, repositories.ErrFranchiseBatchNotFound),
		errors.Is(err, repositories.ErrWalletNotFound),
		errors.Is(err, repositories.ErrTransactionNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, settlement.ErrInvalidBatchState),
		errors.Is(err, settlement.ErrBatchNotResumable),
		errors.Is(err, settlement.ErrBatchProcessing):
		return response.Conflict(c, err.Error())
	case errors.Is(err, discovery.ErrUnknownCycle):
		return response.BadRequest(c, err.Error())
	default:
		return response.ServerError(c, err.Error())
	}
}
