package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payops/internal/async"
	"payops/internal/models"
	"payops/internal/repositories"
	"payops/internal/repositories/cache"
	"payops/internal/services/discovery"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchRunner processes one batch to a terminal state; implemented by
// Processor.
type BatchRunner interface {
	Run(ctx context.Context, batchID uint, actor string)
}

// BatchManager owns the merchant-level batch lifecycle:
// DRAFT -> OPEN -> PROCESSING -> {COMPLETED|PARTIALLY_COMPLETED|FAILED} -> CLOSED,
// with FAILED/PARTIALLY_COMPLETED -> PROCESSING on resume.
type BatchManager struct {
	batches   repositories.BatchRepository
	merchants repositories.MerchantRepository
	discovery *discovery.Service
	processor BatchRunner
	pool      async.Scheduler
	cache     *cache.Service
}

// NewBatchManager creates the batch manager. cache may be nil.
func NewBatchManager(
	batches repositories.BatchRepository,
	merchants repositories.MerchantRepository,
	discoverySvc *discovery.Service,
	processor BatchRunner,
	pool async.Scheduler,
	cacheSvc *cache.Service,
) *BatchManager {
	if batches == nil || merchants == nil || discoverySvc == nil || processor == nil || pool == nil {
		panic("settlement: batch manager dependencies are required")
	}
	return &BatchManager{
		batches:   batches,
		merchants: merchants,
		discovery: discoverySvc,
		processor: processor,
		pool:      pool,
		cache:     cacheSvc,
	}
}

// GetOrCreateActiveBatch reuses the merchant's DRAFT/OPEN batch for the cycle
// and product, or creates one. Franchise merchants always get a fresh batch:
// their runs are driven by the bulk coordinator and never reused. A batch
// already PROCESSING blocks creation of a second active batch.
func (m *BatchManager) GetOrCreateActiveBatch(ctx context.Context, merchantID uint, productID *uint, cycleKey, actor string) (*models.SettlementBatch, error) {
	merchant, err := m.merchants.GetByID(merchantID)
	if err != nil {
		return nil, err
	}

	if !merchant.IsFranchise() {
		existing, err := m.batches.FindActive(merchantID, cycleKey, productID)
		if err == nil {
			if existing.Status == models.BatchStatusProcessing {
				return nil, fmt.Errorf("%w: batch %d", ErrBatchProcessing, existing.ID)
			}
			return existing, nil
		}
		if !errors.Is(err, repositories.ErrBatchNotFound) {
			return nil, err
		}
	}

	batch, err := m.CreateBatch(ctx, merchantID, productID, cycleKey, actor)
	if err == nil {
		return batch, nil
	}
	if !errors.Is(err, repositories.ErrBatchConflict) {
		return nil, err
	}

	// Lost a concurrent create race; the winner's batch is the active one.
	existing, findErr := m.batches.FindActive(merchantID, cycleKey, productID)
	if findErr != nil {
		return nil, err
	}
	if existing.Status == models.BatchStatusProcessing {
		return nil, fmt.Errorf("%w: batch %d", ErrBatchProcessing, existing.ID)
	}
	return existing, nil
}

// CreateBatch creates a DRAFT batch with the cycle's resolved window.
func (m *BatchManager) CreateBatch(ctx context.Context, merchantID uint, productID *uint, cycleKey, actor string) (*models.SettlementBatch, error) {
	window, err := m.discovery.ResolveWindow(ctx, merchantID, productID, cycleKey)
	if err != nil {
		return nil, err
	}

	batch := &models.SettlementBatch{
		Reference:  uuid.NewString(),
		MerchantID: merchantID,
		ProductID:  productID,
		CycleKey:   cycleKey,
		WindowFrom: window.From,
		WindowTo:   window.To,
		Status:     models.BatchStatusDraft,
		CreatedBy:  actor,
	}
	if err := m.batches.Create(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// UpdateBatchCandidates replaces the batch's candidate set wholesale. Only
// legal while DRAFT/OPEN. Each key is re-validated through discovery; only
// valid ones are persisted. Totals are recomputed and async processing is
// scheduled. The full classification is returned so the caller can surface
// rejected keys.
func (m *BatchManager) UpdateBatchCandidates(ctx context.Context, batchID uint, vendorTxKeys []string, actor string) (*models.SettlementBatch, []discovery.Candidate, error) {
	batch, err := m.batches.GetByID(batchID)
	if err != nil {
		return nil, nil, err
	}
	if !batch.IsModifiable() {
		return nil, nil, fmt.Errorf("%w: batch %d is %s", ErrInvalidBatchState, batch.ID, batch.Status)
	}

	classified, err := m.discovery.Validate(ctx, batch.MerchantID, batch.ProductID, vendorTxKeys)
	if err != nil {
		return nil, nil, err
	}

	var (
		candidates []models.SettlementCandidate
		gross      = decimal.Zero
		fees       = decimal.Zero
		net        = decimal.Zero
	)
	for i := range classified {
		c := &classified[i]
		if !c.OK() {
			continue
		}
		candidates = append(candidates, models.SettlementCandidate{
			BatchID:     batch.ID,
			VendorTxKey: c.VendorTxKey,
			Amount:      c.Amount,
			Fee:         c.Fee,
			NetAmount:   c.NetAmount,
			Status:      models.CandidateStatusSelected,
		})
		gross = gross.Add(c.Amount)
		fees = fees.Add(c.Fee)
		net = net.Add(c.NetAmount)
	}

	if err := m.batches.ReplaceCandidates(batch.ID, candidates); err != nil {
		return nil, nil, err
	}

	batch.CandidateCount = len(candidates)
	batch.GrossAmount = gross
	batch.TotalFees = fees
	batch.NetAmount = net
	batch.ProcessedCount = 0
	batch.FailedCount = 0
	batch.Status = models.BatchStatusOpen
	if err := m.batches.Update(batch); err != nil {
		return nil, nil, err
	}

	if err := m.schedule(batch.ID, actor); err != nil {
		return nil, nil, err
	}
	return batch, classified, nil
}

// Resume re-drives only the failed candidates of a terminal batch. Completed
// candidates stay untouched; the ledger's idempotency guard is the second
// safety net if one slips through anyway.
func (m *BatchManager) Resume(ctx context.Context, batchID uint, actor string) (*models.SettlementBatch, error) {
	batch, err := m.batches.GetByID(batchID)
	if err != nil {
		return nil, err
	}
	if !batch.IsResumable() {
		return nil, fmt.Errorf("%w: batch %d is %s", ErrBatchNotResumable, batch.ID, batch.Status)
	}

	if _, err := m.batches.ResetFailedCandidates(batch.ID); err != nil {
		return nil, err
	}
	if err := m.schedule(batch.ID, actor); err != nil {
		return nil, err
	}
	return batch, nil
}

// MarkProcessing is the explicit administrative transition into PROCESSING.
func (m *BatchManager) MarkProcessing(ctx context.Context, batchID uint) (*models.SettlementBatch, error) {
	batch, err := m.batches.GetByID(batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusOpen {
		return nil, fmt.Errorf("%w: batch %d is %s", ErrInvalidBatchState, batch.ID, batch.Status)
	}
	now := time.Now().UTC()
	batch.Status = models.BatchStatusProcessing
	batch.StartedAt = &now
	if err := m.batches.Update(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// MarkClosed closes a terminal batch.
func (m *BatchManager) MarkClosed(ctx context.Context, batchID uint) (*models.SettlementBatch, error) {
	batch, err := m.batches.GetByID(batchID)
	if err != nil {
		return nil, err
	}
	switch batch.Status {
	case models.BatchStatusCompleted, models.BatchStatusPartiallyCompleted, models.BatchStatusFailed:
		// closable
	default:
		return nil, fmt.Errorf("%w: batch %d is %s", ErrInvalidBatchState, batch.ID, batch.Status)
	}
	batch.Status = models.BatchStatusClosed
	if err := m.batches.Update(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// GetBatch returns the batch entity.
func (m *BatchManager) GetBatch(ctx context.Context, batchID uint) (*models.SettlementBatch, error) {
	return m.batches.GetByID(batchID)
}

// ListCandidates returns the batch's candidates in processing order.
func (m *BatchManager) ListCandidates(ctx context.Context, batchID uint) ([]models.SettlementCandidate, error) {
	if _, err := m.batches.GetByID(batchID); err != nil {
		return nil, err
	}
	return m.batches.ListCandidates(batchID)
}

// GetProgress returns the batch's progress snapshot, cache first. Polling is
// the intended observation pattern for async runs.
func (m *BatchManager) GetProgress(ctx context.Context, batchID uint) (*Progress, error) {
	if m.cache != nil {
		var cached Progress
		if found, err := m.cache.GetBatchProgress(ctx, batchID, &cached); err == nil && found {
			return &cached, nil
		}
	}

	batch, err := m.batches.GetByID(batchID)
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		BatchID:        batch.ID,
		Status:         batch.Status,
		CandidateCount: batch.CandidateCount,
		ProcessedCount: batch.ProcessedCount,
		FailedCount:    batch.FailedCount,
		Percent:        batch.Progress(),
		GrossAmount:    batch.GrossAmount,
		TotalFees:      batch.TotalFees,
		NetAmount:      batch.NetAmount,
		ErrorMessage:   batch.ErrorMessage,
	}
	if m.cache != nil {
		_ = m.cache.CacheBatchProgress(ctx, batchID, progress)
	}
	return progress, nil
}

// schedule hands the batch run to the worker pool. The job deliberately gets
// a fresh background context: the triggering call returns immediately and
// must not cancel the run.
func (m *BatchManager) schedule(batchID uint, actor string) error {
	ok := m.pool.Submit(func() {
		m.processor.Run(context.Background(), batchID, actor)
	})
	if !ok {
		return ErrSchedulingRejected
	}
	return nil
}
