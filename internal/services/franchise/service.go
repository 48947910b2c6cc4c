// Package franchise coordinates settlement runs spanning many merchants of
// one franchise: fan-out of independent per-merchant tasks, join, and
// aggregation into franchise-level totals and status.
package franchise

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"payops/internal/async"
	"payops/internal/metrics"
	"payops/internal/models"
	"payops/internal/repositories"
	"payops/internal/services/discovery"
	"payops/internal/services/settlement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMerchantParallelism bounds how many merchant tasks run at once
// inside one franchise batch.
const DefaultMerchantParallelism = 4

// Service is the franchise bulk coordinator.
type Service struct {
	franchiseBatches repositories.FranchiseBatchRepository
	batches          repositories.BatchRepository
	merchants        repositories.MerchantRepository
	discovery        *discovery.Service
	processor        settlement.BatchRunner
	pool             async.Scheduler
	metrics          metrics.Collector
	parallelism      int
}

func NewService(
	franchiseBatches repositories.FranchiseBatchRepository,
	batches repositories.BatchRepository,
	merchants repositories.MerchantRepository,
	discoverySvc *discovery.Service,
	processor settlement.BatchRunner,
	pool async.Scheduler,
	collector metrics.Collector,
	parallelism int,
) *Service {
	if franchiseBatches == nil || batches == nil || merchants == nil || discoverySvc == nil || processor == nil || pool == nil {
		panic("franchise: all dependencies are required")
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	if parallelism <= 0 {
		parallelism = DefaultMerchantParallelism
	}
	return &Service{
		franchiseBatches: franchiseBatches,
		batches:          batches,
		merchants:        merchants,
		discovery:        discoverySvc,
		processor:        processor,
		pool:             pool,
		metrics:          collector,
		parallelism:      parallelism,
	}
}

// CreateSelectiveBatch creates a DRAFT franchise batch over the selected
// merchants. Every merchant must belong to the franchise.
func (s *Service) CreateSelectiveBatch(ctx context.Context, franchiseID uint, merchantIDs []uint, cycleKey, actor string) (*models.FranchiseBatch, error) {
	if _, err := discovery.CycleWindowEnd(cycleKey, time.Now()); err != nil {
		return nil, err
	}
	if len(merchantIDs) == 0 {
		return nil, ErrNoMerchants
	}
	if _, err := s.merchants.GetFranchise(franchiseID); err != nil {
		return nil, err
	}

	for _, id := range merchantIDs {
		member, err := s.merchants.BelongsToFranchise(id, franchiseID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, fmt.Errorf("%w: merchant %d", ErrNotFranchiseMember, id)
		}
	}

	return s.create(franchiseID, merchantIDs, cycleKey, actor)
}

// CreateFullBatch creates a DRAFT franchise batch over every merchant of the
// franchise.
func (s *Service) CreateFullBatch(ctx context.Context, franchiseID uint, cycleKey, actor string) (*models.FranchiseBatch, error) {
	if _, err := discovery.CycleWindowEnd(cycleKey, time.Now()); err != nil {
		return nil, err
	}
	if _, err := s.merchants.GetFranchise(franchiseID); err != nil {
		return nil, err
	}

	members, err := s.merchants.ListByFranchise(franchiseID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNoMerchants
	}

	ids := make([]uint, 0, len(members))
	for i := range members {
		ids = append(ids, members[i].ID)
	}
	return s.create(franchiseID, ids, cycleKey, actor)
}

func (s *Service) create(franchiseID uint, merchantIDs []uint, cycleKey, actor string) (*models.FranchiseBatch, error) {
	batch := &models.FranchiseBatch{
		Reference:     uuid.NewString(),
		FranchiseID:   franchiseID,
		CycleKey:      cycleKey,
		Status:        models.BatchStatusDraft,
		MerchantCount: len(merchantIDs),
		CreatedBy:     actor,
	}
	slots := make([]models.FranchiseBatchMerchant, 0, len(merchantIDs))
	for _, id := range merchantIDs {
		slots = append(slots, models.FranchiseBatchMerchant{
			MerchantID: id,
			Status:     models.FranchiseMerchantSelected,
		})
	}
	if err := s.franchiseBatches.Create(batch, slots); err != nil {
		return nil, err
	}
	return batch, nil
}

// ProcessWithCustomTransactions starts the franchise run over the supplied
// per-merchant transaction keys. Validation is synchronous; the fan-out runs
// on the worker pool and the call returns immediately. Progress is observed
// by polling the franchise batch.
func (s *Service) ProcessWithCustomTransactions(ctx context.Context, franchiseBatchID uint, txKeys map[uint][]string, actor string) (*models.FranchiseBatch, error) {
	batch, err := s.franchiseBatches.GetByID(franchiseBatchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusDraft {
		return nil, fmt.Errorf("%w: batch %d is %s", ErrBatchNotStartable, batch.ID, batch.Status)
	}

	slots, err := s.franchiseBatches.ListMerchants(batch.ID)
	if err != nil {
		return nil, err
	}
	known := make(map[uint]bool, len(slots))
	for i := range slots {
		known[slots[i].MerchantID] = true
	}
	for merchantID := range txKeys {
		if !known[merchantID] {
			return nil, fmt.Errorf("%w: merchant %d", ErrUnknownMerchant, merchantID)
		}
	}

	now := time.Now().UTC()
	batch.Status = models.BatchStatusProcessing
	batch.StartedAt = &now
	if err := s.franchiseBatches.Update(batch); err != nil {
		return nil, err
	}

	ok := s.pool.Submit(func() {
		s.runBatch(context.Background(), batch.ID, txKeys, actor)
	})
	if !ok {
		return nil, ErrSchedulingRejected
	}
	return batch, nil
}

// runBatch is the coordination job: one independent task per merchant on a
// bounded group, joined before aggregation. Tasks share no mutable state
// except through the persisted store.
func (s *Service) runBatch(ctx context.Context, franchiseBatchID uint, txKeys map[uint][]string, actor string) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("franchise: batch %d run panicked: %v", franchiseBatchID, r)
			s.metrics.RecordError("franchise_run", "panic")
			if batch, err := s.franchiseBatches.GetByID(franchiseBatchID); err == nil {
				s.fail(batch, fmt.Errorf("panic: %v", r))
			}
		}
	}()

	batch, err := s.franchiseBatches.GetByID(franchiseBatchID)
	if err != nil {
		log.Printf("franchise: cannot load batch %d: %v", franchiseBatchID, err)
		s.metrics.RecordError("franchise_run", "load_failed")
		return
	}

	slots, err := s.franchiseBatches.ListMerchants(batch.ID)
	if err != nil {
		s.metrics.RecordError("franchise_run", "slots_load_failed")
		s.fail(batch, fmt.Errorf("failed to load merchant slots: %w", err))
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.parallelism)
	for i := range slots {
		slot := &slots[i]
		keys := txKeys[slot.MerchantID]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.runMerchant(ctx, batch, slot, keys, actor)
		}()
	}
	wg.Wait()

	if err := s.aggregate(ctx, batch); err != nil {
		s.metrics.RecordError("franchise_run", "aggregate_failed")
		s.fail(batch, err)
		return
	}
	s.metrics.RecordBatchDuration(batch.Status, time.Since(start))
	log.Printf("franchise: batch %d finished with status %s (%d processed, %d failed)",
		batch.ID, batch.Status, batch.ProcessedCount, batch.FailedCount)
}

// runMerchant is one merchant's isolated task. Failures are recorded on the
// slot and never abort sibling merchants.
func (s *Service) runMerchant(ctx context.Context, batch *models.FranchiseBatch, slot *models.FranchiseBatchMerchant, keys []string, actor string) {
	defer func() {
		if r := recover(); r != nil {
			s.failSlot(slot, fmt.Sprintf("panic: %v", r))
			s.metrics.RecordError("franchise_merchant", "panic")
		}
	}()

	// Membership can change between batch creation and the run.
	member, err := s.merchants.BelongsToFranchise(slot.MerchantID, batch.FranchiseID)
	if err != nil {
		s.failSlot(slot, err.Error())
		return
	}
	if !member {
		s.failSlot(slot, ErrNotFranchiseMember.Error())
		return
	}

	slot.Status = models.FranchiseMerchantProcessing
	if err := s.franchiseBatches.UpdateMerchant(slot); err != nil {
		// The slot never ran; failing it keeps it out of the COMPLETED
		// aggregate.
		s.failSlot(slot, fmt.Sprintf("cannot mark slot processing: %v", err))
		return
	}

	merchantBatch, err := s.prepareMerchantBatch(ctx, batch, slot.MerchantID, keys, actor)
	if err != nil {
		s.failSlot(slot, err.Error())
		return
	}
	slot.SettlementBatchID = &merchantBatch.ID
	if err := s.franchiseBatches.UpdateMerchant(slot); err != nil {
		log.Printf("franchise: cannot attach batch to slot %d: %v", slot.ID, err)
	}

	// Sequential candidate processing inside the merchant task; only the
	// merchants themselves run in parallel.
	s.processor.Run(ctx, merchantBatch.ID, actor)

	final, err := s.batches.GetByID(merchantBatch.ID)
	if err != nil {
		s.failSlot(slot, err.Error())
		return
	}

	final.Status = models.BatchStatusClosed
	if err := s.batches.Update(final); err != nil {
		log.Printf("franchise: cannot close merchant batch %d: %v", final.ID, err)
	}

	slot.ProcessedCount = final.ProcessedCount
	slot.FailedCount = final.FailedCount
	slot.ErrorMessage = final.ErrorMessage
	if final.FailedCount == 0 {
		slot.Status = models.FranchiseMerchantCompleted
	} else {
		slot.Status = models.FranchiseMerchantFailed
	}
	if err := s.franchiseBatches.UpdateMerchant(slot); err != nil {
		log.Printf("franchise: cannot finalize slot %d: %v", slot.ID, err)
	}
}

// prepareMerchantBatch creates a fresh settlement batch for the merchant and
// attaches the supplied keys as candidates. Keys that fail validation are
// persisted as FAILED candidates with their reject reason so the slot's
// failure counts reflect them.
func (s *Service) prepareMerchantBatch(ctx context.Context, batch *models.FranchiseBatch, merchantID uint, keys []string, actor string) (*models.SettlementBatch, error) {
	window, err := s.discovery.ResolveWindow(ctx, merchantID, nil, batch.CycleKey)
	if err != nil {
		return nil, err
	}

	merchantBatch := &models.SettlementBatch{
		Reference:  uuid.NewString(),
		MerchantID: merchantID,
		CycleKey:   batch.CycleKey,
		WindowFrom: window.From,
		WindowTo:   window.To,
		Status:     models.BatchStatusOpen,
		CreatedBy:  actor,
	}
	if err := s.batches.Create(merchantBatch); err != nil {
		return nil, err
	}

	classified, err := s.discovery.Validate(ctx, merchantID, nil, keys)
	if err != nil {
		return nil, err
	}

	var (
		candidates []models.SettlementCandidate
		gross      = decimal.Zero
		fees       = decimal.Zero
		net        = decimal.Zero
	)
	for i := range classified {
		c := &classified[i]
		candidate := models.SettlementCandidate{
			BatchID:     merchantBatch.ID,
			VendorTxKey: c.VendorTxKey,
			Amount:      c.Amount,
			Fee:         c.Fee,
			NetAmount:   c.NetAmount,
			Status:      models.CandidateStatusSelected,
		}
		if !c.OK() {
			candidate.Status = models.CandidateStatusFailed
			candidate.FailureReason = string(c.Reject)
		} else {
			gross = gross.Add(c.Amount)
			fees = fees.Add(c.Fee)
			net = net.Add(c.NetAmount)
		}
		candidates = append(candidates, candidate)
	}

	if err := s.batches.ReplaceCandidates(merchantBatch.ID, candidates); err != nil {
		return nil, err
	}

	merchantBatch.CandidateCount = len(candidates)
	merchantBatch.GrossAmount = gross
	merchantBatch.TotalFees = fees
	merchantBatch.NetAmount = net
	if err := s.batches.Update(merchantBatch); err != nil {
		return nil, err
	}
	return merchantBatch, nil
}

// aggregate folds the slots and their child batches into the franchise
// batch. Totals are always derived, never edited directly.
func (s *Service) aggregate(ctx context.Context, batch *models.FranchiseBatch) error {
	slots, err := s.franchiseBatches.ListMerchants(batch.ID)
	if err != nil {
		return fmt.Errorf("failed to load slots for aggregation: %w", err)
	}

	var (
		processed, failed int
		gross             = decimal.Zero
		fees              = decimal.Zero
		net               = decimal.Zero
	)
	for i := range slots {
		slot := &slots[i]
		processed += slot.ProcessedCount
		failed += slot.FailedCount
		if slot.Status == models.FranchiseMerchantFailed && slot.ProcessedCount == 0 && slot.FailedCount == 0 {
			// Slot failed before any candidate ran (membership or
			// setup error); count it so the batch is not trivially
			// COMPLETED.
			failed++
		}
		if slot.SettlementBatchID == nil {
			continue
		}
		child, err := s.batches.GetByID(*slot.SettlementBatchID)
		if err != nil {
			return fmt.Errorf("failed to load child batch %d: %w", *slot.SettlementBatchID, err)
		}
		gross = gross.Add(child.GrossAmount)
		fees = fees.Add(child.TotalFees)
		net = net.Add(child.NetAmount)
	}

	finished := time.Now().UTC()
	batch.ProcessedCount = processed
	batch.FailedCount = failed
	batch.GrossAmount = gross
	batch.TotalFees = fees
	batch.NetAmount = net
	batch.CompletedAt = &finished
	batch.Status = finalStatus(processed, failed)
	return s.franchiseBatches.Update(batch)
}

// finalStatus is the three-way completion rule applied to aggregate counts.
func finalStatus(processed, failed int) string {
	switch {
	case failed == 0:
		return models.BatchStatusCompleted
	case processed == 0:
		return models.BatchStatusFailed
	default:
		return models.BatchStatusPartiallyCompleted
	}
}

func (s *Service) fail(batch *models.FranchiseBatch, err error) {
	finished := time.Now().UTC()
	batch.Status = models.BatchStatusFailed
	batch.ErrorMessage = err.Error()
	batch.CompletedAt = &finished
	if uerr := s.franchiseBatches.Update(batch); uerr != nil {
		log.Printf("franchise: cannot mark batch %d failed: %v", batch.ID, uerr)
	}
}

func (s *Service) failSlot(slot *models.FranchiseBatchMerchant, reason string) {
	slot.Status = models.FranchiseMerchantFailed
	slot.ErrorMessage = reason
	if err := s.franchiseBatches.UpdateMerchant(slot); err != nil {
		log.Printf("franchise: cannot mark slot %d failed: %v", slot.ID, err)
	}
}

// GetBatch returns the franchise batch entity.
func (s *Service) GetBatch(ctx context.Context, id uint) (*models.FranchiseBatch, error) {
	return s.franchiseBatches.GetByID(id)
}

// ListMerchants returns the batch's merchant slots.
func (s *Service) ListMerchants(ctx context.Context, id uint) ([]models.FranchiseBatchMerchant, error) {
	if _, err := s.franchiseBatches.GetByID(id); err != nil {
		return nil, err
	}
	return s.franchiseBatches.ListMerchants(id)
}
