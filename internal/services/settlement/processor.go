package settlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"payops/internal/metrics"
	"payops/internal/models"
	"payops/internal/repositories"
)

// CandidateSettler settles one candidate; implemented by Executor.
type CandidateSettler interface {
	SettleOne(ctx context.Context, merchantID, batchID uint, vendorTxKey, actor string) Result
}

// Processor drives a batch's SELECTED candidates through the executor,
// sequentially, persisting every per-candidate status change immediately so
// progress is observable mid-run.
type Processor struct {
	batches  repositories.BatchRepository
	executor CandidateSettler
	metrics  metrics.Collector
}

func NewProcessor(batches repositories.BatchRepository, executor CandidateSettler, collector metrics.Collector) *Processor {
	if batches == nil {
		panic("settlement: batch repository is required")
	}
	if executor == nil {
		panic("settlement: executor is required")
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &Processor{
		batches:  batches,
		executor: executor,
		metrics:  collector,
	}
}

// Run processes one batch to a terminal state. It is the body of the async
// job: any failure outside the per-candidate loop still lands the batch in
// FAILED with an error message, never stuck in PROCESSING.
func (p *Processor) Run(ctx context.Context, batchID uint, actor string) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("settlement: batch %d run panicked: %v", batchID, r)
			p.metrics.RecordError("batch_run", "panic")
			p.abort(batchID, fmt.Sprintf("panic: %v", r))
		}
	}()

	batch, err := p.batches.GetByID(batchID)
	if err != nil {
		log.Printf("settlement: cannot load batch %d for processing: %v", batchID, err)
		p.metrics.RecordError("batch_run", "load_failed")
		return
	}

	now := time.Now().UTC()
	batch.Status = models.BatchStatusProcessing
	batch.StartedAt = &now
	batch.ErrorMessage = ""
	if err := p.batches.Update(batch); err != nil {
		log.Printf("settlement: cannot mark batch %d processing: %v", batchID, err)
		p.metrics.RecordError("batch_run", "update_failed")
		return
	}

	if err := p.process(ctx, batch, actor); err != nil {
		finished := time.Now().UTC()
		batch.Status = models.BatchStatusFailed
		batch.ErrorMessage = err.Error()
		batch.CompletedAt = &finished
		if uerr := p.batches.Update(batch); uerr != nil {
			log.Printf("settlement: cannot mark batch %d failed: %v", batchID, uerr)
		}
	}

	p.metrics.RecordBatchDuration(batch.Status, time.Since(start))
	log.Printf("settlement: batch %d finished with status %s (%d processed, %d failed)",
		batch.ID, batch.Status, batch.ProcessedCount, batch.FailedCount)
}

// abort force-fails a batch from the recovery path, where the in-memory copy
// can no longer be trusted and is re-read from the store.
func (p *Processor) abort(batchID uint, msg string) {
	batch, err := p.batches.GetByID(batchID)
	if err != nil {
		log.Printf("settlement: cannot load batch %d to mark failed: %v", batchID, err)
		return
	}
	finished := time.Now().UTC()
	batch.Status = models.BatchStatusFailed
	batch.ErrorMessage = msg
	batch.CompletedAt = &finished
	if err := p.batches.Update(batch); err != nil {
		log.Printf("settlement: cannot mark batch %d failed: %v", batchID, err)
	}
}

func (p *Processor) process(ctx context.Context, batch *models.SettlementBatch, actor string) error {
	selected, err := p.batches.ListCandidatesByStatus(batch.ID, models.CandidateStatusSelected)
	if err != nil {
		return fmt.Errorf("failed to load selected candidates: %w", err)
	}

	for i := range selected {
		candidate := &selected[i]

		candidate.Status = models.CandidateStatusProcessing
		if err := p.batches.UpdateCandidate(candidate); err != nil {
			return fmt.Errorf("failed to mark candidate %d processing: %w", candidate.ID, err)
		}

		// The executor never lets a candidate failure escape as an
		// error; the loop always advances to the next sibling.
		result := p.executor.SettleOne(ctx, batch.MerchantID, batch.ID, candidate.VendorTxKey, actor)

		processedAt := time.Now().UTC()
		candidate.ProcessedAt = &processedAt
		if result.Failed() {
			candidate.Status = models.CandidateStatusFailed
			candidate.FailureReason = result.Reason
		} else {
			candidate.Status = models.CandidateStatusCompleted
			candidate.FailureReason = ""
			if result.Outcome == OutcomeOK {
				candidate.Fee = result.Fee
				candidate.NetAmount = result.NetAmount
			}
		}
		if err := p.batches.UpdateCandidate(candidate); err != nil {
			return fmt.Errorf("failed to persist candidate %d outcome: %w", candidate.ID, err)
		}
	}

	return p.finalize(batch)
}

// finalize recounts all candidates (resume runs include previously completed
// ones) and computes the terminal batch status.
func (p *Processor) finalize(batch *models.SettlementBatch) error {
	all, err := p.batches.ListCandidates(batch.ID)
	if err != nil {
		return fmt.Errorf("failed to load candidates for finalization: %w", err)
	}

	var completed, failed int
	for i := range all {
		switch all[i].Status {
		case models.CandidateStatusCompleted:
			completed++
		case models.CandidateStatusFailed:
			failed++
		}
	}

	finished := time.Now().UTC()
	batch.ProcessedCount = completed
	batch.FailedCount = failed
	batch.CandidateCount = len(all)
	batch.CompletedAt = &finished
	batch.Status = finalStatus(len(all), completed, failed)
	return p.batches.Update(batch)
}

// finalStatus implements the three-way completion rule shared with franchise
// batches: everything succeeded (or nothing to do) is COMPLETED, nothing
// succeeded with at least one failure is FAILED, a mix is
// PARTIALLY_COMPLETED.
func finalStatus(total, completed, failed int) string {
	switch {
	case total == 0 || failed == 0:
		return models.BatchStatusCompleted
	case completed == 0:
		return models.BatchStatusFailed
	default:
		return models.BatchStatusPartiallyCompleted
	}
}
