package franchise

import (
	"context"
	"fmt"
	"sort"
	"time"

	"payops/internal/models"
	"payops/internal/repositories"
	"payops/internal/services/settlement"
)

// In-memory repository fakes for coordinator tests. Merchant tasks are run
// with parallelism 1 so the fakes need no locking.

type memMerchants struct {
	merchants  map[uint]*models.Merchant
	franchises map[uint]*models.Franchise
}

func newMemMerchants() *memMerchants {
	return &memMerchants{
		merchants:  make(map[uint]*models.Merchant),
		franchises: make(map[uint]*models.Franchise),
	}
}

func (s *memMerchants) GetByID(id uint) (*models.Merchant, error) {
	m, ok := s.merchants[id]
	if !ok {
		return nil, repositories.ErrMerchantNotFound
	}
	return m, nil
}

func (s *memMerchants) GetFranchise(id uint) (*models.Franchise, error) {
	f, ok := s.franchises[id]
	if !ok {
		return nil, repositories.ErrFranchiseNotFound
	}
	return f, nil
}

func (s *memMerchants) ListByFranchise(franchiseID uint) ([]models.Merchant, error) {
	var out []models.Merchant
	for _, m := range s.merchants {
		if m.FranchiseID != nil && *m.FranchiseID == franchiseID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memMerchants) BelongsToFranchise(merchantID, franchiseID uint) (bool, error) {
	m, ok := s.merchants[merchantID]
	if !ok {
		return false, repositories.ErrMerchantNotFound
	}
	return m.FranchiseID != nil && *m.FranchiseID == franchiseID, nil
}

type memDevices struct {
	devices []*models.Device
}

func (s *memDevices) FindIdentifiers(merchantID uint, productID *uint) (*repositories.DeviceIdentifiers, error) {
	ids := &repositories.DeviceIdentifiers{}
	for _, d := range s.devices {
		if d.MerchantID != merchantID {
			continue
		}
		if productID != nil && d.ProductID != *productID {
			continue
		}
		if d.MID != "" {
			ids.MIDs = append(ids.MIDs, d.MID)
		}
		if d.TID != "" {
			ids.TIDs = append(ids.TIDs, d.TID)
		}
	}
	return ids, nil
}

func (s *memDevices) FindByIdentifiers(mid, tid string) (*models.Device, error) {
	for _, d := range s.devices {
		if d.MID == mid && d.TID == tid {
			return d, nil
		}
	}
	return nil, repositories.ErrDeviceNotFound
}

type memPricing struct {
	assignments map[uint]*models.SchemeAssignment
	rates       map[string]*models.CardRate
}

func newMemPricing() *memPricing {
	return &memPricing{
		assignments: make(map[uint]*models.SchemeAssignment),
		rates:       make(map[string]*models.CardRate),
	}
}

func (s *memPricing) FindSchemeAssignment(distributionID uint) (*models.SchemeAssignment, error) {
	a, ok := s.assignments[distributionID]
	if !ok {
		return nil, repositories.ErrSchemeNotFound
	}
	return a, nil
}

func (s *memPricing) FindCardRate(schemeID uint, cardName string) (*models.CardRate, error) {
	r, ok := s.rates[fmt.Sprintf("%d/%s", schemeID, cardName)]
	if !ok {
		return nil, repositories.ErrCardRateNotFound
	}
	return r, nil
}

type memVendorTxs struct {
	txs map[string]*models.VendorTransaction
}

func newMemVendorTxs() *memVendorTxs {
	return &memVendorTxs{txs: make(map[string]*models.VendorTransaction)}
}

func (s *memVendorTxs) GetByExternalRef(key string) (*models.VendorTransaction, error) {
	tx, ok := s.txs[key]
	if !ok {
		return nil, repositories.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *memVendorTxs) LockByExternalRef(key string) (*models.VendorTransaction, error) {
	return s.GetByExternalRef(key)
}

func (s *memVendorTxs) FindCandidates(from, to time.Time, mids, tids []string) ([]models.VendorTransaction, error) {
	return nil, nil
}

func (s *memVendorTxs) EarliestUnsettledDate(mids, tids []string) (*time.Time, error) {
	var earliest *time.Time
	for _, tx := range s.txs {
		if tx.Settled {
			continue
		}
		if earliest == nil || tx.TransactionDate.Before(*earliest) {
			d := tx.TransactionDate
			earliest = &d
		}
	}
	return earliest, nil
}

func (s *memVendorTxs) MarkSettled(tx *models.VendorTransaction, batchID uint) error {
	stored, ok := s.txs[tx.ExternalRef]
	if !ok {
		return repositories.ErrTransactionNotFound
	}
	now := time.Now().UTC()
	stored.Settled = true
	stored.SettledAt = &now
	stored.SettlementBatchID = &batchID
	return nil
}

type memBatches struct {
	batches    map[uint]*models.SettlementBatch
	candidates map[uint]*models.SettlementCandidate
	nextID     uint
}

func newMemBatches() *memBatches {
	return &memBatches{
		batches:    make(map[uint]*models.SettlementBatch),
		candidates: make(map[uint]*models.SettlementCandidate),
	}
}

func (s *memBatches) Create(batch *models.SettlementBatch) error {
	s.nextID++
	batch.ID = s.nextID
	copied := *batch
	s.batches[batch.ID] = &copied
	return nil
}

func (s *memBatches) GetByID(id uint) (*models.SettlementBatch, error) {
	b, ok := s.batches[id]
	if !ok {
		return nil, repositories.ErrBatchNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *memBatches) Update(batch *models.SettlementBatch) error {
	if _, ok := s.batches[batch.ID]; !ok {
		return repositories.ErrBatchNotFound
	}
	copied := *batch
	s.batches[batch.ID] = &copied
	return nil
}

func (s *memBatches) FindActive(merchantID uint, cycleKey string, productID *uint) (*models.SettlementBatch, error) {
	return nil, repositories.ErrBatchNotFound
}

func (s *memBatches) ReplaceCandidates(batchID uint, candidates []models.SettlementCandidate) error {
	for id, c := range s.candidates {
		if c.BatchID == batchID {
			delete(s.candidates, id)
		}
	}
	for i := range candidates {
		s.nextID++
		candidates[i].ID = s.nextID
		candidates[i].BatchID = batchID
		copied := candidates[i]
		s.candidates[copied.ID] = &copied
	}
	return nil
}

func (s *memBatches) ListCandidates(batchID uint) ([]models.SettlementCandidate, error) {
	var out []models.SettlementCandidate
	for _, c := range s.candidates {
		if c.BatchID == batchID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memBatches) ListCandidatesByStatus(batchID uint, status string) ([]models.SettlementCandidate, error) {
	all, _ := s.ListCandidates(batchID)
	var out []models.SettlementCandidate
	for _, c := range all {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memBatches) UpdateCandidate(candidate *models.SettlementCandidate) error {
	if _, ok := s.candidates[candidate.ID]; !ok {
		return repositories.ErrCandidateNotFound
	}
	copied := *candidate
	s.candidates[candidate.ID] = &copied
	return nil
}

func (s *memBatches) ResetFailedCandidates(batchID uint) (int64, error) {
	var n int64
	for _, c := range s.candidates {
		if c.BatchID == batchID && c.Status == models.CandidateStatusFailed {
			c.Status = models.CandidateStatusSelected
			c.FailureReason = ""
			n++
		}
	}
	return n, nil
}

type memFranchiseBatches struct {
	batches map[uint]*models.FranchiseBatch
	slots   map[uint]*models.FranchiseBatchMerchant
	nextID  uint
}

func newMemFranchiseBatches() *memFranchiseBatches {
	return &memFranchiseBatches{
		batches: make(map[uint]*models.FranchiseBatch),
		slots:   make(map[uint]*models.FranchiseBatchMerchant),
	}
}

func (s *memFranchiseBatches) Create(batch *models.FranchiseBatch, merchants []models.FranchiseBatchMerchant) error {
	s.nextID++
	batch.ID = s.nextID
	copied := *batch
	s.batches[batch.ID] = &copied
	for i := range merchants {
		s.nextID++
		merchants[i].ID = s.nextID
		merchants[i].FranchiseBatchID = batch.ID
		slot := merchants[i]
		s.slots[slot.ID] = &slot
	}
	return nil
}

func (s *memFranchiseBatches) GetByID(id uint) (*models.FranchiseBatch, error) {
	b, ok := s.batches[id]
	if !ok {
		return nil, repositories.ErrFranchiseBatchNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *memFranchiseBatches) Update(batch *models.FranchiseBatch) error {
	if _, ok := s.batches[batch.ID]; !ok {
		return repositories.ErrFranchiseBatchNotFound
	}
	copied := *batch
	s.batches[batch.ID] = &copied
	return nil
}

func (s *memFranchiseBatches) ListMerchants(franchiseBatchID uint) ([]models.FranchiseBatchMerchant, error) {
	var out []models.FranchiseBatchMerchant
	for _, slot := range s.slots {
		if slot.FranchiseBatchID == franchiseBatchID {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memFranchiseBatches) UpdateMerchant(slot *models.FranchiseBatchMerchant) error {
	if _, ok := s.slots[slot.ID]; !ok {
		return fmt.Errorf("franchise batch merchant %d not found", slot.ID)
	}
	copied := *slot
	s.slots[slot.ID] = &copied
	return nil
}

// inlineScheduler runs submitted jobs synchronously so the whole fan-out
// completes before ProcessWithCustomTransactions returns to the test.
type inlineScheduler struct {
	rejected bool
}

func (s *inlineScheduler) Submit(job func()) bool {
	if s.rejected {
		return false
	}
	job()
	return true
}

// scriptedSettler completes every candidate unless its key is marked failing.
type scriptedSettler struct {
	failing map[string]string
}

func (s *scriptedSettler) SettleOne(ctx context.Context, merchantID, batchID uint, vendorTxKey, actor string) settlement.Result {
	if reason, ok := s.failing[vendorTxKey]; ok {
		return settlement.Result{VendorTxKey: vendorTxKey, Outcome: settlement.OutcomeFailed, Reason: reason}
	}
	return settlement.Result{VendorTxKey: vendorTxKey, Outcome: settlement.OutcomeOK}
}
