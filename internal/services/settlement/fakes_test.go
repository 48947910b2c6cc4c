package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"payops/internal/models"
	"payops/internal/repositories"

	"github.com/shopspring/decimal"
)

// In-memory repository fakes mirroring the gorm implementations closely
// enough to exercise the executor, processor and batch manager end to end
// without a database.

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
		if mid != "" && tid != "" && d.MID == mid && d.TID == tid {
			return d, nil
		}
	}
	for _, d := range s.devices {
		if mid != "" && d.MID == mid {
			return d, nil
		}
	}
	for _, d := range s.devices {
		if tid != "" && d.TID == tid {
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

func rateKey(schemeID uint, cardName string) string {
	return fmt.Sprintf("%d/%s", schemeID, cardName)
}

func (s *memPricing) FindSchemeAssignment(distributionID uint) (*models.SchemeAssignment, error) {
	a, ok := s.assignments[distributionID]
	if !ok {
		return nil, repositories.ErrSchemeNotFound
	}
	return a, nil
}

func (s *memPricing) FindCardRate(schemeID uint, cardName string) (*models.CardRate, error) {
	r, ok := s.rates[rateKey(schemeID, cardName)]
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
	midSet := make(map[string]bool, len(mids))
	for _, m := range mids {
		midSet[m] = true
	}
	tidSet := make(map[string]bool, len(tids))
	for _, t := range tids {
		tidSet[t] = true
	}

	var out []models.VendorTransaction
	for _, tx := range s.txs {
		if tx.Settled {
			continue
		}
		if tx.TransactionDate.Before(from) || tx.TransactionDate.After(to) {
			continue
		}
		if !midSet[tx.MID] && !tidSet[tx.TID] {
			continue
		}
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.Before(out[j].TransactionDate) })
	return out, nil
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
	if stored.Settled {
		return fmt.Errorf("vendor transaction %s already settled", tx.ExternalRef)
	}
	now := time.Now().UTC()
	stored.Settled = true
	stored.SettledAt = &now
	stored.SettlementBatchID = &batchID
	tx.Settled = true
	tx.SettledAt = &now
	tx.SettlementBatchID = &batchID
	return nil
}

type memWallets struct {
	wallets map[string]*models.Wallet
	entries map[string]*models.LedgerEntry
	nextID  uint
}

func newMemWallets() *memWallets {
	return &memWallets{
		wallets: make(map[string]*models.Wallet),
		entries: make(map[string]*models.LedgerEntry),
	}
}

func walletKey(ownerID uint, ownerType string) string {
	return fmt.Sprintf("%d/%s", ownerID, ownerType)
}

func ledgerKey(ownerID uint, ownerType, vendorTxKey string) string {
	return fmt.Sprintf("%d/%s/%s", ownerID, ownerType, vendorTxKey)
}

func (s *memWallets) GetByOwner(ownerID uint, ownerType string) (*models.Wallet, error) {
	w, ok := s.wallets[walletKey(ownerID, ownerType)]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	return w, nil
}

func (s *memWallets) LockByOwner(ownerID uint, ownerType string) (*models.Wallet, error) {
	key := walletKey(ownerID, ownerType)
	if w, ok := s.wallets[key]; ok {
		return w, nil
	}
	s.nextID++
	w := &models.Wallet{
		ID:               s.nextID,
		OwnerID:          ownerID,
		OwnerType:        ownerType,
		AvailableBalance: decimal.Zero,
		TotalCredited:    decimal.Zero,
		TotalFees:        decimal.Zero,
	}
	s.wallets[key] = w
	return w, nil
}

func (s *memWallets) ApplyMovement(wallet *models.Wallet, net, fee decimal.Decimal) error {
	now := time.Now().UTC()
	wallet.AvailableBalance = wallet.AvailableBalance.Add(net)
	wallet.LastMovementAmount = net
	wallet.LastMovementAt = &now
	wallet.TotalCredited = wallet.TotalCredited.Add(net)
	wallet.TotalFees = wallet.TotalFees.Add(fee)
	wallet.EntryCount++
	wallet.Version++
	return nil
}

func (s *memWallets) FindLedgerEntry(ownerID uint, ownerType, vendorTxKey string) (*models.LedgerEntry, error) {
	e, ok := s.entries[ledgerKey(ownerID, ownerType, vendorTxKey)]
	if !ok {
		return nil, repositories.ErrLedgerEntryNotFound
	}
	return e, nil
}

func (s *memWallets) CreateLedgerEntry(entry *models.LedgerEntry) error {
	key := ledgerKey(entry.OwnerID, entry.OwnerType, entry.VendorTxKey)
	if _, exists := s.entries[key]; exists {
		return fmt.Errorf("duplicate ledger entry %s", key)
	}
	s.nextID++
	entry.ID = s.nextID
	entry.CreatedAt = time.Now().UTC()
	s.entries[key] = entry
	return nil
}

func (s *memWallets) ListLedgerEntries(ownerID uint, ownerType string, limit, offset int) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.OwnerID == ownerID && e.OwnerType == ownerType {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
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
	if batch.Status == "" {
		batch.Status = models.BatchStatusDraft
	}
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
	var ids []uint
	for id := range s.batches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	for _, id := range ids {
		b := s.batches[id]
		if b.MerchantID != merchantID || b.CycleKey != cycleKey {
			continue
		}
		if productID != nil && (b.ProductID == nil || *b.ProductID != *productID) {
			continue
		}
		switch b.Status {
		case models.BatchStatusDraft, models.BatchStatusOpen, models.BatchStatusProcessing:
			copied := *b
			return &copied, nil
		}
	}
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

// memUnitOfWork executes against a fixed registry; the fakes have no
// rollback, which the tests account for. Executions are serialized the way
// row locks serialize transactions touching the same wallet.
type memUnitOfWork struct {
	registry *repositories.Registry
	mu       sync.Mutex
}

func (u *memUnitOfWork) Execute(ctx context.Context, fn func(r *repositories.Registry) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(u.registry)
}

// inlineScheduler runs submitted jobs synchronously on the caller's
// goroutine so tests observe completed state without sleeping.
type inlineScheduler struct {
	rejected bool
	jobs     int
}

func (s *inlineScheduler) Submit(job func()) bool {
	if s.rejected {
		return false
	}
	s.jobs++
	job()
	return true
}

// recordingRunner captures Run invocations for batch manager tests.
type recordingRunner struct {
	runs []uint
}

func (r *recordingRunner) Run(ctx context.Context, batchID uint, actor string) {
	r.runs = append(r.runs, batchID)
}

// scriptedSettler maps vendor tx keys to fixed results for processor tests.
type scriptedSettler struct {
	results map[string]Result
	calls   []string
}

func (s *scriptedSettler) SettleOne(ctx context.Context, merchantID, batchID uint, vendorTxKey, actor string) Result {
	s.calls = append(s.calls, vendorTxKey)
	if r, ok := s.results[vendorTxKey]; ok {
		r.VendorTxKey = vendorTxKey
		return r
	}
	return Result{VendorTxKey: vendorTxKey, Outcome: OutcomeOK}
}
