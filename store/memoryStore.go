package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mmdatafocus/stockledger/models"
)

type headKey struct {
	tenantId  string
	productId int
}

// MemoryStore keeps everything in process. Row locks are size-1 channel semaphores so that
// waiting honours both the caller's context and the lock timeout, the way a database lock
// wait does. Transaction writes are staged and applied under one mutex on commit.
type MemoryStore struct {
	mu         sync.Mutex
	balances   map[models.BalanceKey]*models.StockBalance
	ledger     []*models.StockLedgerEntry
	valuations []*models.ValuationEntry
	heads      map[headKey]*models.ValuationHead
	lots       map[int]*models.InventoryLot
	rules      map[int]*models.ReorderRule
	profiles   map[headKey]*models.ProductProfile
	locks      map[string]chan struct{}
	lastId     int

	lockTimeout time.Duration
	now         func() time.Time
}

type MemoryOption func(*MemoryStore)

func WithLockTimeout(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.lockTimeout = d }
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		balances:    map[models.BalanceKey]*models.StockBalance{},
		heads:       map[headKey]*models.ValuationHead{},
		lots:        map[int]*models.InventoryLot{},
		rules:       map[int]*models.ReorderRule{},
		profiles:    map[headKey]*models.ProductProfile{},
		locks:       map[string]chan struct{}{},
		lockTimeout: 30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) nextId() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastId++
	return s.lastId
}

func (s *MemoryStore) semaphore(name string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[name] = ch
	}
	return ch
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newMemoryTx(s)
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	store      *MemoryStore
	held       []string
	heldSet    map[string]bool
	balances   map[models.BalanceKey]*models.StockBalance
	ledger     []*models.StockLedgerEntry
	valuations []*models.ValuationEntry
	heads      map[headKey]*models.ValuationHead
	lots       map[int]*models.InventoryLot
}

func newMemoryTx(s *MemoryStore) *memoryTx {
	return &memoryTx{
		store:    s,
		heldSet:  map[string]bool{},
		balances: map[models.BalanceKey]*models.StockBalance{},
		heads:    map[headKey]*models.ValuationHead{},
		lots:     map[int]*models.InventoryLot{},
	}
}

func (tx *memoryTx) acquire(ctx context.Context, name string) error {
	if tx.heldSet[name] {
		return nil
	}
	ch := tx.store.semaphore(name)
	timer := time.NewTimer(tx.store.lockTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		tx.held = append(tx.held, name)
		tx.heldSet[name] = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &models.ContentionError{Resource: name, Err: fmt.Errorf("lock wait exceeded %s", tx.store.lockTimeout)}
	}
}

func (tx *memoryTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		<-tx.store.semaphore(tx.held[i])
	}
	tx.held = nil
	tx.heldSet = map[string]bool{}
}

func (tx *memoryTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, b := range tx.balances {
		b.UpdatedAt = now
		s.balances[key] = b
	}
	s.ledger = append(s.ledger, tx.ledger...)
	slices.SortFunc(s.ledger, func(a, b *models.StockLedgerEntry) int { return a.ID - b.ID })
	s.valuations = append(s.valuations, tx.valuations...)
	slices.SortFunc(s.valuations, func(a, b *models.ValuationEntry) int { return a.ID - b.ID })
	for key, h := range tx.heads {
		h.UpdatedAt = now
		s.heads[key] = h
	}
	for id, l := range tx.lots {
		l.UpdatedAt = now
		s.lots[id] = l
	}
}

func balanceLockName(key models.BalanceKey) string {
	return "balance:" + key.String()
}

func headLockName(tenantId string, productId int) string {
	return fmt.Sprintf("valuation:%s:%d", tenantId, productId)
}

func (tx *memoryTx) LockBalance(ctx context.Context, key models.BalanceKey) (*models.StockBalance, error) {
	if err := tx.acquire(ctx, balanceLockName(key)); err != nil {
		return nil, err
	}
	if b, ok := tx.balances[key]; ok {
		return b.Clone(), nil
	}
	s := tx.store
	s.mu.Lock()
	b, ok := s.balances[key]
	s.mu.Unlock()
	if ok {
		return b.Clone(), nil
	}
	created := models.NewStockBalance(key)
	created.ID = s.nextId()
	created.CreatedAt = s.now()
	tx.balances[key] = created
	return created.Clone(), nil
}

func (tx *memoryTx) SaveBalance(ctx context.Context, balance *models.StockBalance) error {
	key := balance.Key()
	if !tx.heldSet[balanceLockName(key)] {
		return fmt.Errorf("save balance %s without holding its lock", key)
	}
	if err := balance.CheckInvariants(); err != nil {
		return err
	}
	tx.balances[key] = balance.Clone()
	return nil
}

func (tx *memoryTx) AppendLedgerEntry(ctx context.Context, entry *models.StockLedgerEntry) error {
	if entry.ID != 0 {
		return fmt.Errorf("ledger entry %d already persisted", entry.ID)
	}
	entry.ID = tx.store.nextId()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = tx.store.now()
	}
	tx.ledger = append(tx.ledger, entry.Clone())
	return nil
}

func (tx *memoryTx) GetLedgerEntry(ctx context.Context, tenantId string, id int) (*models.StockLedgerEntry, error) {
	for _, e := range tx.ledger {
		if e.ID == id && e.TenantId == tenantId {
			return e.Clone(), nil
		}
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.ledger {
		if e.ID == id && e.TenantId == tenantId {
			return e.Clone(), nil
		}
	}
	return nil, models.NewNotFoundError("stock ledger entry", id)
}

func (tx *memoryTx) ScanLedger(ctx context.Context, key models.BalanceKey) ([]*models.StockLedgerEntry, error) {
	scan := models.ScanKey(key)
	result, err := tx.store.ScanLedgerEntries(ctx, scan)
	if err != nil {
		return nil, err
	}
	for _, e := range tx.ledger {
		if scan.Matches(e) {
			result = append(result, e.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *models.StockLedgerEntry) int { return a.ID - b.ID })
	return result, nil
}

func (tx *memoryTx) LockValuationHead(ctx context.Context, tenantId string, productId int) (*models.ValuationHead, error) {
	if err := tx.acquire(ctx, headLockName(tenantId, productId)); err != nil {
		return nil, err
	}
	hk := headKey{tenantId, productId}
	if h, ok := tx.heads[hk]; ok {
		return h.Clone(), nil
	}
	s := tx.store
	s.mu.Lock()
	h, ok := s.heads[hk]
	s.mu.Unlock()
	if ok {
		return h.Clone(), nil
	}
	created := models.NewValuationHead(tenantId, productId)
	created.ID = s.nextId()
	tx.heads[hk] = created
	return created.Clone(), nil
}

func (tx *memoryTx) SaveValuationHead(ctx context.Context, head *models.ValuationHead) error {
	if !tx.heldSet[headLockName(head.TenantId, head.ProductId)] {
		return fmt.Errorf("save valuation head %s:%d without holding its lock", head.TenantId, head.ProductId)
	}
	tx.heads[headKey{head.TenantId, head.ProductId}] = head.Clone()
	return nil
}

func (tx *memoryTx) AppendValuationEntry(ctx context.Context, entry *models.ValuationEntry) error {
	if entry.ID != 0 {
		return fmt.Errorf("valuation entry %d already persisted", entry.ID)
	}
	entry.ID = tx.store.nextId()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = tx.store.now()
	}
	tx.valuations = append(tx.valuations, entry.Clone())
	return nil
}

// visibleLots overlays staged lots on the committed ones.
func (tx *memoryTx) visibleLots() []*models.InventoryLot {
	s := tx.store
	s.mu.Lock()
	merged := make(map[int]*models.InventoryLot, len(s.lots)+len(tx.lots))
	for id, l := range s.lots {
		merged[id] = l
	}
	s.mu.Unlock()
	for id, l := range tx.lots {
		merged[id] = l
	}
	result := make([]*models.InventoryLot, 0, len(merged))
	for _, l := range merged {
		result = append(result, l.Clone())
	}
	return result
}

func (tx *memoryTx) FindLots(ctx context.Context, query models.LotQuery) ([]*models.InventoryLot, error) {
	var result []*models.InventoryLot
	for _, l := range tx.visibleLots() {
		if query.Matches(l) {
			result = append(result, l)
		}
	}
	sortLots(result)
	return result, nil
}

func (tx *memoryTx) FindLotByNumber(ctx context.Context, key models.BalanceKey, lotNumber string) (*models.InventoryLot, error) {
	query := models.KeyLots(key)
	query.LotNumber = lotNumber
	query.IncludeEmpty = true
	lots, err := tx.FindLots(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, models.NewNotFoundError("inventory lot", lotNumber)
	}
	return lots[0], nil
}

func (tx *memoryTx) GetLot(ctx context.Context, tenantId string, id int) (*models.InventoryLot, error) {
	for _, l := range tx.visibleLots() {
		if l.ID == id && l.TenantId == tenantId && !l.DeletedAt.Valid {
			return l, nil
		}
	}
	return nil, models.NewNotFoundError("inventory lot", id)
}

func (tx *memoryTx) SaveLot(ctx context.Context, lot *models.InventoryLot) error {
	if !tx.heldSet[balanceLockName(lot.Key())] {
		return fmt.Errorf("save lot %q without holding the lock of %s", lot.LotNumber, lot.Key())
	}
	if lot.ID == 0 {
		lot.ID = tx.store.nextId()
	}
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = tx.store.now()
	}
	tx.lots[lot.ID] = lot.Clone()
	return nil
}

func sortLots(lots []*models.InventoryLot) {
	slices.SortFunc(lots, func(a, b *models.InventoryLot) int {
		if a.OlderThan(b) {
			return -1
		}
		if b.OlderThan(a) {
			return 1
		}
		return 0
	})
}

func compareKeys(a, b models.BalanceKey) int {
	if a.Less(b) {
		return -1
	}
	if b.Less(a) {
		return 1
	}
	return 0
}

// Reader

func (s *MemoryStore) GetBalance(ctx context.Context, key models.BalanceKey) (*models.StockBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[key]
	if !ok {
		return nil, models.NewNotFoundError("stock balance", key)
	}
	return b.Clone(), nil
}

func (s *MemoryStore) ScanBalances(ctx context.Context, query models.BalanceQuery) ([]*models.StockBalance, error) {
	s.mu.Lock()
	var result []*models.StockBalance
	for _, b := range s.balances {
		if query.Matches(b) {
			result = append(result, b.Clone())
		}
	}
	s.mu.Unlock()
	slices.SortFunc(result, func(a, b *models.StockBalance) int { return compareKeys(a.Key(), b.Key()) })
	return result, nil
}

func (s *MemoryStore) ListBalances(ctx context.Context, query models.BalanceQuery) (*models.Page[*models.StockBalance], error) {
	all, err := s.ScanBalances(ctx, query)
	if err != nil {
		return nil, err
	}
	return models.Paginate(all, query.Page, query.PerPage), nil
}

func (s *MemoryStore) ListLedgerEntries(ctx context.Context, query models.LedgerQuery) (*models.Page[*models.StockLedgerEntry], error) {
	s.mu.Lock()
	var result []*models.StockLedgerEntry
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if query.Matches(s.ledger[i]) {
			result = append(result, s.ledger[i].Clone())
		}
	}
	s.mu.Unlock()
	return models.Paginate(result, query.Page, query.PerPage), nil
}

func (s *MemoryStore) ScanLedgerEntries(ctx context.Context, scan models.LedgerScan) ([]*models.StockLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.StockLedgerEntry
	for _, e := range s.ledger {
		if scan.Matches(e) {
			result = append(result, e.Clone())
		}
	}
	return result, nil
}

func (s *MemoryStore) ScanValuationEntries(ctx context.Context, scan models.ValuationScan) ([]*models.ValuationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.ValuationEntry
	for _, e := range s.valuations {
		if scan.Matches(e) {
			result = append(result, e.Clone())
		}
	}
	return result, nil
}

func (s *MemoryStore) ListValuationHeads(ctx context.Context, tenantId string) ([]*models.ValuationHead, error) {
	s.mu.Lock()
	var result []*models.ValuationHead
	for _, h := range s.heads {
		if h.TenantId == tenantId {
			result = append(result, h.Clone())
		}
	}
	s.mu.Unlock()
	slices.SortFunc(result, func(a, b *models.ValuationHead) int { return a.ProductId - b.ProductId })
	return result, nil
}

func (s *MemoryStore) ListLots(ctx context.Context, query models.LotQuery) ([]*models.InventoryLot, error) {
	s.mu.Lock()
	var result []*models.InventoryLot
	for _, l := range s.lots {
		if query.Matches(l) {
			result = append(result, l.Clone())
		}
	}
	s.mu.Unlock()
	sortLots(result)
	return result, nil
}

func (s *MemoryStore) ListReorderRules(ctx context.Context, query models.ReorderRuleQuery) ([]*models.ReorderRule, error) {
	s.mu.Lock()
	var result []*models.ReorderRule
	for _, r := range s.rules {
		if query.Matches(r) {
			result = append(result, r.Clone())
		}
	}
	s.mu.Unlock()
	slices.SortFunc(result, func(a, b *models.ReorderRule) int { return a.ID - b.ID })
	return result, nil
}

func (s *MemoryStore) ProductProfile(ctx context.Context, tenantId string, productId int) (*models.ProductProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[headKey{tenantId, productId}]; ok {
		return p.Clone(), nil
	}
	return models.DefaultProductProfile(tenantId, productId), nil
}

func (s *MemoryStore) ListBalanceKeys(ctx context.Context, tenantId string) ([]models.BalanceKey, error) {
	balances, err := s.ScanBalances(ctx, models.BalanceQuery{TenantId: tenantId})
	if err != nil {
		return nil, err
	}
	keys := make([]models.BalanceKey, 0, len(balances))
	for _, b := range balances {
		keys = append(keys, b.Key())
	}
	return keys, nil
}

func (s *MemoryStore) SaveReorderRule(ctx context.Context, rule *models.ReorderRule) error {
	if rule.ID == 0 {
		rule.ID = s.nextId()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule.Clone()
	return nil
}

func (s *MemoryStore) SaveProductProfile(ctx context.Context, profile *models.ProductProfile) error {
	if profile.ID == 0 {
		profile.ID = s.nextId()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[headKey{profile.TenantId, profile.ProductId}] = profile.Clone()
	return nil
}

var _ Store = (*MemoryStore)(nil)
