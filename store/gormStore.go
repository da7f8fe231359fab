package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/stockledger/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// GormStore is the MySQL store. Balance rows are locked with SELECT ... FOR UPDATE; an
// optional redislock front lock per key keeps competing instances off the row lock queue.
// The row lock stays authoritative.
type GormStore struct {
	db          *gorm.DB
	locker      *redislock.Client
	lockTimeout time.Duration
}

type GormOption func(*GormStore)

// WithRedisLock enables the distributed front lock. A nil client disables it.
func WithRedisLock(locker *redislock.Client) GormOption {
	return func(s *GormStore) { s.locker = locker }
}

func WithRowLockTimeout(d time.Duration) GormOption {
	return func(s *GormStore) { s.lockTimeout = d }
}

func NewGormStore(db *gorm.DB, opts ...GormOption) *GormStore {
	s := &GormStore{db: db, lockTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	gtx := &gormTx{store: s}
	defer gtx.releaseFrontLocks()
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		secs := int(s.lockTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		if err := db.Exec("SET SESSION innodb_lock_wait_timeout = ?", secs).Error; err != nil {
			return err
		}
		gtx.db = db
		return fn(gtx)
	})
	return mapError(err, "transaction")
}

// mapError turns driver lock failures into ContentionError and missing rows into NotFoundError.
func mapError(err error, resource string) error {
	if err == nil {
		return nil
	}
	var ce *models.ContentionError
	if errors.As(err, &ce) {
		return err
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return &models.ContentionError{Resource: resource, Err: err}
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, "")
	}
	return err
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}

type gormTx struct {
	store      *GormStore
	db         *gorm.DB
	frontLocks []*redislock.Lock
	frontHeld  map[string]bool
}

func (tx *gormTx) releaseFrontLocks() {
	for _, l := range tx.frontLocks {
		_ = l.Release(context.Background())
	}
	tx.frontLocks = nil
}

func (tx *gormTx) obtainFrontLock(ctx context.Context, name string) error {
	locker := tx.store.locker
	if locker == nil || tx.frontHeld[name] {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, tx.store.lockTimeout)
	defer cancel()
	lock, err := locker.Obtain(waitCtx, name, tx.store.lockTimeout+30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &models.ContentionError{Resource: name, Err: err}
	}
	if err != nil {
		return err
	}
	tx.frontLocks = append(tx.frontLocks, lock)
	if tx.frontHeld == nil {
		tx.frontHeld = map[string]bool{}
	}
	tx.frontHeld[name] = true
	return nil
}

func (tx *gormTx) locked() *gorm.DB {
	return tx.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (tx *gormTx) LockBalance(ctx context.Context, key models.BalanceKey) (*models.StockBalance, error) {
	if err := tx.obtainFrontLock(ctx, key.LockName()); err != nil {
		return nil, err
	}
	where := func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ? AND warehouse_id = ? AND product_id = ? AND variant_id = ?",
			key.TenantId, key.WarehouseId, key.ProductId, key.VariantId)
	}
	var balance models.StockBalance
	err := tx.locked().Scopes(where).Take(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mapError(err, "stock balance "+key.String())
	}
	// first access; a concurrent creator makes this a no-op
	fresh := models.NewStockBalance(key)
	if err := tx.db.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh).Error; err != nil && !isDuplicateEntry(err) {
		return nil, mapError(err, "stock balance "+key.String())
	}
	if err := tx.locked().Scopes(where).Take(&balance).Error; err != nil {
		return nil, mapError(err, "stock balance "+key.String())
	}
	return &balance, nil
}

func (tx *gormTx) SaveBalance(ctx context.Context, balance *models.StockBalance) error {
	if err := balance.CheckInvariants(); err != nil {
		return err
	}
	err := tx.db.Model(&models.StockBalance{}).Where("id = ?", balance.ID).Updates(map[string]interface{}{
		"quantity_on_hand":  balance.QuantityOnHand,
		"quantity_reserved": balance.QuantityReserved,
		"average_cost":      balance.AverageCost,
		"ledger_sequence":   balance.LedgerSequence,
	}).Error
	return mapError(err, "stock balance "+balance.Key().String())
}

func (tx *gormTx) AppendLedgerEntry(ctx context.Context, entry *models.StockLedgerEntry) error {
	if entry.ID != 0 {
		return fmt.Errorf("ledger entry %d already persisted", entry.ID)
	}
	return mapError(tx.db.Create(entry).Error, "stock ledger")
}

func (tx *gormTx) GetLedgerEntry(ctx context.Context, tenantId string, id int) (*models.StockLedgerEntry, error) {
	var entry models.StockLedgerEntry
	if err := tx.db.Where("tenant_id = ? AND id = ?", tenantId, id).Take(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("stock ledger entry", id)
		}
		return nil, mapError(err, "stock ledger")
	}
	return &entry, nil
}

func (tx *gormTx) ScanLedger(ctx context.Context, key models.BalanceKey) ([]*models.StockLedgerEntry, error) {
	return scanLedger(tx.db, models.ScanKey(key))
}

func (tx *gormTx) LockValuationHead(ctx context.Context, tenantId string, productId int) (*models.ValuationHead, error) {
	var head models.ValuationHead
	where := "tenant_id = ? AND product_id = ?"
	err := tx.locked().Where(where, tenantId, productId).Take(&head).Error
	if err == nil {
		return &head, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mapError(err, "valuation head")
	}
	fresh := models.NewValuationHead(tenantId, productId)
	if err := tx.db.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh).Error; err != nil && !isDuplicateEntry(err) {
		return nil, mapError(err, "valuation head")
	}
	if err := tx.locked().Where(where, tenantId, productId).Take(&head).Error; err != nil {
		return nil, mapError(err, "valuation head")
	}
	return &head, nil
}

func (tx *gormTx) SaveValuationHead(ctx context.Context, head *models.ValuationHead) error {
	err := tx.db.Model(&models.ValuationHead{}).Where("id = ?", head.ID).Updates(map[string]interface{}{
		"running_balance_qty":   head.RunningBalanceQty,
		"running_balance_value": head.RunningBalanceValue,
		"last_entry_id":         head.LastEntryId,
		"last_entry_at":         head.LastEntryAt,
	}).Error
	return mapError(err, "valuation head")
}

func (tx *gormTx) AppendValuationEntry(ctx context.Context, entry *models.ValuationEntry) error {
	if entry.ID != 0 {
		return fmt.Errorf("valuation entry %d already persisted", entry.ID)
	}
	return mapError(tx.db.Create(entry).Error, "valuation ledger")
}

func (tx *gormTx) FindLots(ctx context.Context, query models.LotQuery) ([]*models.InventoryLot, error) {
	return findLots(tx.db, query)
}

func (tx *gormTx) FindLotByNumber(ctx context.Context, key models.BalanceKey, lotNumber string) (*models.InventoryLot, error) {
	var lot models.InventoryLot
	err := tx.db.Where("tenant_id = ? AND warehouse_id = ? AND product_id = ? AND variant_id = ? AND lot_number = ?",
		key.TenantId, key.WarehouseId, key.ProductId, key.VariantId, lotNumber).Take(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("inventory lot", lotNumber)
	}
	if err != nil {
		return nil, mapError(err, "inventory lot")
	}
	return &lot, nil
}

func (tx *gormTx) GetLot(ctx context.Context, tenantId string, id int) (*models.InventoryLot, error) {
	var lot models.InventoryLot
	err := tx.db.Where("tenant_id = ? AND id = ?", tenantId, id).Take(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("inventory lot", id)
	}
	if err != nil {
		return nil, mapError(err, "inventory lot")
	}
	return &lot, nil
}

func (tx *gormTx) SaveLot(ctx context.Context, lot *models.InventoryLot) error {
	return mapError(tx.db.Save(lot).Error, "inventory lot "+lot.LotNumber)
}

func scanLedger(db *gorm.DB, scan models.LedgerScan) ([]*models.StockLedgerEntry, error) {
	q := db.Model(&models.StockLedgerEntry{}).Where("tenant_id = ?", scan.TenantId)
	if scan.WarehouseId != nil {
		q = q.Where("warehouse_id = ?", *scan.WarehouseId)
	}
	if scan.ProductId != nil {
		q = q.Where("product_id = ?", *scan.ProductId)
	}
	if scan.VariantId != nil {
		q = q.Where("variant_id = ?", *scan.VariantId)
	}
	if len(scan.Types) > 0 {
		q = q.Where("type IN ?", scan.Types)
	}
	if scan.From != nil {
		q = q.Where("created_at >= ?", *scan.From)
	}
	if scan.To != nil {
		q = q.Where("created_at < ?", *scan.To)
	}
	var entries []*models.StockLedgerEntry
	if err := q.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, mapError(err, "stock ledger")
	}
	return entries, nil
}

func findLots(db *gorm.DB, query models.LotQuery) ([]*models.InventoryLot, error) {
	q := db.Model(&models.InventoryLot{}).Where("tenant_id = ?", query.TenantId)
	if query.ProductId != nil {
		q = q.Where("product_id = ?", *query.ProductId)
	}
	if query.WarehouseId != nil {
		q = q.Where("warehouse_id = ?", *query.WarehouseId)
	}
	if query.VariantId != nil {
		q = q.Where("variant_id = ?", *query.VariantId)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.LotNumber != "" {
		q = q.Where("lot_number = ?", query.LotNumber)
	}
	if !query.IncludeEmpty {
		q = q.Where("qty > 0")
	}
	var lots []*models.InventoryLot
	err := q.Order("COALESCE(manufacture_date, created_at) ASC").Order("id ASC").Find(&lots).Error
	if err != nil {
		return nil, mapError(err, "inventory lot")
	}
	return lots, nil
}

// Reader

func (s *GormStore) GetBalance(ctx context.Context, key models.BalanceKey) (*models.StockBalance, error) {
	var balance models.StockBalance
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND warehouse_id = ? AND product_id = ? AND variant_id = ?",
		key.TenantId, key.WarehouseId, key.ProductId, key.VariantId).Take(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("stock balance", key)
	}
	if err != nil {
		return nil, mapError(err, "stock balance")
	}
	return &balance, nil
}

func (s *GormStore) balanceQuery(ctx context.Context, query models.BalanceQuery) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.StockBalance{}).Where("tenant_id = ?", query.TenantId)
	if query.WarehouseId != nil {
		q = q.Where("warehouse_id = ?", *query.WarehouseId)
	}
	if query.ProductId != nil {
		q = q.Where("product_id = ?", *query.ProductId)
	}
	return q
}

func (s *GormStore) ScanBalances(ctx context.Context, query models.BalanceQuery) ([]*models.StockBalance, error) {
	var balances []*models.StockBalance
	err := s.balanceQuery(ctx, query).Order("warehouse_id, product_id, variant_id").Find(&balances).Error
	if err != nil {
		return nil, mapError(err, "stock balance")
	}
	return balances, nil
}

func (s *GormStore) ListBalances(ctx context.Context, query models.BalanceQuery) (*models.Page[*models.StockBalance], error) {
	page, perPage := models.NormalizePaging(query.Page, query.PerPage)
	var total int64
	if err := s.balanceQuery(ctx, query).Count(&total).Error; err != nil {
		return nil, mapError(err, "stock balance")
	}
	var balances []*models.StockBalance
	err := s.balanceQuery(ctx, query).
		Order("warehouse_id, product_id, variant_id").
		Offset(models.Offset(page, perPage)).Limit(perPage).
		Find(&balances).Error
	if err != nil {
		return nil, mapError(err, "stock balance")
	}
	return models.NewPage(balances, page, perPage, total), nil
}

func (s *GormStore) ledgerQuery(ctx context.Context, query models.LedgerQuery) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.StockLedgerEntry{}).Where("tenant_id = ?", query.TenantId)
	if query.WarehouseId != nil {
		q = q.Where("warehouse_id = ?", *query.WarehouseId)
	}
	if query.ProductId != nil {
		q = q.Where("product_id = ?", *query.ProductId)
	}
	if query.VariantId != nil {
		q = q.Where("variant_id = ?", *query.VariantId)
	}
	if query.Type != nil {
		q = q.Where("type = ?", *query.Type)
	}
	if query.Reference != nil {
		q = q.Where("reference_type = ? AND reference_id = ?", query.Reference.Type, query.Reference.Id)
	}
	if query.From != nil {
		q = q.Where("created_at >= ?", *query.From)
	}
	if query.To != nil {
		q = q.Where("created_at < ?", *query.To)
	}
	return q
}

func (s *GormStore) ListLedgerEntries(ctx context.Context, query models.LedgerQuery) (*models.Page[*models.StockLedgerEntry], error) {
	page, perPage := models.NormalizePaging(query.Page, query.PerPage)
	var total int64
	if err := s.ledgerQuery(ctx, query).Count(&total).Error; err != nil {
		return nil, mapError(err, "stock ledger")
	}
	var entries []*models.StockLedgerEntry
	err := s.ledgerQuery(ctx, query).Order("id DESC").
		Offset(models.Offset(page, perPage)).Limit(perPage).
		Find(&entries).Error
	if err != nil {
		return nil, mapError(err, "stock ledger")
	}
	return models.NewPage(entries, page, perPage, total), nil
}

func (s *GormStore) ScanLedgerEntries(ctx context.Context, scan models.LedgerScan) ([]*models.StockLedgerEntry, error) {
	return scanLedger(s.db.WithContext(ctx), scan)
}

func (s *GormStore) ScanValuationEntries(ctx context.Context, scan models.ValuationScan) ([]*models.ValuationEntry, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", scan.TenantId)
	if scan.ProductId != nil {
		q = q.Where("product_id = ?", *scan.ProductId)
	}
	if scan.WarehouseId != nil {
		q = q.Where("warehouse_id = ?", *scan.WarehouseId)
	}
	if scan.From != nil {
		q = q.Where("created_at >= ?", *scan.From)
	}
	if scan.To != nil {
		q = q.Where("created_at < ?", *scan.To)
	}
	var entries []*models.ValuationEntry
	if err := q.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, mapError(err, "valuation ledger")
	}
	return entries, nil
}

func (s *GormStore) ListValuationHeads(ctx context.Context, tenantId string) ([]*models.ValuationHead, error) {
	var heads []*models.ValuationHead
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantId).Order("product_id").Find(&heads).Error
	if err != nil {
		return nil, mapError(err, "valuation head")
	}
	return heads, nil
}

func (s *GormStore) ListLots(ctx context.Context, query models.LotQuery) ([]*models.InventoryLot, error) {
	return findLots(s.db.WithContext(ctx), query)
}

func (s *GormStore) ListReorderRules(ctx context.Context, query models.ReorderRuleQuery) ([]*models.ReorderRule, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", query.TenantId)
	if query.ProductId != nil {
		q = q.Where("product_id = ?", *query.ProductId)
	}
	if query.WarehouseId != nil {
		q = q.Where("location_id IS NULL OR location_id = ?", *query.WarehouseId)
	}
	if query.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var rules []*models.ReorderRule
	if err := q.Order("id").Find(&rules).Error; err != nil {
		return nil, mapError(err, "reorder rule")
	}
	return rules, nil
}

func (s *GormStore) ProductProfile(ctx context.Context, tenantId string, productId int) (*models.ProductProfile, error) {
	var profile models.ProductProfile
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND product_id = ?", tenantId, productId).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultProductProfile(tenantId, productId), nil
	}
	if err != nil {
		return nil, mapError(err, "product profile")
	}
	return &profile, nil
}

func (s *GormStore) ListBalanceKeys(ctx context.Context, tenantId string) ([]models.BalanceKey, error) {
	var balances []*models.StockBalance
	err := s.db.WithContext(ctx).
		Select("tenant_id", "warehouse_id", "product_id", "variant_id").
		Where("tenant_id = ?", tenantId).
		Order("warehouse_id, product_id, variant_id").
		Find(&balances).Error
	if err != nil {
		return nil, mapError(err, "stock balance")
	}
	keys := make([]models.BalanceKey, 0, len(balances))
	for _, b := range balances {
		keys = append(keys, b.Key())
	}
	return keys, nil
}

func (s *GormStore) SaveReorderRule(ctx context.Context, rule *models.ReorderRule) error {
	return mapError(s.db.WithContext(ctx).Save(rule).Error, "reorder rule")
}

func (s *GormStore) SaveProductProfile(ctx context.Context, profile *models.ProductProfile) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"track_lots", "track_serials", "valuation_method", "costing_enabled", "updated_at"}),
	}).Create(profile).Error
	return mapError(err, "product profile")
}

var _ Store = (*GormStore)(nil)
