// Package store persists stock balances, the stock and valuation ledgers, lots and the
// read-only planning data the engine consults.
package store

import (
	"context"

	"github.com/mmdatafocus/stockledger/models"
)

// Tx is one unit of work. Every lock taken through it is held until the enclosing
// WithinTx returns; writes become visible together on commit or not at all.
type Tx interface {
	// LockBalance returns the balance row of key, creating a zero row first if none exists,
	// and holds an exclusive lock on it until the transaction ends.
	LockBalance(ctx context.Context, key models.BalanceKey) (*models.StockBalance, error)
	SaveBalance(ctx context.Context, balance *models.StockBalance) error

	// AppendLedgerEntry assigns the entry id. The caller sets sequence and running balance
	// under the balance lock of the same key.
	AppendLedgerEntry(ctx context.Context, entry *models.StockLedgerEntry) error
	GetLedgerEntry(ctx context.Context, tenantId string, id int) (*models.StockLedgerEntry, error)
	ScanLedger(ctx context.Context, key models.BalanceKey) ([]*models.StockLedgerEntry, error)

	LockValuationHead(ctx context.Context, tenantId string, productId int) (*models.ValuationHead, error)
	SaveValuationHead(ctx context.Context, head *models.ValuationHead) error
	AppendValuationEntry(ctx context.Context, entry *models.ValuationEntry) error

	// FindLots returns matching lots oldest first.
	FindLots(ctx context.Context, query models.LotQuery) ([]*models.InventoryLot, error)
	FindLotByNumber(ctx context.Context, key models.BalanceKey, lotNumber string) (*models.InventoryLot, error)
	GetLot(ctx context.Context, tenantId string, id int) (*models.InventoryLot, error)
	SaveLot(ctx context.Context, lot *models.InventoryLot) error
}

// Reader is the lock-free read side used by listings and analytics.
type Reader interface {
	GetBalance(ctx context.Context, key models.BalanceKey) (*models.StockBalance, error)
	ListBalances(ctx context.Context, query models.BalanceQuery) (*models.Page[*models.StockBalance], error)
	ScanBalances(ctx context.Context, query models.BalanceQuery) ([]*models.StockBalance, error)
	ListLedgerEntries(ctx context.Context, query models.LedgerQuery) (*models.Page[*models.StockLedgerEntry], error)
	ScanLedgerEntries(ctx context.Context, scan models.LedgerScan) ([]*models.StockLedgerEntry, error)
	ScanValuationEntries(ctx context.Context, scan models.ValuationScan) ([]*models.ValuationEntry, error)
	ListValuationHeads(ctx context.Context, tenantId string) ([]*models.ValuationHead, error)
	ListLots(ctx context.Context, query models.LotQuery) ([]*models.InventoryLot, error)
	ListReorderRules(ctx context.Context, query models.ReorderRuleQuery) ([]*models.ReorderRule, error)
	ProductProfile(ctx context.Context, tenantId string, productId int) (*models.ProductProfile, error)
	ListBalanceKeys(ctx context.Context, tenantId string) ([]models.BalanceKey, error)
}

type Store interface {
	Reader

	// WithinTx runs fn in one transaction. A non-nil error from fn, a panic or a cancelled
	// ctx rolls everything back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	SaveReorderRule(ctx context.Context, rule *models.ReorderRule) error
	SaveProductProfile(ctx context.Context, profile *models.ProductProfile) error
}
