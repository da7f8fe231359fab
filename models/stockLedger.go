package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockLedgerEntry is one immutable quantity change. Corrections are new offsetting
// entries; there is no update or delete path.
type StockLedgerEntry struct {
	ID             int             `gorm:"primary_key" json:"id"`
	TenantId       string          `gorm:"size:64;not null;index:idx_stock_ledger_product,priority:1;index:idx_stock_ledger_key,priority:1" json:"tenant_id"`
	WarehouseId    int             `gorm:"not null;index:idx_stock_ledger_key,priority:3" json:"warehouse_id"`
	ProductId      int             `gorm:"not null;index:idx_stock_ledger_product,priority:2;index:idx_stock_ledger_key,priority:2" json:"product_id"`
	VariantId      int             `gorm:"not null;default:0;index:idx_stock_ledger_key,priority:4" json:"variant_id"`
	Sequence       int             `gorm:"not null;index:idx_stock_ledger_key,priority:5" json:"sequence"`
	Type           LedgerEntryType `gorm:"size:20;not null" json:"type"`
	Qty            decimal.Decimal `gorm:"type:decimal(28,8);not null" json:"qty"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"unit_cost"`
	RunningBalance decimal.Decimal `gorm:"type:decimal(28,8);not null" json:"running_balance"`
	Reference      Reference       `gorm:"embedded" json:"reference"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedBy      string          `gorm:"size:100" json:"created_by"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_stock_ledger_product,priority:3" json:"created_at"`
}

// SignedQty returns the quantity with the sign implied by the entry type.
func (e *StockLedgerEntry) SignedQty() decimal.Decimal {
	if e.Type.IsOutgoing() {
		return e.Qty.Neg()
	}
	return e.Qty
}

func (e *StockLedgerEntry) Key() BalanceKey {
	return BalanceKey{TenantId: e.TenantId, WarehouseId: e.WarehouseId, ProductId: e.ProductId, VariantId: e.VariantId}
}

func (e *StockLedgerEntry) Clone() *StockLedgerEntry {
	c := *e
	return &c
}
