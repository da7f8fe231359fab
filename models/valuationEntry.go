package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationEntry is an immutable monetary record paralleling a ledger entry for products
// with costing enabled. Running totals are per (tenant, product) across all warehouses.
type ValuationEntry struct {
	ID                  int                   `gorm:"primary_key" json:"id"`
	TenantId            string                `gorm:"size:64;not null;index:idx_valuation_product,priority:1" json:"tenant_id"`
	ProductId           int                   `gorm:"not null;index:idx_valuation_product,priority:2" json:"product_id"`
	WarehouseId         int                   `gorm:"not null" json:"warehouse_id"`
	MovementType        ValuationMovementType `gorm:"size:20;not null" json:"movement_type"`
	Qty                 decimal.Decimal       `gorm:"type:decimal(28,8);not null" json:"qty"`
	UnitCost            decimal.Decimal       `gorm:"type:decimal(28,8);not null" json:"unit_cost"`
	TotalValue          decimal.Decimal       `gorm:"type:decimal(28,8);not null" json:"total_value"`
	RunningBalanceQty   decimal.Decimal       `gorm:"type:decimal(28,8);not null" json:"running_balance_qty"`
	RunningBalanceValue decimal.Decimal       `gorm:"type:decimal(28,8);not null" json:"running_balance_value"`
	ValuationMethod     ValuationMethod       `gorm:"size:20;not null" json:"valuation_method"`
	LedgerEntryId       int                   `gorm:"index" json:"ledger_entry_id"`
	Reference           Reference             `gorm:"embedded" json:"reference"`
	CreatedAt           time.Time             `gorm:"not null;index:idx_valuation_product,priority:3" json:"created_at"`
}

func (e *ValuationEntry) Clone() *ValuationEntry {
	c := *e
	return &c
}

// ValuationHead carries the latest running totals of a product. Its row is locked to
// serialize valuation appends for the product across warehouses.
type ValuationHead struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	TenantId            string          `gorm:"size:64;not null;uniqueIndex:idx_valuation_head,priority:1" json:"tenant_id"`
	ProductId           int             `gorm:"not null;uniqueIndex:idx_valuation_head,priority:2" json:"product_id"`
	RunningBalanceQty   decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"running_balance_qty"`
	RunningBalanceValue decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"running_balance_value"`
	LastEntryId         int             `gorm:"default:0" json:"last_entry_id"`
	// LastEntryAt is the created_at of the latest entry; later entries never stamp earlier.
	LastEntryAt         *time.Time      `json:"last_entry_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewValuationHead(tenantId string, productId int) *ValuationHead {
	return &ValuationHead{
		TenantId:            tenantId,
		ProductId:           productId,
		RunningBalanceQty:   decimal.Zero,
		RunningBalanceValue: decimal.Zero,
	}
}

func (h *ValuationHead) Clone() *ValuationHead {
	c := *h
	if h.LastEntryAt != nil {
		t := *h.LastEntryAt
		c.LastEntryAt = &t
	}
	return &c
}
