package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

// BalanceKey identifies one balance row. VariantId 0 means the product has no variant.
type BalanceKey struct {
	TenantId    string
	WarehouseId int
	ProductId   int
	VariantId   int
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", k.TenantId, k.WarehouseId, k.ProductId, k.VariantId)
}

// LockName is the name used for the optional distributed lock of the key.
func (k BalanceKey) LockName() string {
	return "lock:stock:" + k.String()
}

// Less orders keys for multi-row locking by tenant, warehouse, product and variant.
func (k BalanceKey) Less(o BalanceKey) bool {
	if k.TenantId != o.TenantId {
		return k.TenantId < o.TenantId
	}
	if k.WarehouseId != o.WarehouseId {
		return k.WarehouseId < o.WarehouseId
	}
	if k.ProductId != o.ProductId {
		return k.ProductId < o.ProductId
	}
	return k.VariantId < o.VariantId
}

func (k BalanceKey) Validate() error {
	if k.TenantId == "" {
		return NewValidationError("TenantId", "required")
	}
	if k.WarehouseId <= 0 {
		return NewValidationError("WarehouseId", "must be positive")
	}
	if k.ProductId <= 0 {
		return NewValidationError("ProductId", "must be positive")
	}
	if k.VariantId < 0 {
		return NewValidationError("VariantId", "must not be negative")
	}
	return nil
}

// StockBalance is the materialized on-hand/reserved snapshot of one key.
// It is rebuildable from the stock ledger.
type StockBalance struct {
	ID               int             `gorm:"primary_key" json:"id"`
	TenantId         string          `gorm:"size:64;not null;uniqueIndex:idx_stock_balance_key,priority:1" json:"tenant_id"`
	WarehouseId      int             `gorm:"not null;uniqueIndex:idx_stock_balance_key,priority:2" json:"warehouse_id"`
	ProductId        int             `gorm:"not null;uniqueIndex:idx_stock_balance_key,priority:3" json:"product_id"`
	VariantId        int             `gorm:"not null;default:0;uniqueIndex:idx_stock_balance_key,priority:4" json:"variant_id"`
	QuantityOnHand   decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"quantity_on_hand"`
	QuantityReserved decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"quantity_reserved"`
	AverageCost      decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"average_cost"`
	LedgerSequence   int             `gorm:"not null;default:0" json:"ledger_sequence"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewStockBalance(key BalanceKey) *StockBalance {
	return &StockBalance{
		TenantId:         key.TenantId,
		WarehouseId:      key.WarehouseId,
		ProductId:        key.ProductId,
		VariantId:        key.VariantId,
		QuantityOnHand:   decimal.Zero,
		QuantityReserved: decimal.Zero,
		AverageCost:      decimal.Zero,
	}
}

func (b *StockBalance) Key() BalanceKey {
	return BalanceKey{TenantId: b.TenantId, WarehouseId: b.WarehouseId, ProductId: b.ProductId, VariantId: b.VariantId}
}

// Available is on-hand minus reserved.
func (b *StockBalance) Available() decimal.Decimal {
	return utils.Sub(b.QuantityOnHand, b.QuantityReserved)
}

// Value is on-hand valued at the running average cost.
func (b *StockBalance) Value() decimal.Decimal {
	return utils.Mul(b.QuantityOnHand, b.AverageCost)
}

// CheckInvariants verifies 0 <= reserved <= on_hand and a non-negative average cost.
func (b *StockBalance) CheckInvariants() error {
	if b.QuantityReserved.IsNegative() {
		return fmt.Errorf("balance %s: reserved %s is negative", b.Key(), b.QuantityReserved)
	}
	if b.QuantityReserved.GreaterThan(b.QuantityOnHand) {
		return fmt.Errorf("balance %s: reserved %s exceeds on hand %s", b.Key(), b.QuantityReserved, b.QuantityOnHand)
	}
	if b.AverageCost.IsNegative() {
		return fmt.Errorf("balance %s: average cost %s is negative", b.Key(), b.AverageCost)
	}
	return nil
}

// Clone returns a detached copy; stores hand out clones so callers never alias cached rows.
func (b *StockBalance) Clone() *StockBalance {
	c := *b
	return &c
}
