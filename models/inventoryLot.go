package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryLot tracks a batch or serial unit of a lot-tracked product at one warehouse.
// Lots are never hard-deleted. A lot number is unique per warehouse, so a transferred lot keeps
// its number at the destination.
type InventoryLot struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TenantId        string          `gorm:"size:64;not null;uniqueIndex:idx_inventory_lot,priority:1" json:"tenant_id"`
	ProductId       int             `gorm:"not null;uniqueIndex:idx_inventory_lot,priority:2" json:"product_id"`
	WarehouseId     int             `gorm:"not null;uniqueIndex:idx_inventory_lot,priority:3" json:"warehouse_id"`
	VariantId       int             `gorm:"not null;default:0;uniqueIndex:idx_inventory_lot,priority:4" json:"variant_id"`
	LotNumber       string          `gorm:"size:100;not null;uniqueIndex:idx_inventory_lot,priority:5" json:"lot_number"`
	TrackingType    TrackingType    `gorm:"size:10;not null" json:"tracking_type"`
	Qty             decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"qty"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"unit_cost"`
	Status          LotStatus       `gorm:"size:10;not null;default:active" json:"status"`
	ManufactureDate *time.Time      `json:"manufacture_date"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (l *InventoryLot) Key() BalanceKey {
	return BalanceKey{TenantId: l.TenantId, WarehouseId: l.WarehouseId, ProductId: l.ProductId, VariantId: l.VariantId}
}

// AgeDate is the date FIFO allocation orders by: manufacture date, else creation time.
func (l *InventoryLot) AgeDate() time.Time {
	if l.ManufactureDate != nil {
		return *l.ManufactureDate
	}
	return l.CreatedAt
}

// OlderThan orders lots oldest first, ties broken by creation order.
func (l *InventoryLot) OlderThan(o *InventoryLot) bool {
	a, b := l.AgeDate(), o.AgeDate()
	if !a.Equal(b) {
		return a.Before(b)
	}
	return l.ID < o.ID
}

func (l *InventoryLot) IsAllocatable() bool {
	return l.Status == LotStatusActive && l.Qty.IsPositive() && !l.DeletedAt.Valid
}

func (l *InventoryLot) Clone() *InventoryLot {
	c := *l
	if l.ManufactureDate != nil {
		d := *l.ManufactureDate
		c.ManufactureDate = &d
	}
	if l.ExpiryDate != nil {
		d := *l.ExpiryDate
		c.ExpiryDate = &d
	}
	return &c
}

// LotAllocation is one slice of a FIFO allocation.
type LotAllocation struct {
	Lot      *InventoryLot   `json:"lot"`
	QtyTaken decimal.Decimal `json:"qty_taken"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}
