package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReorderRule is replenishment policy owned by planning. Movements never write it.
// A nil LocationId applies the rule to the product across all warehouses.
type ReorderRule struct {
	ID           int             `gorm:"primary_key" json:"id"`
	TenantId     string          `gorm:"size:64;not null;index:idx_reorder_rule_product,priority:1" json:"tenant_id"`
	ProductId    int             `gorm:"not null;index:idx_reorder_rule_product,priority:2" json:"product_id"`
	LocationId   *int            `json:"location_id"`
	ReorderPoint decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"reorder_point"`
	MinQty       decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"min_qty"`
	MaxQty       decimal.Decimal `gorm:"type:decimal(28,8);default:0" json:"max_qty"`
	LeadTimeDays int             `gorm:"default:0" json:"lead_time_days"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *ReorderRule) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

// AppliesTo reports whether the rule covers warehouseId; nil matches every warehouse filter.
func (r *ReorderRule) AppliesTo(warehouseId *int) bool {
	if warehouseId == nil || r.LocationId == nil {
		return true
	}
	return *r.LocationId == *warehouseId
}

func (r *ReorderRule) Clone() *ReorderRule {
	c := *r
	if r.LocationId != nil {
		v := *r.LocationId
		c.LocationId = &v
	}
	if r.IsActive != nil {
		v := *r.IsActive
		c.IsActive = &v
	}
	return &c
}
