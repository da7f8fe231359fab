package reports

import (
	"context"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

type LowStockItem struct {
	RuleId       int             `json:"rule_id"`
	ProductId    int             `json:"product_id"`
	LocationId   *int            `json:"location_id"`
	OnHand       decimal.Decimal `json:"on_hand"`
	Reserved     decimal.Decimal `json:"reserved"`
	Available    decimal.Decimal `json:"available"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	SuggestedQty decimal.Decimal `json:"suggested_qty"`
	LeadTimeDays int             `json:"lead_time_days"`
}

func (i *LowStockItem) GetCellValues() []interface{} {
	var location interface{}
	if i.LocationId != nil {
		location = *i.LocationId
	}
	return []interface{}{i.RuleId, i.ProductId, location, i.OnHand, i.Reserved, i.Available, i.ReorderPoint, i.SuggestedQty, i.LeadTimeDays}
}

// suggestedOrderQty tops available stock up to MaxQty (or the reorder point when no maximum
// is set), ordering at least MinQty.
func suggestedOrderQty(rule *models.ReorderRule, available decimal.Decimal) decimal.Decimal {
	target := rule.ReorderPoint
	if rule.MaxQty.IsPositive() {
		target = rule.MaxQty
	}
	qty := utils.Sub(target, available)
	if qty.LessThan(rule.MinQty) {
		qty = rule.MinQty
	}
	if qty.IsNegative() {
		return decimal.Zero
	}
	return qty
}

// ComputeLowStock lists active reorder rules whose available quantity is at or below the
// reorder point. A rule without a location sums every warehouse in scope.
func (a *Analytics) ComputeLowStock(ctx context.Context, tenantId string, warehouseId *int) ([]*LowStockItem, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	rules, err := a.reader.ListReorderRules(ctx, models.ReorderRuleQuery{TenantId: tenantId, WarehouseId: warehouseId, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	var items []*LowStockItem
	for _, rule := range rules {
		scope := warehouseId
		if rule.LocationId != nil {
			scope = rule.LocationId
		}
		productId := rule.ProductId
		balances, err := a.reader.ScanBalances(ctx, models.BalanceQuery{TenantId: tenantId, WarehouseId: scope, ProductId: &productId})
		if err != nil {
			return nil, err
		}
		onHand, reserved := decimal.Zero, decimal.Zero
		for _, b := range balances {
			onHand = utils.Add(onHand, b.QuantityOnHand)
			reserved = utils.Add(reserved, b.QuantityReserved)
		}
		available := utils.Sub(onHand, reserved)
		if available.GreaterThan(rule.ReorderPoint) {
			continue
		}
		items = append(items, &LowStockItem{
			RuleId:       rule.ID,
			ProductId:    rule.ProductId,
			LocationId:   rule.LocationId,
			OnHand:       onHand,
			Reserved:     reserved,
			Available:    available,
			ReorderPoint: rule.ReorderPoint,
			SuggestedQty: suggestedOrderQty(rule, available),
			LeadTimeDays: rule.LeadTimeDays,
		})
	}
	return items, nil
}
