package reports

import (
	"context"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

var daysPerYear = decimal.NewFromInt(365)

type CarryingCostQuery struct {
	WarehouseId *int `json:"warehouse_id,omitempty"`
	ProductId   *int `json:"product_id,omitempty"`
	// Rate is the annual carrying rate; nil uses CARRYING_RATE.
	Rate *decimal.Decimal `json:"rate,omitempty"`
	Period
}

type CarryingCostItem struct {
	WarehouseId   int             `json:"warehouse_id"`
	ProductId     int             `json:"product_id"`
	VariantId     int             `json:"variant_id"`
	AverageOnHand decimal.Decimal `json:"average_on_hand"`
	AverageValue  decimal.Decimal `json:"average_value"`
	Cost          decimal.Decimal `json:"cost"`
}

func (i *CarryingCostItem) GetCellValues() []interface{} {
	return []interface{}{i.WarehouseId, i.ProductId, i.VariantId, i.AverageOnHand, i.AverageValue, i.Cost}
}

type CarryingCostReport struct {
	Period    Period              `json:"period"`
	Rate      decimal.Decimal     `json:"rate"`
	Days      decimal.Decimal     `json:"days"`
	Items     []*CarryingCostItem `json:"items"`
	TotalCost decimal.Decimal     `json:"total_cost"`
}

// ComputeCarryingCosts charges average on-hand value x rate x days/365 per balance key.
func (a *Analytics) ComputeCarryingCosts(ctx context.Context, tenantId string, query CarryingCostQuery) (*CarryingCostReport, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if err := query.Period.validate(); err != nil {
		return nil, err
	}
	if query.Rate == nil {
		rate := a.settings.CarryingRate
		query.Rate = &rate
	}
	if query.Rate.IsNegative() {
		return nil, models.NewValidationError("Rate", "must not be negative")
	}
	return cachedReport(ctx, a, "carrying_costs", tenantId, query, func() (*CarryingCostReport, error) {
		timelines, err := a.loadTimelines(ctx, tenantId, timelineScope{warehouseId: query.WarehouseId, productId: query.ProductId}, query.Period)
		if err != nil {
			return nil, err
		}
		days := query.Period.Days()
		report := &CarryingCostReport{Period: query.Period, Rate: *query.Rate, Days: days, TotalCost: decimal.Zero}
		for _, tl := range timelines {
			cost, err := utils.Div(utils.Mul(utils.Mul(tl.avgValue, *query.Rate), days), daysPerYear)
			if err != nil {
				return nil, err
			}
			report.Items = append(report.Items, &CarryingCostItem{
				WarehouseId:   tl.key.WarehouseId,
				ProductId:     tl.key.ProductId,
				VariantId:     tl.key.VariantId,
				AverageOnHand: tl.avgOnHand,
				AverageValue:  tl.avgValue,
				Cost:          cost,
			})
			report.TotalCost = utils.Add(report.TotalCost, cost)
		}
		return report, nil
	})
}
