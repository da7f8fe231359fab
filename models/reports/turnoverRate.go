package reports

import (
	"context"

	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

type TurnoverQuery struct {
	WarehouseId *int `json:"warehouse_id,omitempty"`
	ProductId   *int `json:"product_id,omitempty"`
	Period
}

type TurnoverItem struct {
	WarehouseId   int             `json:"warehouse_id"`
	ProductId     int             `json:"product_id"`
	VariantId     int             `json:"variant_id"`
	Issued        decimal.Decimal `json:"issued"`
	AverageOnHand decimal.Decimal `json:"average_on_hand"`
	Rate          decimal.Decimal `json:"rate"`
	// Undefined marks a zero average on hand; Rate is then zero.
	Undefined bool `json:"undefined"`
}

func (i *TurnoverItem) GetCellValues() []interface{} {
	return []interface{}{i.WarehouseId, i.ProductId, i.VariantId, i.Issued, i.AverageOnHand, i.Rate, i.Undefined}
}

type TurnoverReport struct {
	Period        Period          `json:"period"`
	Items         []*TurnoverItem `json:"items"`
	Issued        decimal.Decimal `json:"issued"`
	AverageOnHand decimal.Decimal `json:"average_on_hand"`
	Rate          decimal.Decimal `json:"rate"`
	Undefined     bool            `json:"undefined"`
}

// turnover degrades to zero with undefined set when the average on hand is zero.
func turnover(issued, avgOnHand decimal.Decimal) (decimal.Decimal, bool) {
	if !avgOnHand.IsPositive() {
		return decimal.Zero, true
	}
	rate, err := utils.Div(issued, avgOnHand)
	if err != nil {
		return decimal.Zero, true
	}
	return rate, false
}

// ComputeTurnoverRate divides issued quantity by the time-weighted average on hand of the
// period, per balance key and overall.
func (a *Analytics) ComputeTurnoverRate(ctx context.Context, tenantId string, query TurnoverQuery) (*TurnoverReport, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if err := query.Period.validate(); err != nil {
		return nil, err
	}
	return cachedReport(ctx, a, "turnover_rate", tenantId, query, func() (*TurnoverReport, error) {
		timelines, err := a.loadTimelines(ctx, tenantId, timelineScope{warehouseId: query.WarehouseId, productId: query.ProductId}, query.Period)
		if err != nil {
			return nil, err
		}
		report := &TurnoverReport{Period: query.Period, Issued: decimal.Zero, AverageOnHand: decimal.Zero}
		for _, tl := range timelines {
			item := &TurnoverItem{
				WarehouseId:   tl.key.WarehouseId,
				ProductId:     tl.key.ProductId,
				VariantId:     tl.key.VariantId,
				Issued:        tl.issued,
				AverageOnHand: tl.avgOnHand,
			}
			item.Rate, item.Undefined = turnover(tl.issued, tl.avgOnHand)
			report.Items = append(report.Items, item)
			report.Issued = utils.Add(report.Issued, tl.issued)
			report.AverageOnHand = utils.Add(report.AverageOnHand, tl.avgOnHand)
		}
		report.Rate, report.Undefined = turnover(report.Issued, report.AverageOnHand)
		return report, nil
	})
}
