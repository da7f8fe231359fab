package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

type ValuationQuery struct {
	WarehouseId *int `json:"warehouse_id,omitempty"`
	ProductId   *int `json:"product_id,omitempty"`
}

type ValuationLine struct {
	WarehouseId int             `json:"warehouse_id"`
	ProductId   int             `json:"product_id"`
	VariantId   int             `json:"variant_id"`
	OnHand      decimal.Decimal `json:"on_hand"`
	Reserved    decimal.Decimal `json:"reserved"`
	AverageCost decimal.Decimal `json:"average_cost"`
	Value       decimal.Decimal `json:"value"`
}

func (l *ValuationLine) GetCellValues() []interface{} {
	return []interface{}{l.WarehouseId, l.ProductId, l.VariantId, l.OnHand, l.Reserved, l.AverageCost, l.Value}
}

type ValuationReport struct {
	AsOf       time.Time        `json:"as_of"`
	Lines      []*ValuationLine `json:"lines"`
	TotalQty   decimal.Decimal  `json:"total_qty"`
	TotalValue decimal.Decimal  `json:"total_value"`
	// Heads are the valuation-ledger positions of costed products. They span every warehouse
	// of the product.
	Heads       []*models.ValuationHead `json:"heads"`
	LedgerValue decimal.Decimal         `json:"ledger_value"`
}

// ComputeValuation values every balance in scope at on hand x average cost and lists the
// valuation-ledger heads of the products involved.
func (a *Analytics) ComputeValuation(ctx context.Context, tenantId string, query ValuationQuery) (*ValuationReport, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	balances, err := a.reader.ScanBalances(ctx, models.BalanceQuery{TenantId: tenantId, WarehouseId: query.WarehouseId, ProductId: query.ProductId})
	if err != nil {
		return nil, err
	}
	heads, err := a.reader.ListValuationHeads(ctx, tenantId)
	if err != nil {
		return nil, err
	}

	report := &ValuationReport{AsOf: a.now().UTC(), TotalQty: decimal.Zero, TotalValue: decimal.Zero, LedgerValue: decimal.Zero}
	products := map[int]bool{}
	for _, b := range balances {
		line := &ValuationLine{
			WarehouseId: b.WarehouseId,
			ProductId:   b.ProductId,
			VariantId:   b.VariantId,
			OnHand:      b.QuantityOnHand,
			Reserved:    b.QuantityReserved,
			AverageCost: b.AverageCost,
			Value:       b.Value(),
		}
		report.Lines = append(report.Lines, line)
		report.TotalQty = utils.Add(report.TotalQty, line.OnHand)
		report.TotalValue = utils.Add(report.TotalValue, line.Value)
		products[b.ProductId] = true
	}
	for _, h := range heads {
		if !products[h.ProductId] {
			continue
		}
		report.Heads = append(report.Heads, h)
		report.LedgerValue = utils.Add(report.LedgerValue, h.RunningBalanceValue)
	}
	return report, nil
}
