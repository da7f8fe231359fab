package reports

import (
	"context"
	"slices"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

type AbcQuery struct {
	WarehouseId *int `json:"warehouse_id,omitempty"`
	Period
}

type AbcItem struct {
	ProductId        int             `json:"product_id"`
	ConsumptionValue decimal.Decimal `json:"consumption_value"`
	Share            decimal.Decimal `json:"share"`
	CumulativeShare  decimal.Decimal `json:"cumulative_share"`
	Class            models.AbcClass `json:"class"`
}

func (i *AbcItem) GetCellValues() []interface{} {
	return []interface{}{i.ProductId, i.ConsumptionValue, i.Share, i.CumulativeShare, string(i.Class)}
}

type AbcReport struct {
	Period     Period                  `json:"period"`
	ThresholdA decimal.Decimal         `json:"threshold_a"`
	ThresholdB decimal.Decimal         `json:"threshold_b"`
	TotalValue decimal.Decimal         `json:"total_value"`
	Items      []*AbcItem              `json:"items"`
	Counts     map[models.AbcClass]int `json:"counts"`
}

// ComputeAbcAnalysis ranks products by the value of their issues in the period. A product is
// class A while the cumulative share before it is below ThresholdA, B while it is below
// ThresholdA+ThresholdB, C otherwise. Products with balances in scope but no issues are C.
func (a *Analytics) ComputeAbcAnalysis(ctx context.Context, tenantId string, query AbcQuery) (*AbcReport, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if err := query.Period.validate(); err != nil {
		return nil, err
	}
	return cachedReport(ctx, a, "abc_analysis", tenantId, query, func() (*AbcReport, error) {
		return a.computeAbc(ctx, tenantId, query)
	})
}

func (a *Analytics) computeAbc(ctx context.Context, tenantId string, query AbcQuery) (*AbcReport, error) {
	from, to := query.From, query.To
	issues, err := a.reader.ScanLedgerEntries(ctx, models.LedgerScan{
		TenantId:    tenantId,
		WarehouseId: query.WarehouseId,
		Types:       []models.LedgerEntryType{models.LedgerEntryTypeIssue},
		From:        &from,
		To:          &to,
	})
	if err != nil {
		return nil, err
	}
	balances, err := a.reader.ScanBalances(ctx, models.BalanceQuery{TenantId: tenantId, WarehouseId: query.WarehouseId})
	if err != nil {
		return nil, err
	}

	values := map[int]decimal.Decimal{}
	for _, b := range balances {
		if _, ok := values[b.ProductId]; !ok {
			values[b.ProductId] = decimal.Zero
		}
	}
	total := decimal.Zero
	for _, e := range issues {
		v := utils.Mul(e.Qty, e.UnitCost)
		values[e.ProductId] = utils.Add(values[e.ProductId], v)
		total = utils.Add(total, v)
	}

	items := make([]*AbcItem, 0, len(values))
	for productId, v := range values {
		items = append(items, &AbcItem{ProductId: productId, ConsumptionValue: v, Share: decimal.Zero, CumulativeShare: decimal.Zero})
	}
	slices.SortFunc(items, func(x, y *AbcItem) int {
		if c := y.ConsumptionValue.Cmp(x.ConsumptionValue); c != 0 {
			return c
		}
		return x.ProductId - y.ProductId
	})

	report := &AbcReport{
		Period:     query.Period,
		ThresholdA: a.settings.AbcThresholdA,
		ThresholdB: a.settings.AbcThresholdB,
		TotalValue: total,
		Items:      items,
		Counts:     map[models.AbcClass]int{models.AbcClassA: 0, models.AbcClassB: 0, models.AbcClassC: 0},
	}
	limitB := utils.Add(a.settings.AbcThresholdA, a.settings.AbcThresholdB)
	cumulative := decimal.Zero
	for _, item := range items {
		item.Class = models.AbcClassC
		if total.IsPositive() && item.ConsumptionValue.IsPositive() {
			share, err := utils.Div(item.ConsumptionValue, total)
			if err != nil {
				return nil, err
			}
			switch {
			case cumulative.LessThan(a.settings.AbcThresholdA):
				item.Class = models.AbcClassA
			case cumulative.LessThan(limitB):
				item.Class = models.AbcClassB
			}
			item.Share = share
			cumulative = utils.Add(cumulative, share)
			item.CumulativeShare = cumulative
		}
		report.Counts[item.Class]++
	}
	return report, nil
}
