package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

// keyTimeline is the on-hand history of one balance key folded over a period.
type keyTimeline struct {
	key           models.BalanceKey
	avgOnHand     decimal.Decimal
	avgValue      decimal.Decimal
	issued        decimal.Decimal
	issuedValue   decimal.Decimal
	closingOnHand decimal.Decimal
	closingValue  decimal.Decimal
}

// timelineScope narrows the keys folded into timelines.
type timelineScope struct {
	warehouseId *int
	productId   *int
}

// loadTimelines replays the ledger of every key in scope from its first entry up to
// period.To and integrates on-hand quantity and value over the period. Keys with a balance row
// but no history get an empty timeline.
func (a *Analytics) loadTimelines(ctx context.Context, tenantId string, scope timelineScope, period Period) ([]*keyTimeline, error) {
	to := period.To
	entries, err := a.reader.ScanLedgerEntries(ctx, models.LedgerScan{
		TenantId:    tenantId,
		WarehouseId: scope.warehouseId,
		ProductId:   scope.productId,
		To:          &to,
	})
	if err != nil {
		return nil, err
	}
	balances, err := a.reader.ScanBalances(ctx, models.BalanceQuery{TenantId: tenantId, WarehouseId: scope.warehouseId, ProductId: scope.productId})
	if err != nil {
		return nil, err
	}

	var order []models.BalanceKey
	byKey := map[models.BalanceKey][]*models.StockLedgerEntry{}
	for _, b := range balances {
		if _, ok := byKey[b.Key()]; !ok {
			byKey[b.Key()] = nil
			order = append(order, b.Key())
		}
	}
	for _, e := range entries {
		k := e.Key()
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], e)
	}

	timelines := make([]*keyTimeline, 0, len(order))
	for _, k := range order {
		tl, err := foldTimeline(k, byKey[k], period)
		if err != nil {
			return nil, err
		}
		timelines = append(timelines, tl)
	}
	return timelines, nil
}

// foldTimeline integrates the replayed on-hand level (and its value at the running average
// cost) over the period with one-second resolution. entries must be in id order.
func foldTimeline(key models.BalanceKey, entries []*models.StockLedgerEntry, period Period) (*keyTimeline, error) {
	replay := models.NewLedgerReplay()
	tl := &keyTimeline{key: key, issued: decimal.Zero, issuedValue: decimal.Zero}
	qtyArea, valueArea := decimal.Zero, decimal.Zero
	cursor := period.From

	advance := func(t time.Time) {
		if !t.After(cursor) {
			return
		}
		secs := decimal.NewFromInt(int64(t.Sub(cursor) / time.Second))
		qtyArea = utils.Add(qtyArea, utils.Mul(replay.OnHand, secs))
		valueArea = utils.Add(valueArea, utils.Mul(utils.Mul(replay.OnHand, replay.AverageCost), secs))
		cursor = t
	}

	for _, e := range entries {
		inPeriod := !e.CreatedAt.Before(period.From)
		if inPeriod {
			advance(e.CreatedAt)
		}
		if err := replay.Apply(e); err != nil {
			return nil, err
		}
		if inPeriod && e.Type == models.LedgerEntryTypeIssue {
			tl.issued = utils.Add(tl.issued, e.Qty)
			tl.issuedValue = utils.Add(tl.issuedValue, utils.Mul(e.Qty, e.UnitCost))
		}
	}
	advance(period.To)

	total := decimal.NewFromInt(period.seconds())
	var err error
	if tl.avgOnHand, err = utils.Div(qtyArea, total); err != nil {
		return nil, err
	}
	if tl.avgValue, err = utils.Div(valueArea, total); err != nil {
		return nil, err
	}
	tl.closingOnHand = replay.OnHand
	tl.closingValue = utils.Mul(replay.OnHand, replay.AverageCost)
	return tl, nil
}
