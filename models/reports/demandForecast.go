package reports

import (
	"context"
	"slices"
	"time"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

type ForecastQuery struct {
	WarehouseId *int `json:"warehouse_id,omitempty"`
	ProductId   *int `json:"product_id,omitempty"`
	// Periods defaults to FORECAST_PERIODS.
	Periods    int `json:"periods"`
	PeriodDays int `json:"period_days"`
	// AsOf closes the most recent period; zero means now.
	AsOf time.Time `json:"as_of"`
}

type ForecastItem struct {
	ProductId int `json:"product_id"`
	// History holds issued quantity per period, oldest first.
	History        []decimal.Decimal `json:"history"`
	Forecast       decimal.Decimal   `json:"forecast"`
	DailyDemand    decimal.Decimal   `json:"daily_demand"`
	LeadTimeDays   int               `json:"lead_time_days"`
	LeadTimeDemand *decimal.Decimal  `json:"lead_time_demand,omitempty"`
}

func (i *ForecastItem) GetCellValues() []interface{} {
	var leadTimeDemand interface{}
	if i.LeadTimeDemand != nil {
		leadTimeDemand = *i.LeadTimeDemand
	}
	return []interface{}{i.ProductId, i.Forecast, i.DailyDemand, i.LeadTimeDays, leadTimeDemand}
}

type ForecastReport struct {
	Start      time.Time       `json:"start"`
	AsOf       time.Time       `json:"as_of"`
	Periods    int             `json:"periods"`
	PeriodDays int             `json:"period_days"`
	Items      []*ForecastItem `json:"items"`
}

// ComputeDemandForecast averages issued quantity over the last Periods windows of PeriodDays
// and projects the average one period forward. Products with an active reorder rule also get
// the demand expected during the rule's lead time.
func (a *Analytics) ComputeDemandForecast(ctx context.Context, tenantId string, query ForecastQuery) (*ForecastReport, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if query.Periods == 0 {
		query.Periods = a.settings.ForecastPeriods
	}
	if query.Periods <= 0 {
		return nil, models.NewValidationError("Periods", "must be greater than zero")
	}
	if query.PeriodDays <= 0 {
		return nil, models.NewValidationError("PeriodDays", "must be greater than zero")
	}
	if query.AsOf.IsZero() {
		query.AsOf = a.now()
	}
	query.AsOf = query.AsOf.UTC()
	return cachedReport(ctx, a, "demand_forecast", tenantId, query, func() (*ForecastReport, error) {
		return a.computeForecast(ctx, tenantId, query)
	})
}

func (a *Analytics) computeForecast(ctx context.Context, tenantId string, query ForecastQuery) (*ForecastReport, error) {
	span := time.Duration(query.PeriodDays) * 24 * time.Hour
	start := query.AsOf.Add(-span * time.Duration(query.Periods))
	asOf := query.AsOf
	issues, err := a.reader.ScanLedgerEntries(ctx, models.LedgerScan{
		TenantId:    tenantId,
		WarehouseId: query.WarehouseId,
		ProductId:   query.ProductId,
		Types:       []models.LedgerEntryType{models.LedgerEntryTypeIssue},
		From:        &start,
		To:          &asOf,
	})
	if err != nil {
		return nil, err
	}
	balances, err := a.reader.ScanBalances(ctx, models.BalanceQuery{TenantId: tenantId, WarehouseId: query.WarehouseId, ProductId: query.ProductId})
	if err != nil {
		return nil, err
	}
	rules, err := a.reader.ListReorderRules(ctx, models.ReorderRuleQuery{TenantId: tenantId, ProductId: query.ProductId, WarehouseId: query.WarehouseId, ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	history := map[int][]decimal.Decimal{}
	ensure := func(productId int) []decimal.Decimal {
		h, ok := history[productId]
		if !ok {
			h = make([]decimal.Decimal, query.Periods)
			for i := range h {
				h[i] = decimal.Zero
			}
			history[productId] = h
		}
		return h
	}
	for _, b := range balances {
		ensure(b.ProductId)
	}
	for _, e := range issues {
		bucket := int(e.CreatedAt.Sub(start) / span)
		bucket = min(max(bucket, 0), query.Periods-1)
		h := ensure(e.ProductId)
		h[bucket] = utils.Add(h[bucket], e.Qty)
	}

	leadTimes := map[int]int{}
	for _, r := range rules {
		// the first rule by id wins when several cover the product
		if _, ok := leadTimes[r.ProductId]; !ok {
			leadTimes[r.ProductId] = r.LeadTimeDays
		}
	}

	report := &ForecastReport{Start: start, AsOf: query.AsOf, Periods: query.Periods, PeriodDays: query.PeriodDays}
	for productId, h := range history {
		sum := decimal.Zero
		for _, q := range h {
			sum = utils.Add(sum, q)
		}
		forecast, err := utils.Div(sum, decimal.NewFromInt(int64(query.Periods)))
		if err != nil {
			return nil, err
		}
		daily, err := utils.Div(forecast, decimal.NewFromInt(int64(query.PeriodDays)))
		if err != nil {
			return nil, err
		}
		item := &ForecastItem{ProductId: productId, History: h, Forecast: forecast, DailyDemand: daily}
		if days, ok := leadTimes[productId]; ok {
			demand := utils.Mul(daily, decimal.NewFromInt(int64(days)))
			item.LeadTimeDays = days
			item.LeadTimeDemand = &demand
		}
		report.Items = append(report.Items, item)
	}
	slices.SortFunc(report.Items, func(x, y *ForecastItem) int { return x.ProductId - y.ProductId })
	return report, nil
}
