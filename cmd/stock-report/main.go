// stock-report writes the stock analytics of one tenant into an xlsx workbook.
//
// Usage:
//
//	go run ./cmd/stock-report --tenant-id=<uuid> --from=2026-01-01 --to=2026-04-01 [--warehouse-id=1] [--carrying-rate=0.25] [--out=stock-report.xlsx]
//
// The period is [from, to). Forecast periods default to FORECAST_PERIODS.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/stockledger/config"
	"github.com/mmdatafocus/stockledger/models/reports"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

func parseDate(name, value string) time.Time {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --%s date: %v\n", name, err)
		os.Exit(1)
	}
	return d.UTC()
}

func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id (uuid)")
	fromStr := flag.String("from", "", "Required: period start (YYYY-MM-DD)")
	toStr := flag.String("to", "", "Required: period end, exclusive (YYYY-MM-DD)")
	warehouseID := flag.Int("warehouse-id", 0, "Optional: warehouse id")
	periodDays := flag.Int("period-days", 30, "Forecast bucket length in days")
	rateStr := flag.String("carrying-rate", "", "Optional: annual carrying rate, e.g. 0.25 (default CARRYING_RATE)")
	out := flag.String("out", "stock-report.xlsx", "Output file")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" || *fromStr == "" || *toStr == "" {
		fmt.Fprintln(os.Stderr, "--tenant-id, --from and --to are required")
		os.Exit(1)
	}
	period := reports.Period{From: parseDate("from", *fromStr), To: parseDate("to", *toStr)}
	var warehouse *int
	if *warehouseID > 0 {
		warehouse = warehouseID
	}
	var rate *decimal.Decimal
	if strings.TrimSpace(*rateStr) != "" {
		r, err := utils.ParseDecimal(*rateStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --carrying-rate: %v\n", err)
			os.Exit(1)
		}
		rate = &r
	}

	ctx := utils.SetTenantIdInContext(context.Background(), *tenantID)
	ctx, _ = utils.EnsureCorrelationId(ctx)
	db := config.ConnectDatabaseWithRetry()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if config.ReportCacheEnabled() {
		config.ConnectRedisWithRetry(ctx)
	}
	analytics := reports.NewAnalytics(store.NewGormStore(db))

	fail := func(name string, err error) {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
	abc, err := analytics.ComputeAbcAnalysis(ctx, *tenantID, reports.AbcQuery{WarehouseId: warehouse, Period: period})
	if err != nil {
		fail("abc analysis", err)
	}
	forecast, err := analytics.ComputeDemandForecast(ctx, *tenantID, reports.ForecastQuery{WarehouseId: warehouse, PeriodDays: *periodDays, AsOf: period.To})
	if err != nil {
		fail("demand forecast", err)
	}
	turnover, err := analytics.ComputeTurnoverRate(ctx, *tenantID, reports.TurnoverQuery{WarehouseId: warehouse, Period: period})
	if err != nil {
		fail("turnover rate", err)
	}
	carrying, err := analytics.ComputeCarryingCosts(ctx, *tenantID, reports.CarryingCostQuery{WarehouseId: warehouse, Period: period, Rate: rate})
	if err != nil {
		fail("carrying costs", err)
	}
	valuation, err := analytics.ComputeValuation(ctx, *tenantID, reports.ValuationQuery{WarehouseId: warehouse})
	if err != nil {
		fail("valuation", err)
	}
	lowStock, err := analytics.ComputeLowStock(ctx, *tenantID, warehouse)
	if err != nil {
		fail("low stock", err)
	}

	if err := reports.SaveWorkbook(*out,
		abc.Sheet(), forecast.Sheet(), turnover.Sheet(), carrying.Sheet(), valuation.Sheet(), reports.LowStockSheet(lowStock),
	); err != nil {
		fail("write workbook", err)
	}
	fmt.Printf("wrote %s (valuation %s, carrying cost %s, %d low stock rules)\n",
		*out, valuation.TotalValue, carrying.TotalCost, len(lowStock))
}
