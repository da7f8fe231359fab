package reports

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/stockledger/config"
	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/mmdatafocus/stockledger/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const tenant = "tenant-1"

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	t      *testing.T
	clock  *manualClock
	store  *store.MemoryStore
	engine *workflow.Engine
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &manualClock{now: t0}
	s := store.NewMemoryStore(store.WithLockTimeout(2*time.Second), store.WithMemoryClock(clock.Now))
	e := workflow.NewEngine(s, workflow.WithLogger(quietLogger()), workflow.WithClock(clock.Now))
	return &fixture{t: t, clock: clock, store: s, engine: e}
}

func (f *fixture) analytics(opts ...Option) *Analytics {
	opts = append([]Option{WithSettings(config.DefaultAnalyticsSettings()), WithLogger(quietLogger()), WithCache(nil, 0), WithClock(f.clock.Now)}, opts...)
	return NewAnalytics(f.store, opts...)
}

func dec(s string) decimal.Decimal {
	return utils.MustParseDecimal(s)
}

func (f *fixture) receive(at time.Time, warehouseId, productId int, qty, cost string) {
	f.t.Helper()
	f.clock.Set(at)
	_, err := f.engine.ReceiveStock(context.Background(), tenant, &workflow.NewStockReceipt{
		WarehouseId: warehouseId, ProductId: productId, Qty: dec(qty), UnitCost: dec(cost),
	})
	if err != nil {
		f.t.Fatalf("ReceiveStock error: %v", err)
	}
}

func (f *fixture) ship(at time.Time, warehouseId, productId int, qty string) {
	f.t.Helper()
	f.clock.Set(at)
	_, err := f.engine.ShipStock(context.Background(), tenant, &workflow.NewStockShipment{
		WarehouseId: warehouseId, ProductId: productId, Qty: dec(qty),
	})
	if err != nil {
		f.t.Fatalf("ShipStock error: %v", err)
	}
}

func TestAbcAnalysisIsExhaustiveAndDisjoint(t *testing.T) {
	f := newFixture(t)
	at := t0.Add(time.Hour)
	f.receive(at, 1, 1, "80", "1")
	f.ship(at, 1, 1, "80")
	f.receive(at, 1, 2, "15", "1")
	f.ship(at, 1, 2, "15")
	f.receive(at, 2, 3, "10", "1")
	f.ship(at, 2, 3, "5")
	f.receive(at, 2, 4, "1", "1")

	report, err := f.analytics().ComputeAbcAnalysis(context.Background(), tenant, AbcQuery{Period: Period{From: t0, To: t0.AddDate(0, 0, 1)}})
	if err != nil {
		t.Fatalf("ComputeAbcAnalysis error: %v", err)
	}
	expected := map[int]models.AbcClass{1: models.AbcClassA, 2: models.AbcClassB, 3: models.AbcClassC, 4: models.AbcClassC}
	if len(report.Items) != len(expected) {
		t.Fatalf("expected %d items, got %d", len(expected), len(report.Items))
	}
	seen := map[int]bool{}
	for _, item := range report.Items {
		if seen[item.ProductId] {
			t.Fatalf("product %d classified twice", item.ProductId)
		}
		seen[item.ProductId] = true
		if item.Class != expected[item.ProductId] {
			t.Fatalf("product %d: expected class %s, got %s", item.ProductId, expected[item.ProductId], item.Class)
		}
	}
	if !report.TotalValue.Equal(dec("100")) || report.Counts[models.AbcClassC] != 2 {
		t.Fatalf("unexpected totals %s / %v", report.TotalValue, report.Counts)
	}
	if report.Items[0].ProductId != 1 || !report.Items[1].CumulativeShare.Equal(dec("0.95")) {
		t.Fatalf("unexpected ranking %+v", report.Items)
	}

	one := 1
	scoped, err := f.analytics().ComputeAbcAnalysis(context.Background(), tenant, AbcQuery{WarehouseId: &one, Period: Period{From: t0, To: t0.AddDate(0, 0, 1)}})
	if err != nil {
		t.Fatalf("ComputeAbcAnalysis(warehouse 1) error: %v", err)
	}
	if len(scoped.Items) != 2 {
		t.Fatalf("expected 2 products in warehouse 1, got %d", len(scoped.Items))
	}
}

func TestAbcWithoutConsumptionIsAllC(t *testing.T) {
	f := newFixture(t)
	f.receive(t0.Add(time.Hour), 1, 1, "5", "1")
	f.receive(t0.Add(time.Hour), 1, 2, "5", "1")
	report, err := f.analytics().ComputeAbcAnalysis(context.Background(), tenant, AbcQuery{Period: Period{From: t0, To: t0.AddDate(0, 0, 1)}})
	if err != nil {
		t.Fatalf("ComputeAbcAnalysis error: %v", err)
	}
	if report.Counts[models.AbcClassC] != 2 || report.Counts[models.AbcClassA] != 0 {
		t.Fatalf("expected every product in C, got %v", report.Counts)
	}
}

func TestAnalyticsValidation(t *testing.T) {
	a := newFixture(t).analytics()
	ctx := context.Background()
	cases := []struct {
		name string
		run  func() error
	}{
		{"missing tenant", func() error {
			_, err := a.ComputeValuation(ctx, "", ValuationQuery{})
			return err
		}},
		{"empty period", func() error {
			_, err := a.ComputeAbcAnalysis(ctx, tenant, AbcQuery{})
			return err
		}},
		{"reversed period", func() error {
			_, err := a.ComputeTurnoverRate(ctx, tenant, TurnoverQuery{Period: Period{From: t0, To: t0.Add(-time.Hour)}})
			return err
		}},
		{"no period days", func() error {
			_, err := a.ComputeDemandForecast(ctx, tenant, ForecastQuery{Periods: 3})
			return err
		}},
		{"negative carrying rate", func() error {
			rate := dec("-0.1")
			_, err := a.ComputeCarryingCosts(ctx, tenant, CarryingCostQuery{Rate: &rate, Period: Period{From: t0, To: t0.Add(time.Hour)}})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ve *models.ValidationError
			if err := tc.run(); !errors.As(err, &ve) {
				t.Fatalf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestDemandForecast(t *testing.T) {
	f := newFixture(t)
	f.receive(t0, 1, 1, "100", "1")
	f.ship(t0.AddDate(0, 0, 5), 1, 1, "6")
	f.ship(t0.AddDate(0, 0, 25), 1, 1, "9")
	f.receive(t0, 1, 2, "3", "1")
	lead := &models.ReorderRule{TenantId: tenant, ProductId: 1, ReorderPoint: dec("10"), LeadTimeDays: 4}
	if err := f.store.SaveReorderRule(context.Background(), lead); err != nil {
		t.Fatalf("SaveReorderRule error: %v", err)
	}

	report, err := f.analytics().ComputeDemandForecast(context.Background(), tenant, ForecastQuery{PeriodDays: 10, AsOf: t0.AddDate(0, 0, 30)})
	if err != nil {
		t.Fatalf("ComputeDemandForecast error: %v", err)
	}
	if report.Periods != 3 || len(report.Items) != 2 {
		t.Fatalf("expected 3 periods and 2 products, got %d/%d", report.Periods, len(report.Items))
	}
	p1 := report.Items[0]
	for i, want := range []string{"6", "0", "9"} {
		if !p1.History[i].Equal(dec(want)) {
			t.Fatalf("period %d: expected %s issued, got %s", i, want, p1.History[i])
		}
	}
	if !p1.Forecast.Equal(dec("5")) || !p1.DailyDemand.Equal(dec("0.5")) {
		t.Fatalf("expected forecast 5 at 0.5/day, got %s at %s", p1.Forecast, p1.DailyDemand)
	}
	if p1.LeadTimeDemand == nil || !p1.LeadTimeDemand.Equal(dec("2")) {
		t.Fatalf("expected lead time demand 2, got %v", p1.LeadTimeDemand)
	}
	if p2 := report.Items[1]; !p2.Forecast.IsZero() || p2.LeadTimeDemand != nil {
		t.Fatalf("expected no demand for product 2, got %+v", p2)
	}
}

func TestTurnoverRate(t *testing.T) {
	f := newFixture(t)
	f.receive(t0.Add(-time.Hour), 1, 3, "1", "1")
	f.ship(t0.Add(-30*time.Minute), 1, 3, "1")
	f.receive(t0, 1, 1, "10", "1")
	f.ship(t0.Add(12*time.Hour), 1, 1, "5")

	report, err := f.analytics().ComputeTurnoverRate(context.Background(), tenant, TurnoverQuery{Period: Period{From: t0, To: t0.Add(24 * time.Hour)}})
	if err != nil {
		t.Fatalf("ComputeTurnoverRate error: %v", err)
	}
	items := map[int]*TurnoverItem{}
	for _, item := range report.Items {
		items[item.ProductId] = item
	}
	p1 := items[1]
	if p1 == nil || !p1.AverageOnHand.Equal(dec("7.5")) || !p1.Rate.Equal(dec("0.66666666")) || p1.Undefined {
		t.Fatalf("unexpected turnover for product 1: %+v", p1)
	}
	p3 := items[3]
	if p3 == nil || !p3.Undefined || !p3.Rate.IsZero() {
		t.Fatalf("expected undefined turnover for an empty product, got %+v", p3)
	}
	if !report.Issued.Equal(dec("5")) || report.Undefined {
		t.Fatalf("unexpected totals: issued %s undefined %v", report.Issued, report.Undefined)
	}
}

func TestCarryingCosts(t *testing.T) {
	f := newFixture(t)
	f.receive(t0, 1, 1, "10", "2")
	f.receive(t0, 2, 1, "5", "4")
	period := Period{From: t0, To: t0.AddDate(0, 0, 365)}

	report, err := f.analytics().ComputeCarryingCosts(context.Background(), tenant, CarryingCostQuery{Period: period})
	if err != nil {
		t.Fatalf("ComputeCarryingCosts error: %v", err)
	}
	if !report.Days.Equal(dec("365")) || len(report.Items) != 2 {
		t.Fatalf("expected 365 days and 2 items, got %s/%d", report.Days, len(report.Items))
	}
	for _, item := range report.Items {
		if !item.Cost.Equal(dec("5")) {
			t.Fatalf("warehouse %d: expected cost 5, got %s", item.WarehouseId, item.Cost)
		}
	}
	if !report.TotalCost.Equal(dec("10")) {
		t.Fatalf("expected total 10, got %s", report.TotalCost)
	}

	rate := dec("0.1")
	one := 1
	scoped, err := f.analytics().ComputeCarryingCosts(context.Background(), tenant, CarryingCostQuery{WarehouseId: &one, Rate: &rate, Period: period})
	if err != nil {
		t.Fatalf("ComputeCarryingCosts(rate 0.1) error: %v", err)
	}
	if !scoped.TotalCost.Equal(dec("2")) {
		t.Fatalf("expected total 2, got %s", scoped.TotalCost)
	}
}

func TestValuationReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.SaveProductProfile(ctx, &models.ProductProfile{TenantId: tenant, ProductId: 1, ValuationMethod: models.ValuationMethodWeightedAverage, CostingEnabled: true}); err != nil {
		t.Fatalf("SaveProductProfile error: %v", err)
	}
	f.receive(t0, 1, 1, "10", "2")
	f.receive(t0, 2, 1, "5", "4")
	f.receive(t0, 1, 2, "1", "3")

	report, err := f.analytics().ComputeValuation(ctx, tenant, ValuationQuery{})
	if err != nil {
		t.Fatalf("ComputeValuation error: %v", err)
	}
	if len(report.Lines) != 3 || !report.TotalQty.Equal(dec("16")) || !report.TotalValue.Equal(dec("43")) {
		t.Fatalf("unexpected valuation %d lines, %s qty, %s value", len(report.Lines), report.TotalQty, report.TotalValue)
	}
	if len(report.Heads) != 1 || !report.LedgerValue.Equal(dec("40")) {
		t.Fatalf("expected one head worth 40, got %d heads worth %s", len(report.Heads), report.LedgerValue)
	}
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t0, 1, 1, "8", "1")
	if _, err := f.engine.ReserveStock(ctx, tenant, &workflow.NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("4")}); err != nil {
		t.Fatalf("ReserveStock error: %v", err)
	}
	f.receive(t0, 1, 2, "10", "1")

	one := 1
	rules := []*models.ReorderRule{
		{TenantId: tenant, ProductId: 1, LocationId: &one, ReorderPoint: dec("5"), MinQty: dec("10"), MaxQty: dec("20"), LeadTimeDays: 7},
		{TenantId: tenant, ProductId: 2, ReorderPoint: dec("3")},
		{TenantId: tenant, ProductId: 3, ReorderPoint: dec("1"), MinQty: dec("5")},
		{TenantId: tenant, ProductId: 4, ReorderPoint: dec("1"), IsActive: utils.NewFalse()},
	}
	for _, r := range rules {
		if err := f.store.SaveReorderRule(ctx, r); err != nil {
			t.Fatalf("SaveReorderRule error: %v", err)
		}
	}

	items, err := f.analytics().ComputeLowStock(ctx, tenant, nil)
	if err != nil {
		t.Fatalf("ComputeLowStock error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 low stock items, got %d", len(items))
	}
	if items[0].ProductId != 1 || !items[0].Available.Equal(dec("4")) || !items[0].SuggestedQty.Equal(dec("16")) {
		t.Fatalf("unexpected item for product 1: %+v", items[0])
	}
	// nothing on hand and no maximum: order the reorder point, at least MinQty
	if items[1].ProductId != 3 || !items[1].SuggestedQty.Equal(dec("5")) {
		t.Fatalf("unexpected item for product 3: %+v", items[1])
	}
}

type mapCache struct {
	data map[string][]byte
	hits int
}

func (c *mapCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, obj any, ttl time.Duration) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func TestReportCache(t *testing.T) {
	f := newFixture(t)
	f.receive(t0, 1, 1, "10", "2")
	cache := &mapCache{data: map[string][]byte{}}
	a := f.analytics(WithCache(cache, time.Minute))
	query := TurnoverQuery{Period: Period{From: t0, To: t0.Add(time.Hour)}}

	first, err := a.ComputeTurnoverRate(context.Background(), tenant, query)
	if err != nil {
		t.Fatalf("ComputeTurnoverRate error: %v", err)
	}
	f.receive(t0.Add(time.Minute), 1, 1, "10", "2")
	second, err := a.ComputeTurnoverRate(context.Background(), tenant, query)
	if err != nil {
		t.Fatalf("cached ComputeTurnoverRate error: %v", err)
	}
	if cache.hits != 1 || !second.AverageOnHand.Equal(first.AverageOnHand) {
		t.Fatalf("expected the cached report, got %d hits and %s vs %s", cache.hits, second.AverageOnHand, first.AverageOnHand)
	}
}
