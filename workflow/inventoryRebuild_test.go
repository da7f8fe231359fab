package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/stockledger/models"
)

func seedLedger(t *testing.T, e *Engine) {
	t.Helper()
	receive(t, e, 1, 1, "10", "5")
	receive(t, e, 1, 1, "10", "7")
	if _, err := e.ShipStock(context.Background(), tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("4")}); err != nil {
		t.Fatalf("ShipStock error: %v", err)
	}
	receive(t, e, 2, 1, "3", "2")
}

func corrupt(t *testing.T, e *Engine, k models.BalanceKey, onHand, avg string) {
	t.Helper()
	_, err := e.LockAndMutate(context.Background(), k, func(b *models.StockBalance) error {
		b.QuantityOnHand = dec(onHand)
		b.AverageCost = dec(avg)
		return nil
	})
	if err != nil {
		t.Fatalf("LockAndMutate error: %v", err)
	}
}

func TestRebuildRestoresDriftedBalance(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	seedLedger(t, e)
	corrupt(t, e, key(1, 1), "99", "1")

	verify, err := e.VerifyLedger(ctx, tenant, key(1, 1))
	if err != nil {
		t.Fatalf("VerifyLedger error: %v", err)
	}
	if !verify.Drifted || verify.Rewritten {
		t.Fatalf("expected verify to report drift without rewriting, got %+v", verify)
	}
	if b := balanceOf(t, s, key(1, 1)); !b.QuantityOnHand.Equal(dec("99")) {
		t.Fatalf("verify must not write, on hand is %s", b.QuantityOnHand)
	}

	report, err := e.RebuildFromLedger(ctx, tenant, key(1, 1))
	if err != nil {
		t.Fatalf("RebuildFromLedger error: %v", err)
	}
	if !report.Drifted || !report.Rewritten || report.Entries != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	b := balanceOf(t, s, key(1, 1))
	if !b.QuantityOnHand.Equal(dec("16")) || !b.AverageCost.Equal(dec("6")) || b.LedgerSequence != 3 {
		t.Fatalf("expected 16 @ 6 at sequence 3, got %s @ %s at %d", b.QuantityOnHand, b.AverageCost, b.LedgerSequence)
	}

	again, err := e.RebuildFromLedger(ctx, tenant, key(1, 1))
	if err != nil {
		t.Fatalf("second RebuildFromLedger error: %v", err)
	}
	if again.Drifted || again.Rewritten {
		t.Fatalf("expected a clean balance to stay untouched, got %+v", again)
	}
}

func TestRebuildCutsReservationsAboveOnHand(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	seedLedger(t, e)
	_, err := e.LockAndMutate(ctx, key(1, 1), func(b *models.StockBalance) error {
		b.QuantityOnHand = dec("30")
		b.QuantityReserved = dec("20")
		return nil
	})
	if err != nil {
		t.Fatalf("LockAndMutate error: %v", err)
	}
	report, err := e.RebuildFromLedger(ctx, tenant, key(1, 1))
	if err != nil {
		t.Fatalf("RebuildFromLedger error: %v", err)
	}
	if !report.ReservedCut.Equal(dec("4")) {
		t.Fatalf("expected 4 reserved units cut, got %s", report.ReservedCut)
	}
	b := balanceOf(t, s, key(1, 1))
	if !b.QuantityReserved.Equal(b.QuantityOnHand) {
		t.Fatalf("expected reservation clamped to on hand, got %s/%s", b.QuantityReserved, b.QuantityOnHand)
	}
}

func TestRebuildTenant(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	seedLedger(t, e)
	corrupt(t, e, key(2, 1), "1", "2")

	reports, err := e.RebuildTenant(ctx, tenant, true)
	if err != nil {
		t.Fatalf("RebuildTenant dry run error: %v", err)
	}
	drifted := 0
	for _, r := range reports {
		if r.Drifted {
			drifted++
		}
	}
	if len(reports) != 2 || drifted != 1 {
		t.Fatalf("expected 2 reports with 1 drifted, got %d/%d", len(reports), drifted)
	}
	if b := balanceOf(t, s, key(2, 1)); !b.QuantityOnHand.Equal(dec("1")) {
		t.Fatalf("dry run must not write, on hand is %s", b.QuantityOnHand)
	}

	if _, err := e.RebuildTenant(ctx, tenant, false); err != nil {
		t.Fatalf("RebuildTenant error: %v", err)
	}
	if b := balanceOf(t, s, key(2, 1)); !b.QuantityOnHand.Equal(dec("3")) {
		t.Fatalf("expected on hand restored to 3, got %s", b.QuantityOnHand)
	}
}

func TestRebuildRejectsForeignKey(t *testing.T) {
	e, _ := newTestEngine(t)
	k := key(1, 1)
	k.TenantId = "tenant-2"
	if _, err := e.RebuildFromLedger(context.Background(), tenant, k); err == nil {
		t.Fatalf("expected a key from another tenant to be rejected")
	}
}
