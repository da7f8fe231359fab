package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/stockledger/models"
)

func TestReserveAndRelease(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	receive(t, e, 1, 1, "10", "1")

	b, err := e.ReserveStock(ctx, tenant, &NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("3")})
	if err != nil {
		t.Fatalf("ReserveStock error: %v", err)
	}
	if !b.QuantityReserved.Equal(dec("3")) || !b.Available().Equal(dec("7")) {
		t.Fatalf("expected 3 reserved and 7 available, got %s/%s", b.QuantityReserved, b.Available())
	}

	b, err = e.ReleaseReservation(ctx, tenant, &NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("5")})
	if err != nil {
		t.Fatalf("ReleaseReservation error: %v", err)
	}
	if !b.QuantityReserved.IsZero() {
		t.Fatalf("expected release to clamp at zero, got %s", b.QuantityReserved)
	}
	entries, _ := s.ScanLedgerEntries(ctx, models.ScanKey(key(1, 1)))
	if len(entries) != 1 {
		t.Fatalf("expected reservations to write no ledger entries, got %d entries", len(entries))
	}
}

func TestReserveFailsBeyondAvailable(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	receive(t, e, 1, 1, "10", "1")
	if _, err := e.ReserveStock(ctx, tenant, &NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("8")}); err != nil {
		t.Fatalf("ReserveStock error: %v", err)
	}
	_, err := e.ReserveStock(ctx, tenant, &NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("3")})
	var insufficient *models.InsufficientStockError
	if !errors.As(err, &insufficient) || !insufficient.Available.Equal(dec("2")) {
		t.Fatalf("expected InsufficientStockError with 2 available, got %v", err)
	}
	if b := balanceOf(t, s, key(1, 1)); !b.QuantityReserved.Equal(dec("8")) {
		t.Fatalf("expected reservation unchanged at 8, got %s", b.QuantityReserved)
	}
}

func TestShipmentRespectsReservations(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	receive(t, e, 1, 1, "10", "1")
	if _, err := e.ReserveStock(ctx, tenant, &NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("8")}); err != nil {
		t.Fatalf("ReserveStock error: %v", err)
	}
	_, err := e.ShipStock(ctx, tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("3")})
	if !models.IsBusinessRuleViolation(err) {
		t.Fatalf("expected free shipment to be limited to available stock, got %v", err)
	}
	if _, err := e.ShipStock(ctx, tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("9"), FromReservation: true}); err != nil {
		t.Fatalf("ShipStock from reservation error: %v", err)
	}
	b := balanceOf(t, s, key(1, 1))
	if !b.QuantityOnHand.Equal(dec("1")) || !b.QuantityReserved.IsZero() {
		t.Fatalf("expected 1 on hand and nothing reserved, got %s/%s", b.QuantityOnHand, b.QuantityReserved)
	}
}

func TestReservedNeverExceedsOnHand(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	receive(t, e, 1, 1, "5", "1")
	ops := []func() error{
		func() error {
			_, err := e.ReserveStock(ctx, tenant, &NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("4")})
			return err
		},
		func() error {
			_, err := e.ShipStock(ctx, tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("2"), FromReservation: true})
			return err
		},
		func() error {
			_, err := e.AdjustStock(ctx, tenant, &NewStockAdjustment{WarehouseId: 1, ProductId: 1, Qty: dec("-2"), Reason: "count"})
			return err
		},
		func() error {
			_, err := e.ReleaseReservation(ctx, tenant, &NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("1")})
			return err
		},
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d error: %v", i, err)
		}
		b := balanceOf(t, s, key(1, 1))
		if b.QuantityReserved.IsNegative() || b.QuantityReserved.GreaterThan(b.QuantityOnHand) {
			t.Fatalf("op %d: reserved %s outside [0, %s]", i, b.QuantityReserved, b.QuantityOnHand)
		}
	}
}
