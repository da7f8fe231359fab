package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/utils"
)

func TestReceiveRecomputesWeightedAverage(t *testing.T) {
	e, s := newTestEngine(t)
	first := receive(t, e, 1, 1, "10", "5.00")
	second := receive(t, e, 1, 1, "10", "7.00")

	b := balanceOf(t, s, key(1, 1))
	if !b.QuantityOnHand.Equal(dec("20")) || !b.AverageCost.Equal(dec("6.00")) {
		t.Fatalf("expected 20 @ 6.00, got %s @ %s", b.QuantityOnHand, b.AverageCost)
	}
	if !first.Entry.RunningBalance.Equal(dec("10")) || !second.Entry.RunningBalance.Equal(dec("20")) {
		t.Fatalf("unexpected running balances %s, %s", first.Entry.RunningBalance, second.Entry.RunningBalance)
	}
	if first.Entry.Sequence != 1 || second.Entry.Sequence != 2 || b.LedgerSequence != 2 {
		t.Fatalf("expected sequences 1, 2 and balance sequence 2")
	}
	if second.Entry.ID <= first.Entry.ID {
		t.Fatalf("expected increasing ledger ids, got %d then %d", first.Entry.ID, second.Entry.ID)
	}
}

func TestOverShipmentIsAtomic(t *testing.T) {
	e, s := newTestEngine(t)
	receive(t, e, 1, 1, "5", "2")
	_, err := e.ShipStock(context.Background(), tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("6")})
	var insufficient *models.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !insufficient.Available.Equal(dec("5")) || !insufficient.Requested.Equal(dec("6")) {
		t.Fatalf("unexpected error detail %+v", insufficient)
	}
	if !models.IsBusinessRuleViolation(err) || models.IsRetryable(err) {
		t.Fatalf("expected a non-retryable business rule violation")
	}
	b := balanceOf(t, s, key(1, 1))
	if !b.QuantityOnHand.Equal(dec("5")) || b.LedgerSequence != 1 {
		t.Fatalf("expected untouched balance, got %s at sequence %d", b.QuantityOnHand, b.LedgerSequence)
	}
	entries, _ := s.ScanLedgerEntries(context.Background(), models.ScanKey(key(1, 1)))
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
}

func TestShipmentCostsAtAverageWithoutChangingIt(t *testing.T) {
	e, s := newTestEngine(t)
	receive(t, e, 1, 1, "10", "5")
	receive(t, e, 1, 1, "10", "7")
	res, err := e.ShipStock(context.Background(), tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("4")})
	if err != nil {
		t.Fatalf("ShipStock error: %v", err)
	}
	if !res.Entry.UnitCost.Equal(dec("6")) || !res.Value.Equal(dec("24")) {
		t.Fatalf("expected issue at 6 worth 24, got %s worth %s", res.Entry.UnitCost, res.Value)
	}
	b := balanceOf(t, s, key(1, 1))
	if !b.AverageCost.Equal(dec("6")) || !b.QuantityOnHand.Equal(dec("16")) {
		t.Fatalf("expected 16 @ 6, got %s @ %s", b.QuantityOnHand, b.AverageCost)
	}
}

func TestTransferRoundTrip(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	receive(t, e, 1, 1, "10", "4")
	there, err := e.TransferStock(ctx, tenant, &NewStockTransfer{SourceWarehouseId: 1, DestinationWarehouseId: 2, ProductId: 1, Qty: dec("4")})
	if err != nil {
		t.Fatalf("TransferStock error: %v", err)
	}
	if !there.In.Entry.UnitCost.Equal(dec("4")) {
		t.Fatalf("expected transfer at source cost 4, got %s", there.In.Entry.UnitCost)
	}
	if _, err := e.TransferStock(ctx, tenant, &NewStockTransfer{SourceWarehouseId: 2, DestinationWarehouseId: 1, ProductId: 1, Qty: dec("4")}); err != nil {
		t.Fatalf("TransferStock back error: %v", err)
	}

	if b := balanceOf(t, s, key(1, 1)); !b.QuantityOnHand.Equal(dec("10")) || !b.AverageCost.Equal(dec("4")) {
		t.Fatalf("expected source back at 10 @ 4, got %s @ %s", b.QuantityOnHand, b.AverageCost)
	}
	if b := balanceOf(t, s, key(2, 1)); !b.QuantityOnHand.IsZero() {
		t.Fatalf("expected destination empty, got %s", b.QuantityOnHand)
	}
	transferTypes := []models.LedgerEntryType{models.LedgerEntryTypeTransferIn, models.LedgerEntryTypeTransferOut}
	entries, _ := s.ScanLedgerEntries(ctx, models.LedgerScan{TenantId: tenant, Types: transferTypes})
	if len(entries) != 4 {
		t.Fatalf("expected 4 transfer entries, got %d", len(entries))
	}
}

func TestTransferRejectsSameWarehouse(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.TransferStock(context.Background(), tenant, &NewStockTransfer{SourceWarehouseId: 1, DestinationWarehouseId: 1, ProductId: 1, Qty: dec("1")})
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTransferInsufficientLeavesBothSidesUntouched(t *testing.T) {
	e, s := newTestEngine(t)
	receive(t, e, 2, 1, "3", "1")
	_, err := e.TransferStock(context.Background(), tenant, &NewStockTransfer{SourceWarehouseId: 2, DestinationWarehouseId: 1, ProductId: 1, Qty: dec("5")})
	if !models.IsBusinessRuleViolation(err) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if _, err := s.GetBalance(context.Background(), key(1, 1)); !models.IsNotFound(err) {
		t.Fatalf("expected destination row rolled back, got %v", err)
	}
}

func TestValidationErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	cases := []struct {
		name string
		run  func() error
	}{
		{"zero receipt", func() error {
			_, err := e.ReceiveStock(ctx, tenant, &NewStockReceipt{WarehouseId: 1, ProductId: 1, Qty: dec("0"), UnitCost: dec("1")})
			return err
		}},
		{"negative cost", func() error {
			_, err := e.ReceiveStock(ctx, tenant, &NewStockReceipt{WarehouseId: 1, ProductId: 1, Qty: dec("1"), UnitCost: dec("-1")})
			return err
		}},
		{"missing warehouse", func() error {
			_, err := e.ShipStock(ctx, tenant, &NewStockShipment{ProductId: 1, Qty: dec("1")})
			return err
		}},
		{"missing tenant", func() error {
			_, err := e.ShipStock(ctx, "", &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("1")})
			return err
		}},
		{"zero adjustment", func() error {
			_, err := e.AdjustStock(ctx, tenant, &NewStockAdjustment{WarehouseId: 1, ProductId: 1, Qty: dec("0"), Reason: "count"})
			return err
		}},
		{"adjustment without reason", func() error {
			_, err := e.AdjustStock(ctx, tenant, &NewStockAdjustment{WarehouseId: 1, ProductId: 1, Qty: dec("1")})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ve *models.ValidationError
			if err := tc.run(); !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestAdjustmentInDefaultsToAverageCost(t *testing.T) {
	e, s := newTestEngine(t)
	receive(t, e, 1, 1, "10", "3")
	res, err := e.AdjustStock(context.Background(), tenant, &NewStockAdjustment{WarehouseId: 1, ProductId: 1, Qty: dec("2"), Reason: "found in count"})
	if err != nil {
		t.Fatalf("AdjustStock error: %v", err)
	}
	if res.Entry.Type != models.LedgerEntryTypeAdjustmentIn || !res.Entry.UnitCost.Equal(dec("3")) {
		t.Fatalf("unexpected entry %+v", res.Entry)
	}
	if res.Entry.Notes != "found in count" {
		t.Fatalf("expected reason in notes, got %q", res.Entry.Notes)
	}
	if b := balanceOf(t, s, key(1, 1)); !b.AverageCost.Equal(dec("3")) || !b.QuantityOnHand.Equal(dec("12")) {
		t.Fatalf("expected 12 @ 3, got %s @ %s", b.QuantityOnHand, b.AverageCost)
	}
}

func TestAdjustmentOutClampsReservation(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	receive(t, e, 1, 1, "10", "1")
	if _, err := e.ReserveStock(ctx, tenant, &NewStockReservation{WarehouseId: 1, ProductId: 1, Qty: dec("8")}); err != nil {
		t.Fatalf("ReserveStock error: %v", err)
	}
	if _, err := e.AdjustStock(ctx, tenant, &NewStockAdjustment{WarehouseId: 1, ProductId: 1, Qty: dec("-6"), Reason: "damaged"}); err != nil {
		t.Fatalf("AdjustStock error: %v", err)
	}
	b := balanceOf(t, s, key(1, 1))
	if !b.QuantityOnHand.Equal(dec("4")) || !b.QuantityReserved.Equal(dec("4")) {
		t.Fatalf("expected 4 on hand with 4 reserved, got %s/%s", b.QuantityOnHand, b.QuantityReserved)
	}
	_, err := e.AdjustStock(ctx, tenant, &NewStockAdjustment{WarehouseId: 1, ProductId: 1, Qty: dec("-5"), Reason: "damaged"})
	if !models.IsBusinessRuleViolation(err) {
		t.Fatalf("expected adjustment below zero to fail, got %v", err)
	}
}

func TestReturnCostResolution(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	receive(t, e, 1, 1, "10", "5")
	issue, err := e.ShipStock(ctx, tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("10")})
	if err != nil {
		t.Fatalf("ShipStock error: %v", err)
	}
	receive(t, e, 1, 1, "10", "9")

	res, err := e.ReturnStock(ctx, tenant, &NewStockReturn{WarehouseId: 1, ProductId: 1, Qty: dec("10"), OriginalEntryId: issue.Entry.ID})
	if err != nil {
		t.Fatalf("ReturnStock error: %v", err)
	}
	if res.Entry.Type != models.LedgerEntryTypeReturn || !res.Entry.UnitCost.Equal(dec("5")) {
		t.Fatalf("expected return at original cost 5, got %s", res.Entry.UnitCost)
	}
	if b := balanceOf(t, s, key(1, 1)); !b.AverageCost.Equal(dec("7")) {
		t.Fatalf("expected average 7, got %s", b.AverageCost)
	}

	res, err = e.ReturnStock(ctx, tenant, &NewStockReturn{WarehouseId: 1, ProductId: 1, Qty: dec("1"), UnitCost: decPtr("2")})
	if err != nil || !res.Entry.UnitCost.Equal(dec("2")) {
		t.Fatalf("expected supplied cost 2, got %v / %v", res, err)
	}
	res, err = e.ReturnStock(ctx, tenant, &NewStockReturn{WarehouseId: 1, ProductId: 1, Qty: dec("1")})
	if err != nil {
		t.Fatalf("ReturnStock error: %v", err)
	}
	if b := balanceOf(t, s, key(1, 1)); !res.Entry.UnitCost.Equal(res.Balance.AverageCost) || !b.AverageCost.Equal(res.Balance.AverageCost) {
		t.Fatalf("expected return at current average, got %s", res.Entry.UnitCost)
	}

	_, err = e.ReturnStock(ctx, tenant, &NewStockReturn{WarehouseId: 1, ProductId: 1, Qty: dec("1"), OriginalEntryId: 999999})
	if !models.IsNotFound(err) {
		t.Fatalf("expected NotFoundError for unknown original entry, got %v", err)
	}
}

func TestRunningBalancesArePrefixSums(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	receive(t, e, 1, 1, "10", "1")
	steps := []func() error{
		func() error {
			_, err := e.ShipStock(ctx, tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("3.5")})
			return err
		},
		func() error {
			_, err := e.AdjustStock(ctx, tenant, &NewStockAdjustment{WarehouseId: 1, ProductId: 1, Qty: dec("1.25"), Reason: "recount"})
			return err
		},
		func() error {
			_, err := e.TransferStock(ctx, tenant, &NewStockTransfer{SourceWarehouseId: 1, DestinationWarehouseId: 2, ProductId: 1, Qty: dec("2")})
			return err
		},
		func() error {
			_, err := e.ReturnStock(ctx, tenant, &NewStockReturn{WarehouseId: 1, ProductId: 1, Qty: dec("0.75")})
			return err
		},
		func() error {
			_, err := e.AdjustStock(ctx, tenant, &NewStockAdjustment{WarehouseId: 1, ProductId: 1, Qty: dec("-0.5"), Reason: "shrinkage"})
			return err
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d error: %v", i, err)
		}
	}
	entries, err := s.ScanLedgerEntries(ctx, models.ScanKey(key(1, 1)))
	if err != nil {
		t.Fatalf("ScanLedgerEntries error: %v", err)
	}
	sum := dec("0")
	for i, entry := range entries {
		sum = utils.Add(sum, entry.SignedQty())
		if !entry.RunningBalance.Equal(sum) {
			t.Fatalf("entry %d: running balance %s, prefix sum %s", i, entry.RunningBalance, sum)
		}
		if entry.Sequence != i+1 {
			t.Fatalf("entry %d: expected sequence %d, got %d", i, i+1, entry.Sequence)
		}
	}
	if b := balanceOf(t, s, key(1, 1)); !b.QuantityOnHand.Equal(sum) || !sum.Equal(dec("6")) {
		t.Fatalf("expected on hand 6 equal to the final prefix sum, got %s / %s", b.QuantityOnHand, sum)
	}
}

func TestConcurrentShipmentsNeverOversell(t *testing.T) {
	e, s := newTestEngine(t)
	receive(t, e, 1, 1, "100", "1")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		shipped   int
		rejected  int
		unexpectd []error
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ShipStock(context.Background(), tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("5")})
			mu.Lock()
			defer mu.Unlock()
			var insufficient *models.InsufficientStockError
			switch {
			case err == nil:
				shipped++
			case errors.As(err, &insufficient):
				rejected++
			default:
				unexpectd = append(unexpectd, err)
			}
		}()
	}
	wg.Wait()
	if len(unexpectd) > 0 {
		t.Fatalf("unexpected errors: %v", unexpectd)
	}
	if shipped != 20 || rejected != 10 {
		t.Fatalf("expected 20 shipped and 10 rejected, got %d/%d", shipped, rejected)
	}
	if b := balanceOf(t, s, key(1, 1)); !b.QuantityOnHand.IsZero() || b.LedgerSequence != 21 {
		t.Fatalf("expected empty balance at sequence 21, got %s at %d", b.QuantityOnHand, b.LedgerSequence)
	}
}

func TestConcurrentOppositeTransfersDoNotDeadlock(t *testing.T) {
	e, s := newTestEngine(t)
	receive(t, e, 1, 1, "50", "1")
	receive(t, e, 2, 1, "50", "1")
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.TransferStock(context.Background(), tenant, &NewStockTransfer{SourceWarehouseId: 1, DestinationWarehouseId: 2, ProductId: 1, Qty: dec("1")})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := e.TransferStock(context.Background(), tenant, &NewStockTransfer{SourceWarehouseId: 2, DestinationWarehouseId: 1, ProductId: 1, Qty: dec("1")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("transfer error: %v", err)
		}
	}
	total := utils.Add(balanceOf(t, s, key(1, 1)).QuantityOnHand, balanceOf(t, s, key(2, 1)).QuantityOnHand)
	if !total.Equal(dec("100")) {
		t.Fatalf("expected 100 units across warehouses, got %s", total)
	}
}

func TestLockAndMutateRejectsInvariantBreaks(t *testing.T) {
	e, s := newTestEngine(t)
	receive(t, e, 1, 1, "2", "1")
	_, err := e.LockAndMutate(context.Background(), key(1, 1), func(b *models.StockBalance) error {
		b.QuantityReserved = dec("3")
		return nil
	})
	if err == nil {
		t.Fatalf("expected reserved above on hand to be rejected")
	}
	if b := balanceOf(t, s, key(1, 1)); !b.QuantityReserved.IsZero() {
		t.Fatalf("expected reservation untouched, got %s", b.QuantityReserved)
	}
}
