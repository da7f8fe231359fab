package workflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AllocateFifo takes qty from the active lots of key, oldest first, decrementing each lot in
// tx. The caller must hold the balance lock of key. Blocked and empty lots are skipped.
func (e *Engine) AllocateFifo(ctx context.Context, tx store.Tx, key models.BalanceKey, qty decimal.Decimal) ([]models.LotAllocation, error) {
	active := models.LotStatusActive
	query := models.KeyLots(key)
	query.Status = &active
	lots, err := tx.FindLots(ctx, query)
	if err != nil {
		return nil, err
	}
	available := decimal.Zero
	for _, lot := range lots {
		if lot.IsAllocatable() {
			available = utils.Add(available, lot.Qty)
		}
	}
	if available.LessThan(qty) {
		return nil, &models.InsufficientLotStockError{Key: key, Requested: qty, Available: available}
	}

	var allocations []models.LotAllocation
	remaining := qty
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		if !lot.IsAllocatable() {
			continue
		}
		take := decimal.Min(lot.Qty, remaining)
		lot.Qty = utils.Sub(lot.Qty, take)
		if err := tx.SaveLot(ctx, lot); err != nil {
			return nil, err
		}
		allocations = append(allocations, models.LotAllocation{Lot: lot, QtyTaken: take, UnitCost: lot.UnitCost})
		remaining = utils.Sub(remaining, take)
	}
	return allocations, nil
}

// registerLot adds stock to the lot named by want, creating it with a generated number when
// none is given. Serial lots hold at most one unit.
func (e *Engine) registerLot(ctx context.Context, tx store.Tx, m movement, want inboundLot) (*models.InventoryLot, error) {
	cost := utils.DereferencePtr(want.unitCost)
	if want.number == "" {
		want.number = uuid.NewString()
	} else {
		existing, err := tx.FindLotByNumber(ctx, m.key, want.number)
		if err != nil && !models.IsNotFound(err) {
			return nil, err
		}
		if existing != nil {
			if m.profile.TrackSerials && existing.Qty.IsPositive() {
				return nil, models.NewValidationError("LotNumber", "serial "+want.number+" is already in stock")
			}
			avg, err := utils.WeightedAverageCost(existing.Qty, existing.UnitCost, want.qty, cost)
			if err != nil {
				return nil, err
			}
			existing.Qty = utils.Add(existing.Qty, want.qty)
			existing.UnitCost = avg
			if existing.ManufactureDate == nil {
				existing.ManufactureDate = want.manufactureDate
			}
			if existing.ExpiryDate == nil {
				existing.ExpiryDate = want.expiryDate
			}
			if err := tx.SaveLot(ctx, existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}
	lot := &models.InventoryLot{
		TenantId:        m.key.TenantId,
		ProductId:       m.key.ProductId,
		WarehouseId:     m.key.WarehouseId,
		VariantId:       m.key.VariantId,
		LotNumber:       want.number,
		TrackingType:    m.profile.TrackingType(),
		Qty:             want.qty,
		UnitCost:        cost,
		Status:          models.LotStatusActive,
		ManufactureDate: want.manufactureDate,
		ExpiryDate:      want.expiryDate,
	}
	if err := tx.SaveLot(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// BlockLot takes a lot out of allocation, e.g. for a recall. It stays listed.
func (e *Engine) BlockLot(ctx context.Context, tenantId string, lotId int) (*models.InventoryLot, error) {
	return e.setLotStatus(ctx, tenantId, lotId, models.LotStatusBlocked)
}

func (e *Engine) UnblockLot(ctx context.Context, tenantId string, lotId int) (*models.InventoryLot, error) {
	return e.setLotStatus(ctx, tenantId, lotId, models.LotStatusActive)
}

func (e *Engine) setLotStatus(ctx context.Context, tenantId string, lotId int, status models.LotStatus) (*models.InventoryLot, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if lotId <= 0 {
		return nil, models.NewValidationError("LotId", "must be positive")
	}
	fields := logrus.Fields{"tenant_id": tenantId, "lot_id": lotId, "status": string(status)}
	var result *models.InventoryLot
	err := e.execute(ctx, "lot_status", fields, func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		lot, err := tx.GetLot(ctx, tenantId, lotId)
		if err != nil {
			return nil, err
		}
		// lots change under their balance key's lock, same as allocation
		if _, err := tx.LockBalance(ctx, lot.Key()); err != nil {
			return nil, err
		}
		if lot, err = tx.GetLot(ctx, tenantId, lotId); err != nil {
			return nil, err
		}
		lot.Status = status
		if err := tx.SaveLot(ctx, lot); err != nil {
			return nil, err
		}
		result = lot
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) ListLots(ctx context.Context, query models.LotQuery) ([]*models.InventoryLot, error) {
	if err := requireTenant(query.TenantId); err != nil {
		return nil, err
	}
	return e.store.ListLots(ctx, query)
}
