package workflow

import (
	"context"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

// NewStockReservation earmarks or releases quantity of one key. Reservations write no
// ledger entry.
type NewStockReservation struct {
	WarehouseId int `validate:"required,gt=0"`
	ProductId   int `validate:"required,gt=0"`
	VariantId   int `validate:"gte=0"`
	Qty         decimal.Decimal
	Reference   models.Reference
}

func (r *NewStockReservation) key(tenantId string) models.BalanceKey {
	return models.BalanceKey{TenantId: tenantId, WarehouseId: r.WarehouseId, ProductId: r.ProductId, VariantId: r.VariantId}
}

func validateReservation(tenantId string, input *NewStockReservation) (decimal.Decimal, error) {
	if err := requireTenant(tenantId); err != nil {
		return decimal.Zero, err
	}
	if err := models.ValidateInput(input); err != nil {
		return decimal.Zero, err
	}
	return positiveQty("Qty", input.Qty)
}

// ReserveStock fails with InsufficientStockError unless available quantity covers qty.
func (e *Engine) ReserveStock(ctx context.Context, tenantId string, input *NewStockReservation) (*models.StockBalance, error) {
	qty, err := validateReservation(tenantId, input)
	if err != nil {
		return nil, err
	}
	key := input.key(tenantId)
	fields := keyFields(key)
	fields["reference"] = input.Reference.String()

	var result *models.StockBalance
	err = e.execute(ctx, "reserve", fields, func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		balance, err := tx.LockBalance(ctx, key)
		if err != nil {
			return nil, err
		}
		if balance.Available().LessThan(qty) {
			return nil, &models.InsufficientStockError{Key: key, Requested: qty, Available: balance.Available()}
		}
		balance.QuantityReserved = utils.Add(balance.QuantityReserved, qty)
		if err := tx.SaveBalance(ctx, balance); err != nil {
			return nil, err
		}
		result = balance
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseReservation lowers the reservation by qty, never below zero.
func (e *Engine) ReleaseReservation(ctx context.Context, tenantId string, input *NewStockReservation) (*models.StockBalance, error) {
	qty, err := validateReservation(tenantId, input)
	if err != nil {
		return nil, err
	}
	key := input.key(tenantId)
	fields := keyFields(key)
	fields["reference"] = input.Reference.String()

	var result *models.StockBalance
	err = e.execute(ctx, "release", fields, func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		balance, err := tx.LockBalance(ctx, key)
		if err != nil {
			return nil, err
		}
		balance.QuantityReserved = decimal.Max(decimal.Zero, utils.Sub(balance.QuantityReserved, qty))
		if err := tx.SaveBalance(ctx, balance); err != nil {
			return nil, err
		}
		result = balance
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
