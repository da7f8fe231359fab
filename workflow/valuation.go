package workflow

import (
	"context"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

// appendValuation writes the monetary twin of entry when the product has costing enabled.
// value is unsigned; the sign follows the entry direction. The product's valuation head is
// locked after every balance row of the call, and the entry is stamped under that lock so
// created_at order matches running-total order across warehouses.
func (e *Engine) appendValuation(ctx context.Context, tx store.Tx, profile *models.ProductProfile, entry *models.StockLedgerEntry, value decimal.Decimal) (*models.ValuationEntry, error) {
	if !profile.CostingEnabled {
		return nil, nil
	}
	head, err := tx.LockValuationHead(ctx, entry.TenantId, entry.ProductId)
	if err != nil {
		return nil, err
	}
	signedValue := value
	if entry.Type.IsOutgoing() {
		signedValue = value.Neg()
	}
	head.RunningBalanceQty = utils.Add(head.RunningBalanceQty, entry.SignedQty())
	head.RunningBalanceValue = utils.Add(head.RunningBalanceValue, signedValue)

	createdAt := e.now().UTC()
	if head.LastEntryAt != nil && createdAt.Before(*head.LastEntryAt) {
		createdAt = *head.LastEntryAt
	}

	method := models.ValuationMethodWeightedAverage
	if profile.UsesFifo() {
		method = models.ValuationMethodFifo
	}
	valuation := &models.ValuationEntry{
		TenantId:            entry.TenantId,
		ProductId:           entry.ProductId,
		WarehouseId:         entry.WarehouseId,
		MovementType:        entry.Type.ValuationMovementType(),
		Qty:                 entry.Qty,
		UnitCost:            entry.UnitCost,
		TotalValue:          signedValue,
		RunningBalanceQty:   head.RunningBalanceQty,
		RunningBalanceValue: head.RunningBalanceValue,
		ValuationMethod:     method,
		LedgerEntryId:       entry.ID,
		Reference:           entry.Reference,
		CreatedAt:           createdAt,
	}
	if err := tx.AppendValuationEntry(ctx, valuation); err != nil {
		return nil, err
	}
	head.LastEntryId = valuation.ID
	head.LastEntryAt = &createdAt
	if err := tx.SaveValuationHead(ctx, head); err != nil {
		return nil, err
	}
	return valuation, nil
}
