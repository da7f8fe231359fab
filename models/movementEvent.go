package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementEvent is published after a movement commits.
type MovementEvent struct {
	TenantId       string          `json:"tenant_id"`
	CorrelationId  string          `json:"correlation_id,omitempty"`
	LedgerEntryId  int             `json:"ledger_entry_id"`
	Sequence       int             `json:"sequence"`
	Type           LedgerEntryType `json:"type"`
	WarehouseId    int             `json:"warehouse_id"`
	ProductId      int             `json:"product_id"`
	VariantId      int             `json:"variant_id"`
	Qty            decimal.Decimal `json:"qty"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Reference      Reference       `json:"reference"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func NewMovementEvent(e *StockLedgerEntry, correlationId string) MovementEvent {
	return MovementEvent{
		TenantId:       e.TenantId,
		CorrelationId:  correlationId,
		LedgerEntryId:  e.ID,
		Sequence:       e.Sequence,
		Type:           e.Type,
		WarehouseId:    e.WarehouseId,
		ProductId:      e.ProductId,
		VariantId:      e.VariantId,
		Qty:            e.Qty,
		UnitCost:       e.UnitCost,
		RunningBalance: e.RunningBalance,
		Reference:      e.Reference,
		OccurredAt:     e.CreatedAt,
	}
}
