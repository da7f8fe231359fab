package workflow

import (
	"context"

	"github.com/mmdatafocus/stockledger/models"
)

func (e *Engine) GetBalance(ctx context.Context, key models.BalanceKey) (*models.StockBalance, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return e.store.GetBalance(ctx, key)
}

func (e *Engine) ListBalances(ctx context.Context, query models.BalanceQuery) (*models.Page[*models.StockBalance], error) {
	if err := requireTenant(query.TenantId); err != nil {
		return nil, err
	}
	return e.store.ListBalances(ctx, query)
}

// ListLedgerEntries pages a tenant's movements newest first.
func (e *Engine) ListLedgerEntries(ctx context.Context, query models.LedgerQuery) (*models.Page[*models.StockLedgerEntry], error) {
	if err := requireTenant(query.TenantId); err != nil {
		return nil, err
	}
	if query.Type != nil && !query.Type.IsValid() {
		return nil, models.NewValidationError("Type", "unknown ledger entry type "+string(*query.Type))
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return nil, models.NewValidationError("To", "must not be before From")
	}
	return e.store.ListLedgerEntries(ctx, query)
}
