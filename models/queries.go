package models

import (
	"slices"
	"time"
)

type BalanceQuery struct {
	TenantId    string
	WarehouseId *int
	ProductId   *int
	Page        int
	PerPage     int
}

func (q BalanceQuery) Matches(b *StockBalance) bool {
	return b.TenantId == q.TenantId &&
		(q.WarehouseId == nil || b.WarehouseId == *q.WarehouseId) &&
		(q.ProductId == nil || b.ProductId == *q.ProductId)
}

// LedgerQuery lists ledger entries newest first.
type LedgerQuery struct {
	TenantId    string
	WarehouseId *int
	ProductId   *int
	VariantId   *int
	Type        *LedgerEntryType
	Reference   *Reference
	From        *time.Time
	To          *time.Time
	Page        int
	PerPage     int
}

func (q LedgerQuery) Matches(e *StockLedgerEntry) bool {
	if e.TenantId != q.TenantId {
		return false
	}
	if q.WarehouseId != nil && e.WarehouseId != *q.WarehouseId {
		return false
	}
	if q.ProductId != nil && e.ProductId != *q.ProductId {
		return false
	}
	if q.VariantId != nil && e.VariantId != *q.VariantId {
		return false
	}
	if q.Type != nil && e.Type != *q.Type {
		return false
	}
	if q.Reference != nil && e.Reference != *q.Reference {
		return false
	}
	return inWindow(e.CreatedAt, q.From, q.To)
}

// LedgerScan selects ledger history in ascending id order. From is inclusive, To exclusive.
type LedgerScan struct {
	TenantId    string
	WarehouseId *int
	ProductId   *int
	VariantId   *int
	Types       []LedgerEntryType
	From        *time.Time
	To          *time.Time
}

// ScanKey selects the complete history of one balance key.
func ScanKey(key BalanceKey) LedgerScan {
	return LedgerScan{
		TenantId:    key.TenantId,
		WarehouseId: &key.WarehouseId,
		ProductId:   &key.ProductId,
		VariantId:   &key.VariantId,
	}
}

func (s LedgerScan) Matches(e *StockLedgerEntry) bool {
	if e.TenantId != s.TenantId {
		return false
	}
	if s.WarehouseId != nil && e.WarehouseId != *s.WarehouseId {
		return false
	}
	if s.ProductId != nil && e.ProductId != *s.ProductId {
		return false
	}
	if s.VariantId != nil && e.VariantId != *s.VariantId {
		return false
	}
	if len(s.Types) > 0 && !slices.Contains(s.Types, e.Type) {
		return false
	}
	return inWindow(e.CreatedAt, s.From, s.To)
}

// ValuationScan selects valuation history in ascending id order. From is inclusive, To exclusive.
type ValuationScan struct {
	TenantId    string
	ProductId   *int
	WarehouseId *int
	From        *time.Time
	To          *time.Time
}

func (s ValuationScan) Matches(e *ValuationEntry) bool {
	return e.TenantId == s.TenantId &&
		(s.ProductId == nil || e.ProductId == *s.ProductId) &&
		(s.WarehouseId == nil || e.WarehouseId == *s.WarehouseId) &&
		inWindow(e.CreatedAt, s.From, s.To)
}

// LotQuery filters lots. Blocked lots are included unless Status says otherwise;
// empty lots only with IncludeEmpty.
type LotQuery struct {
	TenantId     string
	ProductId    *int
	WarehouseId  *int
	VariantId    *int
	Status       *LotStatus
	LotNumber    string
	IncludeEmpty bool
}

// KeyLots selects the non-empty lots of a balance key.
func KeyLots(key BalanceKey) LotQuery {
	return LotQuery{
		TenantId:    key.TenantId,
		ProductId:   &key.ProductId,
		WarehouseId: &key.WarehouseId,
		VariantId:   &key.VariantId,
	}
}

func (q LotQuery) Matches(l *InventoryLot) bool {
	if l.TenantId != q.TenantId || l.DeletedAt.Valid {
		return false
	}
	if q.ProductId != nil && l.ProductId != *q.ProductId {
		return false
	}
	if q.WarehouseId != nil && l.WarehouseId != *q.WarehouseId {
		return false
	}
	if q.VariantId != nil && l.VariantId != *q.VariantId {
		return false
	}
	if q.Status != nil && l.Status != *q.Status {
		return false
	}
	if q.LotNumber != "" && l.LotNumber != q.LotNumber {
		return false
	}
	return q.IncludeEmpty || l.Qty.IsPositive()
}

type ReorderRuleQuery struct {
	TenantId    string
	ProductId   *int
	WarehouseId *int
	ActiveOnly  bool
}

func (q ReorderRuleQuery) Matches(r *ReorderRule) bool {
	if r.TenantId != q.TenantId {
		return false
	}
	if q.ProductId != nil && r.ProductId != *q.ProductId {
		return false
	}
	if q.ActiveOnly && !r.Active() {
		return false
	}
	return r.AppliesTo(q.WarehouseId)
}

func inWindow(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}
