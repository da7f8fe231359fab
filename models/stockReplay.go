package models

import (
	"fmt"

	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

// ReplayMismatch records a ledger entry whose stored running balance or sequence
// disagrees with the replayed history.
type ReplayMismatch struct {
	EntryId          int             `json:"entry_id"`
	ExpectedSequence int             `json:"expected_sequence"`
	RecordedSequence int             `json:"recorded_sequence"`
	ExpectedBalance  decimal.Decimal `json:"expected_balance"`
	RecordedBalance  decimal.Decimal `json:"recorded_balance"`
}

// LedgerReplay folds ledger entries of one key in id order using the same arithmetic as the
// movement engine: inbound entries re-average the cost, outbound entries leave it unchanged.
type LedgerReplay struct {
	OnHand      decimal.Decimal
	AverageCost decimal.Decimal
	Sequence    int
	LastEntryId int
	Mismatches  []ReplayMismatch
}

func NewLedgerReplay() *LedgerReplay {
	return &LedgerReplay{OnHand: decimal.Zero, AverageCost: decimal.Zero}
}

func (r *LedgerReplay) Apply(e *StockLedgerEntry) error {
	if !e.Type.IsValid() {
		return fmt.Errorf("ledger entry %d: unknown type %q", e.ID, e.Type)
	}
	if e.ID <= r.LastEntryId {
		return fmt.Errorf("ledger entry %d replayed out of order after %d", e.ID, r.LastEntryId)
	}
	if e.Type.IsOutgoing() {
		r.OnHand = utils.Sub(r.OnHand, e.Qty)
	} else {
		avg, err := utils.WeightedAverageCost(r.OnHand, r.AverageCost, e.Qty, e.UnitCost)
		if err != nil {
			return fmt.Errorf("ledger entry %d: %w", e.ID, err)
		}
		r.AverageCost = avg
		r.OnHand = utils.Add(r.OnHand, e.Qty)
	}
	r.Sequence++
	r.LastEntryId = e.ID
	if !r.OnHand.Equal(e.RunningBalance) || (e.Sequence != 0 && e.Sequence != r.Sequence) {
		r.Mismatches = append(r.Mismatches, ReplayMismatch{
			EntryId:          e.ID,
			ExpectedSequence: r.Sequence,
			RecordedSequence: e.Sequence,
			ExpectedBalance:  r.OnHand,
			RecordedBalance:  e.RunningBalance,
		})
	}
	return nil
}

func (r *LedgerReplay) ApplyAll(entries []*StockLedgerEntry) error {
	for _, e := range entries {
		if err := r.Apply(e); err != nil {
			return err
		}
	}
	return nil
}
