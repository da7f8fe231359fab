package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/stockledger/config"
	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RebuildReport compares a cached balance with the replay of its ledger.
type RebuildReport struct {
	Key         models.BalanceKey       `json:"key"`
	Entries     int                     `json:"entries"`
	Before      *models.StockBalance    `json:"before"`
	After       *models.StockBalance    `json:"after"`
	Mismatches  []models.ReplayMismatch `json:"mismatches,omitempty"`
	Drifted     bool                    `json:"drifted"`
	Rewritten   bool                    `json:"rewritten"`
	ReservedCut decimal.Decimal         `json:"reserved_cut"`
}

func replayBalance(before *models.StockBalance, entries []*models.StockLedgerEntry) (*RebuildReport, error) {
	replay := models.NewLedgerReplay()
	if err := replay.ApplyAll(entries); err != nil {
		return nil, err
	}
	key := before.Key()
	if replay.OnHand.IsNegative() {
		return nil, fmt.Errorf("rebuild %s: ledger replays to negative on hand %s", key, replay.OnHand)
	}
	after := before.Clone()
	after.QuantityOnHand = replay.OnHand
	after.AverageCost = replay.AverageCost
	after.LedgerSequence = replay.Sequence

	report := &RebuildReport{Key: key, Entries: len(entries), Before: before, After: after, Mismatches: replay.Mismatches, ReservedCut: decimal.Zero}
	if after.QuantityReserved.GreaterThan(after.QuantityOnHand) {
		report.ReservedCut = after.QuantityReserved.Sub(after.QuantityOnHand)
		after.QuantityReserved = after.QuantityOnHand
	}
	if after.QuantityReserved.IsNegative() {
		report.ReservedCut = after.QuantityReserved
		after.QuantityReserved = decimal.Zero
	}
	report.Drifted = !before.QuantityOnHand.Equal(after.QuantityOnHand) ||
		!before.AverageCost.Equal(after.AverageCost) ||
		before.LedgerSequence != after.LedgerSequence ||
		!report.ReservedCut.IsZero() ||
		len(replay.Mismatches) > 0
	return report, nil
}

func (e *Engine) checkRebuildKey(tenantId string, key models.BalanceKey) error {
	if err := requireTenant(tenantId); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if key.TenantId != tenantId {
		return models.NewValidationError("TenantId", "does not match the balance key")
	}
	return nil
}

// RebuildFromLedger locks the balance of key, replays its full ledger with the movement
// arithmetic and rewrites the cached row from the result. The ledger is never modified.
func (e *Engine) RebuildFromLedger(ctx context.Context, tenantId string, key models.BalanceKey) (*RebuildReport, error) {
	if err := e.checkRebuildKey(tenantId, key); err != nil {
		return nil, err
	}
	fields := keyFields(key)
	e.logger.WithFields(fields).Info("inv.rebuild.start")

	var report *RebuildReport
	err := e.execute(ctx, "rebuild", fields, func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		before, err := tx.LockBalance(ctx, key)
		if err != nil {
			return nil, err
		}
		entries, err := tx.ScanLedger(ctx, key)
		if err != nil {
			return nil, err
		}
		report, err = replayBalance(before.Clone(), entries)
		if err != nil {
			return nil, err
		}
		if report.Drifted {
			if err := tx.SaveBalance(ctx, report.After); err != nil {
				return nil, err
			}
			report.Rewritten = true
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	e.logRebuild(report)
	return report, nil
}

// VerifyLedger is the read-only form of RebuildFromLedger: it reports drift without locking
// or writing anything.
func (e *Engine) VerifyLedger(ctx context.Context, tenantId string, key models.BalanceKey) (*RebuildReport, error) {
	if err := e.checkRebuildKey(tenantId, key); err != nil {
		return nil, err
	}
	before, err := e.store.GetBalance(ctx, key)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.ScanLedgerEntries(ctx, models.ScanKey(key))
	if err != nil {
		return nil, err
	}
	return replayBalance(before, entries)
}

// RebuildTenant rebuilds (or with dryRun only verifies) every balance of the tenant. A key
// that fails is logged and skipped; the first such error is returned after the sweep.
func (e *Engine) RebuildTenant(ctx context.Context, tenantId string, dryRun bool) ([]*RebuildReport, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	keys, err := e.store.ListBalanceKeys(ctx, tenantId)
	if err != nil {
		return nil, err
	}
	var (
		reports  []*RebuildReport
		firstErr error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		var report *RebuildReport
		if dryRun {
			report, err = e.VerifyLedger(ctx, tenantId, key)
		} else {
			report, err = e.RebuildFromLedger(ctx, tenantId, key)
		}
		if err != nil {
			config.LogError(e.logger, moduleName, "RebuildTenant", "rebuild key", keyFields(key), err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reports = append(reports, report)
	}
	return reports, firstErr
}

func (e *Engine) logRebuild(report *RebuildReport) {
	fields := keyFields(report.Key)
	fields["entries"] = report.Entries
	fields["drifted"] = report.Drifted
	fields["mismatches"] = len(report.Mismatches)
	fields["on_hand_before"] = report.Before.QuantityOnHand.String()
	fields["on_hand_after"] = report.After.QuantityOnHand.String()
	fields["avg_cost_before"] = report.Before.AverageCost.String()
	fields["avg_cost_after"] = report.After.AverageCost.String()
	entry := e.logger.WithFields(logrus.Fields(fields))
	if report.Drifted {
		entry.Warn("inv.rebuild.end")
		return
	}
	entry.Info("inv.rebuild.end")
}
