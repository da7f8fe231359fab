package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type NewStockReceipt struct {
	WarehouseId     int `validate:"required,gt=0"`
	ProductId       int `validate:"required,gt=0"`
	VariantId       int `validate:"gte=0"`
	Qty             decimal.Decimal
	UnitCost        decimal.Decimal
	LotNumber       string `validate:"max=100"`
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
	Reference       models.Reference
	Notes           string
}

type NewStockShipment struct {
	WarehouseId int `validate:"required,gt=0"`
	ProductId   int `validate:"required,gt=0"`
	VariantId   int `validate:"gte=0"`
	Qty         decimal.Decimal
	// FromReservation consumes up to Qty of the key's reservation in the same transaction.
	FromReservation bool
	Reference       models.Reference
	Notes           string
}

// NewStockAdjustment carries a signed quantity: positive adds stock, negative removes it.
type NewStockAdjustment struct {
	WarehouseId int `validate:"required,gt=0"`
	ProductId   int `validate:"required,gt=0"`
	VariantId   int `validate:"gte=0"`
	Qty         decimal.Decimal
	// UnitCost of added stock; the current average when nil.
	UnitCost        *decimal.Decimal
	Reason          string `validate:"required,max=255"`
	LotNumber       string `validate:"max=100"`
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
	Reference       models.Reference
	Notes           string
}

type NewStockTransfer struct {
	SourceWarehouseId      int `validate:"required,gt=0"`
	DestinationWarehouseId int `validate:"required,gt=0,nefield=SourceWarehouseId"`
	ProductId              int `validate:"required,gt=0"`
	VariantId              int `validate:"gte=0"`
	Qty                    decimal.Decimal
	Reference              models.Reference
	Notes                  string
}

// NewStockReturn brings stock back. Its cost is UnitCost when given, else the cost of
// OriginalEntryId, else the current average.
type NewStockReturn struct {
	WarehouseId     int `validate:"required,gt=0"`
	ProductId       int `validate:"required,gt=0"`
	VariantId       int `validate:"gte=0"`
	Qty             decimal.Decimal
	UnitCost        *decimal.Decimal
	OriginalEntryId int    `validate:"gte=0"`
	LotNumber       string `validate:"max=100"`
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
	Reference       models.Reference
	Notes           string
}

// MovementResult is what one side of a movement wrote.
type MovementResult struct {
	Entry       *models.StockLedgerEntry
	Balance     *models.StockBalance
	Valuation   *models.ValuationEntry
	Allocations []models.LotAllocation
	Lots        []*models.InventoryLot
	// Value is qty times the cost basis of the movement, unsigned.
	Value decimal.Decimal
}

type TransferResult struct {
	Out *MovementResult
	In  *MovementResult
}

// movement is the per-call context shared by the inbound and outbound paths.
type movement struct {
	key       models.BalanceKey
	profile   *models.ProductProfile
	reference models.Reference
	notes     string
	createdBy string
}

type inboundLot struct {
	number          string
	qty             decimal.Decimal
	unitCost        *decimal.Decimal
	manufactureDate *time.Time
	expiryDate      *time.Time
}

type outboundMode int

const (
	// outboundFree may only take unreserved stock.
	outboundFree outboundMode = iota
	// outboundReservation takes reserved stock first.
	outboundReservation
	// outboundPhysical may take any on-hand stock; reservations are clamped afterwards.
	outboundPhysical
)

func positiveQty(field string, qty decimal.Decimal) (decimal.Decimal, error) {
	qty = utils.Normalize(qty)
	if !qty.IsPositive() {
		return qty, models.NewValidationError(field, "must be greater than zero")
	}
	return qty, nil
}

func nonNegativeCost(field string, cost *decimal.Decimal) (*decimal.Decimal, error) {
	if cost == nil {
		return nil, nil
	}
	c := utils.Normalize(*cost)
	if c.IsNegative() {
		return nil, models.NewValidationError(field, "must not be negative")
	}
	return &c, nil
}

func checkLotDates(manufactureDate, expiryDate *time.Time) error {
	if manufactureDate != nil && expiryDate != nil && expiryDate.Before(*manufactureDate) {
		return models.NewValidationError("ExpiryDate", "must not be before ManufactureDate")
	}
	return nil
}

func checkSerialQty(profile *models.ProductProfile, qty decimal.Decimal) error {
	if profile.TrackSerials && !qty.Equal(decimal.NewFromInt(1)) {
		return models.NewValidationError("Qty", "serial-tracked movements must carry exactly one unit")
	}
	return nil
}

func (e *Engine) newMovement(ctx context.Context, key models.BalanceKey, profile *models.ProductProfile, ref models.Reference, notes string) movement {
	createdBy, _ := utils.GetUserNameFromContext(ctx)
	return movement{key: key, profile: profile, reference: ref, notes: notes, createdBy: createdBy}
}

func (e *Engine) newEntry(m movement, balance *models.StockBalance, typ models.LedgerEntryType, qty, unitCost decimal.Decimal) *models.StockLedgerEntry {
	return &models.StockLedgerEntry{
		TenantId:       m.key.TenantId,
		WarehouseId:    m.key.WarehouseId,
		ProductId:      m.key.ProductId,
		VariantId:      m.key.VariantId,
		Sequence:       balance.LedgerSequence,
		Type:           typ,
		Qty:            qty,
		UnitCost:       unitCost,
		RunningBalance: balance.QuantityOnHand,
		Reference:      m.reference,
		Notes:          m.notes,
		CreatedBy:      m.createdBy,
		CreatedAt:      e.now().UTC(),
	}
}

// applyInbound adds qty at unitCost (the current average when nil), re-averaging the cost.
func (e *Engine) applyInbound(ctx context.Context, tx store.Tx, m movement, typ models.LedgerEntryType, qty decimal.Decimal, unitCost *decimal.Decimal, lots []inboundLot) (*MovementResult, error) {
	balance, err := tx.LockBalance(ctx, m.key)
	if err != nil {
		return nil, err
	}
	cost := balance.AverageCost
	if unitCost != nil {
		cost = *unitCost
	}
	avg, err := utils.WeightedAverageCost(balance.QuantityOnHand, balance.AverageCost, qty, cost)
	if err != nil {
		return nil, err
	}
	balance.QuantityOnHand = utils.Add(balance.QuantityOnHand, qty)
	balance.AverageCost = avg
	balance.LedgerSequence++

	entry := e.newEntry(m, balance, typ, qty, cost)
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.SaveBalance(ctx, balance); err != nil {
		return nil, err
	}
	result := &MovementResult{Entry: entry, Balance: balance, Value: utils.Mul(qty, cost)}

	if m.profile.UsesLots() {
		if len(lots) == 0 {
			lots = []inboundLot{{qty: qty}}
		}
		for _, want := range lots {
			if want.unitCost == nil {
				want.unitCost = &cost
			}
			lot, err := e.registerLot(ctx, tx, m, want)
			if err != nil {
				return nil, err
			}
			result.Lots = append(result.Lots, lot)
		}
	}
	return result, nil
}

// applyOutbound removes qty. Weighted-average products leave at the current average; FIFO
// products leave at the cost of the lots consumed.
func (e *Engine) applyOutbound(ctx context.Context, tx store.Tx, m movement, typ models.LedgerEntryType, qty decimal.Decimal, mode outboundMode) (*MovementResult, error) {
	balance, err := tx.LockBalance(ctx, m.key)
	if err != nil {
		return nil, err
	}

	reservedTaken := decimal.Zero
	switch mode {
	case outboundFree:
		if balance.Available().LessThan(qty) {
			return nil, &models.InsufficientStockError{Key: m.key, Requested: qty, Available: balance.Available()}
		}
	case outboundReservation:
		reservedTaken = decimal.Min(balance.QuantityReserved, qty)
		if balance.Available().LessThan(utils.Sub(qty, reservedTaken)) {
			return nil, &models.InsufficientStockError{Key: m.key, Requested: qty, Available: utils.Add(balance.Available(), reservedTaken)}
		}
	case outboundPhysical:
		if balance.QuantityOnHand.LessThan(qty) {
			return nil, &models.InsufficientStockError{Key: m.key, Requested: qty, Available: balance.QuantityOnHand}
		}
	}

	result := &MovementResult{}
	unitCost := balance.AverageCost
	value := utils.Mul(qty, unitCost)
	if m.profile.UsesLots() {
		allocations, err := e.AllocateFifo(ctx, tx, m.key, qty)
		if err != nil {
			return nil, err
		}
		result.Allocations = allocations
		if m.profile.UsesFifo() {
			value = decimal.Zero
			for _, a := range allocations {
				value = utils.Add(value, utils.Mul(a.QtyTaken, a.UnitCost))
			}
			if unitCost, err = utils.Div(value, qty); err != nil {
				return nil, err
			}
		}
	}

	balance.QuantityOnHand = utils.Sub(balance.QuantityOnHand, qty)
	balance.QuantityReserved = utils.Sub(balance.QuantityReserved, reservedTaken)
	if balance.QuantityReserved.GreaterThan(balance.QuantityOnHand) {
		e.logger.WithFields(keyFields(m.key)).WithFields(logrus.Fields{
			"reserved":  balance.QuantityReserved.String(),
			"on_hand":   balance.QuantityOnHand.String(),
			"entryType": typ,
		}).Warn("stock.reservation.clamped")
		balance.QuantityReserved = balance.QuantityOnHand
	}
	balance.LedgerSequence++

	entry := e.newEntry(m, balance, typ, qty, unitCost)
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.SaveBalance(ctx, balance); err != nil {
		return nil, err
	}
	result.Entry = entry
	result.Balance = balance
	result.Value = value
	return result, nil
}

func (e *Engine) ReceiveStock(ctx context.Context, tenantId string, input *NewStockReceipt) (*MovementResult, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if err := models.ValidateInput(input); err != nil {
		return nil, err
	}
	qty, err := positiveQty("Qty", input.Qty)
	if err != nil {
		return nil, err
	}
	cost, err := nonNegativeCost("UnitCost", &input.UnitCost)
	if err != nil {
		return nil, err
	}
	if err := checkLotDates(input.ManufactureDate, input.ExpiryDate); err != nil {
		return nil, err
	}
	key := models.BalanceKey{TenantId: tenantId, WarehouseId: input.WarehouseId, ProductId: input.ProductId, VariantId: input.VariantId}
	profile, err := e.profile(ctx, tenantId, input.ProductId)
	if err != nil {
		return nil, err
	}
	if err := checkSerialQty(profile, qty); err != nil {
		return nil, err
	}

	var result *MovementResult
	err = e.execute(ctx, "receive", keyFields(key), func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		m := e.newMovement(ctx, key, profile, input.Reference, input.Notes)
		lots := []inboundLot{{
			number:          input.LotNumber,
			qty:             qty,
			manufactureDate: input.ManufactureDate,
			expiryDate:      input.ExpiryDate,
		}}
		res, err := e.applyInbound(ctx, tx, m, models.LedgerEntryTypeReceive, qty, cost, lots)
		if err != nil {
			return nil, err
		}
		if res.Valuation, err = e.appendValuation(ctx, tx, profile, res.Entry, res.Value); err != nil {
			return nil, err
		}
		result = res
		return []*models.StockLedgerEntry{res.Entry}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) ShipStock(ctx context.Context, tenantId string, input *NewStockShipment) (*MovementResult, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if err := models.ValidateInput(input); err != nil {
		return nil, err
	}
	qty, err := positiveQty("Qty", input.Qty)
	if err != nil {
		return nil, err
	}
	key := models.BalanceKey{TenantId: tenantId, WarehouseId: input.WarehouseId, ProductId: input.ProductId, VariantId: input.VariantId}
	profile, err := e.profile(ctx, tenantId, input.ProductId)
	if err != nil {
		return nil, err
	}
	mode := outboundFree
	if input.FromReservation {
		mode = outboundReservation
	}

	var result *MovementResult
	err = e.execute(ctx, "ship", keyFields(key), func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		m := e.newMovement(ctx, key, profile, input.Reference, input.Notes)
		res, err := e.applyOutbound(ctx, tx, m, models.LedgerEntryTypeIssue, qty, mode)
		if err != nil {
			return nil, err
		}
		if res.Valuation, err = e.appendValuation(ctx, tx, profile, res.Entry, res.Value); err != nil {
			return nil, err
		}
		result = res
		return []*models.StockLedgerEntry{res.Entry}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) AdjustStock(ctx context.Context, tenantId string, input *NewStockAdjustment) (*MovementResult, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if err := models.ValidateInput(input); err != nil {
		return nil, err
	}
	signed := utils.Normalize(input.Qty)
	if signed.IsZero() {
		return nil, models.NewValidationError("Qty", "must not be zero")
	}
	qty := signed.Abs()
	cost, err := nonNegativeCost("UnitCost", input.UnitCost)
	if err != nil {
		return nil, err
	}
	if err := checkLotDates(input.ManufactureDate, input.ExpiryDate); err != nil {
		return nil, err
	}
	key := models.BalanceKey{TenantId: tenantId, WarehouseId: input.WarehouseId, ProductId: input.ProductId, VariantId: input.VariantId}
	profile, err := e.profile(ctx, tenantId, input.ProductId)
	if err != nil {
		return nil, err
	}
	if signed.IsPositive() {
		if err := checkSerialQty(profile, qty); err != nil {
			return nil, err
		}
	}
	notes := input.Reason
	if input.Notes != "" {
		notes = fmt.Sprintf("%s; %s", input.Reason, input.Notes)
	}

	var result *MovementResult
	err = e.execute(ctx, "adjust", keyFields(key), func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		m := e.newMovement(ctx, key, profile, input.Reference, notes)
		var (
			res *MovementResult
			err error
		)
		if signed.IsPositive() {
			lots := []inboundLot{{
				number:          input.LotNumber,
				qty:             qty,
				manufactureDate: input.ManufactureDate,
				expiryDate:      input.ExpiryDate,
			}}
			res, err = e.applyInbound(ctx, tx, m, models.LedgerEntryTypeAdjustmentIn, qty, cost, lots)
		} else {
			res, err = e.applyOutbound(ctx, tx, m, models.LedgerEntryTypeAdjustmentOut, qty, outboundPhysical)
		}
		if err != nil {
			return nil, err
		}
		if res.Valuation, err = e.appendValuation(ctx, tx, profile, res.Entry, res.Value); err != nil {
			return nil, err
		}
		result = res
		return []*models.StockLedgerEntry{res.Entry}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TransferStock moves stock between warehouses at the source's cost. Both rows are locked in
// ascending key order before either is touched.
func (e *Engine) TransferStock(ctx context.Context, tenantId string, input *NewStockTransfer) (*TransferResult, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if err := models.ValidateInput(input); err != nil {
		return nil, err
	}
	qty, err := positiveQty("Qty", input.Qty)
	if err != nil {
		return nil, err
	}
	source := models.BalanceKey{TenantId: tenantId, WarehouseId: input.SourceWarehouseId, ProductId: input.ProductId, VariantId: input.VariantId}
	destination := models.BalanceKey{TenantId: tenantId, WarehouseId: input.DestinationWarehouseId, ProductId: input.ProductId, VariantId: input.VariantId}
	profile, err := e.profile(ctx, tenantId, input.ProductId)
	if err != nil {
		return nil, err
	}
	fields := keyFields(source)
	fields["destination_warehouse_id"] = destination.WarehouseId

	var result *TransferResult
	err = e.execute(ctx, "transfer", fields, func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		first, second := source, destination
		if second.Less(first) {
			first, second = second, first
		}
		if _, err := tx.LockBalance(ctx, first); err != nil {
			return nil, err
		}
		if _, err := tx.LockBalance(ctx, second); err != nil {
			return nil, err
		}

		out, err := e.applyOutbound(ctx, tx, e.newMovement(ctx, source, profile, input.Reference, input.Notes),
			models.LedgerEntryTypeTransferOut, qty, outboundFree)
		if err != nil {
			return nil, err
		}
		var lots []inboundLot
		for _, a := range out.Allocations {
			lotCost := a.UnitCost
			lots = append(lots, inboundLot{
				number:          a.Lot.LotNumber,
				qty:             a.QtyTaken,
				unitCost:        &lotCost,
				manufactureDate: a.Lot.ManufactureDate,
				expiryDate:      a.Lot.ExpiryDate,
			})
		}
		inCost := out.Entry.UnitCost
		in, err := e.applyInbound(ctx, tx, e.newMovement(ctx, destination, profile, input.Reference, input.Notes),
			models.LedgerEntryTypeTransferIn, qty, &inCost, lots)
		if err != nil {
			return nil, err
		}
		// both sides carry the outbound value so the product's valuation nets to zero
		in.Value = out.Value
		if out.Valuation, err = e.appendValuation(ctx, tx, profile, out.Entry, out.Value); err != nil {
			return nil, err
		}
		if in.Valuation, err = e.appendValuation(ctx, tx, profile, in.Entry, in.Value); err != nil {
			return nil, err
		}
		result = &TransferResult{Out: out, In: in}
		return []*models.StockLedgerEntry{out.Entry, in.Entry}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) ReturnStock(ctx context.Context, tenantId string, input *NewStockReturn) (*MovementResult, error) {
	if err := requireTenant(tenantId); err != nil {
		return nil, err
	}
	if err := models.ValidateInput(input); err != nil {
		return nil, err
	}
	qty, err := positiveQty("Qty", input.Qty)
	if err != nil {
		return nil, err
	}
	cost, err := nonNegativeCost("UnitCost", input.UnitCost)
	if err != nil {
		return nil, err
	}
	if err := checkLotDates(input.ManufactureDate, input.ExpiryDate); err != nil {
		return nil, err
	}
	key := models.BalanceKey{TenantId: tenantId, WarehouseId: input.WarehouseId, ProductId: input.ProductId, VariantId: input.VariantId}
	profile, err := e.profile(ctx, tenantId, input.ProductId)
	if err != nil {
		return nil, err
	}
	if err := checkSerialQty(profile, qty); err != nil {
		return nil, err
	}

	var result *MovementResult
	err = e.execute(ctx, "return", keyFields(key), func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		if cost == nil && input.OriginalEntryId > 0 {
			original, err := tx.GetLedgerEntry(ctx, tenantId, input.OriginalEntryId)
			if err != nil {
				return nil, err
			}
			if original.ProductId != input.ProductId || original.VariantId != input.VariantId || !original.Type.IsOutgoing() {
				return nil, models.NewValidationError("OriginalEntryId", "must reference an outgoing entry of the same product")
			}
			originalCost := original.UnitCost
			cost = &originalCost
		}
		m := e.newMovement(ctx, key, profile, input.Reference, input.Notes)
		lots := []inboundLot{{
			number:          input.LotNumber,
			qty:             qty,
			manufactureDate: input.ManufactureDate,
			expiryDate:      input.ExpiryDate,
		}}
		res, err := e.applyInbound(ctx, tx, m, models.LedgerEntryTypeReturn, qty, cost, lots)
		if err != nil {
			return nil, err
		}
		if res.Valuation, err = e.appendValuation(ctx, tx, profile, res.Entry, res.Value); err != nil {
			return nil, err
		}
		result = res
		return []*models.StockLedgerEntry{res.Entry}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LockAndMutate runs fn against the locked balance of key and persists the result. It is the
// escape hatch for callers that need an atomic read-modify-write without a ledger entry.
func (e *Engine) LockAndMutate(ctx context.Context, key models.BalanceKey, fn func(balance *models.StockBalance) error) (*models.StockBalance, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var result *models.StockBalance
	err := e.execute(ctx, "mutate", keyFields(key), func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error) {
		balance, err := tx.LockBalance(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := fn(balance); err != nil {
			return nil, err
		}
		if balance.Key() != key {
			return nil, fmt.Errorf("lock and mutate: balance key changed from %s to %s", key, balance.Key())
		}
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
