package models

type LedgerEntryType string

const (
	LedgerEntryTypeReceive       LedgerEntryType = "receive"
	LedgerEntryTypeIssue         LedgerEntryType = "issue"
	LedgerEntryTypeAdjustmentIn  LedgerEntryType = "adjustment_in"
	LedgerEntryTypeAdjustmentOut LedgerEntryType = "adjustment_out"
	LedgerEntryTypeTransferIn    LedgerEntryType = "transfer_in"
	LedgerEntryTypeTransferOut   LedgerEntryType = "transfer_out"
	LedgerEntryTypeReturn        LedgerEntryType = "return"
)

func (t LedgerEntryType) IsValid() bool {
	switch t {
	case LedgerEntryTypeReceive, LedgerEntryTypeIssue,
		LedgerEntryTypeAdjustmentIn, LedgerEntryTypeAdjustmentOut,
		LedgerEntryTypeTransferIn, LedgerEntryTypeTransferOut,
		LedgerEntryTypeReturn:
		return true
	}
	return false
}

// IsOutgoing reports whether the entry type decreases on-hand quantity.
func (t LedgerEntryType) IsOutgoing() bool {
	return t == LedgerEntryTypeIssue || t == LedgerEntryTypeAdjustmentOut || t == LedgerEntryTypeTransferOut
}

// ValuationMovementType maps a ledger entry type onto its valuation movement.
func (t LedgerEntryType) ValuationMovementType() ValuationMovementType {
	switch t {
	case LedgerEntryTypeIssue, LedgerEntryTypeTransferOut:
		return ValuationMovementTypeDeduction
	case LedgerEntryTypeAdjustmentIn, LedgerEntryTypeAdjustmentOut:
		return ValuationMovementTypeAdjustment
	default:
		return ValuationMovementTypeReceipt
	}
}

type ValuationMovementType string

const (
	ValuationMovementTypeReceipt    ValuationMovementType = "receipt"
	ValuationMovementTypeDeduction  ValuationMovementType = "deduction"
	ValuationMovementTypeAdjustment ValuationMovementType = "adjustment"
)

type ValuationMethod string

const (
	ValuationMethodWeightedAverage ValuationMethod = "weighted_average"
	ValuationMethodFifo            ValuationMethod = "fifo"
)

func (m ValuationMethod) IsValid() bool {
	return m == ValuationMethodWeightedAverage || m == ValuationMethodFifo
}

type TrackingType string

const (
	TrackingTypeLot    TrackingType = "lot"
	TrackingTypeSerial TrackingType = "serial"
)

type LotStatus string

const (
	LotStatusActive  LotStatus = "active"
	LotStatusBlocked LotStatus = "blocked"
)

type AbcClass string

const (
	AbcClassA AbcClass = "A"
	AbcClassB AbcClass = "B"
	AbcClassC AbcClass = "C"
)
