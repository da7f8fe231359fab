package models

import "fmt"

// ReferenceType names the document that triggered a movement.
// The core stores it for traceability and never dereferences it.
type ReferenceType string

const (
	ReferenceTypePurchaseOrder ReferenceType = "purchase_order"
	ReferenceTypeGoodsReceipt  ReferenceType = "goods_receipt"
	ReferenceTypeSalesOrder    ReferenceType = "sales_order"
	ReferenceTypeSalesReturn   ReferenceType = "sales_return"
	ReferenceTypeCycleCount    ReferenceType = "cycle_count"
	ReferenceTypeTransferOrder ReferenceType = "transfer_order"
	ReferenceTypeManual        ReferenceType = "manual"
)

// IsKnown reports whether t is one of the document kinds this module ships with.
// Unknown kinds are still accepted and stored as opaque values.
func (t ReferenceType) IsKnown() bool {
	switch t {
	case ReferenceTypePurchaseOrder, ReferenceTypeGoodsReceipt, ReferenceTypeSalesOrder,
		ReferenceTypeSalesReturn, ReferenceTypeCycleCount, ReferenceTypeTransferOrder,
		ReferenceTypeManual:
		return true
	}
	return false
}

type Reference struct {
	Type ReferenceType `gorm:"column:reference_type;size:50" json:"reference_type"`
	Id   string        `gorm:"column:reference_id;size:100" json:"reference_id"`
}

func (r Reference) IsZero() bool {
	return r.Type == "" && r.Id == ""
}

func (r Reference) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.Type, r.Id)
}
